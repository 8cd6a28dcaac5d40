package geo

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/example/dispatch-engine/internal/models"
)

// reference haversine with a different formulation, for cross-checking
func referenceKm(a, b models.Coord) float64 {
	const r = 6371.0
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }
	lat1, lat2 := toRad(a.Lat), toRad(b.Lat)
	dLat, dLon := lat2-lat1, toRad(b.Lon-a.Lon)
	h := math.Pow(math.Sin(dLat/2), 2) + math.Cos(lat1)*math.Cos(lat2)*math.Pow(math.Sin(dLon/2), 2)
	return 2 * r * math.Asin(math.Sqrt(h))
}

func TestHaversineZero(t *testing.T) {
	if d := HaversineKm(models.Coord{}, models.Coord{}); d != 0 {
		t.Fatalf("expected 0, got %f", d)
	}
}

func TestHaversineSymmetricAndMatchesReference(t *testing.T) {
	pairs := []struct{ a, b models.Coord }{
		{models.Coord{Lat: -4.3217, Lon: 15.3069}, models.Coord{Lat: -4.3500, Lon: 15.3200}},
		{models.Coord{Lat: 51.5074, Lon: -0.1278}, models.Coord{Lat: 48.8566, Lon: 2.3522}},
		{models.Coord{Lat: 0, Lon: 179.9}, models.Coord{Lat: 0, Lon: -179.9}},
	}
	for _, p := range pairs {
		ab := HaversineKm(p.a, p.b)
		ba := HaversineKm(p.b, p.a)
		if math.Abs(ab-ba) > 1e-9 {
			t.Errorf("not symmetric: %f vs %f", ab, ba)
		}
		if ref := referenceKm(p.a, p.b); math.Abs(ab-ref) > 1e-6 {
			t.Errorf("diverges from reference: got %f want %f", ab, ref)
		}
	}
	// London -> Paris is about 343 km
	if d := HaversineKm(pairs[1].a, pairs[1].b); d < 340 || d > 347 {
		t.Errorf("London-Paris distance off: %f km", d)
	}
}

func driverAt(id string, lat, lon float64, heartbeat time.Time) models.DriverAvailability {
	return models.DriverAvailability{
		DriverID:      id,
		Loc:           models.Coord{Lat: lat, Lon: lon},
		Online:        true,
		Available:     true,
		LastHeartbeat: heartbeat,
	}
}

func TestLocatorRadiusAndFreshness(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	idx := NewIndex()
	ctx := context.Background()
	pickup := models.Coord{Lat: -4.3217, Lon: 15.3069}

	// ~3 km north and ~7 km north of pickup (1 deg lat ~ 111 km)
	_ = idx.Upsert(ctx, driverAt("near", pickup.Lat+0.027, pickup.Lon, now.Add(-time.Minute)))
	_ = idx.Upsert(ctx, driverAt("far", pickup.Lat+0.063, pickup.Lon, now.Add(-time.Minute)))
	stale := driverAt("stale", pickup.Lat+0.01, pickup.Lon, now.Add(-11*time.Minute))
	_ = idx.Upsert(ctx, stale)
	offline := driverAt("offline", pickup.Lat+0.01, pickup.Lon, now.Add(-time.Minute))
	offline.Online = false
	_ = idx.Upsert(ctx, offline)

	loc := NewLocator(idx)
	loc.Now = func() time.Time { return now }

	got, err := loc.Nearby(ctx, pickup, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Driver.DriverID != "near" {
		t.Fatalf("expected only the near driver, got %+v", got)
	}
	if got[0].DistanceKm < 2.5 || got[0].DistanceKm > 3.5 {
		t.Fatalf("unexpected distance annotation: %f", got[0].DistanceKm)
	}
}

func TestLocatorMonotonicInRadius(t *testing.T) {
	now := time.Now()
	idx := NewIndex()
	ctx := context.Background()
	pickup := models.Coord{Lat: -4.3217, Lon: 15.3069}
	for i, off := range []float64{0.01, 0.05, 0.09, 0.16} {
		_ = idx.Upsert(ctx, driverAt(string(rune('a'+i)), pickup.Lat+off, pickup.Lon, now))
	}
	loc := NewLocator(idx)

	prev := map[string]bool{}
	for _, radius := range []float64{5, 10, 15, 20} {
		got, err := loc.Nearby(ctx, pickup, radius)
		if err != nil {
			t.Fatal(err)
		}
		cur := map[string]bool{}
		for _, c := range got {
			cur[c.Driver.DriverID] = true
		}
		for id := range prev {
			if !cur[id] {
				t.Fatalf("radius %f lost driver %s found at a smaller radius", radius, id)
			}
		}
		prev = cur
	}
}

func TestLocatorMissingPickup(t *testing.T) {
	idx := NewIndex()
	_ = idx.Upsert(context.Background(), driverAt("d1", 0.01, 0.01, time.Now()))
	loc := NewLocator(idx)
	got, err := loc.Nearby(context.Background(), models.Coord{}, 5)
	if err != nil {
		t.Fatalf("missing pickup must not be an error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("missing pickup must yield empty set, got %d", len(got))
	}
}
