package geo

import (
	"context"
	"math"
	"sync"

	"github.com/example/dispatch-engine/internal/models"
)

// DriverIndex is the minimal geo surface the locator needs: fetch driver
// records inside a radius and upsert position updates from the heartbeat
// pipeline.
type DriverIndex interface {
	Within(ctx context.Context, center models.Coord, radiusKm float64) ([]models.DriverAvailability, error)
	Upsert(ctx context.Context, d models.DriverAvailability) error
}

// Index is an in-memory DriverIndex used for tests and single-node runs.
type Index struct {
	mu      sync.RWMutex
	drivers map[string]models.DriverAvailability
}

func NewIndex() *Index {
	return &Index{drivers: make(map[string]models.DriverAvailability)}
}

func (g *Index) Upsert(_ context.Context, d models.DriverAvailability) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.drivers[d.DriverID] = d
	return nil
}

// naive scan; the redis-backed index does the real radius query in prod
func (g *Index) Within(_ context.Context, center models.Coord, radiusKm float64) ([]models.DriverAvailability, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]models.DriverAvailability, 0, len(g.drivers))
	for _, d := range g.drivers {
		if HaversineKm(center, d.Loc) <= radiusKm {
			out = append(out, d)
		}
	}
	return out, nil
}

// HaversineKm computes the great-circle distance between two coordinates
// in kilometres using an Earth radius of 6371 km.
func HaversineKm(a, b models.Coord) float64 {
	const earthRadiusKm = 6371.0
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(a.Lat*math.Pi/180)*math.Cos(b.Lat*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}
