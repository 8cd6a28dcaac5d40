package search

import (
	"context"
	"testing"
	"time"

	"github.com/example/dispatch-engine/internal/eligibility"
	"github.com/example/dispatch-engine/internal/geo"
	"github.com/example/dispatch-engine/internal/models"
	"github.com/example/dispatch-engine/internal/storage"
	"github.com/example/dispatch-engine/internal/wallet"
)

var pickup = models.Coord{Lat: -4.3217, Lon: 15.3069}

func newController(t *testing.T, drivers ...models.DriverAvailability) *Controller {
	t.Helper()
	idx := geo.NewIndex()
	ledger := wallet.NewMemoryLedger()
	for _, d := range drivers {
		if err := idx.Upsert(context.Background(), d); err != nil {
			t.Fatal(err)
		}
		ledger.Put(models.WalletBalance{DriverID: d.DriverID, Amount: 5000, Currency: "XAF"})
	}
	return &Controller{
		Locator: geo.NewLocator(idx),
		Filter: &eligibility.Filter{
			Trust:      storage.NewMemoryTrustSource(),
			Wallet:     ledger,
			MinBalance: 1000,
			MaxUnpaid:  1,
		},
	}
}

// kmNorth places a driver roughly km kilometres north of the pickup.
func kmNorth(id string, km float64) models.DriverAvailability {
	return models.DriverAvailability{
		DriverID:      id,
		Loc:           models.Coord{Lat: pickup.Lat + km/111.0, Lon: pickup.Lon},
		Class:         models.ClassSedan,
		Services:      []models.OrderType{models.OrderTransport},
		Online:        true,
		Available:     true,
		LastHeartbeat: time.Now(),
	}
}

func transportOrder() *models.Order {
	return &models.Order{
		ID:            "o1",
		Type:          models.OrderTransport,
		Status:        models.StatusPending,
		Pickup:        pickup,
		RequiredClass: models.ClassSedan,
	}
}

func TestFirstRadiusWins(t *testing.T) {
	c := newController(t, kmNorth("near", 3), kmNorth("far", 7))
	res, err := c.Run(context.Background(), transportOrder())
	if err != nil {
		t.Fatal(err)
	}
	if res.State != Found || res.RadiusKm != 5 {
		t.Fatalf("expected Found at 5 km, got state=%s radius=%f", res.State, res.RadiusKm)
	}
	if len(res.Ranked) != 1 || res.Ranked[0].Driver.DriverID != "near" {
		t.Fatalf("expected only the 3 km driver, got %+v", res.Ranked)
	}
}

func TestEscalatesToCeiling(t *testing.T) {
	c := newController(t, kmNorth("distant", 18))
	res, err := c.Run(context.Background(), transportOrder())
	if err != nil {
		t.Fatal(err)
	}
	if res.State != Found || res.RadiusKm != 20 {
		t.Fatalf("expected Found at 20 km, got state=%s radius=%f", res.State, res.RadiusKm)
	}
	if len(res.Ranked) != 1 || res.Ranked[0].Driver.DriverID != "distant" {
		t.Fatalf("expected the 18 km driver, got %+v", res.Ranked)
	}
}

func TestExhaustedWhenNobodyInRange(t *testing.T) {
	c := newController(t, kmNorth("too-far", 30))
	res, err := c.Run(context.Background(), transportOrder())
	if err != nil {
		t.Fatal(err)
	}
	if res.State != Exhausted {
		t.Fatalf("expected Exhausted, got %s", res.State)
	}
	if len(res.Ranked) != 0 {
		t.Fatalf("exhausted search must carry no candidates, got %d", len(res.Ranked))
	}
}

func TestIneligibleCandidatesDoNotStopEscalation(t *testing.T) {
	// a suspended driver at 3 km must not mask the clean driver at 8 km
	c := newController(t, kmNorth("suspended", 3), kmNorth("clean", 8))
	trust := storage.NewMemoryTrustSource()
	trust.Put(models.DriverTrustStatus{DriverID: "suspended", Suspended: true})
	c.Filter.Trust = trust

	res, err := c.Run(context.Background(), transportOrder())
	if err != nil {
		t.Fatal(err)
	}
	if res.State != Found || res.RadiusKm != 10 {
		t.Fatalf("expected Found at 10 km, got state=%s radius=%f", res.State, res.RadiusKm)
	}
	if res.Ranked[0].Driver.DriverID != "clean" {
		t.Fatalf("expected the clean driver, got %s", res.Ranked[0].Driver.DriverID)
	}
}
