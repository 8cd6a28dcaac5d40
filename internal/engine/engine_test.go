package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/dispatch-engine/internal/assign"
	"github.com/example/dispatch-engine/internal/eligibility"
	"github.com/example/dispatch-engine/internal/errs"
	"github.com/example/dispatch-engine/internal/geo"
	"github.com/example/dispatch-engine/internal/models"
	"github.com/example/dispatch-engine/internal/notify"
	"github.com/example/dispatch-engine/internal/search"
	"github.com/example/dispatch-engine/internal/storage"
	"github.com/example/dispatch-engine/internal/wallet"
)

var pickup = models.Coord{Lat: -4.3217, Lon: 15.3069}

type fakeQueue struct {
	batches [][]models.NotificationAlert
}

func (f *fakeQueue) EnqueueBatch(_ context.Context, alerts []models.NotificationAlert) error {
	f.batches = append(f.batches, alerts)
	return nil
}

type fixture struct {
	engine  *Engine
	orders  *storage.MemoryOrderStore
	drivers *storage.MemoryDriverStore
	queue   *fakeQueue
}

func newFixture(t *testing.T, driverList ...models.DriverAvailability) *fixture {
	t.Helper()
	idx := geo.NewIndex()
	drivers := storage.NewMemoryDriverStore()
	ledger := wallet.NewMemoryLedger()
	for _, d := range driverList {
		if err := idx.Upsert(context.Background(), d); err != nil {
			t.Fatal(err)
		}
		drivers.Put(d)
		ledger.Put(models.WalletBalance{DriverID: d.DriverID, Amount: 5000, Currency: "XAF"})
	}
	orders := storage.NewMemoryOrderStore()
	queue := &fakeQueue{}
	disp := &notify.Dispatcher{Queue: queue}
	return &fixture{
		engine: &Engine{
			Orders: orders,
			Search: &search.Controller{
				Locator: geo.NewLocator(idx),
				Filter: &eligibility.Filter{
					Trust:      storage.NewMemoryTrustSource(),
					Wallet:     ledger,
					Reminders:  disp,
					MinBalance: 1000,
					MaxUnpaid:  1,
				},
			},
			Assigner:      &assign.Coordinator{Drivers: drivers, Orders: orders},
			Notify:        disp,
			MaxCandidates: 8,
		},
		orders:  orders,
		drivers: drivers,
		queue:   queue,
	}
}

func kmNorth(id string, km float64, typ models.OrderType) models.DriverAvailability {
	return models.DriverAvailability{
		DriverID:      id,
		Loc:           models.Coord{Lat: pickup.Lat + km/111.0, Lon: pickup.Lon},
		Class:         models.ClassSedan,
		Services:      []models.OrderType{typ},
		Online:        true,
		Available:     true,
		LastHeartbeat: time.Now(),
	}
}

func saveOrder(t *testing.T, f *fixture, o *models.Order) {
	t.Helper()
	if err := f.orders.SaveOrder(context.Background(), o); err != nil {
		t.Fatal(err)
	}
}

func TestTransportBroadcastsToRankedSet(t *testing.T) {
	f := newFixture(t,
		kmNorth("near", 2, models.OrderTransport),
		kmNorth("mid", 3, models.OrderTransport),
	)
	saveOrder(t, f, &models.Order{
		ID: "o1", Type: models.OrderTransport, Status: models.StatusPending,
		Pickup: pickup, RequiredClass: models.ClassSedan, RequesterID: "u1",
	})

	res, err := f.engine.Dispatch(context.Background(), DispatchInput{OrderID: "o1"})
	if err != nil {
		t.Fatal(err)
	}
	if res.RadiusUsed != 5 || res.Total != 2 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.AssignedDriverID != "" {
		t.Fatal("broadcast orders must not assign directly")
	}
	if res.Candidates[0].DriverID != "near" {
		t.Fatalf("candidates must come back in rank order, got %s first", res.Candidates[0].DriverID)
	}
	if len(f.queue.batches) != 1 || len(f.queue.batches[0]) != 2 {
		t.Fatalf("expected one batch with both offers, got %+v", f.queue.batches)
	}
	// broadcast does not reserve anybody
	for _, id := range []string{"near", "mid"} {
		if d, _ := f.drivers.Get(id); !d.Available {
			t.Fatalf("driver %s must stay available during broadcast", id)
		}
	}
}

func TestDeliveryAssignsTopCandidate(t *testing.T) {
	f := newFixture(t,
		kmNorth("near", 2, models.OrderDelivery),
		kmNorth("mid", 4, models.OrderDelivery),
	)
	saveOrder(t, f, &models.Order{
		ID: "o1", Type: models.OrderDelivery, Status: models.StatusPending,
		Pickup: pickup, RequiredClass: models.ClassSedan, RequesterID: "u1",
		Delivery: &models.DeliveryDetails{Mode: models.DeliveryStandard},
	})

	res, err := f.engine.Dispatch(context.Background(), DispatchInput{OrderID: "o1"})
	if err != nil {
		t.Fatal(err)
	}
	if res.AssignedDriverID != "near" {
		t.Fatalf("expected the top candidate to win, got %q", res.AssignedDriverID)
	}
	o, _ := f.orders.GetOrder(context.Background(), "o1")
	if o.Status != models.StatusAssigned || o.DriverID != "near" {
		t.Fatalf("order not assigned: %+v", o)
	}
	if d, _ := f.drivers.Get("near"); d.Available {
		t.Fatal("winner must be reserved")
	}
	if d, _ := f.drivers.Get("mid"); !d.Available {
		t.Fatal("runner-up must stay available")
	}
}

func TestDeliveryFallsThroughOnConflict(t *testing.T) {
	top := kmNorth("taken", 2, models.OrderDelivery)
	top.Available = false // lost a race before this attempt landed
	f := newFixture(t, top, kmNorth("backup", 4, models.OrderDelivery))
	saveOrder(t, f, &models.Order{
		ID: "o1", Type: models.OrderDelivery, Status: models.StatusPending,
		Pickup: pickup, RequiredClass: models.ClassSedan, RequesterID: "u1",
	})

	res, err := f.engine.Dispatch(context.Background(), DispatchInput{OrderID: "o1"})
	if err != nil {
		t.Fatal(err)
	}
	if res.AssignedDriverID != "backup" {
		t.Fatalf("expected fall-through to the next candidate, got %q", res.AssignedDriverID)
	}
}

func TestExhaustedSearchIsNoEligibleDrivers(t *testing.T) {
	f := newFixture(t, kmNorth("too-far", 30, models.OrderTransport))
	saveOrder(t, f, &models.Order{
		ID: "o1", Type: models.OrderTransport, Status: models.StatusPending,
		Pickup: pickup, RequiredClass: models.ClassSedan, RequesterID: "u1",
	})
	_, err := f.engine.Dispatch(context.Background(), DispatchInput{OrderID: "o1"})
	if !errors.Is(err, errs.ErrNoEligibleDrivers) {
		t.Fatalf("expected NoEligibleDrivers, got %v", err)
	}
}

func TestUnknownOrder(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Dispatch(context.Background(), DispatchInput{OrderID: "ghost"})
	if !errors.Is(err, errs.ErrOrderNotFound) {
		t.Fatalf("expected OrderNotFound, got %v", err)
	}
}

func TestMissingPickupIsInvalidInput(t *testing.T) {
	f := newFixture(t, kmNorth("d1", 2, models.OrderTransport))
	saveOrder(t, f, &models.Order{
		ID: "o1", Type: models.OrderTransport, Status: models.StatusPending,
		RequiredClass: models.ClassSedan, RequesterID: "u1",
	})
	_, err := f.engine.Dispatch(context.Background(), DispatchInput{OrderID: "o1"})
	if !errors.Is(err, errs.ErrInvalidInput) {
		t.Fatalf("expected InvalidInput, got %v", err)
	}
}

func TestRadiusOverrideCapsLadder(t *testing.T) {
	f := newFixture(t, kmNorth("eight-km", 8, models.OrderTransport))
	saveOrder(t, f, &models.Order{
		ID: "o1", Type: models.OrderTransport, Status: models.StatusPending,
		Pickup: pickup, RequiredClass: models.ClassSedan, RequesterID: "u1",
	})
	_, err := f.engine.Dispatch(context.Background(), DispatchInput{OrderID: "o1", RadiusKm: 5})
	if !errors.Is(err, errs.ErrNoEligibleDrivers) {
		t.Fatalf("capped search must not escalate past 5 km, got %v", err)
	}
	res, err := f.engine.Dispatch(context.Background(), DispatchInput{OrderID: "o1", RadiusKm: 10})
	if err != nil {
		t.Fatal(err)
	}
	if res.RadiusUsed != 10 {
		t.Fatalf("expected radius_used 10, got %f", res.RadiusUsed)
	}
}
