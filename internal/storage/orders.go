package storage

import (
	"context"
	"sync"
	"time"

	"github.com/example/dispatch-engine/internal/errs"
	"github.com/example/dispatch-engine/internal/models"
)

// OrderStore defines persistence operations for orders. All mutating
// operations are conditional on the current status so concurrent sweeps
// and assignments cannot double-fire.
type OrderStore interface {
	SaveOrder(ctx context.Context, o *models.Order) error
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	// MarkAssigned sets the driver reference and flips pending -> assigned.
	// Returns errs.ErrAssignmentConflict when the order is no longer
	// pending or already has a driver.
	MarkAssigned(ctx context.Context, id, driverID string, at time.Time) (*models.Order, error)
	// MarkCancelled flips a non-terminal, unassigned-or-assigned order to
	// cancelled. Returns false without error when the order is already
	// terminal, which is what makes the sweep idempotent.
	MarkCancelled(ctx context.Context, id, actor string, at time.Time) (*models.Order, bool, error)
	// SetHold records the payment hold backing the order's fare.
	SetHold(ctx context.Context, id, holdID string) error
	// StaleUnassigned lists orders of one type still pending with no
	// driver, created before the cutoff.
	StaleUnassigned(ctx context.Context, t models.OrderType, before time.Time) ([]*models.Order, error)
}

// CancellationStore appends immutable audit records.
type CancellationStore interface {
	Append(ctx context.Context, rec *models.CancellationRecord) error
}

type MemoryOrderStore struct {
	mu      sync.RWMutex
	orders  map[string]*models.Order
	cancels []*models.CancellationRecord
}

func NewMemoryOrderStore() *MemoryOrderStore {
	return &MemoryOrderStore{orders: make(map[string]*models.Order)}
}

func (m *MemoryOrderStore) SaveOrder(_ context.Context, o *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *o
	m.orders[o.ID] = &cp
	return nil
}

func (m *MemoryOrderStore) GetOrder(_ context.Context, id string) (*models.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, errs.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *MemoryOrderStore) MarkAssigned(_ context.Context, id, driverID string, at time.Time) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, errs.ErrOrderNotFound
	}
	if o.Status != models.StatusPending || o.DriverID != "" {
		return nil, errs.ErrAssignmentConflict
	}
	o.Status = models.StatusAssigned
	o.DriverID = driverID
	t := at
	o.AssignedAt = &t
	cp := *o
	return &cp, nil
}

func (m *MemoryOrderStore) MarkCancelled(_ context.Context, id, actor string, at time.Time) (*models.Order, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, false, errs.ErrOrderNotFound
	}
	if !models.CanTransition(o.Status, models.StatusCancelled) {
		return nil, false, nil
	}
	o.Status = models.StatusCancelled
	t := at
	o.CancelledAt = &t
	_ = actor // the memory store keeps no audit column; the record does
	cp := *o
	return &cp, true, nil
}

func (m *MemoryOrderStore) SetHold(_ context.Context, id, holdID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return errs.ErrOrderNotFound
	}
	o.HoldID = holdID
	return nil
}

func (m *MemoryOrderStore) StaleUnassigned(_ context.Context, t models.OrderType, before time.Time) ([]*models.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Order
	for _, o := range m.orders {
		if o.Type != t || o.Status != models.StatusPending || o.DriverID != "" {
			continue
		}
		if o.CreatedAt.Before(before) {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryOrderStore) Append(_ context.Context, rec *models.CancellationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.cancels = append(m.cancels, &cp)
	return nil
}

// Cancellations exposes the appended records for tests.
func (m *MemoryOrderStore) Cancellations() []*models.CancellationRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.CancellationRecord, len(m.cancels))
	copy(out, m.cancels)
	return out
}
