// Package sweep reclaims orders left unmatched past their type-specific
// timeout. The monitor is invoked on an external schedule and is
// idempotent per order: already-terminal orders are skipped, so repeated
// sweeps are safe.
package sweep

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/example/dispatch-engine/internal/models"
	"github.com/example/dispatch-engine/internal/storage"
)

const Actor = "dispatch-sweep"

// Default staleness thresholds, measured from order creation.
var DefaultMaxAge = map[models.OrderType]time.Duration{
	models.OrderTransport:   30 * time.Minute,
	models.OrderDelivery:    30 * time.Minute,
	models.OrderMarketplace: 24 * time.Hour,
}

// RefundReleaser releases a payment hold back to the requester.
type RefundReleaser interface {
	Release(ctx context.Context, holdID string) error
}

// CancellationNotifier tells the requester (and counterparty) the order
// was reclaimed.
type CancellationNotifier interface {
	Cancelled(ctx context.Context, order *models.Order) error
}

type Monitor struct {
	Orders   storage.OrderStore
	Cancels  storage.CancellationStore
	Notifier CancellationNotifier
	Refunds  RefundReleaser // optional
	MaxAge   map[models.OrderType]time.Duration
	Logger   *slog.Logger
	Now      func() time.Time
}

// Report is the sweep invocation contract's output shape.
type Report struct {
	Cancelled struct {
		Transport   int `json:"transport"`
		Delivery    int `json:"delivery"`
		Marketplace int `json:"marketplace"`
		Total       int `json:"total"`
	} `json:"cancelled"`
	Timestamp time.Time `json:"timestamp"`
}

// Run performs one sweep across all order types.
func (m *Monitor) Run(ctx context.Context) (Report, error) {
	maxAge := m.MaxAge
	if maxAge == nil {
		maxAge = DefaultMaxAge
	}
	now := time.Now
	if m.Now != nil {
		now = m.Now
	}
	at := now()

	var rep Report
	rep.Timestamp = at
	for _, typ := range []models.OrderType{models.OrderTransport, models.OrderDelivery, models.OrderMarketplace} {
		age, ok := maxAge[typ]
		if !ok {
			continue
		}
		n, err := m.sweepType(ctx, typ, at, at.Add(-age))
		if err != nil {
			return rep, err
		}
		switch typ {
		case models.OrderTransport:
			rep.Cancelled.Transport = n
		case models.OrderDelivery:
			rep.Cancelled.Delivery = n
		case models.OrderMarketplace:
			rep.Cancelled.Marketplace = n
		}
		rep.Cancelled.Total += n
	}
	return rep, nil
}

func (m *Monitor) sweepType(ctx context.Context, typ models.OrderType, at, cutoff time.Time) (int, error) {
	stale, err := m.Orders.StaleUnassigned(ctx, typ, cutoff)
	if err != nil {
		return 0, err
	}
	cancelled := 0
	for _, o := range stale {
		priorStatus := o.Status
		updated, ok, err := m.Orders.MarkCancelled(ctx, o.ID, Actor, at)
		if err != nil {
			return cancelled, err
		}
		if !ok {
			// already terminal: another sweep or an assignment won
			continue
		}
		rec := &models.CancellationRecord{
			ID:           uuid.NewString(),
			OrderID:      o.ID,
			Type:         models.CancellationAutoTimeout,
			PriorStatus:  priorStatus,
			Actor:        Actor,
			Currency:     o.Currency,
			RefundStatus: models.RefundNone,
			CreatedAt:    at,
		}
		if o.HoldID != "" {
			rec.RefundAmount = o.EstimatedFare
			rec.RefundStatus = models.RefundPending
			if m.Refunds != nil {
				if err := m.Refunds.Release(ctx, o.HoldID); err != nil && m.Logger != nil {
					m.Logger.Warn("hold release failed", "order_id", o.ID, "hold_id", o.HoldID, "error", err)
				}
			}
		}
		if err := m.Cancels.Append(ctx, rec); err != nil {
			return cancelled, err
		}
		if err := m.Notifier.Cancelled(ctx, updated); err != nil && m.Logger != nil {
			m.Logger.Warn("cancellation notice failed", "order_id", o.ID, "error", err)
		}
		if m.Logger != nil {
			m.Logger.Info("order reclaimed", "order_id", o.ID, "type", typ, "age", at.Sub(o.CreatedAt).String())
		}
		cancelled++
	}
	return cancelled, nil
}
