// Package eligibility applies the hard constraints a driver must satisfy
// to be considered for an order at all, independent of ranking.
package eligibility

import (
	"context"
	"log/slog"

	"github.com/example/dispatch-engine/internal/models"
	"github.com/example/dispatch-engine/internal/storage"
	"github.com/example/dispatch-engine/internal/wallet"
)

// ReminderSink receives the side-effect alerts emitted when a trust or
// balance check excludes a driver. Delivery is fire-and-forget.
type ReminderSink interface {
	Remind(ctx context.Context, driverID, orderID, reason string)
}

const (
	ReasonSuspended         = "account_suspended"
	ReasonUnpaidObligations = "unpaid_obligations"
	ReasonLowBalance        = "low_balance"
)

type Filter struct {
	Trust     storage.TrustSource
	Wallet    wallet.BalanceSource
	Reminders ReminderSink
	Logger    *slog.Logger

	MinBalance int64 // wallet floor in currency units
	MaxUnpaid  int   // obligations above this exclude the driver
}

// Apply prunes the candidate set for the order. Capability and vehicle
// class are strict boundaries. The trust, obligation and balance checks
// short-circuit per driver: the first failing check excludes the driver
// and emits its reminder without evaluating the rest.
func (f *Filter) Apply(ctx context.Context, order *models.Order, cands []models.Candidate) ([]models.Candidate, error) {
	needed, hasClass := order.NeededClass()
	out := make([]models.Candidate, 0, len(cands))
	for _, c := range cands {
		d := c.Driver
		if !d.Serves(order.Type) {
			continue
		}
		if hasClass && d.Class != needed {
			continue
		}
		ok, err := f.passesStanding(ctx, order.ID, d.DriverID)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (f *Filter) passesStanding(ctx context.Context, orderID, driverID string) (bool, error) {
	st, err := f.Trust.TrustStatus(ctx, driverID)
	if err != nil {
		return false, err
	}
	if st.Suspended {
		f.remind(ctx, driverID, orderID, ReasonSuspended)
		return false, nil
	}
	if st.UnpaidCount > f.MaxUnpaid {
		f.remind(ctx, driverID, orderID, ReasonUnpaidObligations)
		return false, nil
	}
	bal, err := f.Wallet.Balance(ctx, driverID)
	if err != nil {
		return false, err
	}
	if bal.Amount < f.MinBalance {
		f.remind(ctx, driverID, orderID, ReasonLowBalance)
		return false, nil
	}
	return true, nil
}

func (f *Filter) remind(ctx context.Context, driverID, orderID, reason string) {
	if f.Reminders == nil {
		return
	}
	f.Reminders.Remind(ctx, driverID, orderID, reason)
	if f.Logger != nil {
		f.Logger.Debug("driver excluded", "driver_id", driverID, "order_id", orderID, "reason", reason)
	}
}
