// Package notify builds outbound alert payloads and enqueues them. The
// enqueue is at-least-once; consumers are assumed idempotent, and driver
// accept/reject handling lives outside this process.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/example/dispatch-engine/internal/models"
)

// Offer TTLs per vertical. After expiry the alert is no longer actionable
// on the driver's device.
const (
	TransportOfferTTL = 60 * time.Second
	DeliveryOfferTTL  = 90 * time.Second
)

// AlertQueue persists a batch of alerts in one write.
type AlertQueue interface {
	EnqueueBatch(ctx context.Context, alerts []models.NotificationAlert) error
}

// Pusher delivers an alert to a live driver session, when one exists.
type Pusher interface {
	Push(driverID string, alert models.NotificationAlert) error
}

type Dispatcher struct {
	Queue  AlertQueue
	Push   Pusher // optional websocket fast path
	Logger *slog.Logger
	Now    func() time.Time
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// OfferTTL returns the per-type actionability window for offers.
func OfferTTL(t models.OrderType) time.Duration {
	if t == models.OrderTransport {
		return TransportOfferTTL
	}
	return DeliveryOfferTTL
}

// BuildOffers creates one alert per ranked candidate, in rank order.
func (d *Dispatcher) BuildOffers(order *models.Order, ranked []models.CandidateScore) []models.NotificationAlert {
	now := d.now()
	expiry := now.Add(OfferTTL(order.Type))
	alerts := make([]models.NotificationAlert, 0, len(ranked))
	for _, c := range ranked {
		alerts = append(alerts, models.NotificationAlert{
			ID:        uuid.NewString(),
			DriverID:  c.Driver.DriverID,
			OrderID:   order.ID,
			Message:   offerMessage(order, c.DistanceKm),
			Priority:  models.PriorityHigh,
			ExpiresAt: expiry,
		})
	}
	return alerts
}

func offerMessage(order *models.Order, distKm float64) string {
	switch order.Type {
	case models.OrderTransport:
		return fmt.Sprintf("New ride request %.1f km away", distKm)
	case models.OrderDelivery:
		mode := models.DeliveryStandard
		if order.Delivery != nil {
			mode = order.Delivery.Mode
		}
		return fmt.Sprintf("New %s delivery %.1f km away", mode, distKm)
	case models.OrderMarketplace:
		return fmt.Sprintf("New marketplace pickup %.1f km away", distKm)
	}
	return fmt.Sprintf("New order %.1f km away", distKm)
}

// Offer enqueues the alerts for the target set in a single batched write
// and pushes each over a live session when one exists. Fire-and-forget:
// push failures are logged, not propagated.
func (d *Dispatcher) Offer(ctx context.Context, order *models.Order, ranked []models.CandidateScore) error {
	alerts := d.BuildOffers(order, ranked)
	if len(alerts) == 0 {
		return nil
	}
	if err := d.Queue.EnqueueBatch(ctx, alerts); err != nil {
		return err
	}
	if d.Push != nil {
		for _, a := range alerts {
			if err := d.Push.Push(a.DriverID, a); err != nil && d.Logger != nil {
				d.Logger.Debug("no live session", "driver_id", a.DriverID)
			}
		}
	}
	return nil
}

// Remind enqueues a standing/balance reminder to a driver excluded by an
// eligibility check. Implements eligibility.ReminderSink.
func (d *Dispatcher) Remind(ctx context.Context, driverID, orderID, reason string) {
	alert := models.NotificationAlert{
		ID:        uuid.NewString(),
		DriverID:  driverID,
		OrderID:   orderID,
		Message:   reminderMessage(reason),
		Priority:  models.PriorityNormal,
		ExpiresAt: d.now().Add(24 * time.Hour),
	}
	if err := d.Queue.EnqueueBatch(ctx, []models.NotificationAlert{alert}); err != nil && d.Logger != nil {
		d.Logger.Warn("reminder enqueue failed", "driver_id", driverID, "error", err)
	}
}

func reminderMessage(reason string) string {
	switch reason {
	case "account_suspended":
		return "Your account is suspended. Contact support to resume receiving orders."
	case "unpaid_obligations":
		return "You have unpaid obligations. Settle them to resume receiving orders."
	case "low_balance":
		return "Your wallet balance is below the minimum. Top up to resume receiving orders."
	}
	return "Your account needs attention before you can receive orders."
}

// Cancelled notifies the order's requester, and the counterparty for
// marketplace orders, that the order was reclaimed.
func (d *Dispatcher) Cancelled(ctx context.Context, order *models.Order) error {
	now := d.now()
	msg := fmt.Sprintf("Your %s order could not be matched and was cancelled. Please try again.", order.Type)
	alerts := []models.NotificationAlert{{
		ID:        uuid.NewString(),
		DriverID:  order.RequesterID,
		OrderID:   order.ID,
		Message:   msg,
		Priority:  models.PriorityNormal,
		ExpiresAt: now.Add(24 * time.Hour),
	}}
	if cp := order.Counterparty(); cp != "" {
		alerts = append(alerts, models.NotificationAlert{
			ID:        uuid.NewString(),
			DriverID:  cp,
			OrderID:   order.ID,
			Message:   msg,
			Priority:  models.PriorityNormal,
			ExpiresAt: now.Add(24 * time.Hour),
		})
	}
	return d.Queue.EnqueueBatch(ctx, alerts)
}
