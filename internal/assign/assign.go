// Package assign reserves exactly one driver for one order. The driver
// side is a compare-and-set on the available flag; the order side is a
// conditional status update; a failed order update rolls the reservation
// back so the driver is never stranded as falsely unavailable.
package assign

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/dispatch-engine/internal/errs"
	"github.com/example/dispatch-engine/internal/models"
	"github.com/example/dispatch-engine/internal/storage"
)

// HoldPlacer places a manual-capture payment hold for the fare estimate.
// Optional; assignment succeeds without one.
type HoldPlacer interface {
	Hold(ctx context.Context, amount int64, currency, customerID string) (string, error)
}

type Coordinator struct {
	Drivers storage.DriverReserver
	Orders  storage.OrderStore
	Holds   HoldPlacer // optional
	Logger  *slog.Logger
	Now     func() time.Time
}

// Assign attempts to reserve driverID for orderID. On a lost race it
// returns errs.ErrAssignmentConflict and the caller should advance to the
// next ranked candidate; it never retries the same driver.
func (c *Coordinator) Assign(ctx context.Context, orderID, driverID string) (*models.Order, error) {
	if orderID == "" || driverID == "" {
		return nil, errs.Invalid("order_id/driver_id", "must not be empty")
	}
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}

	ok, err := c.Drivers.Reserve(ctx, driverID)
	if err != nil {
		return nil, errs.Persistence("reserve driver", err)
	}
	if !ok {
		return nil, fmt.Errorf("driver %s: %w", driverID, errs.ErrAssignmentConflict)
	}

	order, err := c.Orders.MarkAssigned(ctx, orderID, driverID, now())
	if err != nil {
		// compensate before propagating so the driver is not stranded
		if relErr := c.Drivers.Release(ctx, driverID); relErr != nil && c.Logger != nil {
			c.Logger.Error("rollback release failed", "driver_id", driverID, "error", relErr)
		}
		return nil, err
	}

	if c.Holds != nil && order.EstimatedFare > 0 {
		// best effort: a missing hold is settled at trip end instead
		if holdID, err := c.Holds.Hold(ctx, order.EstimatedFare, order.Currency, order.RequesterID); err == nil {
			order.HoldID = holdID
			if err := c.Orders.SetHold(ctx, orderID, holdID); err != nil && c.Logger != nil {
				c.Logger.Warn("persisting fare hold failed", "order_id", orderID, "error", err)
			}
		} else if c.Logger != nil {
			c.Logger.Warn("fare hold failed", "order_id", orderID, "error", err)
		}
	}

	if c.Logger != nil {
		c.Logger.Info("order assigned", "order_id", orderID, "driver_id", driverID)
	}
	return order, nil
}
