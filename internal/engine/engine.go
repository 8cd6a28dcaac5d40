// Package engine ties one dispatch attempt together: load the order, run
// the cascading search, then either broadcast offers or directly assign
// the top candidate depending on the order type.
package engine

import (
	"context"
	"errors"
	"log/slog"

	"github.com/example/dispatch-engine/internal/assign"
	"github.com/example/dispatch-engine/internal/errs"
	"github.com/example/dispatch-engine/internal/eta"
	"github.com/example/dispatch-engine/internal/models"
	"github.com/example/dispatch-engine/internal/notify"
	"github.com/example/dispatch-engine/internal/observability"
	"github.com/example/dispatch-engine/internal/search"
	"github.com/example/dispatch-engine/internal/storage"
)

type Engine struct {
	Orders   storage.OrderStore
	Search   *search.Controller
	Assigner *assign.Coordinator
	Notify   *notify.Dispatcher
	ETA      *eta.Estimator
	Logger   *slog.Logger

	// MaxCandidates caps the candidate list in the response and the
	// broadcast fan-out.
	MaxCandidates int
}

// DispatchInput mirrors the dispatch invocation contract. Pickup and
// RadiusKm are optional overrides: a valid Pickup replaces the stored
// coordinate, a positive RadiusKm caps the escalation ladder.
type DispatchInput struct {
	OrderID       string       `json:"order_id"`
	Pickup        models.Coord `json:"pickup_coord"`
	RadiusKm      float64      `json:"radius_km"`
	MaxCandidates int          `json:"max_candidates"`
}

type DispatchCandidate struct {
	DriverID      string  `json:"driver_id"`
	DistanceKm    float64 `json:"distance_km"`
	EstArrivalMin float64 `json:"estimated_arrival_min"`
	Score         float64 `json:"score"`
}

type DispatchResult struct {
	Candidates []DispatchCandidate `json:"candidates"`
	RadiusUsed float64             `json:"radius_used"`
	Total      int                 `json:"total"`
	// AssignedDriverID is set for direct-assign order types.
	AssignedDriverID string `json:"assigned_driver_id,omitempty"`
}

// Dispatch strategy per order type: transport orders broadcast to the
// whole ranked set and the first driver to accept wins; delivery and
// marketplace orders assign the top candidate directly, falling through
// to the next candidate when a reservation is lost.
func (e *Engine) Dispatch(ctx context.Context, in DispatchInput) (*DispatchResult, error) {
	if in.OrderID == "" {
		return nil, errs.Invalid("order_id", "must not be empty")
	}
	order, err := e.Orders.GetOrder(ctx, in.OrderID)
	if err != nil {
		return nil, err
	}
	if order.Status != models.StatusPending {
		return nil, errs.Invalid("order", "is not pending")
	}
	if in.Pickup.Valid() {
		order.Pickup = in.Pickup
	}
	if !order.Pickup.Valid() {
		return nil, errs.Invalid("pickup_coord", "is missing or malformed")
	}

	ctrl := e.Search
	if in.RadiusKm > 0 {
		capped := *e.Search
		capped.RadiiKm = capRadii(e.Search.RadiiKm, in.RadiusKm)
		ctrl = &capped
	}
	res, err := ctrl.Run(ctx, order)
	if err != nil {
		return nil, err
	}
	observability.SearchRadiusUsed.Observe(res.RadiusKm)
	if res.State == search.Exhausted {
		observability.SearchesExhausted.Inc()
		return nil, errs.ErrNoEligibleDrivers
	}

	limit := e.MaxCandidates
	if in.MaxCandidates > 0 && in.MaxCandidates < limit {
		limit = in.MaxCandidates
	}
	ranked := res.Ranked
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}

	out := &DispatchResult{RadiusUsed: res.RadiusKm, Total: len(ranked)}
	for _, c := range ranked {
		dc := DispatchCandidate{DriverID: c.Driver.DriverID, DistanceKm: c.DistanceKm, Score: c.Composite}
		if e.ETA != nil {
			dc.EstArrivalMin = e.ETA.Minutes(c.Driver.Loc, order.Pickup)
		}
		out.Candidates = append(out.Candidates, dc)
	}

	switch order.Type {
	case models.OrderTransport:
		if err := e.Notify.Offer(ctx, order, ranked); err != nil {
			return nil, errs.Persistence("enqueue offers", err)
		}
	default:
		winner, err := e.assignFirst(ctx, order, ranked)
		if err != nil {
			return nil, err
		}
		out.AssignedDriverID = winner
	}
	observability.MatchesTotal.Inc()
	return out, nil
}

// assignFirst walks the ranked list until a reservation sticks. Conflicts
// are invisible to the requester unless the whole list is exhausted, at
// which point the call degrades to "no drivers available".
func (e *Engine) assignFirst(ctx context.Context, order *models.Order, ranked []models.CandidateScore) (string, error) {
	for i, c := range ranked {
		assigned, err := e.Assigner.Assign(ctx, order.ID, c.Driver.DriverID)
		if errors.Is(err, errs.ErrAssignmentConflict) {
			observability.AssignmentConflicts.Inc()
			if e.Logger != nil {
				e.Logger.Debug("candidate lost race", "order_id", order.ID, "driver_id", c.Driver.DriverID, "rank", i)
			}
			continue
		}
		if err != nil {
			return "", err
		}
		if err := e.Notify.Offer(ctx, assigned, ranked[i:i+1]); err != nil && e.Logger != nil {
			e.Logger.Warn("assignee alert enqueue failed", "order_id", order.ID, "error", err)
		}
		return c.Driver.DriverID, nil
	}
	return "", errs.ErrNoEligibleDrivers
}

func capRadii(radii []float64, maxKm float64) []float64 {
	if len(radii) == 0 {
		radii = search.DefaultRadiiKm
	}
	out := make([]float64, 0, len(radii))
	for _, r := range radii {
		if r <= maxKm {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		out = []float64{maxKm}
	}
	return out
}
