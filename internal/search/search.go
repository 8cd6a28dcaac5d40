// Package search implements the cascading radius search: locate, filter
// and rank at each radius step, stopping at the first non-empty result.
package search

import (
	"context"
	"log/slog"
	"time"

	"github.com/example/dispatch-engine/internal/eligibility"
	"github.com/example/dispatch-engine/internal/geo"
	"github.com/example/dispatch-engine/internal/models"
	"github.com/example/dispatch-engine/internal/scoring"
)

// State names where a search ended. There is no implicit fallback: an
// Exhausted search stays exhausted until a caller starts a fresh one.
type State int

const (
	Searching State = iota
	Found
	Exhausted
)

func (s State) String() string {
	switch s {
	case Searching:
		return "searching"
	case Found:
		return "found"
	case Exhausted:
		return "exhausted"
	}
	return "unknown"
}

// Result carries the terminal state of one controller run. RadiusKm is
// the radius at which candidates were found (client-facing messaging
// uses it: "found within 10 km").
type Result struct {
	State    State
	RadiusKm float64
	Ranked   []models.CandidateScore
}

// DefaultRadiiKm is the standard escalation ladder.
var DefaultRadiiKm = []float64{5, 10, 15, 20}

type Controller struct {
	Locator *geo.Locator
	Filter  *eligibility.Filter
	RadiiKm []float64
	Logger  *slog.Logger
	Now     func() time.Time
}

// Run walks the radius ladder for the order. It exits at the first radius
// that produces a non-empty ranked set; when the ladder is exhausted the
// result state is Exhausted and the caller decides whether a fresh search
// happens. The controller never retries on its own.
func (c *Controller) Run(ctx context.Context, order *models.Order) (Result, error) {
	radii := c.RadiiKm
	if len(radii) == 0 {
		radii = DefaultRadiiKm
	}
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	for _, radius := range radii {
		cands, err := c.Locator.Nearby(ctx, order.Pickup, radius)
		if err != nil {
			return Result{State: Searching, RadiusKm: radius}, err
		}
		cands, err = c.Filter.Apply(ctx, order, cands)
		if err != nil {
			return Result{State: Searching, RadiusKm: radius}, err
		}
		ranked := scoring.Rank(cands, now())
		if len(ranked) > 0 {
			if c.Logger != nil {
				c.Logger.Info("candidates found", "order_id", order.ID, "radius_km", radius, "count", len(ranked))
			}
			return Result{State: Found, RadiusKm: radius, Ranked: ranked}, nil
		}
	}
	if c.Logger != nil {
		c.Logger.Info("search exhausted", "order_id", order.ID, "radius_ceiling_km", radii[len(radii)-1])
	}
	return Result{State: Exhausted, RadiusKm: radii[len(radii)-1]}, nil
}
