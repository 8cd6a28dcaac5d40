package geo

import (
	"context"
	"time"

	"github.com/example/dispatch-engine/internal/models"
)

// DefaultFreshness is how recent a driver's heartbeat must be before the
// record is trusted for matching. Older rows are treated as offline even
// when the online flag says otherwise.
const DefaultFreshness = 10 * time.Minute

// Locator finds online, fresh drivers within a radius of a pickup point
// and annotates each with its haversine distance. It has no side effects.
type Locator struct {
	Index     DriverIndex
	Freshness time.Duration
	Now       func() time.Time
}

func NewLocator(idx DriverIndex) *Locator {
	return &Locator{Index: idx, Freshness: DefaultFreshness, Now: time.Now}
}

// Nearby returns the candidate set within radiusKm of pickup. A missing
// pickup coordinate yields an empty set, not an error: callers own input
// validation and an unanchored search has no meaningful answer.
func (l *Locator) Nearby(ctx context.Context, pickup models.Coord, radiusKm float64) ([]models.Candidate, error) {
	if !pickup.Valid() {
		return nil, nil
	}
	rows, err := l.Index.Within(ctx, pickup, radiusKm)
	if err != nil {
		return nil, err
	}
	now := l.Now()
	out := make([]models.Candidate, 0, len(rows))
	for _, d := range rows {
		if !d.Online {
			continue
		}
		if now.Sub(d.LastHeartbeat) > l.Freshness {
			continue
		}
		dist := HaversineKm(pickup, d.Loc)
		if dist > radiusKm {
			continue
		}
		out = append(out, models.Candidate{Driver: d, DistanceKm: dist})
	}
	return out, nil
}
