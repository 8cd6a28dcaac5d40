// Package scoring ranks eligible candidates by a composite fitness score.
// The ranking drives both direct assignment and broadcast priority.
package scoring

import (
	"sort"
	"time"

	"github.com/example/dispatch-engine/internal/models"
)

// Rank scores every candidate and returns them sorted descending by
// composite score, ties broken by ascending distance.
//
// activity  = max(0, 100 - minutes since last heartbeat)
// proximity = max(0, 100 - distanceKm * 10)
// composite = (activity + proximity) / 2
func Rank(cands []models.Candidate, now time.Time) []models.CandidateScore {
	out := make([]models.CandidateScore, 0, len(cands))
	for _, c := range cands {
		activity := clamp(100 - now.Sub(c.Driver.LastHeartbeat).Minutes())
		proximity := clamp(100 - c.DistanceKm*10)
		out = append(out, models.CandidateScore{
			Driver:     c.Driver,
			DistanceKm: c.DistanceKm,
			Activity:   activity,
			Proximity:  proximity,
			Composite:  (activity + proximity) / 2,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Composite != out[j].Composite {
			return out[i].Composite > out[j].Composite
		}
		return out[i].DistanceKm < out[j].DistanceKm
	})
	return out
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
