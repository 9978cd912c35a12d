package decision

import (
	"log"

	"github.com/parleylabs/parley/pkg/models"
)

// DefaultOverheadPenalty is the per-leg coordination cost applied when
// evaluating a split order.
const DefaultOverheadPenalty = 0.05

// targetAllocation is a counterparty and its target percentage as
// recommended by the scoring call, before item assignment.
type targetAllocation struct {
	CounterpartyID string
	Percent        float64
}

// evaluateSplit decides whether a recommended multi-counterparty split
// survives its coordination overhead. Each leg's weighted score is penalized
// by the overhead and averaged by allocation percentage; if the best
// single-counterparty score is not strictly beaten, the recommendation is
// overridden to 100% single-counterparty. Splitting must earn its
// coordination cost, not merely tie.
func evaluateSplit(targets []targetAllocation, scores map[string]models.DimensionScores, overheadPenalty float64) []targetAllocation {
	if len(targets) <= 1 {
		return targets
	}

	bestID := ""
	bestScore := 0.0
	for id, s := range scores {
		if bestID == "" || s.Total > bestScore {
			bestID = id
			bestScore = s.Total
		}
	}

	var weighted, totalPct float64
	for _, t := range targets {
		weighted += scores[t.CounterpartyID].Total * (1 - overheadPenalty) * t.Percent
		totalPct += t.Percent
	}
	if totalPct == 0 {
		return []targetAllocation{{CounterpartyID: bestID, Percent: 100}}
	}
	adjusted := weighted / totalPct

	if adjusted > bestScore {
		return targets
	}

	log.Printf("[decision] split overridden: adjusted split score %.2f does not beat single-counterparty %s at %.2f",
		adjusted, bestID, bestScore)
	return []targetAllocation{{CounterpartyID: bestID, Percent: 100}}
}
