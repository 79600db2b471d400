package scoring

import (
	"math"
	"time"

	"cloneguard-lab/internal/domain/models"
)

// neutralScore substitutes every weighted signal when none is available
const neutralScore = 0.5

// Aggregate combines signal results into a report using the weighted average over
// available signals. It never fails: with no usable evidence it reports the neutral
// midpoint and flags the report as insufficient.
func Aggregate(pipeline models.Pipeline, signals map[models.SignalID]models.SignalResult, weights Weights, now time.Time) models.RiskScore {
	var weightedSum, activeWeight, totalWeight float64

	for _, id := range weights.Positive() {
		w, _ := weights.Get(id)
		totalWeight += w

		res, ok := signals[id]
		if !ok || !res.Available || res.Score == nil {
			continue
		}
		weightedSum += clamp(*res.Score, 0, 1) * w
		activeWeight += w
	}

	insufficient := activeWeight == 0
	average := neutralScore
	if !insufficient {
		average = weightedSum / activeWeight
	}

	coverage := 0.0
	if totalWeight > 0 {
		coverage = round(activeWeight/totalWeight, 3)
	}

	score := int(math.Round(100 * average))
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	attached := make(map[models.SignalID]models.SignalResult, len(signals))
	for id, res := range signals {
		attached[id] = res
	}

	return models.RiskScore{
		Pipeline:             pipeline,
		RiskScore:            score,
		Verdict:              models.VerdictFor(score),
		EvidenceCoverage:     coverage,
		InsufficientEvidence: insufficient,
		Signals:              attached,
		GeneratedAt:          now.UTC(),
	}
}
