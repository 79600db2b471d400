package scoring

import (
	"math"

	"cloneguard-lab/internal/domain/models"
)

// Evaluator computes one signal from a slice of evidence.
// Implementations must not depend on other evaluators' output.
type Evaluator interface {
	ID() models.SignalID
	Evaluate(ev *models.Evidence) models.SignalResult
}

// EvaluatorFunc adapts a plain function into an Evaluator
type EvaluatorFunc struct {
	id models.SignalID
	fn func(ev *models.Evidence) models.SignalResult
}

// NewEvaluatorFunc wraps fn as the evaluator for id
func NewEvaluatorFunc(id models.SignalID, fn func(ev *models.Evidence) models.SignalResult) EvaluatorFunc {
	return EvaluatorFunc{id: id, fn: fn}
}

// ID returns the signal id
func (e EvaluatorFunc) ID() models.SignalID { return e.id }

// Evaluate runs the wrapped function
func (e EvaluatorFunc) Evaluate(ev *models.Evidence) models.SignalResult { return e.fn(ev) }

// Available builds a scored result. The score is clamped to [0,1].
func Available(id models.SignalID, score float64, details map[string]any) models.SignalResult {
	if math.IsNaN(score) {
		score = 0
	}
	s := clamp(score, 0, 1)
	return models.SignalResult{
		SignalID:  id,
		Available: true,
		Score:     &s,
		Details:   details,
	}
}

// Unavailable builds a result excluded from aggregation. Details may still carry evidence.
func Unavailable(id models.SignalID, reason string, details map[string]any) models.SignalResult {
	return models.SignalResult{
		SignalID:  id,
		Available: false,
		Reason:    reason,
		Details:   details,
	}
}

func clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

func round(value float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(value*p) / p
}
