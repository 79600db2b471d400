package scoring

import (
	"errors"
	"fmt"
	"sort"

	"cloneguard-lab/internal/domain/models"
)

// ErrNoPositiveWeight is returned when a weight table cannot produce any average
var ErrNoPositiveWeight = errors.New("weight table has no positive weight")

// ConfigurationError reports an invalid weight table. It is fatal at startup.
type ConfigurationError struct {
	Signal models.SignalID
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Signal != "" {
		return fmt.Sprintf("scoring configuration: signal %q: %v", e.Signal, e.Err)
	}
	return fmt.Sprintf("scoring configuration: %v", e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// Weights maps signal ids to relative importance. The zero value is unusable;
// build one with NewWeights. A Weights value is never modified after construction.
type Weights struct {
	entries map[models.SignalID]float64
}

// DefaultWeightMap is the stock table
func DefaultWeightMap() map[models.SignalID]float64 {
	return map[models.SignalID]float64{
		models.SignalIconPerceptualHash:     0.30,
		models.SignalPackageLabelSimilarity: 0.25,
		models.SignalCertificateFingerprint: 0.20,
		models.SignalReviewHistogramShape:   0.15,
		models.SignalDeveloperPresence:      0.10,
		models.SignalInstallsVsRatings:      0.10,
		models.SignalPermissionRisk:         0.10,
		models.SignalURLExtraction:          0,
	}
}

// DefaultWeights returns the stock table
func DefaultWeights() Weights {
	w, err := NewWeights(DefaultWeightMap())
	if err != nil {
		panic(err)
	}
	return w
}

// NewWeights validates and copies m
func NewWeights(m map[models.SignalID]float64) (Weights, error) {
	entries := make(map[models.SignalID]float64, len(m))
	positive := false
	for id, w := range m {
		if w < 0 {
			return Weights{}, &ConfigurationError{Signal: id, Err: fmt.Errorf("negative weight %v", w)}
		}
		if w > 0 {
			positive = true
		}
		entries[id] = w
	}
	if !positive {
		return Weights{}, &ConfigurationError{Err: ErrNoPositiveWeight}
	}
	return Weights{entries: entries}, nil
}

// Get returns the weight for id and whether it is configured
func (w Weights) Get(id models.SignalID) (float64, bool) {
	v, ok := w.entries[id]
	return v, ok
}

// Positive returns the ids with weight > 0, sorted for deterministic iteration
func (w Weights) Positive() []models.SignalID {
	ids := make([]models.SignalID, 0, len(w.entries))
	for id, v := range w.entries {
		if v > 0 {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Subset returns a table restricted to ids. It fails if no selected entry is positive.
func (w Weights) Subset(ids ...models.SignalID) (Weights, error) {
	m := make(map[models.SignalID]float64, len(ids))
	for _, id := range ids {
		if v, ok := w.entries[id]; ok {
			m[id] = v
		}
	}
	return NewWeights(m)
}

// Map returns a copy of the table
func (w Weights) Map() map[models.SignalID]float64 {
	m := make(map[models.SignalID]float64, len(w.entries))
	for id, v := range w.entries {
		m[id] = v
	}
	return m
}

// Len returns the number of configured entries
func (w Weights) Len() int {
	return len(w.entries)
}
