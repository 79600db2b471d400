package scoring

import (
	"fmt"
	"time"

	"cloneguard-lab/internal/domain/models"
)

// Options configures an Engine
type Options struct {
	Weights              Weights
	Brands               []string
	SensitivePermissions []string
	Hasher               Hasher
	// Now is the clock used for generated_at; defaults to time.Now
	Now func() time.Time
}

// Engine runs evaluators and aggregates their results. It holds only immutable
// configuration, so one Engine can serve any number of concurrent scans.
type Engine struct {
	weights      Weights
	storeWeights Weights
	store        []Evaluator
	deep         []Evaluator
	brands       []string
	now          func() time.Time
}

// NewEngine validates opts and builds the evaluator sets for both pipelines
func NewEngine(opts Options) (*Engine, error) {
	if opts.Weights.Len() == 0 {
		opts.Weights = DefaultWeights()
	}
	storeWeights, err := opts.Weights.Subset(models.StoreSignals...)
	if err != nil {
		return nil, fmt.Errorf("store weight subset: %w", err)
	}

	brands := opts.Brands
	if len(brands) == 0 {
		brands = DefaultBrands
	}
	sensitive := opts.SensitivePermissions
	if len(sensitive) == 0 {
		sensitive = DefaultSensitivePermissions
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	store := []Evaluator{
		packageLabelSimilarity(brands),
		reviewHistogramShape(),
		installsVsRatings(),
		developerPresence(),
	}
	deep := append(append([]Evaluator{}, store...),
		permissionRisk(sensitive),
		iconPerceptualHash(opts.Hasher),
		certificateFingerprint(),
		urlExtraction(),
	)

	return &Engine{
		weights:      opts.Weights,
		storeWeights: storeWeights,
		store:        store,
		deep:         deep,
		brands:       append([]string(nil), brands...),
		now:          now,
	}, nil
}

// Weights returns the full weight table
func (e *Engine) Weights() Weights {
	return e.weights
}

// Brands returns a copy of the brand list used by the label signal
func (e *Engine) Brands() []string {
	return append([]string(nil), e.brands...)
}

// ScoreFromStoreMetadata runs the store-only pipeline
func (e *Engine) ScoreFromStoreMetadata(record *models.StoreRecord) models.RiskScore {
	ev := &models.Evidence{Store: record}
	return Aggregate(models.PipelineStoreOnly, e.run(e.store, ev), e.storeWeights, e.now())
}

// ScoreFromPackageEvidence runs the package-deep pipeline. Store metadata and a
// reference in ev are used when present.
func (e *Engine) ScoreFromPackageEvidence(ev *models.Evidence) models.RiskScore {
	if ev == nil {
		ev = &models.Evidence{}
	}
	return Aggregate(models.PipelinePackageDeep, e.run(e.deep, ev), e.weights, e.now())
}

func (e *Engine) run(evaluators []Evaluator, ev *models.Evidence) map[models.SignalID]models.SignalResult {
	results := make(map[models.SignalID]models.SignalResult, len(evaluators))
	for _, eval := range evaluators {
		results[eval.ID()] = evaluate(eval, ev)
	}
	return results
}

// evaluate contains a failing evaluator so it only loses its own signal
func evaluate(eval Evaluator, ev *models.Evidence) (res models.SignalResult) {
	defer func() {
		if r := recover(); r != nil {
			res = Unavailable(eval.ID(), fmt.Sprintf("evaluator failure: %v", r), nil)
		}
	}()
	res = eval.Evaluate(ev)
	res.SignalID = eval.ID()
	if !res.Available {
		res.Score = nil
	}
	return res
}
