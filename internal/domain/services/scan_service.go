package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"cloneguard-lab/internal/domain/models"
	"cloneguard-lab/internal/domain/scoring"
	"cloneguard-lab/internal/infrastructure/database/repository"
	"cloneguard-lab/internal/inspector"
	"cloneguard-lab/internal/metrics"
	"cloneguard-lab/internal/sources"
	"cloneguard-lab/pkg/logger"
)

// minBrandGuessScore is how close a title word must be to a brand before its reference is used
const minBrandGuessScore = 0.8

// ReferenceStore looks up known-good apps
type ReferenceStore interface {
	Get(ctx context.Context, packageName string) (*models.Reference, error)
	FindByBrand(ctx context.Context, brand string) (*models.Reference, error)
}

// ReportCache stores reports by evidence digest
type ReportCache interface {
	GetReport(ctx context.Context, digest string) (*models.RiskScore, bool, error)
	SetReport(ctx context.Context, digest string, score *models.RiskScore) error
}

// EventPublisher announces finished scans
type EventPublisher interface {
	PublishScanCompleted(ctx context.Context, result *models.ScanResult) error
}

// ScanDependencies are the collaborators of a ScanService. Only Engine is required.
type ScanDependencies struct {
	Engine     *scoring.Engine
	Fetcher    sources.StoreFetcher
	Inspector  inspector.Inspector
	References ReferenceStore
	Cache      ReportCache
	Events     EventPublisher
	Metrics    *metrics.Metrics
}

// PackageScanOptions tunes a package scan
type PackageScanOptions struct {
	// StoreID optionally names the store listing to fetch alongside the package
	StoreID string
	// ReferencePackage forces the known-good app to compare against
	ReferencePackage string
}

// ScanService gathers evidence, scores it and distributes the result
type ScanService struct {
	engine     *scoring.Engine
	fetcher    sources.StoreFetcher
	inspector  inspector.Inspector
	references ReferenceStore
	cache      ReportCache
	events     EventPublisher
	metrics    *metrics.Metrics
	logger     *logger.Logger
}

// NewScanService creates a new scan service
func NewScanService(deps ScanDependencies, log *logger.Logger) *ScanService {
	return &ScanService{
		engine:     deps.Engine,
		fetcher:    deps.Fetcher,
		inspector:  deps.Inspector,
		references: deps.References,
		cache:      deps.Cache,
		events:     deps.Events,
		metrics:    deps.Metrics,
		logger:     log.WithComponent("scan-service"),
	}
}

// Engine returns the scoring engine
func (s *ScanService) Engine() *scoring.Engine {
	return s.engine
}

// ScanStore scores an app from its store listing only
func (s *ScanService) ScanStore(ctx context.Context, idOrURL string) (*models.ScanResult, error) {
	if s.fetcher == nil {
		return nil, fmt.Errorf("store fetcher not configured: %w", sources.ErrStoreRecordUnavailable)
	}

	start := time.Now()
	rec, err := s.fetcher.Fetch(ctx, idOrURL)
	if err != nil {
		return nil, err
	}

	return s.score(ctx, models.PipelineStoreOnly, &models.Evidence{Store: rec}, start)
}

// ScanPackage inspects a package and, concurrently, fetches its store listing when opts.StoreID is set.
// Only an inspection failure fails the scan.
func (s *ScanService) ScanPackage(ctx context.Context, r io.ReaderAt, size int64, opts PackageScanOptions) (*models.ScanResult, error) {
	if s.inspector == nil {
		return nil, errors.New("package inspector not configured")
	}

	start := time.Now()
	var (
		pkg   *models.PackageEvidence
		store *models.StoreRecord
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ev, err := s.inspector.Inspect(gctx, r, size)
		if err != nil {
			return err
		}
		pkg = ev
		return nil
	})
	if opts.StoreID != "" && s.fetcher != nil {
		g.Go(func() error {
			rec, err := s.fetcher.Fetch(gctx, opts.StoreID)
			if err != nil {
				s.logger.Warn().Err(err).Str("store_id", opts.StoreID).Msg("store listing unavailable, continuing without it")
				return nil
			}
			store = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ev := &models.Evidence{Store: store, Package: pkg}
	ev.Reference = s.lookupReference(ctx, opts.ReferencePackage, pkg.Package, ev.Title())

	result, err := s.score(ctx, models.PipelinePackageDeep, ev, start)
	if err != nil {
		return nil, err
	}
	result.APK = pkg
	return result, nil
}

// ScanEvidence scores caller-supplied evidence. A store record on its own goes
// through the store-only pipeline; anything else is scored deep.
func (s *ScanService) ScanEvidence(ctx context.Context, ev *models.Evidence) (*models.ScanResult, error) {
	if ev == nil {
		ev = &models.Evidence{}
	}
	pipeline := models.PipelinePackageDeep
	if ev.Store != nil && ev.Package == nil && ev.Reference == nil {
		pipeline = models.PipelineStoreOnly
	}
	return s.score(ctx, pipeline, ev, time.Now())
}

func (s *ScanService) score(ctx context.Context, pipeline models.Pipeline, ev *models.Evidence, start time.Time) (*models.ScanResult, error) {
	result := &models.ScanResult{
		ScanID:  uuid.New(),
		Package: ev.AppID(),
	}
	log := s.logger.WithScanID(result.ScanID.String())

	digest, err := EvidenceDigest(pipeline, ev)
	if err != nil {
		return nil, err
	}

	if cached, ok := s.cachedReport(ctx, digest); ok {
		s.metrics.CacheHit()
		result.Cached = true
		result.Score = *cached
		log.Debug().Str("digest", digest).Msg("report served from cache")
		s.finish(ctx, result, start)
		return result, nil
	}

	switch pipeline {
	case models.PipelineStoreOnly:
		result.Score = s.engine.ScoreFromStoreMetadata(ev.Store)
	default:
		result.Score = s.engine.ScoreFromPackageEvidence(ev)
	}

	if s.cache != nil {
		if err := s.cache.SetReport(ctx, digest, &result.Score); err != nil {
			log.Warn().Err(err).Msg("failed to cache report")
		}
	}

	log.Info().
		Str("package", result.Package).
		Str("pipeline", string(pipeline)).
		Int("risk_score", result.Score.RiskScore).
		Str("verdict", string(result.Score.Verdict)).
		Float64("coverage", result.Score.EvidenceCoverage).
		Msg("scan scored")

	s.finish(ctx, result, start)
	return result, nil
}

func (s *ScanService) finish(ctx context.Context, result *models.ScanResult, start time.Time) {
	s.metrics.ObserveScan(&result.Score, time.Since(start))
	if s.events == nil {
		return
	}
	if err := s.events.PublishScanCompleted(ctx, result); err != nil {
		s.logger.Warn().Err(err).Str("scan_id", result.ScanID.String()).Msg("failed to publish scan event")
	}
}

func (s *ScanService) cachedReport(ctx context.Context, digest string) (*models.RiskScore, bool) {
	if s.cache == nil {
		return nil, false
	}
	score, ok, err := s.cache.GetReport(ctx, digest)
	if err != nil {
		s.logger.Warn().Err(err).Msg("report cache unavailable")
		return nil, false
	}
	return score, ok
}

// lookupReference tries the explicit package, then the scanned package, then the best brand in the title
func (s *ScanService) lookupReference(ctx context.Context, explicit, packageName, title string) *models.Reference {
	if s.references == nil {
		return nil
	}

	for _, name := range []string{explicit, packageName} {
		if name == "" {
			continue
		}
		ref, err := s.references.Get(ctx, name)
		if err == nil {
			return ref
		}
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn().Err(err).Str("package", name).Msg("reference lookup failed")
		}
	}

	match := scoring.BestBrand(title, s.engine.Brands())
	if match.Brand == "" || match.Score < minBrandGuessScore {
		return nil
	}
	ref, err := s.references.FindByBrand(ctx, match.Brand)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn().Err(err).Str("brand", match.Brand).Msg("reference lookup failed")
		}
		return nil
	}
	return ref
}

// EvidenceDigest is the cache key of evidence under a pipeline. The inspection
// timestamp is excluded so re-uploads of the same package hit the cache.
func EvidenceDigest(pipeline models.Pipeline, ev *models.Evidence) (string, error) {
	canonical := *ev
	if ev.Package != nil {
		pkg := *ev.Package
		pkg.AnalysisGeneratedAt = time.Time{}
		canonical.Package = &pkg
	}

	data, err := json.Marshal(canonical)
	if err != nil {
		return "", fmt.Errorf("failed to encode evidence: %w", err)
	}

	h := sha256.New()
	h.Write([]byte(pipeline))
	h.Write([]byte{0})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil)), nil
}
