package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"

	"cloneguard-lab/internal/domain/models"
	"cloneguard-lab/internal/domain/services"
	"cloneguard-lab/internal/evidence"
	"cloneguard-lab/pkg/logger"
)

// Pinger is a backend whose liveness is reported by /ready
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReferenceRegistry reads and writes known-good apps
type ReferenceRegistry interface {
	Get(ctx context.Context, packageName string) (*models.Reference, error)
	Upsert(ctx context.Context, ref *models.Reference) error
}

// EvidenceWriter persists evidence kits
type EvidenceWriter interface {
	Write(report map[string]any) (*evidence.Kit, error)
}

// Handlers holds all API handlers
type Handlers struct {
	Health     *HealthHandler
	Scan       *ScanHandler
	References *ReferencesHandler
	Evidence   *EvidenceHandler
	Scoring    *ScoringHandler
}

// Dependencies holds dependencies for handlers. Nil backends are reported as not configured.
type Dependencies struct {
	Scans          *services.ScanService
	References     ReferenceRegistry
	Evidence       EvidenceWriter
	Cache          Pinger
	Database       Pinger
	MaxUploadBytes int64
	Version        string
	Logger         *logger.Logger
}

// NewHandlers creates all handlers
func NewHandlers(deps Dependencies) *Handlers {
	validate := validator.New(validator.WithRequiredStructEnabled())

	return &Handlers{
		Health:     NewHealthHandler(deps.Cache, deps.Database, deps.Version, deps.Logger),
		Scan:       NewScanHandler(deps.Scans, validate, deps.MaxUploadBytes, deps.Logger),
		References: NewReferencesHandler(deps.References, validate, deps.Logger),
		Evidence:   NewEvidenceHandler(deps.Evidence, deps.Logger),
		Scoring:    NewScoringHandler(deps.Scans.Engine(), deps.Logger),
	}
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
