package handlers

import (
	"net/http"

	"cloneguard-lab/internal/domain/models"
	"cloneguard-lab/internal/domain/scoring"
	"cloneguard-lab/pkg/logger"
)

// ScoringHandler exposes the active scoring configuration
type ScoringHandler struct {
	engine *scoring.Engine
	logger *logger.Logger
}

// NewScoringHandler creates a new ScoringHandler
func NewScoringHandler(engine *scoring.Engine, log *logger.Logger) *ScoringHandler {
	return &ScoringHandler{
		engine: engine,
		logger: log.WithComponent("scoring-handler"),
	}
}

// ScoringConfigResponse describes the weights and brands in effect
type ScoringConfigResponse struct {
	Weights map[models.SignalID]float64 `json:"weights"`
	Brands  []string                    `json:"brands"`
}

// Weights handles GET /api/v1/scoring/weights
func (h *ScoringHandler) Weights(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, ScoringConfigResponse{
		Weights: h.engine.Weights().Map(),
		Brands:  h.engine.Brands(),
	})
}
