package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"cloneguard-lab/internal/domain/models"
	"cloneguard-lab/internal/infrastructure/database/repository"
	"cloneguard-lab/pkg/logger"
)

// ReferencesHandler manages the registry of known-good apps
type ReferencesHandler struct {
	registry ReferenceRegistry
	validate *validator.Validate
	logger   *logger.Logger
}

// NewReferencesHandler creates a new ReferencesHandler. A nil registry answers 503.
func NewReferencesHandler(registry ReferenceRegistry, validate *validator.Validate, log *logger.Logger) *ReferencesHandler {
	return &ReferencesHandler{
		registry: registry,
		validate: validate,
		logger:   log.WithComponent("references-handler"),
	}
}

// Get handles GET /api/v1/references/{package}
func (h *ReferencesHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h.registry == nil {
		respondError(w, http.StatusServiceUnavailable, "reference registry not configured")
		return
	}

	packageName := chi.URLParam(r, "package")
	ref, err := h.registry.Get(r.Context(), packageName)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			respondError(w, http.StatusNotFound, "reference not found")
			return
		}
		h.logger.Error().Err(err).Str("package", packageName).Msg("failed to load reference")
		respondError(w, http.StatusInternalServerError, "failed to load reference")
		return
	}

	respondJSON(w, http.StatusOK, ref)
}

// Put handles PUT /api/v1/references/{package}. The path wins over the body's package_name.
func (h *ReferencesHandler) Put(w http.ResponseWriter, r *http.Request) {
	if h.registry == nil {
		respondError(w, http.StatusServiceUnavailable, "reference registry not configured")
		return
	}

	var ref models.Reference
	if err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody)).Decode(&ref); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	ref.PackageName = chi.URLParam(r, "package")
	if err := h.validate.Struct(ref); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.registry.Upsert(r.Context(), &ref); err != nil {
		h.logger.Error().Err(err).Str("package", ref.PackageName).Msg("failed to store reference")
		respondError(w, http.StatusInternalServerError, "failed to store reference")
		return
	}

	h.logger.Info().Str("package", ref.PackageName).Str("brand", ref.Brand).Msg("reference stored")
	respondJSON(w, http.StatusOK, ref)
}
