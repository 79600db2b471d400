package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"cloneguard-lab/pkg/logger"
)

// EvidenceHandler writes evidence kits to disk
type EvidenceHandler struct {
	writer EvidenceWriter
	logger *logger.Logger
}

// NewEvidenceHandler creates a new EvidenceHandler
func NewEvidenceHandler(writer EvidenceWriter, log *logger.Logger) *EvidenceHandler {
	return &EvidenceHandler{
		writer: writer,
		logger: log.WithComponent("evidence-handler"),
	}
}

// EvidenceResponse is returned once a kit is written
type EvidenceResponse struct {
	Status string `json:"status"`
	File   string `json:"file"`
	Path   string `json:"path"`
}

// Create handles POST /api/v1/evidence
func (h *EvidenceHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h.writer == nil {
		respondError(w, http.StatusServiceUnavailable, "evidence storage not configured")
		return
	}

	var report map[string]any
	if err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody)).Decode(&report); err != nil || report == nil {
		respondError(w, http.StatusBadRequest, "report must be a JSON object")
		return
	}

	kit, err := h.writer.Write(report)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to write evidence kit")
		respondError(w, http.StatusInternalServerError, "failed to write evidence kit")
		return
	}

	respondJSON(w, http.StatusCreated, EvidenceResponse{Status: "success", File: kit.File, Path: kit.Path})
}
