package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"cloneguard-lab/internal/domain/models"
	"cloneguard-lab/internal/domain/services"
	"cloneguard-lab/internal/inspector"
	"cloneguard-lab/internal/sources"
	"cloneguard-lab/pkg/logger"
)

const (
	maxJSONBody    = 8 << 20
	maxFieldLength = 1024
)

// ScanHandler handles scan endpoints
type ScanHandler struct {
	scans     *services.ScanService
	validate  *validator.Validate
	maxUpload int64
	logger    *logger.Logger
}

// NewScanHandler creates a new ScanHandler
func NewScanHandler(scans *services.ScanService, validate *validator.Validate, maxUpload int64, log *logger.Logger) *ScanHandler {
	return &ScanHandler{
		scans:     scans,
		validate:  validate,
		maxUpload: maxUpload,
		logger:    log.WithComponent("scan-handler"),
	}
}

// ScanURLRequest is the body of POST /api/v1/scan/url
type ScanURLRequest struct {
	URL string `json:"url" validate:"required,max=2048"`
}

// APKScanResponse is the body returned by POST /api/v1/scan/apk
type APKScanResponse struct {
	File string `json:"file"`
	*models.ScanResult
}

// ScanURL handles POST /api/v1/scan/url
func (h *ScanHandler) ScanURL(w http.ResponseWriter, r *http.Request) {
	var req ScanURLRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, "url is required")
		return
	}

	result, err := h.scans.ScanStore(r.Context(), req.URL)
	if err != nil {
		h.respondScanError(w, err, req.URL)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// ScanAPK handles POST /api/v1/scan/apk (multipart: file, store_id, reference_package).
// The package is buffered in memory up to the configured limit.
func (h *ScanHandler) ScanAPK(w http.ResponseWriter, r *http.Request) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/form-data" {
		respondError(w, http.StatusBadRequest, "multipart/form-data body required")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+64<<10)
	mr, err := r.MultipartReader()
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}

	var (
		filename string
		data     []byte
		opts     services.PackageScanOptions
	)
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			h.respondUploadError(w, err)
			return
		}

		switch part.FormName() {
		case "file":
			filename = part.FileName()
			data, err = io.ReadAll(io.LimitReader(part, h.maxUpload+1))
			if err != nil {
				h.respondUploadError(w, err)
				return
			}
			if int64(len(data)) > h.maxUpload {
				respondError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("package exceeds %d bytes", h.maxUpload))
				return
			}
		case "store_id":
			opts.StoreID, err = readField(part)
		case "reference_package":
			opts.ReferencePackage, err = readField(part)
		}
		part.Close()
		if err != nil {
			h.respondUploadError(w, err)
			return
		}
	}

	if len(data) == 0 {
		respondError(w, http.StatusBadRequest, "file is required")
		return
	}

	result, err := h.scans.ScanPackage(r.Context(), bytes.NewReader(data), int64(len(data)), opts)
	if err != nil {
		h.respondScanError(w, err, filename)
		return
	}

	respondJSON(w, http.StatusOK, APKScanResponse{File: filename, ScanResult: result})
}

// ScanEvidence handles POST /api/v1/scan/evidence
func (h *ScanHandler) ScanEvidence(w http.ResponseWriter, r *http.Request) {
	var ev models.Evidence
	if err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody)).Decode(&ev); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.scans.ScanEvidence(r.Context(), &ev)
	if err != nil {
		h.respondScanError(w, err, ev.AppID())
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (h *ScanHandler) respondScanError(w http.ResponseWriter, err error, subject string) {
	var inspectionErr *inspector.InspectionError
	switch {
	case errors.Is(err, sources.ErrStoreRecordUnavailable):
		respondError(w, http.StatusNotFound, "Play Store metadata not found")
	case errors.As(err, &inspectionErr):
		respondError(w, http.StatusUnprocessableEntity, inspectionErr.Error())
	default:
		h.logger.Error().Err(err).Str("subject", subject).Msg("scan failed")
		respondError(w, http.StatusInternalServerError, "scan failed")
	}
}

func (h *ScanHandler) respondUploadError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		respondError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("package exceeds %d bytes", h.maxUpload))
		return
	}
	respondError(w, http.StatusBadRequest, "invalid multipart body")
}

func readField(r io.Reader) (string, error) {
	b, err := io.ReadAll(io.LimitReader(r, maxFieldLength))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}
