package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cloneguard-lab/internal/domain/models"
	"cloneguard-lab/internal/domain/scoring"
	"cloneguard-lab/internal/domain/services"
	"cloneguard-lab/internal/evidence"
	"cloneguard-lab/internal/infrastructure/database/repository"
	"cloneguard-lab/internal/inspector"
	"cloneguard-lab/internal/sources"
	"cloneguard-lab/pkg/logger"
)

type stubFetcher struct {
	rec *models.StoreRecord
	err error
}

func (f *stubFetcher) Fetch(ctx context.Context, idOrURL string) (*models.StoreRecord, error) {
	return f.rec, f.err
}

type stubInspector struct {
	ev  *models.PackageEvidence
	err error
}

func (s *stubInspector) Inspect(ctx context.Context, r io.ReaderAt, size int64) (*models.PackageEvidence, error) {
	return s.ev, s.err
}

type memoryRegistry struct {
	refs map[string]*models.Reference
	err  error
}

func (m *memoryRegistry) Get(ctx context.Context, name string) (*models.Reference, error) {
	if m.err != nil {
		return nil, m.err
	}
	ref, ok := m.refs[name]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return ref, nil
}

func (m *memoryRegistry) Upsert(ctx context.Context, ref *models.Reference) error {
	if m.err != nil {
		return m.err
	}
	m.refs[ref.PackageName] = ref
	return nil
}

type stubWriter struct {
	got map[string]any
	err error
}

func (s *stubWriter) Write(report map[string]any) (*evidence.Kit, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.got = report
	return &evidence.Kit{File: "evidence_com.example_20260101_000000.json", Path: "/tmp/evidence_com.example_20260101_000000.json"}, nil
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(ctx context.Context) error { return p.err }

func newTestHandlers(t *testing.T, scan services.ScanDependencies, deps Dependencies) *Handlers {
	t.Helper()
	engine, err := scoring.NewEngine(scoring.Options{})
	require.NoError(t, err)
	scan.Engine = engine

	deps.Scans = services.NewScanService(scan, logger.NewNop())
	deps.Logger = logger.NewNop()
	if deps.MaxUploadBytes == 0 {
		deps.MaxUploadBytes = 1 << 20
	}
	return NewHandlers(deps)
}

func testRouter(h *Handlers) http.Handler {
	r := chi.NewRouter()
	r.Get("/health", h.Health.Check)
	r.Get("/ready", h.Health.Ready)
	r.Post("/scan/url", h.Scan.ScanURL)
	r.Post("/scan/apk", h.Scan.ScanAPK)
	r.Post("/scan/evidence", h.Scan.ScanEvidence)
	r.Get("/references/{package}", h.References.Get)
	r.Put("/references/{package}", h.References.Put)
	r.Post("/evidence", h.Evidence.Create)
	r.Get("/scoring/weights", h.Scoring.Weights)
	return r
}

func do(t *testing.T, h http.Handler, method, path, contentType string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func multipartBody(t *testing.T, file []byte, fields map[string]string) (string, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if file != nil {
		fw, err := mw.CreateFormFile("file", "sample.apk")
		require.NoError(t, err)
		_, err = fw.Write(file)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return mw.FormDataContentType(), &buf
}

func TestScanURL(t *testing.T) {
	listing := &models.StoreRecord{AppID: "com.whatsapp.clone", Title: "WhatsApp Plus", Installs: "100+"}

	t.Run("scores store listing", func(t *testing.T) {
		h := testRouter(newTestHandlers(t, services.ScanDependencies{Fetcher: &stubFetcher{rec: listing}}, Dependencies{}))
		rec := do(t, h, http.MethodPost, "/scan/url", "application/json", strings.NewReader(`{"url":"com.whatsapp.clone"}`))

		require.Equal(t, http.StatusOK, rec.Code)
		out := decode(t, rec)
		assert.Equal(t, "com.whatsapp.clone", out["package"])
		score := out["score"].(map[string]any)
		assert.Equal(t, string(models.PipelineStoreOnly), score["pipeline"])
		assert.NotEmpty(t, out["scan_id"])
	})

	t.Run("missing url", func(t *testing.T) {
		h := testRouter(newTestHandlers(t, services.ScanDependencies{Fetcher: &stubFetcher{rec: listing}}, Dependencies{}))
		rec := do(t, h, http.MethodPost, "/scan/url", "application/json", strings.NewReader(`{}`))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		h := testRouter(newTestHandlers(t, services.ScanDependencies{}, Dependencies{}))
		rec := do(t, h, http.MethodPost, "/scan/url", "application/json", strings.NewReader(`{`))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("listing not found", func(t *testing.T) {
		fetcher := &stubFetcher{err: sources.ErrStoreRecordUnavailable}
		h := testRouter(newTestHandlers(t, services.ScanDependencies{Fetcher: fetcher}, Dependencies{}))
		rec := do(t, h, http.MethodPost, "/scan/url", "application/json", strings.NewReader(`{"url":"com.missing"}`))

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "Play Store metadata not found", decode(t, rec)["error"])
	})

	t.Run("upstream failure", func(t *testing.T) {
		fetcher := &stubFetcher{err: errors.New("connection reset")}
		h := testRouter(newTestHandlers(t, services.ScanDependencies{Fetcher: fetcher}, Dependencies{}))
		rec := do(t, h, http.MethodPost, "/scan/url", "application/json", strings.NewReader(`{"url":"com.example"}`))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestScanAPK(t *testing.T) {
	pkg := &models.PackageEvidence{
		Package:     "com.example.bank",
		Label:       "Example Bank",
		Permissions: []string{"android.permission.READ_SMS"},
	}

	t.Run("inspects upload", func(t *testing.T) {
		h := testRouter(newTestHandlers(t, services.ScanDependencies{Inspector: &stubInspector{ev: pkg}}, Dependencies{}))
		ct, body := multipartBody(t, []byte("PK fake"), map[string]string{"reference_package": "com.example.bank"})
		rec := do(t, h, http.MethodPost, "/scan/apk", ct, body)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		out := decode(t, rec)
		assert.Equal(t, "sample.apk", out["file"])
		assert.Equal(t, "com.example.bank", out["package"])
		meta := out["apk_metadata"].(map[string]any)
		assert.Equal(t, "Example Bank", meta["label"])
		score := out["score"].(map[string]any)
		assert.Equal(t, string(models.PipelinePackageDeep), score["pipeline"])
	})

	t.Run("file required", func(t *testing.T) {
		h := testRouter(newTestHandlers(t, services.ScanDependencies{Inspector: &stubInspector{ev: pkg}}, Dependencies{}))
		ct, body := multipartBody(t, nil, map[string]string{"store_id": "com.example.bank"})
		rec := do(t, h, http.MethodPost, "/scan/apk", ct, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("not multipart", func(t *testing.T) {
		h := testRouter(newTestHandlers(t, services.ScanDependencies{Inspector: &stubInspector{ev: pkg}}, Dependencies{}))
		rec := do(t, h, http.MethodPost, "/scan/apk", "application/json", strings.NewReader(`{}`))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("too large", func(t *testing.T) {
		h := testRouter(newTestHandlers(t, services.ScanDependencies{Inspector: &stubInspector{ev: pkg}}, Dependencies{MaxUploadBytes: 16}))
		ct, body := multipartBody(t, bytes.Repeat([]byte("x"), 64), nil)
		rec := do(t, h, http.MethodPost, "/scan/apk", ct, body)
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})

	t.Run("uninspectable package", func(t *testing.T) {
		insp := &stubInspector{err: &inspector.InspectionError{Reason: "not a zip archive"}}
		h := testRouter(newTestHandlers(t, services.ScanDependencies{Inspector: insp}, Dependencies{}))
		ct, body := multipartBody(t, []byte("garbage"), nil)
		rec := do(t, h, http.MethodPost, "/scan/apk", ct, body)

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Contains(t, decode(t, rec)["error"], "not a zip archive")
	})
}

func TestScanEvidence(t *testing.T) {
	h := testRouter(newTestHandlers(t, services.ScanDependencies{}, Dependencies{}))

	rec := do(t, h, http.MethodPost, "/scan/evidence", "application/json",
		strings.NewReader(`{"store":{"appId":"com.example","title":"Example","developer":"Example Inc"}}`))
	require.Equal(t, http.StatusOK, rec.Code)
	score := decode(t, rec)["score"].(map[string]any)
	assert.Equal(t, string(models.PipelineStoreOnly), score["pipeline"])

	rec = do(t, h, http.MethodPost, "/scan/evidence", "application/json", strings.NewReader(`{}`))
	require.Equal(t, http.StatusOK, rec.Code)
	score = decode(t, rec)["score"].(map[string]any)
	assert.Equal(t, string(models.PipelinePackageDeep), score["pipeline"])
	assert.Equal(t, true, score["insufficient_evidence"])
	assert.EqualValues(t, 50, score["risk_score"])
}

func TestReferences(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		h := testRouter(newTestHandlers(t, services.ScanDependencies{}, Dependencies{}))
		rec := do(t, h, http.MethodGet, "/references/com.example", "", nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	registry := &memoryRegistry{refs: map[string]*models.Reference{}}
	h := testRouter(newTestHandlers(t, services.ScanDependencies{}, Dependencies{References: registry}))

	rec := do(t, h, http.MethodGet, "/references/com.example", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodPut, "/references/com.example", "application/json",
		strings.NewReader(`{"package_name":"ignored","brand":"example","cert_sha256":["AB:CD"]}`))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, registry.refs, "com.example")
	assert.Equal(t, "example", registry.refs["com.example"].Brand)

	rec = do(t, h, http.MethodGet, "/references/com.example", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "com.example", decode(t, rec)["package_name"])

	rec = do(t, h, http.MethodPut, "/references/com.example", "application/json", strings.NewReader(`not json`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	registry.err = errors.New("db down")
	rec = do(t, h, http.MethodGet, "/references/com.example", "", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestEvidenceCreate(t *testing.T) {
	writer := &stubWriter{}
	h := testRouter(newTestHandlers(t, services.ScanDependencies{}, Dependencies{Evidence: writer}))

	rec := do(t, h, http.MethodPost, "/evidence", "application/json", strings.NewReader(`{"package":"com.example","risk_score":82}`))
	require.Equal(t, http.StatusCreated, rec.Code)
	out := decode(t, rec)
	assert.Equal(t, "success", out["status"])
	assert.Equal(t, "evidence_com.example_20260101_000000.json", out["file"])
	assert.Equal(t, "com.example", writer.got["package"])

	rec = do(t, h, http.MethodPost, "/evidence", "application/json", strings.NewReader(`[1,2]`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	writer.err = errors.New("disk full")
	rec = do(t, h, http.MethodPost, "/evidence", "application/json", strings.NewReader(`{"package":"com.example"}`))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestScoringWeights(t *testing.T) {
	h := testRouter(newTestHandlers(t, services.ScanDependencies{}, Dependencies{}))

	rec := do(t, h, http.MethodGet, "/scoring/weights", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode(t, rec)
	weights := out["weights"].(map[string]any)
	assert.Len(t, weights, len(models.AllSignals))
	assert.Contains(t, weights, string(models.SignalCertificateFingerprint))
	assert.NotEmpty(t, out["brands"])
}

func TestHealth(t *testing.T) {
	t.Run("check", func(t *testing.T) {
		h := testRouter(newTestHandlers(t, services.ScanDependencies{}, Dependencies{Version: "1.2.3"}))
		rec := do(t, h, http.MethodGet, "/health", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		out := decode(t, rec)
		assert.Equal(t, "healthy", out["status"])
		assert.Equal(t, "1.2.3", out["version"])
	})

	t.Run("ready without backends", func(t *testing.T) {
		h := testRouter(newTestHandlers(t, services.ScanDependencies{}, Dependencies{}))
		rec := do(t, h, http.MethodGet, "/ready", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		checks := decode(t, rec)["checks"].(map[string]any)
		assert.Equal(t, "not configured", checks["redis"])
		assert.Equal(t, "not configured", checks["postgres"])
	})

	t.Run("ready with failing backend", func(t *testing.T) {
		h := testRouter(newTestHandlers(t, services.ScanDependencies{}, Dependencies{
			Cache:    stubPinger{},
			Database: stubPinger{err: errors.New("connection refused")},
		}))
		rec := do(t, h, http.MethodGet, "/ready", "", nil)
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		out := decode(t, rec)
		assert.Equal(t, "not ready", out["status"])
		checks := out["checks"].(map[string]any)
		assert.Equal(t, "healthy", checks["redis"])
		assert.Contains(t, checks["postgres"], "connection refused")
	})
}
