package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cloneguard-lab/internal/domain/models"
	"cloneguard-lab/internal/domain/scoring"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadDefault()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 8090, cfg.Server.HTTPPort)
	assert.Equal(t, int64(200<<20), cfg.Server.MaxUploadBytes)
	assert.Equal(t, 6*time.Hour, cfg.Redis.CacheTTL)
	assert.Equal(t, scoring.DefaultBrands, cfg.Scoring.Brands)

	w, err := cfg.ScoringWeights()
	require.NoError(t, err)
	assert.Equal(t, scoring.DefaultWeightMap(), w.Map())
}

func TestLoad_FileOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  http_port: 9000
scoring:
  weights:
    icon_perceptual_hash: 0.5
    url_extraction: 0
  brands: [examplebank]
store:
  scraper_url: http://scraper:3000
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 9000, cfg.Server.HTTPPort)
	assert.Equal(t, []string{"examplebank"}, cfg.Scoring.Brands)
	assert.Equal(t, "http://scraper:3000", cfg.Store.ScraperURL)

	w, err := cfg.ScoringWeights()
	require.NoError(t, err)
	assert.Equal(t, 0.5, w.Map()[models.SignalIconPerceptualHash])
	assert.Equal(t, 0.25, w.Map()[models.SignalPackageLabelSimilarity])
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CLONEGUARD_SERVER_HTTP_PORT", "7070")
	t.Setenv("CLONEGUARD_STORE_SCRAPER_URL", "http://env-scraper")

	cfg, err := LoadDefault()
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.HTTPPort)
	assert.Equal(t, "http://env-scraper", cfg.Store.ScraperURL)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate_RejectsBadWeights(t *testing.T) {
	path := writeConfig(t, `
scoring:
  weights:
    icon_perceptual_hash: -1
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	err = cfg.Validate()
	var cerr *scoring.ConfigurationError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, models.SignalIconPerceptualHash, cerr.Signal)
}

func TestValidate_RejectsUnknownSignal(t *testing.T) {
	cfg := &Config{
		Server:  ServerConfig{MaxUploadBytes: 1},
		Scoring: ScoringConfig{Weights: map[string]float64{"icon_perceptual_hash": 1, "star_sign": 1}},
	}
	var cerr *scoring.ConfigurationError
	require.True(t, errors.As(cfg.Validate(), &cerr))
	assert.Equal(t, models.SignalID("star_sign"), cerr.Signal)
}

func TestValidate_RejectsAllZero(t *testing.T) {
	cfg := &Config{
		Server:  ServerConfig{MaxUploadBytes: 1},
		Scoring: ScoringConfig{Weights: map[string]float64{"icon_perceptual_hash": 0}},
	}
	assert.True(t, errors.Is(cfg.Validate(), scoring.ErrNoPositiveWeight))
}

func TestDSN(t *testing.T) {
	c := DatabaseConfig{User: "u", Password: "p", Host: "h", Port: 5432, DBName: "d", SSLMode: "disable", Schema: "public"}
	assert.Equal(t, "postgres://u:p@h:5432/d?sslmode=disable&search_path=public", c.DSN())
}
