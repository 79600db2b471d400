// Package playstore fetches Google Play listings through a scraper sidecar.
package playstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cloneguard-lab/internal/domain/models"
	"cloneguard-lab/internal/sources"
	"cloneguard-lab/pkg/logger"
)

const (
	// Slug identifies this connector in the registry
	Slug = "playstore"

	detailsURL      = "https://play.google.com/store/apps/details?id="
	maxResponseSize = 4 << 20
)

// Connector reads listings from a scraper service exposing GET /apps/{id}
type Connector struct {
	*sources.BaseConnector
	client *http.Client
	logger *logger.Logger
}

// NewConnector creates a new Play Store connector
func NewConnector(cfg sources.ConnectorConfig, log *logger.Logger) *Connector {
	c := &Connector{
		BaseConnector: sources.NewBaseConnector(Slug, "Google Play"),
		logger:        log.WithComponent("playstore"),
	}
	_ = c.Configure(cfg)
	return c
}

// Configure applies cfg and rebuilds the HTTP client for its timeout
func (c *Connector) Configure(cfg sources.ConnectorConfig) error {
	if cfg.Timeout <= 0 {
		cfg.Timeout = sources.DefaultConfig().Timeout
	}
	if err := c.BaseConnector.Configure(cfg); err != nil {
		return err
	}
	c.client = &http.Client{Timeout: cfg.Timeout}
	return nil
}

// Accepts bare application ids and play.google.com URLs
func (c *Connector) Accepts(idOrURL string) bool {
	if sources.IsURL(idOrURL) {
		u, err := url.Parse(strings.TrimSpace(idOrURL))
		if err != nil || !strings.HasSuffix(u.Hostname(), "play.google.com") {
			return false
		}
	}
	_, ok := sources.ExtractAppID(idOrURL)
	return ok
}

// Fetch retrieves the listing for idOrURL
func (c *Connector) Fetch(ctx context.Context, idOrURL string) (*models.StoreRecord, error) {
	appID, ok := sources.ExtractAppID(idOrURL)
	if !ok {
		return nil, fmt.Errorf("no app id in %q: %w", idOrURL, sources.ErrStoreRecordUnavailable)
	}

	cfg := c.Config()
	if cfg.APIURL == "" {
		return nil, fmt.Errorf("scraper url not configured: %w", sources.ErrStoreRecordUnavailable)
	}

	endpoint := strings.TrimSuffix(cfg.APIURL, "/") + "/apps/" + url.PathEscape(appID)
	q := url.Values{}
	if cfg.Lang != "" {
		q.Set("lang", cfg.Lang)
	}
	if cfg.Country != "" {
		q.Set("country", cfg.Country)
	}
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", appID, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("app %s not found: %w", appID, sources.ErrStoreRecordUnavailable)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("scraper returned HTTP %d for %s: %w", resp.StatusCode, appID, sources.ErrStoreRecordUnavailable)
	}

	var rec models.StoreRecord
	dec := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize))
	if err := dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty listing for %s: %w", appID, sources.ErrStoreRecordUnavailable)
		}
		return nil, fmt.Errorf("failed to decode listing for %s: %w: %w", appID, err, sources.ErrStoreRecordUnavailable)
	}
	if rec.Title == "" && rec.AppID == "" {
		return nil, fmt.Errorf("blank listing for %s: %w", appID, sources.ErrStoreRecordUnavailable)
	}
	if rec.AppID == "" {
		rec.AppID = appID
	}
	if rec.URL == "" {
		rec.URL = detailsURL + appID
	}

	c.logger.Debug().
		Str("app_id", appID).
		Str("title", rec.Title).
		Dur("duration", time.Since(start)).
		Msg("listing fetched")

	return &rec, nil
}
