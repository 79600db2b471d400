package sources

import (
	"context"
	"errors"
	"net/url"
	"regexp"
	"strings"
	"time"

	"cloneguard-lab/internal/domain/models"
)

// ErrStoreRecordUnavailable is returned when a store has no usable listing for an app
var ErrStoreRecordUnavailable = errors.New("store record unavailable")

// StoreFetcher retrieves the store listing of an app
type StoreFetcher interface {
	// Fetch resolves idOrURL to an app id and returns its listing
	Fetch(ctx context.Context, idOrURL string) (*models.StoreRecord, error)
}

// Connector is a StoreFetcher bound to one store
type Connector interface {
	StoreFetcher

	// Slug returns the unique identifier for this store
	Slug() string

	// Name returns the human-readable name of this store
	Name() string

	// Accepts reports whether idOrURL belongs to this store
	Accepts(idOrURL string) bool

	// IsEnabled returns whether this connector is enabled
	IsEnabled() bool

	// Configure configures the connector with the given config
	Configure(cfg ConnectorConfig) error
}

// ConnectorConfig holds configuration for a connector
type ConnectorConfig struct {
	Enabled bool          `json:"enabled"`
	APIURL  string        `json:"api_url,omitempty"`
	Lang    string        `json:"lang,omitempty"`
	Country string        `json:"country,omitempty"`
	Timeout time.Duration `json:"timeout,omitempty"`
}

// DefaultConfig returns default connector configuration
func DefaultConfig() ConnectorConfig {
	return ConnectorConfig{
		Enabled: true,
		Lang:    "en",
		Country: "in",
		Timeout: 15 * time.Second,
	}
}

// BaseConnector provides common functionality for connectors
type BaseConnector struct {
	slug   string
	name   string
	config ConnectorConfig
}

// NewBaseConnector creates a new base connector
func NewBaseConnector(slug, name string) *BaseConnector {
	return &BaseConnector{
		slug:   slug,
		name:   name,
		config: DefaultConfig(),
	}
}

// Slug returns the unique identifier for this store
func (c *BaseConnector) Slug() string {
	return c.slug
}

// Name returns the human-readable name of this store
func (c *BaseConnector) Name() string {
	return c.name
}

// IsEnabled returns whether this connector is enabled
func (c *BaseConnector) IsEnabled() bool {
	return c.config.Enabled
}

// Configure configures the connector
func (c *BaseConnector) Configure(cfg ConnectorConfig) error {
	c.config = cfg
	return nil
}

// Config returns the current configuration
func (c *BaseConnector) Config() ConnectorConfig {
	return c.config
}

var (
	appIDParam   = regexp.MustCompile(`id=([A-Za-z0-9_.]+)`)
	appIDPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*(\.[A-Za-z0-9_]+)+$`)
)

// ExtractAppID returns the application id from a bare id or a store URL
func ExtractAppID(idOrURL string) (string, bool) {
	s := strings.TrimSpace(idOrURL)
	if s == "" {
		return "", false
	}
	if m := appIDParam.FindStringSubmatch(s); m != nil {
		return m[1], true
	}
	if appIDPattern.MatchString(s) {
		return s, true
	}
	return "", false
}

// IsURL reports whether s looks like an absolute http(s) URL
func IsURL(s string) bool {
	u, err := url.Parse(strings.TrimSpace(s))
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
