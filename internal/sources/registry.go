package sources

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"cloneguard-lab/internal/domain/models"
	"cloneguard-lab/pkg/logger"
)

// Registry manages store connectors and routes lookups to the one that accepts the input
type Registry struct {
	connectors map[string]Connector
	mu         sync.RWMutex
	logger     *logger.Logger
}

// NewRegistry creates a new connector registry
func NewRegistry(log *logger.Logger) *Registry {
	return &Registry{
		connectors: make(map[string]Connector),
		logger:     log.WithComponent("source-registry"),
	}
}

// Register registers a connector
func (r *Registry) Register(connector Connector) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	slug := connector.Slug()
	if _, exists := r.connectors[slug]; exists {
		return fmt.Errorf("connector already registered: %s", slug)
	}

	r.connectors[slug] = connector
	r.logger.Info().
		Str("slug", slug).
		Str("name", connector.Name()).
		Msg("registered connector")

	return nil
}

// Get returns a connector by slug
func (r *Registry) Get(slug string) (Connector, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.connectors[slug]
	return conn, ok
}

// ListEnabled returns all enabled connectors ordered by slug
func (r *Registry) ListEnabled() []Connector {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]Connector, 0, len(r.connectors))
	for _, conn := range r.connectors {
		if conn.IsEnabled() {
			conns = append(conns, conn)
		}
	}
	sort.Slice(conns, func(i, j int) bool { return conns[i].Slug() < conns[j].Slug() })
	return conns
}

// Count returns the number of registered connectors
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connectors)
}

// Configure configures a connector by slug
func (r *Registry) Configure(slug string, cfg ConnectorConfig) error {
	r.mu.RLock()
	conn, ok := r.connectors[slug]
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("connector not found: %s", slug)
	}

	return conn.Configure(cfg)
}

// Fetch asks the first enabled connector that accepts idOrURL
func (r *Registry) Fetch(ctx context.Context, idOrURL string) (*models.StoreRecord, error) {
	for _, conn := range r.ListEnabled() {
		if !conn.Accepts(idOrURL) {
			continue
		}
		rec, err := conn.Fetch(ctx, idOrURL)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", conn.Slug(), err)
		}
		return rec, nil
	}
	return nil, fmt.Errorf("no connector accepts %q: %w", idOrURL, ErrStoreRecordUnavailable)
}
