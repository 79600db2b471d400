// Package health serves the standard gRPC health protocol, driven by backend pings.
package health

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"cloneguard-lab/pkg/logger"
)

// ServiceName is the health key reported alongside the overall "" status
const ServiceName = "cloneguard.v1.ScanService"

const (
	defaultInterval = 10 * time.Second
	pingTimeout     = 2 * time.Second
)

// Pinger is a backend whose liveness decides the serving status
type Pinger interface {
	Ping(ctx context.Context) error
}

// Checker keeps a grpc health server in line with its backends
type Checker struct {
	server   *health.Server
	backends map[string]Pinger
	interval time.Duration
	logger   *logger.Logger
}

// NewChecker creates a checker. Nil backends are skipped.
func NewChecker(backends map[string]Pinger, log *logger.Logger) *Checker {
	active := make(map[string]Pinger, len(backends))
	for name, p := range backends {
		if p != nil {
			active[name] = p
		}
	}

	c := &Checker{
		server:   health.NewServer(),
		backends: active,
		interval: defaultInterval,
		logger:   log.WithComponent("grpc-health"),
	}
	c.set(grpc_health_v1.HealthCheckResponse_SERVING)
	return c
}

// Register attaches the health service to a gRPC server
func (c *Checker) Register(s *grpc.Server) {
	grpc_health_v1.RegisterHealthServer(s, c.server)
}

// Server returns the underlying health server
func (c *Checker) Server() *health.Server {
	return c.server
}

// Check pings every backend once and updates the serving status
func (c *Checker) Check(ctx context.Context) bool {
	healthy := true
	for name, p := range c.backends {
		pctx, cancel := context.WithTimeout(ctx, pingTimeout)
		err := p.Ping(pctx)
		cancel()
		if err != nil {
			c.logger.Warn().Err(err).Str("backend", name).Msg("backend unhealthy")
			healthy = false
		}
	}

	if healthy {
		c.set(grpc_health_v1.HealthCheckResponse_SERVING)
	} else {
		c.set(grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	}
	return healthy
}

// Run checks on every tick until ctx is done, then marks the service as shutting down
func (c *Checker) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			c.server.Shutdown()
			return
		case <-ticker.C:
			c.Check(ctx)
		}
	}
}

func (c *Checker) set(status grpc_health_v1.HealthCheckResponse_ServingStatus) {
	c.server.SetServingStatus("", status)
	c.server.SetServingStatus(ServiceName, status)
}
