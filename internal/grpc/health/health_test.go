package health

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/health/grpc_health_v1"

	"cloneguard-lab/pkg/logger"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func status(t *testing.T, c *Checker, service string) grpc_health_v1.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := c.Server().Check(context.Background(), &grpc_health_v1.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestCheckerFollowsBackends(t *testing.T) {
	var failing error
	c := NewChecker(map[string]Pinger{
		"redis":    pingFunc(func(ctx context.Context) error { return failing }),
		"postgres": nil,
	}, logger.NewNop())

	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, status(t, c, ""))
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, status(t, c, ServiceName))

	failing = errors.New("connection refused")
	assert.False(t, c.Check(context.Background()))
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_NOT_SERVING, status(t, c, ""))
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_NOT_SERVING, status(t, c, ServiceName))

	failing = nil
	assert.True(t, c.Check(context.Background()))
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, status(t, c, ""))
}

func TestCheckerWithoutBackends(t *testing.T) {
	c := NewChecker(nil, logger.NewNop())
	assert.True(t, c.Check(context.Background()))
}

func TestRunStopsWithContext(t *testing.T) {
	c := NewChecker(nil, logger.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	assert.Equal(t, grpc_health_v1.HealthCheckResponse_NOT_SERVING, status(t, c, ""))
}
