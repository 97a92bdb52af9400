package handler_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saferoute/saferoute/internal/api/handler"
	"github.com/saferoute/saferoute/internal/api/models"
	"github.com/saferoute/saferoute/internal/provider/resilience"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type staticHealth []*resilience.Health

func (s staticHealth) GetAllHealth() []*resilience.Health { return s }

func get(h http.HandlerFunc, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, path, http.NoBody))
	return rec
}

func TestOpsHandler_HealthCheck(t *testing.T) {
	h := handler.NewOpsHandler(handler.OpsConfig{Version: "1.2.3", BuildTime: "2026-01-01", Logger: zerolog.Nop()})

	rec := get(h.HealthCheck, "/v1/ops/health")
	require.Equal(t, http.StatusOK, rec.Code)

	health := decode[models.Health](t, rec)
	assert.Equal(t, models.HealthStatusOK, health.Status)
	assert.Equal(t, "1.2.3", health.Details["version"])
	assert.Equal(t, "2026-01-01", health.Details["buildTime"])
}

func TestOpsHandler_ReadinessCheck(t *testing.T) {
	ok := handler.NewOpsHandler(handler.OpsConfig{
		Store: pingFunc(func(context.Context) error { return nil }),
	})
	rec := get(ok.ReadinessCheck, "/v1/ops/ready")
	assert.Equal(t, http.StatusOK, rec.Code)

	down := handler.NewOpsHandler(handler.OpsConfig{
		Store:  pingFunc(func(context.Context) error { return errors.New("dial tcp: connection refused") }),
		Logger: zerolog.Nop(),
	})
	rec = get(down.ReadinessCheck, "/v1/ops/ready")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	health := decode[models.Health](t, rec)
	assert.Equal(t, models.HealthStatusFail, health.Status)
	assert.Contains(t, health.Details["store"], "connection refused")
}

func TestOpsHandler_SystemStatus(t *testing.T) {
	lastOK := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)

	h := handler.NewOpsHandler(handler.OpsConfig{
		Health: staticHealth{
			{Name: "feedback-store", CircuitState: gobreaker.StateClosed, LastSuccessAt: &lastOK},
			{Name: "feedback-queue", CircuitState: gobreaker.StateHalfOpen, LastError: "deadline exceeded"},
		},
	})

	rec := get(h.SystemStatus, "/v1/ops/status")
	require.Equal(t, http.StatusOK, rec.Code)

	status := decode[models.SystemStatus](t, rec)
	assert.Equal(t, models.HealthStatusDegraded, status.Status)
	require.Len(t, status.Dependencies, 2)

	store := status.Dependencies[0]
	assert.Equal(t, "feedback-store", store.Name)
	assert.Equal(t, models.HealthStatusOK, store.Status)
	assert.Equal(t, "closed", store.CircuitState)
	require.NotNil(t, store.LastSuccessAt)
	assert.True(t, lastOK.Equal(time.Time(*store.LastSuccessAt)))
	assert.Nil(t, store.Message)

	queue := status.Dependencies[1]
	assert.Equal(t, models.HealthStatusDegraded, queue.Status)
	assert.Equal(t, "half-open", queue.CircuitState)
	require.NotNil(t, queue.Message)
	assert.Equal(t, "deadline exceeded", *queue.Message)
}

func TestOpsHandler_SystemStatus_OpenCircuitFails(t *testing.T) {
	h := handler.NewOpsHandler(handler.OpsConfig{
		Health: staticHealth{
			{Name: "feedback-store", CircuitState: gobreaker.StateOpen},
		},
	})

	status := decode[models.SystemStatus](t, get(h.SystemStatus, "/v1/ops/status"))
	assert.Equal(t, models.HealthStatusFail, status.Status)
}

func TestOpsHandler_SystemStatus_NoDependencies(t *testing.T) {
	h := handler.NewOpsHandler(handler.OpsConfig{})

	rec := get(h.SystemStatus, "/v1/ops/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"dependencies":[]`)
}
