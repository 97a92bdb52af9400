// Package handler provides HTTP handlers for the SafeRoute API.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/saferoute/saferoute/internal/api/models"
	"github.com/saferoute/saferoute/internal/api/response"
	"github.com/saferoute/saferoute/internal/provider/resilience"
)

// Pinger checks that a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthSource lists the health of guarded dependencies.
type HealthSource interface {
	GetAllHealth() []*resilience.Health
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	store     Pinger
	health    HealthSource
	logger    zerolog.Logger
	now       func() time.Time
}

// OpsConfig configures an OpsHandler. Store and Health are optional.
type OpsConfig struct {
	Version   string
	BuildTime string
	Store     Pinger
	Health    HealthSource
	Logger    zerolog.Logger
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsConfig) *OpsHandler {
	return &OpsHandler{
		version:   cfg.Version,
		buildTime: cfg.BuildTime,
		store:     cfg.Store,
		health:    cfg.Health,
		logger:    cfg.Logger,
		now:       time.Now,
	}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(h.now()),
		Details: map[string]interface{}{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	})
}

// ReadinessCheck handles GET /v1/ops/ready. It fails while the feedback
// store cannot be reached.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(h.now()),
	}

	if h.store != nil {
		if err := h.store.Ping(r.Context()); err != nil {
			h.logger.Warn().Err(err).Msg("readiness check failed")
			health.Status = models.HealthStatusFail
			health.Details = map[string]interface{}{"store": err.Error()}
			response.JSON(w, r, http.StatusServiceUnavailable, health)
			return
		}
	}
	response.JSON(w, r, http.StatusOK, health)
}

// SystemStatus handles GET /v1/ops/status - circuit state of every guarded
// dependency. The overall status is the worst of them.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	status := models.SystemStatus{
		Status:       models.HealthStatusOK,
		Time:         models.Timestamp(h.now()),
		Dependencies: []models.DependencyStatus{},
	}

	if h.health != nil {
		for _, dep := range h.health.GetAllHealth() {
			ds := models.DependencyStatus{
				Name:          dep.Name,
				Status:        dependencyStatus(dep),
				CircuitState:  dep.CircuitState.String(),
				LastSuccessAt: models.TimestampPtr(dep.LastSuccessAt),
				LastFailureAt: models.TimestampPtr(dep.LastFailureAt),
			}
			if dep.LastError != "" {
				msg := dep.LastError
				ds.Message = &msg
			}
			status.Status = worse(status.Status, ds.Status)
			status.Dependencies = append(status.Dependencies, ds)
		}
	}

	response.JSON(w, r, http.StatusOK, status)
}

func dependencyStatus(h *resilience.Health) models.HealthStatus {
	switch {
	case h.IsUnhealthy():
		return models.HealthStatusFail
	case h.IsDegraded():
		return models.HealthStatusDegraded
	}
	return models.HealthStatusOK
}

func worse(a, b models.HealthStatus) models.HealthStatus {
	rank := map[models.HealthStatus]int{
		models.HealthStatusOK:       0,
		models.HealthStatusDegraded: 1,
		models.HealthStatusFail:     2,
	}
	if rank[b] > rank[a] {
		return b
	}
	return a
}
