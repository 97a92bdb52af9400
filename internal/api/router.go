// Package api provides the HTTP API for SafeRoute.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/saferoute/saferoute/internal/api/handler"
	"github.com/saferoute/saferoute/internal/api/middleware"
	"github.com/saferoute/saferoute/internal/api/response"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics

	// Scorer ranks candidate routes; Community serves area scores and feedback.
	Scorer    handler.RouteScorer
	Community handler.CommunityService

	// Store backs the readiness probe and Health the status endpoint. Both
	// are optional.
	Store  handler.Pinger
	Health handler.HealthSource

	// Tokens authenticates bearer tokens on feedback endpoints.
	Tokens middleware.TokenValidator

	// RequireTLS rejects plain-HTTP requests forwarded by a proxy.
	RequireTLS bool
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "saferoute-api"
	}

	// Order matters: the request ID must exist before spans and logs use it.
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing(serviceName))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware())
	}
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.RequireTLS(cfg.RequireTLS))
	r.Use(middleware.ContentTypeJSON)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.NotFound(w, r, "no such endpoint")
	})

	opsHandler := handler.NewOpsHandler(handler.OpsConfig{
		Version:   cfg.Version,
		BuildTime: cfg.BuildTime,
		Store:     cfg.Store,
		Health:    cfg.Health,
		Logger:    cfg.Logger,
	})
	routeHandler := handler.NewRouteHandler(cfg.Scorer, cfg.Logger)
	communityHandler := handler.NewCommunityHandler(cfg.Community, cfg.Logger)

	authMiddleware := middleware.Auth(cfg.Tokens)

	scoringRateLimit := middleware.RateLimitByIP(middleware.ScoringRateLimit)   // 30 req/min
	standardRateLimit := middleware.RateLimitByIP(middleware.StandardRateLimit) // 100 req/min

	r.Route("/v1", func(r chi.Router) {
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.With(authMiddleware).Get("/status", opsHandler.SystemStatus)
		})

		// Scoring is CPU- and store-bound, so it gets the tighter limit.
		r.Group(func(r chi.Router) {
			r.Use(scoringRateLimit)
			r.Use(middleware.RequireJSON)
			r.Post("/routes:score", routeHandler.ScoreRoutes)
			r.Post("/routes:community-score", communityHandler.CommunityScore)
		})

		// Public reads.
		r.Group(func(r chi.Router) {
			r.Use(standardRateLimit)
			r.Get("/grid", communityHandler.GridLookup)
			r.Get("/areas/{gridId}", communityHandler.GetArea)
			r.Get("/areas/{gridId}/reports", communityHandler.ListReports)
		})

		// Authenticated feedback, limited per user.
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware)
			r.With(middleware.RateLimitByUser(middleware.StandardRateLimit)).
				Get("/areas/{gridId}/eligibility", communityHandler.CheckEligibility)
			r.With(middleware.RequireJSON, middleware.RateLimitByUser(middleware.FeedbackRateLimit)).
				Post("/feedback", communityHandler.SubmitFeedback)
		})
	})

	return r
}
