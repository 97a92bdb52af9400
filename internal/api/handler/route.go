package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/saferoute/saferoute/internal/api/models"
	"github.com/saferoute/saferoute/internal/api/response"
	"github.com/saferoute/saferoute/internal/safety"
)

// RouteScorer scores a batch of candidate routes relative to each other.
type RouteScorer interface {
	ScoreRoutes(routes []safety.RouteInput, env safety.Environment) []safety.Result
}

// RouteHandler handles route scoring endpoints.
type RouteHandler struct {
	scorer RouteScorer
	logger zerolog.Logger
	now    func() time.Time
}

// NewRouteHandler creates a new RouteHandler.
func NewRouteHandler(scorer RouteScorer, logger zerolog.Logger) *RouteHandler {
	return &RouteHandler{scorer: scorer, logger: logger, now: time.Now}
}

// ScoreRoutes handles POST /v1/routes:score. Results are returned in the
// order the routes were sent.
func (h *RouteHandler) ScoreRoutes(w http.ResponseWriter, r *http.Request) {
	var req models.RouteScoreRequest
	if err := decodeJSON(w, r, &req); err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}
	if errs := models.Validate(req); errs != nil {
		response.ValidationFailed(w, r, errs)
		return
	}

	routes, env := req.ToDomain()
	if err := safety.Validate(routes, env); err != nil {
		var verr *safety.ValidationError
		if errors.As(err, &verr) {
			response.ValidationFailed(w, r, fieldErrors(verr))
			return
		}
		response.BadRequest(w, r, err.Error(), nil)
		return
	}

	results := h.scorer.ScoreRoutes(routes, env)

	resp := models.RouteScoreResponse{
		GeneratedAt: models.Timestamp(h.now()),
		Results:     make([]models.SafetyResult, len(results)),
	}
	for i, res := range results {
		resp.Results[i] = models.NewSafetyResult(res)
	}

	h.logger.Debug().
		Int("routes", len(routes)).
		Int("hour", env.HourOfDay).
		Str("weather", string(env.Weather)).
		Msg("scored routes")

	response.JSON(w, r, http.StatusOK, resp)
}

func fieldErrors(verr *safety.ValidationError) []models.FieldError {
	out := make([]models.FieldError, len(verr.Errors))
	for i, fe := range verr.Errors {
		out[i] = models.FieldError{Field: fe.Field, Message: fe.Message, Code: "INVALID"}
	}
	return out
}
