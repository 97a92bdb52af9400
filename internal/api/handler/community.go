package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/saferoute/saferoute/internal/api/middleware"
	"github.com/saferoute/saferoute/internal/api/models"
	"github.com/saferoute/saferoute/internal/api/response"
	"github.com/saferoute/saferoute/internal/community"
	"github.com/saferoute/saferoute/internal/grid"
	"github.com/saferoute/saferoute/pkg/polyline"
)

// storeRetryAfter is the Retry-After hint, in seconds, sent with 503s.
const storeRetryAfter = 5

// CommunityService is the community feedback engine behind the handlers.
type CommunityService interface {
	RouteCommunityScore(ctx context.Context, points []grid.Point) (*community.RouteScore, error)
	GetAreaStats(ctx context.Context, gridID string) (*community.AreaStats, error)
	ListReports(ctx context.Context, gridID string, limit int) ([]*community.AreaReport, error)
	CheckEligibility(ctx context.Context, userID, gridID string) (community.Eligibility, error)
	SubmitFeedback(ctx context.Context, req community.FeedbackRequest) (*community.SubmitResult, error)
}

// CommunityHandler handles community score and feedback endpoints.
type CommunityHandler struct {
	service CommunityService
	logger  zerolog.Logger
}

// NewCommunityHandler creates a new CommunityHandler.
func NewCommunityHandler(service CommunityService, logger zerolog.Logger) *CommunityHandler {
	return &CommunityHandler{service: service, logger: logger}
}

// CommunityScore handles POST /v1/routes:community-score.
func (h *CommunityHandler) CommunityScore(w http.ResponseWriter, r *http.Request) {
	var req models.CommunityScoreRequest
	if err := decodeJSON(w, r, &req); err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}
	if errs := models.Validate(req); errs != nil {
		response.ValidationFailed(w, r, errs)
		return
	}

	points, fieldErr := routePoints(req)
	if fieldErr != nil {
		response.ValidationFailed(w, r, []models.FieldError{*fieldErr})
		return
	}

	score, err := h.service.RouteCommunityScore(r.Context(), points)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, models.NewCommunityScoreResponse(score))
}

// routePoints resolves the route to score. Explicit points win over a
// polyline, which is resampled every SampleMeters along its length or, when
// that is unset, thinned to every Nth vertex.
func routePoints(req models.CommunityScoreRequest) ([]grid.Point, *models.FieldError) {
	if len(req.Points) > 0 {
		points := make([]grid.Point, len(req.Points))
		for i, p := range req.Points {
			points[i] = grid.Point{Lat: p.Lat, Lng: p.Lng}
		}
		return points, nil
	}
	if req.Polyline == "" {
		return nil, nil
	}

	coords, err := polyline.Decode(req.Polyline)
	if err != nil {
		return nil, &models.FieldError{Field: "polyline", Message: "is not a valid encoded polyline", Code: "INVALID"}
	}

	if req.SampleMeters > 0 {
		// Checked before sampling so a long route never allocates past the cap.
		if n := int(polyline.Length(coords)/req.SampleMeters) + 2; n > models.MaxRoutePoints {
			return nil, tooManyPoints(n, "sampleMeters")
		}
		coords = polyline.Sample(coords, req.SampleMeters)
	} else {
		every := req.SampleEvery
		if every == 0 {
			every = models.DefaultSampleEvery
		}
		coords = polyline.EveryNth(coords, every)
		if len(coords) > models.MaxRoutePoints {
			return nil, tooManyPoints(len(coords), "sampleEvery")
		}
	}

	points := make([]grid.Point, len(coords))
	for i, c := range coords {
		points[i] = grid.Point{Lat: c.Lat, Lng: c.Lng}
	}
	return points, nil
}

func tooManyPoints(n int, knob string) *models.FieldError {
	return &models.FieldError{
		Field:   "polyline",
		Message: fmt.Sprintf("samples to %d points, more than %d; increase %s", n, models.MaxRoutePoints, knob),
		Code:    "OUT_OF_RANGE",
	}
}

// GridLookup handles GET /v1/grid?lat=&lng=.
func (h *CommunityHandler) GridLookup(w http.ResponseWriter, r *http.Request) {
	var errs []models.FieldError
	lat, fe := queryFloat(r, "lat")
	if fe != nil {
		errs = append(errs, *fe)
	}
	lng, fe := queryFloat(r, "lng")
	if fe != nil {
		errs = append(errs, *fe)
	}
	if errs != nil {
		response.ValidationFailed(w, r, errs)
		return
	}

	p := grid.Point{Lat: lat, Lng: lng}
	if err := p.Validate(); err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}

	cell := grid.Of(p)
	center := cell.Center()
	response.JSON(w, r, http.StatusOK, models.GridLookupResponse{
		GridID: cell.ID,
		Center: models.Point{Lat: center.Lat, Lng: center.Lng},
	})
}

func queryFloat(r *http.Request, name string) (float64, *models.FieldError) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, &models.FieldError{Field: name, Message: "is required", Code: "REQUIRED"}
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, &models.FieldError{Field: name, Message: "must be a number", Code: "INVALID"}
	}
	return v, nil
}

// GetArea handles GET /v1/areas/{gridId}. Cells nobody has rated return the
// neutral score with hasData false rather than 404.
func (h *CommunityHandler) GetArea(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.GetAreaStats(r.Context(), chi.URLParam(r, "gridId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, models.NewAreaResponse(stats))
}

// ListReports handles GET /v1/areas/{gridId}/reports?limit=.
func (h *CommunityHandler) ListReports(w http.ResponseWriter, r *http.Request) {
	cell, ok := h.cellParam(w, r)
	if !ok {
		return
	}

	var limit int
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			response.ValidationFailed(w, r, []models.FieldError{
				{Field: "limit", Message: "must be a positive integer", Code: "INVALID"},
			})
			return
		}
		limit = v
	}
	limit = community.ReportLimit(limit)

	reports, err := h.service.ListReports(r.Context(), cell.ID, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, models.NewAreaReportsResponse(cell.ID, limit, reports))
}

// CheckEligibility handles GET /v1/areas/{gridId}/eligibility for the
// authenticated user.
func (h *CommunityHandler) CheckEligibility(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		response.Unauthorized(w, r, "authentication required")
		return
	}
	cell, ok := h.cellParam(w, r)
	if !ok {
		return
	}

	e, err := h.service.CheckEligibility(r.Context(), userID, cell.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, models.NewEligibilityResponse(cell.ID, e))
}

// SubmitFeedback handles POST /v1/feedback. An accepted rating returns 201;
// a rating refused by the cooldown returns 200 with success false and the
// hours remaining.
func (h *CommunityHandler) SubmitFeedback(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		response.Unauthorized(w, r, "authentication required")
		return
	}

	var req models.FeedbackRequest
	if err := decodeJSON(w, r, &req); err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}
	if errs := models.Validate(req); errs != nil {
		response.ValidationFailed(w, r, errs)
		return
	}

	result, err := h.service.SubmitFeedback(r.Context(), req.ToDomain(userID))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := models.NewFeedbackResponse(result)
	if !result.Success {
		response.JSON(w, r, http.StatusOK, resp)
		return
	}
	response.Created(w, r, "/v1/areas/"+result.GridID, resp)
}

func (h *CommunityHandler) cellParam(w http.ResponseWriter, r *http.Request) (grid.Cell, bool) {
	cell, err := grid.Parse(chi.URLParam(r, "gridId"))
	if err != nil {
		h.writeError(w, r, err)
		return grid.Cell{}, false
	}
	return cell, true
}

// writeError maps community and grid errors onto problem responses.
func (h *CommunityHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, grid.ErrInvalidID):
		response.ValidationFailed(w, r, []models.FieldError{
			{Field: "gridId", Message: "must look like 12.35_77.65", Code: "INVALID"},
		})
	case errors.Is(err, grid.ErrInvalidCoordinates), errors.Is(err, community.ErrInvalidFeedback):
		response.BadRequest(w, r, err.Error(), nil)
	case errors.Is(err, community.ErrStoreUnavailable):
		response.ServiceUnavailable(w, r, "community feedback is temporarily unavailable", storeRetryAfter)
	case errors.Is(err, context.Canceled):
		// The client went away; nobody reads the response.
		h.logger.Debug().Err(err).Str("path", r.URL.Path).Msg("request canceled")
	default:
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("unexpected community error")
		response.InternalError(w, r, "an unexpected error occurred")
	}
}
