package models

import (
	"encoding/json"
	"net/http"
)

// ProblemContentType is the media type of every error response.
const ProblemContentType = "application/problem+json"

// Problem is an RFC7807 error body. TraceID echoes the request ID.
type Problem struct {
	Type     string       `json:"type"`
	Title    string       `json:"title"`
	Status   int          `json:"status"`
	Detail   string       `json:"detail,omitempty"`
	Instance string       `json:"instance,omitempty"`
	TraceID  string       `json:"traceId"`
	Errors   []FieldError `json:"errors,omitempty"`
}

// FieldError points at one invalid request field, e.g. "routes[1].routeId".
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

const problemBase = "https://api.saferoute.dev/problems/"

// Problem type URIs.
const (
	ProblemTypeValidation       = problemBase + "validation-error"
	ProblemTypeUnauthorized     = problemBase + "unauthorized"
	ProblemTypeTLSRequired      = problemBase + "tls-required"
	ProblemTypeNotFound         = problemBase + "not-found"
	ProblemTypeUnsupportedMedia = problemBase + "unsupported-media-type"
	ProblemTypeTooManyRequests  = problemBase + "too-many-requests"
	ProblemTypeInternal         = problemBase + "internal-error"
	ProblemTypeUnavailable      = problemBase + "service-unavailable"
)

// kinds maps each status the API emits to its problem type and title.
var kinds = map[int]struct{ typ, title string }{
	http.StatusBadRequest:           {ProblemTypeValidation, "Validation error"},
	http.StatusUnauthorized:         {ProblemTypeUnauthorized, "Unauthorized"},
	http.StatusForbidden:            {ProblemTypeTLSRequired, "TLS required"},
	http.StatusNotFound:             {ProblemTypeNotFound, "Not found"},
	http.StatusUnsupportedMediaType: {ProblemTypeUnsupportedMedia, "Unsupported media type"},
	http.StatusTooManyRequests:      {ProblemTypeTooManyRequests, "Too many requests"},
	http.StatusInternalServerError:  {ProblemTypeInternal, "Internal server error"},
	http.StatusServiceUnavailable:   {ProblemTypeUnavailable, "Service unavailable"},
}

// NewProblem creates a Problem with an explicit type and title.
func NewProblem(problemType, title string, status int, traceID string) *Problem {
	return &Problem{
		Type:    problemType,
		Title:   title,
		Status:  status,
		TraceID: traceID,
	}
}

// ForStatus creates the standard Problem for status. Statuses without a
// registered kind fall back to about:blank and the HTTP status text.
func ForStatus(status int, traceID, detail string) *Problem {
	k, ok := kinds[status]
	if !ok {
		k.typ, k.title = "about:blank", http.StatusText(status)
	}
	return NewProblem(k.typ, k.title, status, traceID).WithDetail(detail)
}

func (p *Problem) WithDetail(detail string) *Problem {
	p.Detail = detail
	return p
}

func (p *Problem) WithInstance(instance string) *Problem {
	p.Instance = instance
	return p
}

func (p *Problem) WithErrors(errors []FieldError) *Problem {
	p.Errors = errors
	return p
}

// Write sends the Problem with its status code.
func (p *Problem) Write(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", ProblemContentType)
	if p.TraceID != "" {
		h.Set("X-Request-Id", p.TraceID)
	}
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

func NewBadRequest(traceID, detail string, errors []FieldError) *Problem {
	return ForStatus(http.StatusBadRequest, traceID, detail).WithErrors(errors)
}

func NewUnauthorized(traceID, detail string) *Problem {
	return ForStatus(http.StatusUnauthorized, traceID, detail)
}

func NewTLSRequired(traceID string) *Problem {
	return ForStatus(http.StatusForbidden, traceID, "This endpoint requires HTTPS")
}

func NewNotFound(traceID, detail string) *Problem {
	return ForStatus(http.StatusNotFound, traceID, detail)
}

func NewUnsupportedMediaType(traceID, detail string) *Problem {
	return ForStatus(http.StatusUnsupportedMediaType, traceID, detail)
}

func NewTooManyRequests(traceID, detail string) *Problem {
	return ForStatus(http.StatusTooManyRequests, traceID, detail)
}

func NewInternalError(traceID, detail string) *Problem {
	return ForStatus(http.StatusInternalServerError, traceID, detail)
}

func NewServiceUnavailable(traceID, detail string) *Problem {
	return ForStatus(http.StatusServiceUnavailable, traceID, detail)
}
