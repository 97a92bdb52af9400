package response_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saferoute/saferoute/internal/api/middleware"
	"github.com/saferoute/saferoute/internal/api/models"
	"github.com/saferoute/saferoute/internal/api/response"
)

// requestWithID returns a request whose context carries a request ID, as if
// it had passed through the RequestID middleware.
func requestWithID(t *testing.T, method, path string) *http.Request {
	t.Helper()
	var processed *http.Request
	middleware.RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		processed = r
	})).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(method, path, http.NoBody))
	require.NotNil(t, processed)
	return processed
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) models.Problem {
	t.Helper()
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	var p models.Problem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	return p
}

func TestJSON_IncludesRequestID(t *testing.T) {
	req := requestWithID(t, http.MethodGet, "/test")
	rec := httptest.NewRecorder()

	response.JSON(rec, req, http.StatusOK, map[string]string{"message": "hello"})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, middleware.GetRequestID(req.Context()), rec.Header().Get("X-Request-Id"))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"message":"hello"}`, rec.Body.String())
}

func TestJSON_WithoutRequestID(t *testing.T) {
	rec := httptest.NewRecorder()
	response.JSON(rec, httptest.NewRequest(http.MethodGet, "/test", http.NoBody), http.StatusOK, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Request-Id"))
	assert.Empty(t, rec.Body.String())
}

func TestCreated_SetsLocation(t *testing.T) {
	req := requestWithID(t, http.MethodPost, "/v1/feedback")
	rec := httptest.NewRecorder()

	response.Created(rec, req, "/v1/areas/12.35_77.65", map[string]bool{"success": true})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "/v1/areas/12.35_77.65", rec.Header().Get("Location"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestValidationFailed_ListsFields(t *testing.T) {
	req := requestWithID(t, http.MethodPost, "/v1/routes:score")
	rec := httptest.NewRecorder()

	response.ValidationFailed(rec, req, []models.FieldError{
		{Field: "routes[0].routeId", Message: "is required", Code: "REQUIRED"},
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	p := decodeProblem(t, rec)
	assert.Equal(t, models.ProblemTypeValidation, p.Type)
	assert.Equal(t, "/v1/routes:score", p.Instance)
	assert.Equal(t, middleware.GetRequestID(req.Context()), p.TraceID)
	require.Len(t, p.Errors, 1)
	assert.Equal(t, "routes[0].routeId", p.Errors[0].Field)
}

func TestProblemResponses(t *testing.T) {
	tests := []struct {
		name   string
		write  func(w http.ResponseWriter, r *http.Request)
		status int
		typ    string
	}{
		{
			name:   "unauthorized",
			write:  func(w http.ResponseWriter, r *http.Request) { response.Unauthorized(w, r, "no user") },
			status: http.StatusUnauthorized,
			typ:    models.ProblemTypeUnauthorized,
		},
		{
			name:   "not found",
			write:  func(w http.ResponseWriter, r *http.Request) { response.NotFound(w, r, "no such area") },
			status: http.StatusNotFound,
			typ:    models.ProblemTypeNotFound,
		},
		{
			name:   "internal",
			write:  func(w http.ResponseWriter, r *http.Request) { response.InternalError(w, r, "oops") },
			status: http.StatusInternalServerError,
			typ:    models.ProblemTypeInternal,
		},
		{
			name:   "unavailable",
			write:  func(w http.ResponseWriter, r *http.Request) { response.ServiceUnavailable(w, r, "store down", 0) },
			status: http.StatusServiceUnavailable,
			typ:    models.ProblemTypeUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := requestWithID(t, http.MethodGet, "/v1/areas/1.00_1.00")
			rec := httptest.NewRecorder()

			tt.write(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			p := decodeProblem(t, rec)
			assert.Equal(t, tt.typ, p.Type)
			assert.Equal(t, tt.status, p.Status)
			assert.Equal(t, "/v1/areas/1.00_1.00", p.Instance)
			assert.NotEmpty(t, p.Detail)
		})
	}
}

func TestServiceUnavailable_RetryAfter(t *testing.T) {
	rec := httptest.NewRecorder()
	response.ServiceUnavailable(rec, requestWithID(t, http.MethodGet, "/v1/ops/ready"), "store down", 5)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "5", rec.Header().Get("Retry-After"))
}
