package api_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saferoute/saferoute/internal/api"
	"github.com/saferoute/saferoute/internal/api/models"
	"github.com/saferoute/saferoute/internal/auth"
	"github.com/saferoute/saferoute/internal/community"
	"github.com/saferoute/saferoute/internal/provider/resilience"
	"github.com/saferoute/saferoute/internal/safety"
)

func testJWTService() *auth.JWTService {
	return auth.NewJWTService(auth.JWTConfig{
		SigningKey: "test-secret-key-for-testing-only",
		Issuer:     "saferoute",
		Audience:   "saferoute-api",
	})
}

func generateTestToken(t *testing.T, userID string) string {
	t.Helper()
	token, _, err := testJWTService().GenerateAccessToken(userID)
	require.NoError(t, err)
	return token
}

func newTestRouter() http.Handler {
	logger := zerolog.New(io.Discard)
	registry := resilience.NewRegistry()
	svc := community.NewService(community.ServiceConfig{
		Repository: community.NewInMemoryRepository(),
		Registry:   registry,
		Logger:     logger,
		Now:        func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
	})

	return api.NewRouter(api.RouterConfig{
		Version:   "test",
		BuildTime: "2026-01-01T00:00:00Z",
		Logger:    logger,
		Scorer:    safety.MustNewEngine(safety.DefaultConfig()),
		Community: svc,
		Store:     svc,
		Health:    registry,
		Tokens:    testJWTService(),
	})
}

func serve(router http.Handler, method, path string, body []byte, token string) *httptest.ResponseRecorder {
	var reader io.Reader = http.NoBody
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRouter_HealthCheck(t *testing.T) {
	rec := serve(newTestRouter(), http.MethodGet, "/v1/ops/health", nil, "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	var health models.Health
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, models.HealthStatusOK, health.Status)
	assert.Equal(t, "test", health.Details["version"])
}

func TestRouter_ReadinessCheck(t *testing.T) {
	rec := serve(newTestRouter(), http.MethodGet, "/v1/ops/ready", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_SystemStatus(t *testing.T) {
	router := newTestRouter()

	rec := serve(router, http.MethodGet, "/v1/ops/status", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(router, http.MethodGet, "/v1/ops/status", nil, generateTestToken(t, "ops-user"))
	require.Equal(t, http.StatusOK, rec.Code)

	var status models.SystemStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, models.HealthStatusOK, status.Status)
	require.Len(t, status.Dependencies, 1)
	assert.Equal(t, community.StoreGuardName, status.Dependencies[0].Name)
	assert.Equal(t, "closed", status.Dependencies[0].CircuitState)
}

func TestRouter_ScoreRoutes(t *testing.T) {
	body := []byte(`{
		"routes": [
			{"routeId": "a", "distanceKm": 2, "durationMin": 10, "turnCount": 3},
			{"routeId": "b", "distanceKm": 5, "durationMin": 25, "turnCount": 9, "lightingLevel": "dark"},
			{"routeId": "c", "distanceKm": 9, "durationMin": 40, "turnCount": 15, "crimeLevel": "high"}
		],
		"environment": {"hourOfDay": 14, "weather": "clear"}
	}`)

	rec := serve(newTestRouter(), http.MethodPost, "/v1/routes:score", body, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp models.RouteScoreResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 3)

	ranks := map[int]bool{}
	for _, r := range resp.Results {
		ranks[r.Rank] = true
		assert.GreaterOrEqual(t, r.SafetyScore, 0)
		assert.LessOrEqual(t, r.SafetyScore, 100)
	}
	assert.Len(t, ranks, 3)
}

func TestRouter_ScoreRoutes_RequiresJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/routes:score", bytes.NewReader([]byte("routes=a")))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	newTestRouter().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestRouter_FeedbackRequiresAuth(t *testing.T) {
	router := newTestRouter()

	rec := serve(router, http.MethodPost, "/v1/feedback", []byte(`{"lat":1,"lng":1,"isSafe":true}`), "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	rec = serve(router, http.MethodGet, "/v1/areas/1.00_1.00/eligibility", nil, "not-a-token")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_FeedbackRoundTrip(t *testing.T) {
	router := newTestRouter()
	token := generateTestToken(t, "user-42")

	rec := serve(router, http.MethodPost, "/v1/feedback", []byte(`{"lat":52.3702,"lng":4.8952,"isSafe":true}`), token)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = serve(router, http.MethodGet, "/v1/grid?lat=52.3702&lng=4.8952", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var cell models.GridLookupResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cell))
	assert.Equal(t, "52.37_4.90", cell.GridID)

	rec = serve(router, http.MethodGet, "/v1/areas/"+cell.GridID, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var area models.AreaResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &area))
	assert.Equal(t, 100, area.Score)
	assert.Equal(t, 1, area.SafeCount)

	rec = serve(router, http.MethodGet, "/v1/areas/"+cell.GridID+"/eligibility", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	var elig models.EligibilityResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &elig))
	assert.False(t, elig.CanSubmit)

	// Another user is unaffected by the first user's cooldown.
	rec = serve(router, http.MethodGet, "/v1/areas/"+cell.GridID+"/eligibility", nil, generateTestToken(t, "user-43"))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &elig))
	assert.True(t, elig.CanSubmit)
}

func TestRouter_NotFound(t *testing.T) {
	rec := serve(newTestRouter(), http.MethodGet, "/v1/unknown", nil, "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestRouter_RequireTLS(t *testing.T) {
	router := api.NewRouter(api.RouterConfig{
		Logger:     zerolog.Nop(),
		Scorer:     safety.MustNewEngine(safety.DefaultConfig()),
		Tokens:     testJWTService(),
		RequireTLS: true,
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/ops/health", http.NoBody)
	req.Header.Set("X-Forwarded-Proto", "http")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}
