package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saferoute/saferoute/internal/api/middleware"
	"github.com/saferoute/saferoute/internal/auth"
)

const testSigningKey = "test-signing-key-that-is-at-least-32-bytes"

func newTestTokens(now func() time.Time) *auth.JWTService {
	return auth.NewJWTService(auth.JWTConfig{
		SigningKey: testSigningKey,
		Issuer:     "saferoute",
		Audience:   "saferoute-api",
		Now:        now,
	})
}

// echoUser writes the authenticated user ID as the body.
func echoUser() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(middleware.GetUserID(r.Context())))
	})
}

func TestAuth_MissingAuthorizationHeader(t *testing.T) {
	handler := middleware.Auth(newTestTokens(nil))(echoUser())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", http.NoBody))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing authorization header")
	assert.Equal(t, `Bearer realm="saferoute"`, rec.Header().Get("WWW-Authenticate"))
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestAuth_InvalidAuthorizationFormat(t *testing.T) {
	handler := middleware.Auth(newTestTokens(nil))(echoUser())

	tests := []struct {
		name   string
		header string
		detail string
	}{
		{"no bearer prefix", "token123", "invalid authorization header format"},
		{"basic auth", "Basic dXNlcjpwYXNz", "invalid authorization header format"},
		{"just bearer", "Bearer", "invalid authorization header format"},
		{"empty bearer", "Bearer ", "missing bearer token"},
		{"garbage token", "Bearer not.a.jwt", "invalid access token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
			req.Header.Set("Authorization", tt.header)
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.detail)
		})
	}
}

func TestAuth_ValidToken(t *testing.T) {
	tokens := newTestTokens(nil)
	token, _, err := tokens.GenerateAccessToken("user-123")
	require.NoError(t, err)

	for _, prefix := range []string{"Bearer ", "bearer ", "BEARER "} {
		req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
		req.Header.Set("Authorization", prefix+token)
		rec := httptest.NewRecorder()

		middleware.Auth(tokens)(echoUser()).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code, prefix)
		assert.Equal(t, "user-123", rec.Body.String())
	}
}

func TestAuth_ExpiredToken(t *testing.T) {
	issued := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	token, _, err := newTestTokens(func() time.Time { return issued }).GenerateAccessToken("user-123")
	require.NoError(t, err)

	later := newTestTokens(func() time.Time { return issued.Add(auth.AccessTokenExpiry + time.Minute) })

	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	middleware.Auth(later)(echoUser()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "access token has expired")
}

func TestAuth_WrongSigningKey(t *testing.T) {
	other := auth.NewJWTService(auth.JWTConfig{
		SigningKey: "a-different-signing-key-of-32-bytes-or-more",
		Issuer:     "saferoute",
		Audience:   "saferoute-api",
	})
	token, _, err := other.GenerateAccessToken("user-123")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	middleware.Auth(newTestTokens(nil))(echoUser()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid access token")
}

func TestGetUserID_NoAuth(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	assert.Empty(t, middleware.GetUserID(req.Context()))
	assert.Equal(t, "u1", middleware.GetUserID(middleware.WithUserID(req.Context(), "u1")))
}
