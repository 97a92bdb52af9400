package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/saferoute/saferoute/internal/api/models"
)

// RateLimitConfig is a request budget per key and window.
type RateLimitConfig struct {
	RequestLimit int
	WindowLength time.Duration
}

var (
	// FeedbackRateLimit bounds feedback writes per user.
	FeedbackRateLimit = RateLimitConfig{RequestLimit: 10, WindowLength: time.Minute}

	// ScoringRateLimit bounds route scoring per client IP.
	ScoringRateLimit = RateLimitConfig{RequestLimit: 30, WindowLength: time.Minute}

	// StandardRateLimit bounds area reads per client IP.
	StandardRateLimit = RateLimitConfig{RequestLimit: 100, WindowLength: time.Minute}
)

// RateLimitByIP limits by client address. Behind a proxy, chi's RealIP must
// run first so the forwarded address is used.
func RateLimitByIP(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return cfg.limiter(httprate.KeyByRealIP)
}

// RateLimitByUser limits by authenticated user, or by address when the
// request carries no user.
func RateLimitByUser(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return cfg.limiter(keyByUserOrIP)
}

func (cfg RateLimitConfig) limiter(key httprate.KeyFunc) func(http.Handler) http.Handler {
	// httprate does not expose the reset time, so the whole window is advertised.
	retryAfter := strconv.Itoa(int(math.Ceil(cfg.WindowLength.Seconds())))

	return httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowLength,
		httprate.WithKeyFuncs(key),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", retryAfter)
			models.NewTooManyRequests(GetRequestID(r.Context()), "Rate limit exceeded. Please try again later.").
				WithInstance(r.URL.Path).
				Write(w)
		}),
	)
}

func keyByUserOrIP(r *http.Request) (string, error) {
	if userID := GetUserID(r.Context()); userID != "" {
		return "user:" + userID, nil
	}
	return httprate.KeyByRealIP(r)
}
