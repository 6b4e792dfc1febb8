package web

import (
	"net"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/go-i2p/regionpool/lib/errors"
	"github.com/go-i2p/regionpool/lib/metrics"
	"github.com/go-i2p/regionpool/lib/ratelimit"
)

// RateLimitConfig configures per-IP rate limiting of the API.
type RateLimitConfig struct {
	// RequestsPerSecond is the rate of allowed requests per IP.
	RequestsPerSecond float64
	// BurstSize is the maximum burst size per IP.
	BurstSize int
	// CleanupInterval is how often to clean up idle limiters.
	CleanupInterval time.Duration
}

// DefaultRateLimitConfig returns the defaults used for zero fields.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 50,
		BurstSize:         100,
		CleanupInterval:   ratelimit.DefaultCleanupInterval,
	}
}

// RateLimiter is HTTP middleware enforcing a per-IP token bucket.
type RateLimiter struct {
	limiter  *ratelimit.KeyedLimiter
	onReject func(ip, path string)
}

// NewRateLimiter creates a rate limiter with the given configuration.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	d := DefaultRateLimitConfig()
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = d.RequestsPerSecond
	}
	if cfg.BurstSize <= 0 {
		cfg.BurstSize = d.BurstSize
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = d.CleanupInterval
	}
	return &RateLimiter{
		limiter: ratelimit.NewKeyed(cfg.RequestsPerSecond, cfg.BurstSize, cfg.CleanupInterval),
	}
}

// SetOnReject sets a callback invoked when a request is rate limited.
func (rl *RateLimiter) SetOnReject(fn func(ip, path string)) {
	rl.onReject = fn
}

// Close stops the cleanup goroutine.
func (rl *RateLimiter) Close() {
	rl.limiter.Close()
}

// Middleware rejects requests over the limit with 429 and a JSON error.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := extractIP(r)
		if !rl.limiter.Allow(ip) {
			metrics.RateLimitRejections.Inc()
			if rl.onReject != nil {
				rl.onReject(ip, r.URL.Path)
			}
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusTooManyRequests, errorResponse{
				Error: "too many requests",
				Code:  apperrors.CodeRateLimited,
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// extractIP returns the client address, preferring the first
// X-Forwarded-For entry, then X-Real-IP, then the connection address.
func extractIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
			return ip.String()
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if ip := net.ParseIP(strings.TrimSpace(xri)); ip != nil {
			return ip.String()
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
