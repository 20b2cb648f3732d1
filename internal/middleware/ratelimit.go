package middleware

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"collab/backend/internal/httpjson"
	"collab/backend/internal/ratelimit"
)

// IPResolver returns the rate-limit key for a request.
type IPResolver func(r *http.Request) string

// RateLimit sheds requests whose client IP exceeded the limiter's window.
// Store failures let the request through.
func RateLimit(l *ratelimit.Limiter, ip IPResolver, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d, err := l.Allow(r.Context(), ip(r))
			if err != nil {
				log.Warn("rate limit check failed", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			if !d.Allowed {
				WriteTooManyRequests(w, d)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WriteTooManyRequests writes a 429 with Retry-After.
func WriteTooManyRequests(w http.ResponseWriter, d ratelimit.Decision) {
	secs := d.RetryAfterSeconds()
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	httpjson.Write(w, http.StatusTooManyRequests, map[string]any{
		"error":      "Too many requests",
		"retryAfter": secs,
	})
}
