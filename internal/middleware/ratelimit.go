package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// RateLimit limits requests per client IP.
func RateLimit(requestsPerMinute int) func(http.Handler) http.Handler {
	return rateLimit(requestsPerMinute, httprate.KeyByIP)
}

// RateLimitByPath limits per IP and path, so one noisy provider endpoint does
// not starve the others.
func RateLimitByPath(requestsPerMinute int) func(http.Handler) http.Handler {
	return rateLimit(requestsPerMinute, httprate.KeyByIP, httprate.KeyByEndpoint)
}

func rateLimit(requestsPerMinute int, keyFuncs ...httprate.KeyFunc) func(http.Handler) http.Handler {
	return httprate.Limit(
		requestsPerMinute,
		1*time.Minute,
		httprate.WithKeyFuncs(keyFuncs...),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded", "rate_limit")
		}),
	)
}
