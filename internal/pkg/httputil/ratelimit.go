package httputil

import (
	"net/http"
	"strconv"

	"github.com/examdesk/incidentd/internal/pkg/metrics"
	"golang.org/x/time/rate"
)

// RateLimitMiddleware rejects requests with 429 once the token bucket is empty.
// A limit of zero or less disables limiting.
func RateLimitMiddleware(limit float64, burst int) func(http.Handler) http.Handler {
	if limit <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(limit), burst)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				metrics.HTTPRateLimited.Inc()
				w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(limit)))
				Error(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func retryAfterSeconds(limit float64) int {
	if limit >= 1 {
		return 1
	}
	return int(1/limit) + 1
}
