package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	"github.com/openclaw/clawjobs/internal/limiter"
	"github.com/openclaw/clawjobs/internal/service"
)

// RateLimit caps each client IP at requestsPerMinute across every route it
// is mounted on. Share one instance between routes to share the budget.
func RateLimit(requestsPerMinute int) func(http.Handler) http.Handler {
	return httprate.Limit(
		requestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(tooManyRequests),
	)
}

// RateLimitByCredential limits requests per presented API key. The key is
// hashed before it is used as a bucket name; requests without a key share
// their IP's bucket.
func RateLimitByCredential(requestsPerMinute int) func(http.Handler) http.Handler {
	return httprate.Limit(
		requestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if raw := service.CredentialFromRequest(r); raw != "" {
				return "key:" + service.HashKey(raw), nil
			}
			return "ip:" + limiter.HashIP(clientIP(r)), nil
		}),
		httprate.WithLimitHandler(tooManyRequests),
	)
}

func tooManyRequests(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
}
