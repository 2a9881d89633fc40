package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/openclaw/clawjobs/internal/calllog"
	"github.com/openclaw/clawjobs/internal/metrics"
)

// CallLog records exactly one call log entry for every request it wraps,
// after the response has been written. The entry's status is the status the
// client received. Mount it outside AgentAuth and a panic recoverer so
// rejected and crashed requests are captured too.
func CallLog(rec *calllog.Recorder, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx, info := calllog.WithInfo(r.Context())
			ww := wrapWriter(w)

			next.ServeHTTP(ww, r.WithContext(ctx))

			elapsed := time.Since(start)
			rec.Record(ctx, info.Entry(r.URL.Path, r.Method, ww.status, elapsed.Milliseconds()))
			m.ObserveCall(routePattern(r), r.Method, ww.status, elapsed)
		})
	}
}

// routePattern returns the matched chi pattern, which keeps metric label
// cardinality bounded.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}
