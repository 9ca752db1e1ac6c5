package middleware

import (
	"net/http"
	"time"

	"mercator-hq/relay/pkg/telemetry/tracing"
)

// RequestMetrics records completed requests.
type RequestMetrics interface {
	RecordRequest(method, route string, status int, duration time.Duration)
}

// MetricsMiddleware records every request by method, route pattern and
// status. It must wrap the http.ServeMux directly: the mux sets r.Pattern
// on the request it is handed, and any middleware in between would hand it
// a copy. Unmatched requests are recorded under route "other". The matched
// pattern also names the server span of the request.
func MetricsMiddleware(metrics RequestMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := wrapResponseWriter(w)

			next.ServeHTTP(rw, r)

			route := r.Pattern
			if route == "" {
				route = "other"
			} else {
				tracing.SetRoute(r.Context(), route)
			}
			metrics.RecordRequest(r.Method, route, rw.statusCode, time.Since(start))
		})
	}
}
