package middleware

import (
	"context"
	"net/http"
	"time"
)

// TimeoutMiddleware enforces a per-request deadline using context.WithTimeout.
// The handler keeps ownership of the response: handlers that block on the
// context (the gateway's origin round trip in particular) observe
// context.DeadlineExceeded and answer 504 themselves. A zero timeout
// disables the middleware.
//
// Example usage:
//
//	handler = TimeoutMiddleware(60 * time.Second)(handler)
func TimeoutMiddleware(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if timeout <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
