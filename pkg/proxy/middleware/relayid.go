package middleware

import "net/http"

// RelayIDHeader carries the relay instance id.
const RelayIDHeader = "x-mte-id"

// RelayIDMiddleware sets the relay instance id on every response, errors
// included.
func RelayIDMiddleware(id string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set(RelayIDHeader, id)
			next.ServeHTTP(w, r)
		})
	}
}
