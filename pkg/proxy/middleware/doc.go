// Package middleware provides HTTP middleware for cross-cutting concerns.
//
// This package implements middleware functions that handle common functionality
// across all HTTP requests: panic recovery, request IDs, logging, the relay
// id header, CORS, access records, metrics and request deadlines.
//
// # Middleware Chain
//
// The server assembles the chain outermost first:
//
//	Recovery → RequestID → tracing → Logging → RelayID → CORS →
//	session cookie → AccessLog → Timeout → Metrics → mux
//
// Order matters in four places:
//   - The tracing middleware runs before Logging so request logs carry
//     the trace and span ids.
//   - AccessLog runs inside the session cookie middleware, which is what
//     binds the session id it records.
//   - Metrics wraps the mux directly, because the mux reports the matched
//     route pattern on the request it receives.
//   - RelayID runs before anything that can answer early, so CORS
//     preflights and errors carry the x-mte-id header too.
//
// # Request ID
//
// RequestIDMiddleware generates a unique ID for each request using UUID v4,
// or keeps a printable client-supplied one:
//
//	X-Request-ID: 550e8400-e29b-41d4-a716-446655440000
//
// # Logging
//
// LoggingMiddleware uses structured logging (log/slog) to record request
// details. AccessLogMiddleware adds the session id and hands a usage.Record
// to the usage recorder.
//
// # CORS
//
// CORSMiddleware takes a fixed configuration. CORS holds one that can be
// swapped at runtime, which the config watcher uses on reload. Allowed
// origins are echoed back instead of "*" so browsers send the session
// cookie.
//
// # Timeout
//
// TimeoutMiddleware only attaches a deadline to the request context; the
// handler still writes the response. The gateway turns an expired deadline
// into 504.
package middleware
