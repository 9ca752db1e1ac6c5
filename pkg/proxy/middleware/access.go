package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"mercator-hq/relay/pkg/security/cookie"
	"mercator-hq/relay/pkg/telemetry/logging"
	"mercator-hq/relay/pkg/usage"
)

// AccessRecorder receives one access record per request.
type AccessRecorder interface {
	Record(ctx context.Context, record *usage.Record) error
}

// AccessLogMiddleware writes an access record once the response is done.
// It must run inside the session cookie middleware: requests without a
// bound session are recorded as usage.UnknownSession. A nil recorder only
// logs.
func AccessLogMiddleware(recorder AccessRecorder, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "access")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rw := wrapResponseWriter(w)
			next.ServeHTTP(rw, r)

			// Records are stamped with the arrival time when LoggingMiddleware
			// runs further out.
			at := GetStartTime(r.Context())
			if at.IsZero() {
				at = time.Now()
			}
			record := &usage.Record{
				SessionID: usage.UnknownSession,
				Method:    r.Method,
				URL:       r.RequestURI,
				Status:    rw.statusCode,
				Time:      at.UTC(),
			}
			if sid, ok := cookie.SessionID(r.Context()); ok {
				record.SessionID = sid
			}
			if record.URL == "" {
				record.URL = r.URL.RequestURI()
			}
			record.URL = logging.RedactPath(record.URL)

			logger.InfoContext(r.Context(), "access",
				"session_id", record.SessionID,
				"method", record.Method,
				"url", record.URL,
				"status", record.Status,
			)

			if recorder == nil {
				return
			}
			if err := recorder.Record(context.WithoutCancel(r.Context()), record); err != nil {
				logger.DebugContext(r.Context(), "access record dropped", "error", err)
			}
		})
	}
}
