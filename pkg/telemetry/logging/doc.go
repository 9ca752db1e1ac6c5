// Package logging configures the process log/slog logger.
//
// # Overview
//
// New builds a JSON or text slog handler wrapped by a handler that:
//   - redacts secrets from messages and attribute values (bearer tokens,
//     session cookies, passwords, custom patterns from configuration)
//   - masks attributes whose keys look sensitive ("token", "secret",
//     "cookie", public key fields of the pairing exchange)
//   - adds request_id and session_id from the context, plus trace_id and
//     span_id when an OpenTelemetry span is active
//
// The level lives in a slog.LevelVar so the config watcher can change it
// without rebuilding the logger.
//
// # Usage
//
//	logger, err := logging.New(logging.FromConfig(cfg.Telemetry.Logging))
//	if err != nil {
//	    return err
//	}
//	logger.SetDefault()
//
//	ctx = logging.WithRequestID(ctx, "req-123")
//	slog.InfoContext(ctx, "pairing completed", "token", tok) // token masked
package logging
