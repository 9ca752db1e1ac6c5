// Package telemetry provides observability for the relay.
//
// # Components
//
//   - logging: structured slog logging with secret redaction and a level
//     that can change while the relay runs
//   - metrics: Prometheus metrics for requests, transforms, pairing and
//     the session state cache
//   - tracing: OpenTelemetry spans exported over OTLP gRPC
//   - health: liveness and readiness checks
//
// # Usage
//
//	tel, err := telemetry.New(&cfg.Telemetry, version.Version)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	logger := tel.Logger().Slog()
//	pairer := pairing.New(pairing.Config{Logger: logger, Metrics: tel.Metrics()}, states)
//
// # Secrets
//
// Session cookies, bearer tokens and key material never reach the log
// output in clear; see logging.Redactor.
package telemetry
