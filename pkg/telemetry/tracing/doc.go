// Package tracing provides OpenTelemetry distributed tracing for the relay.
//
// New installs a global tracer provider exporting over OTLP gRPC, so the
// proxy and pairing packages start spans through otel.Tracer without a
// reference to this package's Tracer. HTTPMiddleware opens one server span
// per request and continues the caller's W3C trace context; the gateway
// injects it into the origin request, so one trace covers client, relay and
// origin.
//
// # Sampling
//
//	telemetry:
//	  tracing:
//	    enabled: true
//	    sampler: ratio      # always | never | ratio
//	    sample_ratio: 0.1
//	    endpoint: otel-collector:4317
//
// Samplers are parent based: a sampled incoming traceparent is always
// honoured.
//
// # Spans
//
//   - "<route pattern>": server span for the whole request
//   - proxy.decode, proxy.forward, proxy.encode: pipeline stages
//   - pairing.Pair: key agreement
//
// Outcomes are recorded with EndOperation under the relay.* attribute keys.
package tracing
