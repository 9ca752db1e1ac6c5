package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys for relay operations. Standard HTTP keys follow the
// OpenTelemetry semantic conventions; relay keys use the "relay." prefix.
const (
	AttrSessionID      = "relay.session_id"
	AttrDecodeKind     = "relay.decode.kind"
	AttrDecodeOutcome  = "relay.decode.outcome"
	AttrEncodeOutcome  = "relay.encode.outcome"
	AttrPairingOutcome = "relay.pairing.outcome"
	AttrServerAddress  = "server.address"
	AttrRequestMethod  = "http.request.method"
)

// EndOperation annotates span with the outcome of an operation. A non-nil
// err is recorded and marks the span failed with outcome as description.
func EndOperation(span trace.Span, key, outcome string, err error, attrs ...attribute.KeyValue) {
	span.SetAttributes(append(attrs, attribute.String(key, outcome))...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
}
