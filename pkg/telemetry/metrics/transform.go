package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/relay/pkg/config"
)

// TransformMetrics tracks the encode and decode pipelines and pairing.
//
// Metrics:
//   - relay_proxy_decode_total: request decodes by body kind and outcome
//   - relay_proxy_decode_duration_seconds: decode duration by body kind
//   - relay_proxy_encode_total: response encodes by outcome
//   - relay_proxy_encode_duration_seconds: encode duration
//   - relay_proxy_pairings_total: pairing attempts by outcome
type TransformMetrics struct {
	decodeTotal    *prometheus.CounterVec
	decodeDuration *prometheus.HistogramVec
	encodeTotal    *prometheus.CounterVec
	encodeDuration prometheus.Histogram
	pairingsTotal  *prometheus.CounterVec
}

// transformBuckets cover in-memory transforms of small bodies up to large
// multipart uploads spooled through disk.
var transformBuckets = []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5}

// NewTransformMetrics creates and registers transform metrics with the provided registry.
func NewTransformMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *TransformMetrics {
	tm := &TransformMetrics{
		decodeTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "decode_total",
				Help:      "Request bodies decoded, by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),

		decodeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "decode_duration_seconds",
				Help:      "Time spent decoding request bodies",
				Buckets:   transformBuckets,
			},
			[]string{"kind"},
		),

		encodeTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "encode_total",
				Help:      "Response bodies encoded, by outcome",
			},
			[]string{"outcome"},
		),

		encodeDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "encode_duration_seconds",
				Help:      "Time spent encoding response bodies",
				Buckets:   transformBuckets,
			},
		),

		pairingsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "pairings_total",
				Help:      "Pairing attempts, by outcome",
			},
			[]string{"outcome"},
		),
	}

	registry.MustRegister(
		tm.decodeTotal,
		tm.decodeDuration,
		tm.encodeTotal,
		tm.encodeDuration,
		tm.pairingsTotal,
	)

	return tm
}

// RecordDecode records one request decode.
func (tm *TransformMetrics) RecordDecode(kind, outcome string, d time.Duration) {
	tm.decodeTotal.WithLabelValues(kind, outcome).Inc()
	tm.decodeDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// RecordEncode records one response encode.
func (tm *TransformMetrics) RecordEncode(outcome string, d time.Duration) {
	tm.encodeTotal.WithLabelValues(outcome).Inc()
	tm.encodeDuration.Observe(d.Seconds())
}

// RecordPairing records one pairing attempt.
func (tm *TransformMetrics) RecordPairing(outcome string) {
	tm.pairingsTotal.WithLabelValues(outcome).Inc()
}
