package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"mercator-hq/relay/pkg/config"
)

// Collector owns the relay's Prometheus metrics. It satisfies the metrics
// interfaces of the session store, the pairing service, the proxy pipeline
// and the request middleware, so one instance is handed to all of them.
//
// All methods are no-ops when metrics are disabled.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	requestMetrics   *RequestMetrics
	cacheMetrics     *CacheMetrics
	transformMetrics *TransformMetrics
}

// NewCollector creates a collector registering into registry. If registry
// is nil a fresh one is created, with the Go runtime and process
// collectors.
//
// Example:
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	mux.Handle(cfg.Telemetry.Metrics.Path, collector.Handler())
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	if cfg.Namespace == "" {
		cfg.Namespace = "relay"
	}
	if len(cfg.RequestDurationBuckets) == 0 {
		cfg.RequestDurationBuckets = prometheus.DefBuckets
	}

	return &Collector{
		config:           cfg,
		registry:         registry,
		requestMetrics:   NewRequestMetrics(cfg, registry),
		cacheMetrics:     NewCacheMetrics(cfg, registry),
		transformMetrics: NewTransformMetrics(cfg, registry),
	}
}

// RecordRequest records a completed HTTP request. route is the matched
// mux pattern, which keeps label cardinality bounded.
func (c *Collector) RecordRequest(method, route string, status int, duration time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.requestMetrics.RecordRequest(method, route, strconv.Itoa(status), duration)
}

// RecordDecode records one request decode by body kind and outcome.
func (c *Collector) RecordDecode(kind, outcome string, d time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.transformMetrics.RecordDecode(kind, outcome, d)
}

// RecordEncode records one response encode by outcome.
func (c *Collector) RecordEncode(outcome string, d time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.transformMetrics.RecordEncode(outcome, d)
}

// RecordPairing records a pairing attempt by outcome.
func (c *Collector) RecordPairing(outcome string) {
	if !c.config.Enabled {
		return
	}
	c.transformMetrics.RecordPairing(outcome)
}

// RecordHit records a state cache hit.
func (c *Collector) RecordHit(cacheName string) {
	if !c.config.Enabled {
		return
	}
	c.cacheMetrics.RecordHit(cacheName)
}

// RecordMiss records a state cache miss.
func (c *Collector) RecordMiss(cacheName string) {
	if !c.config.Enabled {
		return
	}
	c.cacheMetrics.RecordMiss(cacheName)
}

// RecordEviction records a state cache eviction.
func (c *Collector) RecordEviction(cacheName string) {
	if !c.config.Enabled {
		return
	}
	c.cacheMetrics.RecordEviction(cacheName)
}

// UpdateSize sets the number of entries in a cache.
func (c *Collector) UpdateSize(cacheName string, size int) {
	if !c.config.Enabled {
		return
	}
	c.cacheMetrics.UpdateSize(cacheName, size)
}

// RecordPersisterOp records a durable store operation.
func (c *Collector) RecordPersisterOp(op string, err error) {
	if !c.config.Enabled {
		return
	}
	c.cacheMetrics.RecordPersisterOp(op, err)
}

// RegisterUsage exposes the usage recorder's written and dropped totals.
func (c *Collector) RegisterUsage(written, dropped func() int64) {
	if !c.config.Enabled {
		return
	}
	c.registry.MustRegister(
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: c.config.Namespace,
			Subsystem: "usage",
			Name:      "records_written_total",
			Help:      "Access records persisted to the usage backend",
		}, func() float64 { return float64(written()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: c.config.Namespace,
			Subsystem: "usage",
			Name:      "records_dropped_total",
			Help:      "Access records lost to a full buffer or a storage error",
		}, func() float64 { return float64(dropped()) }),
	)
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
