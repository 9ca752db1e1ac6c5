// Package metrics provides Prometheus metrics for the relay.
//
// A single Collector is created at startup and passed to every component
// that reports metrics: the request middleware, the decode and encode
// pipelines, the pairing service and the session store. Each of those
// packages declares the small interface it needs, so none of them imports
// Prometheus directly.
//
// # Metrics
//
//   - relay_proxy_requests_total{method,route,status}
//   - relay_proxy_request_duration_seconds{method,route}
//   - relay_proxy_decode_total{kind,outcome}
//   - relay_proxy_encode_total{outcome}
//   - relay_proxy_pairings_total{outcome}
//   - relay_proxy_cache_{hits,misses,evictions}_total{cache}
//   - relay_proxy_cache_entries{cache}
//   - relay_proxy_persister_operations_total{operation,result}
//   - relay_usage_records_{written,dropped}_total
//
// The route label is the matched ServeMux pattern, never the raw path.
//
// # Usage
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	mux.Handle(cfg.Telemetry.Metrics.Path, collector.Handler())
//	handler = middleware.MetricsMiddleware(collector)(mux)
package metrics
