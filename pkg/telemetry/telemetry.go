package telemetry

import (
	"context"
	"fmt"

	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/telemetry/health"
	"mercator-hq/relay/pkg/telemetry/logging"
	"mercator-hq/relay/pkg/telemetry/metrics"
	"mercator-hq/relay/pkg/telemetry/tracing"
)

// Telemetry bundles the process-wide observability components.
type Telemetry struct {
	logger  *logging.Logger
	metrics *metrics.Collector
	tracer  *tracing.Tracer
	health  *health.Checker
}

// New builds logging, metrics, tracing and health from cfg. The logger is
// installed as the slog default.
func New(cfg *config.TelemetryConfig, version string) (*Telemetry, error) {
	logger, err := logging.New(logging.FromConfig(cfg.Logging))
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}
	logger.SetDefault()

	tracer, err := tracing.New(&cfg.Tracing, version)
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}

	return &Telemetry{
		logger:  logger,
		metrics: metrics.NewCollector(&cfg.Metrics, nil),
		tracer:  tracer,
		health:  health.New(cfg.Health.CheckTimeout),
	}, nil
}

func (t *Telemetry) Logger() *logging.Logger     { return t.logger }
func (t *Telemetry) Metrics() *metrics.Collector { return t.metrics }
func (t *Telemetry) Tracer() *tracing.Tracer     { return t.tracer }
func (t *Telemetry) Health() *health.Checker     { return t.health }

// Shutdown flushes pending spans.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return t.tracer.Shutdown(ctx)
}
