package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/pairing"
	"mercator-hq/relay/pkg/proxy"
	"mercator-hq/relay/pkg/proxy/handlers"
	"mercator-hq/relay/pkg/proxy/middleware"
	"mercator-hq/relay/pkg/security/auth"
	"mercator-hq/relay/pkg/security/cookie"
	relaytls "mercator-hq/relay/pkg/security/tls"
	"mercator-hq/relay/pkg/server"
	"mercator-hq/relay/pkg/session"
	"mercator-hq/relay/pkg/session/redisstore"
	"mercator-hq/relay/pkg/telemetry"
	"mercator-hq/relay/pkg/telemetry/health"
	"mercator-hq/relay/pkg/transform"
	"mercator-hq/relay/pkg/usage"
	"mercator-hq/relay/pkg/usage/recorder"
	"mercator-hq/relay/pkg/usage/retention"
	"mercator-hq/relay/pkg/usage/storage"
)

// reportTokenSources are where the usage report token may be presented.
var reportTokenSources = []auth.TokenSource{
	{Type: "header", Name: "Authorization"},
	{Type: "path", Name: "token"},
}

// relay owns every long-lived component of a running relay.
type relay struct {
	tel    *telemetry.Telemetry
	logger *slog.Logger
	cors   *middleware.CORS

	states    *session.Store
	persister *redisstore.Persister

	usage     usage.Storage
	recorder  *recorder.Recorder
	scheduler *retention.Scheduler

	certs  *relaytls.CertificateReloader
	server *server.Server
}

// newRelay builds the relay from cfg. Components that need background
// work are started by run, not here. On error everything built so far is
// released.
func newRelay(ctx context.Context, cfg *config.Config, tel *telemetry.Telemetry) (r *relay, err error) {
	r = &relay{
		tel:    tel,
		logger: tel.Logger().Slog(),
	}
	defer func() {
		if err != nil {
			r.close(context.WithoutCancel(ctx))
		}
	}()

	collector := tel.Metrics()
	checker := tel.Health()

	if cfg.Relay.InstanceID == "" {
		cfg.Relay.InstanceID = uuid.NewString()
	}

	upstream, err := url.Parse(cfg.Proxy.Upstream)
	if err != nil {
		return nil, fmt.Errorf("parse upstream: %w", err)
	}

	// Session state, in memory with an optional Redis tier behind it.
	var persister session.Persister
	if cfg.Durable.RedisURL != "" {
		r.persister, err = dialPersister(ctx, cfg.Durable)
		if err != nil {
			r.logger.Warn("Durable store unavailable, keeping session state in memory only", "error", err)
		} else {
			persister = r.persister
			checker.RegisterOptionalCheck("redis", health.PingCheck(r.persister))
		}
	}
	r.states = session.New(session.Config{
		TTL:             cfg.Transform.StateTTL,
		CleanupInterval: cfg.Transform.CleanupInterval,
		Durable:         persister != nil,
		Logger:          r.logger,
		Metrics:         collector,
	}, persister)

	engine, err := transform.New(transform.Config{SequenceWindow: cfg.Transform.SequenceWindow}, r.states)
	if err != nil {
		return nil, err
	}

	pairer := pairing.New(engine, pairing.Config{
		RatePerSecond: cfg.Pairing.RatePerSecond,
		Burst:         cfg.Pairing.Burst,
		Logger:        r.logger,
		Metrics:       collector,
	})

	decoder := proxy.NewDecoder(engine, proxy.DecoderConfig{
		UploadsDir:   cfg.Proxy.UploadsDir,
		MaxBodyBytes: cfg.Proxy.MaxBodyBytes,
		Logger:       r.logger,
		Metrics:      collector,
	})
	gateway, err := proxy.NewGateway(engine, proxy.GatewayConfig{
		Upstream:         upstream,
		MaxResponseBytes: cfg.Proxy.MaxBodyBytes,
		Logger:           r.logger,
		Metrics:          collector,
	})
	if err != nil {
		return nil, err
	}
	checker.RegisterCheck("upstream", health.UpstreamCheck(&http.Client{Timeout: cfg.Telemetry.Health.CheckTimeout}, upstream.String()))

	codec, err := cookie.NewCodec(cfg.Session.CookieSecret)
	if err != nil {
		return nil, err
	}
	sessions := cookie.New(codec, cookie.Config{
		Name:   cfg.Session.CookieName,
		MaxAge: cfg.Session.CookieMaxAge,
	}, r.logger)

	var reportHandler http.Handler
	if cfg.Usage.Enabled {
		reportHandler, err = r.openUsage(cfg)
		if err != nil {
			return nil, err
		}
		checker.RegisterOptionalCheck("usage_db", usagePing(r.usage))
	}

	var tlsConfig *tls.Config
	if cfg.Security.TLS.Enabled {
		r.certs = relaytls.NewCertificateReloader(cfg.Security.TLS.CertFile, cfg.Security.TLS.KeyFile, cfg.Security.TLS.ReloadInterval, r.logger)
		tlsConfig, err = relaytls.ServerConfig(cfg.Security.TLS, r.certs)
		if err != nil {
			return nil, err
		}
	}

	r.cors = middleware.NewCORS(corsConfig(cfg.Proxy.CORS))

	deps := server.Deps{
		Logger:   r.logger,
		RelayID:  cfg.Relay.InstanceID,
		Sessions: sessions,
		CORS:     r.cors,
		Pair:     handlers.NewPairHandler(pairer, cfg.Pairing.MaxBodyBytes),
		Proxy:    decoder.Middleware(gateway),
		Report:   reportHandler,
		Metrics:  collector,
		Health:   checker,
		Version:  versionInfo(),
	}
	// A nil *Recorder in the interface would not compare equal to nil.
	if r.recorder != nil {
		deps.Access = r.recorder
	}

	r.server, err = server.New(cfg, deps, tlsConfig)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func dialPersister(ctx context.Context, cfg config.DurableConfig) (*redisstore.Persister, error) {
	dialCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()

	client, err := redisstore.Dial(dialCtx, cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	p, err := redisstore.New(redisstore.Config{
		Client:    client,
		KeyPrefix: cfg.KeyPrefix,
		Expiry:    cfg.StateExpiry,
	})
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return p, nil
}

// openUsage opens the usage store and builds the recorder, the retention
// scheduler and the report handler on top of it.
func (r *relay) openUsage(cfg *config.Config) (http.Handler, error) {
	st, err := storage.Open(cfg.Usage.Backend, cfg.Usage.Path)
	if err != nil {
		return nil, fmt.Errorf("open usage store: %w", err)
	}
	r.usage = st

	recCfg := recorder.DefaultConfig()
	recCfg.Logger = r.logger
	r.recorder = recorder.NewRecorder(st, recCfg)
	r.tel.Metrics().RegisterUsage(r.recorder.Written, r.recorder.Dropped)

	r.scheduler = retention.NewScheduler(retention.NewPruner(st, &retention.Config{
		RetentionDays: cfg.Usage.Retention.Days,
		PruneSchedule: cfg.Usage.Retention.Schedule,
	}))

	reporter := usage.NewReporter(st, usage.ReporterConfig{
		Company: cfg.Relay.LicenseCompany,
		Dir:     cfg.Usage.ReportsDir,
	})
	// The token is read per request so a reloaded configuration applies.
	guard := auth.NewTokenGuard(func() string {
		if current := config.GetConfig(); current != nil {
			return current.Usage.AccessToken
		}
		return cfg.Usage.AccessToken
	}, reportTokenSources)

	return handlers.NewReportHandler(reporter, guard, r.logger), nil
}

// usagePing checks the usage store when it supports pinging.
func usagePing(st usage.Storage) health.CheckFunc {
	p, ok := st.(health.Pinger)
	if !ok {
		return func(context.Context) error { return nil }
	}
	return health.PingCheck(p)
}

// start launches background work that lives as long as ctx.
func (r *relay) start(ctx context.Context) error {
	if r.certs != nil {
		if err := r.certs.Start(ctx); err != nil {
			return fmt.Errorf("load certificate: %w", err)
		}
	}
	if r.scheduler != nil {
		if err := r.scheduler.Start(ctx); err != nil {
			return err
		}
		if next := r.scheduler.NextRun(); next != nil {
			r.logger.Info("Usage retention scheduled", "next_run", next.Format(time.RFC3339))
		}
	}
	return nil
}

// applyConfig applies the parts of a reloaded configuration that can
// change without a restart: the log level and CORS. Everything else is
// picked up on the next start.
func (r *relay) applyConfig(cfg *config.Config) {
	if err := r.tel.Logger().SetLevel(logLevel(cfg)); err != nil {
		r.logger.Error("Failed to apply log level", "error", err)
	}
	r.cors.Update(corsConfig(cfg.Proxy.CORS))
	r.logger.Info("Configuration applied",
		"log_level", logLevel(cfg),
		"cors_origins", cfg.Proxy.CORS.AllowedOrigins,
	)
}

// close releases resources in dependency order: access records are flushed
// before their store closes, and live session states are persisted before
// the Redis client goes away.
func (r *relay) close(ctx context.Context) {
	var errs []error
	if r.scheduler != nil {
		r.scheduler.Stop()
	}
	if r.recorder != nil {
		errs = append(errs, r.recorder.Close())
	}
	if r.usage != nil {
		errs = append(errs, r.usage.Close())
	}
	if r.states != nil {
		errs = append(errs, r.states.Close(ctx))
	}
	if r.persister != nil {
		errs = append(errs, r.persister.Close())
	}
	if err := errors.Join(errs...); err != nil {
		r.logger.Error("Error releasing relay resources", "error", err)
	}
}

func corsConfig(c config.CORSConfig) *middleware.CORSConfig {
	return &middleware.CORSConfig{
		Enabled:          c.Enabled,
		AllowedOrigins:   c.AllowedOrigins,
		AllowedMethods:   c.AllowedMethods,
		AllowedHeaders:   c.AllowedHeaders,
		ExposedHeaders:   c.ExposedHeaders,
		MaxAge:           c.MaxAge,
		AllowCredentials: c.AllowCredentials,
	}
}

// logLevel is the configured level, forced to debug by relay.debug.
func logLevel(cfg *config.Config) string {
	if cfg.Relay.Debug {
		return "debug"
	}
	return cfg.Telemetry.Logging.Level
}
