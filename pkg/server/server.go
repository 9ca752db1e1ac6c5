package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/proxy/handlers"
	"mercator-hq/relay/pkg/proxy/middleware"
	"mercator-hq/relay/pkg/telemetry/health"
	"mercator-hq/relay/pkg/telemetry/tracing"
)

// Routes served by the relay itself. Every other path is proxied.
const (
	RouteLiveness      = "/api/mte-relay"
	RouteEcho          = "GET /api/echo/{msg}"
	RoutePair          = "POST /mte/pair"
	RouteReport        = "GET /api/unique-devices-report"
	RouteReportToken   = "GET /api/unique-devices-report/{token}"
	RouteProxyCatchAll = "/"
)

// MetricsHandler serves the Prometheus endpoint and records requests.
type MetricsHandler interface {
	middleware.RequestMetrics
	Handler() http.Handler
}

// Sessions binds requests to the session in their cookie.
type Sessions interface {
	Middleware(next http.Handler) http.Handler
}

// Deps are the components the server routes to. Pair and Proxy are
// required; the rest are optional.
type Deps struct {
	Logger *slog.Logger

	// RelayID is sent as x-mte-id on every response.
	RelayID  string
	Sessions Sessions
	CORS     *middleware.CORS

	// Pair serves the handshake; Proxy decodes, forwards and encodes
	// everything that is not a local route.
	Pair  http.Handler
	Proxy http.Handler

	// Report serves the usage report. Nil disables the route.
	Report http.Handler

	Access  middleware.AccessRecorder
	Metrics MetricsHandler
	Health  *health.Checker
	Version health.VersionInfo
}

// Server is the relay's HTTP server.
type Server struct {
	config     *config.Config
	deps       Deps
	tlsConfig  *tls.Config
	httpServer *http.Server
	logger     *slog.Logger

	mu        sync.RWMutex
	isRunning bool
}

// New creates a server. tlsConfig may be nil for plain HTTP.
func New(cfg *config.Config, deps Deps, tlsConfig *tls.Config) (*Server, error) {
	if deps.Pair == nil || deps.Proxy == nil {
		return nil, errors.New("server: pair and proxy handlers are required")
	}
	if deps.Sessions == nil {
		return nil, errors.New("server: session middleware is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.CORS == nil {
		deps.CORS = middleware.NewCORS(&middleware.CORSConfig{})
	}

	s := &Server{
		config:    cfg,
		deps:      deps,
		tlsConfig: tlsConfig,
		logger:    deps.Logger.With("component", "server"),
	}
	s.httpServer = &http.Server{
		Addr:           cfg.Proxy.ListenAddress,
		Handler:        s.Handler(),
		TLSConfig:      tlsConfig,
		ReadTimeout:    cfg.Proxy.ReadTimeout,
		WriteTimeout:   cfg.Proxy.WriteTimeout,
		IdleTimeout:    cfg.Proxy.IdleTimeout,
		MaxHeaderBytes: cfg.Proxy.MaxHeaderBytes,
		ErrorLog:       slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}
	return s, nil
}

// Serve accepts connections on l until ctx is done, then shuts down
// gracefully within the configured shutdown timeout.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.isRunning = true
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("Relay listening",
			"address", l.Addr().String(),
			"upstream", s.config.Proxy.Upstream,
			"tls_enabled", s.tlsConfig != nil,
		)

		var err error
		if s.tlsConfig != nil {
			err = s.httpServer.ServeTLS(l, "", "")
		} else {
			err = s.httpServer.Serve(l)
		}
		errChan <- err
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown(context.WithoutCancel(ctx))
	case err := <-errChan:
		s.setRunning(false)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	}
}

// ListenAndServe listens on the configured address and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context) error {
	var lc net.ListenConfig
	l, err := lc.Listen(ctx, "tcp", s.config.Proxy.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.config.Proxy.ListenAddress, err)
	}
	return s.Serve(ctx, l)
}

// Shutdown stops accepting connections and waits for in-flight requests,
// bounded by the configured shutdown timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	if !s.IsRunning() {
		return nil
	}

	s.logger.Info("Initiating graceful shutdown", "timeout", s.config.Proxy.ShutdownTimeout.String())

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.Proxy.ShutdownTimeout)
	defer cancel()

	err := s.httpServer.Shutdown(shutdownCtx)
	s.setRunning(false)
	if err != nil {
		s.logger.Error("Error during server shutdown", "error", err)
		return fmt.Errorf("server shutdown error: %w", err)
	}

	s.logger.Info("Relay stopped")
	return nil
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

func (s *Server) setRunning(running bool) {
	s.mu.Lock()
	s.isRunning = running
	s.mu.Unlock()
}

// Handler returns the routed handler wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	d := s.deps
	mux := http.NewServeMux()

	mux.HandleFunc("GET "+RouteLiveness, handlers.Liveness)
	mux.HandleFunc(RouteEcho, handlers.Echo)
	mux.Handle(RoutePair, d.Pair)
	if d.Report != nil {
		mux.Handle(RouteReport, d.Report)
		mux.Handle(RouteReportToken, d.Report)
	}

	if d.Health != nil {
		hc := s.config.Telemetry.Health
		d.Health.Register(mux, methodPath(hc.LivenessPath), methodPath(hc.ReadinessPath), methodPath(hc.VersionPath), d.Version)
	}
	if d.Metrics != nil && s.config.Telemetry.Metrics.Enabled {
		mux.Handle(methodPath(s.config.Telemetry.Metrics.Path), d.Metrics.Handler())
	}

	mux.Handle(RouteProxyCatchAll, d.Proxy)

	// Innermost first; see the middleware package for the order.
	var handler http.Handler = mux
	if d.Metrics != nil {
		handler = middleware.MetricsMiddleware(d.Metrics)(handler)
	}
	handler = middleware.TimeoutMiddleware(s.config.Proxy.RequestTimeout)(handler)
	handler = middleware.AccessLogMiddleware(d.Access, d.Logger)(handler)
	handler = d.Sessions.Middleware(handler)
	handler = d.CORS.Handler(handler)
	handler = middleware.RelayIDMiddleware(d.RelayID)(handler)
	handler = middleware.LoggingMiddleware(handler)
	handler = tracing.HTTPMiddleware(handler)
	handler = middleware.RequestIDMiddleware(handler)
	handler = middleware.RecoveryMiddleware(handler)

	return handler
}

// methodPath restricts path to GET, which the mux also serves for HEAD.
func methodPath(path string) string {
	if path == "" {
		return ""
	}
	return http.MethodGet + " " + path
}
