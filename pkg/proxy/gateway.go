package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"mercator-hq/relay/pkg/proxy/types"
	"mercator-hq/relay/pkg/security/cookie"
	"mercator-hq/relay/pkg/telemetry/tracing"
)

// GatewayConfig configures a Gateway.
type GatewayConfig struct {
	// Upstream is the origin every request is forwarded to.
	Upstream *url.URL

	// Transport performs the origin round trip. Nil means a clone of
	// http.DefaultTransport.
	Transport http.RoundTripper

	// MaxResponseBytes bounds the origin body buffered for encoding.
	MaxResponseBytes int64

	Logger  *slog.Logger
	Metrics Metrics
}

// Gateway forwards decoded requests to the origin and encodes what comes
// back. It expects to run behind Decoder.Middleware.
type Gateway struct {
	upstream *url.URL
	proxy    *httputil.ReverseProxy
	encoder  *Encoder
	logger   *slog.Logger
}

// NewGateway creates a Gateway encoding responses under t.
func NewGateway(t Transformer, cfg GatewayConfig) (*Gateway, error) {
	if cfg.Upstream == nil || cfg.Upstream.Scheme == "" || cfg.Upstream.Host == "" {
		return nil, fmt.Errorf("gateway: upstream must be an absolute URL")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Transport == nil {
		cfg.Transport = http.DefaultTransport.(*http.Transport).Clone()
	}

	g := &Gateway{
		upstream: cfg.Upstream,
		encoder:  NewEncoder(t, cfg.MaxResponseBytes, cfg.Logger, cfg.Metrics),
		logger:   cfg.Logger.With("component", "proxy.gateway"),
	}
	g.proxy = &httputil.ReverseProxy{
		Rewrite:        g.rewrite,
		Transport:      cfg.Transport,
		ModifyResponse: g.modifyResponse,
		ErrorHandler:   g.handleError,
		ErrorLog:       slog.NewLogLogger(g.logger.Handler(), slog.LevelWarn),
	}
	return g, nil
}

// ServeHTTP implements http.Handler.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer(tracerName).Start(r.Context(), "proxy.forward")
	defer span.End()
	span.SetAttributes(
		attribute.String(tracing.AttrRequestMethod, r.Method),
		attribute.String(tracing.AttrServerAddress, g.upstream.Host),
	)
	g.proxy.ServeHTTP(w, r.WithContext(ctx))
}

func (g *Gateway) rewrite(pr *httputil.ProxyRequest) {
	pr.SetURL(g.upstream)
	pr.SetXForwarded()
	pr.Out.Header.Del(HeaderEncodedContentType)
	// Without a client Accept-Encoding the transport negotiates gzip itself
	// and hands back an uncompressed body, which is what gets encoded.
	pr.Out.Header.Del("Accept-Encoding")
	tracing.Inject(pr.Out.Context(), pr.Out.Header)
}

func (g *Gateway) modifyResponse(resp *http.Response) error {
	ctx := resp.Request.Context()
	g.cleanup(ctx)

	if resp.Request.Method == http.MethodHead {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 || resp.StatusCode == http.StatusNoContent {
		// TODO: encode non-2xx bodies once clients can decode error
		// payloads; until then only the status reaches them.
		dropBody(resp)
		return nil
	}

	sid, ok := cookie.SessionID(ctx)
	if !ok {
		return &types.AuthError{}
	}
	return g.encoder.EncodeResponse(ctx, resp, sid)
}

func (g *Gateway) handleError(w http.ResponseWriter, r *http.Request, err error) {
	g.cleanup(r.Context())

	var relayErr types.RelayError
	switch {
	case errors.As(err, &relayErr):
	case errors.Is(err, context.DeadlineExceeded):
		err = &types.UpstreamError{Code: http.StatusGatewayTimeout, Err: err}
	default:
		err = &types.UpstreamError{Err: err}
	}
	WriteError(w, r, err)
}

// cleanup removes the request's uploaded files as soon as the origin has
// answered or failed.
func (g *Gateway) cleanup(ctx context.Context) {
	u := uploadsFrom(ctx)
	if u == nil {
		return
	}
	if err := u.Remove(); err != nil {
		g.logger.WarnContext(ctx, "Failed to remove uploads", "error", err)
	}
}
