// Package server assembles the relay's HTTP server.
//
// It mounts the local routes and the proxy catch-all on one mux, wraps the
// mux in the middleware chain and manages the listener lifecycle.
//
// # Routes
//
//	GET, HEAD /api/mte-relay                        liveness, empty 200
//	GET       /api/echo/{msg}                       echo
//	POST      /mte/pair                             pairing handshake
//	GET       /api/unique-devices-report[/{token}]  usage report
//	GET       <liveness>, <readiness>, <version>    health and build info
//	GET       <metrics path>                        Prometheus
//	*         /                                     decode, forward, encode
//
// Local routes are matched before the catch-all, so they are never
// forwarded to the origin. The health, version and metrics paths default
// to the /api/mte-relay/ prefix so they do not hide origin routes.
//
// # Basic Usage
//
//	srv, err := server.New(cfg, server.Deps{
//	    Logger:   logger,
//	    RelayID:  cfg.Relay.InstanceID,
//	    Sessions: sessions,
//	    Pair:     handlers.NewPairHandler(pairer, 0),
//	    Proxy:    decoder.Middleware(gateway),
//	}, nil)
//	if err != nil {
//	    return err
//	}
//	return srv.ListenAndServe(ctx)
//
// ListenAndServe returns once ctx is canceled and in-flight requests have
// drained, or the shutdown timeout expired.
package server
