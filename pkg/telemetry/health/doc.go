// Package health provides liveness and readiness checks for the relay.
//
// Liveness only reports that the process is up. Readiness runs the
// registered checks concurrently, each bounded by the checker timeout:
//
//   - critical checks (the origin) make the relay unhealthy, answered with
//     503 so load balancers stop routing to it;
//   - optional checks (the Redis state store, the usage database) only
//     degrade it, since the relay keeps serving without them.
//
// # Usage
//
//	checker := health.New(5 * time.Second)
//	checker.RegisterCheck("upstream", health.UpstreamCheck(client, cfg.Relay.Upstream))
//	checker.RegisterOptionalCheck("redis", health.PingCheck(persister))
//	checker.Register(mux, "/health", "/ready", "/version", info)
package health
