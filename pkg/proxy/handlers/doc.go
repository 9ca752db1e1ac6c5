// Package handlers provides the HTTP handlers the relay answers itself.
// Everything else goes through the proxy pipeline.
//
// Routes:
//
//	HEAD, GET /api/mte-relay                  Liveness
//	GET       /api/echo/{msg}                 Echo
//	POST      /mte/pair                       PairHandler
//	GET       /api/unique-devices-report      ReportHandler (Authorization header)
//	GET       /api/unique-devices-report/{token}
//
// Failures are written through proxy.WriteError, so every route shares the
// relay's plain-text error format and status mapping.
package handlers
