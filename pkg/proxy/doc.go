// Package proxy implements the relay's request and response pipelines.
//
// Every request that is not handled locally goes through three stages:
//
//   - Decoder: resolves the session, then turns the encoded request into the
//     plaintext request the origin expects. Raw bodies are buffered and
//     decoded in one call; multipart bodies are decoded part by part and
//     rebuilt as an Envelope with an exact Content-Length.
//   - Gateway: forwards the plaintext request to the single origin with
//     httputil.ReverseProxy.
//   - Encoder: buffers a successful origin response and replaces it with an
//     application/octet-stream body, carrying the real content type encoded
//     in the x-mte-cth header.
//
// # Wire format
//
// Request and response bodies are transform messages. Multipart field
// names, values and file names are base64 messages; file contents are raw
// messages. The encoded content type header is a base64 message in both
// directions.
//
// # Errors
//
// All failures funnel into WriteError, which maps the types package
// taxonomy onto a status code and a plain-text body. A payload the session
// cannot decode is answered with status 559 so clients can tell a
// desynchronized session, which needs a new pairing, from a server fault.
//
// # Basic Usage
//
//	decoder := proxy.NewDecoder(engine, proxy.DecoderConfig{
//	    UploadsDir:   cfg.Proxy.UploadsDir,
//	    MaxBodyBytes: cfg.Proxy.MaxBodyBytes,
//	})
//	gateway, err := proxy.NewGateway(engine, proxy.GatewayConfig{Upstream: upstream})
//	if err != nil {
//	    return err
//	}
//	mux.Handle("/", sessions.Middleware(decoder.Middleware(gateway)))
//
// # Temporary files
//
// Uploaded files are spooled to the uploads directory while decoding. They
// are removed as soon as the origin answers or fails, and again when the
// request ends, so no exit path leaves them behind.
//
// # Concurrency
//
// Decoder, Encoder and Gateway are safe for concurrent use. Transform calls
// on one session are serialized by the engine; a client must not have more
// requests in flight per session than the sequence window tolerates.
package proxy
