// Package types defines the relay's error taxonomy.
//
// Every failure the request pipeline can produce is one of:
//
//   - AuthError: missing or invalid session cookie or access token (400/401)
//   - DecodeError: the session's decoder rejected a payload (559)
//   - HandshakeError: pairing failed (400/429/500)
//   - InvalidRequestError: oversized or unreadable body (400/413)
//   - UpstreamError: origin unreachable or too slow (502/504, empty body)
//   - InternalError: anything unexpected (500)
//
// All of them implement RelayError, which proxy.WriteError turns into a
// status code and a plain-text body.
package types
