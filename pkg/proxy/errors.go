package proxy

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"mercator-hq/relay/pkg/pairing"
	"mercator-hq/relay/pkg/proxy/types"
	"mercator-hq/relay/pkg/telemetry/logging"
	"mercator-hq/relay/pkg/transform"
)

// HandleError converts an error from any pipeline stage into the response
// the client receives. Errors that are not already part of the relay's
// taxonomy are classified by their sentinel; anything unknown is a 500.
//
// Example usage:
//
//	if err != nil {
//	    WriteErrorResponse(w, HandleError(err))
//	    return
//	}
func HandleError(err error) *types.ErrorResponse {
	return types.NewErrorResponse(Classify(err))
}

// Classify maps err onto the relay error taxonomy.
func Classify(err error) types.RelayError {
	var relayErr types.RelayError
	if errors.As(err, &relayErr) {
		return relayErr
	}

	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytesErr):
		return &types.InvalidRequestError{Code: http.StatusRequestEntityTooLarge, Err: err}
	case errors.Is(err, transform.ErrDecode):
		return &types.DecodeError{Part: "payload", Err: err}
	case errors.Is(err, pairing.ErrInvalidRequest):
		return &types.HandshakeError{Code: http.StatusBadRequest, Err: err}
	case errors.Is(err, pairing.ErrThrottled):
		return &types.HandshakeError{Code: http.StatusTooManyRequests, Err: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &types.UpstreamError{Code: http.StatusGatewayTimeout, Err: err}
	default:
		return &types.InternalError{Err: err}
	}
}

// WriteErrorResponse writes resp as a plain-text response.
func WriteErrorResponse(w http.ResponseWriter, resp *types.ErrorResponse) {
	status := resp.HTTPStatusCode()
	h := w.Header()
	h.Del("Content-Encoding")
	if resp.Message == "" {
		h.Del("Content-Type")
		h.Set("Content-Length", "0")
		w.WriteHeader(status)
		return
	}
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Content-Length", strconv.Itoa(len(resp.Message)))
	w.WriteHeader(status)
	_, _ = w.Write([]byte(resp.Message))
}

// WriteError classifies err, logs it and writes the response. It is the
// single place where pipeline failures become HTTP responses.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	relayErr := Classify(err)
	resp := types.NewErrorResponse(relayErr)
	status := resp.HTTPStatusCode()

	level := slog.LevelWarn
	if status >= 500 && status != types.StatusDecodeFailed {
		level = slog.LevelError
	}
	if errors.Is(err, context.Canceled) {
		// Client went away; nobody reads the response.
		level = slog.LevelDebug
	}
	slog.Log(r.Context(), level, "request failed",
		"method", r.Method,
		"path", logging.RedactPath(r.URL.Path),
		"status", status,
		"error_type", string(resp.Type),
		"error", err,
	)

	WriteErrorResponse(w, resp)
}
