package types

import (
	"fmt"
	"net/http"
)

// StatusDecodeFailed is returned when a payload cannot be decoded under the
// session's decoder state. It is kept apart from 500 so clients can tell a
// desynchronized session from a server fault.
const StatusDecodeFailed = 559

// ErrorType categorizes relay errors.
type ErrorType string

// Error type constants.
const (
	// ErrorTypeAuth indicates a missing or invalid session or access token (400/401).
	ErrorTypeAuth ErrorType = "auth_error"

	// ErrorTypeDecode indicates the transform engine rejected a payload (559).
	ErrorTypeDecode ErrorType = "decode_error"

	// ErrorTypeHandshake indicates a pairing failure (400/429/500).
	ErrorTypeHandshake ErrorType = "handshake_error"

	// ErrorTypeInvalidRequest indicates a request the relay cannot accept (400/413).
	ErrorTypeInvalidRequest ErrorType = "invalid_request"

	// ErrorTypeNotFound indicates an unknown local route (404).
	ErrorTypeNotFound ErrorType = "not_found"

	// ErrorTypeUpstream indicates the origin was unreachable or slow (502/504).
	ErrorTypeUpstream ErrorType = "upstream_error"

	// ErrorTypeInternal indicates an unexpected failure (500).
	ErrorTypeInternal ErrorType = "internal_error"
)

// Error messages written to clients. They are plain text.
const (
	MessageUnauthorized = "Unauthorized"
	MessageMissingToken = "Missing access token."
	MessageDecodeFailed = "Failed to decode payload."
	MessageBadRequest   = "Bad Request"
	MessageTooLarge     = "Request Entity Too Large"
	MessageTooManyPairs = "Too Many Requests"
	MessageNotFound     = "Not Found"
	MessageInternal     = "Internal Server Error"
)

// AuthError reports a request without a usable session or access token.
type AuthError struct {
	// Code is 400 or 401. Zero means 401.
	Code int
	Msg  string
	Err  error
}

func (e *AuthError) Error() string   { return wrapMessage("auth", e.Msg, e.Err) }
func (e *AuthError) Unwrap() error   { return e.Err }
func (e *AuthError) Type() ErrorType { return ErrorTypeAuth }

// Status returns the HTTP status for the error.
func (e *AuthError) Status() int {
	if e.Code == 0 {
		return http.StatusUnauthorized
	}
	return e.Code
}

// Message returns the client-facing text.
func (e *AuthError) Message() string {
	if e.Msg == "" {
		return MessageUnauthorized
	}
	return e.Msg
}

// DecodeError reports a payload the session's decoder rejected.
type DecodeError struct {
	// Part names what failed to decode, e.g. "body" or "field".
	Part string
	Err  error
}

func (e *DecodeError) Error() string   { return wrapMessage("decode "+e.Part, "", e.Err) }
func (e *DecodeError) Unwrap() error   { return e.Err }
func (e *DecodeError) Type() ErrorType { return ErrorTypeDecode }
func (e *DecodeError) Status() int     { return StatusDecodeFailed }
func (e *DecodeError) Message() string { return MessageDecodeFailed }

// HandshakeError reports a failed pairing.
type HandshakeError struct {
	// Code is 400, 429 or 500. Zero means 500.
	Code int
	Err  error
}

func (e *HandshakeError) Error() string   { return wrapMessage("pairing", "", e.Err) }
func (e *HandshakeError) Unwrap() error   { return e.Err }
func (e *HandshakeError) Type() ErrorType { return ErrorTypeHandshake }

// Status returns the HTTP status for the error.
func (e *HandshakeError) Status() int {
	if e.Code == 0 {
		return http.StatusInternalServerError
	}
	return e.Code
}

// Message returns the client-facing text.
func (e *HandshakeError) Message() string {
	switch e.Status() {
	case http.StatusBadRequest:
		return MessageBadRequest
	case http.StatusTooManyRequests:
		return MessageTooManyPairs
	default:
		return MessageInternal
	}
}

// InvalidRequestError reports a request rejected before decoding, such as
// an oversized or unreadable body.
type InvalidRequestError struct {
	// Code is 400 or 413. Zero means 400.
	Code int
	Err  error
}

func (e *InvalidRequestError) Error() string   { return wrapMessage("invalid request", "", e.Err) }
func (e *InvalidRequestError) Unwrap() error   { return e.Err }
func (e *InvalidRequestError) Type() ErrorType { return ErrorTypeInvalidRequest }

// Status returns the HTTP status for the error.
func (e *InvalidRequestError) Status() int {
	if e.Code == 0 {
		return http.StatusBadRequest
	}
	return e.Code
}

// Message returns the client-facing text.
func (e *InvalidRequestError) Message() string {
	if e.Status() == http.StatusRequestEntityTooLarge {
		return MessageTooLarge
	}
	return MessageBadRequest
}

// UpstreamError reports an origin that could not be reached in time.
// The relay answers with the status and an empty body.
type UpstreamError struct {
	// Code is 502 or 504. Zero means 502.
	Code int
	Err  error
}

func (e *UpstreamError) Error() string   { return wrapMessage("upstream", "", e.Err) }
func (e *UpstreamError) Unwrap() error   { return e.Err }
func (e *UpstreamError) Type() ErrorType { return ErrorTypeUpstream }
func (e *UpstreamError) Message() string { return "" }

// Status returns the HTTP status for the error.
func (e *UpstreamError) Status() int {
	if e.Code == 0 {
		return http.StatusBadGateway
	}
	return e.Code
}

// InternalError reports an unexpected failure.
type InternalError struct {
	Err error
}

func (e *InternalError) Error() string   { return wrapMessage("internal", "", e.Err) }
func (e *InternalError) Unwrap() error   { return e.Err }
func (e *InternalError) Type() ErrorType { return ErrorTypeInternal }
func (e *InternalError) Status() int     { return http.StatusInternalServerError }
func (e *InternalError) Message() string { return MessageInternal }

// RelayError is implemented by every error in this package.
type RelayError interface {
	error
	Type() ErrorType
	Status() int
	Message() string
}

// ErrorResponse is the formatted outcome of an error: a status and a
// plain-text body.
type ErrorResponse struct {
	Type    ErrorType
	Status  int
	Message string
}

// NewErrorResponse creates an error response from a relay error.
func NewErrorResponse(err RelayError) *ErrorResponse {
	return &ErrorResponse{
		Type:    err.Type(),
		Status:  err.Status(),
		Message: err.Message(),
	}
}

// HTTPStatusCode returns the status for the response, falling back to the
// default for its type.
func (e *ErrorResponse) HTTPStatusCode() int {
	if e.Status != 0 {
		return e.Status
	}
	switch e.Type {
	case ErrorTypeAuth:
		return http.StatusUnauthorized
	case ErrorTypeDecode:
		return StatusDecodeFailed
	case ErrorTypeInvalidRequest:
		return http.StatusBadRequest
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func wrapMessage(kind, msg string, err error) string {
	switch {
	case msg != "" && err != nil:
		return fmt.Sprintf("%s: %s: %v", kind, msg, err)
	case err != nil:
		return fmt.Sprintf("%s: %v", kind, err)
	case msg != "":
		return kind + ": " + msg
	default:
		return kind
	}
}
