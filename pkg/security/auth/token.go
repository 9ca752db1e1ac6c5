package auth

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"mercator-hq/relay/pkg/telemetry/logging"
)

var (
	// ErrMissingToken is returned when no source yields a token.
	ErrMissingToken = errors.New("missing access token")

	// ErrInvalidToken is returned when the presented token does not match.
	ErrInvalidToken = errors.New("invalid access token")
)

// TokenSource defines where to extract a token from.
type TokenSource struct {
	Type   string // header, query, path
	Name   string // header name, query param or path wildcard
	Scheme string // "Bearer", etc. (optional, headers only)
}

// TokenGuard checks requests against a single shared token.
type TokenGuard struct {
	token   func() string
	sources []TokenSource
}

// NewTokenGuard creates a guard. token is read on every request so a
// reloaded configuration takes effect immediately.
func NewTokenGuard(token func() string, sources []TokenSource) *TokenGuard {
	return &TokenGuard{token: token, sources: sources}
}

// Check validates the token carried by r.
func (g *TokenGuard) Check(r *http.Request) error {
	presented := g.extract(r)
	if presented == "" {
		return ErrMissingToken
	}
	want := g.token()
	if want == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(want)) != 1 {
		return ErrInvalidToken
	}
	return nil
}

// Handle wraps next so it only runs for requests with the right token.
func (g *TokenGuard) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch err := g.Check(r); {
		case errors.Is(err, ErrMissingToken):
			http.Error(w, "Missing access token.", http.StatusBadRequest)
		case err != nil:
			slog.WarnContext(r.Context(), "invalid access token",
				"remote_addr", r.RemoteAddr,
				"path", logging.RedactPath(r.URL.Path),
			)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
		default:
			next.ServeHTTP(w, r)
		}
	})
}

func (g *TokenGuard) extract(r *http.Request) string {
	for _, source := range g.sources {
		var value string
		switch source.Type {
		case "header":
			value = r.Header.Get(source.Name)
			if value != "" && source.Scheme != "" {
				value = strings.TrimPrefix(value, source.Scheme+" ")
			}
		case "query":
			value = r.URL.Query().Get(source.Name)
		case "path":
			value = r.PathValue(source.Name)
		}
		if value = strings.TrimSpace(value); value != "" {
			return value
		}
	}
	return ""
}
