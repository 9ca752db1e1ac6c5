// Package cookie binds clients to a session identifier carried in a signed
// cookie.
//
// The cookie value is a compact JWS (HS256) over a small JSON payload
// holding the session identifier. The signature makes the value tamper
// evident; it is not encrypted, and the identifier is not a secret.
//
// Middleware refreshes the cookie on every response. A request that
// arrives without a valid cookie is given a new identifier in the response
// but is not bound to it: the client has to come back with the cookie
// before it can pair or proxy.
package cookie

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/google/uuid"
)

// ErrInvalid is returned for cookie values that fail to parse or verify.
var ErrInvalid = errors.New("invalid session cookie")

const payloadVersion = 1

type payload struct {
	V   int    `json:"v"`
	SID string `json:"sid"`
}

// Codec signs and verifies session identifiers.
type Codec struct {
	key []byte
}

// NewCodec creates a Codec keyed by secret. Secrets of any length are
// accepted; the HMAC key is derived from them with SHA-256.
func NewCodec(secret string) (*Codec, error) {
	if secret == "" {
		return nil, errors.New("cookie: secret is empty")
	}
	sum := sha256.Sum256([]byte(secret))
	return &Codec{key: sum[:]}, nil
}

// Sign returns the cookie value for sid.
func (c *Codec) Sign(sid string) (string, error) {
	body, err := json.Marshal(payload{V: payloadVersion, SID: sid})
	if err != nil {
		return "", fmt.Errorf("failed to marshal cookie payload: %w", err)
	}
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.HS256, Key: c.key}, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create signer: %w", err)
	}
	jws, err := signer.Sign(body)
	if err != nil {
		return "", fmt.Errorf("failed to sign cookie: %w", err)
	}
	return jws.CompactSerialize()
}

// Verify returns the session identifier carried by value.
func (c *Codec) Verify(value string) (string, error) {
	jws, err := jose.ParseSigned(value, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	body, err := jws.Verify(c.key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	var p payload
	if err := json.Unmarshal(body, &p); err != nil || p.V != payloadVersion || p.SID == "" {
		return "", ErrInvalid
	}
	return p.SID, nil
}

// Config configures the session cookie.
type Config struct {
	// Name is the cookie name.
	Name string

	// MaxAge is how long the cookie stays valid after each response.
	MaxAge time.Duration

	// Insecure drops the Secure attribute. Browsers refuse SameSite=None
	// cookies without it, so this is only useful for local testing.
	Insecure bool
}

// Sessions issues, refreshes and checks session cookies.
type Sessions struct {
	codec  *Codec
	config Config
	logger *slog.Logger
	now    func() time.Time
}

// New creates Sessions signing with codec.
func New(codec *Codec, cfg Config, logger *slog.Logger) *Sessions {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sessions{
		codec:  codec,
		config: cfg,
		logger: logger.With("component", "session.cookie"),
		now:    time.Now,
	}
}

// Middleware binds the request to the session in its cookie and sets the
// cookie on the response, minting a new identifier when the request had
// none or a forged one.
func (s *Sessions) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sid, bound := s.Identify(r)
		if !bound {
			sid = uuid.NewString()
		}

		value, err := s.codec.Sign(sid)
		if err != nil {
			s.logger.ErrorContext(r.Context(), "Failed to sign session cookie", "error", err)
		} else {
			http.SetCookie(w, s.cookie(value))
		}

		if bound {
			r = r.WithContext(WithSessionID(r.Context(), sid))
		}
		next.ServeHTTP(w, r)
	})
}

// Identify returns the session identifier in r's cookie and whether it
// verified.
func (s *Sessions) Identify(r *http.Request) (string, bool) {
	c, err := r.Cookie(s.config.Name)
	if err != nil || c.Value == "" {
		return "", false
	}
	sid, err := s.codec.Verify(c.Value)
	if err != nil {
		s.logger.DebugContext(r.Context(), "Rejected session cookie", "error", err)
		return "", false
	}
	return sid, true
}

func (s *Sessions) cookie(value string) *http.Cookie {
	return &http.Cookie{
		Name:     s.config.Name,
		Value:    value,
		Path:     "/",
		Expires:  s.now().Add(s.config.MaxAge).UTC(),
		MaxAge:   int(s.config.MaxAge / time.Second),
		HttpOnly: true,
		Secure:   !s.config.Insecure,
		SameSite: http.SameSiteNoneMode,
	}
}

type contextKey struct{}

// WithSessionID returns a context carrying a bound session identifier.
func WithSessionID(ctx context.Context, sid string) context.Context {
	return context.WithValue(ctx, contextKey{}, sid)
}

// SessionID returns the bound session identifier, if any.
func SessionID(ctx context.Context) (string, bool) {
	sid, ok := ctx.Value(contextKey{}).(string)
	return sid, ok && sid != ""
}
