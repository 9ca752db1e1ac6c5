package middleware

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"
)

// CORSConfig contains configuration for CORS middleware.
type CORSConfig struct {
	// Enabled controls whether CORS is enabled.
	Enabled bool

	// AllowedOrigins is a list of allowed origins for CORS.
	// Use ["*"] to allow all origins.
	AllowedOrigins []string

	// AllowedMethods is a list of allowed HTTP methods.
	AllowedMethods []string

	// AllowedHeaders is a list of allowed HTTP headers.
	AllowedHeaders []string

	// ExposedHeaders is a list of headers exposed to clients.
	ExposedHeaders []string

	// MaxAge is the maximum age (in seconds) for preflight cache.
	MaxAge int

	// AllowCredentials controls whether credentials are allowed.
	AllowCredentials bool
}

// DefaultCORSConfig returns a default CORS configuration. Browsers only send
// the session cookie cross-origin with credentials, and clients need to read
// the relay id and encoded content type headers.
func DefaultCORSConfig() *CORSConfig {
	return &CORSConfig{
		Enabled:          true,
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "HEAD", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID", "x-mte-cth"},
		ExposedHeaders:   []string{"x-mte-id", "x-mte-cth"},
		MaxAge:           3600, // 1 hour
		AllowCredentials: true,
	}
}

// CORS is a CORS middleware whose configuration can be replaced while the
// server runs.
type CORS struct {
	config atomic.Pointer[CORSConfig]
}

// NewCORS creates a CORS middleware with config.
func NewCORS(config *CORSConfig) *CORS {
	c := &CORS{}
	c.Update(config)
	return c
}

// Update replaces the configuration. Requests already in flight finish
// with the previous one.
func (c *CORS) Update(config *CORSConfig) {
	if config == nil {
		config = &CORSConfig{}
	}
	c.config.Store(config)
}

// Config returns the current configuration.
func (c *CORS) Config() *CORSConfig {
	return c.config.Load()
}

// Handler wraps next with the current CORS configuration.
func (c *CORS) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		serveCORS(c.config.Load(), next, w, r)
	})
}

// CORSMiddleware adds Cross-Origin Resource Sharing (CORS) headers to responses.
// It handles preflight OPTIONS requests and adds appropriate CORS headers for
// all requests. The configuration is fixed; use CORS for a reloadable one.
//
// Example usage:
//
//	handler = CORSMiddleware(DefaultCORSConfig())(handler)
func CORSMiddleware(config *CORSConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			serveCORS(config, next, w, r)
		})
	}
}

func serveCORS(config *CORSConfig, next http.Handler, w http.ResponseWriter, r *http.Request) {
	if !config.Enabled {
		next.ServeHTTP(w, r)
		return
	}

	h := w.Header()
	h.Add("Vary", "Origin")

	origin := r.Header.Get("Origin")
	switch {
	case origin != "" && isOriginAllowed(origin, config.AllowedOrigins):
		// The origin is echoed rather than "*", which browsers reject for
		// credentialed requests.
		h.Set("Access-Control-Allow-Origin", origin)
		if config.AllowCredentials {
			h.Set("Access-Control-Allow-Credentials", "true")
		}
		if len(config.ExposedHeaders) > 0 {
			h.Set("Access-Control-Expose-Headers", strings.Join(config.ExposedHeaders, ", "))
		}
	case origin == "" && slices.Contains(config.AllowedOrigins, "*"):
		h.Set("Access-Control-Allow-Origin", "*")
	}

	// Preflight
	if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
		if len(config.AllowedMethods) > 0 {
			h.Set("Access-Control-Allow-Methods", strings.Join(config.AllowedMethods, ", "))
		}
		if len(config.AllowedHeaders) > 0 {
			h.Set("Access-Control-Allow-Headers", strings.Join(config.AllowedHeaders, ", "))
		}
		if config.MaxAge > 0 {
			h.Set("Access-Control-Max-Age", strconv.Itoa(config.MaxAge))
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	next.ServeHTTP(w, r)
}

// isOriginAllowed checks if an origin is in the allowed list.
func isOriginAllowed(origin string, allowedOrigins []string) bool {
	for _, allowed := range allowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}
