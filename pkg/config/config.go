package config

import "time"

// Config is the root configuration structure for the relay.
// It contains all configuration sections for the proxy server, session
// handling, the transform engine, durable state, usage accounting,
// telemetry and security settings.
type Config struct {
	// Relay identifies this relay instance and its licensee.
	Relay RelayConfig `yaml:"relay"`

	// Proxy contains HTTP server and origin configuration including listen
	// address, upstream, timeouts and body limits.
	Proxy ProxyConfig `yaml:"proxy"`

	// Session contains the signed session cookie settings.
	Session SessionConfig `yaml:"session"`

	// Transform contains the sequence window and state lifetime of the
	// content transform.
	Transform TransformConfig `yaml:"transform"`

	// Durable configures the optional durable store for session state.
	Durable DurableConfig `yaml:"durable"`

	// Pairing contains handshake throttling settings.
	Pairing PairingConfig `yaml:"pairing"`

	// Usage contains access accounting and usage report configuration.
	Usage UsageConfig `yaml:"usage"`

	// Telemetry contains configuration for observability including logging,
	// metrics, and distributed tracing.
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Security contains listener TLS settings.
	Security SecurityConfig `yaml:"security"`
}

// RelayConfig identifies the relay instance.
type RelayConfig struct {
	// InstanceID is echoed in the x-mte-id header of every response.
	// A random UUID is generated at startup when empty.
	InstanceID string `yaml:"instance_id"`

	// LicenseCompany names the licensee in usage reports.
	// Required.
	LicenseCompany string `yaml:"license_company"`

	// Debug forces debug level logging.
	// Default: false
	Debug bool `yaml:"debug"`
}

// ProxyConfig contains configuration for the HTTP server and its origin.
type ProxyConfig struct {
	// ListenAddress is the address and port for the relay to listen on.
	// Format: "host:port" (e.g., "127.0.0.1:8080", "0.0.0.0:8080").
	// Default: "127.0.0.1:8080"
	ListenAddress string `yaml:"listen_address"`

	// Upstream is the origin every decoded request is forwarded to.
	// Example: "http://localhost:3000"
	// Required.
	Upstream string `yaml:"upstream"`

	// ReadTimeout is the maximum duration for reading the entire request,
	// including the body. A zero or negative value means no timeout.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the
	// response.
	// Default: 60s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the maximum amount of time to wait for the next request
	// when keep-alives are enabled.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// RequestTimeout bounds the handling of one request, origin round trip
	// included. Requests exceeding it get 504.
	// Default: 60s
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxHeaderBytes controls the maximum number of bytes the server will
	// read parsing the request header's keys and values.
	// Default: 1048576 (1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	// MaxBodyBytes bounds request and origin response bodies, which are
	// buffered in full before they are transformed.
	// Default: 33554432 (32MB)
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	// UploadsDir holds multipart file uploads while they are decoded and
	// forwarded. Files are removed once the origin responds.
	// Default: "data/uploads"
	UploadsDir string `yaml:"uploads_dir"`

	// CORS contains Cross-Origin Resource Sharing configuration.
	CORS CORSConfig `yaml:"cors"`
}

// CORSConfig contains CORS (Cross-Origin Resource Sharing) configuration.
type CORSConfig struct {
	// Enabled controls whether CORS is enabled.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// AllowedOrigins is a list of allowed origins for CORS requests.
	// Default: ["*"]
	AllowedOrigins []string `yaml:"allowed_origins"`

	// AllowedMethods is a list of allowed HTTP methods for CORS requests.
	// Default: ["GET", "HEAD", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"]
	AllowedMethods []string `yaml:"allowed_methods"`

	// AllowedHeaders is a list of allowed HTTP headers for CORS requests.
	// Default: ["Authorization", "Content-Type", "X-Request-ID", "x-mte-cth"]
	AllowedHeaders []string `yaml:"allowed_headers"`

	// ExposedHeaders is a list of headers that are exposed to the client.
	// Default: ["x-mte-id", "x-mte-cth"]
	ExposedHeaders []string `yaml:"exposed_headers"`

	// MaxAge is the maximum age (in seconds) for preflight request cache.
	// Default: 3600 (1 hour)
	MaxAge int `yaml:"max_age"`

	// AllowCredentials controls whether credentials (cookies, auth headers)
	// are allowed in CORS requests. The session cookie needs it.
	// Default: true
	AllowCredentials bool `yaml:"allow_credentials"`
}

// SessionConfig contains the session cookie settings.
type SessionConfig struct {
	// CookieName is the name of the signed session cookie.
	// Default: "mte-relay-client-id"
	CookieName string `yaml:"cookie_name"`

	// CookieSecret signs the session cookie.
	// Required.
	CookieSecret string `yaml:"cookie_secret"`

	// CookieMaxAge is how long a session cookie stays valid. It is
	// refreshed on every response.
	// Default: 744h (31 days)
	CookieMaxAge time.Duration `yaml:"cookie_max_age"`
}

// TransformConfig contains content transform settings.
type TransformConfig struct {
	// SequenceWindow is how many sequence numbers a decoder tolerates out
	// of order, at most 63.
	// Default: 63
	SequenceWindow int `yaml:"sequence_window"`

	// StateTTL evicts the transform state of an idle session.
	// Default: 10m
	StateTTL time.Duration `yaml:"state_ttl"`

	// CleanupInterval is how often expired states are evicted.
	// Default: 1m
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// DurableConfig configures the optional durable state store.
type DurableConfig struct {
	// RedisURL enables Redis persistence of evicted session state.
	// Example: "redis://localhost:6379/0"
	// Default: "" (memory only)
	RedisURL string `yaml:"redis_url"`

	// KeyPrefix namespaces state keys.
	// Default: "relay:state:"
	KeyPrefix string `yaml:"key_prefix"`

	// StateExpiry bounds how long a persisted state is kept.
	// Default: 24h
	StateExpiry time.Duration `yaml:"state_expiry"`

	// DialTimeout bounds the connectivity check at startup.
	// Default: 5s
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// PairingConfig contains handshake settings.
type PairingConfig struct {
	// RatePerSecond is the sustained number of pairings allowed per session.
	// Default: 5
	RatePerSecond float64 `yaml:"rate_per_second"`

	// Burst is the number of pairings a session may make at once.
	// Default: 10
	Burst int `yaml:"burst"`

	// MaxBodyBytes bounds the pairing request body.
	// Default: 65536
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

// UsageConfig contains access accounting and report configuration.
type UsageConfig struct {
	// Enabled controls whether requests are recorded.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Backend selects the record store.
	// Options: "memory", "sqlite" (pure Go), "sqlite3" (cgo)
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// Path is the database file for the sqlite backends.
	// Default: "data/usage.db"
	Path string `yaml:"path"`

	// ReportsDir is where report files are written before download.
	// Default: "data/reports"
	ReportsDir string `yaml:"reports_dir"`

	// AccessToken guards the usage report endpoint.
	// Required when usage is enabled.
	AccessToken string `yaml:"access_token"`

	// Retention contains record pruning settings.
	Retention RetentionConfig `yaml:"retention"`
}

// RetentionConfig contains usage record retention settings.
type RetentionConfig struct {
	// Days is how long records are kept. Zero keeps them forever.
	// Default: 400
	Days int `yaml:"days"`

	// Schedule is the cron expression for pruning.
	// Default: "0 3 * * *"
	Schedule string `yaml:"schedule"`
}

// TelemetryConfig contains observability configuration.
type TelemetryConfig struct {
	// Logging contains logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains metrics collection configuration.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing contains distributed tracing configuration.
	Tracing TracingConfig `yaml:"tracing"`

	// Health contains health check configuration.
	Health HealthConfig `yaml:"health"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	// Default: false
	AddSource bool `yaml:"add_source"`

	// RedactPatterns contains extra redaction patterns applied to log
	// attribute values.
	RedactPatterns []RedactPattern `yaml:"redact_patterns"`
}

// RedactPattern defines a custom redaction pattern.
type RedactPattern struct {
	// Name is a descriptive name for the pattern.
	Name string `yaml:"name"`

	// Pattern is the regular expression to match.
	Pattern string `yaml:"pattern"`

	// Replacement is the string to replace matches with.
	Replacement string `yaml:"replacement"`
}

// MetricsConfig contains metrics collection configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the HTTP path for the Prometheus metrics endpoint.
	// Default: "/api/mte-relay/metrics"
	Path string `yaml:"path"`

	// Namespace is the metric name prefix.
	// Default: "relay"
	Namespace string `yaml:"namespace"`

	// Subsystem is the metric subsystem name.
	// Default: "proxy"
	Subsystem string `yaml:"subsystem"`

	// RequestDurationBuckets defines histogram buckets for request duration (seconds).
	// Default: [0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10]
	RequestDurationBuckets []float64 `yaml:"request_duration_buckets"`
}

// TracingConfig contains distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether distributed tracing is active.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Sampler determines the sampling strategy.
	// Options: "always", "never", "ratio"
	// Default: "ratio"
	Sampler string `yaml:"sampler"`

	// SampleRatio is the fraction of traces to sample (0.0 to 1.0).
	// Only used when Sampler is "ratio".
	// Default: 0.1
	SampleRatio float64 `yaml:"sample_ratio"`

	// Endpoint is the OTLP gRPC collector endpoint.
	// Example: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// ServiceName is the service name in traces.
	// Default: "mte-relay"
	ServiceName string `yaml:"service_name"`

	// OTLP contains OTLP exporter specific configuration.
	OTLP OTLPConfig `yaml:"otlp"`
}

// OTLPConfig contains OTLP exporter configuration.
type OTLPConfig struct {
	// Insecure disables TLS for OTLP connection.
	// Default: false
	Insecure bool `yaml:"insecure"`

	// Timeout is the timeout for OTLP exports.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`
}

// HealthConfig contains health check endpoint configuration.
type HealthConfig struct {
	// LivenessPath is the path for the liveness endpoint.
	// Default: "/api/mte-relay/healthz"
	LivenessPath string `yaml:"liveness_path"`

	// ReadinessPath is the path for the readiness endpoint.
	// Default: "/api/mte-relay/readyz"
	ReadinessPath string `yaml:"readiness_path"`

	// VersionPath is the path reporting the relay build version.
	// Default: "/api/mte-relay/version"
	VersionPath string `yaml:"version_path"`

	// CheckTimeout is the timeout for individual component health checks.
	// Default: 2s
	CheckTimeout time.Duration `yaml:"check_timeout"`
}

// SecurityConfig contains security-related configuration.
type SecurityConfig struct {
	// TLS contains listener TLS configuration.
	TLS TLSConfig `yaml:"tls"`
}

// TLSConfig contains TLS settings for the listener.
type TLSConfig struct {
	// Enabled controls whether the relay serves HTTPS.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// CertFile is the path to the PEM certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM private key.
	KeyFile string `yaml:"key_file"`

	// MinVersion is the lowest TLS version accepted: "1.2" or "1.3".
	// Default: "1.2"
	MinVersion string `yaml:"min_version"`

	// ReloadInterval is how often the certificate files are checked for
	// renewal. Default: 5m
	ReloadInterval time.Duration `yaml:"reload_interval"`
}
