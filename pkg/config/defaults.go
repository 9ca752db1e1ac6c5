package config

import "time"

// Default values for configuration fields.
const (
	// Proxy defaults
	DefaultListenAddress   = "127.0.0.1:8080"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 60 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultRequestTimeout  = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMaxHeaderBytes  = 1048576  // 1MB
	DefaultMaxBodyBytes    = 33554432 // 32MB
	DefaultUploadsDir      = "data/uploads"

	// CORS defaults
	DefaultCORSEnabled          = true
	DefaultCORSMaxAge           = 3600 // 1 hour
	DefaultCORSAllowCredentials = true

	// Session defaults
	DefaultCookieName   = "mte-relay-client-id"
	DefaultCookieMaxAge = 31 * 24 * time.Hour

	// Transform defaults
	DefaultSequenceWindow   = 63
	DefaultStateTTL         = 10 * time.Minute
	DefaultCleanupInterval  = time.Minute
	DefaultDurableKeyPrefix = "relay:state:"
	DefaultStateExpiry      = 24 * time.Hour
	DefaultDialTimeout      = 5 * time.Second

	// Pairing defaults
	DefaultPairingRate         = 5.0
	DefaultPairingBurst        = 10
	DefaultPairingMaxBodyBytes = 65536

	// Usage defaults
	DefaultUsageEnabled           = true
	DefaultUsageBackend           = "sqlite"
	DefaultUsagePath              = "data/usage.db"
	DefaultReportsDir             = "data/reports"
	DefaultUsageRetentionDays     = 400
	DefaultUsageRetentionSchedule = "0 3 * * *"

	// Telemetry defaults
	DefaultLoggingLevel       = "info"
	DefaultLoggingFormat      = "json"
	DefaultMetricsEnabled     = true
	DefaultMetricsPath        = "/api/mte-relay/metrics"
	DefaultMetricsNamespace   = "relay"
	DefaultMetricsSubsystem   = "proxy"
	DefaultTracingSampler     = "ratio"
	DefaultTracingRatio       = 0.1
	DefaultTracingService     = "mte-relay"
	DefaultOTLPTimeout        = 10 * time.Second
	DefaultLivenessPath       = "/api/mte-relay/healthz"
	DefaultReadinessPath      = "/api/mte-relay/readyz"
	DefaultVersionPath        = "/api/mte-relay/version"
	DefaultHealthCheckTimeout = 2 * time.Second

	// Security defaults
	DefaultTLSMinVersion     = "1.2"
	DefaultTLSReloadInterval = 5 * time.Minute
)

var (
	defaultCORSMethods        = []string{"GET", "HEAD", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	defaultCORSHeaders        = []string{"Authorization", "Content-Type", "X-Request-ID", "x-mte-cth"}
	defaultCORSExposedHeaders = []string{"x-mte-id", "x-mte-cth"}
	defaultDurationBuckets    = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
)

// newDefaultConfig returns a Config with boolean defaults set. YAML leaves
// fields it does not mention untouched, so unmarshalling over this value
// keeps a true default unless the file explicitly says false.
func newDefaultConfig() Config {
	var cfg Config
	cfg.Proxy.CORS.Enabled = DefaultCORSEnabled
	cfg.Proxy.CORS.AllowCredentials = DefaultCORSAllowCredentials
	cfg.Usage.Enabled = DefaultUsageEnabled
	cfg.Telemetry.Metrics.Enabled = DefaultMetricsEnabled
	return cfg
}

// ApplyDefaults applies default values to a Config struct.
// It sets defaults for any fields that have zero values.
// This function is idempotent and safe to call multiple times.
func ApplyDefaults(cfg *Config) {
	// Proxy defaults
	if cfg.Proxy.ListenAddress == "" {
		cfg.Proxy.ListenAddress = DefaultListenAddress
	}
	if cfg.Proxy.ReadTimeout == 0 {
		cfg.Proxy.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Proxy.WriteTimeout == 0 {
		cfg.Proxy.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Proxy.IdleTimeout == 0 {
		cfg.Proxy.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Proxy.RequestTimeout == 0 {
		cfg.Proxy.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.Proxy.ShutdownTimeout == 0 {
		cfg.Proxy.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Proxy.MaxHeaderBytes == 0 {
		cfg.Proxy.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	if cfg.Proxy.MaxBodyBytes == 0 {
		cfg.Proxy.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.Proxy.UploadsDir == "" {
		cfg.Proxy.UploadsDir = DefaultUploadsDir
	}

	// CORS defaults
	cors := &cfg.Proxy.CORS
	if len(cors.AllowedOrigins) == 0 {
		cors.AllowedOrigins = []string{"*"}
	}
	if len(cors.AllowedMethods) == 0 {
		cors.AllowedMethods = append([]string(nil), defaultCORSMethods...)
	}
	if len(cors.AllowedHeaders) == 0 {
		cors.AllowedHeaders = append([]string(nil), defaultCORSHeaders...)
	}
	if len(cors.ExposedHeaders) == 0 {
		cors.ExposedHeaders = append([]string(nil), defaultCORSExposedHeaders...)
	}
	if cors.MaxAge == 0 {
		cors.MaxAge = DefaultCORSMaxAge
	}

	// Session defaults
	if cfg.Session.CookieName == "" {
		cfg.Session.CookieName = DefaultCookieName
	}
	if cfg.Session.CookieMaxAge == 0 {
		cfg.Session.CookieMaxAge = DefaultCookieMaxAge
	}

	// Transform defaults. A zero window is not meaningful for a relay that
	// serves concurrent requests, so it selects the default too.
	if cfg.Transform.SequenceWindow == 0 {
		cfg.Transform.SequenceWindow = DefaultSequenceWindow
	}
	if cfg.Transform.StateTTL == 0 {
		cfg.Transform.StateTTL = DefaultStateTTL
	}
	if cfg.Transform.CleanupInterval == 0 {
		cfg.Transform.CleanupInterval = DefaultCleanupInterval
	}

	// Durable defaults
	if cfg.Durable.KeyPrefix == "" {
		cfg.Durable.KeyPrefix = DefaultDurableKeyPrefix
	}
	if cfg.Durable.StateExpiry == 0 {
		cfg.Durable.StateExpiry = DefaultStateExpiry
	}
	if cfg.Durable.DialTimeout == 0 {
		cfg.Durable.DialTimeout = DefaultDialTimeout
	}

	// Pairing defaults
	if cfg.Pairing.RatePerSecond == 0 {
		cfg.Pairing.RatePerSecond = DefaultPairingRate
	}
	if cfg.Pairing.Burst == 0 {
		cfg.Pairing.Burst = DefaultPairingBurst
	}
	if cfg.Pairing.MaxBodyBytes == 0 {
		cfg.Pairing.MaxBodyBytes = DefaultPairingMaxBodyBytes
	}

	// Usage defaults
	if cfg.Usage.Backend == "" {
		cfg.Usage.Backend = DefaultUsageBackend
	}
	if cfg.Usage.Path == "" {
		cfg.Usage.Path = DefaultUsagePath
	}
	if cfg.Usage.ReportsDir == "" {
		cfg.Usage.ReportsDir = DefaultReportsDir
	}
	if cfg.Usage.Retention.Days == 0 {
		cfg.Usage.Retention.Days = DefaultUsageRetentionDays
	}
	if cfg.Usage.Retention.Schedule == "" {
		cfg.Usage.Retention.Schedule = DefaultUsageRetentionSchedule
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Telemetry.Metrics.Subsystem == "" {
		cfg.Telemetry.Metrics.Subsystem = DefaultMetricsSubsystem
	}
	if len(cfg.Telemetry.Metrics.RequestDurationBuckets) == 0 {
		cfg.Telemetry.Metrics.RequestDurationBuckets = append([]float64(nil), defaultDurationBuckets...)
	}
	if cfg.Telemetry.Tracing.Sampler == "" {
		cfg.Telemetry.Tracing.Sampler = DefaultTracingSampler
	}
	if cfg.Telemetry.Tracing.SampleRatio == 0 {
		cfg.Telemetry.Tracing.SampleRatio = DefaultTracingRatio
	}
	if cfg.Telemetry.Tracing.ServiceName == "" {
		cfg.Telemetry.Tracing.ServiceName = DefaultTracingService
	}
	if cfg.Telemetry.Tracing.OTLP.Timeout == 0 {
		cfg.Telemetry.Tracing.OTLP.Timeout = DefaultOTLPTimeout
	}
	if cfg.Telemetry.Health.LivenessPath == "" {
		cfg.Telemetry.Health.LivenessPath = DefaultLivenessPath
	}
	if cfg.Telemetry.Health.ReadinessPath == "" {
		cfg.Telemetry.Health.ReadinessPath = DefaultReadinessPath
	}
	if cfg.Telemetry.Health.VersionPath == "" {
		cfg.Telemetry.Health.VersionPath = DefaultVersionPath
	}
	if cfg.Telemetry.Health.CheckTimeout == 0 {
		cfg.Telemetry.Health.CheckTimeout = DefaultHealthCheckTimeout
	}
	if cfg.Security.TLS.MinVersion == "" {
		cfg.Security.TLS.MinVersion = DefaultTLSMinVersion
	}
	if cfg.Security.TLS.ReloadInterval == 0 {
		cfg.Security.TLS.ReloadInterval = DefaultTLSReloadInterval
	}
}
