package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "proxy.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
// It implements the error interface and provides access to all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. It returns nil if the configuration is valid.
// All validation errors are collected and returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateRelay(&cfg.Relay)...)
	errs = append(errs, validateProxy(&cfg.Proxy)...)
	errs = append(errs, validateSession(&cfg.Session)...)
	errs = append(errs, validateTransform(&cfg.Transform, &cfg.Durable)...)
	errs = append(errs, validatePairing(&cfg.Pairing)...)
	errs = append(errs, validateUsage(&cfg.Usage)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)
	errs = append(errs, validateSecurity(&cfg.Security)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

func validateRelay(cfg *RelayConfig) []FieldError {
	var errs []FieldError
	if strings.TrimSpace(cfg.LicenseCompany) == "" {
		errs = append(errs, FieldError{
			Field:   "relay.license_company",
			Message: "license company is required",
		})
	}
	return errs
}

// validateProxy validates proxy configuration.
func validateProxy(cfg *ProxyConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{
			Field:   "proxy.listen_address",
			Message: "listen address is required",
		})
	}

	if cfg.Upstream == "" {
		errs = append(errs, FieldError{
			Field:   "proxy.upstream",
			Message: "upstream is required",
		})
	} else if u, err := url.Parse(cfg.Upstream); err != nil {
		errs = append(errs, FieldError{
			Field:   "proxy.upstream",
			Message: fmt.Sprintf("invalid URL: %v", err),
		})
	} else if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, FieldError{
			Field:   "proxy.upstream",
			Message: "upstream must be an absolute http or https URL",
		})
	}

	timeouts := []struct {
		field string
		value time.Duration
	}{
		{"proxy.read_timeout", cfg.ReadTimeout},
		{"proxy.write_timeout", cfg.WriteTimeout},
		{"proxy.idle_timeout", cfg.IdleTimeout},
		{"proxy.request_timeout", cfg.RequestTimeout},
		{"proxy.shutdown_timeout", cfg.ShutdownTimeout},
	}
	for _, t := range timeouts {
		if t.value < 0 {
			errs = append(errs, FieldError{
				Field:   t.field,
				Message: "timeout must be non-negative",
			})
		}
	}

	if cfg.MaxHeaderBytes < 0 {
		errs = append(errs, FieldError{
			Field:   "proxy.max_header_bytes",
			Message: "max header bytes must be non-negative",
		})
	}
	if cfg.MaxBodyBytes <= 0 {
		errs = append(errs, FieldError{
			Field:   "proxy.max_body_bytes",
			Message: "max body bytes must be positive",
		})
	}
	if cfg.UploadsDir == "" {
		errs = append(errs, FieldError{
			Field:   "proxy.uploads_dir",
			Message: "uploads directory is required",
		})
	}

	errs = append(errs, validateCORS(&cfg.CORS)...)
	return errs
}

func validateCORS(cfg *CORSConfig) []FieldError {
	var errs []FieldError
	if !cfg.Enabled {
		return errs
	}
	if cfg.MaxAge < 0 {
		errs = append(errs, FieldError{
			Field:   "proxy.cors.max_age",
			Message: "max age must be non-negative",
		})
	}
	for i, origin := range cfg.AllowedOrigins {
		if origin == "" {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("proxy.cors.allowed_origins[%d]", i),
				Message: "origin must not be empty",
			})
		}
	}
	return errs
}

func validateSession(cfg *SessionConfig) []FieldError {
	var errs []FieldError
	if cfg.CookieName == "" {
		errs = append(errs, FieldError{
			Field:   "session.cookie_name",
			Message: "cookie name is required",
		})
	}
	if cfg.CookieSecret == "" {
		errs = append(errs, FieldError{
			Field:   "session.cookie_secret",
			Message: "cookie secret is required",
		})
	}
	if cfg.CookieMaxAge <= 0 {
		errs = append(errs, FieldError{
			Field:   "session.cookie_max_age",
			Message: "cookie max age must be positive",
		})
	}
	return errs
}

func validateTransform(cfg *TransformConfig, durable *DurableConfig) []FieldError {
	var errs []FieldError

	if cfg.SequenceWindow < 0 || cfg.SequenceWindow > 63 {
		errs = append(errs, FieldError{
			Field:   "transform.sequence_window",
			Message: fmt.Sprintf("sequence window must be between 0 and 63, got %d", cfg.SequenceWindow),
		})
	}
	if cfg.StateTTL <= 0 {
		errs = append(errs, FieldError{
			Field:   "transform.state_ttl",
			Message: "state TTL must be positive",
		})
	}
	if cfg.CleanupInterval <= 0 {
		errs = append(errs, FieldError{
			Field:   "transform.cleanup_interval",
			Message: "cleanup interval must be positive",
		})
	}

	if durable.RedisURL != "" {
		u, err := url.Parse(durable.RedisURL)
		if err != nil || (u.Scheme != "redis" && u.Scheme != "rediss") {
			errs = append(errs, FieldError{
				Field:   "durable.redis_url",
				Message: "redis URL must use the redis:// or rediss:// scheme",
			})
		}
	}
	if durable.StateExpiry < 0 {
		errs = append(errs, FieldError{
			Field:   "durable.state_expiry",
			Message: "state expiry must be non-negative",
		})
	}
	return errs
}

func validatePairing(cfg *PairingConfig) []FieldError {
	var errs []FieldError
	if cfg.RatePerSecond <= 0 {
		errs = append(errs, FieldError{
			Field:   "pairing.rate_per_second",
			Message: "rate must be positive",
		})
	}
	if cfg.Burst <= 0 {
		errs = append(errs, FieldError{
			Field:   "pairing.burst",
			Message: "burst must be positive",
		})
	}
	if cfg.MaxBodyBytes <= 0 {
		errs = append(errs, FieldError{
			Field:   "pairing.max_body_bytes",
			Message: "max body bytes must be positive",
		})
	}
	return errs
}

func validateUsage(cfg *UsageConfig) []FieldError {
	var errs []FieldError
	if !cfg.Enabled {
		return errs
	}

	switch cfg.Backend {
	case "memory":
	case "sqlite", "sqlite3":
		if cfg.Path == "" {
			errs = append(errs, FieldError{
				Field:   "usage.path",
				Message: "path is required for sqlite backends",
			})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "usage.backend",
			Message: fmt.Sprintf("backend must be one of: memory, sqlite, sqlite3 (got %q)", cfg.Backend),
		})
	}

	if cfg.AccessToken == "" {
		errs = append(errs, FieldError{
			Field:   "usage.access_token",
			Message: "access token is required when usage is enabled",
		})
	}
	if cfg.ReportsDir == "" {
		errs = append(errs, FieldError{
			Field:   "usage.reports_dir",
			Message: "reports directory is required",
		})
	}
	if cfg.Retention.Days < 0 {
		errs = append(errs, FieldError{
			Field:   "usage.retention.days",
			Message: "retention days must be non-negative",
		})
	}
	if _, err := cron.ParseStandard(cfg.Retention.Schedule); err != nil {
		errs = append(errs, FieldError{
			Field:   "usage.retention.schedule",
			Message: fmt.Sprintf("invalid cron expression: %v", err),
		})
	}
	return errs
}

// validateTelemetry validates telemetry configuration.
func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid log level %q (must be debug, info, warn, or error)", cfg.Logging.Level),
		})
	}
	switch strings.ToLower(cfg.Logging.Format) {
	case "json", "text":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid log format %q (must be json or text)", cfg.Logging.Format),
		})
	}
	for i, p := range cfg.Logging.RedactPatterns {
		if p.Pattern == "" {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("telemetry.logging.redact_patterns[%d].pattern", i),
				Message: "pattern is required",
			})
		}
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.path",
			Message: "metrics path must start with /",
		})
	}

	if cfg.Tracing.Enabled {
		if cfg.Tracing.Endpoint == "" {
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.endpoint",
				Message: "endpoint is required when tracing is enabled",
			})
		}
		switch cfg.Tracing.Sampler {
		case "always", "never", "ratio":
		default:
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.sampler",
				Message: fmt.Sprintf("invalid sampler %q (must be always, never, or ratio)", cfg.Tracing.Sampler),
			})
		}
		if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.sample_ratio",
				Message: "sample ratio must be between 0.0 and 1.0",
			})
		}
	}

	for field, path := range map[string]string{
		"telemetry.health.liveness_path":  cfg.Health.LivenessPath,
		"telemetry.health.readiness_path": cfg.Health.ReadinessPath,
		"telemetry.health.version_path":   cfg.Health.VersionPath,
	} {
		if !strings.HasPrefix(path, "/") {
			errs = append(errs, FieldError{
				Field:   field,
				Message: "path must start with /",
			})
		}
	}

	if cfg.Health.CheckTimeout <= 0 {
		errs = append(errs, FieldError{
			Field:   "telemetry.health.check_timeout",
			Message: "check timeout must be positive",
		})
	}
	return errs
}

// validateSecurity validates security configuration.
func validateSecurity(cfg *SecurityConfig) []FieldError {
	var errs []FieldError
	if !cfg.TLS.Enabled {
		return errs
	}
	if cfg.TLS.CertFile == "" {
		errs = append(errs, FieldError{
			Field:   "security.tls.cert_file",
			Message: "certificate file is required when TLS is enabled",
		})
	}
	if cfg.TLS.KeyFile == "" {
		errs = append(errs, FieldError{
			Field:   "security.tls.key_file",
			Message: "key file is required when TLS is enabled",
		})
	}
	if v := cfg.TLS.MinVersion; v != "" && v != "1.2" && v != "1.3" {
		errs = append(errs, FieldError{
			Field:   "security.tls.min_version",
			Message: fmt.Sprintf("must be 1.2 or 1.3, got %q", v),
		})
	}
	return errs
}
