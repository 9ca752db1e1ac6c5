package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any errors.
// The configuration is not modified by environment variables; use LoadConfigWithEnvOverrides
// for that functionality.
func LoadConfig(path string) (*Config, error) {
	cfg, err := parseFile(path)
	if err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention RELAY_SECTION_FIELD (e.g., RELAY_PROXY_UPSTREAM). A .env file
// next to the configuration file is loaded first; variables already present
// in the environment win over it.
//
// The loading sequence is:
// 1. Load YAML from file
// 2. Apply default values
// 3. Apply .env and environment variable overrides
// 4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := parseFile(path)
	if err != nil {
		return nil, err
	}

	if err := loadDotEnv(filepath.Join(filepath.Dir(path), ".env")); err != nil {
		return nil, err
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func parseFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg := newDefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(&cfg)
	return &cfg, nil
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load environment file %q: %w", path, err)
	}
	return nil
}

// envOverrides lists the variables that may override file configuration.
// Unset variables leave their pointer nil and the file value in place.
type envOverrides struct {
	InstanceID     *string `env:"RELAY_INSTANCE_ID"`
	LicenseCompany *string `env:"RELAY_LICENSE_COMPANY"`
	Debug          *bool   `env:"RELAY_DEBUG"`

	ListenAddress  *string        `env:"RELAY_PROXY_LISTEN_ADDRESS"`
	Upstream       *string        `env:"RELAY_PROXY_UPSTREAM"`
	ReadTimeout    *time.Duration `env:"RELAY_PROXY_READ_TIMEOUT"`
	WriteTimeout   *time.Duration `env:"RELAY_PROXY_WRITE_TIMEOUT"`
	IdleTimeout    *time.Duration `env:"RELAY_PROXY_IDLE_TIMEOUT"`
	RequestTimeout *time.Duration `env:"RELAY_PROXY_REQUEST_TIMEOUT"`
	MaxBodyBytes   *int64         `env:"RELAY_PROXY_MAX_BODY_BYTES"`
	UploadsDir     *string        `env:"RELAY_PROXY_UPLOADS_DIR"`
	CORSOrigins    []string       `env:"RELAY_CORS_ALLOWED_ORIGINS" envSeparator:","`
	CookieName     *string        `env:"RELAY_SESSION_COOKIE_NAME"`
	CookieSecret   *string        `env:"RELAY_SESSION_COOKIE_SECRET"`
	SequenceWindow *int           `env:"RELAY_TRANSFORM_SEQUENCE_WINDOW"`
	StateTTL       *time.Duration `env:"RELAY_TRANSFORM_STATE_TTL"`
	RedisURL       *string        `env:"RELAY_DURABLE_REDIS_URL"`
	PairingRate    *float64       `env:"RELAY_PAIRING_RATE_PER_SECOND"`
	PairingBurst   *int           `env:"RELAY_PAIRING_BURST"`
	UsageEnabled   *bool          `env:"RELAY_USAGE_ENABLED"`
	UsageBackend   *string        `env:"RELAY_USAGE_BACKEND"`
	UsagePath      *string        `env:"RELAY_USAGE_PATH"`
	ReportsDir     *string        `env:"RELAY_USAGE_REPORTS_DIR"`
	AccessToken    *string        `env:"RELAY_USAGE_ACCESS_TOKEN"`
	LogLevel       *string        `env:"RELAY_LOG_LEVEL"`
	LogFormat      *string        `env:"RELAY_LOG_FORMAT"`
	MetricsEnabled *bool          `env:"RELAY_METRICS_ENABLED"`
	TracingEnabled *bool          `env:"RELAY_TRACING_ENABLED"`
	TracingTarget  *string        `env:"RELAY_TRACING_ENDPOINT"`
	TLSEnabled     *bool          `env:"RELAY_TLS_ENABLED"`
	TLSCertFile    *string        `env:"RELAY_TLS_CERT_FILE"`
	TLSKeyFile     *string        `env:"RELAY_TLS_KEY_FILE"`
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// A variable that is set but cannot be parsed is an error.
func applyEnvOverrides(cfg *Config) error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("failed to parse environment overrides: %w", err)
	}

	set(&cfg.Relay.InstanceID, o.InstanceID)
	set(&cfg.Relay.LicenseCompany, o.LicenseCompany)
	set(&cfg.Relay.Debug, o.Debug)

	set(&cfg.Proxy.ListenAddress, o.ListenAddress)
	set(&cfg.Proxy.Upstream, o.Upstream)
	set(&cfg.Proxy.ReadTimeout, o.ReadTimeout)
	set(&cfg.Proxy.WriteTimeout, o.WriteTimeout)
	set(&cfg.Proxy.IdleTimeout, o.IdleTimeout)
	set(&cfg.Proxy.RequestTimeout, o.RequestTimeout)
	set(&cfg.Proxy.MaxBodyBytes, o.MaxBodyBytes)
	set(&cfg.Proxy.UploadsDir, o.UploadsDir)
	if len(o.CORSOrigins) > 0 {
		cfg.Proxy.CORS.AllowedOrigins = o.CORSOrigins
	}

	set(&cfg.Session.CookieName, o.CookieName)
	set(&cfg.Session.CookieSecret, o.CookieSecret)

	set(&cfg.Transform.SequenceWindow, o.SequenceWindow)
	set(&cfg.Transform.StateTTL, o.StateTTL)
	set(&cfg.Durable.RedisURL, o.RedisURL)

	set(&cfg.Pairing.RatePerSecond, o.PairingRate)
	set(&cfg.Pairing.Burst, o.PairingBurst)

	set(&cfg.Usage.Enabled, o.UsageEnabled)
	set(&cfg.Usage.Backend, o.UsageBackend)
	set(&cfg.Usage.Path, o.UsagePath)
	set(&cfg.Usage.ReportsDir, o.ReportsDir)
	set(&cfg.Usage.AccessToken, o.AccessToken)

	set(&cfg.Telemetry.Logging.Level, o.LogLevel)
	set(&cfg.Telemetry.Logging.Format, o.LogFormat)
	set(&cfg.Telemetry.Metrics.Enabled, o.MetricsEnabled)
	set(&cfg.Telemetry.Tracing.Enabled, o.TracingEnabled)
	set(&cfg.Telemetry.Tracing.Endpoint, o.TracingTarget)

	set(&cfg.Security.TLS.Enabled, o.TLSEnabled)
	set(&cfg.Security.TLS.CertFile, o.TLSCertFile)
	set(&cfg.Security.TLS.KeyFile, o.TLSKeyFile)

	return nil
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}
