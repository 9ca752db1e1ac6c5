// Package config provides configuration management for the relay.
//
// Configuration is read from a YAML file, completed with defaults,
// overridden from the environment and validated before use.
//
// # Configuration Loading
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("config.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("config.yaml")
//
// # Environment Variable Overrides
//
// A .env file next to the configuration file is loaded first. Variables
// follow the naming convention RELAY_SECTION_FIELD, for example:
//
//   - RELAY_PROXY_UPSTREAM overrides proxy.upstream
//   - RELAY_SESSION_COOKIE_SECRET overrides session.cookie_secret
//   - RELAY_LOG_LEVEL overrides telemetry.logging.level
//
// # Configuration Precedence
//
//  1. Default values (defined in defaults.go)
//  2. Values from YAML file
//  3. .env file, then process environment
//  4. Validation (fails fast if invalid)
//
// StartupChecks goes one step further and inspects the filesystem: it
// creates the working directories and rejects short cookie secrets.
//
// # Hot Reload
//
// Watcher observes the configuration file and replaces the singleton when
// the file changes and still validates. Only settings read per request
// (log level, CORS) take effect without a restart.
//
// # Example Configuration
//
//	relay:
//	  license_company: "Acme Corp"
//
//	proxy:
//	  listen_address: "0.0.0.0:8080"
//	  upstream: "http://localhost:3000"
//
//	session:
//	  cookie_secret: "${RELAY_SESSION_COOKIE_SECRET}"
//
//	durable:
//	  redis_url: "redis://localhost:6379/0"
//
//	usage:
//	  backend: "sqlite"
//	  access_token: "change-me"
package config
