package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// MinCookieSecretLength is the shortest cookie secret accepted at startup.
const MinCookieSecretLength = 32

// StartupChecks verifies the environment a loaded configuration needs
// before the relay starts serving: working directories exist and are
// writable, and the cookie secret is long enough. Missing directories are
// created. All problems are returned together as a ValidationError.
func StartupChecks(cfg *Config) error {
	var errs []FieldError

	dirs := []dirCheck{{"proxy.uploads_dir", cfg.Proxy.UploadsDir}}
	if cfg.Usage.Enabled {
		dirs = append(dirs, dirCheck{"usage.reports_dir", cfg.Usage.ReportsDir})
		if cfg.Usage.Backend != "memory" {
			dirs = append(dirs, dirCheck{"usage.path", filepath.Dir(cfg.Usage.Path)})
		}
	}
	for _, d := range dirs {
		if err := ensureWritableDir(d.path); err != nil {
			errs = append(errs, FieldError{Field: d.field, Message: err.Error()})
		}
	}

	if len(cfg.Session.CookieSecret) < MinCookieSecretLength {
		errs = append(errs, FieldError{
			Field:   "session.cookie_secret",
			Message: fmt.Sprintf("cookie secret must be at least %d bytes", MinCookieSecretLength),
		})
	}

	if cfg.Security.TLS.Enabled {
		for _, f := range []dirCheck{
			{"security.tls.cert_file", cfg.Security.TLS.CertFile},
			{"security.tls.key_file", cfg.Security.TLS.KeyFile},
		} {
			if _, err := os.Stat(f.path); err != nil {
				errs = append(errs, FieldError{Field: f.field, Message: err.Error()})
			}
		}
	}

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

type dirCheck struct {
	field string
	path  string
}

func ensureWritableDir(path string) error {
	if path == "" {
		return errors.New("directory is not set")
	}
	if err := os.MkdirAll(path, 0o750); err != nil {
		return fmt.Errorf("cannot create directory %q: %w", path, err)
	}
	f, err := os.CreateTemp(path, ".relay-check-*")
	if err != nil {
		return fmt.Errorf("directory %q is not writable: %w", path, err)
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}
