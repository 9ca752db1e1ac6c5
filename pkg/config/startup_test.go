package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestStartupChecks_CreatesDirectories(t *testing.T) {
	root := t.TempDir()
	cfg := validConfig()
	cfg.Proxy.UploadsDir = filepath.Join(root, "uploads")
	cfg.Usage.ReportsDir = filepath.Join(root, "reports")
	cfg.Usage.Path = filepath.Join(root, "db", "usage.db")

	if err := StartupChecks(cfg); err != nil {
		t.Fatalf("StartupChecks() error = %v", err)
	}

	for _, dir := range []string{"uploads", "reports", "db"} {
		info, err := os.Stat(filepath.Join(root, dir))
		if err != nil || !info.IsDir() {
			t.Errorf("expected directory %s to exist, err = %v", dir, err)
		}
	}

	entries, _ := os.ReadDir(cfg.Proxy.UploadsDir)
	if len(entries) != 0 {
		t.Errorf("write check file left behind in uploads dir: %v", entries)
	}
}

func TestStartupChecks_ShortSecret(t *testing.T) {
	cfg := validConfig()
	cfg.Proxy.UploadsDir = t.TempDir()
	cfg.Usage.Enabled = false
	cfg.Session.CookieSecret = "short"

	err := StartupChecks(cfg)
	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(verr.Errors) != 1 || verr.Errors[0].Field != "session.cookie_secret" {
		t.Errorf("unexpected errors: %v", verr)
	}
}

func TestStartupChecks_UnwritableDirectory(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "not-a-dir")
	if err := os.WriteFile(file, nil, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := validConfig()
	cfg.Usage.Enabled = false
	cfg.Proxy.UploadsDir = filepath.Join(file, "uploads")

	if err := StartupChecks(cfg); err == nil {
		t.Error("expected error for uploads dir under a regular file")
	}
}

func TestStartupChecks_MissingTLSFiles(t *testing.T) {
	cfg := validConfig()
	cfg.Usage.Enabled = false
	cfg.Proxy.UploadsDir = t.TempDir()
	cfg.Security.TLS.Enabled = true
	cfg.Security.TLS.CertFile = filepath.Join(t.TempDir(), "missing.pem")
	cfg.Security.TLS.KeyFile = filepath.Join(t.TempDir(), "missing.key")

	err := StartupChecks(cfg)
	var verr ValidationError
	if !errors.As(err, &verr) || len(verr.Errors) != 2 {
		t.Errorf("expected two TLS errors, got %v", err)
	}
}
