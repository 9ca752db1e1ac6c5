package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// execute runs the root command with args and returns its output. Flags
// keep their values between executions, so they are reset first.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// writeTestConfig writes a valid configuration whose working directories
// live under a temporary directory and returns its path. extra is appended
// to the YAML document.
func writeTestConfig(t *testing.T, extra string) (path, dir string) {
	t.Helper()
	dir = t.TempDir()
	content := fmt.Sprintf(`
relay:
  license_company: "Acme Corp"
  instance_id: "relay-test"
proxy:
  listen_address: "127.0.0.1:0"
  upstream: "http://127.0.0.1:1"
  uploads_dir: %q
session:
  cookie_secret: "0123456789abcdef0123456789abcdef"
usage:
  backend: "sqlite"
  path: %q
  reports_dir: %q
  access_token: "report-token"
`, filepath.Join(dir, "uploads"), filepath.Join(dir, "usage.db"), filepath.Join(dir, "reports")) + extra

	path = filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path, dir
}
