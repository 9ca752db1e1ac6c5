package main

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"mercator-hq/relay/pkg/cli"
	"mercator-hq/relay/pkg/config"
)

// writeCertificate writes a self-signed certificate for relay.test that
// expires at notAfter.
func writeCertificate(t *testing.T, dir string, notAfter time.Time) (certFile, keyFile string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "relay.test"},
		DNSNames:     []string{"relay.test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     notAfter,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}

	certFile = filepath.Join(dir, "cert.pem")
	keyFile = filepath.Join(dir, "key.pem")
	if err := os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600); err != nil {
		t.Fatal(err)
	}
	return certFile, keyFile
}

func validateRows(t *testing.T, out string) map[string]map[string]string {
	t.Helper()
	var rows []map[string]string
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	byCheck := make(map[string]map[string]string, len(rows))
	for _, row := range rows {
		byCheck[row["check"]] = row
	}
	return byCheck
}

func TestValidateCommand(t *testing.T) {
	cfgPath, _ := writeTestConfig(t, "")

	out, err := execute(t, "validate", "-c", cfgPath, "--format", "json")
	if err != nil {
		t.Fatalf("validate error = %v\n%s", err, out)
	}

	rows := validateRows(t, out)
	for _, check := range []string{"config", "startup"} {
		if rows[check]["status"] != checkOK {
			t.Errorf("%s = %v, want ok", check, rows[check])
		}
	}
	if _, ok := rows["tls"]; ok {
		t.Error("tls checked although TLS is disabled")
	}
}

func TestValidateCommand_TLS(t *testing.T) {
	tests := []struct {
		name       string
		notAfter   time.Duration
		wantStatus string
		wantErr    bool
	}{
		{"valid", 365 * 24 * time.Hour, checkOK, false},
		{"expiring soon", 10 * 24 * time.Hour, checkWarn, false},
		{"expired", -time.Minute, checkFail, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			certDir := t.TempDir()
			certFile, keyFile := writeCertificate(t, certDir, time.Now().Add(tt.notAfter))
			cfgPath, _ := writeTestConfig(t, fmt.Sprintf(`
security:
  tls:
    enabled: true
    cert_file: %q
    key_file: %q
`, certFile, keyFile))

			out, err := execute(t, "validate", "-c", cfgPath, "--format", "json")
			if (err != nil) != tt.wantErr {
				t.Fatalf("validate error = %v, wantErr %v\n%s", err, tt.wantErr, out)
			}

			tlsRow := validateRows(t, out)["tls"]
			if tlsRow["status"] != tt.wantStatus {
				t.Errorf("tls = %v, want status %s", tlsRow, tt.wantStatus)
			}
		})
	}
}

func TestValidateCommand_InvalidConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("proxy:\n  upstream: \"not a url\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	_, err := execute(t, "validate", "-c", cfgPath)
	if err == nil {
		t.Fatal("validate error = nil, want error")
	}
	if got := cli.ExitCode(err); got != cli.ExitConfig {
		t.Errorf("ExitCode() = %d, want %d", got, cli.ExitConfig)
	}
}

func TestCheckCertificate_LoadFailure(t *testing.T) {
	dir := t.TempDir()
	status, detail := checkCertificate(config.TLSConfig{
		CertFile: filepath.Join(dir, "missing.pem"),
		KeyFile:  filepath.Join(dir, "missing.key"),
	}, time.Now())
	if status != checkFail || detail == "" {
		t.Errorf("checkCertificate() = %q, %q", status, detail)
	}
}
