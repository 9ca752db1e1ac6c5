package tls

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"mercator-hq/relay/pkg/config"
)

// writeCert writes a self-signed certificate for cn valid in
// [notBefore, notAfter] and returns the cert and key paths.
func writeCert(t *testing.T, dir, cn string, notBefore, notAfter time.Time) (string, string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: cn},
		DNSNames:     []string{cn},
		NotBefore:    notBefore,
		NotAfter:     notAfter,
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}

	certFile := filepath.Join(dir, "server-cert.pem")
	keyFile := filepath.Join(dir, "server-key.pem")
	if err := os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600); err != nil {
		t.Fatal(err)
	}
	return certFile, keyFile
}

func validCert(t *testing.T, dir, cn string) (string, string) {
	now := time.Now()
	return writeCert(t, dir, cn, now.Add(-time.Hour), now.Add(90*24*time.Hour))
}

func leafCN(t *testing.T, cert *tls.Certificate) string {
	t.Helper()
	info, err := ExtractCertificateInfo(cert)
	if err != nil {
		t.Fatal(err)
	}
	return info.DNSNames[0]
}

func TestCertificateReloader_Load(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile := validCert(t, dir, "relay.test")

	r := NewCertificateReloader(certFile, keyFile, time.Minute, nil)
	if r.GetCertificate() != nil {
		t.Fatal("certificate before Load")
	}
	if _, err := r.GetCertificateFunc()(nil); err == nil {
		t.Error("GetCertificateFunc() before Load should fail")
	}
	if err := r.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := leafCN(t, r.GetCertificate()); got != "relay.test" {
		t.Errorf("leaf = %q", got)
	}
}

func TestCertificateReloader_LoadErrors(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()

	t.Run("missing files", func(t *testing.T) {
		r := NewCertificateReloader(filepath.Join(dir, "nope.pem"), filepath.Join(dir, "nope.key"), time.Minute, nil)
		if err := r.Start(context.Background()); err == nil {
			t.Error("Start() should fail with missing files")
		}
	})

	t.Run("expired", func(t *testing.T) {
		certFile, keyFile := writeCert(t, t.TempDir(), "old.test", now.Add(-48*time.Hour), now.Add(-24*time.Hour))
		if err := NewCertificateReloader(certFile, keyFile, time.Minute, nil).Load(); err == nil {
			t.Error("Load() accepted an expired certificate")
		}
	})

	t.Run("key mismatch", func(t *testing.T) {
		certFile, _ := validCert(t, t.TempDir(), "a.test")
		_, keyFile := validCert(t, t.TempDir(), "b.test")
		if err := NewCertificateReloader(certFile, keyFile, time.Minute, nil).Load(); err == nil {
			t.Error("Load() accepted a mismatched key")
		}
	})
}

func TestCertificateReloader_ReloadOnChange(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile := validCert(t, dir, "first.test")

	r := NewCertificateReloader(certFile, keyFile, 10*time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := r.Start(ctx); err != nil {
		t.Fatal(err)
	}

	validCert(t, dir, "second.test")
	later := time.Now().Add(time.Minute)
	for _, f := range []string{certFile, keyFile} {
		if err := os.Chtimes(f, later, later); err != nil {
			t.Fatal(err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if leafCN(t, r.GetCertificate()) == "second.test" {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("certificate was not reloaded")
}

func TestServerConfig(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile := validCert(t, dir, "relay.test")
	r := NewCertificateReloader(certFile, keyFile, time.Minute, nil)

	if _, err := ServerConfig(config.TLSConfig{}, r); err == nil {
		t.Error("ServerConfig() accepted an unloaded reloader")
	}
	if err := r.Load(); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		version    string
		want       uint16
		wantSuites bool
		wantErr    bool
	}{
		{"", tls.VersionTLS12, true, false},
		{"1.2", tls.VersionTLS12, true, false},
		{"1.3", tls.VersionTLS13, false, false},
		{"1.1", 0, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			cfg, err := ServerConfig(config.TLSConfig{MinVersion: tt.version}, r)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ServerConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if cfg.MinVersion != tt.want {
				t.Errorf("MinVersion = %x, want %x", cfg.MinVersion, tt.want)
			}
			if (len(cfg.CipherSuites) > 0) != tt.wantSuites {
				t.Errorf("CipherSuites = %v", cfg.CipherSuites)
			}
			cert, err := cfg.GetCertificate(&tls.ClientHelloInfo{ServerName: "relay.test"})
			if err != nil || cert == nil {
				t.Errorf("GetCertificate() = %v, %v", cert, err)
			}
		})
	}
}

func TestCheckCertificateExpiration(t *testing.T) {
	now := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		notAfter time.Time
		wantDays int
		wantWarn bool
	}{
		{"far", now.Add(90 * 24 * time.Hour), 90, false},
		{"soon", now.Add(10 * 24 * time.Hour), 10, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			days, warning := CheckCertificateExpiration(&x509.Certificate{NotAfter: tt.notAfter}, now)
			if days != tt.wantDays || (warning != "") != tt.wantWarn {
				t.Errorf("CheckCertificateExpiration() = %d, %q", days, warning)
			}
		})
	}

	cert := &x509.Certificate{NotBefore: now.Add(time.Hour), NotAfter: now.Add(48 * time.Hour)}
	if err := ValidateX509Certificate(cert, now); err == nil {
		t.Error("not yet valid certificate accepted")
	}
}
