package server

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/proxy/middleware"
	"mercator-hq/relay/pkg/security/cookie"
	"mercator-hq/relay/pkg/telemetry/health"
	"mercator-hq/relay/pkg/telemetry/metrics"
	"mercator-hq/relay/pkg/usage"
)

type recorderStub struct {
	mu      sync.Mutex
	records []*usage.Record
}

func (r *recorderStub) Record(_ context.Context, record *usage.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, record)
	return nil
}

func (r *recorderStub) all() []*usage.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*usage.Record(nil), r.records...)
}

func text(body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, body)
	})
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Proxy.ListenAddress = "127.0.0.1:0"
	cfg.Telemetry.Metrics.Enabled = true
	config.ApplyDefaults(cfg)
	return cfg
}

func testDeps(t *testing.T) Deps {
	t.Helper()
	codec, err := cookie.NewCodec(strings.Repeat("k", 32))
	if err != nil {
		t.Fatal(err)
	}
	cfg := testConfig()
	return Deps{
		RelayID:  "relay-1",
		Sessions: cookie.New(codec, cookie.Config{Name: "mte-relay-sid", MaxAge: time.Hour}, nil),
		CORS:     middleware.NewCORS(middleware.DefaultCORSConfig()),
		Pair:     text("paired"),
		Proxy:    text("proxied"),
		Report:   text("report"),
		Access:   &recorderStub{},
		Metrics:  metrics.NewCollector(&cfg.Telemetry.Metrics, nil),
		Health:   health.New(time.Second),
		Version:  health.VersionInfo{Version: "1.2.3"},
	}
}

func newTestServer(t *testing.T, deps Deps) *Server {
	t.Helper()
	s, err := New(testConfig(), deps, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func TestNew_RequiredDeps(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Deps)
	}{
		{"no pair handler", func(d *Deps) { d.Pair = nil }},
		{"no proxy handler", func(d *Deps) { d.Proxy = nil }},
		{"no sessions", func(d *Deps) { d.Sessions = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := testDeps(t)
			tt.modify(&deps)
			if _, err := New(testConfig(), deps, nil); err == nil {
				t.Error("New() error = nil, want error")
			}
		})
	}
}

func TestHandler_Routes(t *testing.T) {
	handler := newTestServer(t, testDeps(t)).Handler()

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
		wantBody   string
	}{
		{"liveness get", http.MethodGet, "/api/mte-relay", http.StatusOK, ""},
		{"liveness head", http.MethodHead, "/api/mte-relay", http.StatusOK, ""},
		{"echo", http.MethodGet, "/api/echo/hello", http.StatusOK, "Echo: hello"},
		{"pair", http.MethodPost, "/mte/pair", http.StatusOK, "paired"},
		{"report", http.MethodGet, "/api/unique-devices-report", http.StatusOK, "report"},
		{"report with token", http.MethodGet, "/api/unique-devices-report/s3cret", http.StatusOK, "report"},
		{"health liveness", http.MethodGet, "/api/mte-relay/healthz", http.StatusOK, "ok"},
		{"health readiness", http.MethodGet, "/api/mte-relay/readyz", http.StatusOK, "ready"},
		{"version", http.MethodGet, "/api/mte-relay/version", http.StatusOK, "1.2.3"},
		{"metrics", http.MethodGet, "/api/mte-relay/metrics", http.StatusOK, "relay_requests_total"},
		{"origin version path", http.MethodGet, "/version", http.StatusOK, "proxied"},
		{"origin healthz path", http.MethodGet, "/healthz", http.StatusOK, "proxied"},
		{"origin metrics path", http.MethodGet, "/metrics", http.StatusOK, "proxied"},
		{"proxied get", http.MethodGet, "/api/users", http.StatusOK, "proxied"},
		{"proxied post", http.MethodPost, "/api/users/1", http.StatusOK, "proxied"},
		{"pair path other method", http.MethodGet, "/mte/pair", http.StatusOK, "proxied"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// A prior request makes sure the metrics families exist.
			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/mte-relay", nil))

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			body := rec.Body.String()
			if tt.wantBody == "" && body != "" {
				t.Errorf("body = %q, want empty", body)
			}
			if !strings.Contains(body, tt.wantBody) {
				t.Errorf("body = %q, want it to contain %q", body, tt.wantBody)
			}
			if got := rec.Header().Get("x-mte-id"); got != "relay-1" {
				t.Errorf("x-mte-id = %q, want relay-1", got)
			}
		})
	}
}

func TestHandler_ReportDisabled(t *testing.T) {
	deps := testDeps(t)
	deps.Report = nil
	handler := newTestServer(t, deps).Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/unique-devices-report/s3cret", nil))
	if got := rec.Body.String(); got != "proxied" {
		t.Errorf("body = %q, want proxied", got)
	}
}

func TestHandler_SessionCookieAndAccessRecord(t *testing.T) {
	deps := testDeps(t)
	recorder := deps.Access.(*recorderStub)
	handler := newTestServer(t, deps).Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/users?page=2", nil))

	resp := rec.Result()
	var sessionCookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == "mte-relay-sid" {
			sessionCookie = c
		}
	}
	if sessionCookie == nil {
		t.Fatal("session cookie not set")
	}

	// The first request had no cookie, so it is not bound to a session.
	records := recorder.all()
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if records[0].SessionID != usage.UnknownSession {
		t.Errorf("SessionID = %q, want %q", records[0].SessionID, usage.UnknownSession)
	}
	if records[0].URL != "/api/users?page=2" || records[0].Status != http.StatusOK {
		t.Errorf("record = %+v", records[0])
	}

	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	req.AddCookie(sessionCookie)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	records = recorder.all()
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if sid := records[1].SessionID; sid == usage.UnknownSession || sid == "" {
		t.Errorf("SessionID = %q, want the cookie's session", sid)
	}
}

func TestHandler_CORSPreflight(t *testing.T) {
	handler := newTestServer(t, testDeps(t)).Handler()

	req := httptest.NewRequest(http.MethodOptions, "/api/users", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	if got := rec.Header().Get("x-mte-id"); got != "relay-1" {
		t.Errorf("x-mte-id = %q, want relay-1", got)
	}
}

func TestHandler_RecoversPanics(t *testing.T) {
	deps := testDeps(t)
	deps.Proxy = http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})
	handler := newTestServer(t, deps).Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/users", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
}

func TestServe_GracefulShutdown(t *testing.T) {
	s := newTestServer(t, testDeps(t))

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, l) }()

	resp, err := http.Get("http://" + l.Addr().String() + "/api/mte-relay")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if !s.IsRunning() {
		t.Error("IsRunning() = false while serving")
	}

	if err := s.Serve(ctx, l); err == nil {
		t.Error("second Serve() error = nil, want already running")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve() did not return after cancel")
	}
	if s.IsRunning() {
		t.Error("IsRunning() = true after shutdown")
	}
}
