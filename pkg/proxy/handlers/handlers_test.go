package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"mercator-hq/relay/pkg/pairing"
	"mercator-hq/relay/pkg/proxy/types"
	"mercator-hq/relay/pkg/security/auth"
	"mercator-hq/relay/pkg/security/cookie"
	"mercator-hq/relay/pkg/usage"
	"mercator-hq/relay/pkg/usage/storage"
)

func TestLivenessAndEcho(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/mte-relay", Liveness)
	mux.HandleFunc("GET /api/echo/{msg}", Echo)

	for _, method := range []string{http.MethodGet, http.MethodHead} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(method, "/api/mte-relay", nil))
		if rec.Code != http.StatusOK || rec.Body.Len() != 0 {
			t.Errorf("%s liveness = %d %q", method, rec.Code, rec.Body.String())
		}
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/echo/hello%20world", nil))
	var got EchoResponse
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Status != 200 || got.Message != "Echo: hello world" {
		t.Errorf("echo = %+v", got)
	}
}

type stubPairer struct {
	sid  string
	req  pairing.Request
	resp *pairing.Response
	err  error
}

func (p *stubPairer) Pair(_ context.Context, sid string, req pairing.Request) (*pairing.Response, error) {
	p.sid, p.req = sid, req
	return p.resp, p.err
}

func pairRequest(body string, sid string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/mte/pair", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	if sid != "" {
		r = r.WithContext(cookie.WithSessionID(r.Context(), sid))
	}
	return r
}

func TestPairHandler(t *testing.T) {
	const body = `{"decoderPublicKey":"d","encoderPublicKey":"e","decoderPersonalizationStr":"dp","encoderPersonalizationStr":"ep"}`
	okResp := &pairing.Response{EncoderNonce: "n1", EncoderPublicKey: "k1", DecoderNonce: "n2", DecoderPublicKey: "k2"}

	tests := []struct {
		name       string
		body       string
		sid        string
		pairErr    error
		maxBytes   int64
		wantStatus int
	}{
		{name: "paired", body: body, sid: "s1", wantStatus: http.StatusOK},
		{name: "no session", body: body, wantStatus: http.StatusUnauthorized},
		{name: "malformed json", body: `{"decoderPublicKey":`, sid: "s1", wantStatus: http.StatusBadRequest},
		{name: "empty body", body: "", sid: "s1", wantStatus: http.StatusBadRequest},
		{name: "too large", body: body, sid: "s1", maxBytes: 16, wantStatus: http.StatusRequestEntityTooLarge},
		{
			name:       "invalid keys",
			body:       body,
			sid:        "s1",
			pairErr:    &types.HandshakeError{Code: http.StatusBadRequest, Err: pairing.ErrInvalidRequest},
			wantStatus: http.StatusBadRequest,
		},
		{name: "throttled", body: body, sid: "s1", pairErr: pairing.ErrThrottled, wantStatus: http.StatusTooManyRequests},
		{name: "engine failure", body: body, sid: "s1", pairErr: errors.New("boom"), wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &stubPairer{resp: okResp, err: tt.pairErr}
			rec := httptest.NewRecorder()
			NewPairHandler(p, tt.maxBytes).ServeHTTP(rec, pairRequest(tt.body, tt.sid))

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			if p.sid != "s1" || p.req.EncoderPersonalizationStr != "ep" {
				t.Errorf("pairer saw sid=%q req=%+v", p.sid, p.req)
			}
			var got pairing.Response
			if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
				t.Fatal(err)
			}
			if got != *okResp {
				t.Errorf("response = %+v", got)
			}
		})
	}
}

func newReportMux(t *testing.T, dir string) *http.ServeMux {
	t.Helper()
	now := time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)
	store := storage.NewMemoryStorage()
	ctx := context.Background()
	for _, rec := range []*usage.Record{
		{SessionID: "a", Method: "GET", URL: "/x", Status: 200, Time: now.Add(-time.Hour)},
		{SessionID: "a", Method: "GET", URL: "/y", Status: 200, Time: now.Add(-2 * time.Hour)},
		{SessionID: "b", Method: "POST", URL: "/z", Status: 559, Time: now.Add(-3 * time.Hour)},
		{SessionID: usage.UnknownSession, Method: "GET", URL: "/", Status: 401, Time: now},
	} {
		if err := store.Append(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}
	reporter := usage.NewReporter(store, usage.ReporterConfig{
		Company: "Acme Corp",
		Dir:     dir,
		Now:     func() time.Time { return now },
	})
	guard := auth.NewTokenGuard(func() string { return "s3cret" }, []auth.TokenSource{
		{Type: "header", Name: "Authorization"},
		{Type: "path", Name: "token"},
	})

	handler := NewReportHandler(reporter, guard, nil)
	mux := http.NewServeMux()
	mux.Handle("GET /api/unique-devices-report", handler)
	mux.Handle("GET /api/unique-devices-report/{token}", handler)
	return mux
}

func TestReportHandler(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		auth       string
		wantStatus int
		wantBody   string
	}{
		{name: "header token", path: "/api/unique-devices-report", auth: "s3cret", wantStatus: 200, wantBody: "Total Unique Device IDs: 2\nTotal MTE Requests: 3"},
		{name: "path token", path: "/api/unique-devices-report/s3cret?month=3", wantStatus: 200, wantBody: "Reporting Month: March"},
		{name: "missing token", path: "/api/unique-devices-report", wantStatus: 400, wantBody: MessageMissingAuthorization},
		{name: "wrong token", path: "/api/unique-devices-report", auth: "nope", wantStatus: 401},
		{name: "wrong path token", path: "/api/unique-devices-report/nope", wantStatus: 401},
		{name: "month out of range", path: "/api/unique-devices-report?month=13", auth: "s3cret", wantStatus: 400},
		{name: "month not a number", path: "/api/unique-devices-report?month=may", auth: "s3cret", wantStatus: 400},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			mux := newReportMux(t, dir)

			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantBody != "" && !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("body = %q, want it to contain %q", rec.Body.String(), tt.wantBody)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}

			disposition := rec.Header().Get("Content-Disposition")
			if !strings.HasPrefix(disposition, "attachment; filename=acme-corp-mte-report-march-") {
				t.Errorf("Content-Disposition = %q", disposition)
			}
			entries, err := os.ReadDir(dir)
			if err != nil {
				t.Fatal(err)
			}
			if len(entries) != 0 {
				t.Errorf("report file left behind: %v", entries)
			}
		})
	}
}
