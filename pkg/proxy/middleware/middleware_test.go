package middleware

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"mercator-hq/relay/pkg/security/cookie"
	"mercator-hq/relay/pkg/usage"
)

func TestRelayIDMiddleware(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		status  int
	}{
		{
			name:    "success",
			handler: func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("ok")) },
			status:  http.StatusOK,
		},
		{
			name:    "error",
			handler: func(w http.ResponseWriter, r *http.Request) { http.Error(w, "nope", http.StatusUnauthorized) },
			status:  http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := RelayIDMiddleware("relay-1")(tt.handler)

			w := httptest.NewRecorder()
			wrapped.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
			if got := w.Header().Get(RelayIDHeader); got != "relay-1" {
				t.Errorf("%s = %q, want relay-1", RelayIDHeader, got)
			}
		})
	}
}

func TestTimeoutMiddleware(t *testing.T) {
	t.Run("sets deadline", func(t *testing.T) {
		var deadline time.Time
		var ok bool
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			deadline, ok = r.Context().Deadline()
		})

		TimeoutMiddleware(time.Minute)(handler).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

		if !ok || time.Until(deadline) > time.Minute {
			t.Errorf("deadline = %v, %v", deadline, ok)
		}
	})

	t.Run("handler observes expiry", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-r.Context().Done()
			if r.Context().Err() != context.DeadlineExceeded {
				t.Errorf("ctx.Err() = %v", r.Context().Err())
			}
			w.WriteHeader(http.StatusGatewayTimeout)
		})

		w := httptest.NewRecorder()
		TimeoutMiddleware(10*time.Millisecond)(handler).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		if w.Code != http.StatusGatewayTimeout {
			t.Errorf("status = %d", w.Code)
		}
	})

	t.Run("zero disables", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := r.Context().Deadline(); ok {
				t.Error("unexpected deadline")
			}
		})
		TimeoutMiddleware(0)(handler).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

type recordingRecorder struct {
	mu      sync.Mutex
	records []*usage.Record
}

func (r *recordingRecorder) Record(ctx context.Context, record *usage.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, record)
	return nil
}

func TestAccessLogMiddleware(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	tests := []struct {
		name      string
		sid       string
		target    string
		wantSID   string
		wantURL   string
		wantState int
	}{
		{name: "bound session", sid: "abc", target: "/api/echo/hi?x=1", wantSID: "abc", wantURL: "/api/echo/hi?x=1", wantState: http.StatusTeapot},
		{name: "no session", target: "/", wantSID: usage.UnknownSession, wantURL: "/", wantState: http.StatusTeapot},
		{name: "report token masked", target: "/api/unique-devices-report/S3cretReportToken?month=3", wantSID: usage.UnknownSession, wantURL: "/api/unique-devices-report/***?month=3", wantState: http.StatusTeapot},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recordingRecorder{}
			wrapped := AccessLogMiddleware(rec, nil)(handler)

			req := httptest.NewRequest(http.MethodPost, tt.target, nil)
			if tt.sid != "" {
				req = req.WithContext(cookie.WithSessionID(req.Context(), tt.sid))
			}
			before := time.Now().UTC()
			wrapped.ServeHTTP(httptest.NewRecorder(), req)

			if len(rec.records) != 1 {
				t.Fatalf("records = %d, want 1", len(rec.records))
			}
			got := rec.records[0]
			if got.SessionID != tt.wantSID || got.URL != tt.wantURL || got.Status != tt.wantState || got.Method != http.MethodPost {
				t.Errorf("record = %+v", got)
			}
			if got.Time.Before(before) {
				t.Errorf("record time %v before request", got.Time)
			}
		})
	}

	t.Run("token kept out of the log", func(t *testing.T) {
		var buf bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&buf, nil))
		AccessLogMiddleware(&recordingRecorder{}, logger)(handler).ServeHTTP(httptest.NewRecorder(),
			httptest.NewRequest(http.MethodGet, "/api/unique-devices-report/S3cretReportToken", nil))

		if strings.Contains(buf.String(), "S3cretReportToken") {
			t.Errorf("access log leaks the report token: %s", buf.String())
		}
		if !strings.Contains(buf.String(), "/api/unique-devices-report/***") {
			t.Errorf("access log = %s, want the masked path", buf.String())
		}
	})

	t.Run("nil recorder", func(t *testing.T) {
		w := httptest.NewRecorder()
		AccessLogMiddleware(nil, nil)(handler).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		if w.Code != http.StatusTeapot {
			t.Errorf("status = %d", w.Code)
		}
	})
}

type requestCall struct {
	method, route string
	status        int
}

type fakeRequestMetrics struct {
	calls []requestCall
}

func (f *fakeRequestMetrics) RecordRequest(method, route string, status int, _ time.Duration) {
	f.calls = append(f.calls, requestCall{method, route, status})
}

func TestMetricsMiddleware(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/echo/{msg}", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(r.PathValue("msg")))
	})

	metrics := &fakeRequestMetrics{}
	wrapped := MetricsMiddleware(metrics)(mux)

	for _, target := range []string{"/api/echo/a", "/api/echo/b", "/missing"} {
		wrapped.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, target, nil))
	}

	want := []requestCall{
		{"GET", "GET /api/echo/{msg}", 200},
		{"GET", "GET /api/echo/{msg}", 200},
		{"GET", "other", 404},
	}
	if len(metrics.calls) != len(want) {
		t.Fatalf("calls = %+v", metrics.calls)
	}
	for i := range want {
		if metrics.calls[i] != want[i] {
			t.Errorf("call %d = %+v, want %+v", i, metrics.calls[i], want[i])
		}
	}
}

func TestResponseWriter_Shared(t *testing.T) {
	var inner http.ResponseWriter
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inner = w
		w.WriteHeader(http.StatusCreated)
		w.WriteHeader(http.StatusOK)
		http.NewResponseController(w).Flush()
	})

	rec := &recordingRecorder{}
	w := httptest.NewRecorder()
	LoggingMiddleware(AccessLogMiddleware(rec, nil)(handler)).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if _, ok := inner.(*responseWriter); !ok {
		t.Fatalf("handler got %T", inner)
	}
	if w.Code != http.StatusCreated || !w.Flushed {
		t.Errorf("status = %d, flushed = %v", w.Code, w.Flushed)
	}
	if rec.records[0].Status != http.StatusCreated {
		t.Errorf("recorded status = %d", rec.records[0].Status)
	}
}
