package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func newGuard(token string) *TokenGuard {
	return NewTokenGuard(func() string { return token }, []TokenSource{
		{Type: "header", Name: "Authorization", Scheme: "Bearer"},
		{Type: "path", Name: "token"},
	})
}

func TestTokenGuard_Handle(t *testing.T) {
	guard := newGuard("s3cret")

	mux := http.NewServeMux()
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("GET /report", guard.Handle(ok))
	mux.Handle("GET /report/{token}", guard.Handle(ok))

	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"raw header", "/report", "s3cret", http.StatusOK},
		{"bearer header", "/report", "Bearer s3cret", http.StatusOK},
		{"path token", "/report/s3cret", "", http.StatusOK},
		{"missing", "/report", "", http.StatusBadRequest},
		{"wrong header", "/report", "nope", http.StatusUnauthorized},
		{"wrong path token", "/report/nope", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestTokenGuard_EmptyConfiguredTokenRejects(t *testing.T) {
	guard := newGuard("")
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "anything")

	if err := guard.Check(req); err != ErrInvalidToken {
		t.Errorf("Check() error = %v, want ErrInvalidToken", err)
	}
}

func TestTokenGuard_ReadsTokenPerRequest(t *testing.T) {
	token := "first"
	guard := NewTokenGuard(func() string { return token }, []TokenSource{{Type: "query", Name: "token"}})

	req := httptest.NewRequest(http.MethodGet, "/?token=second", nil)
	if err := guard.Check(req); err == nil {
		t.Fatal("expected mismatch before rotation")
	}
	token = "second"
	if err := guard.Check(req); err != nil {
		t.Errorf("Check() after rotation error = %v", err)
	}
}
