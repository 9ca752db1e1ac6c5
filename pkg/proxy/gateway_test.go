package proxy

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"mercator-hq/relay/pkg/pairing"
	"mercator-hq/relay/pkg/proxy/types"
)

func newGateway(t *testing.T, relay Transformer, origin string) *Gateway {
	t.Helper()
	u, err := url.Parse(origin)
	if err != nil {
		t.Fatal(err)
	}
	g, err := NewGateway(relay, GatewayConfig{Upstream: u, MaxResponseBytes: 1 << 20})
	if err != nil {
		t.Fatalf("NewGateway() error = %v", err)
	}
	return g
}

func TestNewGateway_RequiresAbsoluteUpstream(t *testing.T) {
	relay, _ := pairedSession(t)
	for _, raw := range []string{"", "/relative", "localhost:8080"} {
		u, _ := url.Parse(raw)
		if _, err := NewGateway(relay, GatewayConfig{Upstream: u}); err == nil {
			t.Errorf("NewGateway(%q) succeeded", raw)
		}
	}
}

func TestGateway_EncodesSuccessfulResponse(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		io.WriteString(w, "hello")
	}))
	defer origin.Close()

	relay, c := pairedSession(t)
	g := newGateway(t, relay, origin.URL)

	rec := httptest.NewRecorder()
	g.ServeHTTP(rec, withSession(httptest.NewRequest(http.MethodGet, "/greeting", nil)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != ContentTypeEncoded {
		t.Errorf("Content-Type = %q, want %q", ct, ContentTypeEncoded)
	}
	if got := c.decodeString(rec.Header().Get(HeaderEncodedContentType)); got != "text/plain" {
		t.Errorf("decoded content type = %q, want text/plain", got)
	}
	if got := c.decode(rec.Body.Bytes()); string(got) != "hello" {
		t.Errorf("decoded body = %q, want hello", got)
	}
}

func TestGateway_MissingContentTypeIsBinary(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header()["Content-Type"] = nil // suppress sniffing
		w.Write([]byte{0x01, 0x02})
	}))
	defer origin.Close()

	relay, c := pairedSession(t)
	rec := httptest.NewRecorder()
	newGateway(t, relay, origin.URL).ServeHTTP(rec, withSession(httptest.NewRequest(http.MethodGet, "/", nil)))

	if got := c.decodeString(rec.Header().Get(HeaderEncodedContentType)); got != ContentTypeEncoded {
		t.Errorf("decoded content type = %q", got)
	}
}

func TestGateway_NonSuccessPassthrough(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{"not found", http.StatusNotFound},
		{"server error", http.StatusInternalServerError},
		{"redirect", http.StatusFound},
		{"no content", http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("X-Origin", "yes")
				if tt.status == http.StatusFound {
					w.Header().Set("Location", "/elsewhere")
				}
				w.WriteHeader(tt.status)
				if tt.status != http.StatusNoContent {
					io.WriteString(w, "origin error detail")
				}
			}))
			defer origin.Close()

			relay, _ := pairedSession(t)
			rec := httptest.NewRecorder()
			newGateway(t, relay, origin.URL).ServeHTTP(rec, withSession(httptest.NewRequest(http.MethodGet, "/missing", nil)))

			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			if rec.Body.Len() != 0 {
				t.Errorf("body = %q, want empty", rec.Body.String())
			}
			if rec.Header().Get("X-Origin") != "yes" {
				t.Error("origin headers not relayed")
			}
			if rec.Header().Get(HeaderEncodedContentType) != "" {
				t.Error("non-2xx response carries an encoded content type")
			}
		})
	}
}

func TestGateway_Head(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusOK)
	}))
	defer origin.Close()

	relay, _ := pairedSession(t)
	rec := httptest.NewRecorder()
	newGateway(t, relay, origin.URL).ServeHTTP(rec, withSession(httptest.NewRequest(http.MethodHead, "/", nil)))

	if rec.Code != http.StatusOK || rec.Body.Len() != 0 {
		t.Errorf("status = %d, body length = %d", rec.Code, rec.Body.Len())
	}
	if rec.Header().Get(HeaderEncodedContentType) != "" {
		t.Error("HEAD response was encoded")
	}
}

func TestGateway_UpstreamUnreachable(t *testing.T) {
	origin := httptest.NewServer(http.NotFoundHandler())
	addr := origin.URL
	origin.Close()

	relay, _ := pairedSession(t)
	rec := httptest.NewRecorder()
	newGateway(t, relay, addr).ServeHTTP(rec, withSession(httptest.NewRequest(http.MethodGet, "/", nil)))

	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("body = %q, want empty", rec.Body.String())
	}
}

func TestGateway_UpstreamTimeout(t *testing.T) {
	release := make(chan struct{})
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer origin.Close()
	defer close(release)

	relay, _ := pairedSession(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	req := withSession(httptest.NewRequest(http.MethodGet, "/slow", nil).WithContext(ctx))
	rec := httptest.NewRecorder()
	newGateway(t, relay, origin.URL).ServeHTTP(rec, req)

	if rec.Code != http.StatusGatewayTimeout {
		t.Errorf("status = %d, want 504", rec.Code)
	}
}

func TestGateway_EncodeFailure(t *testing.T) {
	tests := []struct {
		name       string
		engine     func(t *testing.T) Transformer
		wantStatus int
	}{
		{
			// The client has to pair again, which 559 tells it.
			name:       "no encoder state",
			engine:     func(t *testing.T) Transformer { return newEngine(t) },
			wantStatus: types.StatusDecodeFailed,
		},
		{
			name: "decoder state under the encoder id",
			engine: func(t *testing.T) Transformer {
				e := newEngine(t)
				if err := e.CreateDecoder(context.Background(), pairing.EncoderID(testSID), []byte("entropy-entropy-entropy"), "nonce", "pers"); err != nil {
					t.Fatal(err)
				}
				return e
			},
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, "ok")
			}))
			defer origin.Close()

			rec := httptest.NewRecorder()
			newGateway(t, tt.engine(t), origin.URL).ServeHTTP(rec, withSession(httptest.NewRequest(http.MethodGet, "/", nil)))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if rec.Header().Get(HeaderEncodedContentType) != "" {
				t.Error("failed response carries an encoded content type")
			}
		})
	}
}

// TestPipeline_EndToEnd runs decode, forward and encode together: the
// origin sees plaintext and the client receives an encoded reply.
func TestPipeline_EndToEnd(t *testing.T) {
	var (
		seenBody   []byte
		seenCT     string
		seenLength int64
		seenHost   string
	)
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenBody, _ = io.ReadAll(r.Body)
		seenCT = r.Header.Get("Content-Type")
		seenLength = r.ContentLength
		seenHost = r.Host
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"saved":true}`)
	}))
	defer origin.Close()

	relay, c := pairedSession(t)
	dir := t.TempDir()
	d := NewDecoder(relay, DecoderConfig{UploadsDir: dir})
	h := d.Middleware(newGateway(t, relay, origin.URL))

	t.Run("raw", func(t *testing.T) {
		payload := []byte(`{"name":"relay"}`)
		cth := c.encodeString("application/json")
		encoded := c.encode(payload)
		req := withSession(httptest.NewRequest(http.MethodPost, "http://relay.example/api/items", bytes.NewReader(encoded)))
		req.Header.Set("Content-Type", ContentTypeEncoded)
		req.Header.Set(HeaderEncodedContentType, cth)

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %q", rec.Code, rec.Body.String())
		}
		if !bytes.Equal(seenBody, payload) || seenCT != "application/json" || seenLength != int64(len(payload)) {
			t.Errorf("origin saw body %q, type %q, length %d", seenBody, seenCT, seenLength)
		}
		if u, _ := url.Parse(origin.URL); seenHost != u.Host {
			t.Errorf("origin saw Host %q, want %q", seenHost, u.Host)
		}
		if got := c.decodeString(rec.Header().Get(HeaderEncodedContentType)); got != "application/json" {
			t.Errorf("response content type = %q", got)
		}
		if got := c.decode(rec.Body.Bytes()); string(got) != `{"saved":true}` {
			t.Errorf("response body = %q", got)
		}
	})

	t.Run("multipart", func(t *testing.T) {
		body, ct := encodedForm(t, c, [][2]string{{"k", "v"}}, "f", "f.bin", []byte("file bytes"))
		req := withSession(httptest.NewRequest(http.MethodPost, "/upload", body))
		req.Header.Set("Content-Type", ct)

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %q", rec.Code, rec.Body.String())
		}
		if seenLength != int64(len(seenBody)) {
			t.Errorf("origin Content-Length %d, body %d bytes", seenLength, len(seenBody))
		}
		form, err := multipart.NewReader(bytes.NewReader(seenBody), boundaryOf(t, seenCT)).ReadForm(1 << 20)
		if err != nil {
			t.Fatalf("origin body is not a form: %v", err)
		}
		if v := form.Value["k"]; len(v) != 1 || v[0] != "v" {
			t.Errorf("origin field k = %v", v)
		}
		if f := form.File["f"]; len(f) != 1 || f[0].Filename != "f.bin" || f[0].Size != int64(len("file bytes")) {
			t.Errorf("origin file f = %+v", f)
		}
		if left := listDir(t, dir); len(left) != 0 {
			t.Errorf("uploads left after response: %v", left)
		}
	})
}

func boundaryOf(t *testing.T, contentType string) string {
	t.Helper()
	req := &http.Request{Header: http.Header{"Content-Type": {contentType}}}
	b, ok := multipartBoundary(req)
	if !ok {
		t.Fatalf("not multipart: %q", contentType)
	}
	return b
}

func TestHandleError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"auth", &types.AuthError{}, http.StatusUnauthorized},
		{"missing token", &types.AuthError{Code: http.StatusBadRequest, Msg: types.MessageMissingToken}, http.StatusBadRequest},
		{"decode", &types.DecodeError{Part: "body"}, types.StatusDecodeFailed},
		{"too large", &http.MaxBytesError{Limit: 1}, http.StatusRequestEntityTooLarge},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HandleError(tt.err).HTTPStatusCode(); got != tt.want {
				t.Errorf("HTTPStatusCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestWriteError_PlainText(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, httptest.NewRequest(http.MethodGet, "/", nil), &types.DecodeError{Part: "body"})

	if rec.Code != types.StatusDecodeFailed {
		t.Errorf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/plain; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	if rec.Body.String() != "Failed to decode payload." {
		t.Errorf("body = %q", rec.Body.String())
	}
}
