package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"

	"mercator-hq/relay/pkg/pairing"
	"mercator-hq/relay/pkg/proxy/types"
	"mercator-hq/relay/pkg/telemetry/tracing"
	"mercator-hq/relay/pkg/transform"
)

var errResponseTooLarge = errors.New("origin response exceeds size limit")

// Encoder is the response encode stage.
type Encoder struct {
	transformer  Transformer
	maxBodyBytes int64
	logger       *slog.Logger
	metrics      Metrics
}

// NewEncoder creates an Encoder. maxBodyBytes bounds the origin body it
// buffers; zero means unbounded.
func NewEncoder(t Transformer, maxBodyBytes int64, logger *slog.Logger, metrics Metrics) *Encoder {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Encoder{
		transformer:  t,
		maxBodyBytes: maxBodyBytes,
		logger:       logger.With("component", "proxy.encoder"),
		metrics:      metrics,
	}
}

// EncodeResponse buffers the whole body of resp and replaces it with its
// encoded form under the session's encoder. The original content type
// travels encoded in HeaderEncodedContentType.
func (e *Encoder) EncodeResponse(ctx context.Context, resp *http.Response, sid string) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "proxy.encode")
	defer span.End()

	start := time.Now()
	err := e.encode(ctx, resp, sid)
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	tracing.EndOperation(span, tracing.AttrEncodeOutcome, outcome, err)
	e.metrics.RecordEncode(outcome, time.Since(start))
	return err
}

func (e *Encoder) encode(ctx context.Context, resp *http.Response, sid string) error {
	body, err := e.readBody(resp.Body)
	resp.Body.Close()
	if err != nil {
		return &types.UpstreamError{Err: fmt.Errorf("read origin response: %w", err)}
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = ContentTypeEncoded
	}

	id := pairing.EncoderID(sid)
	cth, err := e.transformer.EncodeString(ctx, id, contentType)
	if err != nil {
		return encodeError("content type", err)
	}
	encoded, err := e.transformer.Encode(ctx, id, body, transform.FormatBinary)
	if err != nil {
		return encodeError("body", err)
	}

	h := resp.Header
	h.Del("Content-Encoding")
	h.Del("Content-Md5")
	h.Set("Content-Type", ContentTypeEncoded)
	h.Set(HeaderEncodedContentType, cth)
	h.Set("Content-Length", strconv.Itoa(len(encoded)))
	resp.Body = io.NopCloser(bytes.NewReader(encoded))
	resp.ContentLength = int64(len(encoded))
	resp.TransferEncoding = nil
	resp.Uncompressed = false
	return nil
}

// encodeError reports a session whose encoder state is gone the same way
// as a decode failure, so the client knows to pair again. Anything else is
// a server fault.
func encodeError(part string, err error) error {
	if errors.Is(err, transform.ErrNoState) {
		return &types.DecodeError{Part: "encoder state", Err: err}
	}
	return &types.InternalError{Err: fmt.Errorf("encode %s: %w", part, err)}
}

func (e *Encoder) readBody(body io.Reader) ([]byte, error) {
	if e.maxBodyBytes <= 0 {
		return io.ReadAll(body)
	}
	b, err := io.ReadAll(io.LimitReader(body, e.maxBodyBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > e.maxBodyBytes {
		return nil, errResponseTooLarge
	}
	return b, nil
}

// dropBody discards the body of resp, keeping status and headers.
func dropBody(resp *http.Response) {
	if resp.Body != nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		resp.Body.Close()
	}
	resp.Body = http.NoBody
	resp.ContentLength = 0
	resp.TransferEncoding = nil
	h := resp.Header
	h.Del("Content-Type")
	h.Del("Content-Encoding")
	h.Set("Content-Length", "0")
}
