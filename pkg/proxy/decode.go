package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"mercator-hq/relay/pkg/pairing"
	"mercator-hq/relay/pkg/proxy/types"
	"mercator-hq/relay/pkg/security/cookie"
	"mercator-hq/relay/pkg/telemetry/tracing"
	"mercator-hq/relay/pkg/transform"
)

const tracerName = "mercator-hq/relay/pkg/proxy"

var errNoParts = errors.New("multipart body has no parts")

// Decode kinds, as reported to Metrics.
const (
	KindEmpty     = "empty"
	KindRaw       = "raw"
	KindMultipart = "multipart"
)

// Transformer is the part of transform.Engine the pipelines use.
type Transformer interface {
	Encode(ctx context.Context, id string, payload []byte, format transform.Format) ([]byte, error)
	EncodeString(ctx context.Context, id, s string) (string, error)
	Decode(ctx context.Context, id string, message []byte, format transform.Format) ([]byte, error)
	DecodeString(ctx context.Context, id, s string) (string, error)
	Ready(ctx context.Context, id string) error
}

// Metrics receives pipeline outcomes.
type Metrics interface {
	RecordDecode(kind, outcome string, d time.Duration)
	RecordEncode(outcome string, d time.Duration)
}

type nopMetrics struct{}

func (nopMetrics) RecordDecode(string, string, time.Duration) {}
func (nopMetrics) RecordEncode(string, time.Duration)         {}

// DecoderConfig configures a Decoder.
type DecoderConfig struct {
	// UploadsDir receives the encoded and decoded copies of uploaded files.
	UploadsDir string

	// MaxBodyBytes bounds the encoded request body. Zero means unbounded.
	MaxBodyBytes int64

	Logger  *slog.Logger
	Metrics Metrics
}

// Decoder is the request decode stage. It turns an encoded request into
// the plaintext request the origin expects.
type Decoder struct {
	transformer  Transformer
	uploadsDir   string
	maxBodyBytes int64
	logger       *slog.Logger
	metrics      Metrics
}

// NewDecoder creates a Decoder decoding under t.
func NewDecoder(t Transformer, cfg DecoderConfig) *Decoder {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = nopMetrics{}
	}
	if cfg.UploadsDir == "" {
		cfg.UploadsDir = os.TempDir()
	}
	return &Decoder{
		transformer:  t,
		uploadsDir:   cfg.UploadsDir,
		maxBodyBytes: cfg.MaxBodyBytes,
		logger:       cfg.Logger.With("component", "proxy.decoder"),
		metrics:      cfg.Metrics,
	}
}

// Middleware decodes every request before handing it to next. Requests
// without a session are rejected before any decode is attempted. Files
// written while decoding are removed when next returns, whatever the
// outcome.
func (d *Decoder) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sid, ok := cookie.SessionID(r.Context())
		if !ok {
			WriteError(w, r, &types.AuthError{})
			return
		}

		uploads := &Uploads{}
		defer func() {
			if err := uploads.Remove(); err != nil {
				d.logger.WarnContext(r.Context(), "Failed to remove uploads", "error", err)
			}
		}()

		if d.maxBodyBytes > 0 && r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, d.maxBodyBytes)
		}
		r = r.WithContext(withUploads(r.Context(), uploads))

		out, err := d.Decode(r, sid, uploads)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		if out != r && out.Body != nil {
			defer out.Body.Close()
		}
		next.ServeHTTP(w, out)
	})
}

// Decode returns the plaintext form of r. Temporary files are registered
// with uploads; the caller removes them.
func (d *Decoder) Decode(r *http.Request, sid string, uploads *Uploads) (*http.Request, error) {
	ctx, span := otel.Tracer(tracerName).Start(r.Context(), "proxy.decode")
	defer span.End()
	r = r.WithContext(ctx)

	start := time.Now()
	kind := KindRaw
	var (
		out *http.Request
		err error
	)
	boundary, isMultipart := multipartBoundary(r)
	switch {
	case r.Body == nil || r.Body == http.NoBody || r.ContentLength == 0:
		kind = KindEmpty
	case isMultipart:
		kind = KindMultipart
	}

	// Body-less requests decode nothing, so a session without states would
	// otherwise reach the origin and only fail on the way back.
	if err = d.checkStates(ctx, sid); err == nil {
		switch kind {
		case KindEmpty:
			out = r
		case KindMultipart:
			out, err = d.decodeMultipart(r, sid, boundary, uploads)
		default:
			out, err = d.decodeBody(r, sid)
		}
	}

	outcome := "success"
	if err != nil {
		outcome = "failure"
		var decodeErr *types.DecodeError
		if errors.As(err, &decodeErr) {
			outcome = "rejected"
		}
	}
	tracing.EndOperation(span, tracing.AttrDecodeOutcome, outcome, err,
		attribute.String(tracing.AttrDecodeKind, kind),
		attribute.String(tracing.AttrSessionID, sid),
	)
	d.metrics.RecordDecode(kind, outcome, time.Since(start))
	return out, err
}

// checkStates fails with a DecodeError unless both directions of the
// session are live.
func (d *Decoder) checkStates(ctx context.Context, sid string) error {
	for _, id := range []string{pairing.DecoderID(sid), pairing.EncoderID(sid)} {
		if err := d.transformer.Ready(ctx, id); err != nil {
			return &types.DecodeError{Part: "session state", Err: err}
		}
	}
	return nil
}

func (d *Decoder) decodeBody(r *http.Request, sid string) (*http.Request, error) {
	ctx := r.Context()
	id := pairing.DecoderID(sid)

	contentType := r.Header.Get("Content-Type")
	if cth := r.Header.Get(HeaderEncodedContentType); cth != "" {
		ct, err := d.transformer.DecodeString(ctx, id, cth)
		if err != nil {
			return nil, &types.DecodeError{Part: "content type", Err: err}
		}
		contentType = ct
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, readError(ctx, err)
	}

	format := transform.FormatBinary
	if IsText(contentType) {
		format = transform.FormatText
	}
	plain, err := d.transformer.Decode(ctx, id, body, format)
	if err != nil {
		return nil, &types.DecodeError{Part: "body", Err: err}
	}

	out := r.Clone(ctx)
	out.Header.Del(HeaderEncodedContentType)
	if contentType != "" {
		out.Header.Set("Content-Type", contentType)
	}
	setBody(out, plain)
	return out, nil
}

func (d *Decoder) decodeMultipart(r *http.Request, sid, boundary string, uploads *Uploads) (*http.Request, error) {
	ctx := r.Context()
	id := pairing.DecoderID(sid)

	var (
		fields []Field
		files  []File
	)
	mr := multipart.NewReader(r.Body, boundary)
	for {
		part, err := mr.NextRawPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, partError(ctx, err)
		}

		name, filename, isFile, err := formNames(part)
		if err != nil {
			part.Close()
			return nil, &types.DecodeError{Part: "multipart", Err: err}
		}

		if isFile {
			f, err := d.decodeFile(ctx, id, part, name, filename, uploads)
			part.Close()
			if err != nil {
				return nil, err
			}
			files = append(files, f)
			continue
		}

		value, err := io.ReadAll(part)
		part.Close()
		if err != nil {
			return nil, partError(ctx, err)
		}
		key, err := d.transformer.DecodeString(ctx, id, name)
		if err != nil {
			return nil, &types.DecodeError{Part: "field name", Err: err}
		}
		val, err := d.transformer.DecodeString(ctx, id, string(value))
		if err != nil {
			return nil, &types.DecodeError{Part: "field value", Err: err}
		}
		fields = append(fields, Field{Name: key, Value: val})
	}

	// A non-empty body with no parts means the boundary matched nothing.
	if len(fields) == 0 && len(files) == 0 {
		return nil, &types.DecodeError{Part: "multipart", Err: errNoParts}
	}

	env, err := NewEnvelope(fields, files)
	if err != nil {
		return nil, &types.InternalError{Err: fmt.Errorf("build multipart body: %w", err)}
	}

	out := r.Clone(ctx)
	out.Header.Del(HeaderEncodedContentType)
	out.Header.Set("Content-Type", env.ContentType())
	out.Header.Set("Content-Length", strconv.FormatInt(env.Len(), 10))
	out.ContentLength = env.Len()
	out.TransferEncoding = nil
	out.Body = env
	out.GetBody = nil
	return out, nil
}

// decodeFile spools one encoded upload to disk, decodes it and replaces the
// encoded copy with the decoded one.
func (d *Decoder) decodeFile(ctx context.Context, id string, part *multipart.Part, name, filename string, uploads *Uploads) (File, error) {
	encoded, err := os.CreateTemp(d.uploadsDir, "upload-*")
	if err != nil {
		return File{}, &types.InternalError{Err: fmt.Errorf("create upload file: %w", err)}
	}
	uploads.Add(encoded.Name())
	_, err = io.Copy(encoded, part)
	if cerr := encoded.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return File{}, partError(ctx, err)
	}

	fieldName, err := d.transformer.DecodeString(ctx, id, name)
	if err != nil {
		return File{}, &types.DecodeError{Part: "file field name", Err: err}
	}
	fileName, err := d.transformer.DecodeString(ctx, id, filename)
	if err != nil {
		return File{}, &types.DecodeError{Part: "file name", Err: err}
	}

	data, err := os.ReadFile(encoded.Name())
	if err != nil {
		return File{}, &types.InternalError{Err: fmt.Errorf("read upload file: %w", err)}
	}
	plain, err := d.transformer.Decode(ctx, id, data, transform.FormatBinary)
	if err != nil {
		return File{}, &types.DecodeError{Part: "file", Err: err}
	}

	decoded, err := os.CreateTemp(d.uploadsDir, "decoded-*")
	if err != nil {
		return File{}, &types.InternalError{Err: fmt.Errorf("create decoded file: %w", err)}
	}
	uploads.Add(decoded.Name())
	_, err = decoded.Write(plain)
	if cerr := decoded.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return File{}, &types.InternalError{Err: fmt.Errorf("write decoded file: %w", err)}
	}

	if err := os.Remove(encoded.Name()); err != nil {
		d.logger.WarnContext(ctx, "Failed to remove encoded upload", "path", encoded.Name(), "error", err)
	} else {
		uploads.Forget(encoded.Name())
	}

	return File{
		FieldName:   fieldName,
		FileName:    fileName,
		ContentType: part.Header.Get("Content-Type"),
		Path:        decoded.Name(),
	}, nil
}

// formNames reads the form name and file name of a part. The raw header
// is parsed because Part.FileName strips directories, and base64 text may
// contain slashes.
func formNames(part *multipart.Part) (name, filename string, isFile bool, err error) {
	disposition, params, err := mime.ParseMediaType(part.Header.Get("Content-Disposition"))
	if err != nil {
		return "", "", false, fmt.Errorf("content disposition: %w", err)
	}
	if disposition != "form-data" {
		return "", "", false, fmt.Errorf("unexpected disposition %q", disposition)
	}
	filename, isFile = params["filename"]
	return params["name"], filename, isFile, nil
}

func setBody(r *http.Request, body []byte) {
	r.Body = io.NopCloser(bytes.NewReader(body))
	r.ContentLength = int64(len(body))
	r.TransferEncoding = nil
	r.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
	r.Header.Set("Content-Length", strconv.Itoa(len(body)))
}

// readError classifies a failure to read the request body.
func readError(ctx context.Context, err error) error {
	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytesErr):
		return err
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		return &types.InvalidRequestError{Err: fmt.Errorf("read body: %w", err)}
	}
}

// partError classifies a failure while walking a multipart body. Anything
// that is not a read failure means the body is not a valid form.
func partError(ctx context.Context, err error) error {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) || ctx.Err() != nil {
		return readError(ctx, err)
	}
	return &types.DecodeError{Part: "multipart", Err: err}
}

type uploadsKey struct{}

func withUploads(ctx context.Context, u *Uploads) context.Context {
	return context.WithValue(ctx, uploadsKey{}, u)
}

func uploadsFrom(ctx context.Context) *Uploads {
	u, _ := ctx.Value(uploadsKey{}).(*Uploads)
	return u
}
