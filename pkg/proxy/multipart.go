package proxy

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"os"
	"strings"
	"sync"
)

// Field is a decoded form field.
type Field struct {
	Name  string
	Value string
}

// File is a decoded upload stored on disk.
type File struct {
	FieldName   string
	FileName    string
	ContentType string
	Path        string
}

// Envelope is a plaintext multipart/form-data body rebuilt from decoded
// fields and files. Its length is known before the first byte is read, so
// the forwarded request carries an exact Content-Length. Fields are
// written before files.
type Envelope struct {
	boundary string
	length   int64
	files    []*os.File
	reader   io.Reader
}

// NewEnvelope builds an envelope. Every file is opened immediately and
// stays open until Close.
func NewEnvelope(fields []Field, files []File) (*Envelope, error) {
	var (
		buf      bytes.Buffer
		segments []io.Reader
	)
	env := &Envelope{}
	ok := false
	defer func() {
		if !ok {
			env.Close()
		}
	}()

	mw := multipart.NewWriter(&buf)
	env.boundary = mw.Boundary()

	flush := func() {
		if buf.Len() == 0 {
			return
		}
		b := bytes.Clone(buf.Bytes())
		buf.Reset()
		segments = append(segments, bytes.NewReader(b))
		env.length += int64(len(b))
	}

	for _, f := range fields {
		w, err := mw.CreateFormField(f.Name)
		if err != nil {
			return nil, fmt.Errorf("write field %q: %w", f.Name, err)
		}
		if _, err := io.WriteString(w, f.Value); err != nil {
			return nil, fmt.Errorf("write field %q: %w", f.Name, err)
		}
	}

	for _, f := range files {
		fh, err := os.Open(f.Path)
		if err != nil {
			return nil, fmt.Errorf("open upload: %w", err)
		}
		env.files = append(env.files, fh)
		info, err := fh.Stat()
		if err != nil {
			return nil, fmt.Errorf("stat upload: %w", err)
		}
		if _, err := mw.CreatePart(fileHeader(f)); err != nil {
			return nil, fmt.Errorf("write file %q: %w", f.FieldName, err)
		}
		flush()
		segments = append(segments, io.LimitReader(fh, info.Size()))
		env.length += info.Size()
	}

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}
	flush()

	env.reader = io.MultiReader(segments...)
	ok = true
	return env, nil
}

// ContentType returns the Content-Type header for the envelope.
func (e *Envelope) ContentType() string {
	return "multipart/form-data; boundary=" + e.boundary
}

// Len returns the exact size of the encoded body in bytes.
func (e *Envelope) Len() int64 {
	return e.length
}

// Read implements io.Reader.
func (e *Envelope) Read(p []byte) (int, error) {
	return e.reader.Read(p)
}

// Close closes the open upload files. It does not remove them.
func (e *Envelope) Close() error {
	var errs []error
	for _, f := range e.files {
		if err := f.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			errs = append(errs, err)
		}
	}
	e.files = nil
	return errors.Join(errs...)
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func fileHeader(f File) textproto.MIMEHeader {
	ct := f.ContentType
	if ct == "" {
		ct = ContentTypeEncoded
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		quoteEscaper.Replace(f.FieldName), quoteEscaper.Replace(f.FileName)))
	h.Set("Content-Type", ct)
	return h
}

// Uploads tracks the temporary files of one request. Remove may be called
// from several exit paths; only the first call does work.
type Uploads struct {
	mu      sync.Mutex
	paths   []string
	removed bool
}

// Add registers path for removal. A path added after Remove is removed
// at once.
func (u *Uploads) Add(path string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.removed {
		_ = os.Remove(path)
		return
	}
	u.paths = append(u.paths, path)
}

// Forget drops path from the set, for files already removed by the caller.
func (u *Uploads) Forget(path string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for i, p := range u.paths {
		if p == path {
			u.paths = append(u.paths[:i], u.paths[i+1:]...)
			return
		}
	}
}

// Len returns the number of tracked files.
func (u *Uploads) Len() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.paths)
}

// Remove deletes every tracked file.
func (u *Uploads) Remove() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.removed {
		return nil
	}
	u.removed = true

	var errs []error
	for _, p := range u.paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	u.paths = nil
	return errors.Join(errs...)
}
