package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"strconv"

	"mercator-hq/relay/pkg/proxy"
	"mercator-hq/relay/pkg/proxy/types"
	"mercator-hq/relay/pkg/security/auth"
	"mercator-hq/relay/pkg/usage"
)

// MessageMissingAuthorization is the body of a report request without a
// token.
const MessageMissingAuthorization = "Authorization header is missing, but is required."

// ReportWriter writes a monthly usage report to disk. *usage.Reporter
// implements it.
type ReportWriter interface {
	CurrentMonth() int
	WriteFile(ctx context.Context, month int) (string, *usage.Report, error)
}

// ReportHandler serves the unique devices report. The report file is
// streamed as an attachment and removed once sent.
type ReportHandler struct {
	reports ReportWriter
	guard   *auth.TokenGuard
	logger  *slog.Logger
}

// NewReportHandler creates a report handler. guard decides which requests
// may read the report.
func NewReportHandler(reports ReportWriter, guard *auth.TokenGuard, logger *slog.Logger) *ReportHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReportHandler{
		reports: reports,
		guard:   guard,
		logger:  logger.With("component", "handlers.report"),
	}
}

// ServeHTTP implements http.Handler.
//
// Query parameters:
//   - month: 1..12, the current month when absent
func (h *ReportHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch err := h.guard.Check(r); {
	case errors.Is(err, auth.ErrMissingToken):
		proxy.WriteError(w, r, &types.AuthError{Code: http.StatusBadRequest, Msg: MessageMissingAuthorization, Err: err})
		return
	case err != nil:
		proxy.WriteError(w, r, &types.AuthError{Err: err})
		return
	}

	month, err := h.month(r)
	if err != nil {
		proxy.WriteError(w, r, &types.InvalidRequestError{Err: err})
		return
	}

	path, report, err := h.reports.WriteFile(r.Context(), month)
	if err != nil {
		if errors.Is(err, usage.ErrInvalidMonth) {
			err = &types.InvalidRequestError{Err: err}
		}
		proxy.WriteError(w, r, err)
		return
	}
	defer func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			h.logger.WarnContext(r.Context(), "Failed to remove report file", "path", path, "error", err)
		}
	}()

	if err := h.send(w, path, report); err != nil {
		h.logger.WarnContext(r.Context(), "Failed to send report", "path", path, "error", err)
		return
	}
	h.logger.InfoContext(r.Context(), "Usage report sent",
		"month", month,
		"unique_devices", report.UniqueDevices,
		"total_requests", report.TotalRequests,
	)
}

func (h *ReportHandler) month(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("month")
	if raw == "" {
		return h.reports.CurrentMonth(), nil
	}
	month, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", usage.ErrInvalidMonth, raw)
	}
	if month < 1 || month > 12 {
		return 0, usage.ErrInvalidMonth
	}
	return month, nil
}

func (h *ReportHandler) send(w http.ResponseWriter, path string, report *usage.Report) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	hdr := w.Header()
	hdr.Set("Content-Type", "text/plain; charset=utf-8")
	hdr.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": report.FileName()}))
	hdr.Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	w.WriteHeader(http.StatusOK)
	_, err = io.Copy(w, f)
	return err
}
