package usage

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// fileNameSpaces matches the separators that become dashes in report file
// names: " - " first, then any single whitespace.
var fileNameSpaces = regexp.MustCompile(`\s-\s|\s`)

// Report is a monthly unique-device report.
type Report struct {
	Company       string
	Month         time.Month
	Created       time.Time
	UniqueDevices int64
	TotalRequests int64
}

// FileName returns the download name of the report.
func (r *Report) FileName() string {
	name := fmt.Sprintf("%s-mte-report-%s-%d.txt", r.Company, r.Month, r.Created.UnixMilli())
	return fileNameSpaces.ReplaceAllString(strings.ToLower(name), "-")
}

// String renders the report body.
func (r *Report) String() string {
	var b strings.Builder
	b.WriteString("MTE Usage Report \n\n")
	fmt.Fprintf(&b, "Company: %s\n", r.Company)
	fmt.Fprintf(&b, "Reporting Month: %s\n", r.Month)
	fmt.Fprintf(&b, "Created: %s\n\n", r.Created.UTC().Format(http.TimeFormat))
	fmt.Fprintf(&b, "Total Unique Device IDs: %d\n", r.UniqueDevices)
	fmt.Fprintf(&b, "Total MTE Requests: %d", r.TotalRequests)
	return b.String()
}

// Period returns the UTC range [from, to) covering the most recent
// occurrence of month relative to now: this year if the month has started,
// otherwise last year.
func Period(month int, now time.Time) (from, to time.Time, err error) {
	if month < 1 || month > 12 {
		return time.Time{}, time.Time{}, ErrInvalidMonth
	}
	now = now.UTC()
	year := now.Year()
	if time.Month(month) > now.Month() {
		year--
	}
	from = time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(0, 1, 0), nil
}

// ReporterConfig configures a Reporter.
type ReporterConfig struct {
	// Company names the licensee.
	Company string

	// Dir is where report files are written.
	Dir string

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Reporter builds monthly usage reports from a Storage.
type Reporter struct {
	storage Storage
	company string
	dir     string
	now     func() time.Time
}

// NewReporter creates a Reporter.
func NewReporter(storage Storage, config ReporterConfig) *Reporter {
	now := config.Now
	if now == nil {
		now = time.Now
	}
	return &Reporter{
		storage: storage,
		company: config.Company,
		dir:     config.Dir,
		now:     now,
	}
}

// CurrentMonth returns the month used when a caller does not ask for one.
func (r *Reporter) CurrentMonth() int {
	return int(r.now().UTC().Month())
}

// Generate summarizes month. It returns ErrInvalidMonth, unwrapped, for a
// month outside 1..12.
func (r *Reporter) Generate(ctx context.Context, month int) (*Report, error) {
	created := r.now()
	from, to, err := Period(month, created)
	if err != nil {
		return nil, err
	}

	summary, err := r.storage.Summarize(ctx, from, to)
	if err != nil {
		return nil, &ReportError{Month: month, Cause: err}
	}

	return &Report{
		Company:       r.company,
		Month:         time.Month(month),
		Created:       created,
		UniqueDevices: summary.UniqueDevices,
		TotalRequests: summary.TotalRequests,
	}, nil
}

// WriteFile generates the report for month and writes it to the reports
// directory. The caller owns the returned file and should remove it once
// delivered.
func (r *Reporter) WriteFile(ctx context.Context, month int) (string, *Report, error) {
	report, err := r.Generate(ctx, month)
	if err != nil {
		return "", nil, err
	}

	path := filepath.Join(r.dir, report.FileName())
	if err := os.WriteFile(path, []byte(report.String()), 0o600); err != nil {
		return "", nil, &ReportError{Month: month, Cause: err}
	}
	return path, report, nil
}
