package usage

import (
	"context"
	"time"
)

// UnknownSession is recorded for requests that arrived without a session
// cookie. It is never counted as a device.
const UnknownSession = "unknown"

// Record is one line of the access log.
type Record struct {
	// SessionID is the verified session id bound to the request, or
	// UnknownSession.
	SessionID string

	// Method is the HTTP request method.
	Method string

	// URL is the request URI as received.
	URL string

	// Status is the response status code.
	Status int

	// Time is when the response was written.
	Time time.Time
}

// Summary aggregates records over a time range.
type Summary struct {
	// UniqueDevices is the number of distinct session ids.
	UniqueDevices int64

	// TotalRequests is the number of requests made with a session.
	TotalRequests int64
}

// Storage defines the interface for access record backends.
// Implementations must be safe for concurrent use.
type Storage interface {
	// Append persists a record.
	Append(ctx context.Context, record *Record) error

	// Summarize counts the records in [from, to). Records from
	// UnknownSession are excluded from both counts.
	Summarize(ctx context.Context, from, to time.Time) (*Summary, error)

	// Prune deletes records older than before and returns how many
	// were removed.
	Prune(ctx context.Context, before time.Time) (int64, error)

	// Count returns the total number of stored records.
	Count(ctx context.Context) (int64, error)

	// Close releases resources held by the backend.
	Close() error
}
