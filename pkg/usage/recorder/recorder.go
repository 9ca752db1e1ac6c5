package recorder

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"mercator-hq/relay/pkg/usage"
)

// ErrClosed is returned by Record after Close.
var ErrClosed = errors.New("usage recorder closed")

// ErrBufferFull is returned when a record could not be enqueued before the
// enqueue timeout.
var ErrBufferFull = errors.New("usage recorder buffer full")

// Config contains configuration for the usage recorder.
type Config struct {
	// AsyncBuffer is the size of the async write channel buffer.
	// Default: 1000
	AsyncBuffer int

	// EnqueueTimeout bounds how long Record waits for buffer space.
	// Default: 50 milliseconds
	EnqueueTimeout time.Duration

	// WriteTimeout is the timeout for writing a record to storage.
	// Default: 5 seconds
	WriteTimeout time.Duration

	// Logger receives write failures. Default: slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns the default recorder configuration.
func DefaultConfig() *Config {
	return &Config{
		AsyncBuffer:    1000,
		EnqueueTimeout: 50 * time.Millisecond,
		WriteTimeout:   5 * time.Second,
	}
}

// Recorder writes access records to storage from a background worker so
// requests never wait on the database.
type Recorder struct {
	storage    usage.Storage
	config     *Config
	recordChan chan *usage.Record
	wg         sync.WaitGroup
	done       chan struct{}
	closeOnce  sync.Once
	logger     *slog.Logger

	written atomic.Int64
	dropped atomic.Int64
}

// NewRecorder creates a recorder and starts its worker.
func NewRecorder(storage usage.Storage, config *Config) *Recorder {
	defaults := DefaultConfig()
	if config == nil {
		config = defaults
	}
	if config.AsyncBuffer <= 0 {
		config.AsyncBuffer = defaults.AsyncBuffer
	}
	if config.EnqueueTimeout <= 0 {
		config.EnqueueTimeout = defaults.EnqueueTimeout
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := &Recorder{
		storage:    storage,
		config:     config,
		recordChan: make(chan *usage.Record, config.AsyncBuffer),
		done:       make(chan struct{}),
		logger:     logger.With("component", "usage.recorder"),
	}

	r.wg.Add(1)
	go r.worker()

	return r
}

// Record enqueues record for writing. It returns immediately unless the
// buffer is full, in which case it waits up to EnqueueTimeout and then
// drops the record.
func (r *Recorder) Record(ctx context.Context, record *usage.Record) error {
	select {
	case <-r.done:
		r.dropped.Add(1)
		return ErrClosed
	default:
	}

	select {
	case r.recordChan <- record:
		return nil
	default:
	}

	timer := time.NewTimer(r.config.EnqueueTimeout)
	defer timer.Stop()

	select {
	case r.recordChan <- record:
		return nil
	case <-timer.C:
		r.dropped.Add(1)
		r.logger.Warn("usage record channel full, dropping record",
			"session_id", record.SessionID,
			"channel_capacity", r.config.AsyncBuffer,
		)
		return ErrBufferFull
	case <-ctx.Done():
		r.dropped.Add(1)
		return ctx.Err()
	case <-r.done:
		r.dropped.Add(1)
		return ErrClosed
	}
}

// Written returns the number of records persisted.
func (r *Recorder) Written() int64 {
	return r.written.Load()
}

// Dropped returns the number of records that were never persisted.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Close stops accepting records, drains the buffer and waits for pending
// writes. It does not close the storage.
func (r *Recorder) Close() error {
	r.closeOnce.Do(func() {
		close(r.done)
		r.wg.Wait()
		r.logger.Info("usage recorder shut down",
			"written", r.written.Load(),
			"dropped", r.dropped.Load(),
		)
	})
	return nil
}

func (r *Recorder) worker() {
	defer r.wg.Done()

	for {
		select {
		case record := <-r.recordChan:
			r.writeRecord(record)

		case <-r.done:
			for {
				select {
				case record := <-r.recordChan:
					r.writeRecord(record)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) writeRecord(record *usage.Record) {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.WriteTimeout)
	defer cancel()

	start := time.Now()
	if err := r.storage.Append(ctx, record); err != nil {
		r.dropped.Add(1)
		r.logger.Error("failed to store usage record",
			"session_id", record.SessionID,
			"error", err,
		)
		return
	}
	r.written.Add(1)

	if duration := time.Since(start); duration > r.config.WriteTimeout/2 {
		r.logger.Warn("slow usage write",
			"duration_ms", duration.Milliseconds(),
			"threshold_ms", (r.config.WriteTimeout / 2).Milliseconds(),
		)
	}
}
