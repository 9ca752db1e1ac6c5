package storage

import (
	"context"
	"sync"
	"time"

	"mercator-hq/relay/pkg/usage"
)

// MemoryStorage implements usage.Storage in memory. Records are lost on
// restart, so it suits tests and deployments that do not need reports.
type MemoryStorage struct {
	records []usage.Record
	mu      sync.RWMutex
}

// NewMemoryStorage creates a new in-memory storage backend.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

// Append stores a copy of record.
func (s *MemoryStorage) Append(ctx context.Context, record *usage.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, *record)
	return nil
}

// Summarize counts the records in [from, to).
func (s *MemoryStorage) Summarize(ctx context.Context, from, to time.Time) (*usage.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	summary := &usage.Summary{}
	for i := range s.records {
		record := &s.records[i]
		if record.SessionID == usage.UnknownSession {
			continue
		}
		if record.Time.Before(from) || !record.Time.Before(to) {
			continue
		}
		seen[record.SessionID] = struct{}{}
		summary.TotalRequests++
	}
	summary.UniqueDevices = int64(len(seen))

	return summary, nil
}

// Prune deletes records older than before.
func (s *MemoryStorage) Prune(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.records[:0]
	for _, record := range s.records {
		if !record.Time.Before(before) {
			kept = append(kept, record)
		}
	}
	deleted := int64(len(s.records) - len(kept))
	clear(s.records[len(kept):])
	s.records = kept

	return deleted, nil
}

// Count returns the number of stored records.
func (s *MemoryStorage) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return int64(len(s.records)), nil
}

// Close is a no-op.
func (s *MemoryStorage) Close() error {
	return nil
}
