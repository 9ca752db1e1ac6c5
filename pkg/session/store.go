// Package session holds per-session transform state.
//
// The Store keeps live states in a TTL cache (github.com/patrickmn/go-cache).
// When an entry expires it is handed to a Persister; a later lookup that
// misses the cache reclaims it from there with take semantics, so a state
// lives either in memory or in the durable store, never in both. With the
// NopPersister the relay runs memory-only and an expired session has to
// pair again.
package session

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"mercator-hq/relay/pkg/transform"
)

const (
	// CacheName labels the state cache in metrics.
	CacheName = "session_state"

	// DefaultTTL matches the idle lifetime of a session's state.
	DefaultTTL = 10 * time.Minute

	// DefaultCleanupInterval is how often expired entries are evicted.
	DefaultCleanupInterval = time.Minute

	// DefaultPersistTimeout bounds a single persist call made on eviction.
	DefaultPersistTimeout = 5 * time.Second

	lockStripes = 64
)

// Metrics receives cache and persister events. metrics.Collector
// implements it.
type Metrics interface {
	RecordHit(cacheName string)
	RecordMiss(cacheName string)
	RecordEviction(cacheName string)
	UpdateSize(cacheName string, size int)
	RecordPersisterOp(op string, err error)
}

// Config configures a Store.
type Config struct {
	// TTL is how long a state survives without being used.
	TTL time.Duration

	// CleanupInterval is how often the cache evicts expired states.
	CleanupInterval time.Duration

	// PersistTimeout bounds persist calls that have no request context.
	PersistTimeout time.Duration

	// Durable reports whether Persister is backed by a real store. When
	// false the persister is never called.
	Durable bool

	Logger  *slog.Logger
	Metrics Metrics
}

// Store is a TTL cache of transform states with an optional durable
// persister behind it. It implements transform.StateStore.
type Store struct {
	cache     *cache.Cache
	persister Persister
	durable   bool
	timeout   time.Duration
	logger    *slog.Logger
	metrics   Metrics

	reclaims singleflight.Group
	locks    [lockStripes]sync.Mutex
}

var _ transform.StateStore = (*Store)(nil)

// New creates a Store. A nil persister is replaced by NopPersister and
// forces memory-only operation.
func New(cfg Config, p Persister) *Store {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultCleanupInterval
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = DefaultPersistTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = nopMetrics{}
	}
	if p == nil {
		p = NopPersister{}
		cfg.Durable = false
	}

	s := &Store{
		cache:     cache.New(cfg.TTL, cfg.CleanupInterval),
		persister: p,
		durable:   cfg.Durable,
		timeout:   cfg.PersistTimeout,
		logger:    cfg.Logger.With("component", "session.store"),
		metrics:   cfg.Metrics,
	}
	s.cache.OnEvicted(s.onEvicted)
	return s
}

// Durable reports whether evicted states survive in a durable store.
func (s *Store) Durable() bool {
	return s.durable
}

// Len returns the number of states held in memory, including expired
// entries not yet evicted.
func (s *Store) Len() int {
	return s.cache.ItemCount()
}

// Get returns the live state for id. On a cache miss the state is
// reclaimed from the persister; transform.ErrNoState is returned when it
// cannot be found anywhere.
func (s *Store) Get(ctx context.Context, id string) (*transform.State, error) {
	if v, ok := s.cache.Get(id); ok {
		s.metrics.RecordHit(CacheName)
		return v.(*transform.State), nil
	}
	s.metrics.RecordMiss(CacheName)

	// An expired entry that the janitor has not collected yet is evicted
	// now, so it reaches the persister before we try to reclaim it.
	mu := s.lock(id)
	mu.Lock()
	if v, ok := s.cache.Get(id); ok {
		mu.Unlock()
		return v.(*transform.State), nil
	}
	s.cache.Delete(id)
	mu.Unlock()

	if !s.durable {
		return nil, transform.ErrNoState
	}

	v, err, _ := s.reclaims.Do(id, func() (any, error) {
		return s.reclaim(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return v.(*transform.State), nil
}

func (s *Store) reclaim(ctx context.Context, id string) (*transform.State, error) {
	mu := s.lock(id)
	mu.Lock()
	defer mu.Unlock()

	if v, ok := s.cache.Get(id); ok {
		return v.(*transform.State), nil
	}

	blob, err := s.persister.Reclaim(ctx, id)
	s.metrics.RecordPersisterOp("reclaim", err)
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to reclaim session state", "id", id, "error", err)
		return nil, fmt.Errorf("%w: reclaim failed: %v", transform.ErrNoState, err)
	}
	if blob == nil {
		return nil, transform.ErrNoState
	}

	st := new(transform.State)
	if err := st.UnmarshalBinary(blob); err != nil {
		s.logger.WarnContext(ctx, "Discarding unreadable session state", "id", id, "error", err)
		return nil, fmt.Errorf("%w: %v", transform.ErrNoState, err)
	}

	s.cache.SetDefault(id, st)
	s.updateSize()
	s.logger.DebugContext(ctx, "Session state reclaimed", "id", id)
	return st, nil
}

// Put stores st under id, replacing any previous state in memory and
// dropping any durable copy.
func (s *Store) Put(ctx context.Context, id string, st *transform.State) error {
	mu := s.lock(id)
	mu.Lock()
	defer mu.Unlock()

	s.cache.SetDefault(id, st)
	s.updateSize()

	if s.durable {
		_, err := s.persister.Reclaim(ctx, id)
		s.metrics.RecordPersisterOp("discard", err)
		if err != nil {
			s.logger.WarnContext(ctx, "Failed to discard stale session state", "id", id, "error", err)
		}
	}
	return nil
}

// Touch resets the TTL of st after it was used. A state that has since
// been replaced under id is left alone; one that was evicted while in use
// is made live again and its durable copy dropped.
func (s *Store) Touch(id string, st *transform.State) {
	mu := s.lock(id)
	mu.Lock()
	defer mu.Unlock()

	v, found := s.cache.Get(id)
	if found && v != st {
		return
	}
	s.cache.SetDefault(id, st)
	if found || !s.durable {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	_, err := s.persister.Reclaim(ctx, id)
	s.metrics.RecordPersisterOp("discard", err)
	if err != nil {
		s.logger.Warn("Failed to discard superseded session state", "id", id, "error", err)
	}
}

// onEvicted runs after go-cache removes an entry, outside the cache lock.
// It may run while Get holds the stripe lock for id, so it must not take
// it.
func (s *Store) onEvicted(id string, v any) {
	s.metrics.RecordEviction(CacheName)
	s.updateSize()

	if !s.durable {
		return
	}
	st, ok := v.(*transform.State)
	if !ok {
		return
	}

	// Touch may have revived the state in the meantime.
	if _, live := s.cache.Get(id); live {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.persist(ctx, id, st); err != nil {
		s.logger.Warn("Failed to persist evicted session state", "id", id, "error", err)
	}
}

func (s *Store) persist(ctx context.Context, id string, st *transform.State) error {
	blob, err := st.MarshalBinary()
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	err = s.persister.Persist(ctx, id, blob)
	s.metrics.RecordPersisterOp("persist", err)
	return err
}

// Close writes every live state to the persister and empties the cache,
// so a restarted relay can pick the sessions up again.
func (s *Store) Close(ctx context.Context) error {
	if !s.durable {
		s.cache.Flush()
		return nil
	}

	var errs []error
	for id, item := range s.cache.Items() {
		st, ok := item.Object.(*transform.State)
		if !ok {
			continue
		}
		if err := s.persist(ctx, id, st); err != nil {
			errs = append(errs, fmt.Errorf("persist %s: %w", id, err))
		}
	}
	s.cache.Flush()
	s.updateSize()

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	s.logger.Info("Session states flushed to durable store")
	return nil
}

func (s *Store) lock(id string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return &s.locks[h.Sum32()%lockStripes]
}

func (s *Store) updateSize() {
	s.metrics.UpdateSize(CacheName, s.cache.ItemCount())
}

type nopMetrics struct{}

func (nopMetrics) RecordHit(string)                {}
func (nopMetrics) RecordMiss(string)               {}
func (nopMetrics) RecordEviction(string)           {}
func (nopMetrics) UpdateSize(string, int)          {}
func (nopMetrics) RecordPersisterOp(string, error) {}
