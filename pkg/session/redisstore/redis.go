// Package redisstore persists session transform state in Redis.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces state keys.
const DefaultKeyPrefix = "relay:state:"

// Config contains configuration options for the Redis persister.
type Config struct {
	// Client is the Redis client instance.
	Client *redis.Client

	// KeyPrefix is the prefix for all Redis keys.
	// Default: "relay:state:"
	KeyPrefix string

	// Expiry bounds how long a persisted state is kept. Zero keeps it until
	// it is reclaimed.
	Expiry time.Duration
}

// Persister implements session.Persister on Redis. Reclaim uses GETDEL so
// a state is taken atomically even when several relays share the store.
type Persister struct {
	client    *redis.Client
	keyPrefix string
	expiry    time.Duration
}

// New creates a Redis persister.
func New(config Config) (*Persister, error) {
	if config.Client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = DefaultKeyPrefix
	}
	return &Persister{
		client:    config.Client,
		keyPrefix: config.KeyPrefix,
		expiry:    config.Expiry,
	}, nil
}

// Dial parses a redis:// URL and returns a connected client. The
// connection is verified with PING.
func Dial(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Persist stores blob under id.
func (p *Persister) Persist(ctx context.Context, id string, blob []byte) error {
	key := p.key(id)
	if err := p.client.Set(ctx, key, blob, p.expiry).Err(); err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	return nil
}

// Reclaim returns and deletes the blob stored under id, or (nil, nil) when
// the key does not exist.
func (p *Persister) Reclaim(ctx context.Context, id string) ([]byte, error) {
	key := p.key(id)
	blob, err := p.client.GetDel(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to take key %s: %w", key, err)
	}
	return blob, nil
}

// Ping checks connectivity. It backs the readiness check.
func (p *Persister) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (p *Persister) Close() error {
	return p.client.Close()
}

func (p *Persister) key(id string) string {
	return p.keyPrefix + id
}
