package redisstore

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"mercator-hq/relay/pkg/session"
	"mercator-hq/relay/pkg/transform"
)

var _ session.Persister = (*Persister)(nil)

func newTestPersister(t *testing.T) *Persister {
	t.Helper()
	// Skip test if Redis is not available
	client := redis.NewClient(&redis.Options{
		Addr: "127.0.0.1:6379",
		DB:   3,
	})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	t.Cleanup(func() {
		client.FlushDB(context.Background())
		_ = client.Close()
	})

	p, err := New(Config{Client: client, KeyPrefix: "relay:test:"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return p
}

func TestNew_RequiresClient(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected error without client")
	}
}

func TestPersister_TakeSemantics(t *testing.T) {
	p := newTestPersister(t)
	ctx := context.Background()

	if blob, err := p.Reclaim(ctx, "absent"); blob != nil || err != nil {
		t.Fatalf("Reclaim(absent) = %v, %v", blob, err)
	}

	if err := p.Persist(ctx, "decoder_a", []byte("state")); err != nil {
		t.Fatalf("Persist() error = %v", err)
	}
	blob, err := p.Reclaim(ctx, "decoder_a")
	if err != nil {
		t.Fatalf("Reclaim() error = %v", err)
	}
	if string(blob) != "state" {
		t.Errorf("Reclaim() = %q, want %q", blob, "state")
	}
	if blob, _ := p.Reclaim(ctx, "decoder_a"); blob != nil {
		t.Errorf("second Reclaim() = %q, want nil", blob)
	}
}

func TestPersister_Expiry(t *testing.T) {
	p := newTestPersister(t)
	p.expiry = 100 * time.Millisecond
	ctx := context.Background()

	if err := p.Persist(ctx, "encoder_b", []byte("x")); err != nil {
		t.Fatalf("Persist() error = %v", err)
	}
	time.Sleep(300 * time.Millisecond)
	if blob, _ := p.Reclaim(ctx, "encoder_b"); blob != nil {
		t.Errorf("Reclaim() after expiry = %q, want nil", blob)
	}
}

func TestPersister_BacksSessionStore(t *testing.T) {
	p := newTestPersister(t)
	ctx := context.Background()

	store := session.New(session.Config{TTL: time.Minute, Durable: true}, p)
	e, _ := transform.New(transform.Config{SequenceWindow: 63}, store)
	entropy := bytes.Repeat([]byte{5}, 32)
	_ = e.CreateEncoder(ctx, "encoder_s", entropy, "n", "p")
	_ = e.CreateDecoder(ctx, "decoder_s", entropy, "n", "p")

	msg, _ := e.Encode(ctx, "encoder_s", []byte("survives"), transform.FormatBinary)
	if err := store.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	restarted := session.New(session.Config{TTL: time.Minute, Durable: true}, p)
	e2, _ := transform.New(transform.Config{SequenceWindow: 63}, restarted)
	got, err := e2.Decode(ctx, "decoder_s", msg, transform.FormatBinary)
	if err != nil || string(got) != "survives" {
		t.Errorf("Decode() after restart = %q, %v", got, err)
	}
}
