package pairing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"mercator-hq/relay/pkg/keyagree"
	"mercator-hq/relay/pkg/session"
	"mercator-hq/relay/pkg/transform"
)

// client mirrors what a browser-side library does with a pairing response.
type client struct {
	encKeys, decKeys *keyagree.KeyPair
	engine           *transform.Engine
}

func newClient(t *testing.T) *client {
	t.Helper()
	enc, err := keyagree.Generate()
	if err != nil {
		t.Fatal(err)
	}
	dec, err := keyagree.Generate()
	if err != nil {
		t.Fatal(err)
	}
	e, err := transform.New(transform.Config{SequenceWindow: 63}, session.New(session.Config{TTL: time.Minute}, nil))
	if err != nil {
		t.Fatal(err)
	}
	return &client{encKeys: enc, decKeys: dec, engine: e}
}

func (c *client) request() Request {
	return Request{
		DecoderPublicKey:          c.decKeys.PublicKey(),
		EncoderPublicKey:          c.encKeys.PublicKey(),
		DecoderPersonalizationStr: "client-decoder",
		EncoderPersonalizationStr: "client-encoder",
	}
}

func (c *client) complete(t *testing.T, resp *Response) {
	t.Helper()
	ctx := context.Background()

	decEntropy, err := c.decKeys.SharedSecret(resp.EncoderPublicKey)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.engine.CreateDecoder(ctx, "dec", decEntropy, resp.EncoderNonce, "client-decoder"); err != nil {
		t.Fatal(err)
	}

	encEntropy, err := c.encKeys.SharedSecret(resp.DecoderPublicKey)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.engine.CreateEncoder(ctx, "enc", encEntropy, resp.DecoderNonce, "client-encoder"); err != nil {
		t.Fatal(err)
	}
}

type countingMetrics struct {
	mu       sync.Mutex
	outcomes map[string]int
}

func (m *countingMetrics) RecordPairing(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.outcomes == nil {
		m.outcomes = make(map[string]int)
	}
	m.outcomes[outcome]++
}

func newRelay(t *testing.T, cfg Config) (*Pairer, *transform.Engine) {
	t.Helper()
	e, err := transform.New(transform.Config{SequenceWindow: 63}, session.New(session.Config{TTL: time.Minute}, nil))
	if err != nil {
		t.Fatal(err)
	}
	return New(e, cfg), e
}

func TestPair_BothDirectionsRoundTrip(t *testing.T) {
	ctx := context.Background()
	p, relay := newRelay(t, Config{})
	c := newClient(t)

	resp, err := p.Pair(ctx, "sid-1", c.request())
	if err != nil {
		t.Fatalf("Pair() error = %v", err)
	}
	c.complete(t, resp)

	// client encoder -> relay decoder
	msg, err := c.engine.Encode(ctx, "enc", []byte("to the origin"), transform.FormatBinary)
	if err != nil {
		t.Fatal(err)
	}
	got, err := relay.Decode(ctx, DecoderID("sid-1"), msg, transform.FormatText)
	if err != nil || string(got) != "to the origin" {
		t.Fatalf("relay Decode() = %q, %v", got, err)
	}

	// relay encoder -> client decoder
	msg, err = relay.Encode(ctx, EncoderID("sid-1"), []byte("to the browser"), transform.FormatBinary)
	if err != nil {
		t.Fatal(err)
	}
	got, err = c.engine.Decode(ctx, "dec", msg, transform.FormatText)
	if err != nil || string(got) != "to the browser" {
		t.Fatalf("client Decode() = %q, %v", got, err)
	}
}

func TestPair_DirectionsAreNotInterchangeable(t *testing.T) {
	ctx := context.Background()
	p, relay := newRelay(t, Config{})
	c := newClient(t)

	resp, err := p.Pair(ctx, "sid-1", c.request())
	if err != nil {
		t.Fatal(err)
	}
	c.complete(t, resp)

	// A message from the relay encoder must not open under the relay's own
	// decoder: the two directions use different secrets.
	msg, _ := relay.Encode(ctx, EncoderID("sid-1"), []byte("x"), transform.FormatBinary)
	if _, err := relay.Decode(ctx, DecoderID("sid-1"), msg, transform.FormatBinary); !errors.Is(err, transform.ErrDecode) {
		t.Errorf("cross-direction Decode() error = %v, want ErrDecode", err)
	}
}

func TestPair_RepairReplacesState(t *testing.T) {
	ctx := context.Background()
	p, relay := newRelay(t, Config{})
	c := newClient(t)

	first, _ := p.Pair(ctx, "sid-1", c.request())
	c.complete(t, first)
	old, _ := c.engine.Encode(ctx, "enc", []byte("old"), transform.FormatBinary)

	c2 := newClient(t)
	second, err := p.Pair(ctx, "sid-1", c2.request())
	if err != nil {
		t.Fatal(err)
	}
	c2.complete(t, second)

	if _, err := relay.Decode(ctx, DecoderID("sid-1"), old, transform.FormatBinary); err == nil {
		t.Error("message from the previous pairing still decodes")
	}
	msg, _ := c2.engine.Encode(ctx, "enc", []byte("new"), transform.FormatBinary)
	if got, err := relay.Decode(ctx, DecoderID("sid-1"), msg, transform.FormatBinary); err != nil || string(got) != "new" {
		t.Errorf("Decode() after re-pair = %q, %v", got, err)
	}
}

func TestPair_InvalidRequests(t *testing.T) {
	ctx := context.Background()
	c := newClient(t)

	tests := []struct {
		name   string
		sid    string
		mutate func(*Request)
	}{
		{"no session", "", func(*Request) {}},
		{"missing decoder key", "sid", func(r *Request) { r.DecoderPublicKey = "" }},
		{"missing personalization", "sid", func(r *Request) { r.EncoderPersonalizationStr = "" }},
		{"malformed encoder key", "sid", func(r *Request) { r.EncoderPublicKey = "bm90IGEga2V5" }},
		{"non-base64 decoder key", "sid", func(r *Request) { r.DecoderPublicKey = "%%%" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &countingMetrics{}
			p, relay := newRelay(t, Config{Metrics: m})
			req := c.request()
			tt.mutate(&req)

			if _, err := p.Pair(ctx, tt.sid, req); !errors.Is(err, ErrInvalidRequest) {
				t.Fatalf("Pair() error = %v, want ErrInvalidRequest", err)
			}
			if m.outcomes["invalid"] != 1 {
				t.Errorf("outcomes = %v", m.outcomes)
			}
			if _, err := relay.Encode(ctx, EncoderID("sid"), []byte("x"), transform.FormatBinary); !errors.Is(err, transform.ErrNoState) {
				t.Errorf("state created for a rejected pairing: %v", err)
			}
		})
	}
}

func TestPair_Throttled(t *testing.T) {
	ctx := context.Background()
	p, _ := newRelay(t, Config{RatePerSecond: 0.001, Burst: 2})
	c := newClient(t)

	for i := 0; i < 2; i++ {
		if _, err := p.Pair(ctx, "sid-1", c.request()); err != nil {
			t.Fatalf("Pair() #%d error = %v", i, err)
		}
	}
	if _, err := p.Pair(ctx, "sid-1", c.request()); !errors.Is(err, ErrThrottled) {
		t.Errorf("Pair() error = %v, want ErrThrottled", err)
	}
	// Other sessions have their own budget.
	if _, err := p.Pair(ctx, "sid-2", c.request()); err != nil {
		t.Errorf("Pair(sid-2) error = %v", err)
	}
}

func TestPair_ConcurrentSameSession(t *testing.T) {
	ctx := context.Background()
	p, relay := newRelay(t, Config{})

	var wg sync.WaitGroup
	clients := make([]*client, 8)
	responses := make([]*Response, 8)
	for i := range clients {
		clients[i] = newClient(t)
	}
	for i := range clients {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := p.Pair(ctx, "sid-1", clients[i].request())
			if err != nil {
				t.Errorf("Pair() error = %v", err)
				return
			}
			responses[i] = resp
		}(i)
	}
	wg.Wait()

	// Exactly one client's pairing is in effect, in both directions.
	matches := 0
	for i, c := range clients {
		if responses[i] == nil {
			continue
		}
		c.complete(t, responses[i])
		msg, _ := c.engine.Encode(ctx, "enc", []byte("hi"), transform.FormatBinary)
		if _, err := relay.Decode(ctx, DecoderID("sid-1"), msg, transform.FormatBinary); err != nil {
			continue
		}
		back, _ := relay.Encode(ctx, EncoderID("sid-1"), []byte("yo"), transform.FormatBinary)
		if _, err := c.engine.Decode(ctx, "dec", back, transform.FormatBinary); err != nil {
			t.Errorf("client %d: decoder pairing does not match its encoder pairing", i)
		}
		matches++
	}
	if matches != 1 {
		t.Errorf("%d clients match the installed states, want 1", matches)
	}
}
