// Package pairing implements the key-agreement handshake that seeds a
// session's transform states.
//
// The client sends two public keys, one for each of its directions. The
// relay answers with two fresh public keys and nonces. The relay's encoder
// is derived against the client's decoder key and personalization, and the
// relay's decoder against the client's encoder, so that each side's
// encoder talks to the other side's decoder.
package pairing

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel"
	"golang.org/x/time/rate"

	"mercator-hq/relay/pkg/keyagree"
	"mercator-hq/relay/pkg/telemetry/tracing"
	"mercator-hq/relay/pkg/transform"
)

var (
	// ErrInvalidRequest is returned for missing fields or malformed keys.
	ErrInvalidRequest = errors.New("invalid pairing request")

	// ErrThrottled is returned when a session pairs too often.
	ErrThrottled = errors.New("pairing rate exceeded")
)

const (
	// EncoderPrefix and DecoderPrefix build transform state ids from a
	// session id.
	EncoderPrefix = "encoder_"
	DecoderPrefix = "decoder_"

	lockStripes = 64
	limiterIdle = 10 * time.Minute
)

// EncoderID returns the id of the relay's encoder state for sid.
func EncoderID(sid string) string { return EncoderPrefix + sid }

// DecoderID returns the id of the relay's decoder state for sid.
func DecoderID(sid string) string { return DecoderPrefix + sid }

// Request is the client's half of the handshake.
type Request struct {
	DecoderPublicKey          string `json:"decoderPublicKey"`
	EncoderPublicKey          string `json:"encoderPublicKey"`
	DecoderPersonalizationStr string `json:"decoderPersonalizationStr"`
	EncoderPersonalizationStr string `json:"encoderPersonalizationStr"`
}

// Validate reports missing fields.
func (r *Request) Validate() error {
	var missing []string
	if r.DecoderPublicKey == "" {
		missing = append(missing, "decoderPublicKey")
	}
	if r.EncoderPublicKey == "" {
		missing = append(missing, "encoderPublicKey")
	}
	if r.DecoderPersonalizationStr == "" {
		missing = append(missing, "decoderPersonalizationStr")
	}
	if r.EncoderPersonalizationStr == "" {
		missing = append(missing, "encoderPersonalizationStr")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidRequest, strings.Join(missing, ", "))
	}
	return nil
}

// Response is the relay's half of the handshake.
type Response struct {
	EncoderNonce     string `json:"encoderNonce"`
	EncoderPublicKey string `json:"encoderPublicKey"`
	DecoderNonce     string `json:"decoderNonce"`
	DecoderPublicKey string `json:"decoderPublicKey"`
}

// StateCreator installs transform states. transform.Engine implements it.
type StateCreator interface {
	CreateStates(ctx context.Context, seeds ...transform.Seed) error
}

// Metrics receives pairing outcomes.
type Metrics interface {
	RecordPairing(outcome string)
}

// Config configures a Pairer.
type Config struct {
	// RatePerSecond and Burst bound how often one session may pair.
	// A zero rate disables throttling.
	RatePerSecond float64
	Burst         int

	Logger  *slog.Logger
	Metrics Metrics
}

// Pairer runs handshakes. Pairings for the same session are serialized;
// the last one to finish wins.
type Pairer struct {
	states  StateCreator
	limit   rate.Limit
	burst   int
	logger  *slog.Logger
	metrics Metrics

	limiters *cache.Cache
	locks    [lockStripes]sync.Mutex
}

// New creates a Pairer installing states through states.
func New(states StateCreator, cfg Config) *Pairer {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = nopMetrics{}
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	return &Pairer{
		states:   states,
		limit:    rate.Limit(cfg.RatePerSecond),
		burst:    cfg.Burst,
		logger:   cfg.Logger.With("component", "pairing"),
		metrics:  cfg.Metrics,
		limiters: cache.New(limiterIdle, limiterIdle),
	}
}

// Pair completes the handshake for session sid and replaces any states the
// session had.
func (p *Pairer) Pair(ctx context.Context, sid string, req Request) (*Response, error) {
	ctx, span := otel.Tracer("mercator-hq/relay/pkg/pairing").Start(ctx, "pairing.Pair")
	defer span.End()

	resp, err := p.pair(ctx, sid, req)
	outcome := outcomeOf(err)
	p.metrics.RecordPairing(outcome)
	tracing.EndOperation(span, tracing.AttrPairingOutcome, outcome, err)
	if err != nil {
		p.logger.WarnContext(ctx, "Pairing failed", "session_id", sid, "outcome", outcome, "error", err)
		return nil, err
	}
	p.logger.InfoContext(ctx, "Session paired", "session_id", sid)
	return resp, nil
}

func (p *Pairer) pair(ctx context.Context, sid string, req Request) (*Response, error) {
	if sid == "" {
		return nil, fmt.Errorf("%w: no session", ErrInvalidRequest)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if !p.allow(sid) {
		return nil, ErrThrottled
	}

	encoderKeys, err := keyagree.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate encoder keys: %w", err)
	}
	decoderKeys, err := keyagree.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate decoder keys: %w", err)
	}

	// Both secrets are derived before any state is touched, so a bad key
	// in either direction leaves the session as it was.
	encoderEntropy, err := encoderKeys.SharedSecret(req.DecoderPublicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: decoderPublicKey: %w", ErrInvalidRequest, err)
	}
	decoderEntropy, err := decoderKeys.SharedSecret(req.EncoderPublicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: encoderPublicKey: %w", ErrInvalidRequest, err)
	}

	resp := &Response{
		EncoderNonce:     uuid.NewString(),
		EncoderPublicKey: encoderKeys.PublicKey(),
		DecoderNonce:     uuid.NewString(),
		DecoderPublicKey: decoderKeys.PublicKey(),
	}

	mu := p.lock(sid)
	mu.Lock()
	defer mu.Unlock()

	err = p.states.CreateStates(ctx,
		transform.Seed{
			ID:              EncoderID(sid),
			Direction:       transform.Encoder,
			Entropy:         encoderEntropy,
			Nonce:           resp.EncoderNonce,
			Personalization: req.DecoderPersonalizationStr,
		},
		transform.Seed{
			ID:              DecoderID(sid),
			Direction:       transform.Decoder,
			Entropy:         decoderEntropy,
			Nonce:           resp.DecoderNonce,
			Personalization: req.EncoderPersonalizationStr,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("create transform states: %w", err)
	}
	return resp, nil
}

func (p *Pairer) allow(sid string) bool {
	if p.limit <= 0 {
		return true
	}
	mu := p.lock(sid)
	mu.Lock()
	defer mu.Unlock()

	if v, ok := p.limiters.Get(sid); ok {
		return v.(*rate.Limiter).Allow()
	}
	l := rate.NewLimiter(p.limit, p.burst)
	p.limiters.SetDefault(sid, l)
	return l.Allow()
}

func (p *Pairer) lock(sid string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sid))
	return &p.locks[h.Sum32()%lockStripes]
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid"
	case errors.Is(err, ErrThrottled):
		return "throttled"
	default:
		return "error"
	}
}

type nopMetrics struct{}

func (nopMetrics) RecordPairing(string) {}
