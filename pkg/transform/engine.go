package transform

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf8"

	"golang.org/x/crypto/chacha20poly1305"
)

// Format selects the representation of a transform result.
type Format int

const (
	// FormatBinary returns raw bytes.
	FormatBinary Format = iota
	// FormatText returns bytes that must be valid UTF-8. Decode fails when
	// the recovered payload is not.
	FormatText
	// FormatB64 returns the message in standard base64. Encode only; used
	// where the result has to travel in a header or form field.
	FormatB64
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatBinary:
		return "binary"
	case FormatText:
		return "text"
	case FormatB64:
		return "b64"
	default:
		return "unknown"
	}
}

const (
	messageVersion = 1
	headerSize     = 1 + 8
)

// StateStore holds transform states by id. Get returns ErrNoState when the
// id is unknown. Touch is called after every successful mutation so the
// store can extend the state's lifetime.
type StateStore interface {
	Get(ctx context.Context, id string) (*State, error)
	Put(ctx context.Context, id string, st *State) error
	Touch(id string, st *State)
}

// Config configures an Engine.
type Config struct {
	// SequenceWindow is how far a decoder tolerates reordering or loss,
	// at most MaxWindow.
	SequenceWindow int
}

// Engine encodes and decodes payloads under per-id states held in a
// StateStore. It is safe for concurrent use; calls on the same id are
// serialized.
type Engine struct {
	store  StateStore
	window uint64
}

// New creates an Engine over store.
func New(cfg Config, store StateStore) (*Engine, error) {
	if store == nil {
		return nil, errors.New("transform: state store is nil")
	}
	if cfg.SequenceWindow < 0 || cfg.SequenceWindow > MaxWindow {
		return nil, fmt.Errorf("transform: sequence window must be within 0..%d, got %d", MaxWindow, cfg.SequenceWindow)
	}
	return &Engine{store: store, window: uint64(cfg.SequenceWindow)}, nil
}

// Seed holds the inputs for one new state.
type Seed struct {
	ID              string
	Direction       Direction
	Entropy         []byte
	Nonce           string
	Personalization string
}

// CreateEncoder seeds a new encoder state under id, replacing any existing
// state.
func (e *Engine) CreateEncoder(ctx context.Context, id string, entropy []byte, nonce, personalization string) error {
	return e.CreateStates(ctx, Seed{ID: id, Direction: Encoder, Entropy: entropy, Nonce: nonce, Personalization: personalization})
}

// CreateDecoder seeds a new decoder state under id, replacing any existing
// state.
func (e *Engine) CreateDecoder(ctx context.Context, id string, entropy []byte, nonce, personalization string) error {
	return e.CreateStates(ctx, Seed{ID: id, Direction: Decoder, Entropy: entropy, Nonce: nonce, Personalization: personalization})
}

// CreateStates derives a state for every seed and only then stores them,
// so a seed that fails derivation leaves all existing states untouched.
func (e *Engine) CreateStates(ctx context.Context, seeds ...Seed) error {
	states := make([]*State, len(seeds))
	for i, sd := range seeds {
		if sd.Direction != Encoder && sd.Direction != Decoder {
			return fmt.Errorf("%w: %s", ErrDirection, sd.Direction)
		}
		st, err := newState(sd.Direction, sd.Entropy, sd.Nonce, sd.Personalization)
		if err != nil {
			return err
		}
		states[i] = st
	}
	for i, st := range states {
		if err := e.store.Put(ctx, seeds[i].ID, st); err != nil {
			return fmt.Errorf("store %s state: %w", st.direction, err)
		}
	}
	return nil
}

// Ready returns ErrNoState unless id has a live state, reclaiming it from
// the store's durable tier when needed. The state is not advanced.
func (e *Engine) Ready(ctx context.Context, id string) error {
	_, err := e.store.Get(ctx, id)
	return err
}

// Encode transforms payload under the encoder state id and advances its
// sequence.
func (e *Engine) Encode(ctx context.Context, id string, payload []byte, format Format) ([]byte, error) {
	st, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	if st.direction != Encoder {
		st.mu.Unlock()
		return nil, ErrDirection
	}
	aead, err := chacha20poly1305.NewX(st.key)
	if err != nil {
		st.mu.Unlock()
		return nil, fmt.Errorf("transform: init cipher: %w", err)
	}
	st.seq++
	seq := st.seq
	var header [headerSize]byte
	header[0] = messageVersion
	binary.BigEndian.PutUint64(header[1:], seq)
	msg := make([]byte, 0, headerSize+len(payload)+aead.Overhead())
	msg = append(msg, header[:]...)
	msg = aead.Seal(msg, nonceFor(st.noncePrefix, seq), payload, header[:])
	st.mu.Unlock()

	e.store.Touch(id, st)

	if format == FormatB64 {
		out := make([]byte, base64.StdEncoding.EncodedLen(len(msg)))
		base64.StdEncoding.Encode(out, msg)
		return out, nil
	}
	return msg, nil
}

// EncodeString encodes s and returns the message as base64 text.
func (e *Engine) EncodeString(ctx context.Context, id, s string) (string, error) {
	out, err := e.Encode(ctx, id, []byte(s), FormatB64)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Decode recovers the payload of message under the decoder state id. The
// state is only advanced when the message authenticates and its sequence
// is acceptable. Every failure wraps ErrDecode.
func (e *Engine) Decode(ctx context.Context, id string, message []byte, format Format) ([]byte, error) {
	st, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	plain, err := e.open(st, message)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	e.store.Touch(id, st)

	if format == FormatText && !utf8.Valid(plain) {
		return nil, fmt.Errorf("%w: payload is not valid UTF-8", ErrDecode)
	}
	return plain, nil
}

// DecodeString decodes a base64 message into text.
func (e *Engine) DecodeString(ctx context.Context, id, s string) (string, error) {
	msg, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return "", fmt.Errorf("%w: %w: invalid base64", ErrDecode, ErrMalformed)
	}
	out, err := e.Decode(ctx, id, msg, FormatText)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func (e *Engine) open(st *State, message []byte) ([]byte, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.direction != Decoder {
		return nil, ErrDirection
	}
	if len(message) < headerSize+chacha20poly1305.Overhead || message[0] != messageVersion {
		return nil, ErrMalformed
	}
	seq := binary.BigEndian.Uint64(message[1:headerSize])
	if err := st.check(seq, e.window); err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.NewX(st.key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	plain, err := aead.Open(nil, nonceFor(st.noncePrefix, seq), message[headerSize:], message[:headerSize])
	if err != nil {
		return nil, ErrMalformed
	}

	st.accept(seq)
	return plain, nil
}

func nonceFor(prefix []byte, seq uint64) []byte {
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	copy(nonce, prefix)
	binary.BigEndian.PutUint64(nonce[noncePrefixSize:], seq)
	return nonce
}
