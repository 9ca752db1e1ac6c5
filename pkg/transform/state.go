package transform

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/hkdf"
)

// Direction tells whether a state encodes or decodes.
type Direction uint8

const (
	// Encoder states produce messages.
	Encoder Direction = iota + 1
	// Decoder states consume messages.
	Decoder
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case Encoder:
		return "encoder"
	case Decoder:
		return "decoder"
	default:
		return "unknown"
	}
}

const (
	keySize         = 32
	noncePrefixSize = 16
	hkdfInfoPrefix  = "relay/transform/v1|"

	// MaxWindow is the largest sequence window a decoder can track.
	MaxWindow = 63
)

// State is the mutable transform state for one id. The zero value is not
// usable; states are created by Engine.CreateEncoder and
// Engine.CreateDecoder or restored with UnmarshalBinary.
type State struct {
	mu sync.Mutex

	direction   Direction
	key         []byte
	noncePrefix []byte

	// seq is the last sequence issued by an encoder, or the highest sequence
	// accepted by a decoder.
	seq uint64

	// seen has bit i set when sequence seq-i was accepted. Decoders only.
	seen uint64
}

func newState(dir Direction, entropy []byte, nonce, personalization string) (*State, error) {
	if len(entropy) == 0 {
		return nil, fmt.Errorf("%w: empty entropy", ErrInvalidSeed)
	}

	r := hkdf.New(sha256.New, entropy, []byte(nonce), []byte(hkdfInfoPrefix+personalization))
	material := make([]byte, keySize+noncePrefixSize)
	if _, err := io.ReadFull(r, material); err != nil {
		return nil, fmt.Errorf("derive key material: %w", err)
	}

	return &State{
		direction:   dir,
		key:         material[:keySize],
		noncePrefix: material[keySize:],
	}, nil
}

// Direction reports whether the state encodes or decodes.
func (s *State) Direction() Direction {
	return s.direction
}

// Sequence returns the current sequence number.
func (s *State) Sequence() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// check reports whether seq may be accepted by a decoder. It does not
// mutate the state. Callers hold s.mu.
func (s *State) check(seq uint64, window uint64) error {
	if seq == 0 {
		return ErrMalformed
	}
	if seq > s.seq {
		if seq-s.seq > window+1 {
			return ErrOutsideWindow
		}
		return nil
	}
	diff := s.seq - seq
	if diff > window {
		return ErrOutsideWindow
	}
	if s.seen&(1<<diff) != 0 {
		return ErrReplay
	}
	return nil
}

// accept records seq as used. Callers hold s.mu and have called check.
func (s *State) accept(seq uint64) {
	if seq > s.seq {
		shift := seq - s.seq
		if shift >= 64 {
			s.seen = 0
		} else {
			s.seen <<= shift
		}
		s.seen |= 1
		s.seq = seq
		return
	}
	s.seen |= 1 << (s.seq - seq)
}

type stateJSON struct {
	Direction   Direction `json:"direction"`
	Key         []byte    `json:"key"`
	NoncePrefix []byte    `json:"nonce_prefix"`
	Seq         uint64    `json:"seq"`
	Seen        uint64    `json:"seen"`
}

// MarshalBinary serializes the state for a durable persister.
func (s *State) MarshalBinary() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return json.Marshal(stateJSON{
		Direction:   s.direction,
		Key:         s.key,
		NoncePrefix: s.noncePrefix,
		Seq:         s.seq,
		Seen:        s.seen,
	})
}

// UnmarshalBinary restores a state produced by MarshalBinary.
func (s *State) UnmarshalBinary(data []byte) error {
	var v stateJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("decode state: %w", err)
	}
	if v.Direction != Encoder && v.Direction != Decoder {
		return fmt.Errorf("decode state: unknown direction %d", v.Direction)
	}
	if len(v.Key) != keySize || len(v.NoncePrefix) != noncePrefixSize {
		return fmt.Errorf("decode state: bad key material length")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.direction = v.Direction
	s.key = v.Key
	s.noncePrefix = v.NoncePrefix
	s.seq = v.Seq
	s.seen = v.Seen
	return nil
}
