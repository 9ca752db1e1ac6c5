package transform

import "errors"

var (
	// ErrDecode marks every failure of Decode. Callers match on it to tell
	// an invalid or desynchronized payload apart from server faults.
	ErrDecode = errors.New("transform: decode failed")

	// ErrNoState is returned when no state exists for an id, either because
	// the session never paired or because its state expired.
	ErrNoState = errors.New("transform: no state for id")

	// ErrOutsideWindow is returned when a sequence number is too far from
	// the highest sequence accepted so far.
	ErrOutsideWindow = errors.New("transform: sequence outside window")

	// ErrReplay is returned when a sequence number was already accepted.
	ErrReplay = errors.New("transform: sequence already used")

	// ErrMalformed is returned when a payload is not a well-formed message.
	ErrMalformed = errors.New("transform: malformed message")

	// ErrDirection is returned when an encoder id is used to decode or the
	// other way around.
	ErrDirection = errors.New("transform: wrong state direction")

	// ErrInvalidSeed is returned when creating a state without entropy.
	ErrInvalidSeed = errors.New("transform: invalid seed")
)
