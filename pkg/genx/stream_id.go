package genx

import (
	"math/big"

	"github.com/google/uuid"
)

// NewStreamID returns a short identifier for a sub-stream. It is a UUIDv7
// re-encoded in base62: 22 characters, unique, and carrying its creation
// time in the leading digits.
func NewStreamID() string {
	id := uuid.Must(uuid.NewV7())
	s := new(big.Int).SetBytes(id[:]).Text(62)
	// A 128-bit value never needs more than 22 base62 digits.
	for len(s) < 22 {
		s = "0" + s
	}
	return s
}

// newCallID returns an id for a tool call synthesized locally.
func newCallID() string {
	return "call_" + NewStreamID()
}
