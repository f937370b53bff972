// Package token implements the opaque per-session identifier handed out in
// stream URLs and inline control callbacks.
package token

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrMalformed is returned when a hex string does not decode to a valid token.
var ErrMalformed = errors.New("token: malformed hex value")

// LocalToken is a 128-bit session identifier: the low 64 bits are the remote
// message id the media was surfaced from, the high 64 bits are a random
// value drawn at session creation (low=message_id, high=random). The on-wire
// form is the hex string of the two halves packed as a single 128-bit value.
type LocalToken struct {
	MessageID uint64
	Random    uint64
}

// New creates a fresh token for messageID with a cryptographically random
// high half. Two tokens for the same message collide only if the random
// halves collide, bounded by the 64-bit space per spec invariant 3.
func New(messageID uint64) (LocalToken, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return LocalToken{}, fmt.Errorf("token: generate random half: %w", err)
	}
	return LocalToken{
		MessageID: messageID,
		Random:    binary.BigEndian.Uint64(buf[:]),
	}, nil
}

// FromParts builds a token from an already-known message id and random
// value, used when reconstructing a token from the legacy four-field
// callback format.
func FromParts(messageID, random uint64) LocalToken {
	return LocalToken{MessageID: messageID, Random: random}
}

// String returns the canonical hex form: Random in the high 64 bits,
// MessageID in the low 64 bits, per the data model's low=message_id,
// high=random layout.
func (t LocalToken) String() string {
	return fmt.Sprintf("%016x%016x", t.Random, t.MessageID)
}

// Parse decodes the hex form produced by String back into a LocalToken.
func Parse(hex string) (LocalToken, error) {
	if len(hex) != 32 {
		return LocalToken{}, fmt.Errorf("%w: want 32 hex chars, got %d", ErrMalformed, len(hex))
	}

	var random, messageID uint64
	if _, err := fmt.Sscanf(hex[:16], "%016x", &random); err != nil {
		return LocalToken{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if _, err := fmt.Sscanf(hex[16:], "%016x", &messageID); err != nil {
		return LocalToken{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	return LocalToken{MessageID: messageID, Random: random}, nil
}
