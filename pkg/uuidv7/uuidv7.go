// Package uuidv7 generates time-ordered identifiers for sub-modules, fields
// and records. UUIDv7 keeps primary keys roughly insertion-ordered, which
// matches the default created_at-descending listing.
package uuidv7

import (
	"crypto/rand"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
)

// New returns a UUIDv7 per RFC 9562 (time-ordered, millisecond precision).
func New() (uuid.UUID, error) {
	var b [16]byte
	if _, err := io.ReadFull(rand.Reader, b[:]); err != nil {
		return uuid.Nil, err
	}

	ms := uint64(time.Now().UnixMilli())
	b[0] = byte(ms >> 40)
	b[1] = byte(ms >> 32)
	b[2] = byte(ms >> 24)
	b[3] = byte(ms >> 16)
	b[4] = byte(ms >> 8)
	b[5] = byte(ms)

	// Version 7 (0b0111)
	b[6] = (b[6] & 0x0f) | 0x70
	// Variant RFC 4122 (0b10xxxxxx)
	b[8] = (b[8] & 0x3f) | 0x80

	return uuid.FromBytes(b[:])
}

// NewString returns UUIDv7 string.
func NewString() (string, error) {
	u, err := New()
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// TimeOf extracts the embedded millisecond timestamp from a UUIDv7 value.
// Returns an error for non-v7 inputs.
func TimeOf(u uuid.UUID) (time.Time, error) {
	if u.Version() != 7 {
		return time.Time{}, errors.New("uuidv7: not a version 7 uuid")
	}
	b := [16]byte(u)
	ms := uint64(b[0])<<40 | uint64(b[1])<<32 | uint64(b[2])<<24 |
		uint64(b[3])<<16 | uint64(b[4])<<8 | uint64(b[5])
	return time.UnixMilli(int64(ms)).UTC(), nil
}
