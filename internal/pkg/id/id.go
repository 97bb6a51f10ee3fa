package id

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// New generates a ULID for the current time.
func New() string {
	return NewAt(time.Now())
}

// NewAt generates a ULID whose timestamp component is t. Verification
// records use their createdAt so that ordering by id matches ordering by
// creation time in every store backend.
func NewAt(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), rand.Reader).String()
}

// Valid reports whether s parses as a ULID. Used to reject forged cursors.
func Valid(s string) bool {
	_, err := ulid.ParseStrict(s)
	return err == nil
}
