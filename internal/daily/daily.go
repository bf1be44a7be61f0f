// Package daily derives the shared "board of the day": every caller dealing a
// daily game on the same UTC date gets the same image set and layout.
package daily

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"math/rand/v2"
	"time"
)

// DateKey returns YYYY-MM-DD in UTC.
func DateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// Seed returns a deterministic seed for a date using HMAC(salt, YYYY-MM-DD).
func Seed(date time.Time, salt string) uint64 {
	h := hmac.New(sha256.New, []byte(salt))
	h.Write([]byte(DateKey(date)))
	sum := h.Sum(nil)
	// take first 8 bytes to uint64 for modulus distribution
	return binary.BigEndian.Uint64(sum[:8])
}

// ImageSet picks the day's set in 1..sets.
func ImageSet(date time.Time, salt string, sets int) int {
	if sets <= 0 {
		return 1
	}
	return int(Seed(date, salt)%uint64(sets)) + 1
}

// Source returns a fresh random source for the day's deal. Each call starts
// from the same state, so a reset re-deals the identical layout.
func Source(date time.Time, salt string) func(int) int {
	seed := Seed(date, salt)
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)).IntN
}
