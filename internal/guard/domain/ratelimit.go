package domain

import "time"

// RateCounter is the durable fixed-window counter behind the
// registration guard. Key is a salted fingerprint of the identity
// signal (IP or email) so raw identifiers never hit storage.
//
// The counter is only ever mutated inside a store transaction: read,
// decide reset-vs-increment, write.
type RateCounter struct {
	Key         string
	WindowStart time.Time
	Count       int
	LastAttempt time.Time
}

// Expired reports whether the window that started at WindowStart has
// elapsed at time now.
func (c RateCounter) Expired(now time.Time, window time.Duration) bool {
	return now.Sub(c.WindowStart) >= window
}
