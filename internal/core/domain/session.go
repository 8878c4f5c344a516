package domain

import "time"

// Turn is one interaction in a session's ordered log.
type Turn struct {
	// Seq is the monotonically increasing sequence number assigned at
	// write time. Concurrent appends interleave deterministically by
	// Seq and are never lost.
	Seq int64

	// Role is "user" or "assistant".
	Role string

	// Content is the turn text.
	Content string

	// CreatedAt is when the turn was appended.
	CreatedAt time.Time
}

// SessionState is the thread-scoped conversation state. It is ephemeral
// by design: expiry is evaluated against LastWrite (sliding TTL), not
// creation time.
type SessionState struct {
	// ID is the session/thread identifier.
	ID string

	// Turns is the append-only, order-preserving interaction log.
	Turns []Turn

	// Scratch holds auxiliary key/value data; last write wins per key.
	Scratch map[string]string

	// CreatedAt is when the session was first written.
	CreatedAt time.Time

	// LastWrite is the timestamp the TTL slides from.
	LastWrite time.Time
}

// Expired reports whether the state has passed its expiry horizon at the
// given instant.
func (s *SessionState) Expired(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	return now.Sub(s.LastWrite) > ttl
}

// NextSeq returns the sequence number for the next appended turn.
func (s *SessionState) NextSeq() int64 {
	if len(s.Turns) == 0 {
		return 1
	}
	return s.Turns[len(s.Turns)-1].Seq + 1
}
