package driven

import (
	"context"
	"time"

	"github.com/kgraglabs/kgrag/internal/core/domain"
)

// SessionStore persists session state with per-session serialization.
// Concurrent writers to the same session ID serialize: scratch writes are
// last-write-wins per key, while turn appends are ordered by the sequence
// number the store assigns and are never lost.
type SessionStore interface {
	// Get retrieves the state for a session, or domain.ErrNotFound.
	// Expiry filtering is the service's job; the store returns whatever
	// it holds.
	Get(ctx context.Context, sessionID string) (*domain.SessionState, error)

	// AppendTurn appends a turn, assigning the next sequence number,
	// and slides LastWrite forward. Creates the session on first write.
	AppendTurn(ctx context.Context, sessionID string, role, content string, at time.Time) (domain.Turn, error)

	// SetScratch writes a scratch key and slides LastWrite forward.
	SetScratch(ctx context.Context, sessionID, key, value string, at time.Time) error

	// Delete removes a session outright.
	Delete(ctx context.Context, sessionID string) error

	// DeleteOlderThan removes every session whose LastWrite predates
	// the cutoff, returning how many were removed. This is the eager
	// cleanup sweep; Load-time filtering handles the lazy path.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}
