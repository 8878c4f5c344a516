package driving

import (
	"context"
	"time"

	"github.com/kgraglabs/kgrag/internal/core/domain"
)

// SessionService wraps the query pipeline with thread-scoped memory.
type SessionService interface {
	// Ask runs a query turn inside a session: expired state is purged,
	// recent turns are folded into the prompt context, and both the
	// question and answer are appended to the turn log.
	Ask(ctx context.Context, sessionID, prompt string, opts domain.QueryOptions) (*domain.Answer, error)

	// Load returns the current session state, or domain.ErrNotFound
	// when it never existed or has expired.
	Load(ctx context.Context, sessionID string) (*domain.SessionState, error)

	// Save appends a turn without running a query. Used by callers that
	// manage generation themselves.
	Save(ctx context.Context, sessionID, role, content string) (domain.Turn, error)

	// Expire deletes sessions whose last write is older than the given
	// duration. A zero duration uses the configured TTL.
	Expire(ctx context.Context, olderThan time.Duration) (int, error)
}
