package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kgraglabs/kgrag/internal/core/domain"
	"github.com/kgraglabs/kgrag/internal/core/ports/driven"
	"github.com/kgraglabs/kgrag/internal/core/ports/driving"
	"github.com/kgraglabs/kgrag/internal/logger"
)

// Ensure SessionService implements the interface.
var _ driving.SessionService = (*SessionService)(nil)

// DefaultSessionTTL is the sliding expiry horizon. Each write moves it
// forward; a session untouched for this long is gone.
const DefaultSessionTTL = 15 * time.Minute

// DefaultHistoryTurns bounds how many recent turns fold into a prompt.
const DefaultHistoryTurns = 6

// SessionService wraps the query pipeline with thread-scoped memory.
// Expiry is lazy on Load and eager via Expire; both measure from the
// last write, never from creation.
type SessionService struct {
	store   driven.SessionStore
	queries driving.QueryService

	ttl          time.Duration
	historyTurns int
	now          func() time.Time
}

// SessionOption configures the service.
type SessionOption func(*SessionService)

// WithTTL overrides the sliding expiry horizon.
func WithTTL(ttl time.Duration) SessionOption {
	return func(s *SessionService) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithHistoryTurns sets how many recent turns fold into prompts.
func WithHistoryTurns(n int) SessionOption {
	return func(s *SessionService) {
		if n > 0 {
			s.historyTurns = n
		}
	}
}

// WithSessionClock injects a clock for tests.
func WithSessionClock(now func() time.Time) SessionOption {
	return func(s *SessionService) { s.now = now }
}

// NewSessionService creates the service. The query service may be nil
// for callers that only Save and Load.
func NewSessionService(store driven.SessionStore, queries driving.QueryService, opts ...SessionOption) *SessionService {
	s := &SessionService{
		store:        store,
		queries:      queries,
		ttl:          DefaultSessionTTL,
		historyTurns: DefaultHistoryTurns,
		now:          time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Ask runs a query turn inside the session: expired state is purged
// first, recent turns are folded into the prompt, and the question and
// answer are both appended to the log.
func (s *SessionService) Ask(
	ctx context.Context, sessionID, prompt string, opts domain.QueryOptions,
) (*domain.Answer, error) {
	if s.queries == nil {
		return nil, fmt.Errorf("%w: no query service configured", domain.ErrInvalidInput)
	}
	if strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("%w: empty session id", domain.ErrInvalidInput)
	}

	state, err := s.Load(ctx, sessionID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("load session: %w", err)
	}

	contextual := prompt
	if state != nil && len(state.Turns) > 0 {
		contextual = s.foldHistory(state, prompt)
	}

	opts.SessionID = sessionID
	answer, err := s.queries.Query(ctx, contextual, opts)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if _, err := s.store.AppendTurn(ctx, sessionID, "user", prompt, now); err != nil {
		return nil, fmt.Errorf("append user turn: %w", err)
	}
	if _, err := s.store.AppendTurn(ctx, sessionID, "assistant", answer.Text, now); err != nil {
		return nil, fmt.Errorf("append assistant turn: %w", err)
	}

	return answer, nil
}

// foldHistory prefixes the prompt with the most recent turns so the
// query pipeline sees the conversation so far.
func (s *SessionService) foldHistory(state *domain.SessionState, prompt string) string {
	turns := state.Turns
	if len(turns) > s.historyTurns {
		turns = turns[len(turns)-s.historyTurns:]
	}

	var b strings.Builder
	b.WriteString("Conversation so far:\n")
	for _, t := range turns {
		fmt.Fprintf(&b, "%s: %s\n", t.Role, t.Content)
	}
	b.WriteString("\n")
	b.WriteString(prompt)
	return b.String()
}

// Load returns the session state, treating expired state as never
// having existed. Expired state found on the way is deleted.
func (s *SessionService) Load(ctx context.Context, sessionID string) (*domain.SessionState, error) {
	state, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if state.Expired(s.now(), s.ttl) {
		logger.Debug("Session %s expired, purging", sessionID)
		if err := s.store.Delete(ctx, sessionID); err != nil {
			logger.Warn("Failed to purge expired session %s: %v", sessionID, err)
		}
		return nil, domain.ErrNotFound
	}

	return state, nil
}

// Save appends a turn without running a query. The write slides the
// session's expiry forward.
func (s *SessionService) Save(ctx context.Context, sessionID, role, content string) (domain.Turn, error) {
	if strings.TrimSpace(sessionID) == "" {
		return domain.Turn{}, fmt.Errorf("%w: empty session id", domain.ErrInvalidInput)
	}
	if role != "user" && role != "assistant" {
		return domain.Turn{}, fmt.Errorf("%w: role must be user or assistant", domain.ErrInvalidInput)
	}

	turn, err := s.store.AppendTurn(ctx, sessionID, role, content, s.now())
	if err != nil {
		return domain.Turn{}, fmt.Errorf("append turn: %w", err)
	}
	return turn, nil
}

// Expire deletes sessions whose last write is older than the given
// duration. A zero duration uses the configured TTL.
func (s *SessionService) Expire(ctx context.Context, olderThan time.Duration) (int, error) {
	if olderThan <= 0 {
		olderThan = s.ttl
	}

	cutoff := s.now().Add(-olderThan)
	n, err := s.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("expire sessions: %w", err)
	}

	if n > 0 {
		logger.Info("Expired %d sessions", n)
	}
	return n, nil
}
