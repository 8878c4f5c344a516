package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kgraglabs/kgrag/internal/adapters/driven/storage/memory"
	"github.com/kgraglabs/kgrag/internal/core/domain"
)

// fakeClock is an injectable, advanceable clock.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

// stubQueries returns a fixed answer and records the prompt it saw.
type stubQueries struct {
	answer     *domain.Answer
	lastPrompt string
}

func (s *stubQueries) Query(_ context.Context, prompt string, _ domain.QueryOptions) (*domain.Answer, error) {
	s.lastPrompt = prompt
	return s.answer, nil
}

func TestSession_SlidingTTLExpiry(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)}
	store := memory.NewSessionStore()
	svc := NewSessionService(store, nil, WithSessionClock(clock.Now))
	ctx := context.Background()

	_, err := svc.Save(ctx, "thread-1", "user", "remember this")
	require.NoError(t, err)

	// Present just inside the 15 minute horizon.
	clock.Advance(14 * time.Minute)
	state, err := svc.Load(ctx, "thread-1")
	require.NoError(t, err)
	assert.Len(t, state.Turns, 1)

	// The Load did not write, so two more minutes pass the horizon.
	clock.Advance(2 * time.Minute)
	_, err = svc.Load(ctx, "thread-1")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSession_WriteSlidesExpiryForward(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)}
	store := memory.NewSessionStore()
	svc := NewSessionService(store, nil, WithSessionClock(clock.Now))
	ctx := context.Background()

	_, err := svc.Save(ctx, "thread-1", "user", "first")
	require.NoError(t, err)

	// A write at +14m resets the horizon; the session survives +28m.
	clock.Advance(14 * time.Minute)
	_, err = svc.Save(ctx, "thread-1", "assistant", "second")
	require.NoError(t, err)

	clock.Advance(14 * time.Minute)
	state, err := svc.Load(ctx, "thread-1")
	require.NoError(t, err)
	assert.Len(t, state.Turns, 2)
}

func TestSession_MonotonicSequenceNumbers(t *testing.T) {
	store := memory.NewSessionStore()
	svc := NewSessionService(store, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		turn, err := svc.Save(ctx, "thread-1", role, "turn")
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), turn.Seq)
	}

	state, err := svc.Load(ctx, "thread-1")
	require.NoError(t, err)
	for i := 1; i < len(state.Turns); i++ {
		assert.Greater(t, state.Turns[i].Seq, state.Turns[i-1].Seq)
	}
}

func TestSession_AskFoldsHistoryAndAppendsTurns(t *testing.T) {
	store := memory.NewSessionStore()
	queries := &stubQueries{answer: &domain.Answer{Text: "42"}}
	svc := NewSessionService(store, queries)
	ctx := context.Background()

	_, err := svc.Save(ctx, "thread-1", "user", "What is the answer?")
	require.NoError(t, err)
	_, err = svc.Save(ctx, "thread-1", "assistant", "Working on it.")
	require.NoError(t, err)

	answer, err := svc.Ask(ctx, "thread-1", "And why?", domain.QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, "42", answer.Text)

	// History folded into the prompt the query service saw.
	assert.Contains(t, queries.lastPrompt, "What is the answer?")
	assert.Contains(t, queries.lastPrompt, "Working on it.")
	assert.Contains(t, queries.lastPrompt, "And why?")

	// Question and answer both appended.
	state, err := svc.Load(ctx, "thread-1")
	require.NoError(t, err)
	require.Len(t, state.Turns, 4)
	assert.Equal(t, "And why?", state.Turns[2].Content)
	assert.Equal(t, "42", state.Turns[3].Content)
}

func TestSession_AskOnExpiredSessionStartsFresh(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)}
	store := memory.NewSessionStore()
	queries := &stubQueries{answer: &domain.Answer{Text: "ok"}}
	svc := NewSessionService(store, queries, WithSessionClock(clock.Now))
	ctx := context.Background()

	_, err := svc.Save(ctx, "thread-1", "user", "old context")
	require.NoError(t, err)

	clock.Advance(16 * time.Minute)
	_, err = svc.Ask(ctx, "thread-1", "fresh question", domain.QueryOptions{})
	require.NoError(t, err)

	// Expired history never reached the query.
	assert.NotContains(t, queries.lastPrompt, "old context")

	state, err := svc.Load(ctx, "thread-1")
	require.NoError(t, err)
	assert.Len(t, state.Turns, 2)
	assert.Equal(t, int64(1), state.Turns[0].Seq)
}

func TestSession_ExpireSweep(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)}
	store := memory.NewSessionStore()
	svc := NewSessionService(store, nil, WithSessionClock(clock.Now))
	ctx := context.Background()

	_, err := svc.Save(ctx, "old", "user", "stale")
	require.NoError(t, err)

	clock.Advance(10 * time.Minute)
	_, err = svc.Save(ctx, "fresh", "user", "recent")
	require.NoError(t, err)

	clock.Advance(6 * time.Minute)
	removed, err := svc.Expire(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = store.Get(ctx, "old")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = store.Get(ctx, "fresh")
	assert.NoError(t, err)
}

func TestSession_SaveValidatesInput(t *testing.T) {
	svc := NewSessionService(memory.NewSessionStore(), nil)
	ctx := context.Background()

	_, err := svc.Save(ctx, "", "user", "content")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = svc.Save(ctx, "thread-1", "narrator", "content")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
