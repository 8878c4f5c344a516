package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kgraglabs/kgrag/internal/core/domain"
)

func TestSessionStore_AppendAssignsSequence(t *testing.T) {
	store := NewSessionStore()
	ctx := context.Background()
	now := time.Now()

	first, err := store.AppendTurn(ctx, "s1", "user", "hello", now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.Seq)

	second, err := store.AppendTurn(ctx, "s1", "assistant", "hi", now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), second.Seq)

	state, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, state.Turns, 2)
	assert.Equal(t, now, state.LastWrite)
}

func TestSessionStore_ConcurrentAppendsNeverLost(t *testing.T) {
	store := NewSessionStore()
	ctx := context.Background()

	const writers = 20
	var wg sync.WaitGroup
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func() {
			defer wg.Done()
			_, err := store.AppendTurn(ctx, "s1", "user", "turn", time.Now())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	state, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, state.Turns, writers)

	// Sequence numbers are dense and strictly increasing.
	for i, turn := range state.Turns {
		assert.Equal(t, int64(i+1), turn.Seq)
	}
}

func TestSessionStore_ScratchLastWriteWins(t *testing.T) {
	store := NewSessionStore()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.SetScratch(ctx, "s1", "topic", "planets", now))
	require.NoError(t, store.SetScratch(ctx, "s1", "topic", "moons", now.Add(time.Second)))

	state, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "moons", state.Scratch["topic"])
	assert.Equal(t, now.Add(time.Second), state.LastWrite)
}

func TestSessionStore_GetReturnsCopy(t *testing.T) {
	store := NewSessionStore()
	ctx := context.Background()

	_, err := store.AppendTurn(ctx, "s1", "user", "original", time.Now())
	require.NoError(t, err)

	state, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	state.Turns[0].Content = "mutated"
	state.Scratch["k"] = "v"

	fresh, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "original", fresh.Turns[0].Content)
	assert.Empty(t, fresh.Scratch)
}

func TestSessionStore_DeleteOlderThan(t *testing.T) {
	store := NewSessionStore()
	ctx := context.Background()
	base := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

	_, err := store.AppendTurn(ctx, "old", "user", "stale", base)
	require.NoError(t, err)
	_, err = store.AppendTurn(ctx, "fresh", "user", "recent", base.Add(10*time.Minute))
	require.NoError(t, err)

	removed, err := store.DeleteOlderThan(ctx, base.Add(5*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = store.Get(ctx, "old")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = store.Get(ctx, "fresh")
	assert.NoError(t, err)
}
