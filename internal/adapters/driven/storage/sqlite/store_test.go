package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kgraglabs/kgrag/internal/core/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore_MigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	store, err := NewStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	// Reopening re-runs migrate against the applied schema.
	store, err = NewStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Close())
}

func TestDocumentStore_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	docs := store.DocumentStore()
	ctx := context.Background()

	doc := &domain.Document{
		ID:          "doc-1",
		URI:         "/notes/a.txt",
		ContentHash: "abc123",
		Content:     "hello world",
		Version:     1,
		Metadata:    map[string]any{"lang": "en"},
		IngestedAt:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, docs.SaveDocument(ctx, doc))

	got, err := docs.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, doc.ContentHash, got.ContentHash)
	assert.Equal(t, "en", got.Metadata["lang"])

	byURI, err := docs.GetDocumentByURI(ctx, "/notes/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "doc-1", byURI.ID)

	_, err = docs.GetDocument(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDocumentStore_ChunkEmbeddingRoundTrip(t *testing.T) {
	store := newTestStore(t)
	docs := store.DocumentStore()
	ctx := context.Background()

	require.NoError(t, docs.SaveDocument(ctx, &domain.Document{
		ID: "doc-1", URI: "/a", ContentHash: "h", Content: "c", Version: 1, IngestedAt: time.Now(),
	}))
	require.NoError(t, docs.SaveChunks(ctx, []domain.Chunk{
		{ID: "c1", DocumentID: "doc-1", Position: 0, Content: "first"},
		{ID: "c2", DocumentID: "doc-1", Position: 1, Content: "second", Embedding: []float32{0.5, -1.25, 3}},
	}))

	chunk, err := docs.GetChunk(ctx, "c2")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, -1.25, 3}, chunk.Embedding)

	pending, err := docs.ChunksWithoutEmbedding(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "c1", pending[0].ID)

	require.NoError(t, docs.UpdateChunkEmbedding(ctx, "c1", []float32{1, 2, 3}))
	pending, err = docs.ChunksWithoutEmbedding(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	assert.ErrorIs(t, docs.UpdateChunkEmbedding(ctx, "ghost", []float32{1}), domain.ErrNotFound)
}

func TestCrossIndex_IntegrityAndCascade(t *testing.T) {
	store := newTestStore(t)
	docs := store.DocumentStore()
	xref := store.CrossIndex()
	ctx := context.Background()

	// An entry for a chunk that does not exist is rejected.
	err := xref.Record(ctx, "ghost-chunk", "node-1")
	require.ErrorIs(t, err, domain.ErrConsistency)

	require.NoError(t, docs.SaveDocument(ctx, &domain.Document{
		ID: "doc-1", URI: "/a", ContentHash: "h", Content: "c", Version: 1, IngestedAt: time.Now(),
	}))
	require.NoError(t, docs.SaveChunks(ctx, []domain.Chunk{
		{ID: "c1", DocumentID: "doc-1", Position: 0, Content: "text"},
	}))

	require.NoError(t, xref.Record(ctx, "c1", "node-1"))
	require.NoError(t, xref.Record(ctx, "c1", "node-1")) // idempotent

	count, err := xref.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	chunks, err := xref.ChunksFor(ctx, "node-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"c1"}, chunks)

	// Deleting the document cascades through chunks to the entries.
	require.NoError(t, docs.DeleteDocument(ctx, "doc-1"))
	count, err = xref.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSessionStore_TurnsAndExpiry(t *testing.T) {
	store := newTestStore(t)
	sessions := store.SessionStore()
	ctx := context.Background()
	base := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

	first, err := sessions.AppendTurn(ctx, "s1", "user", "hello", base)
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.Seq)

	second, err := sessions.AppendTurn(ctx, "s1", "assistant", "hi", base.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), second.Seq)

	require.NoError(t, sessions.SetScratch(ctx, "s1", "topic", "greetings", base.Add(2*time.Minute)))

	state, err := sessions.Get(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, state.Turns, 2)
	assert.Equal(t, "hello", state.Turns[0].Content)
	assert.Equal(t, "greetings", state.Scratch["topic"])
	assert.Equal(t, base.Add(2*time.Minute), state.LastWrite.UTC())

	// A second session written later survives the sweep.
	_, err = sessions.AppendTurn(ctx, "s2", "user", "later", base.Add(20*time.Minute))
	require.NoError(t, err)

	removed, err := sessions.DeleteOlderThan(ctx, base.Add(10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = sessions.Get(ctx, "s1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = sessions.Get(ctx, "s2")
	assert.NoError(t, err)
}
