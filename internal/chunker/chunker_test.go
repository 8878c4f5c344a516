package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kgraglabs/kgrag/internal/core/domain"
)

func testDoc(content string) *domain.Document {
	return &domain.Document{ID: "doc-test", Content: content}
}

func TestNew_Defaults(t *testing.T) {
	c := New()
	assert.Equal(t, DefaultWindow, c.Window())
	assert.Equal(t, DefaultOverlap, c.Overlap())
}

func TestNew_OverlapClamped(t *testing.T) {
	c := New(WithWindow(100), WithOverlap(150))
	assert.Equal(t, 25, c.Overlap())
}

func TestSplit_EmptyContent(t *testing.T) {
	c := New()
	assert.Nil(t, c.Split(testDoc("")))
}

func TestSplit_SingleChunk(t *testing.T) {
	c := New(WithWindow(100), WithOverlap(20))
	chunks := c.Split(testDoc("short document"))

	require.Len(t, chunks, 1)
	assert.Equal(t, "short document", chunks[0].Content)
	assert.Equal(t, 0, chunks[0].Position)
	assert.Equal(t, "doc-test", chunks[0].DocumentID)
}

func TestSplit_OverlappingWindows(t *testing.T) {
	content := strings.Repeat("abcdefghij", 30) // 300 chars
	c := New(WithWindow(100), WithOverlap(20))
	chunks := c.Split(testDoc(content))

	require.True(t, len(chunks) >= 3)
	// Consecutive chunks share the overlap region.
	assert.Equal(t, chunks[0].Content[80:], chunks[1].Content[:20])
	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.Position)
	}
}

func TestSplit_Deterministic(t *testing.T) {
	content := strings.Repeat("the quick brown fox ", 100)
	c := New(WithWindow(250), WithOverlap(50))

	first := c.Split(testDoc(content))
	second := c.Split(testDoc(content))

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
	}
}

func TestSplit_WindowChangesIDs(t *testing.T) {
	content := strings.Repeat("the quick brown fox ", 100)
	a := New(WithWindow(250), WithOverlap(50)).Split(testDoc(content))
	b := New(WithWindow(300), WithOverlap(50)).Split(testDoc(content))

	assert.NotEqual(t, a[0].ID, b[0].ID)
}
