// Package chunker splits normalised document text into overlapping,
// context-preserving windows with content-derived IDs.
package chunker

import (
	"github.com/kgraglabs/kgrag/internal/core/domain"
)

// DefaultWindow is the default number of characters per chunk.
const DefaultWindow = 1000

// DefaultOverlap is the default number of overlapping characters.
const DefaultOverlap = 200

// Chunker produces deterministic chunks: the same (document, window,
// overlap) always yields identical chunk IDs, which is what makes
// re-ingestion idempotent.
type Chunker struct {
	window  int
	overlap int
}

// Option configures the chunker.
type Option func(*Chunker)

// WithWindow sets the window size in characters.
func WithWindow(size int) Option {
	return func(c *Chunker) {
		if size > 0 {
			c.window = size
		}
	}
}

// WithOverlap sets the overlap between chunks in characters.
func WithOverlap(overlap int) Option {
	return func(c *Chunker) {
		if overlap >= 0 {
			c.overlap = overlap
		}
	}
}

// New creates a chunker with the given options.
func New(opts ...Option) *Chunker {
	c := &Chunker{
		window:  DefaultWindow,
		overlap: DefaultOverlap,
	}

	for _, opt := range opts {
		opt(c)
	}

	// Overlap must leave forward progress
	if c.overlap >= c.window {
		c.overlap = c.window / 4
	}

	return c
}

// Window returns the configured window size.
func (c *Chunker) Window() int { return c.window }

// Overlap returns the configured overlap.
func (c *Chunker) Overlap() int { return c.overlap }

// Split chunks the document content. Empty content produces no chunks.
func (c *Chunker) Split(doc *domain.Document) []domain.Chunk {
	if doc.Content == "" {
		return nil
	}

	content := doc.Content
	contentLen := len(content)

	estimated := (contentLen / (c.window - c.overlap)) + 1
	chunks := make([]domain.Chunk, 0, estimated)

	position := 0
	start := 0

	for start < contentLen {
		end := start + c.window
		if end > contentLen {
			end = contentLen
		}

		text := content[start:end]

		chunks = append(chunks, domain.Chunk{
			ID:         domain.ChunkID(doc.ID, position, c.window, c.overlap, text),
			DocumentID: doc.ID,
			Position:   position,
			Content:    text,
		})
		position++

		start += c.window - c.overlap
	}

	return chunks
}
