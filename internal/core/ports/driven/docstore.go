package driven

import (
	"context"

	"github.com/kgraglabs/kgrag/internal/core/domain"
)

// DocumentStore persists documents and chunks.
// Backed by SQLite for durable storage; an in-memory variant backs tests.
type DocumentStore interface {
	// SaveDocument stores or updates a document.
	SaveDocument(ctx context.Context, doc *domain.Document) error

	// SaveChunks stores chunks for a document, replacing any previous
	// set for the same document.
	SaveChunks(ctx context.Context, chunks []domain.Chunk) error

	// GetDocument retrieves a document by ID.
	GetDocument(ctx context.Context, id string) (*domain.Document, error)

	// GetDocumentByURI retrieves the latest version for a URI.
	GetDocumentByURI(ctx context.Context, uri string) (*domain.Document, error)

	// GetChunks retrieves all chunks for a document in position order.
	GetChunks(ctx context.Context, documentID string) ([]domain.Chunk, error)

	// GetChunk retrieves a specific chunk by ID.
	GetChunk(ctx context.Context, id string) (*domain.Chunk, error)

	// ChunksWithoutEmbedding lists chunks awaiting an embedding
	// backfill pass, up to limit.
	ChunksWithoutEmbedding(ctx context.Context, limit int) ([]domain.Chunk, error)

	// UpdateChunkEmbedding sets the embedding for a chunk.
	UpdateChunkEmbedding(ctx context.Context, chunkID string, embedding []float32) error

	// DeleteDocument removes a document and its chunks.
	DeleteDocument(ctx context.Context, id string) error

	// ChunkCount returns the number of stored chunks.
	ChunkCount(ctx context.Context) (int, error)
}
