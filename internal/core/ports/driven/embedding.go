package driven

import "context"

// EmbeddingService generates vector embeddings from text.
// This is an optional service - when nil, vector retrieval is disabled.
//
// The dimension is fixed per configured backend and must not change
// within a deployment: changing it invalidates every stored vector, so
// the pipelines check Dimensions() against the index at startup instead
// of silently accepting mismatched vectors.
//
// Implementations may include:
//   - OpenAI (text-embedding-3-small, text-embedding-3-large)
//   - Ollama (nomic-embed-text, all-minilm)
//   - Local models via inference servers
type EmbeddingService interface {
	// Embed generates a vector embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts efficiently.
	// Batched and single-item embedding are semantically identical;
	// there is no cross-item leakage.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding vector size (e.g., 384, 768, 1536).
	Dimensions() int

	// ModelName returns the name of the embedding model being used.
	ModelName() string

	// Ping validates the service is reachable by making a lightweight
	// test request. Unavailability surfaces as a retryable error; retry
	// policy belongs to the caller, never this service.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}
