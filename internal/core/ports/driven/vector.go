package driven

import "context"

// VectorIndex provides semantic similarity search operations.
type VectorIndex interface {
	// Add inserts or replaces a vector for the given ID.
	Add(ctx context.Context, id string, embedding []float32, metadata map[string]string) error

	// Delete removes a vector from the index.
	Delete(ctx context.Context, id string) error

	// Search finds the k nearest neighbours to the query vector,
	// optionally filtered by metadata equality.
	Search(ctx context.Context, query []float32, k int, filter map[string]string) ([]VectorHit, error)

	// Dimensions returns the configured vector size, zero when the
	// index is empty and unconstrained.
	Dimensions() int

	// Close releases resources.
	Close() error
}

// VectorHit represents a similarity search result.
type VectorHit struct {
	// ID is the matched chunk or node ID.
	ID string

	// Similarity is the cosine similarity score (0-1).
	Similarity float64
}
