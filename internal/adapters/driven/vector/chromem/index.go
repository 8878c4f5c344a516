// Package chromem implements the vector index on chromem-go, an
// embedded pure-Go vector database. It supports both in-memory and
// persistent operation from the same adapter.
package chromem

import (
	"context"
	"fmt"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/kgraglabs/kgrag/internal/core/domain"
	"github.com/kgraglabs/kgrag/internal/core/ports/driven"
)

// Ensure Index implements the interface.
var _ driven.VectorIndex = (*Index)(nil)

const collectionName = "chunks"

// Index is a chromem-go backed vector index.
type Index struct {
	db  *chromem.DB
	col *chromem.Collection

	mu   sync.RWMutex
	dims int
}

// NewIndex creates an in-memory index.
func NewIndex() (*Index, error) {
	return newIndex(chromem.NewDB())
}

// NewPersistentIndex creates an index persisted under the given path.
func NewPersistentIndex(path string) (*Index, error) {
	db, err := chromem.NewPersistentDB(path, false)
	if err != nil {
		return nil, fmt.Errorf("opening vector database: %w", err)
	}
	return newIndex(db)
}

func newIndex(db *chromem.DB) (*Index, error) {
	// The embedding func is never called: callers always provide
	// embeddings explicitly.
	col, err := db.GetOrCreateCollection(collectionName, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("creating collection: %w", err)
	}

	return &Index{db: db, col: col}, nil
}

// Add inserts or replaces a vector. The first vector fixes the index
// dimension; later vectors must match it.
func (idx *Index) Add(ctx context.Context, id string, embedding []float32, metadata map[string]string) error {
	if id == "" {
		return fmt.Errorf("vector id: %w", domain.ErrInvalidInput)
	}
	if len(embedding) == 0 {
		return fmt.Errorf("empty embedding for %s: %w", id, domain.ErrInvalidInput)
	}

	idx.mu.Lock()
	if idx.dims == 0 {
		idx.dims = len(embedding)
	} else if len(embedding) != idx.dims {
		idx.mu.Unlock()
		return fmt.Errorf("vector %s has %d dimensions, index has %d: %w",
			id, len(embedding), idx.dims, domain.ErrDimensionMismatch)
	}
	idx.mu.Unlock()

	doc := chromem.Document{
		ID:        id,
		Content:   id,
		Embedding: embedding,
		Metadata:  metadata,
	}
	if err := idx.col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("adding vector %s: %w", id, err)
	}
	return nil
}

// Delete removes a vector from the index. Deleting an unknown ID is a
// no-op.
func (idx *Index) Delete(ctx context.Context, id string) error {
	if err := idx.col.Delete(ctx, nil, nil, id); err != nil {
		return fmt.Errorf("deleting vector %s: %w", id, err)
	}
	return nil
}

// Search finds the k nearest neighbours by cosine similarity,
// optionally filtered by metadata equality.
func (idx *Index) Search(
	ctx context.Context, query []float32, k int, filter map[string]string,
) ([]driven.VectorHit, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive: %w", domain.ErrInvalidInput)
	}

	idx.mu.RLock()
	dims := idx.dims
	idx.mu.RUnlock()
	if dims > 0 && len(query) != dims {
		return nil, fmt.Errorf("query has %d dimensions, index has %d: %w",
			len(query), dims, domain.ErrDimensionMismatch)
	}

	// chromem rejects nResults above the collection size.
	count := idx.col.Count()
	if count == 0 {
		return nil, nil
	}
	if k > count {
		k = count
	}

	results, err := idx.col.QueryEmbedding(ctx, query, k, filter, nil)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}

	hits := make([]driven.VectorHit, 0, len(results))
	for _, r := range results {
		hits = append(hits, driven.VectorHit{
			ID:         r.ID,
			Similarity: float64(r.Similarity),
		})
	}
	return hits, nil
}

// Dimensions reports the fixed vector size, zero while the index is
// empty.
func (idx *Index) Dimensions() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.dims
}

// Close releases resources. chromem keeps its working set in memory,
// so there is nothing to flush.
func (idx *Index) Close() error {
	return nil
}
