// Package memory provides a brute-force in-memory vector index used in
// tests and small corpora.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/kgraglabs/kgrag/internal/core/domain"
	"github.com/kgraglabs/kgrag/internal/core/ports/driven"
)

// Ensure Index implements the interface.
var _ driven.VectorIndex = (*Index)(nil)

type entry struct {
	embedding []float32
	metadata  map[string]string
}

// Index is an exact cosine-similarity index over an in-memory map.
type Index struct {
	mu      sync.RWMutex
	entries map[string]entry
	dims    int
}

// NewIndex creates an empty index. The dimension locks in on the first
// Add; later vectors must match it.
func NewIndex() *Index {
	return &Index{entries: make(map[string]entry)}
}

// Add inserts or replaces a vector for the given ID.
func (idx *Index) Add(_ context.Context, id string, embedding []float32, metadata map[string]string) error {
	if len(embedding) == 0 {
		return fmt.Errorf("%w: empty embedding", domain.ErrInvalidInput)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.dims == 0 {
		idx.dims = len(embedding)
	} else if len(embedding) != idx.dims {
		return fmt.Errorf("%w: got %d, want %d", domain.ErrDimensionMismatch, len(embedding), idx.dims)
	}

	idx.entries[id] = entry{embedding: embedding, metadata: metadata}
	return nil
}

// Delete removes a vector from the index.
func (idx *Index) Delete(_ context.Context, id string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	delete(idx.entries, id)
	return nil
}

// Search finds the k nearest neighbours by cosine similarity.
func (idx *Index) Search(
	_ context.Context, query []float32, k int, filter map[string]string,
) ([]driven.VectorHit, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.dims > 0 && len(query) != idx.dims {
		return nil, fmt.Errorf("%w: got %d, want %d", domain.ErrDimensionMismatch, len(query), idx.dims)
	}

	hits := make([]driven.VectorHit, 0, len(idx.entries))
	for id, e := range idx.entries {
		if !matches(e.metadata, filter) {
			continue
		}
		hits = append(hits, driven.VectorHit{
			ID:         id,
			Similarity: cosine(query, e.embedding),
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].ID < hits[j].ID
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Dimensions returns the locked-in vector size, zero when empty.
func (idx *Index) Dimensions() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.dims
}

// Close releases resources (no-op for memory index).
func (idx *Index) Close() error {
	return nil
}

func matches(metadata, filter map[string]string) bool {
	for k, v := range filter {
		if metadata[k] != v {
			return false
		}
	}
	return true
}

func cosine(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
