package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/kgraglabs/kgrag/internal/core/domain"
	"github.com/kgraglabs/kgrag/internal/core/ports/driven"
)

// Ensure CrossIndex implements the interface.
var _ driven.CrossIndex = (*CrossIndex)(nil)

// CrossIndex is an in-memory implementation of driven.CrossIndex.
// When constructed with a chunk existence check it enforces referential
// integrity at write time, matching the durable backend.
type CrossIndex struct {
	mu          sync.RWMutex
	byChunk     map[string]map[string]bool
	byNode      map[string]map[string]bool
	chunkExists func(ctx context.Context, chunkID string) bool
}

// NewCrossIndex creates a new in-memory cross-index without integrity
// checking.
func NewCrossIndex() *CrossIndex {
	return &CrossIndex{
		byChunk: make(map[string]map[string]bool),
		byNode:  make(map[string]map[string]bool),
	}
}

// NewCheckedCrossIndex creates a cross-index that rejects entries whose
// chunk is missing from the document store.
func NewCheckedCrossIndex(docStore driven.DocumentStore) *CrossIndex {
	x := NewCrossIndex()
	x.chunkExists = func(ctx context.Context, chunkID string) bool {
		_, err := docStore.GetChunk(ctx, chunkID)
		return err == nil
	}
	return x
}

// Record stores the (chunk, node) pair. Idempotent.
func (x *CrossIndex) Record(ctx context.Context, chunkID, nodeID string) error {
	if chunkID == "" || nodeID == "" {
		return fmt.Errorf("%w: empty cross-index key", domain.ErrInvalidInput)
	}
	if x.chunkExists != nil && !x.chunkExists(ctx, chunkID) {
		return fmt.Errorf("%w: chunk %s does not exist", domain.ErrConsistency, chunkID)
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if x.byChunk[chunkID] == nil {
		x.byChunk[chunkID] = make(map[string]bool)
	}
	if x.byNode[nodeID] == nil {
		x.byNode[nodeID] = make(map[string]bool)
	}
	x.byChunk[chunkID][nodeID] = true
	x.byNode[nodeID][chunkID] = true
	return nil
}

// ChunksFor returns the chunk IDs supporting a node or edge.
func (x *CrossIndex) ChunksFor(_ context.Context, nodeID string) ([]string, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return sortedKeys(x.byNode[nodeID]), nil
}

// EntitiesFor returns the node/edge IDs a chunk mentions.
func (x *CrossIndex) EntitiesFor(_ context.Context, chunkID string) ([]string, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return sortedKeys(x.byChunk[chunkID]), nil
}

// DeleteChunk removes every entry referencing the chunk.
func (x *CrossIndex) DeleteChunk(_ context.Context, chunkID string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	for nodeID := range x.byChunk[chunkID] {
		delete(x.byNode[nodeID], chunkID)
		if len(x.byNode[nodeID]) == 0 {
			delete(x.byNode, nodeID)
		}
	}
	delete(x.byChunk, chunkID)
	return nil
}

// Count returns the total number of entries.
func (x *CrossIndex) Count(_ context.Context) (int, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	count := 0
	for _, nodes := range x.byChunk {
		count += len(nodes)
	}
	return count, nil
}

func sortedKeys(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
