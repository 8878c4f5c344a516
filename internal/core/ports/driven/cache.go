package driven

import "github.com/kgraglabs/kgrag/internal/core/domain"

// EvidenceCache is a read-through cache for chunk hydration on the query
// path. Optional; a nil cache just means every hit goes to the document
// store.
type EvidenceCache interface {
	// GetChunk returns a cached chunk, or false.
	GetChunk(id string) (*domain.Chunk, bool)

	// PutChunk caches a chunk. Admission is best-effort; the cache may
	// decline.
	PutChunk(chunk *domain.Chunk)

	// Close releases resources.
	Close()
}
