package driven

import "context"

// CrossIndex is the bidirectional mapping between text chunks and graph
// elements. Every entity or relation extracted from a chunk has at least
// one entry pointing back to that chunk, so graph facts stay auditable.
//
// Record is idempotent and enforces referential integrity at write time:
// an entry referencing a missing chunk or node is rejected rather than
// left dangling for a later read to trip over.
type CrossIndex interface {
	// Record stores the (chunk, node-or-edge) pair. Recording the same
	// pair twice has no additional effect.
	Record(ctx context.Context, chunkID, nodeID string) error

	// ChunksFor returns the chunk IDs supporting a node or edge.
	ChunksFor(ctx context.Context, nodeID string) ([]string, error)

	// EntitiesFor returns the node/edge IDs a chunk mentions.
	EntitiesFor(ctx context.Context, chunkID string) ([]string, error)

	// DeleteChunk removes every entry referencing the chunk. Used when
	// a document is deleted so no dangling provenance survives.
	DeleteChunk(ctx context.Context, chunkID string) error

	// Count returns the total number of entries.
	Count(ctx context.Context) (int, error)
}
