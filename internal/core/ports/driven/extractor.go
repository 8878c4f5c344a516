package driven

import (
	"context"

	"github.com/kgraglabs/kgrag/internal/core/domain"
)

// Extractor identifies entity and relation mentions in a chunk, typed
// against the fixed ontology. Extractions below the configured confidence
// threshold are dropped by the pipeline, not surfaced as errors.
//
// Implementations: a deterministic rule-based extractor with a seeded
// gazetteer, and an LLM-backed extractor emitting structured triples.
type Extractor interface {
	// Extract returns the mentions found in the chunk.
	Extract(ctx context.Context, chunk domain.Chunk) (*domain.Extraction, error)

	// Name identifies the extractor in provenance records.
	Name() string
}
