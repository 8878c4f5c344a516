package driving

import (
	"context"

	"github.com/kgraglabs/kgrag/internal/core/domain"
)

// QueryService answers natural-language prompts from fused graph and
// vector evidence.
type QueryService interface {
	// Query runs the full pipeline: intent resolution, entity linking,
	// concurrent subgraph and vector retrieval, rank fusion, context
	// assembly and constrained generation.
	//
	// Callers always receive either a grounded answer (possibly marked
	// partial) or an explicit error with a machine-readable class.
	Query(ctx context.Context, prompt string, opts domain.QueryOptions) (*domain.Answer, error)
}
