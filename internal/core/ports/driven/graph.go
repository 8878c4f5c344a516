package driven

import (
	"context"

	"github.com/kgraglabs/kgrag/internal/core/domain"
)

// GraphStore persists entities and relations keyed by canonical URI.
// The ingestion pipeline is the sole writer; the query pipeline reads.
//
// Upserts merge rather than replace: entity aliases accumulate, relation
// provenance is additive, and conflicting attributes resolve in favour of
// the higher-confidence, more recent observation.
type GraphStore interface {
	// UpsertEntity merges the entity into the store by URI and returns
	// the merged record.
	UpsertEntity(ctx context.Context, entity domain.Entity) (*domain.Entity, error)

	// UpsertRelation merges the relation by triple identity, appending
	// provenance records not already present.
	UpsertRelation(ctx context.Context, rel domain.Relation) (*domain.Relation, error)

	// GetEntity retrieves an entity by canonical URI.
	GetEntity(ctx context.Context, uri string) (*domain.Entity, error)

	// FindByAlias returns every entity carrying the surface form,
	// matched case-insensitively. Multiple results mean the alias is
	// ambiguous and the linker applies its tie-break rule.
	FindByAlias(ctx context.Context, surface string) ([]domain.Entity, error)

	// Neighborhood retrieves the bounded k-hop neighbourhood of the
	// seed URIs. Implementations must truncate deterministically by
	// relation recency then confidence when the cap is exceeded, never
	// by arbitrary order.
	Neighborhood(ctx context.Context, seeds []string, hops, maxNodes int) (*Subgraph, error)

	// RelationsBetween returns relations connecting any pair of the
	// given URIs, for relational intents.
	RelationsBetween(ctx context.Context, uris []string) ([]domain.Relation, error)

	// EntityCount and RelationCount report store sizes, used by
	// idempotence checks and status reporting.
	EntityCount(ctx context.Context) (int, error)
	RelationCount(ctx context.Context) (int, error)

	// Close releases resources.
	Close() error
}

// Subgraph is the result of a neighbourhood retrieval.
type Subgraph struct {
	// Entities indexed by URI.
	Entities map[string]domain.Entity

	// Relations in deterministic truncation order (recency, confidence).
	Relations []domain.Relation

	// Truncated reports whether the cap cut the traversal short.
	Truncated bool
}
