package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kgraglabs/kgrag/internal/core/domain"
	"github.com/kgraglabs/kgrag/internal/core/ports/driven"
)

// Ensure GraphStore implements the interface.
var _ driven.GraphStore = (*GraphStore)(nil)

// GraphStore is an in-memory implementation of driven.GraphStore.
// Merge semantics match the durable backends: upserts go through
// domain.MergeEntity and domain.MergeRelation.
type GraphStore struct {
	mu        sync.RWMutex
	entities  map[string]domain.Entity
	relations map[string]domain.Relation
	now       func() time.Time
}

// NewGraphStore creates a new in-memory graph store.
func NewGraphStore() *GraphStore {
	return &GraphStore{
		entities:  make(map[string]domain.Entity),
		relations: make(map[string]domain.Relation),
		now:       time.Now,
	}
}

// SetClock injects a clock for tests.
func (s *GraphStore) SetClock(now func() time.Time) {
	s.now = now
}

// UpsertEntity merges the entity into the store by URI.
func (s *GraphStore) UpsertEntity(_ context.Context, entity domain.Entity) (*domain.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.entities[entity.URI]
	if !ok {
		if entity.CreatedAt.IsZero() {
			entity.CreatedAt = s.now()
		}
		entity.UpdatedAt = s.now()
		s.entities[entity.URI] = entity
		merged := entity
		return &merged, nil
	}

	merged := domain.MergeEntity(existing, entity, s.now())
	s.entities[entity.URI] = merged
	return &merged, nil
}

// UpsertRelation merges the relation by triple identity.
func (s *GraphStore) UpsertRelation(_ context.Context, rel domain.Relation) (*domain.Relation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.relations[rel.ID]
	if !ok {
		s.relations[rel.ID] = rel
		merged := rel
		return &merged, nil
	}

	merged := domain.MergeRelation(existing, rel)
	s.relations[rel.ID] = merged
	return &merged, nil
}

// GetEntity retrieves an entity by canonical URI.
func (s *GraphStore) GetEntity(_ context.Context, uri string) (*domain.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entity, ok := s.entities[uri]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &entity, nil
}

// FindByAlias returns every entity carrying the surface form.
func (s *GraphStore) FindByAlias(_ context.Context, surface string) ([]domain.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []domain.Entity
	for uri := range s.entities {
		entity := s.entities[uri]
		if entity.HasAlias(surface) {
			matches = append(matches, entity)
		}
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].URI < matches[j].URI })
	return matches, nil
}

// Neighborhood retrieves the bounded k-hop neighbourhood of the seeds.
// Truncation is deterministic: relations ordered by last observation
// then confidence then ID, entities admitted in that relation order.
func (s *GraphStore) Neighborhood(
	_ context.Context, seeds []string, hops, maxNodes int,
) (*driven.Subgraph, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub := &driven.Subgraph{Entities: make(map[string]domain.Entity)}

	frontier := make(map[string]bool)
	for _, seed := range seeds {
		if entity, ok := s.entities[seed]; ok {
			sub.Entities[seed] = entity
			frontier[seed] = true
		}
	}

	seenRel := make(map[string]bool)
	for hop := 0; hop < hops && len(frontier) > 0; hop++ {
		// Relations touching the frontier, in truncation order.
		var candidates []domain.Relation
		for id := range s.relations {
			rel := s.relations[id]
			if seenRel[id] {
				continue
			}
			if frontier[rel.Subject] || frontier[rel.Object] {
				candidates = append(candidates, rel)
			}
		}
		sortRelations(candidates)

		next := make(map[string]bool)
		for _, rel := range candidates {
			for _, uri := range []string{rel.Subject, rel.Object} {
				if _, ok := sub.Entities[uri]; ok {
					continue
				}
				if len(sub.Entities) >= maxNodes {
					sub.Truncated = true
					continue
				}
				if entity, ok := s.entities[uri]; ok {
					sub.Entities[uri] = entity
					next[uri] = true
				}
			}

			// Keep only relations whose both endpoints survived the cap.
			if _, okS := sub.Entities[rel.Subject]; !okS {
				continue
			}
			if _, okO := sub.Entities[rel.Object]; !okO {
				continue
			}
			seenRel[rel.ID] = true
			sub.Relations = append(sub.Relations, rel)
		}

		frontier = next
	}

	return sub, nil
}

// RelationsBetween returns relations connecting any pair of the URIs.
func (s *GraphStore) RelationsBetween(_ context.Context, uris []string) ([]domain.Relation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set := make(map[string]bool, len(uris))
	for _, uri := range uris {
		set[uri] = true
	}

	var out []domain.Relation
	for id := range s.relations {
		rel := s.relations[id]
		if set[rel.Subject] && set[rel.Object] {
			out = append(out, rel)
		}
	}
	sortRelations(out)
	return out, nil
}

// EntityCount returns the number of stored entities.
func (s *GraphStore) EntityCount(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entities), nil
}

// RelationCount returns the number of stored relations.
func (s *GraphStore) RelationCount(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.relations), nil
}

// Close releases resources (no-op for memory store).
func (s *GraphStore) Close() error {
	return nil
}

// sortRelations orders relations for deterministic truncation: most
// recently observed first, then higher confidence, then ID.
func sortRelations(rels []domain.Relation) {
	sort.Slice(rels, func(i, j int) bool {
		a, b := rels[i], rels[j]
		at, bt := a.LastObserved(), b.LastObserved()
		if !at.Equal(bt) {
			return at.After(bt)
		}
		if ac, bc := a.Confidence(), b.Confidence(); ac != bc {
			return ac > bc
		}
		return a.ID < b.ID
	})
}
