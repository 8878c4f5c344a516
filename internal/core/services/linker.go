package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/kgraglabs/kgrag/internal/core/domain"
	"github.com/kgraglabs/kgrag/internal/core/ports/driven"
	"github.com/kgraglabs/kgrag/internal/logger"
)

// Linker maps entity mentions to canonical URIs.
//
// Resolution rule: an exact case-insensitive alias match wins. When one
// surface form matches several existing entities, the link goes to the
// candidate with the highest co-occurrence against the other entities
// already linked in the same chunk; ties break by earliest-created URI,
// then lexicographically, so resolution is reproducible.
type Linker struct {
	graph driven.GraphStore
	xref  driven.CrossIndex
}

// NewLinker creates a linker over the graph store. The cross-index feeds
// the co-occurrence score.
func NewLinker(graph driven.GraphStore, xref driven.CrossIndex) *Linker {
	return &Linker{graph: graph, xref: xref}
}

// Resolve links a mention against existing entities. When mint is true
// (ingestion), an unresolvable mention creates a new URI; when false
// (query time), it returns domain.ErrNotFound and the caller excludes the
// mention from graph retrieval.
//
// chunkNeighbours are the URIs already linked from the same chunk, used
// by the ambiguity tie-break.
func (l *Linker) Resolve(
	ctx context.Context,
	mention domain.EntityMention,
	chunkNeighbours []string,
	mint bool,
) (string, error) {
	candidates, err := l.graph.FindByAlias(ctx, mention.Surface)
	if err != nil {
		return "", fmt.Errorf("find by alias: %w", err)
	}

	switch len(candidates) {
	case 0:
		if !mint {
			return "", domain.ErrNotFound
		}
		uri := MintURI(mention.Type)
		logger.Debug("Linker: minting %s for %q", uri, mention.Surface)
		return uri, nil

	case 1:
		return candidates[0].URI, nil

	default:
		uri := l.disambiguate(ctx, candidates, chunkNeighbours)
		logger.Debug("Linker: %q ambiguous across %d entities, resolved to %s",
			mention.Surface, len(candidates), uri)
		return uri, nil
	}
}

// disambiguate picks among multiple alias matches by co-occurrence with
// the chunk's other linked entities, falling back to creation order.
func (l *Linker) disambiguate(
	ctx context.Context,
	candidates []domain.Entity,
	chunkNeighbours []string,
) string {
	type scored struct {
		entity domain.Entity
		score  int
	}

	scoredCandidates := make([]scored, 0, len(candidates))
	for _, cand := range candidates {
		scoredCandidates = append(scoredCandidates, scored{
			entity: cand,
			score:  l.cooccurrence(ctx, cand.URI, chunkNeighbours),
		})
	}

	sort.Slice(scoredCandidates, func(i, j int) bool {
		a, b := scoredCandidates[i], scoredCandidates[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if !a.entity.CreatedAt.Equal(b.entity.CreatedAt) {
			return a.entity.CreatedAt.Before(b.entity.CreatedAt)
		}
		return a.entity.URI < b.entity.URI
	})

	return scoredCandidates[0].entity.URI
}

// cooccurrence counts how many chunks mention both the candidate and at
// least one neighbour. Cross-index errors degrade the score to zero
// rather than failing resolution.
func (l *Linker) cooccurrence(ctx context.Context, uri string, neighbours []string) int {
	if l.xref == nil || len(neighbours) == 0 {
		return 0
	}

	chunks, err := l.xref.ChunksFor(ctx, uri)
	if err != nil {
		return 0
	}

	neighbourSet := make(map[string]bool, len(neighbours))
	for _, n := range neighbours {
		neighbourSet[n] = true
	}

	score := 0
	for _, chunkID := range chunks {
		ids, err := l.xref.EntitiesFor(ctx, chunkID)
		if err != nil {
			continue
		}
		for _, id := range ids {
			if neighbourSet[id] {
				score++
				break
			}
		}
	}

	return score
}

// MintURI creates a canonical URI for a newly observed entity.
func MintURI(t domain.EntityType) string {
	return fmt.Sprintf("kgrag://entity/%s/%s", t, uuid.New().String())
}
