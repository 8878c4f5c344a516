package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kgraglabs/kgrag/internal/adapters/driven/storage/memory"
	"github.com/kgraglabs/kgrag/internal/core/domain"
)

func TestLinker_ExactAliasMatch(t *testing.T) {
	graph := memory.NewGraphStore()
	linker := NewLinker(graph, nil)
	ctx := context.Background()

	_, err := graph.UpsertEntity(ctx, domain.Entity{
		URI: "kgrag://entity/organization/acme", Type: domain.EntityOrganization,
		Label: "Acme", Aliases: []string{"acme"}, CreatedAt: time.Now(),
	})
	require.NoError(t, err)

	// Case-insensitive match on the stored alias.
	uri, err := linker.Resolve(ctx, domain.EntityMention{
		Surface: "ACME", Type: domain.EntityOrganization, Confidence: 0.9,
	}, nil, false)
	require.NoError(t, err)
	assert.Equal(t, "kgrag://entity/organization/acme", uri)
}

func TestLinker_UnresolvedMintsOnlyDuringIngestion(t *testing.T) {
	graph := memory.NewGraphStore()
	linker := NewLinker(graph, nil)
	ctx := context.Background()
	mention := domain.EntityMention{Surface: "Nobody", Type: domain.EntityPerson, Confidence: 0.9}

	// Query time: unresolved is excluded, never minted.
	_, err := linker.Resolve(ctx, mention, nil, false)
	require.ErrorIs(t, err, domain.ErrNotFound)

	// Ingestion time: a fresh URI is minted.
	uri, err := linker.Resolve(ctx, mention, nil, true)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(uri, "kgrag://entity/person/"))
}

func TestLinker_AmbiguityResolvedByCooccurrence(t *testing.T) {
	graph := memory.NewGraphStore()
	xref := memory.NewCrossIndex()
	linker := NewLinker(graph, xref)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	// Two entities share the alias "mercury".
	_, err := graph.UpsertEntity(ctx, domain.Entity{
		URI: "kgrag://entity/location/mercury-planet", Type: domain.EntityLocation,
		Label: "Mercury", Aliases: []string{"mercury"}, CreatedAt: base,
	})
	require.NoError(t, err)
	_, err = graph.UpsertEntity(ctx, domain.Entity{
		URI: "kgrag://entity/concept/mercury-element", Type: domain.EntityConcept,
		Label: "Mercury", Aliases: []string{"mercury"}, CreatedAt: base.Add(time.Hour),
	})
	require.NoError(t, err)

	// The element co-occurs with "thermometer" in an earlier chunk.
	require.NoError(t, xref.Record(ctx, "chunk-chem", "kgrag://entity/concept/mercury-element"))
	require.NoError(t, xref.Record(ctx, "chunk-chem", "kgrag://entity/product/thermometer"))

	uri, err := linker.Resolve(ctx, domain.EntityMention{
		Surface: "Mercury", Type: domain.EntityConcept, Confidence: 0.9,
	}, []string{"kgrag://entity/product/thermometer"}, false)
	require.NoError(t, err)
	assert.Equal(t, "kgrag://entity/concept/mercury-element", uri)
}

func TestLinker_AmbiguityTieBreaksByEarliestCreated(t *testing.T) {
	graph := memory.NewGraphStore()
	linker := NewLinker(graph, memory.NewCrossIndex())
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := graph.UpsertEntity(ctx, domain.Entity{
		URI: "kgrag://entity/person/b-newer", Type: domain.EntityPerson,
		Label: "Jo", Aliases: []string{"jo"}, CreatedAt: base.Add(time.Hour),
	})
	require.NoError(t, err)
	_, err = graph.UpsertEntity(ctx, domain.Entity{
		URI: "kgrag://entity/person/a-older", Type: domain.EntityPerson,
		Label: "Jo", Aliases: []string{"jo"}, CreatedAt: base,
	})
	require.NoError(t, err)

	// No co-occurrence signal: the earliest-created entity wins, and
	// repeat calls give the same result.
	for i := 0; i < 3; i++ {
		uri, err := linker.Resolve(ctx, domain.EntityMention{
			Surface: "Jo", Type: domain.EntityPerson, Confidence: 0.9,
		}, nil, false)
		require.NoError(t, err)
		assert.Equal(t, "kgrag://entity/person/a-older", uri)
	}
}

func TestMintURI_EmbedsType(t *testing.T) {
	uri := MintURI(domain.EntityEvent)
	assert.True(t, strings.HasPrefix(uri, "kgrag://entity/event/"))
	assert.NotEqual(t, uri, MintURI(domain.EntityEvent))
}
