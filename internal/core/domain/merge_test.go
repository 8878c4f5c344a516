package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeEntity_HigherConfidenceWinsType(t *testing.T) {
	now := time.Now()
	existing := Entity{
		URI:        "kgrag://entity/concept/x",
		Type:       EntityConcept,
		Confidence: 0.5,
		Aliases:    []string{"acme"},
	}
	observed := Entity{
		Type:       EntityOrganization,
		Confidence: 0.9,
		Aliases:    []string{"acme corp"},
	}

	merged := MergeEntity(existing, observed, now)

	assert.Equal(t, EntityOrganization, merged.Type)
	assert.InDelta(t, 0.9, merged.Confidence, 1e-9)
	assert.ElementsMatch(t, []string{"acme", "acme corp"}, merged.Aliases)
	assert.Equal(t, now, merged.UpdatedAt)
}

func TestMergeEntity_LowerConfidenceKeepsType(t *testing.T) {
	existing := Entity{Type: EntityOrganization, Confidence: 0.9}
	observed := Entity{Type: EntityPerson, Confidence: 0.3}

	merged := MergeEntity(existing, observed, time.Now())

	assert.Equal(t, EntityOrganization, merged.Type)
	assert.InDelta(t, 0.9, merged.Confidence, 1e-9)
}

func TestMergeRelation_ProvenanceAdditive(t *testing.T) {
	t0 := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	existing := Relation{
		ID: "rel-1",
		Provenance: []Provenance{
			{ChunkID: "chk-1", Extractor: "rules", Confidence: 0.8, ObservedAt: t0},
		},
	}
	observed := Relation{
		Provenance: []Provenance{
			{ChunkID: "chk-1", Extractor: "rules", Confidence: 0.8, ObservedAt: t0},
			{ChunkID: "chk-2", Extractor: "rules", Confidence: 0.7, ObservedAt: t0.Add(time.Hour)},
		},
	}

	merged := MergeRelation(existing, observed)

	require.Len(t, merged.Provenance, 2)
	assert.Equal(t, "chk-2", merged.Provenance[1].ChunkID)

	// Merging again changes nothing: provenance is deduplicated.
	again := MergeRelation(merged, observed)
	assert.Len(t, again.Provenance, 2)
}
