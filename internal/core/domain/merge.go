package domain

import "time"

// MergeEntity applies the conflict-free merge rule for two observations
// of the same URI: the higher-confidence observation wins conflicting
// attributes, equal confidence favours the more recent one, and aliases
// always accumulate. Prior state is never discarded wholesale.
//
// Graph store adapters share this rule so that merge behaviour does not
// depend on which backend holds the graph.
func MergeEntity(existing Entity, observed Entity, now time.Time) Entity {
	merged := existing

	if observed.Type.Valid() && observed.Type != existing.Type {
		if observed.Confidence >= existing.Confidence {
			merged.Type = observed.Type
			merged.Confidence = observed.Confidence
		}
	} else if observed.Confidence > merged.Confidence {
		merged.Confidence = observed.Confidence
	}

	for _, a := range observed.Aliases {
		merged.AddAlias(a)
	}
	if merged.Label == "" {
		merged.Label = observed.Label
	}
	if len(observed.Embedding) > 0 {
		merged.Embedding = observed.Embedding
	}
	merged.UpdatedAt = now

	return merged
}

// MergeRelation merges two observations of the same triple: provenance
// is additive and deduplicated by (chunk, extractor), and validity
// bounds widen to cover both observations.
func MergeRelation(existing Relation, observed Relation) Relation {
	merged := existing

	seen := make(map[string]bool, len(existing.Provenance))
	for _, p := range existing.Provenance {
		seen[p.ChunkID+"|"+p.Extractor] = true
	}
	for _, p := range observed.Provenance {
		if !seen[p.ChunkID+"|"+p.Extractor] {
			merged.Provenance = append(merged.Provenance, p)
			seen[p.ChunkID+"|"+p.Extractor] = true
		}
	}

	if observed.ValidFrom != nil && (merged.ValidFrom == nil || observed.ValidFrom.Before(*merged.ValidFrom)) {
		merged.ValidFrom = observed.ValidFrom
	}
	if observed.ValidTo != nil && (merged.ValidTo == nil || observed.ValidTo.After(*merged.ValidTo)) {
		merged.ValidTo = observed.ValidTo
	}

	return merged
}
