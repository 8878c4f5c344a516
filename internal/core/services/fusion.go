package services

import (
	"sort"

	"github.com/kgraglabs/kgrag/internal/core/domain"
)

// rrfConstant dampens the contribution of top ranks so a single list
// cannot dominate the fusion. 60 is the customary value.
const rrfConstant = 60

// rankedItem is one entry of a retrieval list before fusion.
type rankedItem struct {
	kind       domain.EvidenceKind
	ref        string
	text       string
	rawScore   float64
	provenance []string
}

// reciprocalRankFusion merges the graph and vector retrieval lists into
// one ranked evidence list. Each item's fused score is the sum over the
// lists it appears in of 1/(rank+constant); items absent from a list
// contribute nothing from it. Evidence confirmed by both paths therefore
// outranks single-path evidence at the same individual rank. Ties break
// by higher raw score, then by ref for determinism.
func reciprocalRankFusion(lists ...[]rankedItem) []domain.Evidence {
	fused := make(map[string]*domain.Evidence)

	for _, list := range lists {
		for rank, item := range list {
			rrf := 1.0 / float64(rrfConstant+rank+1)

			ev, ok := fused[item.ref]
			if !ok {
				ev = &domain.Evidence{
					Kind:       item.kind,
					Ref:        item.ref,
					Text:       item.text,
					RawScore:   item.rawScore,
					Provenance: item.provenance,
				}
				fused[item.ref] = ev
			}
			ev.Score += rrf
			ev.Sources++
			if item.rawScore > ev.RawScore {
				ev.RawScore = item.rawScore
			}
		}
	}

	results := make([]domain.Evidence, 0, len(fused))
	for _, ev := range fused {
		results = append(results, *ev)
	}

	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.RawScore != b.RawScore {
			return a.RawScore > b.RawScore
		}
		return a.Ref < b.Ref
	})

	return results
}
