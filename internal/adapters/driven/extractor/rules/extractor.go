// Package rules provides a deterministic, rule-based extractor. It
// recognises gazetteer entries and capitalised name sequences, and
// derives relations from predicate phrases appearing between two
// recognised mentions in the same sentence.
//
// The same chunk always yields the same extraction, which keeps
// re-ingestion idempotent without an LLM in the loop.
package rules

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/kgraglabs/kgrag/internal/core/domain"
	"github.com/kgraglabs/kgrag/internal/core/ports/driven"
)

// Ensure Extractor implements the interface.
var _ driven.Extractor = (*Extractor)(nil)

// Confidence levels by recognition strength. Gazetteer entries are
// curated, suffix matches are strong hints, bare capitalised sequences
// are speculative.
const (
	gazetteerConfidence = 0.9
	suffixConfidence    = 0.75
	sequenceConfidence  = 0.5
	relationConfidence  = 0.7
)

var (
	sentenceSplit = regexp.MustCompile(`[.!?\n]+`)

	// Two or more consecutive capitalised words.
	nameSequence = regexp.MustCompile(`\b[A-Z][a-zA-Z]+(?: [A-Z][a-zA-Z]+)+\b`)

	predicatePattern = regexp.MustCompile(
		`(?i)\b(works? (?:at|for)|founded|located in|acquired|part of|` +
			`created|leads|owns|developed|discovered|invented|based in|` +
			`member of|collaborates? with)\b`)
)

// Organisation and location suffixes for classifying unseen names.
var (
	orgSuffixes = []string{
		"inc", "corp", "corporation", "ltd", "llc", "labs",
		"university", "institute", "foundation", "group", "company",
	}
	locSuffixes = []string{"city", "island", "valley", "river", "mountain"}
)

// Extractor recognises mentions by gazetteer lookup and rules.
type Extractor struct {
	gazetteer map[string]domain.EntityType
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithGazetteer seeds known surface forms with their types. Keys are
// normalised on registration, so lookups are case-insensitive.
func WithGazetteer(entries map[string]domain.EntityType) Option {
	return func(e *Extractor) {
		for surface, t := range entries {
			e.gazetteer[domain.NormaliseAlias(surface)] = t
		}
	}
}

// NewExtractor creates a rule-based extractor.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{gazetteer: make(map[string]domain.EntityType)}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name identifies the extractor in provenance records.
func (e *Extractor) Name() string {
	return "rules"
}

// Extract returns the mentions found in the chunk.
func (e *Extractor) Extract(_ context.Context, chunk domain.Chunk) (*domain.Extraction, error) {
	out := &domain.Extraction{ChunkID: chunk.ID}
	seen := make(map[string]bool)

	for _, sentence := range sentenceSplit.Split(chunk.Content, -1) {
		mentions := e.sentenceMentions(sentence)

		for _, m := range mentions {
			key := domain.NormaliseAlias(m.Surface)
			if seen[key] {
				continue
			}
			seen[key] = true
			out.Entities = append(out.Entities, m)
		}

		out.Relations = append(out.Relations, relationsIn(sentence, mentions)...)
	}

	return out, nil
}

// sentenceMentions returns the mentions of one sentence in order of
// appearance.
func (e *Extractor) sentenceMentions(sentence string) []domain.EntityMention {
	type span struct {
		start   int
		mention domain.EntityMention
	}
	var spans []span
	covered := make([]bool, len(sentence))

	mark := func(start, end int) {
		for i := start; i < end && i < len(covered); i++ {
			covered[i] = true
		}
	}
	overlaps := func(start, end int) bool {
		for i := start; i < end && i < len(covered); i++ {
			if covered[i] {
				return true
			}
		}
		return false
	}

	// Gazetteer entries take priority over pattern matches. Longest
	// surfaces first so "marie curie" wins over "curie".
	lower := strings.ToLower(sentence)
	for _, surface := range e.sortedSurfaces() {
		entityType := e.gazetteer[surface]
		idx := strings.Index(lower, surface)
		if idx < 0 || overlaps(idx, idx+len(surface)) {
			continue
		}
		mark(idx, idx+len(surface))
		spans = append(spans, span{start: idx, mention: domain.EntityMention{
			Surface:    sentence[idx : idx+len(surface)],
			Type:       entityType,
			Confidence: gazetteerConfidence,
		}})
	}

	for _, loc := range nameSequence.FindAllStringIndex(sentence, -1) {
		if overlaps(loc[0], loc[1]) {
			continue
		}
		mark(loc[0], loc[1])
		surface := sentence[loc[0]:loc[1]]
		entityType, confidence := classify(surface)
		spans = append(spans, span{start: loc[0], mention: domain.EntityMention{
			Surface:    surface,
			Type:       entityType,
			Confidence: confidence,
		}})
	}

	// Restore order of appearance; the gazetteer pass iterates a map.
	for i := 1; i < len(spans); i++ {
		for j := i; j > 0 && spans[j].start < spans[j-1].start; j-- {
			spans[j], spans[j-1] = spans[j-1], spans[j]
		}
	}

	mentions := make([]domain.EntityMention, len(spans))
	for i, s := range spans {
		mentions[i] = s.mention
	}
	return mentions
}

// sortedSurfaces returns gazetteer keys longest first, ties broken
// lexicographically, so matching order never depends on map iteration.
func (e *Extractor) sortedSurfaces() []string {
	surfaces := make([]string, 0, len(e.gazetteer))
	for surface := range e.gazetteer {
		surfaces = append(surfaces, surface)
	}
	sort.Slice(surfaces, func(i, j int) bool {
		if len(surfaces[i]) != len(surfaces[j]) {
			return len(surfaces[i]) > len(surfaces[j])
		}
		return surfaces[i] < surfaces[j]
	})
	return surfaces
}

// relationsIn derives a relation when a predicate phrase appears
// between two recognised mentions.
func relationsIn(sentence string, mentions []domain.EntityMention) []domain.RelationMention {
	if len(mentions) < 2 {
		return nil
	}

	match := predicatePattern.FindStringIndex(sentence)
	if match == nil {
		return nil
	}
	predicate := strings.ToLower(sentence[match[0]:match[1]])

	// Subject is the last mention before the predicate, object the
	// first one after it.
	var subject, object *domain.EntityMention
	for i := range mentions {
		idx := strings.Index(strings.ToLower(sentence), domain.NormaliseAlias(mentions[i].Surface))
		if idx < 0 {
			continue
		}
		if idx < match[0] {
			subject = &mentions[i]
		} else if idx >= match[1] && object == nil {
			object = &mentions[i]
		}
	}
	if subject == nil || object == nil || subject.Surface == object.Surface {
		return nil
	}

	return []domain.RelationMention{{
		Subject:    subject.Surface,
		Predicate:  predicate,
		Object:     object.Surface,
		Confidence: relationConfidence,
	}}
}

// classify guesses the type of an unseen name from its suffix.
func classify(surface string) (domain.EntityType, float64) {
	words := strings.Fields(strings.ToLower(surface))
	last := words[len(words)-1]

	for _, suffix := range orgSuffixes {
		if last == suffix {
			return domain.EntityOrganization, suffixConfidence
		}
	}
	for _, suffix := range locSuffixes {
		if last == suffix {
			return domain.EntityLocation, suffixConfidence
		}
	}
	return domain.EntityConcept, sequenceConfidence
}
