// Package llm provides an extractor backed by a language model. The
// model is prompted for structured JSON; anything it returns outside
// the ontology or below threshold is dropped downstream.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kgraglabs/kgrag/internal/core/domain"
	"github.com/kgraglabs/kgrag/internal/core/ports/driven"
)

// Ensure Extractor implements the interface.
var _ driven.Extractor = (*Extractor)(nil)

const extractionSystem = `You extract entities and relations from text.
Entity types: person, organization, location, product, event, concept.
Respond with JSON only, no prose, in this shape:
{"entities":[{"surface":"...","type":"...","confidence":0.0}],
 "relations":[{"subject":"...","predicate":"...","object":"...","confidence":0.0}]}
Subjects and objects of relations must repeat an entity surface form.
Confidence is your own estimate in [0,1].`

// Extractor asks an LLM for structured triples.
type Extractor struct {
	llm       driven.LLMService
	maxTokens int
}

// NewExtractor creates an LLM-backed extractor.
func NewExtractor(llm driven.LLMService) *Extractor {
	return &Extractor{llm: llm, maxTokens: 1024}
}

// Name identifies the extractor in provenance records.
func (e *Extractor) Name() string {
	return "llm"
}

// extractionPayload mirrors the JSON shape the model is asked for.
type extractionPayload struct {
	Entities []struct {
		Surface    string  `json:"surface"`
		Type       string  `json:"type"`
		Confidence float64 `json:"confidence"`
	} `json:"entities"`
	Relations []struct {
		Subject    string  `json:"subject"`
		Predicate  string  `json:"predicate"`
		Object     string  `json:"object"`
		Confidence float64 `json:"confidence"`
	} `json:"relations"`
}

// Extract returns the mentions found in the chunk.
func (e *Extractor) Extract(ctx context.Context, chunk domain.Chunk) (*domain.Extraction, error) {
	raw, err := e.llm.Generate(ctx, chunk.Content, driven.GenerateOptions{
		MaxTokens:   e.maxTokens,
		Temperature: 0,
		System:      extractionSystem,
	})
	if err != nil {
		return nil, fmt.Errorf("extraction generation: %w", err)
	}

	var payload extractionPayload
	if err := json.Unmarshal([]byte(stripFences(raw)), &payload); err != nil {
		return nil, fmt.Errorf("parsing extraction output: %w: %v", domain.ErrMalformedInput, err)
	}

	out := &domain.Extraction{ChunkID: chunk.ID}
	for _, ent := range payload.Entities {
		if ent.Surface == "" {
			continue
		}
		out.Entities = append(out.Entities, domain.EntityMention{
			Surface:    ent.Surface,
			Type:       domain.EntityType(ent.Type),
			Confidence: clamp(ent.Confidence),
		})
	}
	for _, rel := range payload.Relations {
		if rel.Subject == "" || rel.Predicate == "" || rel.Object == "" {
			continue
		}
		out.Relations = append(out.Relations, domain.RelationMention{
			Subject:    rel.Subject,
			Predicate:  rel.Predicate,
			Object:     rel.Object,
			Confidence: clamp(rel.Confidence),
		})
	}
	return out, nil
}

// stripFences removes a markdown code fence some models wrap JSON in.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
