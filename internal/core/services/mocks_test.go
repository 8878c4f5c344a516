package services

import (
	"context"
	"errors"
	"strings"

	"github.com/kgraglabs/kgrag/internal/core/domain"
	"github.com/kgraglabs/kgrag/internal/core/ports/driven"
)

// mockEmbedder returns deterministic vectors derived from the text so
// tests can reason about similarity without a real model.
type mockEmbedder struct {
	dims    int
	vectors map[string][]float32
	failOn  map[string]bool
	calls   int
}

func newMockEmbedder() *mockEmbedder {
	return &mockEmbedder{
		dims:    3,
		vectors: make(map[string][]float32),
		failOn:  make(map[string]bool),
	}
}

func (m *mockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	m.calls++
	if m.failOn[text] {
		return nil, errors.New("embedding backend down")
	}
	if vec, ok := m.vectors[text]; ok {
		return vec, nil
	}

	// Derived but stable: byte sums over three strides.
	vec := make([]float32, m.dims)
	for i, b := range []byte(text) {
		vec[i%m.dims] += float32(b) / 255
	}
	return vec, nil
}

func (m *mockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := m.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (m *mockEmbedder) Dimensions() int              { return m.dims }
func (m *mockEmbedder) ModelName() string            { return "mock-embed" }
func (m *mockEmbedder) Ping(_ context.Context) error { return nil }
func (m *mockEmbedder) Close() error                 { return nil }

var _ driven.EmbeddingService = (*mockEmbedder)(nil)

// mockExtractor emits configured mentions for any chunk whose content
// contains the surface form.
type mockExtractor struct {
	entities  []domain.EntityMention
	relations []domain.RelationMention
}

func (m *mockExtractor) Extract(_ context.Context, chunk domain.Chunk) (*domain.Extraction, error) {
	lower := strings.ToLower(chunk.Content)
	ex := &domain.Extraction{ChunkID: chunk.ID}

	present := make(map[string]bool)
	for _, mention := range m.entities {
		if strings.Contains(lower, strings.ToLower(mention.Surface)) {
			ex.Entities = append(ex.Entities, mention)
			present[domain.NormaliseAlias(mention.Surface)] = true
		}
	}
	for _, rel := range m.relations {
		if present[domain.NormaliseAlias(rel.Subject)] && present[domain.NormaliseAlias(rel.Object)] {
			ex.Relations = append(ex.Relations, rel)
		}
	}
	return ex, nil
}

func (m *mockExtractor) Name() string { return "mock-extractor" }

var _ driven.Extractor = (*mockExtractor)(nil)

// mockLLM echoes a canned response and records the prompt it saw.
type mockLLM struct {
	response   string
	lastPrompt string
	lastSystem string
	err        error
}

func (m *mockLLM) Generate(_ context.Context, prompt string, opts driven.GenerateOptions) (string, error) {
	m.lastPrompt = prompt
	m.lastSystem = opts.System
	if m.err != nil {
		return "", m.err
	}
	return m.response, nil
}

func (m *mockLLM) Chat(_ context.Context, messages []driven.ChatMessage, _ driven.GenerateOptions) (string, error) {
	if len(messages) > 0 {
		m.lastPrompt = messages[len(messages)-1].Content
	}
	if m.err != nil {
		return "", m.err
	}
	return m.response, nil
}

func (m *mockLLM) ModelName() string            { return "mock-llm" }
func (m *mockLLM) Ping(_ context.Context) error { return nil }
func (m *mockLLM) Close() error                 { return nil }

var _ driven.LLMService = (*mockLLM)(nil)

// downGraph fails every read, simulating an unreachable graph backend.
type downGraph struct{}

func (downGraph) UpsertEntity(_ context.Context, _ domain.Entity) (*domain.Entity, error) {
	return nil, domain.ErrGraphUnavailable
}

func (downGraph) UpsertRelation(_ context.Context, _ domain.Relation) (*domain.Relation, error) {
	return nil, domain.ErrGraphUnavailable
}

func (downGraph) GetEntity(_ context.Context, _ string) (*domain.Entity, error) {
	return nil, domain.ErrGraphUnavailable
}

func (downGraph) FindByAlias(_ context.Context, _ string) ([]domain.Entity, error) {
	return nil, domain.ErrGraphUnavailable
}

func (downGraph) Neighborhood(_ context.Context, _ []string, _, _ int) (*driven.Subgraph, error) {
	return nil, domain.ErrGraphUnavailable
}

func (downGraph) RelationsBetween(_ context.Context, _ []string) ([]domain.Relation, error) {
	return nil, domain.ErrGraphUnavailable
}

func (downGraph) EntityCount(_ context.Context) (int, error) {
	return 0, domain.ErrGraphUnavailable
}

func (downGraph) RelationCount(_ context.Context) (int, error) {
	return 0, domain.ErrGraphUnavailable
}

func (downGraph) Close() error { return nil }

var _ driven.GraphStore = downGraph{}
