package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kgraglabs/kgrag/internal/core/domain"
	"github.com/kgraglabs/kgrag/internal/core/ports/driven"
)

// stubLLM returns a canned response and records the last call.
type stubLLM struct {
	response   string
	err        error
	lastPrompt string
	lastSystem string
}

func (s *stubLLM) Generate(_ context.Context, prompt string, opts driven.GenerateOptions) (string, error) {
	s.lastPrompt = prompt
	s.lastSystem = opts.System
	return s.response, s.err
}

func (s *stubLLM) Chat(_ context.Context, _ []driven.ChatMessage, _ driven.GenerateOptions) (string, error) {
	return s.response, s.err
}

func (s *stubLLM) ModelName() string { return "stub" }

func (s *stubLLM) Ping(_ context.Context) error { return nil }

func (s *stubLLM) Close() error { return nil }

func TestExtract_ParsesStructuredOutput(t *testing.T) {
	llm := &stubLLM{response: `{
		"entities": [
			{"surface": "Marie Curie", "type": "person", "confidence": 0.95},
			{"surface": "polonium", "type": "concept", "confidence": 0.8}
		],
		"relations": [
			{"subject": "Marie Curie", "predicate": "discovered", "object": "polonium", "confidence": 0.9}
		]
	}`}
	e := NewExtractor(llm)

	out, err := e.Extract(context.Background(), domain.Chunk{ID: "chk-1", Content: "some text"})
	require.NoError(t, err)

	require.Len(t, out.Entities, 2)
	assert.Equal(t, "Marie Curie", out.Entities[0].Surface)
	assert.Equal(t, domain.EntityPerson, out.Entities[0].Type)
	require.Len(t, out.Relations, 1)
	assert.Equal(t, "discovered", out.Relations[0].Predicate)
	assert.Equal(t, "chk-1", out.ChunkID)
	assert.Equal(t, "some text", llm.lastPrompt)
	assert.Contains(t, llm.lastSystem, "JSON only")
}

func TestExtract_StripsCodeFence(t *testing.T) {
	llm := &stubLLM{response: "```json\n{\"entities\":[{\"surface\":\"IBM\",\"type\":\"organization\",\"confidence\":0.9}],\"relations\":[]}\n```"}
	e := NewExtractor(llm)

	out, err := e.Extract(context.Background(), domain.Chunk{ID: "chk-1", Content: "x"})
	require.NoError(t, err)
	require.Len(t, out.Entities, 1)
	assert.Equal(t, "IBM", out.Entities[0].Surface)
}

func TestExtract_MalformedOutput(t *testing.T) {
	llm := &stubLLM{response: "Sure! Here are the entities I found:"}
	e := NewExtractor(llm)

	_, err := e.Extract(context.Background(), domain.Chunk{ID: "chk-1", Content: "x"})
	assert.ErrorIs(t, err, domain.ErrMalformedInput)
}

func TestExtract_GenerationErrorPropagates(t *testing.T) {
	llm := &stubLLM{err: domain.ErrTransient}
	e := NewExtractor(llm)

	_, err := e.Extract(context.Background(), domain.Chunk{ID: "chk-1", Content: "x"})
	assert.ErrorIs(t, err, domain.ErrTransient)
}

func TestExtract_ClampsConfidence(t *testing.T) {
	llm := &stubLLM{response: `{"entities":[{"surface":"X Y","type":"concept","confidence":1.7}],"relations":[]}`}
	e := NewExtractor(llm)

	out, err := e.Extract(context.Background(), domain.Chunk{ID: "chk-1", Content: "x"})
	require.NoError(t, err)
	require.Len(t, out.Entities, 1)
	assert.InDelta(t, 1.0, out.Entities[0].Confidence, 1e-12)
}

func TestExtract_SkipsEmptySurfaces(t *testing.T) {
	llm := &stubLLM{response: `{"entities":[{"surface":"","type":"person","confidence":0.9}],` +
		`"relations":[{"subject":"a","predicate":"","object":"b","confidence":0.9}]}`}
	e := NewExtractor(llm)

	out, err := e.Extract(context.Background(), domain.Chunk{ID: "chk-1", Content: "x"})
	require.NoError(t, err)
	assert.Empty(t, out.Entities)
	assert.Empty(t, out.Relations)
}
