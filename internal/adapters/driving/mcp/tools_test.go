package mcp

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kgraglabs/kgrag/internal/core/domain"
)

func TestServer_handleQuery(t *testing.T) {
	ctx := context.Background()

	t.Run("returns grounded answer", func(t *testing.T) {
		mockQuery := &mockQueryService{
			answer: &domain.Answer{
				Text:   "Marie Curie discovered radium.",
				Intent: domain.IntentLookup,
				Provenance: []domain.ProvenanceRef{
					{Kind: "chunk", ID: "chk-1"},
					{Kind: "relation", ID: "rel-1"},
				},
			},
		}

		server, err := NewServer(&Ports{Query: mockQuery})
		require.NoError(t, err)

		input := QueryInput{Prompt: "who discovered radium", TopN: 5}
		_, output, err := server.handleQuery(ctx, nil, input)

		require.NoError(t, err)
		assert.Equal(t, "Marie Curie discovered radium.", output.Answer)
		assert.Equal(t, "lookup", output.Intent)
		assert.Len(t, output.Provenance, 2)
		assert.Equal(t, "chunk", output.Provenance[0].Kind)
		assert.Equal(t, "chk-1", output.Provenance[0].ID)
		assert.Equal(t, "who discovered radium", mockQuery.lastPrompt)
		assert.Equal(t, 5, mockQuery.lastOpts.TopN)
	})

	t.Run("partial answers carry the reason", func(t *testing.T) {
		mockQuery := &mockQueryService{
			answer: &domain.Answer{Text: "partial", Partial: true, Reason: "graph unavailable"},
		}

		server, err := NewServer(&Ports{Query: mockQuery})
		require.NoError(t, err)

		_, output, err := server.handleQuery(ctx, nil, QueryInput{Prompt: "test"})

		require.NoError(t, err)
		assert.True(t, output.Partial)
		assert.Equal(t, "graph unavailable", output.Reason)
	})

	t.Run("session id routes to the session service", func(t *testing.T) {
		mockQuery := &mockQueryService{answer: &domain.Answer{Text: "one-shot"}}
		mockSession := &mockSessionService{answer: &domain.Answer{Text: "in session"}}

		server, err := NewServer(&Ports{Query: mockQuery, Session: mockSession})
		require.NoError(t, err)

		input := QueryInput{Prompt: "follow-up", SessionID: "s1"}
		_, output, err := server.handleQuery(ctx, nil, input)

		require.NoError(t, err)
		assert.Equal(t, "in session", output.Answer)
		assert.Equal(t, "s1", mockSession.lastSessionID)
		assert.Empty(t, mockQuery.lastPrompt)
	})

	t.Run("query errors propagate", func(t *testing.T) {
		mockQuery := &mockQueryService{err: errors.New("boom")}

		server, err := NewServer(&Ports{Query: mockQuery})
		require.NoError(t, err)

		_, _, err = server.handleQuery(ctx, nil, QueryInput{Prompt: "test"})

		assert.Error(t, err)
	})
}

func TestServer_handleIngest(t *testing.T) {
	ctx := context.Background()

	t.Run("reports terminal status", func(t *testing.T) {
		mockIngest := &mockIngestPipeline{
			events: []domain.IngestEvent{
				{Stage: domain.StageChunk, Chunks: 3},
				{
					Terminal:   true,
					Status:     domain.IngestSucceeded,
					DocumentID: "doc-1",
					Chunks:     3,
					Entities:   2,
					Relations:  1,
				},
			},
		}

		server, err := NewServer(&Ports{Query: &mockQueryService{}, Ingest: mockIngest})
		require.NoError(t, err)

		input := IngestInput{Path: "notes.md", Force: true}
		_, output, err := server.handleIngest(ctx, nil, input)

		require.NoError(t, err)
		assert.Equal(t, "doc-1", output.DocumentID)
		assert.Equal(t, "succeeded", output.Status)
		assert.Equal(t, 3, output.Chunks)
		assert.Equal(t, 2, output.Entities)
		assert.Equal(t, "notes.md", mockIngest.lastRef)
		assert.True(t, mockIngest.lastForce)
	})

	t.Run("failed ingestion surfaces the error text", func(t *testing.T) {
		mockIngest := &mockIngestPipeline{
			events: []domain.IngestEvent{
				{Terminal: true, Status: domain.IngestFailed, Err: "unsupported format"},
			},
		}

		server, err := NewServer(&Ports{Query: &mockQueryService{}, Ingest: mockIngest})
		require.NoError(t, err)

		_, output, err := server.handleIngest(ctx, nil, IngestInput{Path: "x.bin"})

		require.NoError(t, err)
		assert.Equal(t, "failed", output.Status)
		assert.Equal(t, "unsupported format", output.Error)
	})

	t.Run("missing pipeline is an error", func(t *testing.T) {
		server, err := NewServer(&Ports{Query: &mockQueryService{}})
		require.NoError(t, err)

		_, _, err = server.handleIngest(ctx, nil, IngestInput{Path: "notes.md"})

		assert.Error(t, err)
	})
}

func TestServer_handleBackfill(t *testing.T) {
	ctx := context.Background()

	t.Run("default limit is 100", func(t *testing.T) {
		mockIngest := &mockIngestPipeline{backfilled: 7}

		server, err := NewServer(&Ports{Query: &mockQueryService{}, Ingest: mockIngest})
		require.NoError(t, err)

		_, output, err := server.handleBackfill(ctx, nil, BackfillInput{})

		require.NoError(t, err)
		assert.Equal(t, 7, output.Embedded)
		assert.Equal(t, 100, mockIngest.lastLimit)
	})

	t.Run("explicit limit passed through", func(t *testing.T) {
		mockIngest := &mockIngestPipeline{}

		server, err := NewServer(&Ports{Query: &mockQueryService{}, Ingest: mockIngest})
		require.NoError(t, err)

		_, _, err = server.handleBackfill(ctx, nil, BackfillInput{Limit: 25})

		require.NoError(t, err)
		assert.Equal(t, 25, mockIngest.lastLimit)
	})
}
