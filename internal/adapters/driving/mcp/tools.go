package mcp

import (
	"context"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/kgraglabs/kgrag/internal/core/domain"
)

// QueryInput is the input schema for the query tool.
type QueryInput struct {
	Prompt    string `json:"prompt" jsonschema:"the natural-language question to answer"`
	TopN      int    `json:"top_n,omitempty" jsonschema:"number of chunks from vector retrieval (default 10)"`
	Hops      int    `json:"hops,omitempty" jsonschema:"subgraph traversal depth (default 2)"`
	MaxNodes  int    `json:"max_nodes,omitempty" jsonschema:"subgraph node cap (default 50)"`
	SessionID string `json:"session_id,omitempty" jsonschema:"session ID for conversational memory"`
	WithPlan  bool   `json:"with_plan,omitempty" jsonschema:"include a verification query plan"`
}

// QueryOutput is the output schema for the query tool.
type QueryOutput struct {
	Answer     string             `json:"answer"`
	Intent     string             `json:"intent"`
	Partial    bool               `json:"partial"`
	Reason     string             `json:"reason,omitempty"`
	Plan       string             `json:"plan,omitempty"`
	Provenance []ProvenanceOutput `json:"provenance"`
}

// ProvenanceOutput is a single citation in a query answer.
type ProvenanceOutput struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

// IngestInput is the input schema for the ingest tool.
type IngestInput struct {
	Path  string `json:"path" jsonschema:"file path or URI of the document to ingest"`
	Force bool   `json:"force,omitempty" jsonschema:"re-ingest even when content is unchanged"`
}

// IngestOutput is the output schema for the ingest tool.
type IngestOutput struct {
	DocumentID   string `json:"document_id"`
	Status       string `json:"status"`
	Chunks       int    `json:"chunks"`
	Entities     int    `json:"entities"`
	Relations    int    `json:"relations"`
	ChunksFailed int    `json:"chunks_failed"`
	Error        string `json:"error,omitempty"`
}

// BackfillInput is the input schema for the backfill tool.
type BackfillInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"maximum number of chunks to embed (default 100)"`
}

// BackfillOutput is the output schema for the backfill tool.
type BackfillOutput struct {
	Embedded int `json:"embedded"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "query",
		Description: "Answer a question from the knowledge base with cited evidence",
	}, s.handleQuery)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "ingest",
		Description: "Ingest a document into the knowledge base",
	}, s.handleIngest)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "backfill",
		Description: "Re-embed chunks whose embedding previously failed",
	}, s.handleBackfill)
}

// handleQuery handles the query tool invocation.
func (s *Server) handleQuery(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input QueryInput,
) (*mcp.CallToolResult, QueryOutput, error) {
	opts := domain.QueryOptions{
		SessionID: input.SessionID,
		TopN:      input.TopN,
		Hops:      input.Hops,
		MaxNodes:  input.MaxNodes,
		WithPlan:  input.WithPlan,
	}

	var (
		answer *domain.Answer
		err    error
	)
	if input.SessionID != "" && s.ports.Session != nil {
		answer, err = s.ports.Session.Ask(ctx, input.SessionID, input.Prompt, opts)
	} else {
		answer, err = s.ports.Query.Query(ctx, input.Prompt, opts)
	}
	if err != nil {
		return nil, QueryOutput{}, err
	}

	output := QueryOutput{
		Answer:     answer.Text,
		Intent:     string(answer.Intent),
		Partial:    answer.Partial,
		Reason:     answer.Reason,
		Plan:       answer.Plan,
		Provenance: make([]ProvenanceOutput, len(answer.Provenance)),
	}
	for i, ref := range answer.Provenance {
		output.Provenance[i] = ProvenanceOutput{Kind: ref.Kind, ID: ref.ID}
	}

	return nil, output, nil
}

// handleIngest handles the ingest tool invocation. It drains the event
// stream and reports only the terminal status.
func (s *Server) handleIngest(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input IngestInput,
) (*mcp.CallToolResult, IngestOutput, error) {
	if s.ports.Ingest == nil {
		return nil, IngestOutput{}, errors.New("ingestion pipeline not configured")
	}

	events, err := s.ports.Ingest.Ingest(ctx, input.Path, input.Force)
	if err != nil {
		return nil, IngestOutput{}, err
	}

	var output IngestOutput
	for ev := range events {
		if !ev.Terminal {
			continue
		}
		output = IngestOutput{
			DocumentID:   ev.DocumentID,
			Status:       string(ev.Status),
			Chunks:       ev.Chunks,
			Entities:     ev.Entities,
			Relations:    ev.Relations,
			ChunksFailed: ev.ChunksFailed,
			Error:        ev.Err,
		}
	}

	return nil, output, nil
}

// handleBackfill handles the backfill tool invocation.
func (s *Server) handleBackfill(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input BackfillInput,
) (*mcp.CallToolResult, BackfillOutput, error) {
	if s.ports.Ingest == nil {
		return nil, BackfillOutput{}, errors.New("ingestion pipeline not configured")
	}

	limit := input.Limit
	if limit <= 0 {
		limit = 100
	}

	n, err := s.ports.Ingest.Backfill(ctx, limit)
	if err != nil {
		return nil, BackfillOutput{}, err
	}

	return nil, BackfillOutput{Embedded: n}, nil
}
