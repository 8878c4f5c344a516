package mcp

import (
	"github.com/kgraglabs/kgrag/internal/core/ports/driven"
	"github.com/kgraglabs/kgrag/internal/core/ports/driving"
)

// Ports aggregates the interfaces the MCP server needs.
// This provides a single injection point for dependency injection.
type Ports struct {
	// Query answers prompts from fused graph and vector evidence.
	Query driving.QueryService

	// Ingest runs the ingestion pipeline. Optional; the ingest tool is
	// unavailable without it.
	Ingest driving.IngestionPipeline

	// Session provides conversational memory. Optional; session-scoped
	// queries and the session resource are unavailable without it.
	Session driving.SessionService

	// Documents backs the document content resource. Optional.
	Documents driven.DocumentStore

	// Graph backs the stats resource. Optional.
	Graph driven.GraphStore
}

// Validate ensures all required ports are set.
// Returns an error if any required port is nil.
func (p *Ports) Validate() error {
	if p.Query == nil {
		return ErrMissingQueryService
	}
	return nil
}
