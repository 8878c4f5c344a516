package driving

import (
	"context"

	"github.com/kgraglabs/kgrag/internal/core/domain"
)

// IngestionPipeline turns raw documents into graph facts, embedded
// chunks and cross-index entries.
type IngestionPipeline interface {
	// Ingest processes the document at ref (a file path or URI) and
	// streams progress events. The channel closes after the terminal
	// event. Force re-runs extraction and embedding even when the
	// content hash matches a previous ingestion.
	//
	// Callers always receive a terminal status per document, never a
	// silent no-op.
	Ingest(ctx context.Context, ref string, force bool) (<-chan domain.IngestEvent, error)

	// Backfill re-embeds chunks left without an embedding by earlier
	// failures, up to limit. Returns how many chunks were embedded.
	Backfill(ctx context.Context, limit int) (int, error)
}
