package domain

import "time"

// IngestStage names a pipeline stage for progress reporting.
type IngestStage string

// Pipeline stages in execution order.
const (
	StageNormalise  IngestStage = "normalise"
	StageChunk      IngestStage = "chunk"
	StageExtract    IngestStage = "extract"
	StageLink       IngestStage = "link"
	StageUpsert     IngestStage = "upsert"
	StageEmbed      IngestStage = "embed"
	StageCrossIndex IngestStage = "cross-index"
)

// IngestStatus is the terminal status of a document ingestion.
type IngestStatus string

const (
	// IngestSucceeded means every stage completed. Individual chunk
	// embedding failures do not demote the status; they are reported in
	// ChunksFailed and left for a backfill pass.
	IngestSucceeded IngestStatus = "succeeded"

	// IngestFailed means the document could not be ingested.
	IngestFailed IngestStatus = "failed"

	// IngestSkipped means the content hash matched an earlier ingestion
	// and force was not set.
	IngestSkipped IngestStatus = "skipped"
)

// IngestEvent is one element of the progressive status stream emitted
// while a document moves through the pipeline.
type IngestEvent struct {
	// DocumentID identifies the document being processed.
	DocumentID string

	// URI is the document reference as given by the caller.
	URI string

	// Stage is the stage this event reports on. Empty on the terminal
	// event.
	Stage IngestStage

	// Terminal marks the final event for the document.
	Terminal bool

	// Status is set on the terminal event.
	Status IngestStatus

	// Class classifies the error on failure.
	Class ErrorClass

	// Err is the human-readable failure description.
	Err string

	// Counts for observability.
	Chunks       int
	Entities     int
	Relations    int
	ChunksFailed int

	// At is the event timestamp.
	At time.Time
}
