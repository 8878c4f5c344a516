package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Document represents an ingested document.
// It is immutable once ingested; re-ingesting changed content produces
// a new version rather than mutating this one.
type Document struct {
	// ID is the unique identifier, derived from the source URI.
	ID string

	// URI is the original location (file path, URL, etc).
	URI string

	// ContentHash is the hex SHA-256 of the normalised content.
	// Ingestion short-circuits when the hash is unchanged.
	ContentHash string

	// Content is the full text after normalisation.
	Content string

	// Version increments each time changed content is ingested for the
	// same URI.
	Version int

	// Metadata contains arbitrary key-value pairs.
	Metadata map[string]any

	// IngestedAt is when this version was ingested.
	IngestedAt time.Time
}

// Chunk represents a contiguous, context-windowed slice of a document.
// Chunks are owned by the ingestion pipeline and read-only to queries.
type Chunk struct {
	// ID is content-derived and stable: re-chunking the same document
	// with the same window parameters yields identical IDs.
	ID string

	// DocumentID links to the parent Document.
	DocumentID string

	// Position is the ordinal position within the document.
	Position int

	// Content is the raw text of this chunk.
	Content string

	// Embedding is the vector representation. Nil until computed;
	// a nil embedding marks the chunk for a backfill pass.
	Embedding []float32
}

// DocumentID derives a stable document identifier from a source URI.
func DocumentID(uri string) string {
	sum := sha256.Sum256([]byte(uri))
	return "doc-" + hex.EncodeToString(sum[:8])
}

// ChunkID derives a content-hash chunk identifier. It folds in the parent
// document, window parameters and chunk text so that deterministic
// re-chunking reproduces the same IDs.
func ChunkID(documentID string, position, window, overlap int, text string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%d|%d|%d|", documentID, position, window, overlap)
	h.Write([]byte(text))
	return "chk-" + hex.EncodeToString(h.Sum(nil)[:12])
}

// ContentHash computes the hex SHA-256 of normalised document content.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
