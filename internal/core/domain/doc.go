// Package domain defines the core business entities for kgrag.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Document: An ingested document with metadata
//   - Chunk: A context-windowed slice of a document
//   - Entity: A deduplicated real-world referent addressed by URI
//   - Relation: A provenance-carrying (subject, predicate, object) triple
//   - SessionState: Thread-scoped conversation state with sliding expiry
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
