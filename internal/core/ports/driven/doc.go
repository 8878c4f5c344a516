// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for the application to function:
//
//   - DocumentStore: Document/chunk persistence
//   - GraphStore: Entity/relation persistence with upsert-by-URI merge
//   - CrossIndex: chunk <-> node/edge provenance mapping
//   - Normaliser: Transforms raw bytes into document text
//   - Extractor: Pulls entity/relation mentions out of chunks
//   - SessionStore: TTL-scoped session persistence
//   - ConfigStore: Application configuration
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - VectorIndex: Vector storage/search. Only enabled together with EmbeddingService.
//   - EmbeddingService: Generates vector embeddings. Without it, vector retrieval is disabled.
//   - LLMService: Generation. Without it, queries return fused evidence but no prose answer.
//   - EvidenceCache: Read-through cache for chunk hydration.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter or normaliser package
package driven
