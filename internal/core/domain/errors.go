package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// Error taxonomy for pipeline failures. Callers classify with
	// errors.Is and choose retry behaviour accordingly.

	// ErrTransient indicates a backend or network failure that the
	// caller may retry with backoff. The pipelines never retry
	// internally.
	ErrTransient = errors.New("transient backend failure")

	// ErrMalformedInput indicates input that can never succeed
	// (unparseable document, embedding dimension mismatch). Rejected,
	// not retried.
	ErrMalformedInput = errors.New("malformed input")

	// ErrConsistency indicates an internal invariant breach, such as a
	// cross-index entry referencing a missing chunk or node. Fatal for
	// the document being ingested, never silently dropped.
	ErrConsistency = errors.New("consistency violation")

	// ErrDimensionMismatch indicates an embedding whose dimension does
	// not match the configured index. A form of malformed input that is
	// called out separately because it usually means a model swap.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// Availability errors. Query-side retrieval degrades on these
	// rather than failing the whole query.

	// ErrGraphUnavailable indicates the graph store is not configured
	// or unreachable.
	ErrGraphUnavailable = errors.New("graph store unavailable")

	// ErrVectorUnavailable indicates the vector index is not configured
	// or unreachable.
	ErrVectorUnavailable = errors.New("vector index unavailable")

	// ErrEmbeddingUnavailable indicates the embedding service is not
	// configured or unreachable.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrLLMUnavailable indicates the generation service is not
	// configured. Queries cannot produce an answer without it.
	ErrLLMUnavailable = errors.New("LLM service unavailable")

	// ErrSessionExpired indicates the session passed its expiry horizon.
	ErrSessionExpired = errors.New("session expired")
)

// ErrorClass is the machine-readable failure classification surfaced to
// ingestion and query callers.
type ErrorClass string

// Failure classes, mirroring the retryability of the underlying error.
const (
	ClassNone        ErrorClass = ""
	ClassTransient   ErrorClass = "transient"
	ClassMalformed   ErrorClass = "malformed-input"
	ClassConsistency ErrorClass = "consistency-violation"
	ClassDegraded    ErrorClass = "degraded-evidence"
	ClassInternal    ErrorClass = "internal"
)

// Classify maps an error onto the taxonomy. Unknown errors are internal.
func Classify(err error) ErrorClass {
	switch {
	case err == nil:
		return ClassNone
	case errors.Is(err, ErrConsistency):
		return ClassConsistency
	case errors.Is(err, ErrMalformedInput), errors.Is(err, ErrDimensionMismatch), errors.Is(err, ErrInvalidInput):
		return ClassMalformed
	case errors.Is(err, ErrTransient),
		errors.Is(err, ErrGraphUnavailable),
		errors.Is(err, ErrVectorUnavailable),
		errors.Is(err, ErrEmbeddingUnavailable):
		return ClassTransient
	default:
		return ClassInternal
	}
}
