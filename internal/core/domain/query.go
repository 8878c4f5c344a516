package domain

// QueryIntent categorises what a prompt is asking for. The category
// steers subgraph retrieval: relational intents pull paths between linked
// entities, exploratory intents widen the neighbourhood.
type QueryIntent string

const (
	// IntentLookup asks about a single entity or fact.
	IntentLookup QueryIntent = "lookup"

	// IntentRelational asks how entities relate to each other.
	IntentRelational QueryIntent = "relational"

	// IntentExploratory is an open question over the corpus.
	IntentExploratory QueryIntent = "exploratory"
)

// QueryOptions configures a query pipeline run.
type QueryOptions struct {
	// SessionID scopes the query to a conversation session. Empty means
	// a one-shot query with no session memory.
	SessionID string

	// TopN is the number of chunks requested from vector retrieval.
	TopN int

	// Hops bounds the subgraph traversal depth.
	Hops int

	// MaxNodes caps the traversal size; exceeding it truncates by
	// relation recency and confidence.
	MaxNodes int

	// ContextBudget bounds the assembled context in characters.
	ContextBudget int

	// WithPlan requests a verification graph-query plan alongside the
	// answer.
	WithPlan bool
}

// EvidenceKind distinguishes graph facts from text chunks in the fused
// evidence list.
type EvidenceKind string

const (
	// EvidenceFact is a graph relation with provenance.
	EvidenceFact EvidenceKind = "fact"

	// EvidenceChunk is a text excerpt retrieved by similarity.
	EvidenceChunk EvidenceKind = "chunk"
)

// Evidence is a single fused retrieval result.
type Evidence struct {
	// Kind says whether Ref names a relation or a chunk.
	Kind EvidenceKind

	// Ref is the chunk ID or relation ID.
	Ref string

	// Text is the renderable content: chunk excerpt or fact sentence.
	Text string

	// Score is the fused rank score.
	Score float64

	// RawScore is the similarity or confidence before fusion, used to
	// break fusion ties.
	RawScore float64

	// Sources counts the retrieval paths that surfaced this item.
	// Evidence confirmed by both graph and vector outranks evidence
	// from one path at the same individual rank.
	Sources int

	// Provenance carries the chunk IDs that support this evidence.
	Provenance []string
}

// ProvenanceRef is a citation attached to an answer.
type ProvenanceRef struct {
	// Kind says whether ID names a chunk, entity or relation.
	Kind string

	// ID is the cited identifier.
	ID string
}

// Answer is the grounded response returned to the query caller.
type Answer struct {
	// Text is the generated answer.
	Text string

	// Provenance lists the evidence the answer is grounded on. Always
	// populated; generation is untrusted for grounding.
	Provenance []ProvenanceRef

	// Partial marks a response produced from degraded evidence, with
	// Reason naming the unavailable path.
	Partial bool
	Reason  string

	// Plan is the optional verification graph-query plan.
	Plan string

	// Intent is the resolved query intent.
	Intent QueryIntent
}
