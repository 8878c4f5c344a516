package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kgraglabs/kgrag/internal/core/domain"
	"github.com/kgraglabs/kgrag/internal/core/ports/driven"
	"github.com/kgraglabs/kgrag/internal/core/ports/driving"
	"github.com/kgraglabs/kgrag/internal/logger"
)

// Ensure QueryService implements the interface.
var _ driving.QueryService = (*QueryService)(nil)

// Retrieval defaults applied when options leave them zero.
const (
	DefaultTopN          = 10
	DefaultHops          = 2
	DefaultMaxNodes      = 50
	DefaultContextBudget = 4000
)

// DefaultRetrievalTimeout bounds each retrieval path individually. A
// hung backend degrades that path instead of stalling the whole query.
const DefaultRetrievalTimeout = 15 * time.Second

// QueryService answers prompts from fused graph and vector evidence.
// It never writes to the graph: unresolvable mentions are dropped from
// graph retrieval instead of minting entities.
type QueryService struct {
	docStore    driven.DocumentStore
	graph       driven.GraphStore
	vectorIndex driven.VectorIndex
	embedder    driven.EmbeddingService
	llm         driven.LLMService
	extractor   driven.Extractor
	xref        driven.CrossIndex
	cache       driven.EvidenceCache
	linker      *Linker

	retrievalTimeout time.Duration
}

// NewQueryService creates the query service. The embedding service, LLM
// service and cache are optional - retrieval degrades accordingly.
func NewQueryService(
	docStore driven.DocumentStore,
	graph driven.GraphStore,
	vectorIndex driven.VectorIndex,
	embedder driven.EmbeddingService,
	llm driven.LLMService,
	extractor driven.Extractor,
	xref driven.CrossIndex,
	cache driven.EvidenceCache,
) *QueryService {
	return &QueryService{
		docStore:    docStore,
		graph:       graph,
		vectorIndex: vectorIndex,
		embedder:    embedder,
		llm:         llm,
		extractor:   extractor,
		xref:        xref,
		cache:       cache,
		linker:      NewLinker(graph, xref),

		retrievalTimeout: DefaultRetrievalTimeout,
	}
}

// Query runs the full pipeline: intent resolution, entity linking,
// concurrent retrieval, rank fusion, context assembly and generation.
//
//nolint:gocyclo // Pipeline orchestration with necessary sequential steps
func (s *QueryService) Query(
	ctx context.Context, prompt string, opts domain.QueryOptions,
) (*domain.Answer, error) {
	logger.Section("Query Execution")

	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, fmt.Errorf("%w: empty prompt", domain.ErrInvalidInput)
	}
	applyQueryDefaults(&opts)

	// 1. Intent steers subgraph retrieval.
	intent := classifyIntent(prompt)
	logger.Debug("Intent: %s", intent)

	// 2. Link prompt mentions to canonical URIs, never minting. A
	// linking failure counts as a graph-path failure even when no
	// seed resolves.
	seeds, linkErr := s.linkPrompt(ctx, prompt)
	logger.Debug("Linked %d seed entities", len(seeds))

	// 3. Concurrent fan-out: graph and vector retrieval run in
	// parallel; either may fail without sinking the query.
	var graphList, vectorList []rankedItem
	var graphErr, vectorErr error

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		pathCtx, cancel := context.WithTimeout(ctx, s.retrievalTimeout)
		defer cancel()
		graphList, graphErr = s.graphRetrieve(pathCtx, seeds, intent, opts)
	}()
	go func() {
		defer wg.Done()
		pathCtx, cancel := context.WithTimeout(ctx, s.retrievalTimeout)
		defer cancel()
		vectorList, vectorErr = s.vectorRetrieve(pathCtx, prompt, opts.TopN)
	}()
	wg.Wait()

	if graphErr == nil && linkErr != nil {
		graphErr = linkErr
	}

	if graphErr != nil && vectorErr != nil {
		logger.Warn("Query: both retrieval paths failed")
		return nil, fmt.Errorf("retrieval: graph=%w, vector=%w", graphErr, vectorErr)
	}

	partial := false
	reason := ""
	if graphErr != nil {
		logger.Warn("Query: graph retrieval failed, degrading to vector only: %v", graphErr)
		partial, reason = true, "graph retrieval unavailable"
	}
	if vectorErr != nil {
		logger.Warn("Query: vector retrieval failed, degrading to graph only: %v", vectorErr)
		partial, reason = true, "vector retrieval unavailable"
	}

	// 4. Fuse the ranked lists.
	evidence := reciprocalRankFusion(graphList, vectorList)
	logger.Debug("Fused %d graph + %d vector results into %d evidence items",
		len(graphList), len(vectorList), len(evidence))

	if len(evidence) == 0 {
		return &domain.Answer{
			Text:    "No relevant evidence found.",
			Partial: partial,
			Reason:  reason,
			Intent:  intent,
		}, nil
	}

	// 5. Assemble context under the budget, facts before excerpts.
	contextText, used := assembleContext(evidence, opts.ContextBudget)

	// 6. Generate. The model is untrusted for grounding: provenance
	// comes from the evidence actually assembled, not from the text.
	answer := &domain.Answer{
		Provenance: provenanceRefs(used),
		Partial:    partial,
		Reason:     reason,
		Intent:     intent,
	}

	text, err := s.generate(ctx, prompt, contextText)
	if err != nil {
		if !errors.Is(err, domain.ErrLLMUnavailable) {
			return nil, fmt.Errorf("generate: %w", err)
		}
		// No generation backend: the fused evidence is the answer.
		answer.Text = contextText
		answer.Partial = true
		if answer.Reason == "" {
			answer.Reason = "generation unavailable"
		}
	} else {
		answer.Text = text
	}

	if opts.WithPlan {
		answer.Plan = buildPlan(seeds, intent, opts)
	}

	logger.Info("Query answered with %d evidence items (partial=%t)", len(used), answer.Partial)
	return answer, nil
}

// applyQueryDefaults fills zero options.
func applyQueryDefaults(opts *domain.QueryOptions) {
	if opts.TopN <= 0 {
		opts.TopN = DefaultTopN
	}
	if opts.Hops <= 0 {
		opts.Hops = DefaultHops
	}
	if opts.MaxNodes <= 0 {
		opts.MaxNodes = DefaultMaxNodes
	}
	if opts.ContextBudget <= 0 {
		opts.ContextBudget = DefaultContextBudget
	}
}

// classifyIntent categorises the prompt with surface rules. An LLM
// classifier can replace this; the categories stay the same.
func classifyIntent(prompt string) domain.QueryIntent {
	lower := strings.ToLower(prompt)

	relational := []string{
		"relationship", "related", "between", "connect", "compare",
		"difference", "versus", " vs ", "how does", "how do", "interact",
	}
	for _, marker := range relational {
		if strings.Contains(lower, marker) {
			return domain.IntentRelational
		}
	}

	lookup := []string{"who is", "what is", "when did", "when was", "where is", "define"}
	for _, marker := range lookup {
		if strings.HasPrefix(lower, marker) {
			return domain.IntentLookup
		}
	}

	return domain.IntentExploratory
}

// linkPrompt extracts mentions from the prompt and resolves them against
// existing entities. Unresolved mentions are excluded, not minted. The
// returned error reports graph-backend failures so the caller can mark
// the answer degraded; extraction failures just mean a vector-only
// query.
func (s *QueryService) linkPrompt(ctx context.Context, prompt string) ([]string, error) {
	if s.extractor == nil {
		return nil, nil
	}

	ex, err := s.extractor.Extract(ctx, domain.Chunk{ID: "query", Content: prompt})
	if err != nil {
		logger.Debug("Prompt extraction failed: %v", err)
		return nil, nil
	}

	var seeds []string
	var backendErr error
	for _, mention := range ex.Entities {
		uri, err := s.linker.Resolve(ctx, mention, seeds, false)
		if err != nil {
			if !errors.Is(err, domain.ErrNotFound) {
				logger.Debug("Resolve %q failed: %v", mention.Surface, err)
				backendErr = fmt.Errorf("%w: %v", domain.ErrGraphUnavailable, err)
			}
			continue
		}
		seeds = append(seeds, uri)
	}

	return seeds, backendErr
}

// graphRetrieve pulls the bounded neighbourhood of the linked seeds and
// renders its relations as ranked fact evidence. Relational intents also
// fetch direct paths between the seeds so connecting facts rank first.
func (s *QueryService) graphRetrieve(
	ctx context.Context,
	seeds []string,
	intent domain.QueryIntent,
	opts domain.QueryOptions,
) ([]rankedItem, error) {
	if s.graph == nil {
		return nil, domain.ErrGraphUnavailable
	}
	if len(seeds) == 0 {
		return nil, nil
	}

	hops := opts.Hops
	if intent == domain.IntentExploratory {
		hops++
	}

	sub, err := s.graph.Neighborhood(ctx, seeds, hops, opts.MaxNodes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrGraphUnavailable, err)
	}
	if sub.Truncated {
		logger.Debug("Neighbourhood truncated at %d nodes", opts.MaxNodes)
	}

	relations := sub.Relations
	if intent == domain.IntentRelational && len(seeds) > 1 {
		direct, err := s.graph.RelationsBetween(ctx, seeds)
		if err != nil {
			logger.Debug("RelationsBetween failed: %v", err)
		} else {
			relations = append(direct, relations...)
		}
	}

	seen := make(map[string]bool, len(relations))
	items := make([]rankedItem, 0, len(relations))
	for _, rel := range relations {
		if seen[rel.ID] {
			continue
		}
		seen[rel.ID] = true

		chunkIDs := make([]string, 0, len(rel.Provenance))
		for _, p := range rel.Provenance {
			chunkIDs = append(chunkIDs, p.ChunkID)
		}

		items = append(items, rankedItem{
			kind:       domain.EvidenceFact,
			ref:        rel.ID,
			text:       s.renderFact(sub, rel),
			rawScore:   rel.Confidence(),
			provenance: chunkIDs,
		})
	}

	return items, nil
}

// renderFact turns a relation into a citable sentence using entity
// labels where the subgraph has them.
func (s *QueryService) renderFact(sub *driven.Subgraph, rel domain.Relation) string {
	label := func(uri string) string {
		if e, ok := sub.Entities[uri]; ok && e.Label != "" {
			return e.Label
		}
		return uri
	}
	return fmt.Sprintf("%s %s %s", label(rel.Subject), rel.Predicate, label(rel.Object))
}

// vectorRetrieve embeds the prompt, searches the index and hydrates the
// hit chunks through the read cache.
func (s *QueryService) vectorRetrieve(ctx context.Context, prompt string, topN int) ([]rankedItem, error) {
	if s.vectorIndex == nil {
		return nil, domain.ErrVectorUnavailable
	}
	if s.embedder == nil {
		return nil, domain.ErrEmbeddingUnavailable
	}

	embedding, err := s.embedder.Embed(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrEmbeddingUnavailable, err)
	}

	hits, err := s.vectorIndex.Search(ctx, embedding, topN, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrVectorUnavailable, err)
	}

	items := make([]rankedItem, 0, len(hits))
	for _, hit := range hits {
		chunk, err := s.hydrateChunk(ctx, hit.ID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				// Chunk deleted after indexing, skip it.
				continue
			}
			return nil, fmt.Errorf("hydrate chunk %s: %w", hit.ID, err)
		}

		items = append(items, rankedItem{
			kind:       domain.EvidenceChunk,
			ref:        chunk.ID,
			text:       chunk.Content,
			rawScore:   hit.Similarity,
			provenance: []string{chunk.ID},
		})
	}

	return items, nil
}

// hydrateChunk reads a chunk through the cache.
func (s *QueryService) hydrateChunk(ctx context.Context, id string) (*domain.Chunk, error) {
	if s.cache != nil {
		if chunk, ok := s.cache.GetChunk(id); ok {
			return chunk, nil
		}
	}

	chunk, err := s.docStore.GetChunk(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.PutChunk(chunk)
	}
	return chunk, nil
}

// assembleContext builds the generation context hierarchically: graph
// facts with their provenance first, then fused text excerpts, cut off
// at the character budget. Returns the text and the evidence included.
func assembleContext(evidence []domain.Evidence, budget int) (string, []domain.Evidence) {
	var b strings.Builder
	var used []domain.Evidence

	// Everything counts against the budget, headers included. An item
	// too large for the remaining budget is skipped, not a cutoff:
	// smaller items further down the fused list still get their slot.
	fits := func(line string) bool {
		return b.Len()+len(line) <= budget
	}

	if header := "Facts:\n"; fits(header) {
		b.WriteString(header)
	}
	for _, ev := range evidence {
		if ev.Kind != domain.EvidenceFact {
			continue
		}
		line := fmt.Sprintf("- %s [%s]\n", ev.Text, strings.Join(ev.Provenance, ","))
		if !fits(line) {
			continue
		}
		b.WriteString(line)
		used = append(used, ev)
	}

	if header := "\nExcerpts:\n"; fits(header) {
		b.WriteString(header)
	}
	for _, ev := range evidence {
		if ev.Kind != domain.EvidenceChunk {
			continue
		}
		line := fmt.Sprintf("[%s] %s\n\n", ev.Ref, ev.Text)
		if !fits(line) {
			continue
		}
		b.WriteString(line)
		used = append(used, ev)
	}

	return b.String(), used
}

// provenanceRefs converts the used evidence into answer citations.
func provenanceRefs(used []domain.Evidence) []domain.ProvenanceRef {
	refs := make([]domain.ProvenanceRef, 0, len(used))
	for _, ev := range used {
		refs = append(refs, domain.ProvenanceRef{
			Kind: string(ev.Kind),
			ID:   ev.Ref,
		})
	}
	return refs
}

// generate asks the LLM for an answer constrained to the context.
func (s *QueryService) generate(ctx context.Context, prompt, contextText string) (string, error) {
	if s.llm == nil {
		return "", domain.ErrLLMUnavailable
	}

	system := "Answer strictly from the provided facts and excerpts. " +
		"Cite the bracketed IDs you rely on. " +
		"If the evidence does not cover the question, say so instead of guessing."

	full := fmt.Sprintf("%s\nQuestion: %s", contextText, prompt)
	text, err := s.llm.Generate(ctx, full, driven.GenerateOptions{
		System:      system,
		MaxTokens:   1024,
		Temperature: 0,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrTransient, err)
	}

	return text, nil
}

// buildPlan renders the verification graph-query plan: the traversal a
// reader can run to check the answer.
func buildPlan(seeds []string, intent domain.QueryIntent, opts domain.QueryOptions) string {
	var b strings.Builder
	fmt.Fprintf(&b, "intent: %s\n", intent)
	if len(seeds) > 0 {
		fmt.Fprintf(&b, "seeds: %s\n", strings.Join(seeds, ", "))
		fmt.Fprintf(&b, "traverse: %d hops, max %d nodes, truncate by recency then confidence\n",
			opts.Hops, opts.MaxNodes)
	} else {
		b.WriteString("seeds: none resolved, vector retrieval only\n")
	}
	fmt.Fprintf(&b, "vector: top %d chunks by cosine similarity\n", opts.TopN)
	b.WriteString("fuse: reciprocal rank fusion, constant 60\n")
	return b.String()
}
