package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/kgraglabs/kgrag/internal/chunker"
	"github.com/kgraglabs/kgrag/internal/core/domain"
	"github.com/kgraglabs/kgrag/internal/core/ports/driven"
	"github.com/kgraglabs/kgrag/internal/core/ports/driving"
	"github.com/kgraglabs/kgrag/internal/logger"
)

// Ensure IngestionPipeline implements the interface.
var _ driving.IngestionPipeline = (*IngestionPipeline)(nil)

// DefaultEmbedWorkers caps concurrent embedding requests.
const DefaultEmbedWorkers = 4

// DefaultEmbedRate limits embedding requests per second.
const DefaultEmbedRate = 10

// DefaultConfidenceThreshold drops extractions below this confidence.
const DefaultConfidenceThreshold = 0.5

// IngestionPipeline turns raw documents into graph facts, embedded
// chunks and cross-index entries. It is the sole writer of structural
// data; the query pipeline only reads.
type IngestionPipeline struct {
	docStore    driven.DocumentStore
	graph       driven.GraphStore
	vectorIndex driven.VectorIndex
	xref        driven.CrossIndex
	embedder    driven.EmbeddingService
	extractor   driven.Extractor
	normalisers map[string]driven.Normaliser
	linker      *Linker
	chunker     *chunker.Chunker

	limiter      *rate.Limiter
	embedWorkers int
	threshold    float64
	now          func() time.Time
}

// IngestOption configures the pipeline.
type IngestOption func(*IngestionPipeline)

// WithChunker overrides the default chunker.
func WithChunker(c *chunker.Chunker) IngestOption {
	return func(p *IngestionPipeline) { p.chunker = c }
}

// WithEmbedWorkers sets the embedding concurrency cap.
func WithEmbedWorkers(n int) IngestOption {
	return func(p *IngestionPipeline) {
		if n > 0 {
			p.embedWorkers = n
		}
	}
}

// WithEmbedRate sets the embedding request rate limit per second.
func WithEmbedRate(perSecond float64) IngestOption {
	return func(p *IngestionPipeline) {
		if perSecond > 0 {
			p.limiter = rate.NewLimiter(rate.Limit(perSecond), int(perSecond))
		}
	}
}

// WithConfidenceThreshold sets the extraction confidence floor.
func WithConfidenceThreshold(t float64) IngestOption {
	return func(p *IngestionPipeline) { p.threshold = t }
}

// WithClock injects a clock for tests.
func WithClock(now func() time.Time) IngestOption {
	return func(p *IngestionPipeline) { p.now = now }
}

// NewIngestionPipeline creates the pipeline. The embedding service and
// vector index are optional - when nil, chunks are stored without
// embeddings and Backfill picks them up once a service is configured.
func NewIngestionPipeline(
	docStore driven.DocumentStore,
	graph driven.GraphStore,
	vectorIndex driven.VectorIndex,
	xref driven.CrossIndex,
	embedder driven.EmbeddingService,
	extractor driven.Extractor,
	normalisers []driven.Normaliser,
	opts ...IngestOption,
) *IngestionPipeline {
	byExt := make(map[string]driven.Normaliser)
	for _, n := range normalisers {
		for _, ext := range n.SupportedExtensions() {
			byExt[ext] = n
		}
	}

	p := &IngestionPipeline{
		docStore:     docStore,
		graph:        graph,
		vectorIndex:  vectorIndex,
		xref:         xref,
		embedder:     embedder,
		extractor:    extractor,
		normalisers:  byExt,
		linker:       NewLinker(graph, xref),
		chunker:      chunker.New(),
		limiter:      rate.NewLimiter(rate.Limit(DefaultEmbedRate), DefaultEmbedRate),
		embedWorkers: DefaultEmbedWorkers,
		threshold:    DefaultConfidenceThreshold,
		now:          time.Now,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Ingest processes the document at ref and streams progress events.
// The channel closes after the terminal event; callers always see a
// terminal status, never a silent no-op.
func (p *IngestionPipeline) Ingest(ctx context.Context, ref string, force bool) (<-chan domain.IngestEvent, error) {
	if strings.TrimSpace(ref) == "" {
		return nil, fmt.Errorf("%w: empty document reference", domain.ErrInvalidInput)
	}

	events := make(chan domain.IngestEvent, 16)
	go func() {
		defer close(events)
		p.run(ctx, ref, force, events)
	}()

	return events, nil
}

// run executes the pipeline stages for one document, emitting a stage
// event after each stage and a terminal event at the end.
//
//nolint:gocyclo // Pipeline orchestration with necessary sequential stages
func (p *IngestionPipeline) run(ctx context.Context, ref string, force bool, events chan<- domain.IngestEvent) {
	docID := domain.DocumentID(ref)
	emit := func(ev domain.IngestEvent) {
		ev.DocumentID = docID
		ev.URI = ref
		ev.At = p.now()
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	}
	fail := func(stage domain.IngestStage, err error) {
		logger.Warn("Ingest %s failed at %s: %v", ref, stage, err)
		emit(domain.IngestEvent{
			Stage:    stage,
			Terminal: true,
			Status:   domain.IngestFailed,
			Class:    domain.Classify(err),
			Err:      err.Error(),
		})
	}

	logger.Section("Ingest: %s", ref)

	// 1. NORMALISE
	content, err := p.normalise(ctx, ref)
	if err != nil {
		fail(domain.StageNormalise, err)
		return
	}

	hash := domain.ContentHash(content)
	doc := &domain.Document{
		ID:          docID,
		URI:         ref,
		ContentHash: hash,
		Content:     content,
		Version:     1,
		IngestedAt:  p.now(),
	}

	// Content-hash short-circuit: unchanged content is a skip, not a
	// re-run, unless force is set.
	contentChanged := false
	if prev, err := p.docStore.GetDocumentByURI(ctx, ref); err == nil {
		if prev.ContentHash == hash && !force {
			logger.Debug("Ingest %s: content unchanged, skipping", ref)
			emit(domain.IngestEvent{
				Terminal: true,
				Status:   domain.IngestSkipped,
			})
			return
		}
		doc.Version = prev.Version
		if prev.ContentHash != hash {
			doc.Version = prev.Version + 1
			contentChanged = true
		}
	} else if !errors.Is(err, domain.ErrNotFound) {
		fail(domain.StageNormalise, fmt.Errorf("get document: %w", err))
		return
	}
	emit(domain.IngestEvent{Stage: domain.StageNormalise})

	// 2. CHUNK
	chunks := p.chunker.Split(doc)
	emit(domain.IngestEvent{Stage: domain.StageChunk, Chunks: len(chunks)})

	// Changed content re-chunks under new content-hash IDs. Chunks
	// that do not survive must take their cross-index entries and
	// vectors with them before SaveChunks replaces the set, so the
	// no-dangling-provenance invariant holds on every backend, not
	// just the ones that cascade.
	if contentChanged {
		if err := p.dropStaleChunks(ctx, docID, chunks); err != nil {
			fail(domain.StageChunk, err)
			return
		}
	}

	if err := p.docStore.SaveDocument(ctx, doc); err != nil {
		fail(domain.StageChunk, fmt.Errorf("save document: %w", err))
		return
	}
	if err := p.docStore.SaveChunks(ctx, chunks); err != nil {
		fail(domain.StageChunk, fmt.Errorf("save chunks: %w", err))
		return
	}

	// 3. EXTRACT
	extractions := make([]*domain.Extraction, 0, len(chunks))
	for _, chunk := range chunks {
		if p.extractor == nil {
			break
		}
		ex, err := p.extractor.Extract(ctx, chunk)
		if err != nil {
			fail(domain.StageExtract, fmt.Errorf("extract chunk %s: %w", chunk.ID, err))
			return
		}
		extractions = append(extractions, p.applyThreshold(ex))
	}

	var entityCount, relationCount int
	for _, ex := range extractions {
		entityCount += len(ex.Entities)
		relationCount += len(ex.Relations)
	}
	emit(domain.IngestEvent{
		Stage:     domain.StageExtract,
		Entities:  entityCount,
		Relations: relationCount,
	})

	// 4-5. LINK + UPSERT, chunk by chunk so co-occurrence sees the
	// chunk's already-linked entities.
	linked, err := p.linkAndUpsert(ctx, extractions)
	if err != nil {
		fail(domain.StageUpsert, err)
		return
	}
	emit(domain.IngestEvent{Stage: domain.StageLink})
	emit(domain.IngestEvent{Stage: domain.StageUpsert})

	// 6. CROSS-INDEX: every graph element points back to its chunks.
	// Write-time integrity; a failure here is a consistency violation.
	for chunkID, nodeIDs := range linked {
		for _, nodeID := range nodeIDs {
			if err := p.xref.Record(ctx, chunkID, nodeID); err != nil {
				fail(domain.StageCrossIndex, fmt.Errorf("cross-index %s -> %s: %w", chunkID, nodeID, err))
				return
			}
		}
	}
	emit(domain.IngestEvent{Stage: domain.StageCrossIndex})

	// 7. EMBED. Per-chunk failures never roll back the structural
	// writes above; failed chunks stay un-embedded for Backfill.
	failed := p.embedChunks(ctx, chunks)
	emit(domain.IngestEvent{Stage: domain.StageEmbed, ChunksFailed: failed})

	logger.Info("Ingested %s: %d chunks (%d embed failures), %d entities, %d relations",
		ref, len(chunks), failed, entityCount, relationCount)

	emit(domain.IngestEvent{
		Terminal:     true,
		Status:       domain.IngestSucceeded,
		Chunks:       len(chunks),
		Entities:     entityCount,
		Relations:    relationCount,
		ChunksFailed: failed,
	})
}

// dropStaleChunks removes cross-index entries and vectors for chunks of
// docID that are absent from the next chunk set.
func (p *IngestionPipeline) dropStaleChunks(ctx context.Context, docID string, next []domain.Chunk) error {
	prev, err := p.docStore.GetChunks(ctx, docID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("get previous chunks: %w", err)
	}

	keep := make(map[string]struct{}, len(next))
	for _, c := range next {
		keep[c.ID] = struct{}{}
	}

	for _, c := range prev {
		if _, ok := keep[c.ID]; ok {
			continue
		}
		if err := p.xref.DeleteChunk(ctx, c.ID); err != nil {
			return fmt.Errorf("drop cross-index for chunk %s: %w", c.ID, err)
		}
		if p.vectorIndex != nil {
			if err := p.vectorIndex.Delete(ctx, c.ID); err != nil && !errors.Is(err, domain.ErrNotFound) {
				return fmt.Errorf("drop vector for chunk %s: %w", c.ID, err)
			}
		}
		logger.Debug("Ingest: dropped stale chunk %s", c.ID)
	}

	return nil
}

// normalise reads the referenced file and turns it into plain text via
// the normaliser registered for its extension.
func (p *IngestionPipeline) normalise(ctx context.Context, ref string) (string, error) {
	raw, err := os.ReadFile(ref)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", domain.ErrNotFound, ref)
		}
		return "", fmt.Errorf("read %s: %w", ref, err)
	}

	ext := strings.ToLower(filepath.Ext(ref))
	n, ok := p.normalisers[ext]
	if !ok {
		// Unknown extensions fall back to plaintext handling when one
		// is registered; otherwise the input is rejected.
		if n, ok = p.normalisers[".txt"]; !ok {
			return "", fmt.Errorf("%w: no normaliser for %q", domain.ErrMalformedInput, ext)
		}
	}

	content, err := n.Normalise(ctx, ref, raw)
	if err != nil {
		return "", fmt.Errorf("normalise %s: %w", ref, err)
	}
	return content, nil
}

// applyThreshold drops mentions below the confidence floor. Dropped
// extractions are not errors.
func (p *IngestionPipeline) applyThreshold(ex *domain.Extraction) *domain.Extraction {
	kept := &domain.Extraction{ChunkID: ex.ChunkID}
	surfaces := make(map[string]bool)

	for _, m := range ex.Entities {
		if m.Confidence < p.threshold || !m.Type.Valid() {
			continue
		}
		kept.Entities = append(kept.Entities, m)
		surfaces[domain.NormaliseAlias(m.Surface)] = true
	}

	// A relation survives only if both endpoints survived.
	for _, r := range ex.Relations {
		if r.Confidence < p.threshold {
			continue
		}
		if !surfaces[domain.NormaliseAlias(r.Subject)] || !surfaces[domain.NormaliseAlias(r.Object)] {
			continue
		}
		kept.Relations = append(kept.Relations, r)
	}

	return kept
}

// linkAndUpsert resolves every mention to a canonical URI and merges
// entities and relations into the graph. It returns, per chunk, the
// node and edge IDs to cross-index.
func (p *IngestionPipeline) linkAndUpsert(
	ctx context.Context,
	extractions []*domain.Extraction,
) (map[string][]string, error) {
	linked := make(map[string][]string)

	for _, ex := range extractions {
		uriBySurface := make(map[string]string, len(ex.Entities))
		chunkURIs := make([]string, 0, len(ex.Entities))

		for _, mention := range ex.Entities {
			uri, err := p.linker.Resolve(ctx, mention, chunkURIs, true)
			if err != nil {
				return nil, fmt.Errorf("resolve %q: %w", mention.Surface, err)
			}

			now := p.now()
			merged, err := p.graph.UpsertEntity(ctx, domain.Entity{
				URI:        uri,
				Type:       mention.Type,
				Label:      mention.Surface,
				Aliases:    []string{domain.NormaliseAlias(mention.Surface)},
				Confidence: mention.Confidence,
				CreatedAt:  now,
				UpdatedAt:  now,
			})
			if err != nil {
				return nil, fmt.Errorf("upsert entity %s: %w", uri, err)
			}

			uriBySurface[domain.NormaliseAlias(mention.Surface)] = merged.URI
			chunkURIs = append(chunkURIs, merged.URI)
			linked[ex.ChunkID] = append(linked[ex.ChunkID], merged.URI)
		}

		for _, rm := range ex.Relations {
			subj, okS := uriBySurface[domain.NormaliseAlias(rm.Subject)]
			obj, okO := uriBySurface[domain.NormaliseAlias(rm.Object)]
			if !okS || !okO {
				continue
			}

			rel := domain.Relation{
				ID:        domain.RelationID(subj, rm.Predicate, obj),
				Subject:   subj,
				Predicate: rm.Predicate,
				Object:    obj,
				Provenance: []domain.Provenance{{
					ChunkID:    ex.ChunkID,
					Extractor:  p.extractor.Name(),
					Confidence: rm.Confidence,
					ObservedAt: p.now(),
				}},
			}
			merged, err := p.graph.UpsertRelation(ctx, rel)
			if err != nil {
				return nil, fmt.Errorf("upsert relation %s: %w", rel.ID, err)
			}
			linked[ex.ChunkID] = append(linked[ex.ChunkID], merged.ID)
		}
	}

	return linked, nil
}

// embedChunks computes and stores embeddings with bounded concurrency
// and rate limiting. Returns the number of chunks that failed; those
// keep a nil embedding for a later Backfill pass.
func (p *IngestionPipeline) embedChunks(ctx context.Context, chunks []domain.Chunk) int {
	if p.embedder == nil || len(chunks) == 0 {
		return 0
	}

	sem := make(chan struct{}, p.embedWorkers)
	var wg sync.WaitGroup
	var mu sync.Mutex
	failed := 0

	for i := range chunks {
		chunk := chunks[i]
		wg.Add(1)
		sem <- struct{}{}

		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			if err := p.embedOne(ctx, chunk); err != nil {
				logger.Debug("Embed %s failed: %v", chunk.ID, err)
				mu.Lock()
				failed++
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	return failed
}

// embedOne rate-limits, embeds and stores a single chunk, then mirrors
// the vector into the index.
func (p *IngestionPipeline) embedOne(ctx context.Context, chunk domain.Chunk) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}

	embedding, err := p.embedder.Embed(ctx, chunk.Content)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTransient, err)
	}

	if dims := p.embedder.Dimensions(); dims > 0 && len(embedding) != dims {
		return fmt.Errorf("%w: got %d, want %d", domain.ErrDimensionMismatch, len(embedding), dims)
	}

	if err := p.docStore.UpdateChunkEmbedding(ctx, chunk.ID, embedding); err != nil {
		return fmt.Errorf("store embedding: %w", err)
	}

	if p.vectorIndex != nil {
		meta := map[string]string{"document_id": chunk.DocumentID}
		if err := p.vectorIndex.Add(ctx, chunk.ID, embedding, meta); err != nil {
			return fmt.Errorf("add vector: %w", err)
		}
	}

	return nil
}

// Backfill re-embeds chunks left without an embedding by earlier
// failures, up to limit. Returns how many chunks were embedded.
func (p *IngestionPipeline) Backfill(ctx context.Context, limit int) (int, error) {
	if p.embedder == nil {
		return 0, domain.ErrEmbeddingUnavailable
	}
	if limit <= 0 {
		limit = 100
	}

	chunks, err := p.docStore.ChunksWithoutEmbedding(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("list pending chunks: %w", err)
	}

	done := 0
	for _, chunk := range chunks {
		if err := p.embedOne(ctx, chunk); err != nil {
			logger.Debug("Backfill %s failed: %v", chunk.ID, err)
			continue
		}
		done++
	}

	logger.Info("Backfill: embedded %d of %d pending chunks", done, len(chunks))
	return done, nil
}
