package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kgraglabs/kgrag/internal/adapters/driven/storage/memory"
	vectormem "github.com/kgraglabs/kgrag/internal/adapters/driven/vector/memory"
	"github.com/kgraglabs/kgrag/internal/chunker"
	"github.com/kgraglabs/kgrag/internal/core/domain"
	"github.com/kgraglabs/kgrag/internal/core/ports/driven"
	"github.com/kgraglabs/kgrag/internal/normalisers/plaintext"
)

type ingestFixture struct {
	pipeline *IngestionPipeline
	docStore *memory.DocumentStore
	graph    *memory.GraphStore
	xref     *memory.CrossIndex
	vectors  *vectormem.Index
	embedder *mockEmbedder
}

func newIngestFixture(t *testing.T, extractor driven.Extractor, opts ...IngestOption) *ingestFixture {
	t.Helper()

	docStore := memory.NewDocumentStore()
	graph := memory.NewGraphStore()
	xref := memory.NewCheckedCrossIndex(docStore)
	vectors := vectormem.NewIndex()
	embedder := newMockEmbedder()

	pipeline := NewIngestionPipeline(
		docStore, graph, vectors, xref, embedder, extractor,
		[]driven.Normaliser{plaintext.New()},
		opts...,
	)

	return &ingestFixture{
		pipeline: pipeline,
		docStore: docStore,
		graph:    graph,
		xref:     xref,
		vectors:  vectors,
		embedder: embedder,
	}
}

func writeDoc(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// drain collects every event and returns them with the terminal one.
func drain(t *testing.T, events <-chan domain.IngestEvent) ([]domain.IngestEvent, domain.IngestEvent) {
	t.Helper()
	var all []domain.IngestEvent
	for ev := range events {
		all = append(all, ev)
	}
	require.NotEmpty(t, all)
	terminal := all[len(all)-1]
	require.True(t, terminal.Terminal, "last event must be terminal")
	return all, terminal
}

func orgExtractor() *mockExtractor {
	return &mockExtractor{
		entities: []domain.EntityMention{
			{Surface: "Acme", Type: domain.EntityOrganization, Confidence: 0.9},
			{Surface: "Widget", Type: domain.EntityProduct, Confidence: 0.8},
		},
		relations: []domain.RelationMention{
			{Subject: "Acme", Predicate: "manufactures", Object: "Widget", Confidence: 0.85},
		},
	}
}

func TestIngest_FullPipeline(t *testing.T) {
	f := newIngestFixture(t, orgExtractor())
	path := writeDoc(t, "acme.txt", "Acme announced the Widget last quarter.")

	events, err := f.pipeline.Ingest(context.Background(), path, false)
	require.NoError(t, err)
	all, terminal := drain(t, events)

	assert.Equal(t, domain.IngestSucceeded, terminal.Status)
	assert.Equal(t, 1, terminal.Chunks)
	assert.Equal(t, 2, terminal.Entities)
	assert.Equal(t, 1, terminal.Relations)
	assert.Zero(t, terminal.ChunksFailed)

	// Every stage reported before the terminal event.
	stages := make(map[domain.IngestStage]bool)
	for _, ev := range all {
		stages[ev.Stage] = true
	}
	for _, stage := range []domain.IngestStage{
		domain.StageNormalise, domain.StageChunk, domain.StageExtract,
		domain.StageLink, domain.StageUpsert, domain.StageCrossIndex, domain.StageEmbed,
	} {
		assert.True(t, stages[stage], "missing stage %s", stage)
	}

	ctx := context.Background()
	entities, err := f.graph.EntityCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, entities)

	relations, err := f.graph.RelationCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, relations)

	// Chunks carry embeddings and are mirrored into the vector index.
	chunks, err := f.docStore.GetChunks(ctx, terminal.DocumentID)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.NotNil(t, chunks[0].Embedding)
	assert.Equal(t, 3, f.vectors.Dimensions())
}

func TestIngest_CrossIndexReferentialIntegrity(t *testing.T) {
	f := newIngestFixture(t, orgExtractor())
	path := writeDoc(t, "acme.txt", "Acme announced the Widget last quarter.")
	ctx := context.Background()

	events, err := f.pipeline.Ingest(ctx, path, false)
	require.NoError(t, err)
	_, terminal := drain(t, events)
	require.Equal(t, domain.IngestSucceeded, terminal.Status)

	chunks, err := f.docStore.GetChunks(ctx, terminal.DocumentID)
	require.NoError(t, err)

	// Every cross-index entry resolves on both sides.
	for _, chunk := range chunks {
		nodeIDs, err := f.xref.EntitiesFor(ctx, chunk.ID)
		require.NoError(t, err)
		require.NotEmpty(t, nodeIDs)

		for _, nodeID := range nodeIDs {
			back, err := f.xref.ChunksFor(ctx, nodeID)
			require.NoError(t, err)
			assert.Contains(t, back, chunk.ID)
		}
	}

	// Deleting a chunk removes dependent entries, never leaving
	// dangling provenance.
	require.NoError(t, f.xref.DeleteChunk(ctx, chunks[0].ID))
	nodeIDs, err := f.xref.EntitiesFor(ctx, chunks[0].ID)
	require.NoError(t, err)
	assert.Empty(t, nodeIDs)

	count, err := f.xref.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestIngest_IdempotentReingestion(t *testing.T) {
	f := newIngestFixture(t, orgExtractor())
	path := writeDoc(t, "acme.txt", "Acme announced the Widget last quarter.")
	ctx := context.Background()

	events, err := f.pipeline.Ingest(ctx, path, false)
	require.NoError(t, err)
	_, first := drain(t, events)
	require.Equal(t, domain.IngestSucceeded, first.Status)

	chunksBefore, err := f.docStore.GetChunks(ctx, first.DocumentID)
	require.NoError(t, err)
	entitiesBefore, _ := f.graph.EntityCount(ctx)
	relationsBefore, _ := f.graph.RelationCount(ctx)
	xrefBefore, _ := f.xref.Count(ctx)

	// Unchanged content short-circuits on the hash.
	events, err = f.pipeline.Ingest(ctx, path, false)
	require.NoError(t, err)
	_, second := drain(t, events)
	assert.Equal(t, domain.IngestSkipped, second.Status)

	// Force re-runs the pipeline but counts stay identical.
	events, err = f.pipeline.Ingest(ctx, path, true)
	require.NoError(t, err)
	_, forced := drain(t, events)
	assert.Equal(t, domain.IngestSucceeded, forced.Status)

	chunksAfter, err := f.docStore.GetChunks(ctx, first.DocumentID)
	require.NoError(t, err)
	require.Len(t, chunksAfter, len(chunksBefore))
	for i := range chunksBefore {
		assert.Equal(t, chunksBefore[i].ID, chunksAfter[i].ID)
	}

	entitiesAfter, _ := f.graph.EntityCount(ctx)
	relationsAfter, _ := f.graph.RelationCount(ctx)
	xrefAfter, _ := f.xref.Count(ctx)
	assert.Equal(t, entitiesBefore, entitiesAfter)
	assert.Equal(t, relationsBefore, relationsAfter)
	assert.Equal(t, xrefBefore, xrefAfter)
}

func TestIngest_ChangedContentBumpsVersion(t *testing.T) {
	f := newIngestFixture(t, orgExtractor())
	path := writeDoc(t, "acme.txt", "Acme announced the Widget.")
	ctx := context.Background()

	events, err := f.pipeline.Ingest(ctx, path, false)
	require.NoError(t, err)
	_, terminal := drain(t, events)
	require.Equal(t, domain.IngestSucceeded, terminal.Status)

	require.NoError(t, os.WriteFile(path, []byte("Acme recalled the Widget."), 0o600))

	events, err = f.pipeline.Ingest(ctx, path, false)
	require.NoError(t, err)
	_, terminal = drain(t, events)
	require.Equal(t, domain.IngestSucceeded, terminal.Status)

	doc, err := f.docStore.GetDocumentByURI(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 2, doc.Version)
}

func TestIngest_ChangedContentDropsStaleProvenance(t *testing.T) {
	f := newIngestFixture(t, orgExtractor())
	path := writeDoc(t, "acme.txt", "Acme announced the Widget.")
	ctx := context.Background()

	events, err := f.pipeline.Ingest(ctx, path, false)
	require.NoError(t, err)
	_, first := drain(t, events)
	require.Equal(t, domain.IngestSucceeded, first.Status)

	oldChunks, err := f.docStore.GetChunks(ctx, first.DocumentID)
	require.NoError(t, err)
	require.NotEmpty(t, oldChunks)

	require.NoError(t, os.WriteFile(path, []byte("Acme recalled the Widget after reports."), 0o600))

	events, err = f.pipeline.Ingest(ctx, path, false)
	require.NoError(t, err)
	_, second := drain(t, events)
	require.Equal(t, domain.IngestSucceeded, second.Status)

	newChunks, err := f.docStore.GetChunks(ctx, second.DocumentID)
	require.NoError(t, err)
	require.NotEmpty(t, newChunks)
	newIDs := make(map[string]bool, len(newChunks))
	for _, c := range newChunks {
		newIDs[c.ID] = true
	}

	// Replaced chunks keep no cross-index entries or vectors behind.
	for _, old := range oldChunks {
		if newIDs[old.ID] {
			continue
		}
		nodes, err := f.xref.EntitiesFor(ctx, old.ID)
		require.NoError(t, err)
		assert.Empty(t, nodes, "stale chunk %s still cross-indexed", old.ID)

		hits, err := f.vectors.Search(ctx, []float32{1, 0, 0}, len(oldChunks)+len(newChunks), nil)
		require.NoError(t, err)
		for _, hit := range hits {
			assert.NotEqual(t, old.ID, hit.ID, "stale chunk %s still in vector index", old.ID)
		}
	}

	// Every surviving provenance pointer resolves to a stored chunk.
	for _, c := range newChunks {
		nodes, err := f.xref.EntitiesFor(ctx, c.ID)
		require.NoError(t, err)
		for _, node := range nodes {
			chunkIDs, err := f.xref.ChunksFor(ctx, node)
			require.NoError(t, err)
			for _, id := range chunkIDs {
				_, err := f.docStore.GetChunk(ctx, id)
				assert.NoError(t, err, "cross-index references missing chunk %s", id)
			}
		}
	}
}

func TestIngest_AliasConvergence(t *testing.T) {
	extractor := &mockExtractor{
		entities: []domain.EntityMention{
			{Surface: "IBM", Type: domain.EntityOrganization, Confidence: 0.9},
			{Surface: "International Business Machines", Type: domain.EntityOrganization, Confidence: 0.9},
		},
	}
	// The window is sized so the chunk boundary falls between the two
	// sentences and each surface form lands intact in its own chunk.
	f := newIngestFixture(t, extractor,
		WithChunker(chunker.New(chunker.WithWindow(34), chunker.WithOverlap(0))))
	ctx := context.Background()

	// Configured alias mapping: both surface forms belong to one
	// pre-registered entity.
	seeded, err := f.graph.UpsertEntity(ctx, domain.Entity{
		URI:        "kgrag://entity/organization/ibm",
		Type:       domain.EntityOrganization,
		Label:      "IBM",
		Aliases:    []string{"ibm", "international business machines"},
		Confidence: 0.95,
		CreatedAt:  time.Now(),
	})
	require.NoError(t, err)

	path := writeDoc(t, "ibm.txt",
		"IBM shipped a mainframe in 1964.\n\nInternational Business Machines was founded in 1911.")

	events, err := f.pipeline.Ingest(ctx, path, false)
	require.NoError(t, err)
	_, terminal := drain(t, events)
	require.Equal(t, domain.IngestSucceeded, terminal.Status)

	// Both mentions converged on the seeded URI.
	count, err := f.graph.EntityCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	chunks, err := f.xref.ChunksFor(ctx, seeded.URI)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(chunks), 2,
		"each mention chunk must cross-index to the one entity")
}

func TestIngest_EmbedFailureIsolatedAndBackfilled(t *testing.T) {
	content := "Acme announced the Widget last quarter."
	f := newIngestFixture(t, orgExtractor())
	f.embedder.failOn[content] = true

	path := writeDoc(t, "acme.txt", content)
	ctx := context.Background()

	events, err := f.pipeline.Ingest(ctx, path, false)
	require.NoError(t, err)
	_, terminal := drain(t, events)

	// Structural writes survive the embedding failure.
	assert.Equal(t, domain.IngestSucceeded, terminal.Status)
	assert.Equal(t, 1, terminal.ChunksFailed)

	pending, err := f.docStore.ChunksWithoutEmbedding(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	// Backend recovers; backfill picks up the stragglers.
	delete(f.embedder.failOn, content)
	embedded, err := f.pipeline.Backfill(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, embedded)

	pending, err = f.docStore.ChunksWithoutEmbedding(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestIngest_MalformedInputRejected(t *testing.T) {
	f := newIngestFixture(t, orgExtractor())
	path := writeDoc(t, "bad.txt", string([]byte{0xff, 0xfe, 0x00, 0x80}))

	events, err := f.pipeline.Ingest(context.Background(), path, false)
	require.NoError(t, err)
	_, terminal := drain(t, events)

	assert.Equal(t, domain.IngestFailed, terminal.Status)
	assert.Equal(t, domain.ClassMalformed, terminal.Class)
}

func TestIngest_ConfidenceThresholdDropsMentions(t *testing.T) {
	extractor := &mockExtractor{
		entities: []domain.EntityMention{
			{Surface: "Acme", Type: domain.EntityOrganization, Confidence: 0.9},
			{Surface: "rumour", Type: domain.EntityConcept, Confidence: 0.2},
		},
	}
	f := newIngestFixture(t, extractor, WithConfidenceThreshold(0.5))
	path := writeDoc(t, "acme.txt", "Acme dismissed the rumour.")
	ctx := context.Background()

	events, err := f.pipeline.Ingest(ctx, path, false)
	require.NoError(t, err)
	_, terminal := drain(t, events)
	require.Equal(t, domain.IngestSucceeded, terminal.Status)

	count, err := f.graph.EntityCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestIngest_EmptyRefRejected(t *testing.T) {
	f := newIngestFixture(t, orgExtractor())
	_, err := f.pipeline.Ingest(context.Background(), "  ", false)
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}
