// Command kgrag is the entry point for the kgrag CLI.
//
// It reads configuration from ~/.kgrag/config.toml, wires the storage,
// graph, vector, embedding and LLM adapters accordingly, and hands the
// assembled services to the command layer.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	ristrettocache "github.com/kgraglabs/kgrag/internal/adapters/driven/cache/ristretto"
	"github.com/kgraglabs/kgrag/internal/adapters/driven/config/file"
	ollamaembed "github.com/kgraglabs/kgrag/internal/adapters/driven/embedding/ollama"
	openaiembed "github.com/kgraglabs/kgrag/internal/adapters/driven/embedding/openai"
	llmextract "github.com/kgraglabs/kgrag/internal/adapters/driven/extractor/llm"
	"github.com/kgraglabs/kgrag/internal/adapters/driven/extractor/rules"
	neo4jgraph "github.com/kgraglabs/kgrag/internal/adapters/driven/graph/neo4j"
	anthropicllm "github.com/kgraglabs/kgrag/internal/adapters/driven/llm/anthropic"
	ollamallm "github.com/kgraglabs/kgrag/internal/adapters/driven/llm/ollama"
	openaillm "github.com/kgraglabs/kgrag/internal/adapters/driven/llm/openai"
	"github.com/kgraglabs/kgrag/internal/adapters/driven/storage/memory"
	"github.com/kgraglabs/kgrag/internal/adapters/driven/storage/sqlite"
	"github.com/kgraglabs/kgrag/internal/adapters/driven/vector/chromem"
	vectormem "github.com/kgraglabs/kgrag/internal/adapters/driven/vector/memory"
	"github.com/kgraglabs/kgrag/internal/adapters/driving/cli"
	"github.com/kgraglabs/kgrag/internal/chunker"
	"github.com/kgraglabs/kgrag/internal/core/ports/driven"
	"github.com/kgraglabs/kgrag/internal/core/services"
	"github.com/kgraglabs/kgrag/internal/normalisers/markdown"
	"github.com/kgraglabs/kgrag/internal/normalisers/plaintext"
)

// version is overridden at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("resolving home directory: %w", err)
	}
	dataDir := filepath.Join(home, ".kgrag")

	cfg, err := file.NewConfigStore(dataDir)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	svcs, cleanup, err := buildServices(cfg, dataDir)
	if err != nil {
		return err
	}
	defer cleanup()

	cli.SetVersion(version)
	cli.SetServices(svcs)
	return cli.Execute()
}

// buildServices assembles the adapter stack per configuration and wires
// the core services. The returned cleanup closes every opened backend.
//
//nolint:gocyclo // Flat adapter selection, one switch per concern
func buildServices(cfg driven.ConfigStore, dataDir string) (cli.Services, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (cli.Services, func(), error) {
		cleanup()
		return cli.Services{}, func() {}, err
	}

	// Storage: documents, cross-index and sessions share a backend.
	var (
		docs     driven.DocumentStore
		xref     driven.CrossIndex
		sessions driven.SessionStore
	)
	switch backend := cfg.GetString("storage.backend"); backend {
	case "", "sqlite":
		store, err := sqlite.NewStore(dataDir)
		if err != nil {
			return fail(fmt.Errorf("opening sqlite store: %w", err))
		}
		closers = append(closers, func() { store.Close() }) //nolint:errcheck
		docs = store.DocumentStore()
		xref = store.CrossIndex()
		sessions = store.SessionStore()
	case "memory":
		memDocs := memory.NewDocumentStore()
		docs = memDocs
		xref = memory.NewCheckedCrossIndex(memDocs)
		sessions = memory.NewSessionStore()
	default:
		return fail(fmt.Errorf("unknown storage.backend: %s", backend))
	}

	// Graph.
	var graph driven.GraphStore
	switch backend := cfg.GetString("graph.backend"); backend {
	case "neo4j":
		uri := cfg.GetString("graph.uri")
		if uri == "" {
			uri = "bolt://localhost:7687"
		}
		password := os.Getenv("KGRAG_NEO4J_PASSWORD")
		store, err := neo4jgraph.NewStore(context.Background(), uri,
			cfg.GetString("graph.username"), password,
			neo4jgraph.WithDatabase(cfg.GetString("graph.database")))
		if err != nil {
			return fail(fmt.Errorf("connecting to neo4j: %w", err))
		}
		closers = append(closers, func() { store.Close() }) //nolint:errcheck
		graph = store
	case "", "memory":
		graph = memory.NewGraphStore()
	default:
		return fail(fmt.Errorf("unknown graph.backend: %s", backend))
	}

	// Vector index.
	var vectors driven.VectorIndex
	switch backend := cfg.GetString("vector.backend"); backend {
	case "", "chromem":
		path := cfg.GetString("vector.path")
		if path == "" {
			path = filepath.Join(dataDir, "vectors")
		}
		index, err := chromem.NewPersistentIndex(path)
		if err != nil {
			return fail(fmt.Errorf("opening vector index: %w", err))
		}
		vectors = index
	case "memory":
		vectors = vectormem.NewIndex()
	default:
		return fail(fmt.Errorf("unknown vector.backend: %s", backend))
	}

	// Embedding provider. Optional: without one, chunks are stored
	// unembedded and picked up by backfill later.
	var embedder driven.EmbeddingService
	switch provider := cfg.GetString("embedding.provider"); provider {
	case "", "ollama":
		embedder = ollamaembed.NewEmbeddingService(ollamaembed.Config{
			BaseURL: cfg.GetString("embedding.base_url"),
			Model:   cfg.GetString("embedding.model"),
		})
	case "openai":
		svc, err := openaiembed.NewEmbeddingService(openaiembed.Config{
			APIKey:  apiKey(cfg, "embedding", "OPENAI_API_KEY"),
			BaseURL: cfg.GetString("embedding.base_url"),
			Model:   cfg.GetString("embedding.model"),
		})
		if err != nil {
			return fail(fmt.Errorf("configuring openai embeddings: %w", err))
		}
		embedder = svc
	case "none":
		// Leave nil.
	default:
		return fail(fmt.Errorf("unknown embedding.provider: %s", provider))
	}

	// LLM provider. Optional: without one, answers degrade to evidence
	// summaries and extraction falls back to rules.
	var llm driven.LLMService
	switch provider := cfg.GetString("llm.provider"); provider {
	case "", "ollama":
		llm = ollamallm.NewLLMService(ollamallm.Config{
			BaseURL: cfg.GetString("llm.base_url"),
			Model:   cfg.GetString("llm.model"),
		})
	case "openai":
		svc, err := openaillm.NewLLMService(openaillm.Config{
			APIKey:  apiKey(cfg, "llm", "OPENAI_API_KEY"),
			BaseURL: cfg.GetString("llm.base_url"),
			Model:   cfg.GetString("llm.model"),
		})
		if err != nil {
			return fail(fmt.Errorf("configuring openai llm: %w", err))
		}
		llm = svc
	case "anthropic":
		svc, err := anthropicllm.NewLLMService(anthropicllm.Config{
			APIKey: apiKey(cfg, "llm", "ANTHROPIC_API_KEY"),
			Model:  cfg.GetString("llm.model"),
		})
		if err != nil {
			return fail(fmt.Errorf("configuring anthropic llm: %w", err))
		}
		llm = svc
	case "none":
		// Leave nil.
	default:
		return fail(fmt.Errorf("unknown llm.provider: %s", provider))
	}

	// Extractor.
	var extractor driven.Extractor
	switch backend := cfg.GetString("extractor.backend"); backend {
	case "", "rules":
		extractor = rules.NewExtractor()
	case "llm":
		if llm == nil {
			return fail(errors.New("extractor.backend llm requires an llm.provider"))
		}
		extractor = llmextract.NewExtractor(llm)
	default:
		return fail(fmt.Errorf("unknown extractor.backend: %s", backend))
	}

	cache, err := ristrettocache.NewCache()
	if err != nil {
		return fail(fmt.Errorf("creating evidence cache: %w", err))
	}
	closers = append(closers, cache.Close)

	normalisers := []driven.Normaliser{plaintext.New(), markdown.New()}

	ingest := services.NewIngestionPipeline(
		docs, graph, vectors, xref, embedder, extractor, normalisers,
		ingestOptions(cfg)...,
	)
	query := services.NewQueryService(docs, graph, vectors, embedder, llm, extractor, xref, cache)
	session := services.NewSessionService(sessions, query, sessionOptions(cfg)...)

	return cli.Services{
		Ingest:    ingest,
		Query:     query,
		Session:   session,
		Config:    cfg,
		Documents: docs,
		Graph:     graph,
	}, cleanup, nil
}

// apiKey reads a provider key from config, falling back to the
// conventional environment variable.
func apiKey(cfg driven.ConfigStore, section, envVar string) string {
	if key := cfg.GetString(section + ".api_key"); key != "" {
		return key
	}
	return os.Getenv(envVar)
}

func ingestOptions(cfg driven.ConfigStore) []services.IngestOption {
	var opts []services.IngestOption

	window := cfg.GetInt("ingest.chunk_size")
	overlap := cfg.GetInt("ingest.chunk_overlap")
	if window > 0 || overlap > 0 {
		var copts []chunker.Option
		if window > 0 {
			copts = append(copts, chunker.WithWindow(window))
		}
		if overlap > 0 {
			copts = append(copts, chunker.WithOverlap(overlap))
		}
		opts = append(opts, services.WithChunker(chunker.New(copts...)))
	}

	if workers := cfg.GetInt("ingest.embed_workers"); workers > 0 {
		opts = append(opts, services.WithEmbedWorkers(workers))
	}

	return opts
}

func sessionOptions(cfg driven.ConfigStore) []services.SessionOption {
	var opts []services.SessionOption

	if minutes := cfg.GetInt("session.ttl_minutes"); minutes > 0 {
		opts = append(opts, services.WithTTL(time.Duration(minutes)*time.Minute))
	}
	if turns := cfg.GetInt("session.history_turns"); turns > 0 {
		opts = append(opts, services.WithHistoryTurns(turns))
	}

	return opts
}
