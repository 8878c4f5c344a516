// Package cli implements the kgrag command-line interface.
//
// Commands depend only on the driving ports; concrete services are
// injected at startup via SetServices. This keeps the CLI testable
// with stub services and free of adapter imports.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/kgraglabs/kgrag/internal/core/ports/driven"
	"github.com/kgraglabs/kgrag/internal/core/ports/driving"
	"github.com/kgraglabs/kgrag/internal/logger"
)

// Injected at startup. Commands check for nil and fail with a clear
// message rather than panicking.
var (
	ingestPipeline driving.IngestionPipeline
	queryService   driving.QueryService
	sessionService driving.SessionService
	configStore    driven.ConfigStore

	// Store handles backing the MCP server's resources.
	docStore   driven.DocumentStore
	graphStore driven.GraphStore
)

var (
	version = "dev"
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "kgrag",
	Short: "Graph and vector memory for LLM agents",
	Long: `kgrag maintains a knowledge graph and a vector index over your
documents and answers questions from both.

Ingestion extracts entities and relations into the graph, chunks and
embeds the text, and cross-indexes chunks against the facts they
support. Queries fuse subgraph traversal with vector similarity and
generate grounded, cited answers.`,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.SetVerbose(verbose)
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose pipeline output")
}

// Services bundles everything the commands need.
type Services struct {
	Ingest  driving.IngestionPipeline
	Query   driving.QueryService
	Session driving.SessionService
	Config  driven.ConfigStore

	// Documents and Graph are optional; they back MCP resources.
	Documents driven.DocumentStore
	Graph     driven.GraphStore
}

// SetServices injects the driving-side dependencies. Called once from
// main before Execute.
func SetServices(s Services) {
	ingestPipeline = s.Ingest
	queryService = s.Query
	sessionService = s.Session
	configStore = s.Config
	docStore = s.Documents
	graphStore = s.Graph
}

// SetVersion sets the version string reported by the version command.
func SetVersion(v string) {
	if v != "" {
		version = v
	}
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
