package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kgraglabs/kgrag/internal/core/domain"
)

var ingestForce bool

var ingestCmd = &cobra.Command{
	Use:   "ingest [path]",
	Short: "Ingest a document into the knowledge base",
	Long: `Runs the full ingestion pipeline on a document: normalisation,
chunking, entity and relation extraction, graph upsert, embedding and
cross-indexing.

Unchanged documents (same content hash) are skipped unless --force is
given. Chunks whose embedding fails are recorded and can be retried
later with 'kgrag backfill'.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().BoolVarP(&ingestForce, "force", "f", false, "re-ingest even when content is unchanged")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	if ingestPipeline == nil {
		return errors.New("ingestion pipeline not configured")
	}

	ctx := context.Background()
	events, err := ingestPipeline.Ingest(ctx, args[0], ingestForce)
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	for ev := range events {
		if !ev.Terminal {
			cmd.Printf("  %-12s ok\n", ev.Stage)
			continue
		}
		if err := renderIngestResult(cmd, ev); err != nil {
			return err
		}
	}

	return nil
}

func renderIngestResult(cmd *cobra.Command, ev domain.IngestEvent) error {
	switch ev.Status {
	case domain.IngestSkipped:
		cmd.Printf("Skipped %s: content unchanged (use --force to re-ingest)\n", ev.URI)
	case domain.IngestFailed:
		if ev.Stage != "" {
			return fmt.Errorf("ingestion failed at %s: %s", ev.Stage, ev.Err)
		}
		return fmt.Errorf("ingestion failed: %s", ev.Err)
	default:
		cmd.Printf("Ingested %s\n", ev.URI)
		cmd.Printf("  Chunks:    %d\n", ev.Chunks)
		cmd.Printf("  Entities:  %d\n", ev.Entities)
		cmd.Printf("  Relations: %d\n", ev.Relations)
		if ev.ChunksFailed > 0 {
			cmd.Printf("  %d chunks have no embedding yet; run 'kgrag backfill' to retry.\n", ev.ChunksFailed)
		}
	}
	return nil
}
