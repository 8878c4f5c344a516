package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var backfillLimit int

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Re-embed chunks whose embedding previously failed",
	Long: `Finds chunks left without an embedding by earlier ingestion runs
(for example because the embedding provider was unreachable) and
embeds them now.`,
	RunE: runBackfill,
}

func init() {
	backfillCmd.Flags().IntVarP(&backfillLimit, "limit", "n", 100, "maximum number of chunks to embed")
	rootCmd.AddCommand(backfillCmd)
}

func runBackfill(cmd *cobra.Command, _ []string) error {
	if ingestPipeline == nil {
		return errors.New("ingestion pipeline not configured")
	}

	ctx := context.Background()
	n, err := ingestPipeline.Backfill(ctx, backfillLimit)
	if err != nil {
		return fmt.Errorf("backfill failed: %w", err)
	}

	if n == 0 {
		cmd.Println("No chunks waiting for embeddings.")
		return nil
	}

	cmd.Printf("Embedded %d chunks.\n", n)
	return nil
}
