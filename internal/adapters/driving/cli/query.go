package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kgraglabs/kgrag/internal/core/domain"
)

var (
	queryTopN    int
	queryHops    int
	queryNodes   int
	queryBudget  int
	querySession string
	queryPlan    bool
	queryJSON    bool
)

var queryCmd = &cobra.Command{
	Use:   "query [prompt]",
	Short: "Ask a question over the knowledge base",
	Long: `Answers a natural-language prompt from fused graph and vector
evidence: entities mentioned in the prompt seed a bounded subgraph
traversal, the prompt embedding retrieves similar chunks, and the two
result lists are rank-fused before generation.

Every answer carries provenance. With --session the turn is recorded
in session memory and recent turns inform the answer.`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().IntVarP(&queryTopN, "top-n", "n", 10, "number of chunks from vector retrieval")
	queryCmd.Flags().IntVar(&queryHops, "hops", 2, "subgraph traversal depth")
	queryCmd.Flags().IntVar(&queryNodes, "max-nodes", 50, "subgraph node cap")
	queryCmd.Flags().IntVar(&queryBudget, "budget", 4000, "context budget in characters")
	queryCmd.Flags().StringVarP(&querySession, "session", "s", "", "session ID for conversational memory")
	queryCmd.Flags().BoolVar(&queryPlan, "plan", false, "include a verification query plan")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output the answer as JSON")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	prompt := args[0]

	if queryService == nil {
		return errors.New("query service not configured")
	}

	ctx := context.Background()
	opts := domain.QueryOptions{
		SessionID:     querySession,
		TopN:          queryTopN,
		Hops:          queryHops,
		MaxNodes:      queryNodes,
		ContextBudget: queryBudget,
		WithPlan:      queryPlan,
	}

	var (
		answer *domain.Answer
		err    error
	)
	if querySession != "" {
		if sessionService == nil {
			return errors.New("session service not configured")
		}
		answer, err = sessionService.Ask(ctx, querySession, prompt, opts)
	} else {
		answer, err = queryService.Query(ctx, prompt, opts)
	}
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	if queryJSON {
		return outputAnswerJSON(cmd, answer)
	}

	return outputAnswerText(cmd, answer)
}

func outputAnswerJSON(cmd *cobra.Command, answer *domain.Answer) error {
	data, err := json.MarshalIndent(answer, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal answer: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputAnswerText(cmd *cobra.Command, answer *domain.Answer) error {
	cmd.Println(answer.Text)

	if answer.Partial {
		cmd.Println()
		cmd.Printf("Note: partial answer (%s)\n", answer.Reason)
	}

	if len(answer.Provenance) > 0 {
		cmd.Println()
		cmd.Println("Sources:")
		for _, ref := range answer.Provenance {
			cmd.Printf("  [%s] %s\n", ref.Kind, ref.ID)
		}
	}

	if answer.Plan != "" {
		cmd.Println()
		cmd.Println("Verification plan:")
		cmd.Println(answer.Plan)
	}

	return nil
}
