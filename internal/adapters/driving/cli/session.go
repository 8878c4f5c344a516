package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var sessionExpireOlderThan time.Duration

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage conversation sessions",
	Long: `Inspect and expire session memory. Sessions hold the ordered turn
log for a conversation thread and expire on a sliding TTL measured
from the last write.`,
}

var sessionShowCmd = &cobra.Command{
	Use:   "show [session-id]",
	Short: "Show a session's turn log",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionShow,
}

var sessionExpireCmd = &cobra.Command{
	Use:   "expire",
	Short: "Delete expired sessions",
	Long: `Deletes sessions whose last write is older than the TTL. Use
--older-than to override the configured TTL for this sweep.`,
	RunE: runSessionExpire,
}

func init() {
	sessionExpireCmd.Flags().DurationVar(&sessionExpireOlderThan, "older-than", 0, "expire sessions idle longer than this (0 = configured TTL)")

	sessionCmd.AddCommand(sessionShowCmd)
	sessionCmd.AddCommand(sessionExpireCmd)
	rootCmd.AddCommand(sessionCmd)
}

func runSessionShow(cmd *cobra.Command, args []string) error {
	if sessionService == nil {
		return errors.New("session service not configured")
	}

	sessionID := args[0]
	ctx := context.Background()

	state, err := sessionService.Load(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}

	cmd.Printf("Session: %s\n", state.ID)
	cmd.Printf("  Created:    %s\n", state.CreatedAt.Format("2006-01-02 15:04:05"))
	cmd.Printf("  Last write: %s\n", state.LastWrite.Format("2006-01-02 15:04:05"))
	cmd.Printf("  Turns:      %d\n", len(state.Turns))
	cmd.Println()

	for _, turn := range state.Turns {
		cmd.Printf("[%d] %s (%s)\n", turn.Seq, turn.Role, turn.CreatedAt.Format("15:04:05"))
		cmd.Printf("    %s\n", turn.Content)
	}

	if len(state.Scratch) > 0 {
		cmd.Println()
		cmd.Println("Scratch:")
		for k, v := range state.Scratch {
			cmd.Printf("  %s: %s\n", k, v)
		}
	}

	return nil
}

func runSessionExpire(cmd *cobra.Command, _ []string) error {
	if sessionService == nil {
		return errors.New("session service not configured")
	}

	ctx := context.Background()
	n, err := sessionService.Expire(ctx, sessionExpireOlderThan)
	if err != nil {
		return fmt.Errorf("failed to expire sessions: %w", err)
	}

	cmd.Printf("Expired %d sessions.\n", n)
	return nil
}
