package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/kgraglabs/kgrag/internal/core/domain"
)

// watchSettle is how long a file must stay quiet before it is
// re-ingested. Editors often emit several write events per save.
const watchSettle = 500 * time.Millisecond

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Watch a directory and ingest files as they change",
	Long: `Watches a directory and re-runs ingestion whenever a file is
created or written. Unchanged content is still skipped by the content
hash check, so rapid saves do not redo extraction.

Runs until interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	if ingestPipeline == nil {
		return errors.New("ingestion pipeline not configured")
	}

	dir := args[0]
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("cannot watch %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("cannot watch %s: not a directory", dir)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close() //nolint:errcheck // Best-effort cleanup

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd.Printf("Watching %s. Press Ctrl+C to stop.\n", dir)

	var mu sync.Mutex
	pending := make(map[string]*time.Timer)

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if !watchable(ev.Name) {
				continue
			}
			path := ev.Name
			mu.Lock()
			if t, exists := pending[path]; exists {
				t.Stop()
			}
			pending[path] = time.AfterFunc(watchSettle, func() {
				mu.Lock()
				delete(pending, path)
				mu.Unlock()
				ingestWatched(ctx, cmd, path)
			})
			mu.Unlock()

		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			cmd.Printf("watch error: %v\n", werr)
		}
	}
}

// watchable filters out hidden files and editor temp files.
func watchable(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || strings.HasPrefix(base, "#") {
		return false
	}
	if strings.HasSuffix(base, "~") || strings.HasSuffix(base, ".swp") || strings.HasSuffix(base, ".tmp") {
		return false
	}
	return true
}

func ingestWatched(ctx context.Context, cmd *cobra.Command, path string) {
	events, err := ingestPipeline.Ingest(ctx, path, false)
	if err != nil {
		cmd.Printf("%s: %v\n", path, err)
		return
	}

	for ev := range events {
		if !ev.Terminal {
			continue
		}
		switch ev.Status {
		case domain.IngestSkipped:
			cmd.Printf("%s: unchanged\n", path)
		case domain.IngestFailed:
			cmd.Printf("%s: failed: %s\n", path, ev.Err)
		default:
			cmd.Printf("%s: ingested (%d chunks, %d entities, %d relations)\n",
				path, ev.Chunks, ev.Entities, ev.Relations)
		}
	}
}
