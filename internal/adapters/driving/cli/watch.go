package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/ragctx/internal/adapters/driving/watch"
)

var (
	watchLanguage    string
	watchCollections []string
	watchDebounce    = watch.DefaultDebounce
)

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Keep a directory's text files ingested",
	Long: `Ingests every .txt and .md file under the directory, then watches it.
Changed files are re-ingested, new files are uploaded and deleted files
are removed from the index. Runs until interrupted.`,
	Args:        cobra.ExactArgs(1),
	Annotations: map[string]string{resumeIngest: "true"},
	RunE:        runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchLanguage, "language", "", "language code for uploaded documents")
	watchCmd.Flags().StringSliceVarP(&watchCollections, "collection", "c", nil, "collection tags for uploaded documents")
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", watch.DefaultDebounce, "quiet period before a change is applied")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	if ingestService == nil || documentService == nil {
		return errors.New("ingest service not configured")
	}

	root := args[0]
	ctx := cmd.Context()

	syncer := watch.NewSyncer(ingestService, documentService, watch.Options{
		Language:    watchLanguage,
		Collections: watchCollections,
	})
	if err := syncer.Load(ctx); err != nil {
		return err
	}

	watcher := watch.New(root, watchDebounce)
	defer watcher.Close()

	changes, err := watcher.Watch(ctx)
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", root, err)
	}

	if err := syncer.Reconcile(ctx, root); err != nil {
		return fmt.Errorf("failed to sync %s: %w", root, err)
	}
	cmd.Printf("Watching %s (Ctrl+C to stop)\n", root)

	for change := range changes {
		action, err := syncer.Apply(ctx, change)
		if err != nil {
			cmd.PrintErrf("%s: %v\n", change.Path, err)
			continue
		}
		if action != watch.ActionIgnored && action != watch.ActionUnchanged {
			cmd.Printf("%s %s\n", action, change.Path)
		}
	}
	return nil
}
