package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/abdul-hamid-achik/flowspec/packages/store"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

// WatchDebounceDelay is the debounce delay for file watch events
const WatchDebounceDelay = 300 * time.Millisecond

var importWatchFlag bool

var importCmd = &cobra.Command{
	Use:   "import <bundle-file...>",
	Short: "Import definition bundles into the definition store",
	Long: `Import pages, scenarios, testcases, test data, groups and the main
configuration of a user from YAML or JSON bundle files. Existing definitions
with the same identifiers are replaced.

Examples:
  flowspec import --user 42 definitions.yaml
  flowspec import --user 42 pages.yaml scenarios.yaml testcases.yaml
  flowspec import --user 42 --watch definitions.yaml`,
	Args: cobra.MinimumNArgs(1),
	RunE: importCommand,
}

func init() {
	importCmd.Flags().BoolVarP(&importWatchFlag, "watch", "w", false, "Re-import bundle files when they change")
}

func importCommand(cmd *cobra.Command, args []string) error {
	userID, err := requireUser()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	failed := false
	for _, path := range args {
		if err := importFile(ctx, cmd, st, userID, path); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error importing %s: %v\n", path, err)
			failed = true
		}
	}

	if !importWatchFlag {
		if failed {
			return withExitCode(ExitValidationError, errors.New("import failed"))
		}
		return nil
	}
	return watchBundles(ctx, cmd, st, userID, args)
}

func importFile(ctx context.Context, cmd *cobra.Command, st *store.Store, userID, path string) error {
	b, err := store.LoadBundle(path)
	if err != nil {
		return err
	}
	if problems := b.Validate(); len(problems) > 0 {
		for _, p := range problems {
			fmt.Fprintf(cmd.ErrOrStderr(), "  - %s\n", p)
		}
		return fmt.Errorf("%d problem(s) found", len(problems))
	}

	stats, err := st.ImportBundle(ctx, userID, b)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %s: %d pages, %d scenarios, %d testcases, %d test data, %d groups",
		path, stats.Pages, stats.Scenarios, stats.Testcases, stats.TestData, stats.Groups)
	if stats.Main {
		fmt.Fprint(cmd.OutOrStdout(), ", main configuration")
	}
	fmt.Fprintln(cmd.OutOrStdout())
	return nil
}

// watchBundles re-imports a bundle after it has been written. Editors often
// replace files, so the parent directories are watched.
func watchBundles(ctx context.Context, cmd *cobra.Command, st *store.Store, userID string, paths []string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	watched := make(map[string]string)
	dirs := make(map[string]bool)
	for _, path := range paths {
		abs, err := filepath.Abs(path)
		if err != nil {
			return err
		}
		watched[abs] = path
		dir := filepath.Dir(abs)
		if !dirs[dir] {
			if err := watcher.Add(dir); err != nil {
				return fmt.Errorf("failed to watch %s: %w", dir, err)
			}
			dirs[dir] = true
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "\nWatching for changes... (press Ctrl+C to stop)\n\n")

	changed := make(chan string, 1)
	timers := make(map[string]*time.Timer)
	defer func() {
		for _, t := range timers {
			t.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			path, isBundle := watched[filepath.Clean(event.Name)]
			if !isBundle || !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
				continue
			}
			// Debounce: reset timer on each event
			if t, ok := timers[path]; ok {
				t.Stop()
			}
			timers[path] = time.AfterFunc(WatchDebounceDelay, func() {
				select {
				case changed <- path:
				case <-ctx.Done():
				}
			})

		case path := <-changed:
			fmt.Fprintf(cmd.OutOrStdout(), "File changed: %s\n", path)
			if err := importFile(ctx, cmd, st, userID, path); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Error importing %s: %v\n", path, err)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.WarnContext(ctx, "watcher error", "error", err)
		}
	}
}
