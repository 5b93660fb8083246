package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

// watchDebounce collapses the burst of events an editor emits on save.
const watchDebounce = 100 * time.Millisecond

func newSyncCmd(a *app) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Bring the physical tables in line with the schema",
		Long: "Create missing tables, add missing columns and rebuild tables whose\n" +
			"column types or nullability changed. With --watch, run again every time\n" +
			"the schema or mapping file changes.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.syncOnce(cmd); err != nil {
				return err
			}
			if !watch {
				return nil
			}
			return a.watchDefinitions(cmd.Context(), cmd)
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "synchronize again when the definitions change")
	return cmd
}

func (a *app) syncOnce(cmd *cobra.Command) error {
	eng, err := a.openEngine(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer eng.Close()
	return a.renderer(cmd.OutOrStdout()).syncResults(eng.Synced())
}

// watchDefinitions re-runs sync after the schema or mapping file is written,
// until ctx is done. A failing run is logged and the watch goes on.
func (a *app) watchDefinitions(ctx context.Context, cmd *cobra.Command) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return sysErr(fmt.Errorf("create watcher: %w", err))
	}
	defer watcher.Close()

	watched := map[string]bool{a.settings.SchemaFile: true}
	if a.settings.MappingFile != "" {
		watched[a.settings.MappingFile] = true
	}
	// Editors often replace the file on save, so watch directories.
	for file := range watched {
		if err := watcher.Add(filepath.Dir(file)); err != nil {
			return sysErr(fmt.Errorf("watch %s: %w", filepath.Dir(file), err))
		}
	}
	a.logger.Info("watching definitions", "schema", a.settings.SchemaFile, "mapping", a.settings.MappingFile)

	var debounce *time.Timer
	fire := make(chan struct{}, 1)
	defer func() {
		if debounce != nil {
			debounce.Stop()
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
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 || !watched[filepath.Clean(event.Name)] {
				continue
			}
			a.logger.Debug("definition changed", "file", event.Name, "op", event.Op.String())
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(watchDebounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})

		case <-fire:
			if err := a.syncOnce(cmd); err != nil {
				a.logger.Error("sync failed", "error", err)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			a.logger.Warn("watcher error", "error", err)
		}
	}
}
