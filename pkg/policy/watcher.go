package policy

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/pragati-platform/identity/pkg/observability"
)

// WatchFile hot-reloads the rule table whenever the policy file
// changes. A file that fails to parse is logged and skipped; the
// previous table stays active, so a botched edit degrades to "stale
// policy", never to "no policy". Returns when ctx is done.
func WatchFile(ctx context.Context, path string, table *Table, logger *observability.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create policy watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory, not the file: editors and config
	// management tools typically replace the file via rename.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch policy directory: %w", err)
	}

	target := filepath.Clean(path)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			fresh, err := LoadFile(path)
			if err != nil {
				logger.WithError(err).Warn("policy reload failed, keeping previous rules")
				continue
			}
			table.Replace(fresh)
			logger.WithField("rules", len(fresh.Paths())).Info("policy rules reloaded")
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.WithError(err).Warn("policy watcher error")
		}
	}
}
