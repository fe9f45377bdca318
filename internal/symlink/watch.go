package symlink

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounce window between a canonical-tree change and the resync pass,
// so editor save bursts trigger one pass instead of many.
const debounce = 500 * time.Millisecond

// Watch observes the canonical resource tree and calls resync after
// changes settle, until ctx is cancelled. Only the root and the
// descriptor resources themselves are watched; provider state
// directories under the root (projects, caches) are deliberately not.
func Watch(ctx context.Context, exp Expander, canonicalRoot string, logger *slog.Logger, resync func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	root := exp.Expand(canonicalRoot)
	if err := w.Add(root); err != nil {
		return err
	}
	for _, res := range Resources {
		p := filepath.Join(root, res.Name)
		if res.Source != "" {
			p = exp.Expand(res.Source)
		}
		if info, statErr := os.Stat(p); statErr == nil && info.IsDir() {
			if addErr := w.Add(p); addErr != nil {
				logger.Warn("watcher: add failed",
					slog.String("path", p),
					slog.String("error", addErr.Error()))
			}
		}
	}

	logger.Info("watcher: started", slog.String("root", root))

	var timer *time.Timer
	var fire <-chan time.Time

	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(debounce)
			fire = timer.C
		} else {
			timer.Reset(debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-fire:
			logger.Debug("watcher: resync")
			resync()

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			// A resource directory created after startup gets watched
			// from then on.
			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := w.Add(ev.Name); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					}
				}
			}
			schedule()

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}
