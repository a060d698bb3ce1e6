// Package watch reports batches of file changes under a directory once they
// settle, so a workspace can be pushed again.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"treesync/internal/workspace"
)

// Handler receives the relative paths touched since the last call.
type Handler func(ctx context.Context, changed []string) error

type Watcher struct {
	root     string
	debounce time.Duration
	watcher  *fsnotify.Watcher
	logger   *zap.Logger
}

// New watches root and every non-ignored directory below it.
func New(root string, debounce time.Duration, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving watch root: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}
	w := &Watcher{root: absRoot, debounce: debounce, watcher: fw, logger: logger}
	if err := w.addTree(absRoot); err != nil {
		fw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if rel, _ := filepath.Rel(w.root, p); rel != "." && workspace.ShouldIgnore(rel) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(p); err != nil {
			return fmt.Errorf("adding directory to watcher: %w", err)
		}
		return nil
	})
}

// Run delivers changes to handle until ctx is done. A handler error is
// logged and does not stop the watcher.
func (w *Watcher) Run(ctx context.Context, handle Handler) error {
	defer w.watcher.Close()

	pending := make(map[string]bool)
	// fire stays nil until the first event arms the timer
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			rel, ok := w.record(event)
			if !ok {
				continue
			}
			pending[rel] = true
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				fire = timer.C
			} else {
				timer.Reset(w.debounce)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher error", zap.Error(err))

		case <-fire:
			changed := make([]string, 0, len(pending))
			for p := range pending {
				changed = append(changed, p)
			}
			sort.Strings(changed)
			pending = make(map[string]bool)

			w.logger.Debug("changes settled", zap.Int("paths", len(changed)))
			if err := handle(ctx, changed); err != nil {
				w.logger.Error("handling changes", zap.Error(err))
			}
		}
	}
}

// record returns the relative path of an event worth reporting and starts
// watching directories created under the root.
func (w *Watcher) record(event fsnotify.Event) (string, bool) {
	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil || workspace.ShouldIgnore(rel) {
		return "", false
	}
	if event.Op == fsnotify.Chmod {
		return "", false
	}
	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(event.Name); err != nil {
				w.logger.Error("adding new directory to watcher", zap.Error(err))
			}
		}
	}
	return filepath.ToSlash(rel), true
}
