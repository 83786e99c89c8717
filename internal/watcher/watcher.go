// Package watcher reloads the source list when sources.yaml is edited on disk.
package watcher

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/deusflow/newspulse/internal/logger"
)

// DefaultDebounce coalesces the burst of events an editor emits on save.
const DefaultDebounce = 250 * time.Millisecond

// Watcher calls onChange after the target file is written, created or
// replaced. It watches the parent directory since editors often save by
// renaming a temp file over the target.
type Watcher struct {
	targetPath string
	parentPath string
	onChange   func(ctx context.Context)
	debounce   time.Duration
}

// New creates a Watcher for targetPath.
func New(targetPath string, onChange func(ctx context.Context)) *Watcher {
	target := filepath.Clean(targetPath)
	return &Watcher{
		targetPath: target,
		parentPath: filepath.Dir(target),
		onChange:   onChange,
		debounce:   DefaultDebounce,
	}
}

// WithDebounce sets the quiet period before onChange fires.
func (w *Watcher) WithDebounce(d time.Duration) *Watcher {
	w.debounce = d
	return w
}

// Run blocks until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	if err := fsw.Add(w.parentPath); err != nil {
		return err
	}
	logger.Info("Watching sources file", "path", w.targetPath)

	var timer *time.Timer
	fire := make(chan struct{}, 1)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.targetPath {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})

		case <-fire:
			logger.Info("Sources file changed", "path", w.targetPath)
			if w.onChange != nil {
				w.onChange(ctx)
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logger.Error("Watcher error", "error", err)
		}
	}
}
