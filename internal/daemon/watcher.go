package daemon

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	ferrors "github.com/Silberengel/scriptorium/internal/foundation/errors"
	"github.com/Silberengel/scriptorium/internal/logfields"
)

// watcher reports changes to a fixed set of files after a quiet period.
type watcher struct {
	fs       *fsnotify.Watcher
	files    map[string]struct{}
	debounce time.Duration
	logger   *slog.Logger
}

// newWatcher watches the parent directories of files, which survives
// editors that save by renaming a temporary file over the original.
func newWatcher(files []string, debounce time.Duration, logger *slog.Logger) (*watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, ferrors.DaemonError("failed to create file watcher").WithCause(err).Build()
	}
	w := &watcher{fs: fsw, files: make(map[string]struct{}), debounce: debounce, logger: logger}
	dirs := make(map[string]struct{})
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			_ = fsw.Close()
			return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to resolve watched path").
				WithContext("path", f).Build()
		}
		w.files[abs] = struct{}{}
		dirs[filepath.Dir(abs)] = struct{}{}
	}
	for dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			_ = fsw.Close()
			return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to watch directory").
				WithContext("path", dir).Build()
		}
		logger.Debug("Watching directory", logfields.Path(dir))
	}
	return w, nil
}

func (w *watcher) relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
		return false
	}
	abs, err := filepath.Abs(ev.Name)
	if err != nil {
		return false
	}
	_, ok := w.files[abs]
	return ok
}

// run calls fn once per burst of changes until ctx ends or the watcher closes.
func (w *watcher) run(ctx context.Context, fn func(context.Context)) {
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if !w.relevant(ev) {
				continue
			}
			w.logger.Debug("Input change detected", logfields.Path(ev.Name), "op", ev.Op.String())
			timer.Reset(w.debounce)
			fire = timer.C
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn("File watcher error", logfields.Error(err))
		case <-fire:
			fire = nil
			fn(ctx)
		}
	}
}

func (w *watcher) close() {
	if err := w.fs.Close(); err != nil {
		w.logger.Warn("Error closing file watcher", logfields.Error(err))
	}
}
