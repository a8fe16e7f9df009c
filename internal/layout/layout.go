// Package layout owns the output directory tree: the normalized document, the
// NDJSON record artifact, the sqlite index, logs, caches and the run lock.
package layout

import (
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	ferrors "github.com/Silberengel/scriptorium/internal/foundation/errors"
)

// Layout resolves paths below one output directory.
type Layout struct {
	Base string
}

// New returns the layout rooted at dir.
func New(dir string) Layout { return Layout{Base: filepath.Clean(dir)} }

func (l Layout) ADOCDir() string    { return filepath.Join(l.Base, "adoc") }
func (l Layout) EventsDir() string  { return filepath.Join(l.Base, "events") }
func (l Layout) IndexDir() string   { return filepath.Join(l.Base, "index") }
func (l Layout) LogsDir() string    { return filepath.Join(l.Base, "logs") }
func (l Layout) CacheDir() string   { return filepath.Join(l.Base, "cache") }
func (l Layout) MetricsDir() string { return filepath.Join(l.Base, "metrics") }

// NormalizedDocument is the sanitized, promoted text the tree was built from.
func (l Layout) NormalizedDocument() string {
	return filepath.Join(l.ADOCDir(), "normalized-publication.adoc")
}

// EventsFile holds one signed record per line in topological order.
func (l Layout) EventsFile() string { return filepath.Join(l.EventsDir(), "events.ndjson") }

// IndexDB is the sqlite LocalIndex.
func (l Layout) IndexDB() string { return filepath.Join(l.IndexDir(), "index.db") }

// CacheIndex lists the d-tags of the last generate run.
func (l Layout) CacheIndex() string { return filepath.Join(l.CacheDir(), "event_index.json") }

// MetricsFile is the default Prometheus textfile export.
func (l Layout) MetricsFile() string { return filepath.Join(l.MetricsDir(), "scriptorium.prom") }

// LockFile guards the directory against concurrent runs.
func (l Layout) LockFile() string { return filepath.Join(l.Base, "scriptorium.lock") }

// Ensure creates every directory of the layout.
func (l Layout) Ensure() error {
	for _, dir := range []string{l.Base, l.ADOCDir(), l.EventsDir(), l.IndexDir(), l.LogsDir(), l.CacheDir(), l.MetricsDir()} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to create output directory").
				WithContext("path", dir).Build()
		}
	}
	return nil
}

// WriteFile writes data atomically by renaming a sibling temp file.
func WriteFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to create temp file").
			WithContext("path", path).Build()
	}
	name := tmp.Name()
	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	if werr == nil {
		werr = cerr
	}
	if werr == nil {
		werr = os.Rename(name, path)
	}
	if werr != nil {
		_ = os.Remove(name)
		return ferrors.WrapError(werr, ferrors.CategoryFileSystem, "failed to write file").
			WithContext("path", path).Build()
	}
	return nil
}

// Lock is a held run lock.
type Lock struct {
	f *flock.Flock
}

// Acquire takes the run lock without waiting. A lock held by another process
// is a runtime error.
func (l Layout) Acquire() (*Lock, error) {
	if err := os.MkdirAll(l.Base, 0o750); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to create output directory").
			WithContext("path", l.Base).Build()
	}
	f := flock.New(l.LockFile())
	ok, err := f.TryLock()
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to acquire run lock").
			WithContext("path", l.LockFile()).Build()
	}
	if !ok {
		return nil, ferrors.NewError(ferrors.CategoryRuntime, "another run is using this output directory").
			WithContext("path", l.LockFile()).UserAction().Build()
	}
	return &Lock{f: f}, nil
}

// Release drops the lock.
func (k *Lock) Release() error {
	if k == nil || k.f == nil {
		return nil
	}
	return k.f.Unlock()
}
