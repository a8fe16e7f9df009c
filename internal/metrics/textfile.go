package metrics

import (
	"os"
	"path/filepath"

	prom "github.com/prometheus/client_golang/prometheus"

	ferrors "github.com/Silberengel/scriptorium/internal/foundation/errors"
)

// WriteTextfile writes the gathered metrics in the node_exporter textfile
// format, creating the parent directory when needed.
func WriteTextfile(path string, g prom.Gatherer) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "create metrics directory").
			WithContext("path", path).Build()
	}
	if err := prom.WriteToTextfile(path, g); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "write metrics textfile").
			WithContext("path", path).Build()
	}
	return nil
}
