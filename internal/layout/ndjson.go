package layout

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"

	ferrors "github.com/Silberengel/scriptorium/internal/foundation/errors"
	"github.com/Silberengel/scriptorium/internal/record"
)

// maxLine bounds one NDJSON line; a verse record is far below this.
const maxLine = 16 << 20

// WriteEvents writes records as NDJSON, one per line, in the given order.
func WriteEvents(path string, records []*record.Record) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return ferrors.WrapError(err, ferrors.CategoryInternal, "failed to encode record").
				WithContext("d_tag", r.DTag()).Build()
		}
	}
	return WriteFile(path, buf.Bytes())
}

// ReadEvents loads an NDJSON artifact written by WriteEvents.
func ReadEvents(path string) ([]*record.Record, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to open events file").
			WithContext("path", path).Build()
	}
	defer func() { _ = f.Close() }()

	var out []*record.Record
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)
	line := 0
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		var r record.Record
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryIndex, "malformed events file").
				WithContext("path", path).WithContext("line", line).Build()
		}
		out = append(out, &r)
	}
	if err := sc.Err(); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to read events file").
			WithContext("path", path).Build()
	}
	return out, nil
}

type cacheIndex struct {
	Count int      `json:"count"`
	D     []string `json:"d"`
}

// WriteCacheIndex records the ordered d-tags of a generate run.
func WriteCacheIndex(path string, keys []record.Key) error {
	c := cacheIndex{Count: len(keys), D: make([]string, 0, len(keys))}
	for _, k := range keys {
		c.D = append(c.D, k.DTag)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryInternal, "failed to encode cache index").Build()
	}
	return WriteFile(path, append(data, '\n'))
}
