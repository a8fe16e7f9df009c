package metadata

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	ferrors "github.com/Silberengel/scriptorium/internal/foundation/errors"
)

// TitleMapping is an ordered, read-only set of display→canonical pairs.
type TitleMapping struct {
	entries []Mapping
	byName  map[string]string
}

// Canonicalize returns the canonical title for raw, or raw unchanged when no
// entry matches. Matching is exact and case-sensitive.
func (t *TitleMapping) Canonicalize(raw string) string {
	if t == nil {
		return raw
	}
	if canonical, ok := t.byName[raw]; ok {
		return canonical
	}
	return raw
}

// Entries returns the pairs in resolution order.
func (t *TitleMapping) Entries() []Mapping {
	if t == nil {
		return nil
	}
	return append([]Mapping(nil), t.entries...)
}

// Len reports the number of distinct display names.
func (t *TitleMapping) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// ResolveMappings merges the inline wikistr_mappings with the optional
// book_title_mapping_file (resolved relative to md.Dir). A display name that
// maps to two different canonical names is a ConfigError; exact duplicates
// are collapsed.
func ResolveMappings(md *Metadata) (*TitleMapping, error) {
	tm := &TitleMapping{byName: make(map[string]string)}
	if md == nil {
		return tm, nil
	}

	if err := tm.add(md.WikistrMappings, "wikistr_mappings"); err != nil {
		return nil, err
	}

	if md.BookTitleMappingFile != "" {
		path := md.BookTitleMappingFile
		if !filepath.IsAbs(path) {
			path = filepath.Join(md.Dir, path)
		}
		fileEntries, err := loadMappingFile(path)
		if err != nil {
			return nil, err
		}
		if err := tm.add(fileEntries, path); err != nil {
			return nil, err
		}
	}
	return tm, nil
}

func (t *TitleMapping) add(entries []Mapping, origin string) error {
	for _, e := range entries {
		display := strings.TrimSpace(e.Display)
		canonical := strings.TrimSpace(e.Canonical)
		if display == "" || canonical == "" {
			continue
		}
		if existing, ok := t.byName[display]; ok {
			if existing != canonical {
				return ferrors.ConfigError("ambiguous title mapping").
					WithContext("display", display).
					WithContext("canonical", existing).
					WithContext("conflict", canonical).
					WithContext("source", origin).
					Build()
			}
			continue
		}
		t.byName[display] = canonical
		t.entries = append(t.entries, Mapping{Display: display, Canonical: canonical})
	}
	return nil
}

func loadMappingFile(path string) ([]Mapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ferrors.ConfigError("book title mapping file not found").
				WithCause(err).WithContext("path", path).Build()
		}
		return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to read book title mapping file").
			WithContext("path", path).Build()
	}
	var entries []Mapping
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, ferrors.ConfigError("book title mapping file is not a list of {display, canonical}").
			WithCause(err).WithContext("path", path).Build()
	}
	return entries, nil
}
