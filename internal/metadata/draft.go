package metadata

import (
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	ferrors "github.com/Silberengel/scriptorium/internal/foundation/errors"
	"github.com/Silberengel/scriptorium/internal/slug"
)

// DefaultMappingFile is picked up by Draft when present next to the input.
const DefaultMappingFile = "book_title_map.yml"

// Draft is the starter metadata written by init-metadata. Nil pointers are
// written as explicit nulls so operators see every available field.
type Draft struct {
	Title                string     `yaml:"title"`
	Author               string     `yaml:"author"`
	Language             string     `yaml:"language"`
	CollectionID         string     `yaml:"collection_id"`
	HasCollection        bool       `yaml:"has_collection"`
	UseBookstr           bool       `yaml:"use_bookstr"`
	BookTitleMappingFile *string    `yaml:"book_title_mapping_file"`
	PublishedOn          *string    `yaml:"published_on"`
	PublishedBy          *string    `yaml:"published_by"`
	Summary              *string    `yaml:"summary"`
	Type                 string     `yaml:"type"`
	AutoUpdate           string     `yaml:"auto_update"`
	Source               *string    `yaml:"source"`
	Image                *string    `yaml:"image"`
	Version              *string    `yaml:"version"`
	DerivativeAuthor     *string    `yaml:"derivative_author"`
	DerivativeEvent      *string    `yaml:"derivative_event"`
	DerivativeRelay      *string    `yaml:"derivative_relay"`
	DerivativePubkey     *string    `yaml:"derivative_pubkey"`
	AdditionalTags       [][]string `yaml:"additional_tags"`
	WikistrMappings      []Mapping  `yaml:"wikistr_mappings"`
}

// NewDraft infers a starter metadata document for the input file at inputPath.
// The title is taken from the name of the directory holding the input.
func NewDraft(inputPath string, hasCollection bool) Draft {
	dir := filepath.Dir(inputPath)
	name := strings.NewReplacer("-", " ", "_", " ").Replace(filepath.Base(dir))
	title := cases.Title(language.English).String(strings.TrimSpace(name))
	if title == "" || title == "." || title == "/" {
		title = "Untitled"
	}

	d := Draft{
		Title:           title,
		Language:        defaultLanguage,
		CollectionID:    slug.Normalize(title),
		HasCollection:   hasCollection,
		UseBookstr:      true,
		Type:            defaultType,
		AutoUpdate:      defaultAutoUpdate,
		WikistrMappings: []Mapping{},
	}
	if _, err := os.Stat(filepath.Join(dir, DefaultMappingFile)); err == nil {
		f := DefaultMappingFile
		d.BookTitleMappingFile = &f
	}
	return d
}

// WriteDraft writes d as YAML to path, refusing to overwrite an existing file
// unless force is set.
func WriteDraft(path string, d Draft, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return ferrors.ValidationError("metadata file already exists (use --force to overwrite)").
				WithContext("path", path).Build()
		}
	}
	data, err := yaml.Marshal(d)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryInternal, "failed to encode metadata draft").Build()
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to write metadata draft").
			WithContext("path", path).Build()
	}
	return nil
}
