// Package metadata loads the operator supplied publication metadata
// (@metadata.yml) and the display→canonical title mappings used for book names.
package metadata

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	ferrors "github.com/Silberengel/scriptorium/internal/foundation/errors"
	"github.com/Silberengel/scriptorium/internal/slug"
)

// FileName is the metadata file expected next to the input document.
const FileName = "@metadata.yml"

// Metadata is immutable for one compile run.
type Metadata struct {
	Title       string
	Author      string
	Publisher   string
	PublishedOn string
	PublishedBy string
	Summary     string
	Type        string
	Version     string
	Language    string
	AutoUpdate  string
	Source      string
	Image       string

	CollectionID  string
	HasCollection bool
	UseBookstr    bool

	DerivativeAuthor string
	DerivativeEvent  string
	DerivativeRelay  string
	DerivativePubkey string

	AdditionalTags       [][]string
	WikistrMappings      []Mapping
	BookTitleMappingFile string

	// Dir is the directory the metadata was loaded from; mapping files resolve against it.
	Dir string
}

// Mapping is one display→canonical title pair.
type Mapping struct {
	Display   string `yaml:"display"`
	Canonical string `yaml:"canonical"`
}

// document mirrors the YAML layout; pointer booleans distinguish "absent" from false.
type document struct {
	Title                string     `yaml:"title"`
	Author               string     `yaml:"author"`
	Publisher            string     `yaml:"publisher"`
	PublishedOn          string     `yaml:"published_on"`
	PublishedBy          string     `yaml:"published_by"`
	Summary              string     `yaml:"summary"`
	Type                 string     `yaml:"type"`
	Version              string     `yaml:"version"`
	Language             string     `yaml:"language"`
	CollectionID         string     `yaml:"collection_id"`
	HasCollection        *bool      `yaml:"has_collection"`
	AutoUpdate           string     `yaml:"auto_update"`
	Source               string     `yaml:"source"`
	Image                string     `yaml:"image"`
	DerivativeAuthor     string     `yaml:"derivative_author"`
	DerivativeEvent      string     `yaml:"derivative_event"`
	DerivativeRelay      string     `yaml:"derivative_relay"`
	DerivativePubkey     string     `yaml:"derivative_pubkey"`
	UseBookstr           *bool      `yaml:"use_bookstr"`
	AdditionalTags       [][]string `yaml:"additional_tags"`
	WikistrMappings      []Mapping  `yaml:"wikistr_mappings"`
	BookTitleMappingFile string     `yaml:"book_title_mapping_file"`
}

const (
	defaultLanguage   = "en"
	defaultType       = "book"
	defaultAutoUpdate = "ask"
)

// Load reads and validates a metadata file. Every problem is reported as a
// ValidationError before any compilation work begins.
func Load(path string) (*Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ferrors.ValidationError("metadata file not found").
				WithCause(err).WithContext("path", path).Build()
		}
		return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to read metadata file").
			WithContext("path", path).Build()
	}

	md, err := Parse(data)
	if err != nil {
		return nil, err
	}
	md.Dir = filepath.Dir(path)
	return md, nil
}

// LoadDir loads FileName from dir.
func LoadDir(dir string) (*Metadata, error) {
	return Load(filepath.Join(dir, FileName))
}

// Parse decodes metadata YAML, applies defaults and validates the result.
func Parse(data []byte) (*Metadata, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, ferrors.ValidationError("metadata is not valid YAML").WithCause(err).Build()
	}

	md := &Metadata{
		Title:                strings.TrimSpace(doc.Title),
		Author:               strings.TrimSpace(doc.Author),
		Publisher:            strings.TrimSpace(doc.Publisher),
		PublishedOn:          strings.TrimSpace(doc.PublishedOn),
		PublishedBy:          strings.TrimSpace(doc.PublishedBy),
		Summary:              strings.TrimSpace(doc.Summary),
		Type:                 strings.TrimSpace(doc.Type),
		Version:              strings.TrimSpace(doc.Version),
		Language:             strings.TrimSpace(doc.Language),
		CollectionID:         strings.TrimSpace(doc.CollectionID),
		HasCollection:        boolOr(doc.HasCollection, true),
		AutoUpdate:           strings.TrimSpace(doc.AutoUpdate),
		Source:               strings.TrimSpace(doc.Source),
		Image:                strings.TrimSpace(doc.Image),
		DerivativeAuthor:     strings.TrimSpace(doc.DerivativeAuthor),
		DerivativeEvent:      strings.ToLower(strings.TrimSpace(doc.DerivativeEvent)),
		DerivativeRelay:      strings.TrimSpace(doc.DerivativeRelay),
		DerivativePubkey:     strings.ToLower(strings.TrimSpace(doc.DerivativePubkey)),
		UseBookstr:           boolOr(doc.UseBookstr, true),
		AdditionalTags:       doc.AdditionalTags,
		WikistrMappings:      doc.WikistrMappings,
		BookTitleMappingFile: strings.TrimSpace(doc.BookTitleMappingFile),
	}
	md.applyDefaults()

	if err := md.Validate(); err != nil {
		return nil, err
	}
	return md, nil
}

func (m *Metadata) applyDefaults() {
	if m.Language == "" {
		m.Language = defaultLanguage
	}
	if m.Type == "" {
		m.Type = defaultType
	}
	if m.AutoUpdate == "" {
		m.AutoUpdate = defaultAutoUpdate
	}
	if m.CollectionID == "" {
		m.CollectionID = slug.Normalize(m.Title)
	}
	if m.PublishedBy == "" {
		m.PublishedBy = m.Publisher
	}
}

// CollectionToken is the normalized collection id used as the d-tag prefix and C tag.
func (m *Metadata) CollectionToken() string {
	return slug.Normalize(m.CollectionID)
}

// VersionToken is the normalized version, empty unless bookstr tags are enabled.
func (m *Metadata) VersionToken() string {
	if !m.UseBookstr {
		return ""
	}
	return slug.Normalize(m.Version)
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
