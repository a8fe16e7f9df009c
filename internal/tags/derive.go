// Package tags derives the NKBIP-01 publication tags and NKBIP-08 hierarchical
// tags for every node of a publication tree, together with its d-tag.
package tags

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	ferrors "github.com/Silberengel/scriptorium/internal/foundation/errors"
	"github.com/Silberengel/scriptorium/internal/metadata"
	"github.com/Silberengel/scriptorium/internal/slug"
	"github.com/Silberengel/scriptorium/internal/structure"
)

// Tag names used on index and content records.
const (
	NameD          = "d"
	NameTitle      = "title"
	NameAuthor     = "author"
	NamePublished  = "published_on"
	NamePublisher  = "published_by"
	NameSummary    = "summary"
	NameType       = "type"
	NameAutoUpdate = "auto-update"
	NameSource     = "source"
	NameImage      = "image"
	NameLabelSpace = "L"
	NameLabel      = "l"
	NamePubkey     = "p"
	NameEvent      = "E"

	NameCollection = "C"
	NameBook       = "T"
	NameChapter    = "c"
	NameSection    = "s"
	NameVersion    = "v"
)

const languageNamespace = "ISO-639-1"

var (
	verseNumberRe    = regexp.MustCompile(`:\s*(\d+)\.?\s*$`)
	trailingNumberRe = regexp.MustCompile(`(\d+)\.?\s*$`)
)

// scope is what a node inherits from its ancestors.
type scope struct {
	book    string
	chapter string
	dParts  []string
}

type deriver struct {
	md      *metadata.Metadata
	mapping *metadata.TitleMapping
	coll    string
	version string
}

// Derive assigns DTag and Tags to every node of root, top-down. An empty d-tag
// anywhere is a ValidationError.
func Derive(root *structure.Node, md *metadata.Metadata, mapping *metadata.TitleMapping) error {
	d := &deriver{
		md:      md,
		mapping: mapping,
		coll:    md.CollectionToken(),
		version: md.VersionToken(),
	}
	if d.coll == "" {
		return ferrors.ValidationError("collection id normalizes to an empty identifier").
			WithContext("collection_id", md.CollectionID).Build()
	}
	return d.node(root, scope{dParts: []string{d.coll}}, "", true)
}

func (d *deriver) node(n *structure.Node, sc scope, disc string, isRoot bool) error {
	if !isRoot {
		sc.dParts = append(sc.dParts[:len(sc.dParts):len(sc.dParts)], disc)
		switch n.Kind {
		case structure.KindBook:
			sc.book = d.bookToken(n.Title)
			if sc.book == "" {
				sc.book = disc
			}
			sc.chapter = ""
		case structure.KindChapter:
			sc.chapter = disc
		}
	}

	parts := sc.dParts
	if d.version != "" {
		parts = append(parts[:len(parts):len(parts)], d.version)
	}
	n.DTag = slug.Join(parts...)
	if n.DTag == "" {
		return ferrors.ValidationError("derived d-tag is empty").
			WithContext("title", n.Title).WithContext("line", n.Line).Build()
	}

	n.Tags = d.tagsFor(n, sc, disc, isRoot)

	discs := d.childDiscriminators(n)
	for i, c := range n.Children {
		if err := d.node(c, sc, discs[i], false); err != nil {
			return err
		}
	}
	return nil
}

func (d *deriver) tagsFor(n *structure.Node, sc scope, disc string, isRoot bool) [][]string {
	t := make([][]string, 0, 16)
	t = append(t, []string{NameD, n.DTag})

	switch {
	case n.IsIndex():
		t = append(t, []string{NameTitle, indexTitle(n, disc)})
	case n.Title != "":
		t = append(t, []string{NameTitle, n.Title})
	}

	if isRoot {
		t = append(t, d.rootMetadata()...)
	}

	if d.md.HasCollection {
		t = append(t, []string{NameCollection, d.coll})
	}
	if sc.book != "" {
		t = append(t, []string{NameBook, sc.book})
	}
	if sc.chapter != "" {
		t = append(t, []string{NameChapter, sc.chapter})
	}
	if n.Kind == structure.KindSection && disc != "" {
		t = append(t, []string{NameSection, disc})
	}
	if d.version != "" {
		t = append(t, []string{NameVersion, d.version})
	}

	if isRoot {
		for _, extra := range d.md.AdditionalTags {
			t = append(t, append([]string(nil), extra...))
		}
	}
	return t
}

func (d *deriver) rootMetadata() [][]string {
	md := d.md
	var t [][]string
	add := func(name, value string) {
		if value != "" {
			t = append(t, []string{name, value})
		}
	}
	add(NameAuthor, md.Author)
	add(NamePublished, md.PublishedOn)
	add(NamePublisher, md.PublishedBy)
	add(NameSummary, md.Summary)
	add(NameType, md.Type)
	add(NameAutoUpdate, md.AutoUpdate)
	add(NameSource, md.Source)
	add(NameImage, md.Image)
	if md.Language != "" {
		t = append(t,
			[]string{NameLabelSpace, languageNamespace},
			[]string{NameLabel, md.Language, languageNamespace},
		)
	}
	if md.DerivativePubkey != "" {
		t = append(t, []string{NamePubkey, md.DerivativePubkey, md.DerivativeRelay, "author"})
	}
	if md.DerivativeEvent != "" {
		t = append(t, []string{NameEvent, md.DerivativeEvent, md.DerivativeRelay, md.DerivativePubkey})
	}
	return t
}

func (d *deriver) bookToken(title string) string {
	return slug.Normalize(d.mapping.Canonicalize(title))
}

// childDiscriminators computes the discriminator of each child of n. Colliding
// siblings after the first get a -<ordinal> suffix.
func (d *deriver) childDiscriminators(n *structure.Node) []string {
	out := make([]string, len(n.Children))
	seen := make(map[string]bool, len(n.Children))
	for i, c := range n.Children {
		base := d.discriminator(c)
		disc := base
		for seen[disc] {
			disc = fmt.Sprintf("%s-%d", disc, c.Ordinal)
		}
		seen[disc] = true
		out[i] = disc
	}
	return out
}

func (d *deriver) discriminator(n *structure.Node) string {
	ordinal := strconv.Itoa(n.Ordinal)
	switch n.Kind {
	case structure.KindBook:
		return firstNonEmpty(d.bookToken(n.Title), ordinal)
	case structure.KindChapter:
		if n.Preamble {
			return "preamble"
		}
		return firstNonEmpty(trailingNumber(n.Title), slug.Normalize(n.Title), ordinal)
	case structure.KindSection:
		return firstNonEmpty(verseNumber(n.Title), trailingNumber(n.Title), slug.Normalize(n.Title), ordinal)
	default:
		return firstNonEmpty(slug.Normalize(n.Title), ordinal)
	}
}

func verseNumber(title string) string {
	if m := verseNumberRe.FindStringSubmatch(title); m != nil {
		return normalizeNumber(m[1])
	}
	return ""
}

func trailingNumber(title string) string {
	if m := trailingNumberRe.FindStringSubmatch(title); m != nil {
		return normalizeNumber(m[1])
	}
	return ""
}

// normalizeNumber drops leading zeros so "007" and "7" discriminate alike.
func normalizeNumber(s string) string {
	if n, err := strconv.Atoi(s); err == nil {
		return strconv.Itoa(n)
	}
	return s
}

func indexTitle(n *structure.Node, disc string) string {
	if n.Title != "" {
		return n.Title
	}
	if disc != "" {
		return fmt.Sprintf("%s %s", titleCase(n.Kind.String()), disc)
	}
	return titleCase(n.Kind.String())
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
