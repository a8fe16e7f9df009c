package structure

import (
	"regexp"
	"strings"

	ferrors "github.com/Silberengel/scriptorium/internal/foundation/errors"
)

// Default promotion patterns: "X Chapter N" lines and "N:N" verse markers.
const (
	DefaultChapterPattern = `^[A-Za-z0-9][^\n]*\sChapter\s+\d+\.?$`
	DefaultSectionPattern = `^\d+:\d+\.?$`
)

const (
	defaultUnwrapLevel = 4
	minChapterLevel    = 3
)

// Options configures promotion, unwrapping and level classification.
// Zero levels mean "not set explicitly".
type Options struct {
	ChapterPattern          string
	SectionPattern          string
	ChapterLevel            int
	SectionLevel            int
	PromoteDefaultStructure bool
	Preamble                bool
	UnwrapLines             bool
	UnwrapLevel             int
}

// DefaultOptions enables preamble insertion and leaves everything else unset.
func DefaultOptions() Options {
	return Options{Preamble: true}
}

// Promoting reports whether the promotion pre-pass runs.
func (o Options) Promoting() bool {
	return o.PromoteDefaultStructure || o.ChapterPattern != "" || o.SectionPattern != ""
}

// resolved fills unset levels: chapter 3 / verse 4 for the default structure,
// chapter 4 / verse 5 otherwise.
func (o Options) resolved() Options {
	if o.ChapterLevel == 0 {
		if o.PromoteDefaultStructure {
			o.ChapterLevel = 3
		} else {
			o.ChapterLevel = 4
		}
	}
	if o.SectionLevel == 0 {
		o.SectionLevel = o.ChapterLevel + 1
	}
	if o.UnwrapLevel == 0 {
		o.UnwrapLevel = defaultUnwrapLevel
	}
	return o
}

// Validate reports conflicting configuration as a ConfigError.
func (o Options) Validate() error {
	r := o.resolved()
	if r.ChapterLevel < minChapterLevel {
		return ferrors.ConfigError("chapter level must be at least 3").
			WithContext("chapter_level", r.ChapterLevel).Build()
	}
	if r.SectionLevel <= r.ChapterLevel {
		return ferrors.ConfigError("section level must be deeper than chapter level").
			WithContext("chapter_level", r.ChapterLevel).
			WithContext("section_level", r.SectionLevel).Build()
	}
	if r.UnwrapLevel < 1 {
		return ferrors.ConfigError("unwrap level must be at least 1").
			WithContext("unwrap_level", r.UnwrapLevel).Build()
	}
	if _, _, err := r.patterns(); err != nil {
		return err
	}
	return nil
}

// patterns compiles the chapter and section regular expressions; custom
// patterns override the defaults.
func (o Options) patterns() (*regexp.Regexp, *regexp.Regexp, error) {
	chapter := o.ChapterPattern
	if chapter == "" {
		chapter = DefaultChapterPattern
	}
	section := o.SectionPattern
	if section == "" {
		section = DefaultSectionPattern
	}
	cre, err := regexp.Compile(chapter)
	if err != nil {
		return nil, nil, ferrors.ConfigError("invalid chapter pattern").
			WithCause(err).WithContext("pattern", chapter).Build()
	}
	sre, err := regexp.Compile(section)
	if err != nil {
		return nil, nil, ferrors.ConfigError("invalid section pattern").
			WithCause(err).WithContext("pattern", section).Build()
	}
	return cre, sre, nil
}

// kindForLevel classifies a heading of level >= 2.
func (o Options) kindForLevel(level int) Kind {
	switch {
	case level >= o.SectionLevel:
		return KindSection
	case level >= o.ChapterLevel:
		return KindChapter
	case level == o.ChapterLevel-1:
		return KindBook
	default:
		return KindCollection
	}
}

func headingPrefix(level int) string {
	if level < 1 {
		level = 1
	}
	return strings.Repeat("=", level)
}
