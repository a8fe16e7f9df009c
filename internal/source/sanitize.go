package source

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// SanitizeOptions controls Sanitize.
type SanitizeOptions struct {
	// ASCIIOnly transliterates to ASCII instead of stripping invisibles.
	ASCIIOnly bool
}

var (
	// Cyrillic letters that render like Latin ones.
	lookalikes = strings.NewReplacer(
		"а", "a", "в", "B", "е", "e", "о", "o", "р", "p",
		"с", "c", "у", "y", "х", "x", "А", "A", "В", "B",
		"Е", "E", "О", "O", "Р", "P", "С", "C", "У", "Y",
		"Х", "X", "м", "m", "н", "n", "и", "i", "т", "t",
		"ъ", "b", "ь", "b",
	)
	spaces = strings.NewReplacer("\u00a0", " ", "\u202f", " ", "\u2007", " ")

	headingFixRe = regexp.MustCompile(`^(\s*)(=+)\s*([^=\s].*)$`)
	blankRunRe   = regexp.MustCompile(`[ \t]+`)
)

// Sanitize folds full-width forms, strips invisible characters, repairs
// heading spacing, drops [discrete] markers and guarantees a blank line before
// every heading. With ASCIIOnly, Cyrillic lookalikes are mapped to Latin and
// the text is transliterated instead of stripped.
func Sanitize(text string, opts SanitizeOptions) string {
	text = width.Fold.String(text)
	if opts.ASCIIOnly {
		text = toASCII(lookalikes.Replace(text))
	} else {
		text = stripInvisible(text)
	}

	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimRight(blankRunRe.ReplaceAllString(line, " "), " ")
		if strings.EqualFold(strings.TrimSpace(line), "[discrete]") {
			continue
		}
		if m := headingFixRe.FindStringSubmatch(line); m != nil {
			line = m[1] + m[2] + " " + m[3]
			if len(out) > 0 && out[len(out)-1] != "" {
				out = append(out, "")
			}
		}
		out = append(out, line)
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return strings.Join(out, "\n") + "\n"
}

// stripInvisible removes control and format characters other than tab and
// newline, and maps no-break spaces to plain spaces.
func stripInvisible(s string) string {
	s = spaces.Replace(s)
	return strings.Map(func(r rune) rune {
		switch r {
		case '\t', '\n', '\r':
			return r
		}
		if unicode.Is(unicode.C, r) {
			return -1
		}
		return r
	}, s)
}

// toASCII decomposes and drops every non-ASCII rune.
func toASCII(s string) string {
	s = norm.NFKD.String(spaces.Replace(s))
	return strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII || (r < 0x20 && r != '\t' && r != '\n' && r != '\r') {
			return -1
		}
		return r
	}, s)
}
