package structure

import (
	"regexp"
	"strings"
)

// Promote rewrites plain lines that look like structural markers into headings:
// chapter lines become level ChapterLevel headings and verse markers become
// level SectionLevel headings. A verse marker at the start of a paragraph line
// is split onto its own line first. Existing headings are left untouched.
func Promote(lines []string, opts Options) ([]string, error) {
	opts = opts.resolved()
	chapterRe, sectionRe, err := opts.patterns()
	if err != nil {
		return nil, err
	}
	sectionAny, err := unanchored(sectionRe)
	if err != nil {
		return nil, err
	}

	split := splitLeadingMarkers(lines, sectionAny)

	out := make([]string, 0, len(split))
	for _, line := range split {
		stripped := strings.TrimSpace(line)
		switch {
		case isHeadingLine(stripped):
			out = append(out, line)
		case stripped != "" && chapterRe.MatchString(stripped):
			out = append(out, headingPrefix(opts.ChapterLevel)+" "+stripped)
		case stripped != "" && sectionRe.MatchString(stripped):
			out = append(out, headingPrefix(opts.SectionLevel)+" "+strings.TrimSuffix(stripped, "."))
		default:
			out = append(out, line)
		}
	}
	return out, nil
}

// unanchored drops a leading ^ and trailing $ so markers can be found at the
// start of longer lines.
func unanchored(re *regexp.Regexp) (*regexp.Regexp, error) {
	pat := strings.TrimSuffix(strings.TrimPrefix(re.String(), "^"), "$")
	return regexp.Compile(pat)
}

// splitLeadingMarkers moves markers found at the very start of a line onto
// their own line, repeatedly, so "1:1 In the beginning" becomes two lines.
func splitLeadingMarkers(lines []string, marker *regexp.Regexp) []string {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || isHeadingLine(trimmed) {
			out = append(out, line)
			continue
		}
		work := line
		for {
			loc := marker.FindStringIndex(work)
			if loc == nil || loc[0] != 0 || loc[1] == 0 {
				break
			}
			rest := strings.TrimLeft(work[loc[1]:], " \t")
			if rest == work {
				break
			}
			out = append(out, strings.TrimSpace(work[:loc[1]]))
			work = rest
		}
		if work != "" {
			out = append(out, work)
		}
	}
	return out
}

func isHeadingLine(trimmed string) bool {
	return strings.HasPrefix(trimmed, "=")
}
