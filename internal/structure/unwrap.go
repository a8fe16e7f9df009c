package structure

import (
	"regexp"
	"strings"
)

var (
	headingRe      = regexp.MustCompile(`^(=+)\s+(.*)$`)
	orderedItemRe  = regexp.MustCompile(`^\d+\.\s`)
	blockFences    = []string{"----", "====", "****", "____", "++++", "|==="}
	listItemPrefix = []string{"* ", "- ", ". "}
)

// Unwrap joins hard-wrapped paragraph lines into single lines, but only below
// headings of level >= level. Blank lines, headings, attribute entries, list
// items and block fences are never joined.
func Unwrap(lines []string, level int) []string {
	out := make([]string, 0, len(lines))
	var buf []string
	current := 0

	flush := func() {
		if len(buf) == 0 {
			return
		}
		parts := make([]string, len(buf))
		for i, l := range buf {
			parts[i] = strings.TrimSpace(l)
		}
		out = append(out, strings.Join(parts, " "))
		buf = buf[:0]
	}

	for _, line := range lines {
		if m := headingRe.FindStringSubmatch(strings.TrimLeft(line, " \t")); m != nil {
			flush()
			current = len(m[1])
			out = append(out, line)
			continue
		}
		if isStructural(line) {
			flush()
			out = append(out, line)
			continue
		}
		if current >= level {
			buf = append(buf, line)
			continue
		}
		flush()
		out = append(out, line)
	}
	flush()
	return out
}

func isStructural(line string) bool {
	l := strings.TrimLeft(line, " \t")
	if strings.TrimSpace(l) == "" {
		return true
	}
	if strings.HasPrefix(l, "=") || strings.HasPrefix(l, ":") {
		return true
	}
	for _, p := range listItemPrefix {
		if strings.HasPrefix(l, p) {
			return true
		}
	}
	if orderedItemRe.MatchString(l) {
		return true
	}
	for _, f := range blockFences {
		if strings.HasPrefix(l, f) {
			return true
		}
	}
	return false
}
