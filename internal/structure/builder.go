package structure

import (
	"fmt"
	"regexp"
	"strings"

	ferrors "github.com/Silberengel/scriptorium/internal/foundation/errors"
)

// attributeRe matches AsciiDoc document attribute entries such as ":lang: en".
var attributeRe = regexp.MustCompile(`^:[A-Za-z0-9_][A-Za-z0-9_-]*!?:`)

// Diagnostic is a tolerated structure problem that was repaired while building.
type Diagnostic struct {
	Line    int
	Message string
}

// AsError returns the diagnostic as a StructureError.
func (d Diagnostic) AsError() error {
	return ferrors.StructureError(d.Message).WithContext("line", d.Line).Build()
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("line %d: %s", d.Line, d.Message)
}

// Parse runs the configured pre-passes over text and builds the tree.
func Parse(text, title string, opts Options) (*Node, []Diagnostic, error) {
	lines, err := Prepare(text, opts)
	if err != nil {
		return nil, nil, err
	}
	return Build(lines, title, opts)
}

// Prepare splits text into lines and applies heading promotion and line
// unwrapping as configured. The result is what Build consumes.
func Prepare(text string, opts Options) ([]string, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	lines := SplitLines(text)
	if opts.Promoting() {
		var err error
		if lines, err = Promote(lines, opts); err != nil {
			return nil, err
		}
	}
	if opts.UnwrapLines {
		lines = Unwrap(lines, opts.resolved().UnwrapLevel)
	}
	return lines, nil
}

// SplitLines splits text into lines, accepting \n and \r\n endings.
func SplitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

// builder holds the open node stack. Sections never enter the stack; the open
// section is tracked separately so body text can be appended to it.
type builder struct {
	opts    Options
	root    *Node
	stack   []*Node
	section *Node
	diags   []Diagnostic
}

// Build turns already normalized lines into a tree rooted at a Collection
// titled title. The level 1 heading is the document title and is absorbed by
// the root.
func Build(lines []string, title string, opts Options) (*Node, []Diagnostic, error) {
	if err := opts.Validate(); err != nil {
		return nil, nil, err
	}
	root := &Node{Kind: KindCollection, Title: title, Level: 0}
	b := &builder{opts: opts.resolved(), root: root, stack: []*Node{root}}

	for i, line := range lines {
		lineNo := i + 1
		if m := headingRe.FindStringSubmatch(strings.TrimLeft(line, " \t")); m != nil {
			b.heading(len(m[1]), strings.TrimSpace(m[2]), lineNo)
			continue
		}
		b.body(line, lineNo)
	}
	b.closeSection()
	return root, b.diags, nil
}

func (b *builder) top() *Node { return b.stack[len(b.stack)-1] }

func (b *builder) diag(line int, format string, args ...any) {
	b.diags = append(b.diags, Diagnostic{Line: line, Message: fmt.Sprintf(format, args...)})
}

func (b *builder) heading(level int, title string, line int) {
	b.closeSection()
	if level == 1 {
		if b.root.Title == "" {
			b.root.Title = title
		}
		return
	}

	kind := b.opts.kindForLevel(level)
	node := &Node{Kind: kind, Title: title, Level: level, Line: line}
	if kind == KindSection {
		b.attachSection(node, line)
		return
	}

	for len(b.stack) > 1 && b.top().Level >= level {
		b.stack = b.stack[:len(b.stack)-1]
	}
	parent := b.top()
	if from := max(parent.Level, 1) + 1; from < level {
		b.diag(line, "heading %q at level %d skips %d level(s); inserted untitled %s",
			title, level, level-from, b.opts.kindForLevel(from))
		for l := from; l < level; l++ {
			filler := &Node{Kind: b.opts.kindForLevel(l), Level: l, Synthetic: true, Line: line}
			parent.appendChild(filler)
			b.stack = append(b.stack, filler)
			parent = filler
		}
	}
	parent.appendChild(node)
	b.stack = append(b.stack, node)
}

// attachSection places a section under the current stack top. A section whose
// parent would be a Book or Collection gets a Preamble chapter as the only
// interposed ancestor unless preamble insertion is disabled.
func (b *builder) attachSection(section *Node, line int) {
	parent := b.top()
	if parent.Kind != KindChapter && b.opts.Preamble {
		parent = b.preambleUnder(parent, line)
	}
	parent.appendChild(section)
	b.section = section
}

func (b *builder) preambleUnder(parent *Node, line int) *Node {
	if last := parent.lastChild(); last != nil && last.Preamble {
		b.stack = append(b.stack, last)
		return last
	}
	pre := &Node{
		Kind:      KindChapter,
		Title:     PreambleTitle,
		Level:     b.opts.ChapterLevel,
		Synthetic: true,
		Preamble:  true,
		Line:      0,
	}
	parent.appendChild(pre)
	b.stack = append(b.stack, pre)
	b.diag(line, "content directly under %s %q placed in a preamble chapter", parent.Kind, parent.Title)
	return pre
}

func (b *builder) body(line string, lineNo int) {
	if b.section != nil {
		b.section.lines = append(b.section.lines, line)
		return
	}
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || attributeRe.MatchString(trimmed) || strings.EqualFold(trimmed, "[discrete]") {
		return
	}
	section := &Node{
		Kind:      KindSection,
		Title:     PreambleTitle,
		Level:     b.opts.SectionLevel,
		Synthetic: true,
		Line:      lineNo,
	}
	b.attachSection(section, lineNo)
	section.lines = append(section.lines, line)
}

func (b *builder) closeSection() {
	if b.section == nil {
		return
	}
	b.section.Body = strings.TrimSpace(strings.Join(b.section.lines, "\n"))
	b.section.lines = nil
	if b.section.Body == "" {
		b.diag(b.section.Line, "section %q has no content", b.section.Title)
	}
	b.section = nil
}
