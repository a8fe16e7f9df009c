package source

import (
	"strings"

	"github.com/yuin/goldmark"
	gmast "github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// fromMarkdown walks the Goldmark AST and emits headings, paragraphs, list
// items and code blocks as lines.
func fromMarkdown(body []byte) []string {
	root := goldmark.New().Parser().Parse(text.NewReader(body))

	var lines []string
	_ = gmast.Walk(root, func(n gmast.Node, entering bool) (gmast.WalkStatus, error) {
		if !entering {
			if _, ok := n.(*gmast.List); ok {
				lines = append(lines, "")
			}
			return gmast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *gmast.Heading:
			if t := inlineText(node, body); t != "" {
				lines = append(lines, strings.Repeat("=", node.Level)+" "+t, "")
			}
			return gmast.WalkSkipChildren, nil
		case *gmast.ListItem:
			if t := inlineText(node, body); t != "" {
				lines = append(lines, "* "+t)
			}
			return gmast.WalkSkipChildren, nil
		case *gmast.Paragraph, *gmast.TextBlock:
			if t := inlineText(node, body); t != "" {
				lines = append(lines, t, "")
			}
			return gmast.WalkSkipChildren, nil
		case *gmast.FencedCodeBlock, *gmast.CodeBlock:
			seg := node.Lines()
			var b strings.Builder
			for i := 0; i < seg.Len(); i++ {
				s := seg.At(i)
				b.Write(s.Value(body))
			}
			if t := strings.TrimRight(b.String(), "\n"); t != "" {
				lines = append(lines, t, "")
			}
			return gmast.WalkSkipChildren, nil
		}
		return gmast.WalkContinue, nil
	})
	return lines
}

// inlineText flattens the inline content below n into one line.
func inlineText(n gmast.Node, src []byte) string {
	var b strings.Builder
	_ = gmast.Walk(n, func(c gmast.Node, entering bool) (gmast.WalkStatus, error) {
		if !entering {
			return gmast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *gmast.Text:
			b.Write(t.Segment.Value(src))
			if t.SoftLineBreak() || t.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *gmast.String:
			b.Write(t.Value)
		case *gmast.AutoLink:
			b.Write(t.URL(src))
			return gmast.WalkSkipChildren, nil
		}
		return gmast.WalkContinue, nil
	})
	return strings.Join(strings.Fields(b.String()), " ")
}
