package source

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"

	ferrors "github.com/Silberengel/scriptorium/internal/foundation/errors"
)

var htmlHeadingLevel = map[string]int{"h1": 1, "h2": 2, "h3": 3, "h4": 4, "h5": 5, "h6": 6}

// fromHTML maps headings and block elements to lines. Inline markup is
// flattened into its block's text.
func fromHTML(data []byte) ([]string, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryValidation, "failed to parse HTML").Build()
	}

	var lines []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if t := strings.Join(strings.Fields(n.Data), " "); t != "" {
				lines = append(lines, t, "")
			}
			return
		}
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "head", "noscript", "template":
				return
			}
			if level, ok := htmlHeadingLevel[n.Data]; ok {
				if t := collectText(n); t != "" {
					lines = append(lines, strings.Repeat("=", level)+" "+t, "")
				}
				return
			}
			switch n.Data {
			case "p", "pre", "blockquote":
				if !hasBlockChild(n) {
					if t := collectText(n); t != "" {
						lines = append(lines, t, "")
					}
					return
				}
			case "li":
				if t := collectText(n); t != "" {
					lines = append(lines, "* "+t)
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && (n.Data == "ul" || n.Data == "ol") {
			lines = append(lines, "")
		}
	}
	walk(doc)
	return lines, nil
}

func hasBlockChild(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		switch c.Data {
		case "p", "div", "blockquote", "ul", "ol", "pre", "h1", "h2", "h3", "h4", "h5", "h6":
			return true
		}
	}
	return false
}

// collectText concatenates the descendant text and collapses whitespace.
func collectText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch {
		case n.Type == html.TextNode:
			b.WriteString(n.Data)
		case n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style"):
			return
		case n.Type == html.ElementNode && n.Data == "br":
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}
