// Package source converts input documents into normalized AsciiDoc-style
// text: headings as "=" runs, one paragraph per line, a minimal attribute
// header, and sanitized Unicode.
package source

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/Silberengel/scriptorium/internal/config"
	ferrors "github.com/Silberengel/scriptorium/internal/foundation/errors"
)

// Detect picks a source type from the file extension, defaulting to text.
func Detect(path string) config.SourceType {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm", ".xhtml":
		return config.SourceHTML
	case ".adoc", ".asciidoc", ".asc":
		return config.SourceADOC
	case ".md", ".markdown":
		return config.SourceMarkdown
	}
	return config.SourceText
}

// Options controls conversion.
type Options struct {
	Type      config.SourceType
	Language  string
	ASCIIOnly bool
}

// Load reads path and returns its normalized text.
func Load(path string, opts Options) (string, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return "", ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to read input").
			WithContext("path", path).Build()
	}
	if opts.Type == config.SourceAuto {
		opts.Type = Detect(path)
	}
	return Convert(data, opts)
}

// Convert normalizes data of the given type.
func Convert(data []byte, opts Options) (string, error) {
	lang := opts.Language
	if lang == "" {
		lang = "en"
	}
	var (
		lines []string
		err   error
	)
	switch opts.Type {
	case config.SourceHTML:
		lines, err = fromHTML(data)
	case config.SourceMarkdown:
		lines = fromMarkdown(data)
	case config.SourceADOC, config.SourceText, config.SourceAuto:
		lines = strings.Split(strings.ReplaceAll(strings.TrimLeft(string(data), "\ufeff \t\r\n"), "\r\n", "\n"), "\n")
	default:
		return "", ferrors.ConfigError("unsupported source type").WithContext("source_type", string(opts.Type)).Build()
	}
	if err != nil {
		return "", err
	}
	text := withHeader(strings.Join(lines, "\n"), lang)
	return Sanitize(text, SanitizeOptions{ASCIIOnly: opts.ASCIIOnly}), nil
}

// withHeader prepends a minimal attribute header unless one is present.
func withHeader(text, lang string) string {
	if strings.HasPrefix(strings.TrimLeft(text, " \t\n"), ":doctype:") {
		return text
	}
	return ":doctype: article\n:lang: " + lang + "\n\n" + text
}
