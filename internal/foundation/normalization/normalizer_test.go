package normalization

import (
	"testing"
)

type sourceKind string

const (
	kindHTML sourceKind = "html"
	kindADOC sourceKind = "adoc"
	kindText sourceKind = "text"
)

func newKinds() *Normalizer[sourceKind] {
	return NewNormalizer(map[string]sourceKind{
		"html":     kindHTML,
		"adoc":     kindADOC,
		"asciidoc": kindADOC,
		"text":     kindText,
	}, kindADOC)
}

func TestNormalizer_Normalize(t *testing.T) {
	n := newKinds()

	tests := []struct {
		name     string
		input    string
		expected sourceKind
	}{
		{"exact match", "html", kindHTML},
		{"case insensitive", "HTML", kindHTML},
		{"alias", " AsciiDoc ", kindADOC},
		{"unknown falls back", "docx", kindADOC},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := n.Normalize(tt.input); got != tt.expected {
				t.Errorf("Normalize(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNormalizer_NormalizeWithError(t *testing.T) {
	n := newKinds()

	if got, err := n.NormalizeWithError("TEXT"); err != nil || got != kindText {
		t.Fatalf("expected text, got %v (%v)", got, err)
	}
	if got, err := n.NormalizeWithError(""); err != nil || got != kindADOC {
		t.Fatalf("empty input should yield the default, got %v (%v)", got, err)
	}
	if _, err := n.NormalizeWithError("pdf"); err == nil {
		t.Fatal("expected error for unknown value")
	}
}

func TestNormalizer_ValidKeysSorted(t *testing.T) {
	keys := newKinds().ValidKeys()
	want := []string{"adoc", "asciidoc", "html", "text"}
	if len(keys) != len(want) {
		t.Fatalf("got %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("got %v, want %v", keys, want)
		}
	}
}
