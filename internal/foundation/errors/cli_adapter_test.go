package errors

import (
	"fmt"
	"log/slog"
	"strings"
	"testing"
)

type customError struct{ msg string }

func (e *customError) Error() string { return e.msg }

func TestCLIErrorAdapter_ExitCodeFor(t *testing.T) {
	adapter := NewCLIErrorAdapter(false, slog.Default())

	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{name: "nil error", err: nil, expected: 0},
		{name: "validation", err: ValidationError("title is required").Build(), expected: 2},
		{name: "config", err: ConfigError("bad chapter pattern").Build(), expected: 7},
		{name: "transport", err: TransportError("dial").Build(), expected: 8},
		{name: "publish failure", err: PublishFailure("retries exhausted").Build(), expected: 8},
		{name: "rejection", err: RelayRejection("invalid").Build(), expected: 9},
		{name: "verification", err: VerificationFailure("root not found").Build(), expected: 3},
		{name: "wrapped", err: fmt.Errorf("run: %w", IndexError("open").Build()), expected: 11},
		{name: "unclassified", err: &customError{msg: "unknown"}, expected: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := adapter.ExitCodeFor(tt.err); got != tt.expected {
				t.Errorf("ExitCodeFor() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestCLIErrorAdapter_FormatError(t *testing.T) {
	quiet := NewCLIErrorAdapter(false, nil)
	verbose := NewCLIErrorAdapter(true, nil)

	verification := VerificationFailure("root index not observed").Build()
	if got := quiet.FormatError(verification); !strings.Contains(got, "qc --republish") {
		t.Errorf("expected qc hint, got %q", got)
	}
	if got := quiet.FormatError(InternalError("boom").Build()); !strings.Contains(got, "-v") {
		t.Errorf("expected verbose hint, got %q", got)
	}
	if got := verbose.FormatError(verification); got != verification.Error() {
		t.Errorf("verbose output should be the full error, got %q", got)
	}
	if got := quiet.FormatError(&customError{msg: "x"}); got != "Error: x" {
		t.Errorf("unexpected unclassified format %q", got)
	}
	if got := quiet.FormatError(nil); got != "" {
		t.Errorf("nil should format empty, got %q", got)
	}
}
