package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Silberengel/scriptorium/internal/config"
	ferrors "github.com/Silberengel/scriptorium/internal/foundation/errors"
)

// TestDefaultPolicy verifies the baseline default values.
func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	if p.Mode != config.RetryBackoffLinear {
		t.Fatalf("expected linear default mode got %s", p.Mode)
	}
	if p.Initial != time.Second || p.Max != 30*time.Second || p.MaxRetries != 2 {
		t.Fatalf("unexpected default policy %+v", p)
	}
}

// TestNewPolicyOverrides checks override precedence and clamping when initial > max.
func TestNewPolicyOverrides(t *testing.T) {
	p := NewPolicy("FIXED", 5*time.Second, 2*time.Second, 5)
	if p.Initial != 2*time.Second {
		t.Fatalf("expected clamped initial 2s got %v", p.Initial)
	}
	if p.Mode != config.RetryBackoffFixed {
		t.Fatalf("expected fixed mode got %s", p.Mode)
	}
	if p.MaxRetries != 5 {
		t.Fatalf("expected maxRetries 5 got %d", p.MaxRetries)
	}

	if q := NewPolicy("weird", 250*time.Millisecond, 500*time.Millisecond, 1); q.Mode != config.RetryBackoffLinear {
		t.Fatalf("unknown mode should fall back to linear got %s", q.Mode)
	}
}

func TestFromConfig(t *testing.T) {
	p := FromConfig(config.RetryConfig{Backoff: config.RetryBackoffExponential, Initial: time.Millisecond, Max: time.Second, MaxRetries: 0})
	if p.Mode != config.RetryBackoffExponential || p.MaxRetries != 0 || p.Initial != time.Millisecond {
		t.Fatalf("unexpected policy %+v", p)
	}
}

// TestDelayModes ensures fixed, linear, exponential behave and respect cap.
func TestDelayModes(t *testing.T) {
	ms := time.Millisecond
	cases := []struct {
		name    string
		policy  Policy
		attempt int
		want    time.Duration
	}{
		{"fixed 1", NewPolicy(config.RetryBackoffFixed, 100*ms, 500*ms, 3), 1, 100 * ms},
		{"fixed 3", NewPolicy(config.RetryBackoffFixed, 100*ms, 500*ms, 3), 3, 100 * ms},
		{"linear 2", NewPolicy(config.RetryBackoffLinear, 100*ms, 250*ms, 5), 2, 200 * ms},
		{"linear capped", NewPolicy(config.RetryBackoffLinear, 100*ms, 250*ms, 5), 3, 250 * ms},
		{"exponential 2", NewPolicy(config.RetryBackoffExponential, 50*ms, 160*ms, 5), 2, 100 * ms},
		{"exponential capped", NewPolicy(config.RetryBackoffExponential, 50*ms, 160*ms, 5), 4, 160 * ms},
		{"zero attempt", NewPolicy(config.RetryBackoffLinear, 10*ms, 20*ms, 1), 0, 0},
		{"negative attempt", NewPolicy(config.RetryBackoffLinear, 10*ms, 20*ms, 1), -1, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.policy.Delay(tc.attempt); got != tc.want {
				t.Fatalf("attempt %d expected %v got %v", tc.attempt, tc.want, got)
			}
		})
	}
}

// TestValidate covers validation error paths.
func TestValidate(t *testing.T) {
	bad := []Policy{
		{Mode: config.RetryBackoffLinear, Initial: 0, Max: time.Second, MaxRetries: 1},
		{Mode: config.RetryBackoffLinear, Initial: time.Second, Max: 0, MaxRetries: 1},
		{Mode: config.RetryBackoffLinear, Initial: time.Second, Max: 2 * time.Second, MaxRetries: -1},
	}
	for i, p := range bad {
		if err := p.Validate(); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
	good := Policy{Mode: config.RetryBackoffLinear, Initial: time.Second, Max: 2 * time.Second, MaxRetries: 0}
	if err := good.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}

func TestDoRetriesTransientErrors(t *testing.T) {
	p := NewPolicy(config.RetryBackoffFixed, time.Millisecond, time.Millisecond, 2)

	calls := 0
	attempts, err := p.Do(t.Context(), func(int) error {
		calls++
		if calls < 3 {
			return ferrors.TransportError("connection reset").Build()
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if attempts != 3 || calls != 3 {
		t.Fatalf("expected 3 attempts, got %d (calls %d)", attempts, calls)
	}
}

func TestDoStopsWhenRetriesExhausted(t *testing.T) {
	p := NewPolicy(config.RetryBackoffFixed, time.Millisecond, time.Millisecond, 1)

	attempts, err := p.Do(t.Context(), func(int) error {
		return ferrors.TransportError("timeout").Build()
	})
	if !ferrors.HasCategory(err, ferrors.CategoryTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected first try plus one retry, got %d", attempts)
	}
}

func TestDoNeverRetriesRejections(t *testing.T) {
	p := NewPolicy(config.RetryBackoffFixed, time.Millisecond, time.Millisecond, 5)

	attempts, err := p.Do(t.Context(), func(int) error {
		return ferrors.RelayRejection("invalid: bad signature").Build()
	})
	if attempts != 1 {
		t.Fatalf("rejection must not be retried, got %d attempts", attempts)
	}
	if !ferrors.HasCategory(err, ferrors.CategoryRelayRejection) {
		t.Fatalf("unexpected error %v", err)
	}

	plain := errors.New("plain")
	if _, err := p.Do(t.Context(), func(int) error { return plain }); !errors.Is(err, plain) {
		t.Fatalf("unclassified errors are returned as-is, got %v", err)
	}
}

func TestDoHonoursCancellation(t *testing.T) {
	p := NewPolicy(config.RetryBackoffFixed, time.Hour, time.Hour, 3)
	ctx, cancel := context.WithCancel(t.Context())

	_, err := p.Do(ctx, func(int) error {
		cancel()
		return ferrors.TransportError("dial").Build()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
