// Package relay talks NIP-01 to a relay: EVENT/OK for publishing and
// REQ/EVENT/EOSE/CLOSE for queries. One connection serves one run with strict
// request/response sequencing.
package relay

import (
	"context"
	"encoding/json"
	"strings"

	ferrors "github.com/Silberengel/scriptorium/internal/foundation/errors"
	"github.com/Silberengel/scriptorium/internal/record"
)

// Conn is an open relay session.
type Conn interface {
	// Publish sends one record and waits for the relay's OK.
	Publish(ctx context.Context, r *record.Record) (Ack, error)
	// Query returns every stored record matching f, up to end of stored events.
	Query(ctx context.Context, f Filter) ([]*record.Record, error)
	Close() error
}

// Dialer opens sessions.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// Filter is a NIP-01 subscription filter restricted to the fields used here.
type Filter struct {
	IDs     []string `json:"ids,omitempty"`
	Kinds   []int    `json:"kinds,omitempty"`
	Authors []string `json:"authors,omitempty"`
	DTags   []string `json:"#d,omitempty"`
	Limit   int      `json:"limit,omitempty"`
}

// Matches reports whether r satisfies every set field of f.
func (f Filter) Matches(r *record.Record) bool {
	if len(f.IDs) > 0 && !contains(f.IDs, r.ID) {
		return false
	}
	if len(f.Kinds) > 0 && !contains(f.Kinds, r.Kind) {
		return false
	}
	if len(f.Authors) > 0 && !contains(f.Authors, r.PubKey) {
		return false
	}
	if len(f.DTags) > 0 && !contains(f.DTags, r.DTag()) {
		return false
	}
	return true
}

func contains[T comparable](s []T, v T) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

// Ack is the relay's verdict on an accepted write.
type Ack int

const (
	// AckStored means the relay stored the record.
	AckStored Ack = iota
	// AckDuplicate means the relay already had it (or a newer version).
	AckDuplicate
)

func (a Ack) String() string {
	if a == AckDuplicate {
		return "duplicate"
	}
	return "stored"
}

// OK result prefixes defined by NIP-01.
const (
	prefixDuplicate   = "duplicate:"
	prefixRateLimited = "rate-limited:"
	prefixError       = "error:"
)

// classifyOK turns an OK frame into an Ack, a retryable TransportError, or a
// RelayRejection.
func classifyOK(r *record.Record, accepted bool, message string) (Ack, error) {
	if strings.HasPrefix(message, prefixDuplicate) {
		return AckDuplicate, nil
	}
	if accepted {
		return AckStored, nil
	}
	switch {
	case strings.HasPrefix(message, prefixRateLimited):
		return 0, ferrors.TransportError("relay rate limited the write").RateLimit().
			WithContext("event_id", r.ID).WithContext("message", message).Build()
	case strings.HasPrefix(message, prefixError):
		return 0, ferrors.TransportError("relay failed to store the write").
			WithContext("event_id", r.ID).WithContext("message", message).Build()
	}
	return 0, ferrors.RelayRejection("relay rejected record").
		WithContext("event_id", r.ID).
		WithContext("d_tag", r.DTag()).
		WithContext("message", message).Build()
}

// envelope decodes a relay frame into its label and raw elements.
func envelope(data []byte) (string, []json.RawMessage, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return "", nil, err
	}
	if len(parts) == 0 {
		return "", nil, errEmptyFrame
	}
	var label string
	if err := json.Unmarshal(parts[0], &label); err != nil {
		return "", nil, err
	}
	return label, parts[1:], nil
}

var errEmptyFrame = ferrors.TransportError("empty relay frame").Build()
