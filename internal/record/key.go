package record

import (
	"cmp"
	"fmt"
	"strconv"
	"strings"

	ferrors "github.com/Silberengel/scriptorium/internal/foundation/errors"
)

// Key is the (kind, author, d-tag) triple that names a replaceable record.
type Key struct {
	Kind   int
	PubKey string
	DTag   string
}

// Address renders the key as "<kind>:<pubkey>:<d>".
func (k Key) Address() string {
	return strconv.Itoa(k.Kind) + ":" + k.PubKey + ":" + k.DTag
}

func (k Key) String() string { return k.Address() }

// Compare orders keys by kind, author, then d-tag.
func (k Key) Compare(o Key) int {
	if c := cmp.Compare(k.Kind, o.Kind); c != 0 {
		return c
	}
	if c := cmp.Compare(k.PubKey, o.PubKey); c != 0 {
		return c
	}
	return cmp.Compare(k.DTag, o.DTag)
}

// ParseAddress parses "<kind>:<pubkey>:<d>". The d-tag may itself contain colons.
func ParseAddress(s string) (Key, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 {
		return Key{}, ferrors.ValidationError("invalid address, expected kind:pubkey:d-tag").
			WithContext("address", s).Build()
	}
	kind, err := strconv.Atoi(parts[0])
	if err != nil {
		return Key{}, ferrors.ValidationError("invalid address kind").
			WithCause(err).WithContext("address", s).Build()
	}
	return Key{Kind: kind, PubKey: parts[1], DTag: parts[2]}, nil
}

// Reference is a parent→child link carried as
// ["a", "<kind>:<pubkey>:<d>", <relay hint>, <event id>].
type Reference struct {
	Key       Key
	RelayHint string
	EventID   string
}

// Tag renders the reference as an "a" tag.
func (r Reference) Tag() []string {
	return []string{TagAddress, r.Key.Address(), r.RelayHint, r.EventID}
}

func (r Reference) String() string {
	return fmt.Sprintf("%s@%s", r.Key.Address(), r.EventID)
}
