// Package record defines the signed publication record (a NIP-01 event of kind
// 30040 or 30041), its canonical serialization and content-addressed id, and
// the address references ("a" tags) that link index records to their children.
package record

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strconv"
	"strings"
)

const (
	// KindIndex is a publication index record (collection, book or chapter).
	KindIndex = 30040
	// KindContent is a publication content record (section).
	KindContent = 30041
)

// TagAddress is the tag name of a parent→child reference.
const TagAddress = "a"

// Record is one publication event. Pass 1 of compilation produces records with
// empty ID and Sig; signing fills both.
type Record struct {
	ID        string     `json:"id"`
	PubKey    string     `json:"pubkey"`
	CreatedAt int64      `json:"created_at"`
	Kind      int        `json:"kind"`
	Tags      [][]string `json:"tags"`
	Content   string     `json:"content"`
	Sig       string     `json:"sig"`
}

// New returns an unsigned record. Tags are copied.
func New(kind int, pubkey string, createdAt int64, tags [][]string, content string) *Record {
	return &Record{
		PubKey:    pubkey,
		CreatedAt: createdAt,
		Kind:      kind,
		Tags:      cloneTags(tags),
		Content:   content,
	}
}

// DTag returns the value of the first "d" tag.
func (r *Record) DTag() string {
	for _, t := range r.Tags {
		if len(t) > 1 && t[0] == "d" {
			return t[1]
		}
	}
	return ""
}

// Key identifies the record's replaceable slot.
func (r *Record) Key() Key {
	return Key{Kind: r.Kind, PubKey: r.PubKey, DTag: r.DTag()}
}

// Signed reports whether the record carries an id and a signature.
func (r *Record) Signed() bool {
	return r.ID != "" && r.Sig != ""
}

// Serialize returns the canonical NIP-01 form [0,pubkey,created_at,kind,tags,content].
func (r *Record) Serialize() []byte {
	var b strings.Builder
	b.Grow(len(r.Content) + 64*len(r.Tags) + 128)
	b.WriteString(`[0,`)
	writeString(&b, r.PubKey)
	b.WriteByte(',')
	b.WriteString(strconv.FormatInt(r.CreatedAt, 10))
	b.WriteByte(',')
	b.WriteString(strconv.Itoa(r.Kind))
	b.WriteString(",[")
	for i, tag := range r.Tags {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('[')
		for j, v := range tag {
			if j > 0 {
				b.WriteByte(',')
			}
			writeString(&b, v)
		}
		b.WriteByte(']')
	}
	b.WriteString("],")
	writeString(&b, r.Content)
	b.WriteByte(']')
	return []byte(b.String())
}

// ComputeID returns the hex sha256 of the canonical serialization.
func (r *Record) ComputeID() string {
	sum := sha256.Sum256(r.Serialize())
	return hex.EncodeToString(sum[:])
}

// Hash returns the raw sha256 of the canonical serialization; this is the
// message that gets signed.
func (r *Record) Hash() [32]byte {
	return sha256.Sum256(r.Serialize())
}

// CheckID reports whether ID matches the record's content.
func (r *Record) CheckID() bool {
	return r.ID != "" && r.ID == r.ComputeID()
}

// AppendReference adds an "a" tag pointing at child.
func (r *Record) AppendReference(child *Record, relayHint string) {
	r.Tags = append(r.Tags, child.Reference(relayHint).Tag())
}

// Reference returns the address reference to this record.
func (r *Record) Reference(relayHint string) Reference {
	return Reference{Key: r.Key(), RelayHint: relayHint, EventID: r.ID}
}

// References returns the keys of every well-formed "a" tag, in tag order.
func (r *Record) References() []Key {
	var out []Key
	for _, t := range r.Tags {
		if len(t) < 2 || t[0] != TagAddress {
			continue
		}
		if k, err := ParseAddress(t[1]); err == nil {
			out = append(out, k)
		}
	}
	return out
}

// Clone returns a deep copy.
func (r *Record) Clone() *Record {
	c := *r
	c.Tags = cloneTags(r.Tags)
	return &c
}

func cloneTags(tags [][]string) [][]string {
	out := make([][]string, len(tags))
	for i, t := range tags {
		out[i] = slices.Clone(t)
	}
	return out
}

// writeString writes s as a JSON string, escaping only the characters NIP-01
// requires. Everything else, including non-ASCII and other control
// characters, is written verbatim.
func writeString(b *strings.Builder, s string) {
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case '\b':
			b.WriteString(`\b`)
		case '\f':
			b.WriteString(`\f`)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('"')
}
