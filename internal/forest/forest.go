// Package forest compiles a tagged publication tree into an ordered forest of
// records. Pass 1 builds unsigned records in post-order; pass 2 signs them in
// that order, linking every child into its parent before the parent is signed.
package forest

import (
	"slices"

	ferrors "github.com/Silberengel/scriptorium/internal/foundation/errors"
	"github.com/Silberengel/scriptorium/internal/localindex"
	"github.com/Silberengel/scriptorium/internal/record"
	"github.com/Silberengel/scriptorium/internal/structure"
)

// Signer fills ID and Sig of a record.
type Signer interface {
	PubKey() string
	Sign(r *record.Record) error
}

// Options controls pass 1.
type Options struct {
	PubKey    string
	CreatedAt int64
	RelayHint string

	// Previous returns the record compiled for key by an earlier run. When a
	// record and all of its descendants are unchanged, the earlier creation
	// time is reused so the regenerated record is byte-identical.
	Previous func(key record.Key) (*record.Record, bool)
}

type entry struct {
	rec      *record.Record
	node     *structure.Node
	parent   int
	children []int
	baseTags int
	reused   bool
}

// Forest is the compiled record set in topological order: every child
// precedes its ancestors and the root is last.
type Forest struct {
	entries   []*entry
	byKey     map[record.Key]int
	relayHint string
	signed    int
}

// Compile runs pass 1 over a tree whose tags have already been derived.
func Compile(root *structure.Node, opts Options) (*Forest, error) {
	if opts.PubKey == "" {
		return nil, ferrors.InternalError("compile requires the author public key").Build()
	}

	order := root.PostOrder()
	pos := make(map[*structure.Node]int, len(order))
	for i, n := range order {
		pos[n] = i
	}

	f := &Forest{
		entries:   make([]*entry, len(order)),
		byKey:     make(map[record.Key]int, len(order)),
		relayHint: opts.RelayHint,
	}

	for i, n := range order {
		if n.DTag == "" {
			return nil, ferrors.ValidationError("node has no d-tag").
				WithContext("title", n.Title).WithContext("line", n.Line).Build()
		}
		kind, content := record.KindContent, n.Body
		if n.IsIndex() {
			kind, content = record.KindIndex, ""
		}
		e := &entry{
			rec:      record.New(kind, opts.PubKey, opts.CreatedAt, n.Tags, content),
			node:     n,
			parent:   -1,
			baseTags: len(n.Tags),
		}
		for _, c := range n.Children {
			ci := pos[c]
			e.children = append(e.children, ci)
			f.entries[ci].parent = i
		}

		key := e.rec.Key()
		if prev, ok := f.byKey[key]; ok {
			return nil, ferrors.ValidationError("duplicate d-tag in publication").
				WithContext("d_tag", key.DTag).
				WithContext("first", f.entries[prev].node.Title).
				WithContext("second", n.Title).Build()
		}
		f.byKey[key] = i
		f.entries[i] = e

		if opts.Previous != nil {
			f.reuseCreatedAt(e, opts.Previous)
		}
	}
	return f, nil
}

// reuseCreatedAt keeps the earlier creation time when the record body and
// every child are unchanged. Children come first, so their verdict is known.
func (f *Forest) reuseCreatedAt(e *entry, previous func(record.Key) (*record.Record, bool)) {
	prev, ok := previous(e.rec.Key())
	if !ok || prev.Content != e.rec.Content {
		return
	}
	for _, ci := range e.children {
		if !f.entries[ci].reused {
			return
		}
	}
	base := withoutReferences(prev.Tags)
	if !slices.EqualFunc(base, e.rec.Tags, func(a, b []string) bool { return slices.Equal(a, b) }) {
		return
	}
	if len(prev.References()) != len(e.children) {
		return
	}
	e.rec.CreatedAt = prev.CreatedAt
	e.reused = true
}

func withoutReferences(tags [][]string) [][]string {
	out := make([][]string, 0, len(tags))
	for _, t := range tags {
		if len(t) > 0 && t[0] == record.TagAddress {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Sign runs pass 2 from the first unsigned record.
func (f *Forest) Sign(s Signer) error {
	return f.SignFrom(f.signed, s)
}

// SignFrom signs records i..n-1 in order. It can resume after a failure at
// any position up to the first unsigned record; a parent's references are
// rebuilt from its signed children each time it is signed.
func (f *Forest) SignFrom(i int, s Signer) error {
	if i < 0 || i > f.signed {
		return ferrors.InternalError("cannot resume signing past the first unsigned record").
			WithContext("position", i).WithContext("signed", f.signed).Build()
	}
	if s.PubKey() != f.entries[len(f.entries)-1].rec.PubKey {
		return ferrors.InternalError("signer key differs from compiled author").Build()
	}
	f.signed = i
	for ; i < len(f.entries); i++ {
		e := f.entries[i]
		e.rec.Tags = e.rec.Tags[:e.baseTags]
		for _, ci := range e.children {
			e.rec.AppendReference(f.entries[ci].rec, f.relayHint)
		}
		if err := s.Sign(e.rec); err != nil {
			return err
		}
		f.signed = i + 1
	}
	return nil
}

// Signed reports whether every record is signed.
func (f *Forest) Signed() bool { return f.signed == len(f.entries) }

// Len returns the number of records.
func (f *Forest) Len() int { return len(f.entries) }

// Records returns the records in topological order.
func (f *Forest) Records() []*record.Record {
	out := make([]*record.Record, len(f.entries))
	for i, e := range f.entries {
		out[i] = e.rec
	}
	return out
}

// Root returns the root record.
func (f *Forest) Root() *record.Record {
	return f.entries[len(f.entries)-1].rec
}

// Lookup returns the record compiled for key.
func (f *Forest) Lookup(key record.Key) (*record.Record, bool) {
	i, ok := f.byKey[key]
	if !ok {
		return nil, false
	}
	return f.entries[i].rec, true
}

// Node returns the tree node a record was compiled from.
func (f *Forest) Node(key record.Key) (*structure.Node, bool) {
	i, ok := f.byKey[key]
	if !ok {
		return nil, false
	}
	return f.entries[i].node, true
}

// Reused returns the number of records whose creation time was carried over
// from an earlier compilation.
func (f *Forest) Reused() int {
	n := 0
	for _, e := range f.entries {
		if e.reused {
			n++
		}
	}
	return n
}

// Keys returns every key in topological order.
func (f *Forest) Keys() []record.Key {
	keys := make([]record.Key, len(f.entries))
	for i, e := range f.entries {
		keys[i] = e.rec.Key()
	}
	return keys
}

// Index returns the signed forest as a LocalIndex.
func (f *Forest) Index() (*localindex.Index, error) {
	if !f.Signed() {
		return nil, ferrors.InternalError("forest is not fully signed").
			WithContext("signed", f.signed).WithContext("total", len(f.entries)).Build()
	}
	return localindex.New(f.Records())
}
