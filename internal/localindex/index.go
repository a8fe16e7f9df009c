// Package localindex keeps the compiled, signed record set keyed by
// (kind, author, d-tag) together with each record's topological position,
// and persists it between runs.
package localindex

import (
	"slices"

	ferrors "github.com/Silberengel/scriptorium/internal/foundation/errors"
	"github.com/Silberengel/scriptorium/internal/record"
)

// Index is an immutable view of one compiled publication. Records are held in
// topological order: children before ancestors, root last.
type Index struct {
	records   []*record.Record
	pos       map[record.Key]int
	referrers map[record.Key][]record.Key
}

// New builds an index from records in topological order.
func New(records []*record.Record) (*Index, error) {
	idx := &Index{
		records:   records,
		pos:       make(map[record.Key]int, len(records)),
		referrers: make(map[record.Key][]record.Key),
	}
	for i, r := range records {
		key := r.Key()
		if key.DTag == "" {
			return nil, ferrors.IndexError("record without d-tag").
				WithContext("position", i).WithContext("event_id", r.ID).Build()
		}
		if _, dup := idx.pos[key]; dup {
			return nil, ferrors.IndexError("duplicate key in index").
				WithContext("key", key.Address()).Build()
		}
		idx.pos[key] = i
	}
	for _, r := range records {
		parent := r.Key()
		for _, child := range r.References() {
			idx.referrers[child] = append(idx.referrers[child], parent)
		}
	}
	return idx, nil
}

// Len returns the number of records.
func (x *Index) Len() int { return len(x.records) }

// Records returns the records in topological order. The slice must not be modified.
func (x *Index) Records() []*record.Record { return x.records }

// Root returns the last record, or nil for an empty index.
func (x *Index) Root() *record.Record {
	if len(x.records) == 0 {
		return nil
	}
	return x.records[len(x.records)-1]
}

// Lookup returns the record stored for key.
func (x *Index) Lookup(key record.Key) (*record.Record, bool) {
	i, ok := x.pos[key]
	if !ok {
		return nil, false
	}
	return x.records[i], true
}

// Position returns the topological position of key, or -1.
func (x *Index) Position(key record.Key) int {
	if i, ok := x.pos[key]; ok {
		return i
	}
	return -1
}

// Keys returns every key in topological order.
func (x *Index) Keys() []record.Key {
	out := make([]record.Key, len(x.records))
	for i, r := range x.records {
		out[i] = r.Key()
	}
	return out
}

// Referrers returns the keys of records holding an "a" tag to key.
func (x *Index) Referrers(key record.Key) []record.Key {
	return x.referrers[key]
}

// Closure returns keys plus every record that transitively references one of
// them, sorted by topological position. Keys unknown to the index are dropped.
func (x *Index) Closure(keys []record.Key) []record.Key {
	seen := make(map[record.Key]bool, len(keys))
	queue := make([]record.Key, 0, len(keys))
	for _, k := range keys {
		if _, ok := x.pos[k]; ok && !seen[k] {
			seen[k] = true
			queue = append(queue, k)
		}
	}
	for len(queue) > 0 {
		k := queue[0]
		queue = queue[1:]
		for _, parent := range x.referrers[k] {
			if !seen[parent] {
				seen[parent] = true
				queue = append(queue, parent)
			}
		}
	}
	out := make([]record.Key, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	x.SortByPosition(out)
	return out
}

// SortByPosition sorts keys in place by topological position. Unknown keys
// sort last, ordered by key.
func (x *Index) SortByPosition(keys []record.Key) {
	slices.SortFunc(keys, func(a, b record.Key) int {
		pa, pb := x.Position(a), x.Position(b)
		switch {
		case pa < 0 && pb < 0:
			return a.Compare(b)
		case pa < 0:
			return 1
		case pb < 0:
			return -1
		}
		return pa - pb
	})
}

// Authors groups the index keys by (kind, author), preserving topological order
// within each group.
func (x *Index) Authors() map[Group][]record.Key {
	out := make(map[Group][]record.Key)
	for _, r := range x.records {
		g := Group{Kind: r.Kind, PubKey: r.PubKey}
		out[g] = append(out[g], r.Key())
	}
	return out
}

// Group is the (kind, author) pair relay queries are batched by.
type Group struct {
	Kind   int
	PubKey string
}
