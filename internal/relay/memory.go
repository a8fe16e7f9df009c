package relay

import (
	"context"
	"sync"

	"github.com/Silberengel/scriptorium/internal/keys"
	"github.com/Silberengel/scriptorium/internal/record"
)

// Memory is an in-process relay that stores one record per key, newest wins.
// It implements Dialer so it can stand in for a real relay.
type Memory struct {
	mu        sync.Mutex
	events    map[record.Key]*record.Record
	writes    int
	dials     int
	dropAll   bool
	failQueue []string
	reject    func(*record.Record) string
}

// NewMemory returns an empty relay.
func NewMemory() *Memory {
	return &Memory{events: make(map[record.Key]*record.Record)}
}

// Dial returns a session on m.
func (m *Memory) Dial(ctx context.Context, _ string) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.dials++
	m.mu.Unlock()
	return &memConn{m: m}, nil
}

// DropWrites makes the relay acknowledge writes without storing them.
func (m *Memory) DropWrites(drop bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropAll = drop
}

// FailNext queues OK=false messages returned by the next writes, one each.
func (m *Memory) FailNext(messages ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failQueue = append(m.failQueue, messages...)
}

// RejectWhen installs a predicate; a non-empty result rejects the write with
// that message.
func (m *Memory) RejectWhen(fn func(*record.Record) string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reject = fn
}

// Store applies one write and returns the OK verdict.
func (m *Memory) Store(r *record.Record) (bool, string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.failQueue) > 0 {
		msg := m.failQueue[0]
		m.failQueue = m.failQueue[1:]
		return false, msg
	}
	if err := keys.Verify(r); err != nil {
		return false, "invalid: " + err.Error()
	}
	if m.reject != nil {
		if msg := m.reject(r); msg != "" {
			return false, msg
		}
	}
	if m.dropAll {
		return true, ""
	}

	key := r.Key()
	if cur, ok := m.events[key]; ok {
		if cur.ID == r.ID {
			return true, "duplicate: already have this event"
		}
		if cur.CreatedAt > r.CreatedAt || (cur.CreatedAt == r.CreatedAt && cur.ID < r.ID) {
			return true, "duplicate: have a newer version"
		}
	}
	m.events[key] = r.Clone()
	m.writes++
	return true, ""
}

// Find returns stored records matching f.
func (m *Memory) Find(f Filter) []*record.Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*record.Record
	for _, r := range m.events {
		if f.Matches(r) {
			out = append(out, r.Clone())
			if f.Limit > 0 && len(out) == f.Limit {
				break
			}
		}
	}
	return out
}

// Get returns the record stored for key.
func (m *Memory) Get(key record.Key) (*record.Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.events[key]
	if !ok {
		return nil, false
	}
	return r.Clone(), true
}

// Delete removes key, simulating a relay that lost a record.
func (m *Memory) Delete(key record.Key) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.events[key]
	delete(m.events, key)
	return ok
}

// Len returns the number of stored records.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

// Writes returns how many writes changed stored state.
func (m *Memory) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// Dials returns how many sessions were opened.
func (m *Memory) Dials() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dials
}

type memConn struct {
	m *Memory
}

func (c *memConn) Publish(ctx context.Context, r *record.Record) (Ack, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	ok, msg := c.m.Store(r)
	return classifyOK(r, ok, msg)
}

func (c *memConn) Query(ctx context.Context, f Filter) ([]*record.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.m.Find(f), nil
}

func (c *memConn) Close() error { return nil }
