package reconcile

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Silberengel/scriptorium/internal/config"
	ferrors "github.com/Silberengel/scriptorium/internal/foundation/errors"
	"github.com/Silberengel/scriptorium/internal/forest"
	"github.com/Silberengel/scriptorium/internal/keys"
	"github.com/Silberengel/scriptorium/internal/localindex"
	"github.com/Silberengel/scriptorium/internal/metadata"
	"github.com/Silberengel/scriptorium/internal/publish"
	"github.com/Silberengel/scriptorium/internal/record"
	"github.com/Silberengel/scriptorium/internal/relay"
	"github.com/Silberengel/scriptorium/internal/retry"
	"github.com/Silberengel/scriptorium/internal/structure"
	"github.com/Silberengel/scriptorium/internal/tags"
)

const secret = "0000000000000000000000000000000000000000000000000000000000000001"

const doc = `== Genesis
=== Genesis Chapter 1
==== 1:1
In the beginning.
==== 1:2
And the earth.
=== Genesis Chapter 2
==== 2:1
Thus the heavens.
== Exodus
=== Exodus Chapter 1
==== 1:1
Now these are the names.
`

func compile(t *testing.T) *localindex.Index {
	t.Helper()
	signer, err := keys.Parse(secret)
	require.NoError(t, err)
	md, err := metadata.Parse([]byte("title: Bible\nauthor: Various\n"))
	require.NoError(t, err)
	opts := structure.DefaultOptions()
	opts.ChapterLevel, opts.SectionLevel = 3, 4
	root, _, err := structure.Parse(doc, md.Title, opts)
	require.NoError(t, err)
	require.NoError(t, tags.Derive(root, md, nil))
	f, err := forest.Compile(root, forest.Options{PubKey: signer.PubKey(), CreatedAt: 1700000000})
	require.NoError(t, err)
	require.NoError(t, f.Sign(signer))
	idx, err := f.Index()
	require.NoError(t, err)
	return idx
}

// countingDialer counts queries passing through a Memory relay.
type countingDialer struct {
	*relay.Memory
	queries atomic.Int32
}

func (d *countingDialer) Dial(ctx context.Context, url string) (relay.Conn, error) {
	c, err := d.Memory.Dial(ctx, url)
	if err != nil {
		return nil, err
	}
	return &countingConn{Conn: c, d: d}, nil
}

type countingConn struct {
	relay.Conn
	d *countingDialer
}

func (c *countingConn) Query(ctx context.Context, f relay.Filter) ([]*record.Record, error) {
	c.d.queries.Add(1)
	return c.Conn.Query(ctx, f)
}

func engine(d relay.Dialer, batch int) *Engine {
	policy := retry.NewPolicy(config.RetryBackoffFixed, time.Millisecond, time.Millisecond, 1)
	return NewEngine(publish.New(d, publish.Options{Retry: policy}), Options{Batch: batch})
}

func seed(t *testing.T, mem *relay.Memory, idx *localindex.Index) {
	t.Helper()
	for _, r := range idx.Records() {
		ok, msg := mem.Store(r)
		require.True(t, ok, msg)
	}
}

func firstContent(idx *localindex.Index) record.Key {
	for _, r := range idx.Records() {
		if r.Kind == record.KindContent {
			return r.Key()
		}
	}
	return record.Key{}
}

func TestReconcileCleanRelay(t *testing.T) {
	idx := compile(t)
	mem := relay.NewMemory()
	seed(t, mem, idx)

	report, err := engine(mem, 0).Reconcile(t.Context(), idx, "wss://relay.test", false)
	require.NoError(t, err)
	assert.True(t, report.Clean())
	assert.Equal(t, idx.Len(), report.Present)
	assert.Empty(t, report.Missing)
	assert.Empty(t, report.Outdated)
}

func TestReconcileRoundTripRepairsOneMissingRecord(t *testing.T) {
	idx := compile(t)
	mem := relay.NewMemory()
	seed(t, mem, idx)
	lost := firstContent(idx)
	require.True(t, mem.Delete(lost))
	writes := mem.Writes()
	e := engine(mem, 0)

	report, err := e.Reconcile(t.Context(), idx, "wss://relay.test", false)
	require.NoError(t, err)
	assert.Equal(t, []record.Key{lost}, report.Missing)
	assert.False(t, report.Clean())
	assert.Equal(t, writes, mem.Writes(), "detection alone writes nothing")

	report, err = e.Reconcile(t.Context(), idx, "wss://relay.test", true)
	require.NoError(t, err)
	assert.Equal(t, []record.Key{lost}, report.Missing)
	assert.Empty(t, report.StillMissing)
	assert.True(t, report.Clean())
	assert.Equal(t, idx.Closure([]record.Key{lost}), report.Republished)
	assert.Equal(t, writes+1, mem.Writes(), "referrers are already present and are acknowledged as duplicates")
	assert.Equal(t, idx.Len(), mem.Len())

	report, err = e.Reconcile(t.Context(), idx, "wss://relay.test", true)
	require.NoError(t, err)
	assert.Empty(t, report.Missing)
	assert.Empty(t, report.Republished)
	assert.Equal(t, writes+1, mem.Writes(), "second run is a no-op")
}

func TestReconcileRepairSendsChildrenFirst(t *testing.T) {
	idx := compile(t)
	mem := relay.NewMemory()
	lost := firstContent(idx)

	report, err := engine(mem, 0).Reconcile(t.Context(), idx, "wss://relay.test", true)
	require.NoError(t, err)
	assert.Len(t, report.Missing, idx.Len())
	require.Len(t, report.Republished, idx.Len())
	assert.Equal(t, lost, report.Republished[0])
	assert.Equal(t, idx.Root().Key(), report.Republished[len(report.Republished)-1])
	assert.Equal(t, idx.Len(), mem.Len())
}

func TestReconcileStillMissingIsReconcileError(t *testing.T) {
	idx := compile(t)
	mem := relay.NewMemory()
	seed(t, mem, idx)
	lost := firstContent(idx)
	mem.Delete(lost)
	mem.DropWrites(true)

	report, err := engine(mem, 0).Reconcile(t.Context(), idx, "wss://relay.test", true)
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryReconcile))
	assert.Equal(t, []record.Key{lost}, report.StillMissing)
	assert.False(t, report.Clean())
}

func TestReconcileDetectsOutdatedRecords(t *testing.T) {
	idx := compile(t)
	mem := relay.NewMemory()
	seed(t, mem, idx)

	signer, err := keys.Parse(secret)
	require.NoError(t, err)
	key := firstContent(idx)
	local, _ := idx.Lookup(key)
	newer := local.Clone()
	newer.CreatedAt += 60
	newer.Content = "Edited elsewhere."
	require.NoError(t, signer.Sign(newer))
	ok, msg := mem.Store(newer)
	require.True(t, ok, msg)

	report, err := engine(mem, 0).Reconcile(t.Context(), idx, "wss://relay.test", true)
	require.NoError(t, err)
	assert.Empty(t, report.Missing)
	require.Len(t, report.Outdated, 1)
	assert.Equal(t, key, report.Outdated[0].Key)
	assert.Equal(t, local.ID, report.Outdated[0].LocalID)
	assert.Equal(t, newer.ID, report.Outdated[0].RelayID)
	assert.Empty(t, report.Republished, "outdated records are reported, not overwritten")
}

func TestReconcileBatchesDTagQueries(t *testing.T) {
	idx := compile(t)
	d := &countingDialer{Memory: relay.NewMemory()}
	seed(t, d.Memory, idx)

	groups := idx.Authors()
	want := 0
	for _, keys := range groups {
		want += (len(keys) + 1) / 2
	}

	report, err := engine(d, 2).Reconcile(t.Context(), idx, "wss://relay.test", false)
	require.NoError(t, err)
	assert.True(t, report.Clean())
	assert.Equal(t, int32(want), d.queries.Load())
}

func TestReconcileEmptyIndexDoesNotDial(t *testing.T) {
	mem := relay.NewMemory()
	idx, err := localindex.New(nil)
	require.NoError(t, err)

	report, err := engine(mem, 0).Reconcile(t.Context(), idx, "wss://relay.test", true)
	require.NoError(t, err)
	assert.True(t, report.Clean())
	assert.Zero(t, mem.Dials())
}

func TestReportTable(t *testing.T) {
	r := &Report{
		Relay:        "wss://relay.test",
		Expected:     3,
		Present:      2,
		Repair:       true,
		Missing:      []record.Key{{Kind: record.KindContent, PubKey: "p", DTag: "bible-genesis-1-1"}},
		StillMissing: []record.Key{{Kind: record.KindContent, PubKey: "p", DTag: "bible-genesis-1-1"}},
	}
	out := r.Table()
	assert.Contains(t, out, "wss://relay.test")
	assert.Contains(t, out, "bible-genesis-1-1")
	assert.Contains(t, out, "still missing")
	assert.Equal(t, map[string]int{
		"expected": 3, "present": 2, "missing": 1, "outdated": 0, "republished": 0, "still_missing": 1,
	}, r.Counters())
}
