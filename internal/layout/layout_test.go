package layout

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "github.com/Silberengel/scriptorium/internal/foundation/errors"
	"github.com/Silberengel/scriptorium/internal/record"
)

func TestEnsureCreatesTree(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "out"))
	require.NoError(t, l.Ensure())
	for _, dir := range []string{l.ADOCDir(), l.EventsDir(), l.IndexDir(), l.LogsDir(), l.CacheDir(), l.MetricsDir()} {
		info, err := os.Stat(dir)
		require.NoError(t, err, dir)
		assert.True(t, info.IsDir())
	}
	assert.Equal(t, filepath.Join(l.Base, "events", "events.ndjson"), l.EventsFile())
	assert.Equal(t, filepath.Join(l.Base, "index", "index.db"), l.IndexDB())
}

func TestEventsRoundTrip(t *testing.T) {
	l := New(t.TempDir())
	require.NoError(t, l.Ensure())
	recs := []*record.Record{
		record.New(record.KindContent, "ab", 1700000000, [][]string{{"d", "x-1"}}, "a <b> & \"c\"\nline"),
		record.New(record.KindIndex, "ab", 1700000000, [][]string{{"d", "x"}, {"a", "30041:ab:x-1", "", ""}}, ""),
	}

	require.NoError(t, WriteEvents(l.EventsFile(), recs))
	raw, err := os.ReadFile(l.EventsFile())
	require.NoError(t, err)
	assert.Contains(t, string(raw), "a <b> & ")
	assert.Equal(t, 2, len(splitLines(raw)))

	got, err := ReadEvents(l.EventsFile())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, recs[0].Content, got[0].Content)
	assert.Equal(t, recs[1].Tags, got[1].Tags)
	assert.Equal(t, "x", got[1].DTag())
}

func TestReadEventsRejectsMalformedLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.ndjson")
	require.NoError(t, os.WriteFile(path, []byte("{\"kind\":30041}\nnot json\n"), 0o600))

	_, err := ReadEvents(path)
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryIndex))
}

func TestCacheIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "event_index.json")
	require.NoError(t, WriteCacheIndex(path, []record.Key{{DTag: "a"}, {DTag: "b"}}))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"count":2,"d":["a","b"]}`, string(raw))
}

func TestRunLockIsExclusive(t *testing.T) {
	l := New(t.TempDir())
	first, err := l.Acquire()
	require.NoError(t, err)

	_, err = l.Acquire()
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryRuntime))

	require.NoError(t, first.Release())
	second, err := l.Acquire()
	require.NoError(t, err)
	require.NoError(t, second.Release())
}

func splitLines(b []byte) []string {
	var out []string
	start := 0
	for i, c := range b {
		if c == '\n' {
			out = append(out, string(b[start:i]))
			start = i + 1
		}
	}
	return out
}
