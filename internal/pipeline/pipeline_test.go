package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Silberengel/scriptorium/internal/config"
	ferrors "github.com/Silberengel/scriptorium/internal/foundation/errors"
	"github.com/Silberengel/scriptorium/internal/layout"
	"github.com/Silberengel/scriptorium/internal/localindex"
	"github.com/Silberengel/scriptorium/internal/notify"
	"github.com/Silberengel/scriptorium/internal/record"
	"github.com/Silberengel/scriptorium/internal/relay"
	"github.com/Silberengel/scriptorium/internal/structure"
)

const document = `= Bible

== Genesis

=== Genesis Chapter 1

==== 1:1
In the beginning.

==== 1:2
And the earth.
`

type fixture struct {
	cfg   *config.Config
	input string
	mem   *relay.Memory
	notes *recordingNotifier
	svc   *Service
}

type recordingNotifier struct {
	reports []notify.RunReport
}

func (n *recordingNotifier) Notify(_ context.Context, r notify.RunReport) error {
	n.reports = append(n.reports, r)
	return nil
}

func (n *recordingNotifier) Close() {}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	t.Chdir(t.TempDir())
	src := t.TempDir()
	input := filepath.Join(src, "bible.adoc")
	require.NoError(t, os.WriteFile(input, []byte(document), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(src, "@metadata.yml"), []byte("title: Bible\nauthor: Various\n"), 0o600))

	t.Setenv(config.EnvKey, "0000000000000000000000000000000000000000000000000000000000000001")
	t.Setenv(config.EnvOut, filepath.Join(t.TempDir(), "out"))
	t.Setenv(config.EnvRelay, "wss://relay.test")
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Retry = config.RetryConfig{Backoff: config.RetryBackoffFixed, Initial: time.Millisecond, Max: time.Millisecond, MaxRetries: 1}
	cfg.Relay.Rate = 0

	f := &fixture{cfg: cfg, input: input, mem: relay.NewMemory(), notes: &recordingNotifier{}}
	f.svc = New(cfg,
		WithDialer(f.mem),
		WithNotifier(f.notes),
		WithClock(func() time.Time { return time.Unix(1700000000, 0) }))
	return f
}

func (f *fixture) request() GenerateRequest {
	opts := structure.DefaultOptions()
	opts.ChapterLevel, opts.SectionLevel = 3, 4
	return GenerateRequest{Input: f.input, Structure: opts}
}

func TestGenerateWritesArtifacts(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.Generate(t.Context(), f.request())
	require.NoError(t, err)
	assert.Equal(t, 5, res.Records)
	assert.Equal(t, 3, res.Index)
	assert.Equal(t, 2, res.Content)
	assert.Equal(t, "bible", res.Root.DTag)
	assert.False(t, res.Unchanged)
	assert.Empty(t, res.Diagnostics)

	l := f.svc.Layout()
	events, err := layout.ReadEvents(l.EventsFile())
	require.NoError(t, err)
	require.Len(t, events, 5)
	assert.Equal(t, record.KindContent, events[0].Kind)
	assert.Equal(t, res.Root, events[4].Key())

	normalized, err := os.ReadFile(l.NormalizedDocument())
	require.NoError(t, err)
	assert.Contains(t, string(normalized), "==== 1:1\nIn the beginning.")
	assert.FileExists(t, l.CacheIndex())
}

func TestRegenerateIsByteIdentical(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Generate(t.Context(), f.request())
	require.NoError(t, err)
	first, err := os.ReadFile(f.svc.Layout().EventsFile())
	require.NoError(t, err)

	later := New(f.cfg, WithDialer(f.mem), WithClock(func() time.Time { return time.Unix(1800000000, 0) }))
	res, err := later.Generate(t.Context(), f.request())
	require.NoError(t, err)
	assert.True(t, res.Unchanged)
	assert.Equal(t, res.Records, res.Reused)

	second, err := os.ReadFile(f.svc.Layout().EventsFile())
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}

func TestPublishAndQCRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	_, err := f.svc.Generate(ctx, f.request())
	require.NoError(t, err)

	pub, err := f.svc.Publish(ctx)
	require.NoError(t, err)
	assert.True(t, pub.RootVerified)
	assert.Equal(t, 5, f.mem.Len())

	report, err := f.svc.QC(ctx, false)
	require.NoError(t, err)
	assert.True(t, report.Clean())

	events, err := layout.ReadEvents(f.svc.Layout().EventsFile())
	require.NoError(t, err)
	lost := events[0].Key()
	require.True(t, f.mem.Delete(lost))

	report, err = f.svc.QC(ctx, false)
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryReconcile))
	assert.Equal(t, []record.Key{lost}, report.Missing)

	report, err = f.svc.QC(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, report.StillMissing)
	assert.Equal(t, 5, f.mem.Len())

	store, err := localindex.Open(f.svc.Layout().IndexDB())
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	runs, err := store.Runs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 5)
	assert.Equal(t, StageQC, runs[0].Type)
	assert.Equal(t, localindex.RunSucceeded, runs[0].Status)
	assert.Equal(t, 1, runs[0].Summary["missing"])
	assert.Equal(t, localindex.RunFailed, runs[1].Status)

	require.Len(t, f.notes.reports, 5)
	assert.Equal(t, StageGenerate, f.notes.reports[0].Type)
	assert.Equal(t, "failed", f.notes.reports[3].Status)
	assert.NotEmpty(t, f.notes.reports[3].Error)
}

func TestPublishWithoutGenerate(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Publish(t.Context())
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryIndex))
	assert.Zero(t, f.mem.Dials())
}

func TestAllRunsEveryStage(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.All(t.Context(), f.request(), true)
	require.NoError(t, err)
	require.NotNil(t, res.Generate)
	require.NotNil(t, res.Publish)
	require.NotNil(t, res.QC)
	assert.True(t, res.QC.Clean())
	assert.Equal(t, 5, f.mem.Len())
}

func TestGenerateRequiresKey(t *testing.T) {
	f := newFixture(t)
	f.cfg.SecretKey = ""

	_, err := f.svc.Generate(t.Context(), f.request())
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig))
}

func TestRunsAreExclusivePerOutputDirectory(t *testing.T) {
	f := newFixture(t)
	lock, err := f.svc.Layout().Acquire()
	require.NoError(t, err)
	defer func() { _ = lock.Release() }()

	_, err = f.svc.Generate(t.Context(), f.request())
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryRuntime))
}

func TestMetricsTextfile(t *testing.T) {
	f := newFixture(t)
	f.cfg.Metrics = config.MetricsConfig{Enabled: true, Textfile: "metrics/run.prom"}

	_, err := f.svc.All(t.Context(), f.request(), false)
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(f.svc.Layout().Base, "metrics", "run.prom"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "scriptorium_stage_results_total")
	assert.Contains(t, string(raw), `scriptorium_record_publishes_total{kind="30041",outcome="accepted"} 2`)
}

func TestMetricsTextfileDefaultsToLayout(t *testing.T) {
	f := newFixture(t)
	f.cfg.Metrics = config.MetricsConfig{Enabled: true}

	_, err := f.svc.Generate(t.Context(), f.request())
	require.NoError(t, err)
	assert.FileExists(t, f.svc.Layout().MetricsFile())
}
