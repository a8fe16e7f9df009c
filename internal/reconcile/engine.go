// Package reconcile diffs a LocalIndex against what a relay returns and, when
// asked, republishes the missing records together with every record that
// references them. Repair is additive: nothing on the relay is deleted.
package reconcile

import (
	"context"
	"log/slog"
	"time"

	ferrors "github.com/Silberengel/scriptorium/internal/foundation/errors"
	"github.com/Silberengel/scriptorium/internal/localindex"
	"github.com/Silberengel/scriptorium/internal/logfields"
	"github.com/Silberengel/scriptorium/internal/metrics"
	"github.com/Silberengel/scriptorium/internal/publish"
	"github.com/Silberengel/scriptorium/internal/record"
	"github.com/Silberengel/scriptorium/internal/relay"
)

// DefaultBatch is the number of d-tags sent in one query filter.
const DefaultBatch = 500

// Options configures an Engine.
type Options struct {
	Batch   int
	Logger  *slog.Logger
	Metrics metrics.Recorder
}

// Engine runs reconciliations through a publish Coordinator.
type Engine struct {
	coord *publish.Coordinator
	opts  Options
}

// NewEngine returns an Engine.
func NewEngine(c *publish.Coordinator, opts Options) *Engine {
	if opts.Batch <= 0 {
		opts.Batch = DefaultBatch
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NoopRecorder{}
	}
	return &Engine{coord: c, opts: opts}
}

// Outdated is a key the relay holds with a different event id.
type Outdated struct {
	Key     record.Key
	LocalID string
	RelayID string
}

// Report is the outcome of one reconciliation.
type Report struct {
	Relay        string
	Expected     int
	Present      int
	Missing      []record.Key
	Outdated     []Outdated
	Repair       bool
	Republished  []record.Key
	StillMissing []record.Key
	Started      time.Time
	Finished     time.Time
}

// Clean reports whether nothing is missing on the relay.
func (r *Report) Clean() bool {
	if r.Repair && len(r.Missing) > 0 {
		return len(r.StillMissing) == 0
	}
	return len(r.Missing) == 0
}

// Counters returns the report as journal counters.
func (r *Report) Counters() map[string]int {
	return map[string]int{
		"expected":      r.Expected,
		"present":       r.Present,
		"missing":       len(r.Missing),
		"outdated":      len(r.Outdated),
		"republished":   len(r.Republished),
		"still_missing": len(r.StillMissing),
	}
}

// Reconcile compares idx with the relay at endpoint. With repair set, the
// missing records and their referrers are republished children-first from
// their stored signed form, then the relay is queried again.
func (e *Engine) Reconcile(ctx context.Context, idx *localindex.Index, endpoint string, repair bool) (*Report, error) {
	report := &Report{Relay: endpoint, Expected: idx.Len(), Repair: repair, Started: time.Now()}
	defer func() { report.Finished = time.Now() }()
	log := e.opts.Logger.With(logfields.Relay(endpoint))

	if idx.Len() == 0 {
		return report, nil
	}

	s, err := e.coord.Open(ctx, endpoint)
	if err != nil {
		return report, err
	}
	defer func() { _ = s.Close() }()

	observed, err := e.observe(ctx, s, idx, idx.Keys())
	if err != nil {
		return report, err
	}

	for _, r := range idx.Records() {
		key := r.Key()
		relayID, ok := observed[key]
		if !ok {
			report.Missing = append(report.Missing, key)
			continue
		}
		report.Present++
		if relayID != r.ID {
			report.Outdated = append(report.Outdated, Outdated{Key: key, LocalID: r.ID, RelayID: relayID})
		}
	}
	log.Info("Reconcile diff",
		slog.Int("expected", report.Expected),
		slog.Int("missing", len(report.Missing)),
		slog.Int("outdated", len(report.Outdated)))

	if !repair || len(report.Missing) == 0 {
		e.opts.Metrics.SetReconcileGap(len(report.Missing), len(report.Outdated), 0)
		return report, nil
	}

	closure := idx.Closure(report.Missing)
	recs := make([]*record.Record, 0, len(closure))
	for _, k := range closure {
		r, _ := idx.Lookup(k)
		recs = append(recs, r)
	}
	log.Info("Republishing missing records", logfields.Count(len(recs)))

	pubReport := &publish.Report{Relay: endpoint, Total: len(recs)}
	err = e.coord.SendAll(ctx, s, recs, pubReport)
	report.Republished = pubReport.Sent
	if err != nil {
		return report, err
	}

	after, err := e.observe(ctx, s, idx, report.Missing)
	if err != nil {
		return report, err
	}
	for _, k := range report.Missing {
		if _, ok := after[k]; !ok {
			report.StillMissing = append(report.StillMissing, k)
		}
	}
	e.opts.Metrics.SetReconcileGap(len(report.Missing), len(report.Outdated), len(report.StillMissing))

	if len(report.StillMissing) > 0 {
		return report, ferrors.ReconcileError("records still missing after repair").
			WithContext("relay", endpoint).
			WithContext("still_missing", len(report.StillMissing)).Build()
	}
	return report, nil
}

// observe queries keys grouped by (kind, author) in d-tag batches and returns
// the event id the relay holds per key. When the relay returns several
// versions, the one matching the local record wins, else the newest.
func (e *Engine) observe(ctx context.Context, s *publish.Session, idx *localindex.Index, keys []record.Key) (map[record.Key]string, error) {
	groups := make(map[localindex.Group][]string)
	var order []localindex.Group
	for _, k := range keys {
		g := localindex.Group{Kind: k.Kind, PubKey: k.PubKey}
		if _, ok := groups[g]; !ok {
			order = append(order, g)
		}
		groups[g] = append(groups[g], k.DTag)
	}

	observed := make(map[record.Key]string, len(keys))
	newest := make(map[record.Key]int64, len(keys))
	for _, g := range order {
		dtags := groups[g]
		for start := 0; start < len(dtags); start += e.opts.Batch {
			end := min(start+e.opts.Batch, len(dtags))
			found, err := s.Query(ctx, relay.Filter{
				Kinds:   []int{g.Kind},
				Authors: []string{g.PubKey},
				DTags:   dtags[start:end],
			})
			if err != nil {
				return nil, err
			}
			for _, r := range found {
				key := r.Key()
				local, known := idx.Lookup(key)
				if !known {
					continue
				}
				if cur, seen := observed[key]; seen && (cur == local.ID || r.CreatedAt < newest[key]) {
					continue
				}
				observed[key] = r.ID
				newest[key] = r.CreatedAt
			}
		}
	}
	return observed, nil
}
