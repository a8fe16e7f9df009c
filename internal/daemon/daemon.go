// Package daemon keeps a publication in sync with its relay: a gocron job
// runs qc on a fixed interval and, when watching is enabled, an fsnotify
// watcher regenerates and republishes after the input or metadata changes.
package daemon

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Silberengel/scriptorium/internal/config"
	"github.com/Silberengel/scriptorium/internal/logfields"
	"github.com/Silberengel/scriptorium/internal/metadata"
	"github.com/Silberengel/scriptorium/internal/pipeline"
	"github.com/Silberengel/scriptorium/internal/reconcile"
)

// Status represents the current state of the daemon
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopping Status = "stopping"
)

// Runner is the part of pipeline.Service the daemon drives.
type Runner interface {
	All(ctx context.Context, req pipeline.GenerateRequest, repair bool) (*pipeline.AllResult, error)
	QC(ctx context.Context, repair bool) (*reconcile.Report, error)
}

// Stats counts daemon triggered runs.
type Stats struct {
	QCRuns         int64
	Regenerations  int64
	Failures       int64
	LastRunAt      time.Time
	LastRunFailed  bool
	LastRunTrigger string
}

// Daemon schedules qc runs and reacts to input changes.
type Daemon struct {
	cfg    config.DaemonConfig
	runner Runner
	req    pipeline.GenerateRequest
	logger *slog.Logger

	status atomic.Value // Status

	// runs serializes scheduled qc and watch triggered regenerations so
	// they never compete for the output directory lock.
	runs sync.Mutex

	mu    sync.Mutex
	stats Stats
}

// New returns a Daemon for req. The request is only used when watching.
func New(cfg config.DaemonConfig, runner Runner, req pipeline.GenerateRequest, logger *slog.Logger) *Daemon {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Daemon{cfg: cfg, runner: runner, req: req, logger: logger}
	d.status.Store(StatusStopped)
	return d
}

// Status returns the current lifecycle state.
func (d *Daemon) Status() Status {
	return d.status.Load().(Status)
}

// Stats returns a copy of the run counters.
func (d *Daemon) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// Run blocks until ctx is canceled. The first qc runs immediately.
func (d *Daemon) Run(ctx context.Context) error {
	d.status.Store(StatusStarting)
	defer d.status.Store(StatusStopped)

	sched, err := newScheduler(d.logger)
	if err != nil {
		return err
	}
	if err := sched.scheduleQC(ctx, d.cfg.QCInterval, d.scheduledQC); err != nil {
		_ = sched.stop()
		return err
	}

	var w *watcher
	if d.cfg.Watch {
		w, err = newWatcher(d.watchedFiles(), d.cfg.Debounce, d.logger)
		if err != nil {
			_ = sched.stop()
			return err
		}
	}

	sched.start()
	if w != nil {
		go w.run(ctx, d.regenerate)
	}
	d.status.Store(StatusRunning)
	d.logger.Info("Daemon started",
		logfields.Schedule(d.cfg.QCInterval.String()),
		"watch", d.cfg.Watch,
		"repair", d.cfg.Repair)

	<-ctx.Done()

	d.status.Store(StatusStopping)
	if w != nil {
		w.close()
	}
	if err := sched.stop(); err != nil {
		d.logger.Warn("Scheduler shutdown failed", logfields.Error(err))
	}
	// Wait for an in-flight run so the lock and journal are released.
	d.runs.Lock()
	defer d.runs.Unlock()
	d.logger.Info("Daemon stopped")
	return nil
}

func (d *Daemon) watchedFiles() []string {
	mdPath := d.req.Metadata
	if mdPath == "" {
		mdPath = filepath.Join(filepath.Dir(d.req.Input), metadata.FileName)
	}
	return []string{d.req.Input, mdPath}
}

func (d *Daemon) scheduledQC(ctx context.Context) {
	d.runs.Lock()
	defer d.runs.Unlock()
	if ctx.Err() != nil {
		return
	}
	report, err := d.runner.QC(ctx, d.cfg.Repair)
	if report != nil {
		d.logger.Info("Scheduled qc finished",
			"missing", len(report.Missing),
			"outdated", len(report.Outdated),
			"republished", report.Republished)
	}
	d.record("qc", err)
}

func (d *Daemon) regenerate(ctx context.Context) {
	d.runs.Lock()
	defer d.runs.Unlock()
	if ctx.Err() != nil {
		return
	}
	res, err := d.runner.All(ctx, d.req, d.cfg.Repair)
	if err == nil && res.Generate != nil {
		d.logger.Info("Input change published",
			logfields.DTag(res.Generate.Root.DTag),
			logfields.Count(res.Generate.Records),
			"unchanged", res.Generate.Unchanged)
	}
	d.record("watch", err)
}

func (d *Daemon) record(trigger string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch trigger {
	case "qc":
		d.stats.QCRuns++
	case "watch":
		d.stats.Regenerations++
	}
	d.stats.LastRunAt = time.Now()
	d.stats.LastRunTrigger = trigger
	d.stats.LastRunFailed = err != nil
	if err != nil {
		d.stats.Failures++
		d.logger.Error("Daemon run failed", "trigger", trigger, logfields.Error(err))
	}
}
