// Package pipeline wires the compiler, publisher and reconciler into the
// generate, publish, qc and all runs. Every run holds the output directory
// lock, journals itself in the index database and reports to the configured
// metrics textfile and notifier.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/Silberengel/scriptorium/internal/config"
	ferrors "github.com/Silberengel/scriptorium/internal/foundation/errors"
	"github.com/Silberengel/scriptorium/internal/layout"
	"github.com/Silberengel/scriptorium/internal/localindex"
	"github.com/Silberengel/scriptorium/internal/logfields"
	"github.com/Silberengel/scriptorium/internal/metrics"
	"github.com/Silberengel/scriptorium/internal/notify"
	"github.com/Silberengel/scriptorium/internal/publish"
	"github.com/Silberengel/scriptorium/internal/reconcile"
	"github.com/Silberengel/scriptorium/internal/relay"
	"github.com/Silberengel/scriptorium/internal/retry"
)

// Stage names used for metrics and logs.
const (
	StageGenerate = "generate"
	StagePublish  = "publish"
	StageQC       = "qc"
)

// Service runs pipeline stages for one configuration.
type Service struct {
	cfg      *config.Config
	layout   layout.Layout
	logger   *slog.Logger
	recorder *metrics.PrometheusRecorder
	notifier notify.Notifier
	dialer   relay.Dialer
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithDialer replaces the websocket dialer, typically with an in-memory relay.
func WithDialer(d relay.Dialer) Option {
	return func(s *Service) { s.dialer = d }
}

// WithNotifier sets the run report notifier.
func WithNotifier(n notify.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock sets the clock used for record creation times.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New returns a Service writing below cfg.Output.Directory.
func New(cfg *config.Config, opts ...Option) *Service {
	s := &Service{
		cfg:      cfg,
		layout:   layout.New(cfg.Output.Directory),
		logger:   slog.Default(),
		recorder: metrics.NewPrometheusRecorder(nil),
		notifier: notify.Noop{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.dialer == nil {
		s.dialer = relay.WebSocketDialer{Options: relay.Options{
			DialTimeout:    cfg.Relay.DialTimeout,
			PublishTimeout: cfg.Relay.PublishTimeout,
			QueryTimeout:   cfg.Relay.QueryTimeout,
			Logger:         s.logger,
		}}
	}
	return s
}

// Layout returns the output layout.
func (s *Service) Layout() layout.Layout { return s.layout }

// Recorder returns the metrics recorder shared by every run of s.
func (s *Service) Recorder() *metrics.PrometheusRecorder { return s.recorder }

func (s *Service) coordinator() *publish.Coordinator {
	return publish.New(s.dialer, publish.Options{
		Retry:   retry.FromConfig(s.cfg.Retry),
		Rate:    s.cfg.Relay.Rate,
		Logger:  s.logger,
		Metrics: s.recorder,
	})
}

func (s *Service) engine() *reconcile.Engine {
	return reconcile.NewEngine(s.coordinator(), reconcile.Options{
		Batch:   s.cfg.Relay.QueryBatch,
		Logger:  s.logger,
		Metrics: s.recorder,
	})
}

// locked runs fn while holding the output directory lock.
func (s *Service) locked(fn func() error) error {
	lock, err := s.layout.Acquire()
	if err != nil {
		return err
	}
	defer func() {
		if rerr := lock.Release(); rerr != nil {
			s.logger.Warn("Failed to release run lock", logfields.Path(s.layout.LockFile()), logfields.Error(rerr))
		}
	}()
	return fn()
}

// stage times fn and records its result.
func (s *Service) stage(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	d := time.Since(start)
	s.recorder.ObserveStageDuration(name, d)
	s.recorder.IncStageResult(name, resultLabel(err))
	log := s.logger.With(logfields.Stage(name), logfields.DurationMS(float64(d.Microseconds())/1000))
	if err != nil {
		log.Error("Stage failed", logfields.Error(err))
	} else {
		log.Info("Stage completed")
	}
	return err
}

func resultLabel(err error) metrics.ResultLabel {
	switch {
	case err == nil:
		return metrics.ResultSuccess
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return metrics.ResultCanceled
	case ferrors.HasSeverity(err, ferrors.SeverityWarning):
		return metrics.ResultWarning
	}
	return metrics.ResultFatal
}

// openStore opens the index database, creating the layout when needed.
func (s *Service) openStore() (*localindex.Store, error) {
	if err := s.layout.Ensure(); err != nil {
		return nil, err
	}
	return localindex.Open(s.layout.IndexDB())
}

// loadIndex returns the stored index or an IndexError when nothing was generated.
func loadIndex(ctx context.Context, store *localindex.Store) (*localindex.Index, error) {
	idx, err := store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if idx.Len() == 0 {
		return nil, ferrors.IndexError("no generated publication found; run generate first").Build()
	}
	return idx, nil
}

// journal wraps one run in BeginRun/FinishRun and sends the report.
func (s *Service) journal(ctx context.Context, store *localindex.Store, runType, relayURL string, fn func(run *localindex.Run) (map[string]int, error)) error {
	run, err := store.BeginRun(ctx, runType, relayURL)
	if err != nil {
		return err
	}
	log := s.logger.With(logfields.RunID(run.ID), logfields.RunType(runType))
	log.Info("Run started", logfields.Relay(relayURL))

	counters, runErr := fn(run)

	status := localindex.RunSucceeded
	if runErr != nil {
		status = localindex.RunFailed
	}
	// The journal must record the outcome even when ctx was canceled.
	finishCtx := context.WithoutCancel(ctx)
	if err := store.FinishRun(finishCtx, run, status, counters); err != nil {
		log.Warn("Failed to journal run outcome", logfields.Error(err))
	}

	report := notify.RunReport{
		RunID:    run.ID,
		Type:     runType,
		Relay:    run.Relay,
		Status:   string(status),
		Counters: counters,
		Started:  run.StartedAt,
		Finished: run.FinishedAt,
	}
	if runErr != nil {
		report.Error = runErr.Error()
	}
	s.notifyRun(finishCtx, report)
	return runErr
}

func (s *Service) notifyRun(ctx context.Context, r notify.RunReport) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.notifier.Notify(ctx, r); err != nil {
		s.logger.Warn("Run report not delivered", logfields.RunID(r.RunID), logfields.Error(err))
	}
}

// writeMetrics exports the registry when metrics are enabled.
func (s *Service) writeMetrics() {
	if !s.cfg.Metrics.Enabled {
		return
	}
	path := s.cfg.Metrics.Textfile
	if path == "" {
		path = s.layout.MetricsFile()
	} else if !filepath.IsAbs(path) {
		path = filepath.Join(s.layout.Base, path)
	}
	if err := metrics.WriteTextfile(path, s.recorder.Registry()); err != nil {
		s.logger.Warn("Failed to write metrics textfile", logfields.Path(path), logfields.Error(err))
	}
}
