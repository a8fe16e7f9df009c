package pipeline

import (
	"context"

	ferrors "github.com/Silberengel/scriptorium/internal/foundation/errors"
	"github.com/Silberengel/scriptorium/internal/localindex"
	"github.com/Silberengel/scriptorium/internal/publish"
	"github.com/Silberengel/scriptorium/internal/reconcile"
)

// Publish sends the stored records to the configured relay, children first,
// and verifies the root.
func (s *Service) Publish(ctx context.Context) (*publish.Report, error) {
	var report *publish.Report
	err := s.locked(func() error {
		var err error
		report, err = s.publish(ctx)
		return err
	})
	s.writeMetrics()
	return report, err
}

func (s *Service) publish(ctx context.Context) (*publish.Report, error) {
	var report *publish.Report
	err := s.stage(StagePublish, func() error {
		store, err := s.openStore()
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		idx, err := loadIndex(ctx, store)
		if err != nil {
			return err
		}
		return s.journal(ctx, store, StagePublish, s.cfg.Relay.URL, func(*localindex.Run) (map[string]int, error) {
			report, err = s.coordinator().Publish(ctx, idx.Records(), s.cfg.Relay.URL)
			if report == nil {
				return nil, err
			}
			return report.Counters(), err
		})
	})
	return report, err
}

// QC reconciles the stored records with the relay. Without repair, any
// missing record is a ReconcileError so callers can fail the run; with
// repair, the error is reserved for records still missing afterwards.
func (s *Service) QC(ctx context.Context, repair bool) (*reconcile.Report, error) {
	var report *reconcile.Report
	err := s.locked(func() error {
		var err error
		report, err = s.qc(ctx, repair)
		return err
	})
	s.writeMetrics()
	return report, err
}

func (s *Service) qc(ctx context.Context, repair bool) (*reconcile.Report, error) {
	var report *reconcile.Report
	err := s.stage(StageQC, func() error {
		store, err := s.openStore()
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		idx, err := loadIndex(ctx, store)
		if err != nil {
			return err
		}
		return s.journal(ctx, store, StageQC, s.cfg.Relay.URL, func(*localindex.Run) (map[string]int, error) {
			report, err = s.engine().Reconcile(ctx, idx, s.cfg.Relay.URL, repair)
			if report == nil {
				return nil, err
			}
			if err == nil && !report.Clean() {
				err = ferrors.ReconcileError("records missing on relay").
					WithContext("relay", s.cfg.Relay.URL).
					WithContext("missing", len(report.Missing)).
					UserAction().Build()
			}
			return report.Counters(), err
		})
	})
	return report, err
}

// AllResult bundles the outcomes of an all run.
type AllResult struct {
	Generate *GenerateResult
	Publish  *publish.Report
	QC       *reconcile.Report
}

// All runs generate, publish and qc under one lock, stopping at the first
// failing stage.
func (s *Service) All(ctx context.Context, req GenerateRequest, repair bool) (*AllResult, error) {
	res := &AllResult{}
	err := s.locked(func() error {
		var err error
		if res.Generate, err = s.generate(ctx, req); err != nil {
			return err
		}
		if res.Publish, err = s.publish(ctx); err != nil {
			return err
		}
		res.QC, err = s.qc(ctx, repair)
		return err
	})
	s.writeMetrics()
	return res, err
}
