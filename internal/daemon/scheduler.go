package daemon

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	ferrors "github.com/Silberengel/scriptorium/internal/foundation/errors"
	"github.com/Silberengel/scriptorium/internal/logfields"
)

// scheduler wraps a gocron scheduler holding the periodic qc job.
type scheduler struct {
	s      gocron.Scheduler
	logger *slog.Logger
}

func newScheduler(logger *slog.Logger) (*scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, ferrors.DaemonError("failed to create scheduler").WithCause(err).Build()
	}
	return &scheduler{s: s, logger: logger}, nil
}

// scheduleQC registers fn to run every interval, starting immediately.
// A run that overlaps the next tick delays it instead of stacking.
func (s *scheduler) scheduleQC(ctx context.Context, interval time.Duration, fn func(context.Context)) error {
	if interval <= 0 {
		return ferrors.ConfigError("daemon qc interval must be positive").
			WithContext("interval", interval.String()).Build()
	}
	job, err := s.s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(fn, ctx),
		gocron.WithName("qc"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return ferrors.DaemonError("failed to schedule qc").WithCause(err).Build()
	}
	s.logger.Debug("Scheduled qc", logfields.Schedule(interval.String()), "job_id", job.ID().String())
	return nil
}

func (s *scheduler) start() { s.s.Start() }

func (s *scheduler) stop() error { return s.s.Shutdown() }
