package publish

import (
	"context"
	"errors"
	"time"

	ferrors "github.com/Silberengel/scriptorium/internal/foundation/errors"
	"github.com/Silberengel/scriptorium/internal/logfields"
	"github.com/Silberengel/scriptorium/internal/metrics"
	"github.com/Silberengel/scriptorium/internal/record"
	"github.com/Silberengel/scriptorium/internal/relay"
)

// Report summarizes one publish invocation.
type Report struct {
	Relay        string
	Total        int
	Stored       int
	Duplicates   int
	Retries      int
	Sent         []record.Key
	Failed       *record.Key
	RootVerified bool
	Started      time.Time
	Finished     time.Time
}

// Counters returns the report as journal counters.
func (r *Report) Counters() map[string]int {
	verified := 0
	if r.RootVerified {
		verified = 1
	}
	return map[string]int{
		"total":         r.Total,
		"stored":        r.Stored,
		"duplicates":    r.Duplicates,
		"retries":       r.Retries,
		"root_verified": verified,
	}
}

// Publish sends records in the given order over one session and confirms the
// root, which must be the last record, with a presence query.
func (c *Coordinator) Publish(ctx context.Context, records []*record.Record, endpoint string) (*Report, error) {
	report := &Report{Relay: endpoint, Total: len(records), Started: time.Now()}
	defer func() { report.Finished = time.Now() }()

	if len(records) == 0 {
		return report, nil
	}
	for _, r := range records {
		if !r.Signed() {
			return report, ferrors.InternalError("refusing to publish an unsigned record").
				WithContext("d_tag", r.DTag()).Build()
		}
	}

	s, err := c.Open(ctx, endpoint)
	if err != nil {
		return report, err
	}
	defer func() { _ = s.Close() }()

	if err := c.send(ctx, s, records, report); err != nil {
		return report, err
	}

	root := records[len(records)-1]
	ok, err := Verify(ctx, s, root)
	if err != nil {
		return report, err
	}
	report.RootVerified = ok
	if !ok {
		return report, ferrors.VerificationFailure("relay accepted the root record but does not return it").
			WithContext("relay", endpoint).
			WithContext("d_tag", root.DTag()).
			WithContext("event_id", root.ID).Build()
	}
	c.opts.Logger.Info("Publication root verified",
		logfields.Relay(endpoint), logfields.DTag(root.DTag()), logfields.EventID(root.ID))
	return report, nil
}

// SendAll transmits records in order over an open session, stopping at the
// first failure.
func (c *Coordinator) SendAll(ctx context.Context, s *Session, records []*record.Record, report *Report) error {
	return c.send(ctx, s, records, report)
}

func (c *Coordinator) send(ctx context.Context, s *Session, records []*record.Record, report *Report) error {
	for _, r := range records {
		if err := ctx.Err(); err != nil {
			c.opts.Logger.Warn("Publish canceled", logfields.Count(len(report.Sent)))
			return err
		}
		key := r.Key()
		ack, attempts, err := s.Send(ctx, r)
		if attempts > 1 {
			report.Retries += attempts - 1
		}
		if err != nil {
			report.Failed = &key
			return c.failure(ctx, err, r, attempts, s.Endpoint())
		}
		report.Sent = append(report.Sent, key)
		switch ack {
		case relay.AckDuplicate:
			report.Duplicates++
			c.opts.Metrics.IncRecordPublish(r.Kind, metrics.PublishDuplicate)
		default:
			report.Stored++
			c.opts.Metrics.IncRecordPublish(r.Kind, metrics.PublishAccepted)
		}
		c.opts.Logger.Debug("Record published",
			logfields.Kind(r.Kind), logfields.DTag(key.DTag), logfields.EventID(r.ID), logfields.Attempt(attempts))
	}
	return nil
}

// failure classifies a send error: cancellation passes through, rejections
// abort as-is, exhausted transport retries become a PublishFailure.
func (c *Coordinator) failure(ctx context.Context, err error, r *record.Record, attempts int, endpoint string) error {
	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return err
	}
	if ferrors.HasCategory(err, ferrors.CategoryRelayRejection) {
		c.opts.Metrics.IncRecordPublish(r.Kind, metrics.PublishRejected)
		c.opts.Logger.Error("Relay rejected record", logfields.DTag(r.DTag()), logfields.Error(err))
		return err
	}
	c.opts.Metrics.IncRecordPublish(r.Kind, metrics.PublishFailed)
	c.opts.Logger.Error("Record publish failed", logfields.DTag(r.DTag()), logfields.Attempt(attempts), logfields.Error(err))
	return ferrors.WrapError(err, ferrors.CategoryPublish, "record could not be published").
		Fatal().
		WithContext("relay", endpoint).
		WithContext("d_tag", r.DTag()).
		WithContext("event_id", r.ID).
		WithContext("attempts", attempts).Build()
}

// Verify reports whether the relay returns exactly r for r's key.
func Verify(ctx context.Context, s *Session, r *record.Record) (bool, error) {
	found, err := s.Query(ctx, relay.Filter{
		Kinds:   []int{r.Kind},
		Authors: []string{r.PubKey},
		DTags:   []string{r.DTag()},
	})
	if err != nil {
		return false, err
	}
	for _, got := range found {
		if got.ID == r.ID {
			return true, nil
		}
	}
	return false, nil
}
