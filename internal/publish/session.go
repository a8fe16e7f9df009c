// Package publish transmits compiled records to a relay in topological order
// and verifies that the publication root landed.
package publish

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	ferrors "github.com/Silberengel/scriptorium/internal/foundation/errors"
	"github.com/Silberengel/scriptorium/internal/logfields"
	"github.com/Silberengel/scriptorium/internal/metrics"
	"github.com/Silberengel/scriptorium/internal/record"
	"github.com/Silberengel/scriptorium/internal/relay"
	"github.com/Silberengel/scriptorium/internal/retry"
)

// Options configures a Coordinator.
type Options struct {
	Retry retry.Policy
	// Rate caps transmissions per second; zero or negative disables pacing.
	Rate    float64
	Logger  *slog.Logger
	Metrics metrics.Recorder
}

// Coordinator opens relay sessions that share one retry policy and pace.
type Coordinator struct {
	dialer relay.Dialer
	opts   Options
}

// New returns a Coordinator dialing through d.
func New(d relay.Dialer, opts Options) *Coordinator {
	if opts.Retry == (retry.Policy{}) {
		opts.Retry = retry.DefaultPolicy()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NoopRecorder{}
	}
	return &Coordinator{dialer: d, opts: opts}
}

// Session is one connection to one relay. A transport failure drops the
// connection; the next attempt redials.
type Session struct {
	c        *Coordinator
	endpoint string
	conn     relay.Conn
	limiter  *rate.Limiter
}

// Open dials endpoint, retrying transient dial failures.
func (c *Coordinator) Open(ctx context.Context, endpoint string) (*Session, error) {
	s := &Session{c: c, endpoint: endpoint}
	if c.opts.Rate > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(c.opts.Rate), 1)
	}
	if _, err := c.opts.Retry.Do(ctx, func(int) error { return s.ensureConn(ctx) }); err != nil {
		return nil, err
	}
	return s, nil
}

// Endpoint returns the relay URL.
func (s *Session) Endpoint() string { return s.endpoint }

func (s *Session) ensureConn(ctx context.Context) error {
	if s.conn != nil {
		return nil
	}
	conn, err := s.c.dialer.Dial(ctx, s.endpoint)
	if err != nil {
		return err
	}
	s.conn = conn
	return nil
}

// drop discards the connection after a transport failure.
func (s *Session) drop(err error) {
	if s.conn == nil || !ferrors.HasCategory(err, ferrors.CategoryTransport) {
		return
	}
	_ = s.conn.Close()
	s.conn = nil
}

// Close releases the connection.
func (s *Session) Close() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

// Send transmits one record with bounded retries. It returns the relay's Ack
// and the number of attempts made.
func (s *Session) Send(ctx context.Context, r *record.Record) (relay.Ack, int, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return 0, 0, err
		}
	}
	log := s.c.opts.Logger.With(logfields.DTag(r.DTag()), logfields.EventID(r.ID))

	var ack relay.Ack
	attempts, err := s.c.opts.Retry.Do(ctx, func(attempt int) error {
		if attempt > 1 {
			s.c.opts.Metrics.IncPublishRetry()
			log.Warn("Retrying record", logfields.Attempt(attempt))
		}
		if err := s.ensureConn(ctx); err != nil {
			return err
		}
		start := time.Now()
		a, err := s.conn.Publish(ctx, r)
		s.c.opts.Metrics.ObserveRelayRoundTrip("event", time.Since(start))
		if err != nil {
			s.drop(err)
			return err
		}
		ack = a
		return nil
	})
	return ack, attempts, err
}

// Query runs f with bounded retries.
func (s *Session) Query(ctx context.Context, f relay.Filter) ([]*record.Record, error) {
	var out []*record.Record
	_, err := s.c.opts.Retry.Do(ctx, func(int) error {
		if err := s.ensureConn(ctx); err != nil {
			return err
		}
		start := time.Now()
		got, err := s.conn.Query(ctx, f)
		s.c.opts.Metrics.ObserveRelayRoundTrip("req", time.Since(start))
		if err != nil {
			s.drop(err)
			return err
		}
		out = got
		return nil
	})
	return out, err
}
