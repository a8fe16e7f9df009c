// Package notify publishes run reports to NATS so other systems can follow
// generate, publish and qc outcomes.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/Silberengel/scriptorium/internal/config"
	ferrors "github.com/Silberengel/scriptorium/internal/foundation/errors"
	"github.com/Silberengel/scriptorium/internal/logfields"
)

// RunReport is the message body published after each run.
type RunReport struct {
	RunID       string         `json:"run_id"`
	Type        string         `json:"type"`
	Relay       string         `json:"relay,omitempty"`
	Status      string         `json:"status"`
	Publication string         `json:"publication,omitempty"`
	Fingerprint string         `json:"fingerprint,omitempty"`
	Counters    map[string]int `json:"counters,omitempty"`
	Error       string         `json:"error,omitempty"`
	Started     time.Time      `json:"started"`
	Finished    time.Time      `json:"finished"`
}

// Notifier delivers run reports.
type Notifier interface {
	Notify(ctx context.Context, r RunReport) error
	Close()
}

// Noop discards reports.
type Noop struct{}

func (Noop) Notify(context.Context, RunReport) error { return nil }
func (Noop) Close()                                  {}

// NATS publishes reports on one subject.
type NATS struct {
	conn    *nats.Conn
	subject string
}

// New returns a NATS notifier when cfg names a server, otherwise Noop.
func New(cfg config.NotifyConfig) (Notifier, error) {
	if !cfg.Enabled() {
		return Noop{}, nil
	}
	conn, err := nats.Connect(cfg.NATSURL,
		nats.Name("scriptorium"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(3),
	)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryTransport, "failed to connect to NATS").
			WithContext("url", cfg.NATSURL).Build()
	}
	slog.Info("NATS notifier connected", slog.String("url", cfg.NATSURL), slog.String("subject", cfg.Subject))
	return &NATS{conn: conn, subject: cfg.Subject}, nil
}

// Subject returns the subject reports are published on.
func (n *NATS) Subject() string { return n.subject }

// Notify publishes r and flushes, bounded by ctx.
func (n *NATS) Notify(ctx context.Context, r RunReport) error {
	data, err := Encode(r)
	if err != nil {
		return err
	}
	msg := &nats.Msg{Subject: n.subject, Data: data, Header: nats.Header{}}
	msg.Header.Set("Scriptorium-Run-Type", r.Type)
	msg.Header.Set("Scriptorium-Status", r.Status)
	if err := n.conn.PublishMsg(msg); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryTransport, "failed to publish run report").
			WithContext("subject", n.subject).Build()
	}
	if err := n.conn.FlushWithContext(ctx); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryTransport, "failed to flush run report").
			WithContext("subject", n.subject).Build()
	}
	slog.Debug("Published run report", logfields.RunID(r.RunID), logfields.RunType(r.Type))
	return nil
}

// Close drains the connection.
func (n *NATS) Close() {
	if n.conn == nil {
		return
	}
	if err := n.conn.Drain(); err != nil {
		n.conn.Close()
	}
}

// Encode renders r as JSON.
func Encode(r RunReport) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryInternal, "failed to encode run report").Build()
	}
	return data, nil
}
