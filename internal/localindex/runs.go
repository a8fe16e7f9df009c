package localindex

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	ferrors "github.com/Silberengel/scriptorium/internal/foundation/errors"
)

// RunStatus is the outcome recorded for a run.
type RunStatus string

const (
	RunStarted   RunStatus = "started"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// Run is one journaled publish or reconcile invocation.
type Run struct {
	ID         string
	Type       string
	Relay      string
	StartedAt  time.Time
	FinishedAt time.Time
	Status     RunStatus
	Summary    map[string]int
}

// BeginRun journals a new run and returns it with a fresh id.
func (s *Store) BeginRun(ctx context.Context, runType, relay string) (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run := &Run{
		ID:        uuid.NewString(),
		Type:      runType,
		Relay:     relay,
		StartedAt: time.Now().UTC(),
		Status:    RunStarted,
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO runs (id, run_type, relay, started_at, status) VALUES (?, ?, ?, ?, ?)",
		run.ID, run.Type, run.Relay, run.StartedAt.UnixMilli(), string(run.Status))
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryIndex, "journal run start").
			WithContext("run_type", runType).Build()
	}
	return run, nil
}

// FinishRun records the outcome and summary counters of run.
func (s *Store) FinishRun(ctx context.Context, run *Run, status RunStatus, summary map[string]int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run.FinishedAt = time.Now().UTC()
	run.Status = status
	run.Summary = summary

	raw, err := json.Marshal(summary)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryInternal, "marshal run summary").Build()
	}
	_, err = s.db.ExecContext(ctx,
		"UPDATE runs SET finished_at = ?, status = ?, summary = ? WHERE id = ?",
		run.FinishedAt.UnixMilli(), string(status), string(raw), run.ID)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryIndex, "journal run finish").
			WithContext("run_id", run.ID).Build()
	}
	return nil
}

// Runs returns the most recent runs, newest first.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, run_type, relay, started_at, finished_at, status, summary FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?",
		limit)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryIndex, "query runs").Build()
	}
	defer func() { _ = rows.Close() }()

	var runs []Run
	for rows.Next() {
		var (
			r        Run
			started  int64
			finished sql.NullInt64
			status   string
			summary  sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Type, &r.Relay, &started, &finished, &status, &summary); err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryIndex, "scan run").Build()
		}
		r.StartedAt = time.UnixMilli(started).UTC()
		if finished.Valid {
			r.FinishedAt = time.UnixMilli(finished.Int64).UTC()
		}
		r.Status = RunStatus(status)
		if summary.Valid && summary.String != "" {
			if err := json.Unmarshal([]byte(summary.String), &r.Summary); err != nil {
				return nil, ferrors.WrapError(err, ferrors.CategoryIndex, "decode run summary").Build()
			}
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryIndex, "iterate runs").Build()
	}
	return runs, nil
}
