package localindex

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync"

	_ "modernc.org/sqlite"

	ferrors "github.com/Silberengel/scriptorium/internal/foundation/errors"
	"github.com/Silberengel/scriptorium/internal/record"
)

const metaFingerprint = "fingerprint"

// Store persists an Index and the run journal in SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open opens or creates the index database. Use ":memory:" for tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryIndex, "open index database").
			WithContext("path", path).Build()
	}
	// A single connection keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.initialize(); err != nil {
		_ = db.Close()
		return nil, ferrors.WrapError(err, ferrors.CategoryIndex, "initialize index schema").
			WithContext("path", path).Build()
	}
	return s, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		position INTEGER NOT NULL,
		kind INTEGER NOT NULL,
		pubkey TEXT NOT NULL,
		d_tag TEXT NOT NULL,
		event_id TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		raw TEXT NOT NULL,
		PRIMARY KEY (kind, pubkey, d_tag)
	);
	CREATE INDEX IF NOT EXISTS idx_records_position ON records(position);
	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		run_type TEXT NOT NULL,
		relay TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		finished_at INTEGER,
		status TEXT NOT NULL,
		summary TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Save replaces the stored index with idx and records its input fingerprint.
func (s *Store) Save(ctx context.Context, idx *Index, fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryIndex, "begin index transaction").Build()
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM records"); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryIndex, "clear index").Build()
	}
	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO records (position, kind, pubkey, d_tag, event_id, created_at, raw) VALUES (?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryIndex, "prepare insert").Build()
	}
	defer func() { _ = stmt.Close() }()

	for i, r := range idx.Records() {
		raw, err := json.Marshal(r)
		if err != nil {
			return ferrors.WrapError(err, ferrors.CategoryInternal, "marshal record").
				WithContext("d_tag", r.DTag()).Build()
		}
		if _, err := stmt.ExecContext(ctx, i, r.Kind, r.PubKey, r.DTag(), r.ID, r.CreatedAt, string(raw)); err != nil {
			return ferrors.WrapError(err, ferrors.CategoryIndex, "insert record").
				WithContext("d_tag", r.DTag()).Build()
		}
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		metaFingerprint, fingerprint); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryIndex, "store fingerprint").Build()
	}
	if err := tx.Commit(); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryIndex, "commit index").Build()
	}
	return nil
}

// Load reads the stored index. An empty database yields an empty index.
func (s *Store) Load(ctx context.Context) (*Index, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT raw FROM records ORDER BY position")
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryIndex, "query index").Build()
	}
	defer func() { _ = rows.Close() }()

	var records []*record.Record
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryIndex, "scan record").Build()
		}
		var r record.Record
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryIndex, "decode stored record").Build()
		}
		records = append(records, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryIndex, "iterate index").Build()
	}
	return New(records)
}

// Fingerprint returns the input fingerprint stored with the last Save.
func (s *Store) Fingerprint(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var fp string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM meta WHERE key = ?", metaFingerprint).Scan(&fp)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", ferrors.WrapError(err, ferrors.CategoryIndex, "read fingerprint").Build()
	}
	return fp, nil
}

// Close closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
