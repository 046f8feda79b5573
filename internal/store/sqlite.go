// Package store is the local SQLite backend: profiles and run traces in one
// database file.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"github.com/jonathan/daily-brief/internal/preferences"
	"github.com/jonathan/daily-brief/internal/trace"
	"github.com/jonathan/daily-brief/internal/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS profiles (
	user_id    TEXT PRIMARY KEY,
	version    INTEGER NOT NULL,
	data       TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS run_traces (
	run_id      TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL,
	topic       TEXT NOT NULL,
	state       TEXT NOT NULL,
	started_at  TEXT NOT NULL,
	finished_at TEXT,
	data        TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS trace_stages (
	run_id           TEXT NOT NULL REFERENCES run_traces(run_id) ON DELETE CASCADE,
	seq              INTEGER NOT NULL,
	stage            TEXT NOT NULL,
	started_at       TEXT NOT NULL,
	ended_at         TEXT NOT NULL,
	count_in         INTEGER NOT NULL,
	count_out        INTEGER NOT NULL,
	degraded         INTEGER NOT NULL,
	capability_calls INTEGER NOT NULL,
	errors           TEXT,
	PRIMARY KEY (run_id, seq)
);
CREATE INDEX IF NOT EXISTS idx_run_traces_user ON run_traces(user_id, started_at);
`

// DB wraps a SQLite connection.
type DB struct {
	conn *sql.DB
	sb   sq.StatementBuilderType
	Path string
}

// Open opens a SQLite database with WAL mode and foreign keys enabled and
// creates the tables.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One writer keeps upserts from failing with SQLITE_BUSY.
	conn.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON", "PRAGMA busy_timeout=5000"} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &DB{
		conn: conn,
		sb:   sq.StatementBuilder.PlaceholderFormat(sq.Question).RunWith(conn),
		Path: path,
	}, nil
}

// Close closes the database connection
func (d *DB) Close() error {
	return d.conn.Close()
}

// Profiles returns the profile store view of the database.
func (d *DB) Profiles() preferences.Store {
	return &profileStore{db: d}
}

// Traces returns the trace store view of the database.
func (d *DB) Traces() trace.Store {
	return &traceStore{db: d}
}

type profileStore struct {
	db *DB
}

func (s *profileStore) Get(ctx context.Context, userID string) (types.Profile, error) {
	if userID == "" {
		return types.Profile{}, &preferences.StorageError{Op: "get", Cause: preferences.ErrEmptyUserID}
	}

	var data string
	err := s.db.sb.Select("data").
		From("profiles").
		Where(sq.Eq{"user_id": userID}).
		QueryRowContext(ctx).
		Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return types.NewProfile(userID), nil
	}
	if err != nil {
		return types.Profile{}, &preferences.StorageError{Op: "get", UserID: userID, Cause: err}
	}

	var p types.Profile
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return types.Profile{}, &preferences.StorageError{Op: "get", UserID: userID, Cause: fmt.Errorf("corrupt profile: %w", err)}
	}
	p.UserID = userID
	p.ApplyDefaults()
	return p, nil
}

// Put replaces the row in a single upsert statement.
func (s *profileStore) Put(ctx context.Context, userID string, profile types.Profile) error {
	if userID == "" {
		return &preferences.StorageError{Op: "put", Cause: preferences.ErrEmptyUserID}
	}
	profile.UserID = userID
	data, err := json.Marshal(profile)
	if err != nil {
		return &preferences.StorageError{Op: "put", UserID: userID, Cause: err}
	}

	_, err = s.db.sb.Insert("profiles").
		Columns("user_id", "version", "data", "updated_at").
		Values(userID, profile.Version, string(data), formatTime(profile.UpdatedAt)).
		Suffix("ON CONFLICT(user_id) DO UPDATE SET version = excluded.version, data = excluded.data, updated_at = excluded.updated_at").
		ExecContext(ctx)
	if err != nil {
		return &preferences.StorageError{Op: "put", UserID: userID, Cause: err}
	}
	return nil
}

type traceStore struct {
	db *DB
}

// Append inserts the trace and its stage rows in one transaction. A second
// append for the same run id fails.
func (s *traceStore) Append(ctx context.Context, t types.RunTrace) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to encode trace: %w", err)
	}

	tx, err := s.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	sb := sq.StatementBuilder.PlaceholderFormat(sq.Question).RunWith(tx)

	var finished any
	if t.FinishedAt != nil {
		finished = formatTime(*t.FinishedAt)
	}
	_, err = sb.Insert("run_traces").
		Columns("run_id", "user_id", "topic", "state", "started_at", "finished_at", "data").
		Values(t.RunID, t.UserID, t.Topic, string(t.State), formatTime(t.StartedAt), finished, string(data)).
		ExecContext(ctx)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return fmt.Errorf("%w: %s", trace.ErrDuplicateRun, t.RunID)
		}
		return fmt.Errorf("failed to insert trace: %w", err)
	}

	if len(t.Stages) > 0 {
		insert := sb.Insert("trace_stages").
			Columns("run_id", "seq", "stage", "started_at", "ended_at", "count_in", "count_out", "degraded", "capability_calls", "errors")
		for i, st := range t.Stages {
			var errs any
			if len(st.Errors) > 0 {
				b, _ := json.Marshal(st.Errors)
				errs = string(b)
			}
			insert = insert.Values(t.RunID, i, string(st.Stage), formatTime(st.StartedAt), formatTime(st.EndedAt),
				st.CountIn, st.CountOut, st.Degraded, st.CapabilityCalls, errs)
		}
		if _, err := insert.ExecContext(ctx); err != nil {
			return fmt.Errorf("failed to insert trace stages: %w", err)
		}
	}

	return tx.Commit()
}

func (s *traceStore) Load(ctx context.Context, runID string) (types.RunTrace, error) {
	var data string
	err := s.db.sb.Select("data").
		From("run_traces").
		Where(sq.Eq{"run_id": runID}).
		QueryRowContext(ctx).
		Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return types.RunTrace{}, trace.ErrNotFound
	}
	if err != nil {
		return types.RunTrace{}, fmt.Errorf("failed to load trace: %w", err)
	}

	var t types.RunTrace
	if err := json.Unmarshal([]byte(data), &t); err != nil {
		return types.RunTrace{}, fmt.Errorf("failed to decode trace: %w", err)
	}
	return t, nil
}

// RecentRuns lists the newest run ids for a user.
func (d *DB) RecentRuns(ctx context.Context, userID string, limit int) ([]string, error) {
	rows, err := d.sb.Select("run_id").
		From("run_traces").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("started_at DESC").
		Limit(uint64(limit)).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
