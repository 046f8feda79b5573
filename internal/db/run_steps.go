package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/jonathan/daily-brief/internal/trace"
	"github.com/jonathan/daily-brief/internal/types"
)

// Traces returns a trace.Store backed by pipeline_runs and run_steps.
func (db *DB) Traces() trace.Store {
	return &traceStore{db: db}
}

type traceStore struct {
	db *DB
}

// Append inserts the run and one run_steps row per stage record in a single
// transaction. Runs are never updated after insert.
func (s *traceStore) Append(ctx context.Context, t types.RunTrace) error {
	runID, err := uuid.Parse(t.RunID)
	if err != nil {
		return fmt.Errorf("invalid run id %q: %w", t.RunID, err)
	}
	traceJSON, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal trace: %w", err)
	}
	metricsJSON, err := json.Marshal(t.Metrics)
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}

	tx, err := s.db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO pipeline_runs (id, user_id, topic, status, metrics, trace, error_message, started_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		runID, t.UserID, t.Topic, string(t.State), metricsJSON, traceJSON, nullIfEmpty(t.Error), t.StartedAt, t.FinishedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: %s", trace.ErrDuplicateRun, t.RunID)
		}
		return fmt.Errorf("failed to create run: %w", err)
	}

	batch := &pgx.Batch{}
	for i, rec := range t.Stages {
		var errMsg *string
		if len(rec.Errors) > 0 {
			msg := strings.Join(rec.Errors, "; ")
			errMsg = &msg
		}
		batch.Queue(
			`INSERT INTO run_steps (run_id, seq, step, status, started_at, completed_at, duration_ms,
			                        count_in, count_out, capability_calls, error_message)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			runID, i, string(rec.Stage), stepStatus(rec, t.State, i == len(t.Stages)-1),
			rec.StartedAt, rec.EndedAt, int(rec.EndedAt.Sub(rec.StartedAt).Milliseconds()),
			rec.CountIn, rec.CountOut, rec.CapabilityCalls, errMsg,
		)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to create run steps: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

// Load retrieves a stored trace by run id.
func (s *traceStore) Load(ctx context.Context, runID string) (types.RunTrace, error) {
	id, err := uuid.Parse(runID)
	if err != nil {
		return types.RunTrace{}, trace.ErrNotFound
	}

	var raw []byte
	err = s.db.pool.QueryRow(ctx,
		`SELECT trace FROM pipeline_runs WHERE id = $1`,
		id,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return types.RunTrace{}, trace.ErrNotFound
	}
	if err != nil {
		return types.RunTrace{}, fmt.Errorf("failed to get run: %w", err)
	}

	var t types.RunTrace
	if err := json.Unmarshal(raw, &t); err != nil {
		return types.RunTrace{}, fmt.Errorf("failed to decode trace: %w", err)
	}
	return t, nil
}

// ListRunSteps returns the step names and statuses of a run in order.
func (db *DB) ListRunSteps(ctx context.Context, runID string) ([][2]string, error) {
	id, err := uuid.Parse(runID)
	if err != nil {
		return nil, fmt.Errorf("invalid run id %q: %w", runID, err)
	}
	rows, err := db.pool.Query(ctx,
		`SELECT step, status FROM run_steps WHERE run_id = $1 ORDER BY seq`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list run steps: %w", err)
	}
	defer rows.Close()

	var steps [][2]string
	for rows.Next() {
		var step, status string
		if err := rows.Scan(&step, &status); err != nil {
			return nil, fmt.Errorf("failed to scan run step: %w", err)
		}
		steps = append(steps, [2]string{step, status})
	}
	return steps, rows.Err()
}

// RecentRuns lists the newest run ids for a user.
func (db *DB) RecentRuns(ctx context.Context, userID string, limit int) ([]string, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id FROM pipeline_runs WHERE user_id = $1 ORDER BY started_at DESC LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan run id: %w", err)
		}
		ids = append(ids, id.String())
	}
	return ids, rows.Err()
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
