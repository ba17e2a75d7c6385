// Package pgstore is a durable flowstore.Store backed by Postgres. It
// exists for deployments that need runs and elements to survive a
// process restart; memstore remains the reference implementation and
// the default wired by cmd/flowengine.
//
// Schema (see Schema() for the DDL this package expects already applied):
//
//	flow_runs(id, flow_name, user_id, status, input, result, error_message, created_at, completed_at)
//	flow_elements(id, flow_run_id, seq, created_at, content)
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/flowengine/internal/domain"
)

// Store is a pgxpool-backed flowstore.Store.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an already-connected pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// NewPool opens a pgxpool using dsn, pinging it before returning. dsn is
// passed to pgxpool.ParseConfig as given; NewPool does not read
// $FLOWENGINE_DB_URL itself.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 10
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("new pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return pool, nil
}

// Schema returns the DDL this Store expects. Callers run it through
// their own migration tool; pgstore does not migrate on its own.
func Schema() string {
	return `
CREATE TABLE IF NOT EXISTS flow_runs (
	id             UUID PRIMARY KEY,
	flow_name      TEXT NOT NULL,
	user_id        TEXT NOT NULL DEFAULT '',
	status         TEXT NOT NULL,
	input          JSONB,
	result         JSONB,
	error_message  TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL,
	completed_at   TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS flow_runs_user_id_created_at_idx ON flow_runs (user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS flow_elements (
	id           UUID PRIMARY KEY,
	flow_run_id  UUID NOT NULL REFERENCES flow_runs(id),
	seq          BIGINT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL,
	content      JSONB,
	UNIQUE (flow_run_id, seq)
);
`
}

// SaveRun inserts run.
func (s *Store) SaveRun(ctx context.Context, run *domain.FlowRun) (uuid.UUID, error) {
	inputJSON, err := json.Marshal(run.Input)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal input: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO flow_runs (id, flow_name, user_id, status, input, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, run.ID, run.FlowName, run.UserID, string(run.Status), inputJSON, run.CreatedAt)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert flow_run: %w", err)
	}
	return run.ID, nil
}

// GetRun returns the run record or domain.ErrNotFound.
func (s *Store) GetRun(ctx context.Context, id uuid.UUID) (*domain.FlowRun, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, flow_name, user_id, status, input, result, error_message, created_at, completed_at
		FROM flow_runs WHERE id = $1
	`, id)
	return scanRun(row)
}

// ListRunsForUser returns up to limit runs for userID, newest first.
func (s *Store) ListRunsForUser(ctx context.Context, userID string, limit int) ([]*domain.FlowRun, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, flow_name, user_id, status, input, result, error_message, created_at, completed_at
		FROM flow_runs WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query flow_runs: %w", err)
	}
	defer rows.Close()

	var out []*domain.FlowRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// UpdateRunStatus transitions status, setting completed_at when it is
// terminal. Transitions away from an already-terminal status are ignored.
func (s *Store) UpdateRunStatus(ctx context.Context, id uuid.UUID, status domain.FlowRunStatus) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE flow_runs
		SET status = $2,
		    completed_at = CASE WHEN $3 THEN now() ELSE completed_at END
		WHERE id = $1
		  AND status NOT IN ('COMPLETED', 'FAILED', 'CANCELED')
	`, id, string(status), status.IsTerminal())
	if err != nil {
		return fmt.Errorf("update flow_runs status: %w", err)
	}
	return nil
}

// UpdateRunCompletionTime sets completed_at.
func (s *Store) UpdateRunCompletionTime(ctx context.Context, id uuid.UUID, t time.Time) error {
	_, err := s.pool.Exec(ctx, `UPDATE flow_runs SET completed_at = $2 WHERE id = $1`, id, t)
	if err != nil {
		return fmt.Errorf("update flow_runs completed_at: %w", err)
	}
	return nil
}

// UpdateRunErrorMessage sets error_message.
func (s *Store) UpdateRunErrorMessage(ctx context.Context, id uuid.UUID, msg string) error {
	_, err := s.pool.Exec(ctx, `UPDATE flow_runs SET error_message = $2 WHERE id = $1`, id, msg)
	if err != nil {
		return fmt.Errorf("update flow_runs error_message: %w", err)
	}
	return nil
}

// SaveElement inserts element, assigning Seq via a per-run counter
// subquery. Returns the element id.
func (s *Store) SaveElement(ctx context.Context, element *domain.FlowElement) (uuid.UUID, error) {
	if element.ID == uuid.Nil {
		element.ID = uuid.New()
	}
	if element.CreatedAt.IsZero() {
		element.CreatedAt = time.Now().UTC()
	}

	contentJSON, err := json.Marshal(element.Content)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal content: %w", err)
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO flow_elements (id, flow_run_id, seq, created_at, content)
		VALUES ($1, $2, COALESCE((SELECT MAX(seq) + 1 FROM flow_elements WHERE flow_run_id = $2), 0), $3, $4)
		RETURNING seq
	`, element.ID, element.FlowRunID, element.CreatedAt, contentJSON)

	if err := row.Scan(&element.Seq); err != nil {
		return uuid.Nil, fmt.Errorf("insert flow_element: %w", err)
	}
	return element.ID, nil
}

// GetElements returns all elements for runID ordered by (created_at, seq).
func (s *Store) GetElements(ctx context.Context, runID uuid.UUID) ([]*domain.FlowElement, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, flow_run_id, seq, created_at, content
		FROM flow_elements
		WHERE flow_run_id = $1
		ORDER BY created_at ASC, seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query flow_elements: %w", err)
	}
	defer rows.Close()

	out := make([]*domain.FlowElement, 0)
	for rows.Next() {
		var e domain.FlowElement
		var contentJSON []byte
		if err := rows.Scan(&e.ID, &e.FlowRunID, &e.Seq, &e.CreatedAt, &contentJSON); err != nil {
			return nil, fmt.Errorf("scan flow_element: %w", err)
		}
		if len(contentJSON) > 0 {
			if err := json.Unmarshal(contentJSON, &e.Content); err != nil {
				return nil, fmt.Errorf("unmarshal content: %w", err)
			}
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// SaveResult records result and mirrors it onto the run row.
func (s *Store) SaveResult(ctx context.Context, runID uuid.UUID, result any) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	_, err = s.pool.Exec(ctx, `UPDATE flow_runs SET result = $2 WHERE id = $1`, runID, resultJSON)
	if err != nil {
		return fmt.Errorf("update flow_runs result: %w", err)
	}
	return nil
}

// GetResult returns the run's result, or domain.ErrNotFound if the run or
// its result is missing.
func (s *Store) GetResult(ctx context.Context, runID uuid.UUID) (any, error) {
	var resultJSON []byte
	err := s.pool.QueryRow(ctx, `SELECT result FROM flow_runs WHERE id = $1`, runID).Scan(&resultJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query flow_runs result: %w", err)
	}
	if len(resultJSON) == 0 {
		return nil, domain.ErrNotFound
	}

	var result any
	if err := json.Unmarshal(resultJSON, &result); err != nil {
		return nil, fmt.Errorf("unmarshal result: %w", err)
	}
	return result, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*domain.FlowRun, error) {
	var run domain.FlowRun
	var inputJSON, resultJSON []byte
	var status string

	err := row.Scan(&run.ID, &run.FlowName, &run.UserID, &status, &inputJSON, &resultJSON, &run.ErrorMessage, &run.CreatedAt, &run.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan flow_run: %w", err)
	}
	run.Status = domain.FlowRunStatus(status)

	if len(inputJSON) > 0 {
		if err := json.Unmarshal(inputJSON, &run.Input); err != nil {
			return nil, fmt.Errorf("unmarshal input: %w", err)
		}
	}
	if len(resultJSON) > 0 {
		if err := json.Unmarshal(resultJSON, &run.Result); err != nil {
			return nil, fmt.Errorf("unmarshal result: %w", err)
		}
	}
	return &run, nil
}
