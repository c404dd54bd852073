// internal/history/history.go
// Optional run-history persistence. When a database URL is configured, every
// replay's ExecutionReport is written to Postgres so runs can be compared
// over time. Replay works identically without it.
package history

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/naytrik/naytrik/api/schemas"
)

// DBPool abstracts pgxpool.Pool so tests can substitute a mock.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// Store persists execution reports to Postgres.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a store and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{
		pool: pool,
		log:  logger.Named("history"),
	}, nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS runs (
    id            UUID PRIMARY KEY,
    workflow_name TEXT        NOT NULL,
    started_at    TIMESTAMPTZ NOT NULL,
    finished_at   TIMESTAMPTZ NOT NULL,
    succeeded     INT         NOT NULL,
    fallback      INT         NOT NULL,
    failed        INT         NOT NULL,
    skipped       INT         NOT NULL,
    passed        BOOLEAN     NOT NULL
);
CREATE TABLE IF NOT EXISTS run_steps (
    run_id       UUID   NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    step_id      INT    NOT NULL,
    kind         TEXT   NOT NULL,
    outcome      TEXT   NOT NULL,
    strategy     TEXT,
    duration_ms  BIGINT NOT NULL,
    error_kind   TEXT,
    error_detail TEXT,
    extracted    TEXT,
    PRIMARY KEY (run_id, step_id)
);
CREATE INDEX IF NOT EXISTS idx_runs_workflow ON runs (workflow_name, started_at DESC);
`

// EnsureSchema creates the history tables when they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("failed to create history schema: %w", err)
	}
	return nil
}

const sqlInsertRun = `
INSERT INTO runs (id, workflow_name, started_at, finished_at, succeeded, fallback, failed, skipped, passed)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`

// SaveReport writes the run row and every step result in one transaction.
func (s *Store) SaveReport(ctx context.Context, report *schemas.ExecutionReport) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	succeeded, fallback, failed, skipped := report.Counts()
	if _, err := tx.Exec(ctx, sqlInsertRun,
		report.RunID, report.WorkflowName,
		report.StartedAt.UTC(), report.FinishedAt.UTC(),
		succeeded, fallback, failed, skipped, report.Passed(),
	); err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	if len(report.Steps) > 0 {
		rows := make([][]interface{}, len(report.Steps))
		for i, step := range report.Steps {
			rows[i] = []interface{}{
				report.RunID, step.StepID, string(step.Kind), string(step.Outcome),
				string(step.StrategyUsed), step.DurationMs,
				string(step.Error), step.ErrorDetail, step.Extracted,
			}
		}
		copyCount, err := tx.CopyFrom(
			ctx,
			pgx.Identifier{"run_steps"},
			[]string{"run_id", "step_id", "kind", "outcome", "strategy", "duration_ms", "error_kind", "error_detail", "extracted"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return fmt.Errorf("failed to copy run steps: %w", err)
		}
		if int(copyCount) != len(report.Steps) {
			return fmt.Errorf("mismatch in copied step count: expected %d, got %d", len(report.Steps), copyCount)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.log.Debug("Run persisted.",
		zap.String("run_id", report.RunID),
		zap.String("workflow", report.WorkflowName),
		zap.Int("steps", len(report.Steps)))
	return nil
}

// RunSummary is one row of replay history.
type RunSummary struct {
	RunID        string
	WorkflowName string
	Succeeded    int
	Fallback     int
	Failed       int
	Skipped      int
	Passed       bool
}

const sqlRecentRuns = `
SELECT id, workflow_name, succeeded, fallback, failed, skipped, passed
FROM runs
WHERE workflow_name = $1
ORDER BY started_at DESC
LIMIT $2
`

// RecentRuns returns the newest runs of a workflow, most recent first.
func (s *Store) RecentRuns(ctx context.Context, workflowName string, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, sqlRecentRuns, workflowName, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(&r.RunID, &r.WorkflowName, &r.Succeeded, &r.Fallback, &r.Failed, &r.Skipped, &r.Passed); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate run rows: %w", err)
	}
	return out, nil
}
