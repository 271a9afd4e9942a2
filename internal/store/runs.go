package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/loopback-labs/e2e-agent/internal/models"
	srvErrors "github.com/loopback-labs/e2e-agent/pkg/errors"
)

// RunStore persists run history.
type RunStore struct {
	db *sql.DB
}

func NewRunStore(db *sql.DB) *RunStore {
	return &RunStore{db: db}
}

// SaveRun records a run that has just started.
func (s *RunStore) SaveRun(ctx context.Context, result *models.RunResult) error {
	_, err := s.db.ExecContext(ctx, queryInsertRun,
		result.RunID,
		string(result.Kind),
		result.StartedAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

// FinishRun stores the run outcome together with its per-suite results.
func (s *RunStore) FinishRun(ctx context.Context, result *models.RunResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, queryFinishRun,
		result.TunnelURL,
		boolToInt(result.Success),
		result.Error,
		result.FinishedAt.UTC().Format(time.RFC3339Nano),
		result.RunID,
	)
	if err != nil {
		return err
	}
	for i, suite := range result.Suites {
		_, err = tx.ExecContext(ctx, queryInsertSuite,
			result.RunID, i, suite.SuiteID, suite.CommitSHA,
			string(suite.State), suite.FailureReason,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetRun loads one run with its suites.
func (s *RunStore) GetRun(ctx context.Context, runID string) (*models.RunResult, error) {
	row := s.db.QueryRowContext(ctx, queryGetRun, runID)
	result, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, srvErrors.NewRunNotFoundError(runID)
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, queryGetSuitesForRun, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var suite models.SuiteResult
		var state string
		if err := rows.Scan(&suite.SuiteID, &suite.CommitSHA, &state, &suite.FailureReason); err != nil {
			return nil, err
		}
		suite.State = models.SuiteState(state)
		result.Suites = append(result.Suites, suite)
	}
	return result, rows.Err()
}

// ListRuns returns run history, newest first.
func (s *RunStore) ListRuns(ctx context.Context, opts ...ListOption) ([]models.RunResult, error) {
	builder := sq.Select("id", "kind", "tunnel_url", "success", "error", "started_at", "finished_at").
		From("runs").
		OrderBy("started_at DESC")

	for _, opt := range opts {
		builder = opt(builder)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []models.RunResult
	for rows.Next() {
		result, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *result)
	}
	return runs, rows.Err()
}

// ListOption narrows or bounds a ListRuns query.
type ListOption func(sq.SelectBuilder) sq.SelectBuilder

func WithKind(kind models.RunKind) ListOption {
	return func(b sq.SelectBuilder) sq.SelectBuilder {
		return b.Where(sq.Eq{"kind": string(kind)})
	}
}

func WithSuccess(success bool) ListOption {
	return func(b sq.SelectBuilder) sq.SelectBuilder {
		return b.Where(sq.Eq{"success": boolToInt(success)})
	}
}

func WithLimit(limit uint64) ListOption {
	return func(b sq.SelectBuilder) sq.SelectBuilder {
		if limit == 0 {
			return b
		}
		return b.Limit(limit)
	}
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*models.RunResult, error) {
	var result models.RunResult
	var kind string
	var success int
	var startedAt, finishedAt string
	err := row.Scan(&result.RunID, &kind, &result.TunnelURL, &success, &result.Error, &startedAt, &finishedAt)
	if err != nil {
		return nil, err
	}
	result.Kind = models.RunKind(kind)
	result.Success = success != 0
	if result.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, fmt.Errorf("invalid started_at for run %s: %w", result.RunID, err)
	}
	if finishedAt != "" {
		if result.FinishedAt, err = parseTime(finishedAt); err != nil {
			return nil, fmt.Errorf("invalid finished_at for run %s: %w", result.RunID, err)
		}
	}
	return &result, nil
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
