package state

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/leapstack-labs/wellplan/pkg/core"
)

const runColumns = `id, protocol, params_digest, plan_digest, instructions, status, error, created_at`

// RecordRun inserts a run. Empty IDs and zero timestamps are filled in.
func (s *SQLiteStore) RecordRun(run *core.Run) error {
	if s.db == nil {
		return core.ErrStoreNotOpen
	}
	if run.ID == "" {
		run.ID = generateID()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	var errMsg *string
	if run.Error != "" {
		errMsg = &run.Error
	}

	s.logger.Debug("recording run",
		slog.String("id", run.ID),
		slog.String("protocol", run.Protocol),
		slog.String("status", string(run.Status)))

	_, err := s.db.ExecContext(ctx(),
		`INSERT INTO runs (`+runColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Protocol, run.ParamsDigest, run.PlanDigest, run.Instructions, string(run.Status), errMsg, run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(id string) (*core.Run, error) {
	if s.db == nil {
		return nil, core.ErrStoreNotOpen
	}

	row := s.db.QueryRowContext(ctx(), `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns retrieves the most recent runs up to the given limit.
func (s *SQLiteStore) ListRuns(limit int) ([]*core.Run, error) {
	if s.db == nil {
		return nil, core.ErrStoreNotOpen
	}
	rows, err := s.db.QueryContext(ctx(),
		`SELECT `+runColumns+` FROM runs ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return collectRuns(rows)
}

// RunsWithParams returns every run recorded with the given parameter digest, oldest first.
func (s *SQLiteStore) RunsWithParams(paramsDigest string) ([]*core.Run, error) {
	if s.db == nil {
		return nil, core.ErrStoreNotOpen
	}
	rows, err := s.db.QueryContext(ctx(),
		`SELECT `+runColumns+` FROM runs WHERE params_digest = ? ORDER BY created_at, id`, paramsDigest)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	return collectRuns(rows)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*core.Run, error) {
	run := &core.Run{}
	var status string
	var errMsg sql.NullString
	err := sc.Scan(&run.ID, &run.Protocol, &run.ParamsDigest, &run.PlanDigest,
		&run.Instructions, &status, &errMsg, &run.CreatedAt)
	if err != nil {
		return nil, err
	}
	run.Status = core.RunStatus(status)
	if errMsg.Valid {
		run.Error = errMsg.String
	}
	return run, nil
}

func collectRuns(rows *sql.Rows) ([]*core.Run, error) {
	defer func() { _ = rows.Close() }()

	var runs []*core.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}
