package ledger

import (
	"context"
	"database/sql"
	"time"

	vanity "github.com/teranos/vanity-id"
	"go.uber.org/zap"

	"github.com/cytofkit/cytofkit/errors"
	"github.com/cytofkit/cytofkit/logger"
)

// Store persists runs in the ledger database
type Store struct {
	db     *sql.DB
	logger *zap.SugaredLogger
	now    func() time.Time
}

// NewStore creates a ledger store over a migrated database
func NewStore(db *sql.DB, log *zap.SugaredLogger) *Store {
	return &Store{
		db:     db,
		logger: logger.OrComponent(log, "ledger"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// NewRunID generates a run ID for kind, e.g. "CR_7K2M9QX4ZB1D"
func NewRunID(kind Kind) (string, error) {
	suffix, err := vanity.GenerateRandomID(12)
	if err != nil {
		return "", errors.Wrap(err, "failed to generate run ID")
	}
	prefix, ok := idPrefix[kind]
	if !ok {
		prefix = "RN_"
	}
	return prefix + suffix, nil
}

// Begin records a run as started. When run.ID is empty a new one is generated.
func (s *Store) Begin(ctx context.Context, run *Run) error {
	if run.ID == "" {
		id, err := NewRunID(run.Kind)
		if err != nil {
			return err
		}
		run.ID = id
	}
	if run.Params == "" {
		run.Params = "{}"
	}
	run.Status = StatusRunning
	run.StartedAt = s.now()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, kind, algorithm, params, input_path, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, string(run.Kind), run.Algorithm, run.Params, run.InputPath, string(run.Status), run.StartedAt,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to create run %s", run.ID)
	}

	s.logger.Debugw("Run started",
		logger.FieldRunID, run.ID,
		"kind", run.Kind,
		logger.FieldAlgorithm, run.Algorithm)
	return nil
}

// Complete marks a run completed and records its artifacts in one transaction
func (s *Store) Complete(ctx context.Context, runID string, outcome Outcome) error {
	completedAt := s.now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrapf(err, "begin tx for run %s", runID)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE runs
		SET status = ?, output_dir = ?, n_rows = ?, n_clusters = ?, completed_at = ?,
		    duration_ms = CAST((julianday(?) - julianday(started_at)) * 86400000 AS INTEGER)
		WHERE id = ? AND status = ?`,
		string(StatusCompleted), outcome.OutputDir, outcome.NRows, outcome.NClusters, completedAt,
		completedAt, runID, string(StatusRunning),
	)
	if err != nil {
		return errors.Wrapf(err, "failed to complete run %s", runID)
	}
	if err := expectOneRow(res, runID); err != nil {
		return err
	}

	for _, a := range outcome.Artifacts {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO run_artifacts (run_id, name, kind, size_bytes) VALUES (?, ?, ?, ?)`,
			runID, a.Name, a.Kind, a.SizeBytes,
		); err != nil {
			return errors.Wrapf(err, "failed to record artifact %s of run %s", a.Name, runID)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrapf(err, "commit run %s", runID)
	}
	return nil
}

// Fail marks a run failed, or cancelled when runErr is a cancellation
func (s *Store) Fail(ctx context.Context, runID string, runErr error) error {
	kind := errors.KindOf(runErr)
	status := StatusFailed
	if kind == errors.KindCancelled {
		status = StatusCancelled
	}
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	completedAt := s.now()

	res, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET status = ?, error = ?, error_kind = ?, completed_at = ?,
		    duration_ms = CAST((julianday(?) - julianday(started_at)) * 86400000 AS INTEGER)
		WHERE id = ? AND status = ?`,
		string(status), msg, string(kind), completedAt, completedAt, runID, string(StatusRunning),
	)
	if err != nil {
		return errors.Wrapf(err, "failed to record failure of run %s", runID)
	}
	return expectOneRow(res, runID)
}

// Get returns a run by ID
func (s *Store) Get(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.WithHint(errors.Newf("run %s not found", runID), "list runs with: cytofkit runs ls")
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read run %s", runID)
	}
	return run, nil
}

// ListFilter narrows List
type ListFilter struct {
	Kind  Kind // empty = all kinds
	Limit int  // <= 0 = 50
}

// List returns runs, newest first
func (s *Store) List(ctx context.Context, filter ListFilter) ([]*Run, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + runColumns + ` FROM runs`
	args := []interface{}{}
	if filter.Kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, string(filter.Kind))
	}
	query += ` ORDER BY started_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list runs")
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan run")
		}
		runs = append(runs, run)
	}
	return runs, errors.Wrap(rows.Err(), "iterate runs")
}

// Artifacts returns the artifacts recorded for a run, sorted by name
func (s *Store) Artifacts(ctx context.Context, runID string) ([]Artifact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, kind, size_bytes FROM run_artifacts WHERE run_id = ? ORDER BY name`, runID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list artifacts of run %s", runID)
	}
	defer rows.Close()

	var artifacts []Artifact
	for rows.Next() {
		var a Artifact
		if err := rows.Scan(&a.Name, &a.Kind, &a.SizeBytes); err != nil {
			return nil, errors.Wrap(err, "failed to scan artifact")
		}
		artifacts = append(artifacts, a)
	}
	return artifacts, errors.Wrap(rows.Err(), "iterate artifacts")
}

const runColumns = `id, kind, algorithm, params, input_path, output_dir, n_rows, n_clusters,
	status, error, error_kind, started_at, completed_at, duration_ms`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (*Run, error) {
	var (
		run         Run
		kind        string
		status      string
		completedAt sql.NullTime
	)
	err := row.Scan(&run.ID, &kind, &run.Algorithm, &run.Params, &run.InputPath, &run.OutputDir,
		&run.NRows, &run.NClusters, &status, &run.Error, &run.ErrorKind, &run.StartedAt,
		&completedAt, &run.DurationMS)
	if err != nil {
		return nil, err
	}
	run.Kind = Kind(kind)
	run.Status = Status(status)
	if completedAt.Valid {
		t := completedAt.Time
		run.CompletedAt = &t
	}
	return &run, nil
}

func expectOneRow(res sql.Result, runID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrapf(err, "rows affected for run %s", runID)
	}
	if n != 1 {
		return errors.Newf("run %s is not running (updated %d rows)", runID, n)
	}
	return nil
}
