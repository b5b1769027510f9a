package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/feichai0017/document-monitor/internal/models"
	"github.com/feichai0017/document-monitor/pkg/errors"
	"github.com/feichai0017/document-monitor/pkg/logger"
)

const executionColumns = `id, status, start_time, end_time, logs, steps, document_ids`

func (s *Store) CreateExecution(ctx context.Context, exec *models.Execution) error {
	steps, ids, err := encodeExecutionLists(exec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO executions (`+executionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		exec.ID, string(exec.Status), formatTime(exec.StartTime), formatNullTime(exec.EndTime), exec.Logs, steps, ids,
	)
	if err != nil {
		return errors.Wrapf(err, "insert execution %s", exec.ID)
	}
	return nil
}

func (s *Store) GetExecution(ctx context.Context, id string) (*models.Execution, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+executionColumns+` FROM executions WHERE id = ?`, id)
	exec, err := scanExecution(row)
	if err != nil {
		return nil, notFoundIfNoRows(err, "execution", id)
	}
	return exec, nil
}

// ListExecutions returns executions newest first.
func (s *Store) ListExecutions(ctx context.Context, skip, limit int) ([]*models.Execution, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+executionColumns+` FROM executions ORDER BY start_time DESC, id LIMIT ? OFFSET ?`, limit, skip)
	if err != nil {
		return nil, errors.Wrap(err, "query executions")
	}
	defer rows.Close()

	execs := []*models.Execution{}
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		execs = append(execs, exec)
	}
	return execs, errors.Wrap(rows.Err(), "iterate executions")
}

// UpdateExecution applies fn to the stored execution inside one immediate
// transaction, so concurrent updates to the same row serialize. fn must not
// retain the pointer.
func (s *Store) UpdateExecution(ctx context.Context, id string, fn func(*models.Execution) error) (*models.Execution, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "begin update of execution %s", id)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				s.logger.Warn("Rollback failed", logger.String("execution_id", id), logger.Error(rbErr))
			}
		}
	}()

	row := tx.QueryRowContext(ctx, `SELECT `+executionColumns+` FROM executions WHERE id = ?`, id)
	exec, err := scanExecution(row)
	if err != nil {
		err = notFoundIfNoRows(err, "execution", id)
		return nil, err
	}

	if err = fn(exec); err != nil {
		return nil, err
	}

	steps, ids, err := encodeExecutionLists(exec)
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE executions SET status = ?, end_time = ?, logs = ?, steps = ?, document_ids = ? WHERE id = ?`,
		string(exec.Status), formatNullTime(exec.EndTime), exec.Logs, steps, ids, id,
	)
	if err != nil {
		err = errors.Wrapf(err, "write execution %s", id)
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		err = errors.Wrapf(err, "commit execution %s", id)
		return nil, err
	}
	return exec, nil
}

// ExecutionTargets returns the distinct documents referenced by the
// execution's versions.
func (s *Store) ExecutionTargets(ctx context.Context, executionID string) ([]*models.Document, error) {
	return s.queryDocuments(ctx, `SELECT `+prefixed("d.", documentColumns)+`
		FROM documents d
		WHERE d.id IN (SELECT DISTINCT document_id FROM versions WHERE execution_id = ?)
		ORDER BY d.created_at, d.id`, executionID)
}

func scanExecution(row scanner) (*models.Execution, error) {
	var (
		exec      models.Execution
		status    string
		startTime string
		endTime   sql.NullString
		steps     string
		ids       string
	)
	if err := row.Scan(&exec.ID, &status, &startTime, &endTime, &exec.Logs, &steps, &ids); err != nil {
		return nil, err
	}
	exec.Status = models.ExecutionStatus(status)

	var err error
	if exec.StartTime, err = parseTime(startTime); err != nil {
		return nil, err
	}
	if exec.EndTime, err = parseNullTime(endTime); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(steps), &exec.Steps); err != nil {
		return nil, errors.Wrapf(err, "decode steps of execution %s", exec.ID)
	}
	if err := json.Unmarshal([]byte(ids), &exec.DocumentIDs); err != nil {
		return nil, errors.Wrapf(err, "decode targets of execution %s", exec.ID)
	}
	if exec.Steps == nil {
		exec.Steps = []models.Step{}
	}
	return &exec, nil
}

func encodeExecutionLists(exec *models.Execution) (string, string, error) {
	steps := exec.Steps
	if steps == nil {
		steps = []models.Step{}
	}
	b, err := json.Marshal(steps)
	if err != nil {
		return "", "", errors.Wrap(err, "encode steps")
	}
	ids, err := encodeStrings(exec.DocumentIDs)
	if err != nil {
		return "", "", err
	}
	return string(b), ids, nil
}
