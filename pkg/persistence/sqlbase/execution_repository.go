package sqlbase

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dukex/flowline/pkg/models"
	"github.com/dukex/flowline/pkg/persistence"
)

const executionColumns = `id, workflow_id, trigger_data, current_step, status, steps, started_at, completed_at, error_message`

// ExecutionRepository handles execution database operations.
type ExecutionRepository struct {
	conn *conn
}

func (r *ExecutionRepository) Create(ctx context.Context, execution *models.Execution) error {
	triggerDataJSON, err := marshalJSON(execution.TriggerData)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger data: %w", err)
	}

	stepsJSON, err := marshalJSON(execution.Steps)
	if err != nil {
		return fmt.Errorf("failed to marshal steps: %w", err)
	}

	_, err = r.conn.exec(ctx, `
		INSERT INTO executions (`+executionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		execution.ID,
		execution.WorkflowID,
		triggerDataJSON,
		execution.CurrentStep,
		execution.Status,
		stepsJSON,
		execution.StartedAt.UTC(),
		nullTime(execution.CompletedAt),
		execution.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to insert execution: %w", err)
	}

	return nil
}

func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.Execution, error) {
	row := r.conn.db.QueryRowContext(ctx, r.conn.rebind(`SELECT `+executionColumns+` FROM executions WHERE id = ?`), id)

	execution, err := r.scanExecution(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewExecutionError("GetByID", id, persistence.ErrExecutionNotFound)
		}

		return nil, fmt.Errorf("failed to scan execution: %w", err)
	}

	return execution, nil
}

func (r *ExecutionRepository) List(ctx context.Context, filter models.ExecutionFilter) ([]*models.Execution, error) {
	var (
		conditions []string
		args       []any
	)

	if filter.WorkflowID != "" {
		conditions = append(conditions, "workflow_id = ?")
		args = append(args, filter.WorkflowID)
	}

	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}

	query := `SELECT ` + executionColumns + ` FROM executions`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}

	query += ` ORDER BY started_at DESC`

	if filter.Limit > 0 {
		query += ` LIMIT ?`

		args = append(args, filter.Limit)
	}

	rows, err := r.conn.db.QueryContext(ctx, r.conn.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}

	defer r.conn.closeRows(ctx, rows)

	executions := make([]*models.Execution, 0)

	for rows.Next() {
		execution, err := r.scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		executions = append(executions, execution)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return executions, nil
}

// SetCurrentStep never moves current_step backwards.
func (r *ExecutionRepository) SetCurrentStep(ctx context.Context, id string, step int) error {
	_, err := r.conn.exec(ctx,
		`UPDATE executions SET current_step = ? WHERE id = ? AND current_step <= ?`,
		step, id, step,
	)
	if err != nil {
		return fmt.Errorf("failed to update current step: %w", err)
	}

	return nil
}

func (r *ExecutionRepository) Finish(ctx context.Context, id string, status models.ExecutionStatus, errorMessage string, at time.Time) error {
	_, err := r.conn.exec(ctx, `
		UPDATE executions
		SET status = ?, error_message = ?, completed_at = ?
		WHERE id = ? AND status NOT IN (?, ?)
	`,
		status, errorMessage, at.UTC(), id,
		models.ExecutionStatusCompleted, models.ExecutionStatusFailed,
	)
	if err != nil {
		return fmt.Errorf("failed to finish execution: %w", err)
	}

	return nil
}

func (r *ExecutionRepository) TransitionStatus(ctx context.Context, id string, from, to models.ExecutionStatus) (bool, error) {
	affected, err := r.conn.exec(ctx, `UPDATE executions SET status = ? WHERE id = ? AND status = ?`, to, id, from)
	if err != nil {
		return false, fmt.Errorf("failed to update execution status: %w", err)
	}

	if affected > 0 {
		return true, nil
	}

	_, err = r.GetByID(ctx, id)
	if err != nil {
		return false, err
	}

	return false, nil
}

func (r *ExecutionRepository) scanExecution(row scanner) (*models.Execution, error) {
	var (
		execution   models.Execution
		triggerData []byte
		steps       []byte
		completedAt sql.NullTime
	)

	err := row.Scan(
		&execution.ID,
		&execution.WorkflowID,
		&triggerData,
		&execution.CurrentStep,
		&execution.Status,
		&steps,
		&execution.StartedAt,
		&completedAt,
		&execution.ErrorMessage,
	)
	if err != nil {
		return nil, err
	}

	execution.TriggerData = map[string]any{}

	err = unmarshalJSON(triggerData, &execution.TriggerData)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal trigger data: %w", err)
	}

	err = unmarshalJSON(steps, &execution.Steps)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal steps: %w", err)
	}

	execution.StartedAt = execution.StartedAt.UTC()

	if completedAt.Valid {
		completed := completedAt.Time.UTC()
		execution.CompletedAt = &completed
	}

	return &execution, nil
}
