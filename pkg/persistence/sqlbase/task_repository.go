package sqlbase

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dukex/flowline/pkg/models"
	"github.com/dukex/flowline/pkg/persistence"
)

const taskColumns = `id, execution_id, step_number, scheduled_time, status, retry_count, max_retries, delay_elapsed, last_error, created_at, updated_at`

// TaskRepository handles deferred task database operations.
type TaskRepository struct {
	conn *conn
}

func (r *TaskRepository) Create(ctx context.Context, task *models.DeferredTask) error {
	_, err := r.conn.exec(ctx, `
		INSERT INTO deferred_tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		task.ID,
		task.ExecutionID,
		task.StepNumber,
		task.ScheduledTime.UTC(),
		task.Status,
		task.RetryCount,
		task.MaxRetries,
		task.DelayElapsed,
		task.LastError,
		task.CreatedAt.UTC(),
		task.UpdatedAt.UTC(),
	)
	if err != nil {
		if r.conn.dialect.IsUniqueViolation(err) {
			return persistence.NewTaskError("Create", task.ID, persistence.ErrActiveTaskExists)
		}

		return fmt.Errorf("failed to insert deferred task: %w", err)
	}

	return nil
}

func (r *TaskRepository) GetByID(ctx context.Context, id string) (*models.DeferredTask, error) {
	row := r.conn.db.QueryRowContext(ctx, r.conn.rebind(`SELECT `+taskColumns+` FROM deferred_tasks WHERE id = ?`), id)

	task, err := r.scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewTaskError("GetByID", id, persistence.ErrTaskNotFound)
		}

		return nil, fmt.Errorf("failed to scan deferred task: %w", err)
	}

	return task, nil
}

func (r *TaskRepository) ListByExecution(ctx context.Context, executionID string) ([]*models.DeferredTask, error) {
	return r.query(ctx, `
		SELECT `+taskColumns+`
		FROM deferred_tasks
		WHERE execution_id = ?
		ORDER BY created_at ASC, id ASC
	`, executionID)
}

// ListDue keeps tasks of missing executions so the scheduler can fail them.
func (r *TaskRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.DeferredTask, error) {
	return r.query(ctx, `
		SELECT t.id, t.execution_id, t.step_number, t.scheduled_time, t.status, t.retry_count,
			t.max_retries, t.delay_elapsed, t.last_error, t.created_at, t.updated_at
		FROM deferred_tasks t
		LEFT JOIN executions e ON e.id = t.execution_id
		WHERE t.status = ?
			AND t.scheduled_time <= ?
			AND (e.status IS NULL OR e.status <> ?)
		ORDER BY t.scheduled_time ASC
		LIMIT ?
	`, models.TaskStatusPending, now.UTC(), models.ExecutionStatusPaused, limit)
}

func (r *TaskRepository) Claim(ctx context.Context, id string, now time.Time) (bool, error) {
	affected, err := r.conn.exec(ctx,
		`UPDATE deferred_tasks SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		models.TaskStatusProcessing, now.UTC(), id, models.TaskStatusPending,
	)
	if err != nil {
		return false, fmt.Errorf("failed to claim deferred task: %w", err)
	}

	return affected == 1, nil
}

func (r *TaskRepository) Release(ctx context.Context, id string, now time.Time) error {
	return r.update(ctx, "Release", id,
		`UPDATE deferred_tasks SET status = ?, updated_at = ? WHERE id = ?`,
		models.TaskStatusPending, now.UTC(), id,
	)
}

func (r *TaskRepository) Complete(ctx context.Context, id string, now time.Time) error {
	return r.update(ctx, "Complete", id,
		`UPDATE deferred_tasks SET status = ?, updated_at = ? WHERE id = ?`,
		models.TaskStatusCompleted, now.UTC(), id,
	)
}

func (r *TaskRepository) Retry(ctx context.Context, id string, retryCount int, next time.Time, lastError string, now time.Time) error {
	return r.update(ctx, "Retry", id, `
		UPDATE deferred_tasks
		SET status = ?, retry_count = ?, scheduled_time = ?, last_error = ?, updated_at = ?
		WHERE id = ?
	`, models.TaskStatusPending, retryCount, next.UTC(), lastError, now.UTC(), id)
}

func (r *TaskRepository) Fail(ctx context.Context, id string, retryCount int, lastError string, now time.Time) error {
	return r.update(ctx, "Fail", id, `
		UPDATE deferred_tasks
		SET status = ?, retry_count = ?, last_error = ?, updated_at = ?
		WHERE id = ?
	`, models.TaskStatusFailed, retryCount, lastError, now.UTC(), id)
}

func (r *TaskRepository) Reschedule(ctx context.Context, id string, next time.Time, delayElapsed bool, now time.Time) error {
	return r.update(ctx, "Reschedule", id, `
		UPDATE deferred_tasks
		SET status = ?, scheduled_time = ?, delay_elapsed = ?, updated_at = ?
		WHERE id = ?
	`, models.TaskStatusPending, next.UTC(), delayElapsed, now.UTC(), id)
}

func (r *TaskRepository) update(ctx context.Context, op, id, query string, args ...any) error {
	affected, err := r.conn.exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s deferred task: %w", op, err)
	}

	if affected == 0 {
		return persistence.NewTaskError(op, id, persistence.ErrTaskNotFound)
	}

	return nil
}

func (r *TaskRepository) query(ctx context.Context, query string, args ...any) ([]*models.DeferredTask, error) {
	rows, err := r.conn.db.QueryContext(ctx, r.conn.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query deferred tasks: %w", err)
	}

	defer r.conn.closeRows(ctx, rows)

	tasks := make([]*models.DeferredTask, 0)

	for rows.Next() {
		task, err := r.scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deferred task: %w", err)
		}

		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating deferred tasks: %w", err)
	}

	return tasks, nil
}

func (r *TaskRepository) scanTask(row scanner) (*models.DeferredTask, error) {
	var task models.DeferredTask

	err := row.Scan(
		&task.ID,
		&task.ExecutionID,
		&task.StepNumber,
		&task.ScheduledTime,
		&task.Status,
		&task.RetryCount,
		&task.MaxRetries,
		&task.DelayElapsed,
		&task.LastError,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	task.ScheduledTime = task.ScheduledTime.UTC()
	task.CreatedAt = task.CreatedAt.UTC()
	task.UpdatedAt = task.UpdatedAt.UTC()

	return &task, nil
}
