package sqlbase

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dukex/flowline/pkg/models"
	"github.com/dukex/flowline/pkg/persistence"
	"github.com/google/uuid"
)

const workflowColumns = `id, name, description, trigger_type, trigger_event, schedule, is_active, created_at, updated_at`

// WorkflowRepository handles workflow and workflow step database operations.
type WorkflowRepository struct {
	conn *conn
}

func (r *WorkflowRepository) Create(ctx context.Context, workflow *models.Workflow) error {
	tx, err := r.conn.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, r.conn.rebind(`
		INSERT INTO workflows (`+workflowColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`),
		workflow.ID,
		workflow.Name,
		workflow.Description,
		workflow.TriggerType,
		workflow.TriggerEvent,
		workflow.Schedule,
		workflow.Active,
		workflow.CreatedAt.UTC(),
		workflow.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert workflow: %w", err)
	}

	err = r.insertSteps(ctx, tx, workflow)
	if err != nil {
		return err
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit workflow: %w", err)
	}

	return nil
}

// Update replaces the definition and its full step list.
func (r *WorkflowRepository) Update(ctx context.Context, workflow *models.Workflow) error {
	tx, err := r.conn.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		_ = tx.Rollback()
	}()

	result, err := tx.ExecContext(ctx, r.conn.rebind(`
		UPDATE workflows
		SET name = ?, description = ?, trigger_type = ?, trigger_event = ?, schedule = ?, is_active = ?, updated_at = ?
		WHERE id = ?
	`),
		workflow.Name,
		workflow.Description,
		workflow.TriggerType,
		workflow.TriggerEvent,
		workflow.Schedule,
		workflow.Active,
		workflow.UpdatedAt.UTC(),
		workflow.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update workflow: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}

	if affected == 0 {
		return persistence.NewWorkflowError("Update", workflow.ID, persistence.ErrWorkflowNotFound)
	}

	_, err = tx.ExecContext(ctx, r.conn.rebind(`DELETE FROM workflow_steps WHERE workflow_id = ?`), workflow.ID)
	if err != nil {
		return fmt.Errorf("failed to delete workflow steps: %w", err)
	}

	err = r.insertSteps(ctx, tx, workflow)
	if err != nil {
		return err
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit workflow: %w", err)
	}

	return nil
}

func (r *WorkflowRepository) insertSteps(ctx context.Context, tx *sql.Tx, workflow *models.Workflow) error {
	query := r.conn.rebind(`
		INSERT INTO workflow_steps (id, workflow_id, step_number, step_type, config, delay_minutes, condition_rule)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)

	for _, step := range workflow.Steps {
		if step.ID == "" {
			step.ID = uuid.Must(uuid.NewV7()).String()
		}

		config := step.Config
		if config == nil {
			config = map[string]any{}
		}

		configJSON, err := marshalJSON(config)
		if err != nil {
			return fmt.Errorf("failed to marshal config of step %d: %w", step.StepNumber, err)
		}

		var condition sql.NullString

		if step.Condition != nil {
			conditionJSON, err := marshalJSON(step.Condition)
			if err != nil {
				return fmt.Errorf("failed to marshal condition of step %d: %w", step.StepNumber, err)
			}

			condition = sql.NullString{String: conditionJSON, Valid: true}
		}

		_, err = tx.ExecContext(ctx, query,
			step.ID,
			workflow.ID,
			step.StepNumber,
			step.Type,
			configJSON,
			step.DelayMinutes,
			condition,
		)
		if err != nil {
			return fmt.Errorf("failed to insert step %d: %w", step.StepNumber, err)
		}
	}

	return nil
}

func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	row := r.conn.db.QueryRowContext(ctx, r.conn.rebind(`SELECT `+workflowColumns+` FROM workflows WHERE id = ?`), id)

	workflow, err := r.scanWorkflow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
		}

		return nil, fmt.Errorf("failed to scan workflow: %w", err)
	}

	workflow.Steps, err = r.loadSteps(ctx, workflow.ID)
	if err != nil {
		return nil, err
	}

	return workflow, nil
}

func (r *WorkflowRepository) List(ctx context.Context, activeOnly bool) ([]*models.Workflow, error) {
	if activeOnly {
		return r.list(ctx, `SELECT `+workflowColumns+` FROM workflows WHERE is_active = ? ORDER BY created_at DESC`, true)
	}

	return r.list(ctx, `SELECT `+workflowColumns+` FROM workflows ORDER BY created_at DESC`)
}

func (r *WorkflowRepository) ListActiveByTrigger(ctx context.Context, triggerType models.TriggerType) ([]*models.Workflow, error) {
	return r.list(ctx,
		`SELECT `+workflowColumns+` FROM workflows WHERE is_active = ? AND trigger_type = ? ORDER BY created_at ASC`,
		true, triggerType,
	)
}

func (r *WorkflowRepository) SetActive(ctx context.Context, id string, active bool) error {
	affected, err := r.conn.exec(ctx, `UPDATE workflows SET is_active = ? WHERE id = ?`, active, id)
	if err != nil {
		return fmt.Errorf("failed to update workflow: %w", err)
	}

	if affected == 0 {
		return persistence.NewWorkflowError("SetActive", id, persistence.ErrWorkflowNotFound)
	}

	return nil
}

// Delete removes the definition and its steps. Executions and logs are kept.
func (r *WorkflowRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.conn.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, r.conn.rebind(`DELETE FROM workflow_steps WHERE workflow_id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete workflow steps: %w", err)
	}

	result, err := tx.ExecContext(ctx, r.conn.rebind(`DELETE FROM workflows WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}

	if affected == 0 {
		return persistence.NewWorkflowError("Delete", id, persistence.ErrWorkflowNotFound)
	}

	return tx.Commit()
}

func (r *WorkflowRepository) list(ctx context.Context, query string, args ...any) ([]*models.Workflow, error) {
	workflows, err := r.queryWorkflows(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	// Steps are loaded after the outer rows are closed; SQLite runs on a single connection.
	for _, workflow := range workflows {
		workflow.Steps, err = r.loadSteps(ctx, workflow.ID)
		if err != nil {
			return nil, err
		}
	}

	return workflows, nil
}

func (r *WorkflowRepository) queryWorkflows(ctx context.Context, query string, args ...any) ([]*models.Workflow, error) {
	rows, err := r.conn.db.QueryContext(ctx, r.conn.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}

	defer r.conn.closeRows(ctx, rows)

	workflows := make([]*models.Workflow, 0)

	for rows.Next() {
		workflow, err := r.scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		workflows = append(workflows, workflow)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	return workflows, nil
}

func (r *WorkflowRepository) loadSteps(ctx context.Context, workflowID string) ([]*models.Step, error) {
	rows, err := r.conn.db.QueryContext(ctx, r.conn.rebind(`
		SELECT id, step_number, step_type, config, delay_minutes, condition_rule
		FROM workflow_steps
		WHERE workflow_id = ?
		ORDER BY step_number ASC
	`), workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow steps: %w", err)
	}

	defer r.conn.closeRows(ctx, rows)

	steps := make([]*models.Step, 0)

	for rows.Next() {
		var (
			step      models.Step
			config    []byte
			condition sql.NullString
		)

		err := rows.Scan(&step.ID, &step.StepNumber, &step.Type, &config, &step.DelayMinutes, &condition)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow step: %w", err)
		}

		step.Config = map[string]any{}

		err = unmarshalJSON(config, &step.Config)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal config of step %d: %w", step.StepNumber, err)
		}

		if condition.Valid {
			step.Condition = &models.Condition{}

			err = unmarshalJSON([]byte(condition.String), step.Condition)
			if err != nil {
				return nil, fmt.Errorf("failed to unmarshal condition of step %d: %w", step.StepNumber, err)
			}
		}

		steps = append(steps, &step)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflow steps: %w", err)
	}

	return steps, nil
}

func (r *WorkflowRepository) scanWorkflow(row scanner) (*models.Workflow, error) {
	var workflow models.Workflow

	err := row.Scan(
		&workflow.ID,
		&workflow.Name,
		&workflow.Description,
		&workflow.TriggerType,
		&workflow.TriggerEvent,
		&workflow.Schedule,
		&workflow.Active,
		&workflow.CreatedAt,
		&workflow.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	workflow.CreatedAt = workflow.CreatedAt.UTC()
	workflow.UpdatedAt = workflow.UpdatedAt.UTC()

	return &workflow, nil
}
