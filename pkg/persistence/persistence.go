// Package persistence defines the durable state store for workflows,
// executions, deferred tasks and execution logs.
package persistence

import (
	"context"
	"time"

	"github.com/dukex/flowline/pkg/models"
)

type Persistence interface {
	Workflows() WorkflowRepository
	Executions() ExecutionRepository
	Tasks() TaskRepository
	Logs() LogRepository

	// Stats counts executions started at or after dayStart as "today".
	Stats(ctx context.Context, dayStart time.Time) (*models.Stats, error)

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// WorkflowRepository stores definitions together with their ordered steps.
// Create and Update write the definition and every step in one transaction.
type WorkflowRepository interface {
	Create(ctx context.Context, workflow *models.Workflow) error
	Update(ctx context.Context, workflow *models.Workflow) error
	GetByID(ctx context.Context, id string) (*models.Workflow, error)
	List(ctx context.Context, activeOnly bool) ([]*models.Workflow, error)
	ListActiveByTrigger(ctx context.Context, triggerType models.TriggerType) ([]*models.Workflow, error)
	SetActive(ctx context.Context, id string, active bool) error
	Delete(ctx context.Context, id string) error
}

type ExecutionRepository interface {
	Create(ctx context.Context, execution *models.Execution) error
	GetByID(ctx context.Context, id string) (*models.Execution, error)
	List(ctx context.Context, filter models.ExecutionFilter) ([]*models.Execution, error)
	SetCurrentStep(ctx context.Context, id string, step int) error
	// Finish moves a non-terminal execution to a terminal status.
	Finish(ctx context.Context, id string, status models.ExecutionStatus, errorMessage string, at time.Time) error
	// TransitionStatus changes status only when the current status is from.
	// It reports false when the row was not in the expected status.
	TransitionStatus(ctx context.Context, id string, from, to models.ExecutionStatus) (bool, error)
}

type TaskRepository interface {
	// Create fails with ErrActiveTaskExists when the execution already has a
	// pending or processing task for the same step.
	Create(ctx context.Context, task *models.DeferredTask) error
	GetByID(ctx context.Context, id string) (*models.DeferredTask, error)
	ListByExecution(ctx context.Context, executionID string) ([]*models.DeferredTask, error)
	// ListDue returns pending tasks scheduled at or before now, oldest first,
	// skipping tasks whose execution is paused.
	ListDue(ctx context.Context, now time.Time, limit int) ([]*models.DeferredTask, error)
	// Claim moves a task from pending to processing. It reports false when
	// another poller already claimed it.
	Claim(ctx context.Context, id string, now time.Time) (bool, error)
	Release(ctx context.Context, id string, now time.Time) error
	Complete(ctx context.Context, id string, now time.Time) error
	Retry(ctx context.Context, id string, retryCount int, next time.Time, lastError string, now time.Time) error
	Fail(ctx context.Context, id string, retryCount int, lastError string, now time.Time) error
	// Reschedule parks a processing task again as pending at next.
	Reschedule(ctx context.Context, id string, next time.Time, delayElapsed bool, now time.Time) error
}

type LogRepository interface {
	Append(ctx context.Context, entry *models.LogEntry) error
	ListByExecution(ctx context.Context, executionID string) ([]*models.LogEntry, error)
}
