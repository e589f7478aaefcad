package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/flowline/pkg/eventbus"
	"github.com/dukex/flowline/pkg/events"
	"github.com/dukex/flowline/pkg/models"
	"github.com/dukex/flowline/pkg/persistence"
	"github.com/google/uuid"
)

const (
	defaultExecutionLimit = 50
	maxExecutionLimit     = 500
)

type Execution struct {
	persistence persistence.Persistence
	publisher   eventbus.EventPublisher
	logger      *slog.Logger
}

// NewExecution creates a new execution service. A nil publisher drops events.
func NewExecution(persistence persistence.Persistence, publisher eventbus.EventPublisher, logger *slog.Logger) *Execution {
	if publisher == nil {
		publisher = eventbus.NopPublisher{}
	}

	return &Execution{
		persistence: persistence,
		publisher:   publisher,
		logger:      logger.With("module", "execution_service"),
	}
}

// Get returns the execution together with its log, oldest entry first.
func (s *Execution) Get(ctx context.Context, id string) (*models.Execution, error) {
	execution, err := s.persistence.Executions().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	logs, err := s.persistence.Logs().ListByExecution(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load execution logs: %w", err)
	}

	execution.Logs = logs

	return execution, nil
}

// List returns executions, newest first.
func (s *Execution) List(ctx context.Context, filter models.ExecutionFilter) ([]*models.Execution, error) {
	switch filter.Status {
	case "", models.ExecutionStatusRunning, models.ExecutionStatusPaused,
		models.ExecutionStatusCompleted, models.ExecutionStatusFailed:
	default:
		return nil, NewValidationError("ListExecutions", "INVALID_STATUS",
			fmt.Sprintf("invalid status '%s'", filter.Status), ErrInvalidStatus)
	}

	if filter.Limit <= 0 {
		filter.Limit = defaultExecutionLimit
	}

	if filter.Limit > maxExecutionLimit {
		filter.Limit = maxExecutionLimit
	}

	executions, err := s.persistence.Executions().List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}

	return executions, nil
}

// Pause stops a running execution before its next step.
func (s *Execution) Pause(ctx context.Context, id string) (*models.Execution, error) {
	return s.transition(ctx, "PauseExecution", id, models.ExecutionStatusRunning, models.ExecutionStatusPaused)
}

// Resume lets a paused execution continue; its deferred tasks become eligible again.
func (s *Execution) Resume(ctx context.Context, id string) (*models.Execution, error) {
	return s.transition(ctx, "ResumeExecution", id, models.ExecutionStatusPaused, models.ExecutionStatusRunning)
}

func (s *Execution) transition(ctx context.Context, op, id string, from, to models.ExecutionStatus) (*models.Execution, error) {
	ok, err := s.persistence.Executions().TransitionStatus(ctx, id, from, to)
	if err != nil {
		return nil, err
	}

	execution, err := s.persistence.Executions().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !ok {
		return nil, &ServiceError{
			Op:      op,
			Code:    "INVALID_TRANSITION",
			Message: fmt.Sprintf("execution %s is %s, expected %s", id, execution.Status, from),
			Err:     ErrInvalidTransition,
		}
	}

	message := "Execution paused"

	var event eventbus.Event

	base := events.NewBase(uuid.Must(uuid.NewV7()).String(), "", execution.WorkflowID, execution.ID)

	if to == models.ExecutionStatusPaused {
		base.Type = events.ExecutionPausedEvent
		event = events.ExecutionPaused{BaseEvent: base}
	} else {
		message = "Execution resumed"
		base.Type = events.ExecutionResumedEvent
		event = events.ExecutionResumed{BaseEvent: base}
	}

	err = s.persistence.Logs().Append(ctx, &models.LogEntry{
		ID:          uuid.Must(uuid.NewV7()).String(),
		ExecutionID: execution.ID,
		Level:       models.LogLevelInfo,
		Message:     message,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to append execution log", "execution_id", id, "error", err)
	}

	err = s.publisher.Publish(ctx, execution.ID, event)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to publish event", "execution_id", id, "event_type", event.GetType(), "error", err)
	}

	s.logger.InfoContext(ctx, message, "execution_id", id)

	return execution, nil
}

// Stats summarizes engine state; "today" starts at UTC midnight.
func (s *Execution) Stats(ctx context.Context) (*models.Stats, error) {
	dayStart := time.Now().UTC().Truncate(24 * time.Hour)

	stats, err := s.persistence.Stats(ctx, dayStart)
	if err != nil {
		return nil, fmt.Errorf("failed to compute stats: %w", err)
	}

	return stats, nil
}
