package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dukex/flowline/pkg/models"
	"github.com/dukex/flowline/pkg/persistence"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

var (
	// ErrWorkflowNotFound is returned when a workflow is not found.
	ErrWorkflowNotFound = persistence.ErrWorkflowNotFound
)

type Workflow struct {
	persistence persistence.Persistence
	validate    *validator.Validate
}

// NewWorkflow creates a new workflow service.
func NewWorkflow(persistence persistence.Persistence) *Workflow {
	return &Workflow{
		persistence: persistence,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

// HealthCheck checks the health of the persistence layer.
func (w *Workflow) HealthCheck(ctx context.Context) (string, bool) {
	if w.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := w.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// Get retrieves a workflow with its steps.
func (w *Workflow) Get(ctx context.Context, id string) (*models.Workflow, error) {
	return w.persistence.Workflows().GetByID(ctx, id)
}

// List returns workflows, only active ones when activeOnly is set.
func (w *Workflow) List(ctx context.Context, activeOnly bool) ([]*models.Workflow, error) {
	workflows, err := w.persistence.Workflows().List(ctx, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	return workflows, nil
}

// Create validates and stores a new workflow definition with its steps.
func (w *Workflow) Create(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	err := w.prepare("CreateWorkflow", workflow)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	workflow.ID = uuid.Must(uuid.NewV7()).String()
	workflow.CreatedAt = now
	workflow.UpdatedAt = now

	err = w.persistence.Workflows().Create(ctx, workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to create workflow: %w", err)
	}

	return workflow, nil
}

// Update replaces the definition and every step of an existing workflow.
// Running executions keep the steps they started with.
func (w *Workflow) Update(ctx context.Context, workflowID string, workflow *models.Workflow) (*models.Workflow, error) {
	existing, err := w.persistence.Workflows().GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	err = w.prepare("UpdateWorkflow", workflow)
	if err != nil {
		return nil, err
	}

	workflow.ID = workflowID
	workflow.CreatedAt = existing.CreatedAt
	workflow.UpdatedAt = time.Now().UTC()

	err = w.persistence.Workflows().Update(ctx, workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to update workflow: %w", err)
	}

	return workflow, nil
}

// SetActive enables or disables a workflow.
func (w *Workflow) SetActive(ctx context.Context, workflowID string, active bool) (*models.Workflow, error) {
	err := w.persistence.Workflows().SetActive(ctx, workflowID, active)
	if err != nil {
		return nil, err
	}

	return w.persistence.Workflows().GetByID(ctx, workflowID)
}

// Delete removes a workflow by its ID. Executions, tasks and logs are kept.
func (w *Workflow) Delete(ctx context.Context, workflowID string) error {
	_, err := w.persistence.Workflows().GetByID(ctx, workflowID)
	if err != nil {
		return err
	}

	err = w.persistence.Workflows().Delete(ctx, workflowID)
	if err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}

	return nil
}

// prepare normalizes a definition in place and validates it.
func (w *Workflow) prepare(op string, workflow *models.Workflow) error {
	if workflow == nil {
		return NewValidationError(op, "INVALID_REQUEST", "workflow is required", ErrInvalidRequest)
	}

	workflow.Name = strings.TrimSpace(workflow.Name)
	workflow.TriggerEvent = strings.TrimSpace(workflow.TriggerEvent)
	workflow.Schedule = strings.TrimSpace(workflow.Schedule)

	if workflow.TriggerType == "" {
		workflow.TriggerType = models.TriggerTypeManual
	}

	numberSteps(workflow.Steps)

	err := w.validate.Struct(workflow)
	if err != nil {
		return validationFailure(op, err)
	}

	err = validateStepOrder(op, workflow.Steps)
	if err != nil {
		return err
	}

	for _, step := range workflow.Steps {
		step.ID = ""

		if step.Config == nil {
			step.Config = map[string]any{}
		}

		if step.Condition != nil && !slices.Contains(models.Operators, step.Condition.Operator) && step.Condition.Operator != "" {
			return NewValidationError(op, "INVALID_STEP",
				fmt.Sprintf("step %d: unknown condition operator %q", step.StepNumber, step.Condition.Operator), ErrInvalidStep)
		}

		err = validateStepConfig(step.Type, step.Config)
		if err != nil {
			return NewValidationError(op, "INVALID_STEP_CONFIG",
				fmt.Sprintf("step %d (%s) config: %v", step.StepNumber, step.Type, err), ErrInvalidStep)
		}
	}

	switch workflow.TriggerType {
	case models.TriggerTypeEvent:
		if workflow.TriggerEvent == "" {
			return NewValidationError(op, "TRIGGER_EVENT_REQUIRED", ErrTriggerEventRequired.Error(), ErrTriggerEventRequired)
		}
	case models.TriggerTypeScheduled:
		_, err = cron.ParseStandard(workflow.Schedule)
		if err != nil {
			return NewValidationError(op, "INVALID_SCHEDULE",
				fmt.Sprintf("invalid schedule %q: %v", workflow.Schedule, err), ErrInvalidSchedule)
		}
	case models.TriggerTypeManual:
	}

	return nil
}

// numberSteps assigns positions to steps submitted without step numbers.
func numberSteps(steps []*models.Step) {
	for _, step := range steps {
		if step != nil && step.StepNumber != 0 {
			return
		}
	}

	for i, step := range steps {
		if step != nil {
			step.StepNumber = i + 1
		}
	}
}

// validateStepOrder sorts steps and requires numbers 1..n without gaps.
func validateStepOrder(op string, steps []*models.Step) error {
	slices.SortStableFunc(steps, func(a, b *models.Step) int {
		return a.StepNumber - b.StepNumber
	})

	for i, step := range steps {
		if step.StepNumber != i+1 {
			return NewValidationError(op, "INVALID_STEP_NUMBER",
				fmt.Sprintf("step numbers must be contiguous from 1, found %d at position %d", step.StepNumber, i+1), ErrInvalidStep)
		}
	}

	return nil
}

// validationFailure maps validator errors to the service error taxonomy.
func validationFailure(op string, err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) || len(validationErrors) == 0 {
		return NewValidationError(op, "INVALID_REQUEST", err.Error(), ErrInvalidRequest)
	}

	first := validationErrors[0]
	namespace := first.Namespace()

	switch {
	case strings.Contains(namespace, "Steps["):
		return NewValidationError(op, "INVALID_STEP",
			fmt.Sprintf("%s failed on %s", strings.TrimPrefix(namespace, "Workflow."), first.Tag()), ErrInvalidStep)
	case first.Field() == "Name":
		return NewValidationError(op, "NAME_REQUIRED", ErrWorkflowNameRequired.Error(), ErrWorkflowNameRequired)
	case first.Field() == "Steps":
		return NewValidationError(op, "STEPS_REQUIRED", ErrStepsRequired.Error(), ErrStepsRequired)
	case first.Field() == "TriggerType":
		return NewValidationError(op, "INVALID_TRIGGER_TYPE",
			fmt.Sprintf("invalid trigger type %q", first.Value()), ErrInvalidTriggerType)
	default:
		return NewValidationError(op, "INVALID_REQUEST", first.Error(), ErrInvalidRequest)
	}
}
