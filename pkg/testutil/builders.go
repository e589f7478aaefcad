// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"time"

	"github.com/dukex/flowline/pkg/models"
	"github.com/google/uuid"
)

// CreateTestWorkflow creates an active manual workflow with a single log action
// step. Overrides are applied in order.
func CreateTestWorkflow(overrides ...func(*models.Workflow)) *models.Workflow {
	now := time.Now().UTC()

	workflow := &models.Workflow{
		ID:          uuid.Must(uuid.NewV7()).String(),
		Name:        "Test Workflow",
		Description: "Workflow used by tests",
		TriggerType: models.TriggerTypeManual,
		Active:      true,
		Steps: []*models.Step{
			CreateTestStep(1),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	for _, override := range overrides {
		override(workflow)
	}

	return workflow
}

// CreateTestStep creates a log action step with the given number.
func CreateTestStep(number int, overrides ...func(*models.Step)) *models.Step {
	step := &models.Step{
		StepNumber: number,
		Type:       models.StepTypeAction,
		Config:     map[string]any{"action": "log", "message": "step executed"},
	}

	for _, override := range overrides {
		override(step)
	}

	return step
}

// WithSteps replaces the workflow steps.
func WithSteps(steps ...*models.Step) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Steps = steps
	}
}

// WithName sets the workflow name.
func WithName(name string) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Name = name
	}
}

// Inactive marks the workflow as disabled.
func Inactive() func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Active = false
	}
}

// WithEventTrigger configures the workflow to start on the named event.
func WithEventTrigger(event string) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.TriggerType = models.TriggerTypeEvent
		w.TriggerEvent = event
	}
}

// WithSchedule configures the workflow to start on a cron expression.
func WithSchedule(expression string) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.TriggerType = models.TriggerTypeScheduled
		w.Schedule = expression
	}
}

// StepType sets the step type and config.
func StepType(stepType models.StepType, config map[string]any) func(*models.Step) {
	return func(s *models.Step) {
		s.Type = stepType
		s.Config = config
	}
}

// DelayMinutes sets the step-level delay.
func DelayMinutes(minutes int) func(*models.Step) {
	return func(s *models.Step) {
		s.DelayMinutes = minutes
	}
}

// When gates the step on a condition.
func When(check, operator string, value any) func(*models.Step) {
	return func(s *models.Step) {
		s.Condition = &models.Condition{Check: check, Operator: operator, Value: value}
	}
}

// CreateTestExecution creates a running execution snapshotting the workflow steps.
func CreateTestExecution(workflow *models.Workflow, triggerData map[string]any) *models.Execution {
	return &models.Execution{
		ID:          uuid.Must(uuid.NewV7()).String(),
		WorkflowID:  workflow.ID,
		TriggerData: triggerData,
		CurrentStep: 1,
		Status:      models.ExecutionStatusRunning,
		Steps:       workflow.Steps,
		StartedAt:   time.Now().UTC(),
	}
}

// CreateTestTask creates a pending task for the execution step due at scheduled.
func CreateTestTask(executionID string, step int, scheduled time.Time) *models.DeferredTask {
	now := time.Now().UTC()

	return &models.DeferredTask{
		ID:            uuid.Must(uuid.NewV7()).String(),
		ExecutionID:   executionID,
		StepNumber:    step,
		ScheduledTime: scheduled.UTC(),
		Status:        models.TaskStatusPending,
		MaxRetries:    3,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}
