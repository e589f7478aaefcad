package engine

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/dukex/flowline/pkg/events"
	"github.com/dukex/flowline/pkg/models"
	"github.com/dukex/flowline/pkg/otelhelper"
	"github.com/dukex/flowline/pkg/persistence"
	"go.opentelemetry.io/otel/attribute"
)

// Trigger starts a new execution of an active workflow and runs its steps
// inline until they finish or a step is deferred. Step failures end the
// execution as failed; only storage errors are returned.
func (e *Engine) Trigger(ctx context.Context, workflowID string, triggerData map[string]any) (string, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.trigger",
		attribute.String(otelhelper.WorkflowIDKey, workflowID))
	defer span.End()

	workflow, err := e.store.Workflows().GetByID(ctx, workflowID)
	if err != nil {
		otelhelper.SetError(span, err)

		return "", err
	}

	if !workflow.Active {
		err = persistence.NewWorkflowError("Trigger", workflowID, ErrWorkflowInactive)
		otelhelper.SetError(span, err)

		return "", err
	}

	data := maps.Clone(triggerData)
	if data == nil {
		data = map[string]any{}
	}

	execution := &models.Execution{
		ID:          newID(),
		WorkflowID:  workflow.ID,
		TriggerData: data,
		CurrentStep: 1,
		Status:      models.ExecutionStatusRunning,
		Steps:       workflow.Steps,
		StartedAt:   e.clock(),
	}

	span.SetAttributes(
		attribute.String(otelhelper.ExecutionIDKey, execution.ID),
		attribute.String(otelhelper.WorkflowNameKey, workflow.Name),
		attribute.String(otelhelper.TriggerTypeKey, string(workflow.TriggerType)),
	)

	err = e.store.Executions().Create(ctx, execution)
	if err != nil {
		otelhelper.SetError(span, err)

		return "", fmt.Errorf("failed to create execution: %w", err)
	}

	e.record(ctx, execution.ID, nil, models.LogLevelInfo, "Workflow started", data)
	e.publish(ctx, execution.ID, events.ExecutionStarted{
		BaseEvent:   e.baseEvent(events.ExecutionStartedEvent, execution),
		TriggerData: data,
	})

	_, err = e.runChain(ctx, execution, 1, nil)
	if err != nil {
		otelhelper.SetError(span, err)

		return execution.ID, err
	}

	return execution.ID, nil
}

// DispatchEvent triggers every active event workflow listening for event.
// Workflows that fail to start do not stop the others.
func (e *Engine) DispatchEvent(ctx context.Context, event string, data map[string]any) ([]string, error) {
	if event == "" {
		return nil, ErrEventRequired
	}

	workflows, err := e.store.Workflows().ListActiveByTrigger(ctx, models.TriggerTypeEvent)
	if err != nil {
		return nil, err
	}

	executionIDs := []string{}

	var errs []error

	for _, workflow := range workflows {
		if workflow.TriggerEvent != event {
			continue
		}

		executionID, err := e.Trigger(ctx, workflow.ID, data)
		if err != nil {
			e.logger.ErrorContext(ctx, "failed to trigger workflow for event", "event", event, "workflow_id", workflow.ID, "error", err)
			errs = append(errs, err)

			continue
		}

		executionIDs = append(executionIDs, executionID)
	}

	e.logger.InfoContext(ctx, "Event dispatched", "event", event, "executions", len(executionIDs))

	return executionIDs, errors.Join(errs...)
}
