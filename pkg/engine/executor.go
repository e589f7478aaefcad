package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dukex/flowline/pkg/actions/httprequest"
	"github.com/dukex/flowline/pkg/events"
	"github.com/dukex/flowline/pkg/mailer"
	"github.com/dukex/flowline/pkg/models"
	"github.com/dukex/flowline/pkg/otelhelper"
	"github.com/dukex/flowline/pkg/persistence"
	"github.com/dukex/flowline/pkg/template"
	"go.opentelemetry.io/otel/attribute"
)

type stepOutcome int

const (
	stepAdvance stepOutcome = iota
	stepParked
	// stepRescheduled means the resumed task itself was parked again.
	stepRescheduled
)

// runChain runs steps from start until the execution completes, a step is
// parked, or a step fails. When resumed is set, start is the step that task
// resumes: a failure there is returned as *ActionFailure for the scheduler to
// retry, and parking that step again reuses the task. It reports whether the
// resumed task was rescheduled in place.
func (e *Engine) runChain(ctx context.Context, execution *models.Execution, start int, resumed *models.DeferredTask) (bool, error) {
	stepNumber := start
	first := true

	for {
		step := models.FindStep(execution.Steps, stepNumber)
		if step == nil {
			return false, e.complete(ctx, execution)
		}

		resuming := resumed != nil && first
		first = false

		if !resuming {
			halted, err := e.observeStatus(ctx, execution, stepNumber)
			if err != nil || halted {
				return false, err
			}
		}

		err := e.store.Executions().SetCurrentStep(ctx, execution.ID, stepNumber)
		if err != nil {
			return false, err
		}

		execution.CurrentStep = stepNumber

		var reuse *models.DeferredTask

		delayElapsed := false

		if resuming {
			reuse = resumed
			delayElapsed = resumed.DelayElapsed
		}

		outcome, err := e.executeStep(ctx, execution, step, delayElapsed, reuse)
		if err != nil {
			var failure *ActionFailure
			if !errors.As(err, &failure) {
				return false, err
			}

			e.record(ctx, execution.ID, stepRef(stepNumber), models.LogLevelError, "Step failed: "+failure.Err.Error(), nil)

			if resuming {
				return false, failure
			}

			return false, e.fail(ctx, execution, stepNumber, failure.Err.Error())
		}

		switch outcome {
		case stepParked:
			return false, nil
		case stepRescheduled:
			return true, nil
		case stepAdvance:
		}

		stepNumber = step.StepNumber + 1
	}
}

// observeStatus re-reads the execution before an inline step. A paused
// execution parks the step for the poller to pick up after resume.
func (e *Engine) observeStatus(ctx context.Context, execution *models.Execution, stepNumber int) (bool, error) {
	current, err := e.store.Executions().GetByID(ctx, execution.ID)
	if err != nil {
		return true, err
	}

	execution.Status = current.Status

	switch {
	case current.Status == models.ExecutionStatusPaused:
		_, err = e.park(ctx, execution, stepNumber, e.clock(), false, nil)
		if err != nil {
			return true, err
		}

		e.record(ctx, execution.ID, stepRef(stepNumber), models.LogLevelInfo, "Execution paused, step parked until resumed", nil)

		return true, nil
	case current.Status.Terminal():
		e.logger.InfoContext(ctx, "Execution already finished, stopping", "execution_id", execution.ID, "status", current.Status)

		return true, nil
	}

	return false, nil
}

func (e *Engine) executeStep(ctx context.Context, execution *models.Execution, step *models.Step, delayElapsed bool, reuse *models.DeferredTask) (stepOutcome, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.step",
		attribute.String(otelhelper.ExecutionIDKey, execution.ID),
		attribute.Int(otelhelper.StepNumberKey, step.StepNumber),
		attribute.String(otelhelper.StepTypeKey, string(step.Type)),
	)
	defer span.End()

	n := step.StepNumber
	data := execution.TriggerData

	if step.DelayMinutes > 0 && !delayElapsed {
		at := e.clock().Add(time.Duration(step.DelayMinutes) * time.Minute)

		outcome, err := e.park(ctx, execution, n, at, true, reuse)
		if err != nil {
			return 0, err
		}

		e.record(ctx, execution.ID, stepRef(n), models.LogLevelInfo, fmt.Sprintf("Step delayed by %d minutes", step.DelayMinutes), nil)

		return outcome, nil
	}

	if step.Condition != nil && !models.EvaluateCondition(step.Condition, data) {
		e.record(ctx, execution.ID, stepRef(n), models.LogLevelInfo, "Condition not met, skipping step", map[string]any{
			"check":    step.Condition.Check,
			"operator": step.Condition.Operator,
			"value":    step.Condition.Value,
		})
		e.publishStep(ctx, execution, step, true)

		return stepAdvance, nil
	}

	var (
		message string
		err     error
	)

	switch step.Type {
	case models.StepTypeEmail:
		err = e.sendEmail(ctx, step, data)
		message = "Email sent"
	case models.StepTypeAction:
		var name string

		name, err = e.runAction(ctx, step, data)
		message = "Action executed: " + name
	case models.StepTypeDelay:
		minutes := max(step.IntConfig("duration_minutes", defaultDelayMinutes), 0)
		at := e.clock().Add(time.Duration(minutes) * time.Minute)

		_, err = e.park(ctx, execution, n+1, at, false, nil)
		if err != nil {
			return 0, err
		}

		e.record(ctx, execution.ID, stepRef(n), models.LogLevelInfo, fmt.Sprintf("Delayed by %d minutes", minutes), nil)

		return stepParked, nil
	case models.StepTypeCondition:
		message = "Condition evaluated"
	case models.StepTypeAPICall:
		err = e.callAPI(ctx, step, data)
		message = "API called"
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownStepType, step.Type)
	}

	if err != nil {
		otelhelper.SetError(span, err)

		return 0, &ActionFailure{StepNumber: n, StepType: step.Type, Err: err}
	}

	e.record(ctx, execution.ID, stepRef(n), models.LogLevelSuccess, message, nil)
	e.publishStep(ctx, execution, step, false)

	return stepAdvance, nil
}

// park creates a deferred task for stepNumber at at. When reuse already
// targets stepNumber it is rescheduled instead, since only one active task
// may exist per step.
func (e *Engine) park(ctx context.Context, execution *models.Execution, stepNumber int, at time.Time, delayElapsed bool, reuse *models.DeferredTask) (stepOutcome, error) {
	now := e.clock()

	if reuse != nil && reuse.StepNumber == stepNumber {
		err := e.store.Tasks().Reschedule(ctx, reuse.ID, at, delayElapsed, now)
		if err != nil {
			return 0, err
		}

		e.publishDeferred(ctx, execution, reuse.ID, stepNumber, at)

		return stepRescheduled, nil
	}

	task := &models.DeferredTask{
		ID:            newID(),
		ExecutionID:   execution.ID,
		StepNumber:    stepNumber,
		ScheduledTime: at,
		Status:        models.TaskStatusPending,
		MaxRetries:    e.maxRetries,
		DelayElapsed:  delayElapsed,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err := e.store.Tasks().Create(ctx, task)
	if err != nil {
		if persistence.IsActiveTaskExists(err) {
			e.logger.WarnContext(ctx, "Step already has an active task", "execution_id", execution.ID, "step", stepNumber)

			return stepParked, nil
		}

		return 0, err
	}

	e.publishDeferred(ctx, execution, task.ID, stepNumber, at)

	return stepParked, nil
}

func (e *Engine) complete(ctx context.Context, execution *models.Execution) error {
	now := e.clock()

	err := e.store.Executions().Finish(ctx, execution.ID, models.ExecutionStatusCompleted, "", now)
	if err != nil {
		return err
	}

	execution.Status = models.ExecutionStatusCompleted
	execution.CompletedAt = &now

	e.record(ctx, execution.ID, nil, models.LogLevelSuccess, "Workflow completed", nil)
	e.publish(ctx, execution.ID, events.ExecutionCompleted{
		BaseEvent: e.baseEvent(events.ExecutionCompletedEvent, execution),
		Duration:  now.Sub(execution.StartedAt),
	})

	return nil
}

func (e *Engine) fail(ctx context.Context, execution *models.Execution, stepNumber int, message string) error {
	now := e.clock()

	err := e.store.Executions().Finish(ctx, execution.ID, models.ExecutionStatusFailed, message, now)
	if err != nil {
		return err
	}

	execution.Status = models.ExecutionStatusFailed
	execution.CompletedAt = &now
	execution.ErrorMessage = message

	e.publish(ctx, execution.ID, events.ExecutionFailed{
		BaseEvent:  e.baseEvent(events.ExecutionFailedEvent, execution),
		StepNumber: stepNumber,
		Error:      message,
	})

	return nil
}

func (e *Engine) sendEmail(ctx context.Context, step *models.Step, data map[string]any) error {
	body := step.StringConfig("body", "")
	if body == "" {
		body = fmt.Sprintf("This is an automated message.\n\nTemplate: %s\n", step.StringConfig("template", "default"))
	}

	return e.mailer.Send(ctx, mailer.Message{
		To:      template.Substitute(step.StringConfig("to", ""), data),
		Subject: template.Substitute(step.StringConfig("subject", ""), data),
		Body:    template.Substitute(body, data),
	})
}

func (e *Engine) runAction(ctx context.Context, step *models.Step, data map[string]any) (string, error) {
	name := step.StringConfig("action", "")
	if name == "" {
		return "", ErrActionRequired
	}

	action, err := e.registry.Get(name)
	if err != nil {
		return name, err
	}

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.action",
		attribute.String(otelhelper.ActionNameKey, name))
	defer span.End()

	err = action.Execute(ctx, template.SubstituteMap(step.Config, data), data)
	if err != nil {
		otelhelper.SetError(span, err)

		return name, err
	}

	return name, nil
}

func (e *Engine) callAPI(ctx context.Context, step *models.Step, data map[string]any) error {
	req := httprequest.RequestFromConfig(step.Config)
	req.URL = template.Substitute(req.URL, data)

	for key, value := range req.Headers {
		req.Headers[key] = template.Substitute(value, data)
	}

	if req.Payload == nil {
		req.Payload = map[string]any{}
	} else {
		req.Payload = template.SubstituteAll(req.Payload, data)
	}

	_, err := e.http.Do(ctx, req)

	return err
}

func (e *Engine) publishStep(ctx context.Context, execution *models.Execution, step *models.Step, skipped bool) {
	e.publish(ctx, execution.ID, events.ExecutionStepCompleted{
		BaseEvent:  e.baseEvent(events.ExecutionStepEvent, execution),
		StepNumber: step.StepNumber,
		StepType:   string(step.Type),
		Skipped:    skipped,
	})
}

func (e *Engine) publishDeferred(ctx context.Context, execution *models.Execution, taskID string, stepNumber int, at time.Time) {
	e.publish(ctx, execution.ID, events.ExecutionDeferred{
		BaseEvent:     e.baseEvent(events.ExecutionDeferredEvent, execution),
		TaskID:        taskID,
		StepNumber:    stepNumber,
		ScheduledTime: at,
	})
}
