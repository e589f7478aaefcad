package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/flowline/pkg/models"
	"github.com/dukex/flowline/pkg/otelhelper"
	"github.com/dukex/flowline/pkg/persistence"
	"go.opentelemetry.io/otel/attribute"
)

// RunScheduler resumes up to one batch of due deferred tasks and reports how
// many it processed. Tasks lost to another poller or held back by a paused
// execution are not counted.
func (e *Engine) RunScheduler(ctx context.Context) (int, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.run_scheduler")
	defer span.End()

	tasks, err := e.store.Tasks().ListDue(ctx, e.clock(), e.batchSize)
	if err != nil {
		otelhelper.SetError(span, err)

		return 0, fmt.Errorf("failed to list due tasks: %w", err)
	}

	processed := 0

	var errs []error

	for _, task := range tasks {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())

			break
		}

		handled, err := e.processTask(ctx, task)
		if err != nil {
			e.logger.ErrorContext(ctx, "failed to process deferred task", "task_id", task.ID, "execution_id", task.ExecutionID, "error", err)
			errs = append(errs, err)

			continue
		}

		if handled {
			processed++
		}
	}

	span.SetAttributes(attribute.Int("flowline.scheduler.processed", processed))

	if len(tasks) > 0 {
		e.logger.InfoContext(ctx, "Scheduler run finished", "due", len(tasks), "processed", processed)
	}

	err = errors.Join(errs...)
	if err != nil {
		otelhelper.SetError(span, err)
	}

	return processed, err
}

func (e *Engine) processTask(ctx context.Context, task *models.DeferredTask) (bool, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.resume_task",
		attribute.String(otelhelper.TaskIDKey, task.ID),
		attribute.String(otelhelper.ExecutionIDKey, task.ExecutionID),
		attribute.Int(otelhelper.StepNumberKey, task.StepNumber),
	)
	defer span.End()

	claimed, err := e.store.Tasks().Claim(ctx, task.ID, e.clock())
	if err != nil {
		return false, err
	}

	if !claimed {
		e.logger.DebugContext(ctx, "Task already claimed", "task_id", task.ID)

		return false, nil
	}

	task.Status = models.TaskStatusProcessing

	execution, err := e.store.Executions().GetByID(ctx, task.ExecutionID)
	if err != nil {
		if !persistence.IsExecutionNotFound(err) {
			return false, errors.Join(err, e.store.Tasks().Release(ctx, task.ID, e.clock()))
		}

		return true, e.abandon(ctx, task, "execution not found")
	}

	switch {
	case execution.Status == models.ExecutionStatusPaused:
		return false, e.store.Tasks().Release(ctx, task.ID, e.clock())
	case execution.Status.Terminal():
		return true, e.abandon(ctx, task, fmt.Sprintf("execution already %s", execution.Status))
	}

	rescheduled, err := e.runChain(ctx, execution, task.StepNumber, task)
	if err != nil {
		var failure *ActionFailure
		if !errors.As(err, &failure) {
			otelhelper.SetError(span, err)

			return false, errors.Join(err, e.store.Tasks().Release(ctx, task.ID, e.clock()))
		}

		otelhelper.SetError(span, failure)

		return true, e.retry(ctx, execution, task, failure)
	}

	if rescheduled {
		return true, nil
	}

	return true, e.store.Tasks().Complete(ctx, task.ID, e.clock())
}

// retry counts a failed attempt of the resumed step. The attempt that reaches
// max_retries fails both the task and the execution.
func (e *Engine) retry(ctx context.Context, execution *models.Execution, task *models.DeferredTask, failure *ActionFailure) error {
	now := e.clock()
	retryCount := task.RetryCount + 1

	maxRetries := task.MaxRetries
	if maxRetries <= 0 {
		maxRetries = e.maxRetries
	}

	message := failure.Err.Error()

	if retryCount >= maxRetries {
		err := e.store.Tasks().Fail(ctx, task.ID, retryCount, message, now)
		if err != nil {
			return err
		}

		e.record(ctx, execution.ID, stepRef(task.StepNumber), models.LogLevelError, "Task failed after max retries", map[string]any{
			"task_id":     task.ID,
			"retry_count": retryCount,
			"max_retries": maxRetries,
			"error":       message,
		})

		return e.fail(ctx, execution, task.StepNumber, fmt.Errorf("%w: %s", ErrMaxRetriesExceeded, message).Error())
	}

	next := now.Add(e.retryBackoff)

	err := e.store.Tasks().Retry(ctx, task.ID, retryCount, next, message, now)
	if err != nil {
		return err
	}

	e.record(ctx, execution.ID, stepRef(task.StepNumber), models.LogLevelWarning, fmt.Sprintf("Retry %d of %d scheduled", retryCount, maxRetries-1), map[string]any{
		"task_id":        task.ID,
		"scheduled_time": next,
	})

	return nil
}

// abandon fails a task whose execution can no longer run.
func (e *Engine) abandon(ctx context.Context, task *models.DeferredTask, reason string) error {
	err := e.store.Tasks().Fail(ctx, task.ID, task.RetryCount, reason, e.clock())
	if err != nil {
		return err
	}

	e.record(ctx, task.ExecutionID, stepRef(task.StepNumber), models.LogLevelWarning, "Deferred task dropped: "+reason, map[string]any{
		"task_id": task.ID,
	})

	return nil
}
