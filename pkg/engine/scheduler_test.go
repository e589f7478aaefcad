package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/dukex/flowline/pkg/mailer"
	"github.com/dukex/flowline/pkg/mocks"
	"github.com/dukex/flowline/pkg/models"
	"github.com/dukex/flowline/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// action -> delay 10 minutes -> email
func TestScheduler_ActionDelayEmailScenario(t *testing.T) {
	h := newHarness(t)

	h.mailer.On("Send", mock.Anything, mailer.Message{
		To:      "ann@example.com",
		Subject: "Welcome Ann",
		Body:    "Hello Ann",
	}).Return(nil).Once()

	workflow := h.createWorkflow(testutil.WithSteps(
		actionStep(1, "log"),
		delayStep(2, 10),
		testutil.CreateTestStep(3, testutil.StepType(models.StepTypeEmail, map[string]any{
			"to":      "{{email}}",
			"subject": "Welcome {{name}}",
			"body":    "Hello {{name}}",
		})),
	))

	execution := h.trigger(workflow.ID, map[string]any{"email": "ann@example.com", "name": "Ann"})

	assert.Equal(t, models.ExecutionStatusRunning, execution.Status)
	assert.Equal(t, 2, execution.CurrentStep)

	tasks := h.tasks(execution.ID)
	require.Len(t, tasks, 1)
	assert.Equal(t, 3, tasks[0].StepNumber)
	assert.Equal(t, models.TaskStatusPending, tasks[0].Status)
	assert.True(t, baseTime.Add(10*time.Minute).Equal(tasks[0].ScheduledTime))
	assert.False(t, tasks[0].DelayElapsed)

	assert.Equal(t, 0, h.runScheduler(), "task is not due yet")
	h.mailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)

	h.clock.Advance(10 * time.Minute)
	assert.Equal(t, 1, h.runScheduler())

	execution = h.execution(execution.ID)
	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
	assert.Equal(t, 3, execution.CurrentStep)

	tasks = h.tasks(execution.ID)
	require.Len(t, tasks, 1)
	assert.Equal(t, models.TaskStatusCompleted, tasks[0].Status)

	assert.Equal(t, []string{
		"Workflow started",
		"Action executed: log",
		"Delayed by 10 minutes",
		"Email sent",
		"Workflow completed",
	}, h.messages(execution.ID))

	assert.Equal(t, 0, h.runScheduler())
	h.mailer.AssertExpectations(t)
}

func TestScheduler_StepDelayMinutesRunsBodyOnResume(t *testing.T) {
	h := newHarness(t)

	action := mocks.NewMockAction("charge")
	action.On("Execute", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()
	h.registry.Register(action)

	workflow := h.createWorkflow(testutil.WithSteps(
		actionStep(1, "charge", testutil.DelayMinutes(5)),
	))

	execution := h.trigger(workflow.ID, nil)
	assert.Equal(t, models.ExecutionStatusRunning, execution.Status)
	assert.Equal(t, []string{"Workflow started", "Step delayed by 5 minutes"}, h.messages(execution.ID))

	tasks := h.tasks(execution.ID)
	require.Len(t, tasks, 1)
	assert.Equal(t, 1, tasks[0].StepNumber)
	assert.True(t, tasks[0].DelayElapsed)

	h.clock.Advance(5 * time.Minute)
	assert.Equal(t, 1, h.runScheduler())

	execution = h.execution(execution.ID)
	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
	assert.Contains(t, h.messages(execution.ID), "Action executed: charge")
	action.AssertExpectations(t)
}

func TestScheduler_ResumedStepWithOwnDelayReusesTask(t *testing.T) {
	h := newHarness(t)

	workflow := h.createWorkflow(testutil.WithSteps(
		delayStep(1, 1),
		actionStep(2, "log", testutil.DelayMinutes(5)),
	))

	execution := h.trigger(workflow.ID, nil)

	tasks := h.tasks(execution.ID)
	require.Len(t, tasks, 1)
	taskID := tasks[0].ID

	h.clock.Advance(time.Minute)
	assert.Equal(t, 1, h.runScheduler())

	tasks = h.tasks(execution.ID)
	require.Len(t, tasks, 1, "the step keeps a single task")
	assert.Equal(t, taskID, tasks[0].ID)
	assert.Equal(t, models.TaskStatusPending, tasks[0].Status)
	assert.True(t, tasks[0].DelayElapsed)
	assert.True(t, baseTime.Add(6*time.Minute).Equal(tasks[0].ScheduledTime))

	h.clock.Advance(5 * time.Minute)
	assert.Equal(t, 1, h.runScheduler())

	execution = h.execution(execution.ID)
	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
	assert.Equal(t, models.TaskStatusCompleted, h.tasks(execution.ID)[0].Status)
}

func TestScheduler_RetriesUntilMaxRetries(t *testing.T) {
	h := newHarness(t)

	flaky := mocks.NewMockAction("flaky")
	flaky.On("Execute", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("boom"))
	h.registry.Register(flaky)

	workflow := h.createWorkflow(testutil.WithSteps(
		delayStep(1, 1),
		actionStep(2, "flaky"),
	))

	execution := h.trigger(workflow.ID, nil)
	h.clock.Advance(time.Minute)

	for attempt := 1; attempt < DefaultMaxRetries; attempt++ {
		assert.Equal(t, 1, h.runScheduler())

		tasks := h.tasks(execution.ID)
		require.Len(t, tasks, 1)
		assert.Equal(t, models.TaskStatusPending, tasks[0].Status)
		assert.Equal(t, attempt, tasks[0].RetryCount)
		assert.Equal(t, "boom", tasks[0].LastError)
		assert.True(t, h.clock.Now().Add(DefaultRetryBackoff).Equal(tasks[0].ScheduledTime))
		assert.Equal(t, models.ExecutionStatusRunning, h.execution(execution.ID).Status)

		assert.Equal(t, 0, h.runScheduler(), "retry waits for the backoff")
		h.clock.Advance(DefaultRetryBackoff)
	}

	assert.Equal(t, 1, h.runScheduler())

	tasks := h.tasks(execution.ID)
	require.Len(t, tasks, 1)
	assert.Equal(t, models.TaskStatusFailed, tasks[0].Status)
	assert.Equal(t, DefaultMaxRetries, tasks[0].RetryCount)

	execution = h.execution(execution.ID)
	assert.Equal(t, models.ExecutionStatusFailed, execution.Status)
	assert.Contains(t, execution.ErrorMessage, "boom")
	require.NotNil(t, execution.CompletedAt)

	entries := h.logs(execution.ID)
	last := entries[len(entries)-1]
	assert.Equal(t, "Task failed after max retries", last.Message)
	assert.Equal(t, models.LogLevelError, last.Level)

	flaky.AssertNumberOfCalls(t, "Execute", DefaultMaxRetries)
	assert.Equal(t, 0, h.runScheduler())
}

func TestScheduler_RetrySucceeds(t *testing.T) {
	h := newHarness(t)

	flaky := mocks.NewMockAction("flaky")
	flaky.On("Execute", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("boom")).Once()
	flaky.On("Execute", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()
	h.registry.Register(flaky)

	workflow := h.createWorkflow(testutil.WithSteps(
		delayStep(1, 1),
		actionStep(2, "flaky"),
		actionStep(3, "log"),
	))

	execution := h.trigger(workflow.ID, nil)

	h.clock.Advance(time.Minute)
	assert.Equal(t, 1, h.runScheduler())
	assert.Equal(t, models.ExecutionStatusRunning, h.execution(execution.ID).Status)

	h.clock.Advance(DefaultRetryBackoff)
	assert.Equal(t, 1, h.runScheduler())

	execution = h.execution(execution.ID)
	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
	assert.Equal(t, 3, execution.CurrentStep)

	tasks := h.tasks(execution.ID)
	require.Len(t, tasks, 1)
	assert.Equal(t, models.TaskStatusCompleted, tasks[0].Status)
	assert.Equal(t, 1, tasks[0].RetryCount)
	flaky.AssertExpectations(t)
}

func TestScheduler_LaterInlineFailureFailsExecution(t *testing.T) {
	h := newHarness(t)

	workflow := h.createWorkflow(testutil.WithSteps(
		delayStep(1, 1),
		actionStep(2, "log"),
		actionStep(3, "not_registered"),
	))

	execution := h.trigger(workflow.ID, nil)

	h.clock.Advance(time.Minute)
	assert.Equal(t, 1, h.runScheduler())

	execution = h.execution(execution.ID)
	assert.Equal(t, models.ExecutionStatusFailed, execution.Status)
	assert.Equal(t, 3, execution.CurrentStep)

	tasks := h.tasks(execution.ID)
	require.Len(t, tasks, 1)
	assert.Equal(t, models.TaskStatusCompleted, tasks[0].Status)
	assert.Equal(t, 0, tasks[0].RetryCount)
}

func TestScheduler_SkipsPausedExecutions(t *testing.T) {
	h := newHarness(t)

	workflow := h.createWorkflow(testutil.WithSteps(
		delayStep(1, 10),
		actionStep(2, "log"),
	))

	execution := h.trigger(workflow.ID, nil)
	h.pause(execution.ID)

	h.clock.Advance(time.Hour)
	assert.Equal(t, 0, h.runScheduler())

	tasks := h.tasks(execution.ID)
	require.Len(t, tasks, 1)
	assert.Equal(t, models.TaskStatusPending, tasks[0].Status)
	assert.Equal(t, models.ExecutionStatusPaused, h.execution(execution.ID).Status)

	h.resume(execution.ID)
	assert.Equal(t, 1, h.runScheduler())
	assert.Equal(t, models.ExecutionStatusCompleted, h.execution(execution.ID).Status)
}

func TestScheduler_ReleasesTaskWhenExecutionPausedAfterSelection(t *testing.T) {
	h := newHarness(t)

	workflow := h.createWorkflow(testutil.WithSteps(
		delayStep(1, 1),
		actionStep(2, "log"),
	))

	execution := h.trigger(workflow.ID, nil)
	task := h.tasks(execution.ID)[0]

	h.pause(execution.ID)

	handled, err := h.engine.processTask(h.ctx, task)
	require.NoError(t, err)
	assert.False(t, handled)

	reloaded, err := h.store.Tasks().GetByID(h.ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusPending, reloaded.Status)
	assert.Equal(t, 0, reloaded.RetryCount)
}

func TestScheduler_PauseObservedBeforeInlineStep(t *testing.T) {
	h := newHarness(t)

	pauser := mocks.NewMockAction("pause_me")
	h.registry.Register(pauser)

	workflow := h.createWorkflow(testutil.WithSteps(
		actionStep(1, "pause_me"),
		actionStep(2, "log"),
	))

	pauser.On("Execute", mock.Anything, mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		executions, err := h.store.Executions().List(h.ctx, models.ExecutionFilter{WorkflowID: workflow.ID})
		require.NoError(t, err)
		require.Len(t, executions, 1)
		h.pause(executions[0].ID)
	}).Return(nil).Once()

	execution := h.trigger(workflow.ID, nil)

	assert.Equal(t, models.ExecutionStatusPaused, execution.Status)
	assert.Equal(t, 1, execution.CurrentStep)

	tasks := h.tasks(execution.ID)
	require.Len(t, tasks, 1)
	assert.Equal(t, 2, tasks[0].StepNumber)
	assert.False(t, tasks[0].DelayElapsed)
	assert.NotContains(t, h.messages(execution.ID), "Action executed: log")

	assert.Equal(t, 0, h.runScheduler())

	h.resume(execution.ID)
	assert.Equal(t, 1, h.runScheduler())

	execution = h.execution(execution.ID)
	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
	assert.Equal(t, 2, execution.CurrentStep)
	pauser.AssertExpectations(t)
}

func TestScheduler_DropsTasksOfFinishedExecutions(t *testing.T) {
	h := newHarness(t)

	workflow := h.createWorkflow()
	execution := testutil.CreateTestExecution(workflow, map[string]any{})
	execution.Status = models.ExecutionStatusCompleted
	require.NoError(t, h.store.Executions().Create(h.ctx, execution))

	task := testutil.CreateTestTask(execution.ID, 1, baseTime)
	require.NoError(t, h.store.Tasks().Create(h.ctx, task))

	orphan := testutil.CreateTestTask("missing-execution", 1, baseTime)
	require.NoError(t, h.store.Tasks().Create(h.ctx, orphan))

	assert.Equal(t, 2, h.runScheduler())

	reloaded, err := h.store.Tasks().GetByID(h.ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusFailed, reloaded.Status)
	assert.Equal(t, "execution already completed", reloaded.LastError)

	entries := h.logs(execution.ID)
	require.Len(t, entries, 1)
	assert.Equal(t, models.LogLevelWarning, entries[0].Level)

	reloaded, err = h.store.Tasks().GetByID(h.ctx, orphan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusFailed, reloaded.Status)
}

func TestScheduler_ClaimedTaskIsSkipped(t *testing.T) {
	h := newHarness(t)

	workflow := h.createWorkflow(testutil.WithSteps(
		delayStep(1, 1),
		actionStep(2, "log"),
	))

	execution := h.trigger(workflow.ID, nil)
	task := h.tasks(execution.ID)[0]

	claimed, err := h.store.Tasks().Claim(h.ctx, task.ID, baseTime)
	require.NoError(t, err)
	require.True(t, claimed)

	handled, err := h.engine.processTask(h.ctx, task)
	require.NoError(t, err)
	assert.False(t, handled)
	assert.Equal(t, models.ExecutionStatusRunning, h.execution(execution.ID).Status)
}

func TestScheduler_ResumeUsesStepSnapshot(t *testing.T) {
	h := newHarness(t)

	h.mailer.On("Send", mock.Anything, mock.MatchedBy(func(msg mailer.Message) bool {
		return msg.To == "ops@example.com"
	})).Return(nil).Once()

	workflow := h.createWorkflow(testutil.WithSteps(
		delayStep(1, 10),
		testutil.CreateTestStep(2, testutil.StepType(models.StepTypeEmail, map[string]any{"to": "ops@example.com"})),
	))

	execution := h.trigger(workflow.ID, nil)

	workflow.Steps = []*models.Step{actionStep(1, "not_registered")}
	require.NoError(t, h.store.Workflows().Update(h.ctx, workflow))
	require.NoError(t, h.store.Workflows().Delete(h.ctx, workflow.ID))

	h.clock.Advance(10 * time.Minute)
	assert.Equal(t, 1, h.runScheduler())

	assert.Equal(t, models.ExecutionStatusCompleted, h.execution(execution.ID).Status)
	h.mailer.AssertExpectations(t)
}

func TestScheduler_DelayAsLastStepCompletesOnResume(t *testing.T) {
	h := newHarness(t)

	workflow := h.createWorkflow(testutil.WithSteps(
		actionStep(1, "log"),
		delayStep(2, 30),
	))

	execution := h.trigger(workflow.ID, nil)
	assert.Equal(t, models.ExecutionStatusRunning, execution.Status)

	h.clock.Advance(30 * time.Minute)
	assert.Equal(t, 1, h.runScheduler())

	execution = h.execution(execution.ID)
	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
	assert.Equal(t, 2, execution.CurrentStep)
}

func TestScheduler_BatchSize(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.BatchSize = 2 })

	workflow := h.createWorkflow(testutil.WithSteps(
		delayStep(1, 1),
		actionStep(2, "log"),
	))

	for range 3 {
		h.trigger(workflow.ID, nil)
	}

	h.clock.Advance(time.Minute)
	assert.Equal(t, 2, h.runScheduler())
	assert.Equal(t, 1, h.runScheduler())
	assert.Equal(t, 0, h.runScheduler())
}
