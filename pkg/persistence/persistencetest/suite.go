// Package persistencetest holds the behaviour suite every state store backend must pass.
package persistencetest

import (
	"context"
	"testing"
	"time"

	"github.com/dukex/flowline/pkg/models"
	"github.com/dukex/flowline/pkg/persistence"
	"github.com/dukex/flowline/pkg/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run executes the suite. newStore must return an empty, migrated store.
func Run(t *testing.T, newStore func(t *testing.T) persistence.Persistence) {
	t.Helper()

	t.Run("workflow round trip", func(t *testing.T) { testWorkflowRoundTrip(t, newStore(t)) })
	t.Run("workflow listing", func(t *testing.T) { testWorkflowListing(t, newStore(t)) })
	t.Run("workflow update replaces steps", func(t *testing.T) { testWorkflowUpdate(t, newStore(t)) })
	t.Run("workflow delete keeps history", func(t *testing.T) { testWorkflowDelete(t, newStore(t)) })
	t.Run("execution lifecycle", func(t *testing.T) { testExecutionLifecycle(t, newStore(t)) })
	t.Run("execution listing", func(t *testing.T) { testExecutionListing(t, newStore(t)) })
	t.Run("task claiming", func(t *testing.T) { testTaskClaiming(t, newStore(t)) })
	t.Run("task due selection", func(t *testing.T) { testTaskDueSelection(t, newStore(t)) })
	t.Run("task single active per step", func(t *testing.T) { testTaskActiveUniqueness(t, newStore(t)) })
	t.Run("task transitions", func(t *testing.T) { testTaskTransitions(t, newStore(t)) })
	t.Run("logs", func(t *testing.T) { testLogs(t, newStore(t)) })
	t.Run("stats", func(t *testing.T) { testStats(t, newStore(t)) })
}

func saveExecution(ctx context.Context, t *testing.T, store persistence.Persistence, status models.ExecutionStatus) *models.Execution {
	t.Helper()

	workflow := testutil.CreateTestWorkflow()
	require.NoError(t, store.Workflows().Create(ctx, workflow))

	execution := testutil.CreateTestExecution(workflow, map[string]any{"email": "a@b.com"})
	execution.Status = status
	require.NoError(t, store.Executions().Create(ctx, execution))

	return execution
}

func testWorkflowRoundTrip(t *testing.T, store persistence.Persistence) {
	ctx := context.Background()

	workflow := testutil.CreateTestWorkflow(
		testutil.WithEventTrigger("user.signup"),
		testutil.WithSteps(
			testutil.CreateTestStep(1),
			testutil.CreateTestStep(2, testutil.StepType(models.StepTypeDelay, map[string]any{"duration_minutes": float64(10)})),
			testutil.CreateTestStep(3,
				testutil.StepType(models.StepTypeEmail, map[string]any{"to": "{{customer_email}}", "subject": "Hi"}),
				testutil.When("plan", "=", "vip"),
				testutil.DelayMinutes(5),
			),
		),
	)

	require.NoError(t, store.Workflows().Create(ctx, workflow))

	loaded, err := store.Workflows().GetByID(ctx, workflow.ID)
	require.NoError(t, err)

	assert.Equal(t, workflow.Name, loaded.Name)
	assert.Equal(t, models.TriggerTypeEvent, loaded.TriggerType)
	assert.Equal(t, "user.signup", loaded.TriggerEvent)
	assert.True(t, loaded.Active)
	assert.WithinDuration(t, workflow.CreatedAt, loaded.CreatedAt, time.Second)
	require.Len(t, loaded.Steps, 3)

	assert.Equal(t, 1, loaded.Steps[0].StepNumber)
	assert.Equal(t, models.StepTypeDelay, loaded.Steps[1].Type)
	assert.Equal(t, float64(10), loaded.Steps[1].Config["duration_minutes"])
	assert.Nil(t, loaded.Steps[1].Condition)

	third := loaded.Steps[2]
	assert.Equal(t, 5, third.DelayMinutes)
	assert.Equal(t, "{{customer_email}}", third.Config["to"])
	require.NotNil(t, third.Condition)
	assert.Equal(t, models.Condition{Check: "plan", Operator: "=", Value: "vip"}, *third.Condition)

	_, err = store.Workflows().GetByID(ctx, uuid.NewString())
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func testWorkflowListing(t *testing.T, store persistence.Persistence) {
	ctx := context.Background()

	active := testutil.CreateTestWorkflow(testutil.WithName("active"))
	inactive := testutil.CreateTestWorkflow(testutil.WithName("inactive"), testutil.Inactive())
	scheduled := testutil.CreateTestWorkflow(testutil.WithName("nightly"), testutil.WithSchedule("0 2 * * *"))

	for _, w := range []*models.Workflow{active, inactive, scheduled} {
		require.NoError(t, store.Workflows().Create(ctx, w))
	}

	all, err := store.Workflows().List(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	onlyActive, err := store.Workflows().List(ctx, true)
	require.NoError(t, err)
	assert.Len(t, onlyActive, 2)

	for _, w := range onlyActive {
		assert.True(t, w.Active)
		assert.NotEmpty(t, w.Steps)
	}

	byTrigger, err := store.Workflows().ListActiveByTrigger(ctx, models.TriggerTypeScheduled)
	require.NoError(t, err)
	require.Len(t, byTrigger, 1)
	assert.Equal(t, "0 2 * * *", byTrigger[0].Schedule)

	require.NoError(t, store.Workflows().SetActive(ctx, scheduled.ID, false))

	byTrigger, err = store.Workflows().ListActiveByTrigger(ctx, models.TriggerTypeScheduled)
	require.NoError(t, err)
	assert.Empty(t, byTrigger)

	err = store.Workflows().SetActive(ctx, uuid.NewString(), true)
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func testWorkflowUpdate(t *testing.T, store persistence.Persistence) {
	ctx := context.Background()

	workflow := testutil.CreateTestWorkflow(testutil.WithSteps(
		testutil.CreateTestStep(1),
		testutil.CreateTestStep(2),
	))
	require.NoError(t, store.Workflows().Create(ctx, workflow))

	workflow.Name = "Renamed"
	workflow.Steps = []*models.Step{
		testutil.CreateTestStep(1, testutil.StepType(models.StepTypeCondition, map[string]any{})),
	}
	workflow.UpdatedAt = time.Now().UTC()

	require.NoError(t, store.Workflows().Update(ctx, workflow))

	loaded, err := store.Workflows().GetByID(ctx, workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", loaded.Name)
	require.Len(t, loaded.Steps, 1)
	assert.Equal(t, models.StepTypeCondition, loaded.Steps[0].Type)

	missing := testutil.CreateTestWorkflow()
	err = store.Workflows().Update(ctx, missing)
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func testWorkflowDelete(t *testing.T, store persistence.Persistence) {
	ctx := context.Background()

	execution := saveExecution(ctx, t, store, models.ExecutionStatusCompleted)
	require.NoError(t, store.Logs().Append(ctx, &models.LogEntry{
		ID:          uuid.NewString(),
		ExecutionID: execution.ID,
		Level:       models.LogLevelInfo,
		Message:     "Workflow started",
		CreatedAt:   time.Now().UTC(),
	}))

	require.NoError(t, store.Workflows().Delete(ctx, execution.WorkflowID))

	_, err := store.Workflows().GetByID(ctx, execution.WorkflowID)
	assert.True(t, persistence.IsWorkflowNotFound(err))

	kept, err := store.Executions().GetByID(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, execution.WorkflowID, kept.WorkflowID)
	assert.NotEmpty(t, kept.Steps, "snapshot survives definition removal")

	logs, err := store.Logs().ListByExecution(ctx, execution.ID)
	require.NoError(t, err)
	assert.Len(t, logs, 1)

	err = store.Workflows().Delete(ctx, execution.WorkflowID)
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func testExecutionLifecycle(t *testing.T, store persistence.Persistence) {
	ctx := context.Background()
	executions := store.Executions()

	execution := saveExecution(ctx, t, store, models.ExecutionStatusRunning)

	loaded, err := executions.GetByID(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", loaded.TriggerData["email"])
	assert.Equal(t, 1, loaded.CurrentStep)
	assert.Nil(t, loaded.CompletedAt)
	require.Len(t, loaded.Steps, 1)
	assert.Equal(t, "log", loaded.Steps[0].Config["action"])

	require.NoError(t, executions.SetCurrentStep(ctx, execution.ID, 3))
	require.NoError(t, executions.SetCurrentStep(ctx, execution.ID, 2))

	loaded, err = executions.GetByID(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.CurrentStep, "current step never decreases")

	changed, err := executions.TransitionStatus(ctx, execution.ID, models.ExecutionStatusRunning, models.ExecutionStatusPaused)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = executions.TransitionStatus(ctx, execution.ID, models.ExecutionStatusRunning, models.ExecutionStatusPaused)
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = executions.TransitionStatus(ctx, uuid.NewString(), models.ExecutionStatusRunning, models.ExecutionStatusPaused)
	assert.True(t, persistence.IsExecutionNotFound(err))

	finishedAt := time.Now().UTC()
	require.NoError(t, executions.Finish(ctx, execution.ID, models.ExecutionStatusFailed, "boom", finishedAt))
	require.NoError(t, executions.Finish(ctx, execution.ID, models.ExecutionStatusCompleted, "", finishedAt.Add(time.Minute)))

	loaded, err = executions.GetByID(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusFailed, loaded.Status, "terminal status is final")
	assert.Equal(t, "boom", loaded.ErrorMessage)
	require.NotNil(t, loaded.CompletedAt)
	assert.WithinDuration(t, finishedAt, *loaded.CompletedAt, time.Second)

	_, err = executions.GetByID(ctx, uuid.NewString())
	assert.True(t, persistence.IsExecutionNotFound(err))
}

func testExecutionListing(t *testing.T, store persistence.Persistence) {
	ctx := context.Background()

	running := saveExecution(ctx, t, store, models.ExecutionStatusRunning)
	saveExecution(ctx, t, store, models.ExecutionStatusCompleted)
	saveExecution(ctx, t, store, models.ExecutionStatusCompleted)

	all, err := store.Executions().List(ctx, models.ExecutionFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	completed, err := store.Executions().List(ctx, models.ExecutionFilter{Status: models.ExecutionStatusCompleted})
	require.NoError(t, err)
	assert.Len(t, completed, 2)

	byWorkflow, err := store.Executions().List(ctx, models.ExecutionFilter{WorkflowID: running.WorkflowID})
	require.NoError(t, err)
	require.Len(t, byWorkflow, 1)
	assert.Equal(t, running.ID, byWorkflow[0].ID)

	limited, err := store.Executions().List(ctx, models.ExecutionFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func testTaskClaiming(t *testing.T, store persistence.Persistence) {
	ctx := context.Background()
	now := time.Now().UTC()

	execution := saveExecution(ctx, t, store, models.ExecutionStatusRunning)
	task := testutil.CreateTestTask(execution.ID, 2, now.Add(-time.Minute))
	require.NoError(t, store.Tasks().Create(ctx, task))

	claimed, err := store.Tasks().Claim(ctx, task.ID, now)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = store.Tasks().Claim(ctx, task.ID, now)
	require.NoError(t, err)
	assert.False(t, claimed, "second claim must observe the row is no longer pending")

	loaded, err := store.Tasks().GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusProcessing, loaded.Status)

	require.NoError(t, store.Tasks().Release(ctx, task.ID, now))

	loaded, err = store.Tasks().GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusPending, loaded.Status)
	assert.Equal(t, 0, loaded.RetryCount)
}

func testTaskDueSelection(t *testing.T, store persistence.Persistence) {
	ctx := context.Background()
	now := time.Now().UTC()

	running := saveExecution(ctx, t, store, models.ExecutionStatusRunning)
	paused := saveExecution(ctx, t, store, models.ExecutionStatusPaused)

	later := testutil.CreateTestTask(running.ID, 2, now.Add(-time.Minute))
	earlier := testutil.CreateTestTask(running.ID, 3, now.Add(-time.Hour))
	future := testutil.CreateTestTask(running.ID, 4, now.Add(time.Hour))
	ofPaused := testutil.CreateTestTask(paused.ID, 2, now.Add(-time.Hour))
	orphan := testutil.CreateTestTask(uuid.NewString(), 2, now.Add(-2*time.Hour))

	for _, task := range []*models.DeferredTask{later, earlier, future, ofPaused, orphan} {
		require.NoError(t, store.Tasks().Create(ctx, task))
	}

	due, err := store.Tasks().ListDue(ctx, now, 50)
	require.NoError(t, err)
	require.Len(t, due, 3)
	assert.Equal(t, orphan.ID, due[0].ID)
	assert.Equal(t, earlier.ID, due[1].ID)
	assert.Equal(t, later.ID, due[2].ID)

	limited, err := store.Tasks().ListDue(ctx, now, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func testTaskActiveUniqueness(t *testing.T, store persistence.Persistence) {
	ctx := context.Background()
	now := time.Now().UTC()

	execution := saveExecution(ctx, t, store, models.ExecutionStatusRunning)

	first := testutil.CreateTestTask(execution.ID, 2, now)
	require.NoError(t, store.Tasks().Create(ctx, first))

	duplicate := testutil.CreateTestTask(execution.ID, 2, now)
	err := store.Tasks().Create(ctx, duplicate)
	assert.True(t, persistence.IsActiveTaskExists(err))

	require.NoError(t, store.Tasks().Complete(ctx, first.ID, now))

	again := testutil.CreateTestTask(execution.ID, 2, now)
	require.NoError(t, store.Tasks().Create(ctx, again), "finished tasks do not block a new one")

	tasks, err := store.Tasks().ListByExecution(ctx, execution.ID)
	require.NoError(t, err)
	assert.Len(t, tasks, 2)
}

func testTaskTransitions(t *testing.T, store persistence.Persistence) {
	ctx := context.Background()
	now := time.Now().UTC()

	execution := saveExecution(ctx, t, store, models.ExecutionStatusRunning)
	task := testutil.CreateTestTask(execution.ID, 2, now)
	require.NoError(t, store.Tasks().Create(ctx, task))

	next := now.Add(5 * time.Minute)
	require.NoError(t, store.Tasks().Retry(ctx, task.ID, 1, next, "timeout", now))

	loaded, err := store.Tasks().GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusPending, loaded.Status)
	assert.Equal(t, 1, loaded.RetryCount)
	assert.Equal(t, "timeout", loaded.LastError)
	assert.WithinDuration(t, next, loaded.ScheduledTime, time.Second)

	require.NoError(t, store.Tasks().Reschedule(ctx, task.ID, now.Add(time.Hour), true, now))

	loaded, err = store.Tasks().GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.True(t, loaded.DelayElapsed)
	assert.WithinDuration(t, now.Add(time.Hour), loaded.ScheduledTime, time.Second)

	require.NoError(t, store.Tasks().Fail(ctx, task.ID, 3, "gave up", now))

	loaded, err = store.Tasks().GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusFailed, loaded.Status)
	assert.Equal(t, 3, loaded.RetryCount)

	err = store.Tasks().Complete(ctx, uuid.NewString(), now)
	assert.True(t, persistence.IsTaskNotFound(err))
}

func testLogs(t *testing.T, store persistence.Persistence) {
	ctx := context.Background()
	now := time.Now().UTC()

	execution := saveExecution(ctx, t, store, models.ExecutionStatusRunning)
	step := 2

	entries := []*models.LogEntry{
		{ID: uuid.Must(uuid.NewV7()).String(), ExecutionID: execution.ID, Level: models.LogLevelInfo, Message: "Workflow started", Data: map[string]any{"plan": "vip"}, CreatedAt: now},
		{ID: uuid.Must(uuid.NewV7()).String(), ExecutionID: execution.ID, StepNumber: &step, Level: models.LogLevelSuccess, Message: "Email sent", CreatedAt: now.Add(time.Millisecond)},
	}

	for _, entry := range entries {
		require.NoError(t, store.Logs().Append(ctx, entry))
	}

	loaded, err := store.Logs().ListByExecution(ctx, execution.ID)
	require.NoError(t, err)
	require.Len(t, loaded, 2)

	assert.Nil(t, loaded[0].StepNumber)
	assert.Equal(t, "vip", loaded[0].Data["plan"])
	require.NotNil(t, loaded[1].StepNumber)
	assert.Equal(t, 2, *loaded[1].StepNumber)
	assert.Equal(t, models.LogLevelSuccess, loaded[1].Level)
	assert.Nil(t, loaded[1].Data)
}

func testStats(t *testing.T, store persistence.Persistence) {
	ctx := context.Background()
	now := time.Now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	running := saveExecution(ctx, t, store, models.ExecutionStatusRunning)
	saveExecution(ctx, t, store, models.ExecutionStatusCompleted)
	require.NoError(t, store.Workflows().Create(ctx, testutil.CreateTestWorkflow(testutil.Inactive())))

	old := testutil.CreateTestExecution(testutil.CreateTestWorkflow(), nil)
	old.StartedAt = dayStart.Add(-time.Hour)
	old.Status = models.ExecutionStatusCompleted
	require.NoError(t, store.Executions().Create(ctx, old))

	require.NoError(t, store.Tasks().Create(ctx, testutil.CreateTestTask(running.ID, 2, now)))

	stats, err := store.Stats(ctx, dayStart)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.ActiveWorkflows)
	assert.Equal(t, 1, stats.RunningExecutions)
	assert.Equal(t, 2, stats.ExecutionsToday)
	assert.Equal(t, 1, stats.PendingTasks)
}
