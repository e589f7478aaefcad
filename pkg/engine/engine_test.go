package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	logaction "github.com/dukex/flowline/pkg/actions/log"
	"github.com/dukex/flowline/pkg/log"
	"github.com/dukex/flowline/pkg/mocks"
	"github.com/dukex/flowline/pkg/models"
	"github.com/dukex/flowline/pkg/persistence/sqlite"
	"github.com/dukex/flowline/pkg/registry"
	"github.com/dukex/flowline/pkg/testutil"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2026, time.January, 5, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

type harness struct {
	t        *testing.T
	ctx      context.Context
	store    *sqlite.Persistence
	registry *registry.Registry
	mailer   *mocks.MockMailer
	clock    *fakeClock
	engine   *Engine
}

func newHarness(t *testing.T, configure ...func(*Options)) *harness {
	t.Helper()

	logger := log.Discard()

	h := &harness{
		t:        t,
		ctx:      context.Background(),
		store:    testutil.NewSQLiteStore(t),
		registry: registry.NewRegistry(logger),
		mailer:   &mocks.MockMailer{},
		clock:    &fakeClock{now: baseTime},
	}

	h.registry.Register(logaction.NewAction(logger))

	opts := Options{
		Store:    h.store,
		Registry: h.registry,
		Mailer:   h.mailer,
		Logger:   logger,
		Now:      h.clock.Now,
	}

	for _, fn := range configure {
		fn(&opts)
	}

	h.engine = New(opts)

	return h
}

func (h *harness) createWorkflow(overrides ...func(*models.Workflow)) *models.Workflow {
	h.t.Helper()

	workflow := testutil.CreateTestWorkflow(overrides...)
	require.NoError(h.t, h.store.Workflows().Create(h.ctx, workflow))

	return workflow
}

func (h *harness) trigger(workflowID string, data map[string]any) *models.Execution {
	h.t.Helper()

	executionID, err := h.engine.Trigger(h.ctx, workflowID, data)
	require.NoError(h.t, err)

	return h.execution(executionID)
}

func (h *harness) execution(id string) *models.Execution {
	h.t.Helper()

	execution, err := h.store.Executions().GetByID(h.ctx, id)
	require.NoError(h.t, err)

	return execution
}

func (h *harness) runScheduler() int {
	h.t.Helper()

	processed, err := h.engine.RunScheduler(h.ctx)
	require.NoError(h.t, err)

	return processed
}

func (h *harness) tasks(executionID string) []*models.DeferredTask {
	h.t.Helper()

	tasks, err := h.store.Tasks().ListByExecution(h.ctx, executionID)
	require.NoError(h.t, err)

	return tasks
}

func (h *harness) logs(executionID string) []*models.LogEntry {
	h.t.Helper()

	entries, err := h.store.Logs().ListByExecution(h.ctx, executionID)
	require.NoError(h.t, err)

	return entries
}

func (h *harness) messages(executionID string) []string {
	h.t.Helper()

	var messages []string
	for _, entry := range h.logs(executionID) {
		messages = append(messages, entry.Message)
	}

	return messages
}

func (h *harness) pause(executionID string) {
	h.t.Helper()

	ok, err := h.store.Executions().TransitionStatus(h.ctx, executionID, models.ExecutionStatusRunning, models.ExecutionStatusPaused)
	require.NoError(h.t, err)
	require.True(h.t, ok)
}

func (h *harness) resume(executionID string) {
	h.t.Helper()

	ok, err := h.store.Executions().TransitionStatus(h.ctx, executionID, models.ExecutionStatusPaused, models.ExecutionStatusRunning)
	require.NoError(h.t, err)
	require.True(h.t, ok)
}

func actionStep(n int, name string, overrides ...func(*models.Step)) *models.Step {
	step := testutil.CreateTestStep(n, testutil.StepType(models.StepTypeAction, map[string]any{"action": name}))
	for _, override := range overrides {
		override(step)
	}

	return step
}

func delayStep(n int, minutes int) *models.Step {
	return testutil.CreateTestStep(n, testutil.StepType(models.StepTypeDelay, map[string]any{"duration_minutes": minutes}))
}
