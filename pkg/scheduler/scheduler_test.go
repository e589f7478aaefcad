package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"

	flowlog "github.com/dukex/flowline/pkg/log"
	"github.com/dukex/flowline/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	mu        sync.Mutex
	triggered []string
	data      []map[string]any
	polls     int
	pollErr   error
}

func (f *fakeEngine) Trigger(_ context.Context, workflowID string, triggerData map[string]any) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.triggered = append(f.triggered, workflowID)
	f.data = append(f.data, triggerData)

	return "execution-" + workflowID, nil
}

func (f *fakeEngine) RunScheduler(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.polls++

	return 0, f.pollErr
}

func TestScheduler_Sync(t *testing.T) {
	store := testutil.NewSQLiteStore(t)
	ctx := t.Context()

	nightly := testutil.CreateTestWorkflow(testutil.WithSchedule("0 3 * * *"))
	hourly := testutil.CreateTestWorkflow(testutil.WithSchedule("0 * * * *"))
	manual := testutil.CreateTestWorkflow()

	require.NoError(t, store.Workflows().Create(ctx, nightly))
	require.NoError(t, store.Workflows().Create(ctx, hourly))
	require.NoError(t, store.Workflows().Create(ctx, manual))

	s := New(&fakeEngine{}, store.Workflows(), flowlog.Discard(), Options{Workflows: true})

	require.NoError(t, s.Sync(ctx))
	assert.Equal(t, map[string]string{
		nightly.ID: "0 3 * * *",
		hourly.ID:  "0 * * * *",
	}, s.Scheduled())
	assert.Len(t, s.cron.Entries(), 2)

	require.NoError(t, store.Workflows().SetActive(ctx, hourly.ID, false))

	nightly.Schedule = "30 4 * * *"
	require.NoError(t, store.Workflows().Update(ctx, nightly))

	require.NoError(t, s.Sync(ctx))
	assert.Equal(t, map[string]string{nightly.ID: "30 4 * * *"}, s.Scheduled())
	assert.Len(t, s.cron.Entries(), 1)
}

func TestScheduler_FireTriggersWorkflow(t *testing.T) {
	engine := &fakeEngine{}
	s := New(engine, testutil.NewSQLiteStore(t).Workflows(), flowlog.Discard(), Options{})

	s.fire("wf-1", "0 3 * * *")()

	require.Equal(t, []string{"wf-1"}, engine.triggered)
	assert.Equal(t, "0 3 * * *", engine.data[0]["schedule"])
	assert.NotEmpty(t, engine.data[0]["scheduled_at"])
}

func TestScheduler_Poll(t *testing.T) {
	engine := &fakeEngine{}
	s := New(engine, testutil.NewSQLiteStore(t).Workflows(), flowlog.Discard(), Options{})

	s.poll()

	engine.pollErr = errors.New("database locked")
	s.poll()

	assert.Equal(t, 2, engine.polls)
}

func TestScheduler_StartStop(t *testing.T) {
	store := testutil.NewSQLiteStore(t)
	ctx := t.Context()

	require.NoError(t, store.Workflows().Create(ctx, testutil.CreateTestWorkflow(testutil.WithSchedule("*/5 * * * *"))))

	s := New(&fakeEngine{}, store.Workflows(), flowlog.Discard(), Options{Workflows: true})

	require.NoError(t, s.Start(ctx))
	// poll job, sync job and one workflow
	assert.Len(t, s.cron.Entries(), 3)

	s.Stop(ctx)
}

func TestScheduler_StartInvalidPollSpec(t *testing.T) {
	s := New(&fakeEngine{}, testutil.NewSQLiteStore(t).Workflows(), flowlog.Discard(), Options{PollSpec: "whenever"})

	assert.Error(t, s.Start(t.Context()))
}
