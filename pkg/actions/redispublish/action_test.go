package redispublish

import (
	"context"
	"errors"
	"testing"

	flowlog "github.com/dukex/flowline/pkg/log"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStream struct {
	args *redis.XAddArgs
	err  error
}

func (f *fakeStream) XAdd(_ context.Context, a *redis.XAddArgs) *redis.StringCmd {
	f.args = a

	return redis.NewStringResult("1700000000000-0", f.err)
}

func TestAction_Execute(t *testing.T) {
	stream := &fakeStream{}
	action := NewAction(stream, flowlog.Discard())

	err := action.Execute(context.Background(), map[string]any{
		"stream":  "billing-events",
		"fields":  map[string]any{"kind": "upgrade", "attempt": float64(1)},
		"max_len": float64(1000),
	}, map[string]any{"customer": "c-1"})
	require.NoError(t, err)

	require.NotNil(t, stream.args)
	assert.Equal(t, "billing-events", stream.args.Stream)
	assert.Equal(t, int64(1000), stream.args.MaxLen)
	assert.True(t, stream.args.Approx)

	values, ok := stream.args.Values.(map[string]any)
	require.True(t, ok)
	assert.JSONEq(t, `{"customer":"c-1"}`, values["data"].(string))
	assert.Equal(t, "upgrade", values["kind"])
	assert.Equal(t, "1", values["attempt"])
}

func TestAction_ExecuteErrors(t *testing.T) {
	action := NewAction(&fakeStream{}, flowlog.Discard())
	assert.Equal(t, "redis_publish", action.ID())

	err := action.Execute(context.Background(), map[string]any{}, nil)
	require.ErrorIs(t, err, ErrStreamRequired)

	failing := NewAction(&fakeStream{err: errors.New("READONLY")}, flowlog.Discard())

	err = failing.Execute(context.Background(), map[string]any{"stream": "s"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "READONLY")
}
