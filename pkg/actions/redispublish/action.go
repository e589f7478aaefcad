// Package redispublish provides the `redis_publish` action, which appends an
// entry to a Redis stream for downstream consumers.
package redispublish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

var ErrStreamRequired = errors.New("redis_publish: stream is required")

// StreamAdder is the part of redis.UniversalClient the action needs.
type StreamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

type Action struct {
	client StreamAdder
	logger *slog.Logger
}

func NewAction(client StreamAdder, logger *slog.Logger) *Action {
	return &Action{client: client, logger: logger.With("action_type", "redis_publish")}
}

func (*Action) ID() string {
	return "redis_publish"
}

// Execute adds {data: <trigger data JSON>} plus any config["fields"] to
// config["stream"]. config["max_len"] caps the stream approximately.
func (a *Action) Execute(ctx context.Context, config map[string]any, triggerData map[string]any) error {
	stream, _ := config["stream"].(string)
	if stream == "" {
		return ErrStreamRequired
	}

	payload, err := json.Marshal(triggerData)
	if err != nil {
		return fmt.Errorf("redis_publish: failed to encode trigger data: %w", err)
	}

	values := map[string]any{"data": string(payload)}

	if fields, ok := config["fields"].(map[string]any); ok {
		for key, value := range fields {
			values[key] = fmt.Sprint(value)
		}
	}

	args := &redis.XAddArgs{
		Stream: stream,
		Values: values,
	}

	if maxLen, ok := config["max_len"].(float64); ok && maxLen > 0 {
		args.MaxLen = int64(maxLen)
		args.Approx = true
	}

	id, err := a.client.XAdd(ctx, args).Result()
	if err != nil {
		return fmt.Errorf("redis_publish: failed to add to stream %s: %w", stream, err)
	}

	a.logger.DebugContext(ctx, "Published to stream", "stream", stream, "entry_id", id)

	return nil
}

// Connect opens a client for addr and verifies it with PING.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	err := client.Ping(ctx).Err()
	if err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}
