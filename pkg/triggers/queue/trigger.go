// Package queue starts workflows from JSON messages pushed onto a Redis list.
//
// A message names either a workflow or an event:
//
//	{"workflow_id": "0191...", "data": {"email": "ana@example.com"}}
//	{"event": "user.signup", "data": {"email": "ana@example.com"}}
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const defaultPopTimeout = time.Second

var (
	ErrQueueRequired  = errors.New("queue name is required")
	ErrInvalidMessage = errors.New("invalid queue message")
)

// Popper is the part of the Redis client the listener needs.
type Popper interface {
	BLPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
}

// Dispatcher starts executions.
type Dispatcher interface {
	Trigger(ctx context.Context, workflowID string, triggerData map[string]any) (string, error)
	DispatchEvent(ctx context.Context, event string, data map[string]any) ([]string, error)
}

type Message struct {
	WorkflowID string         `json:"workflow_id"`
	Event      string         `json:"event"`
	Data       map[string]any `json:"data"`
}

type Trigger struct {
	Queue string

	client     Popper
	dispatcher Dispatcher
	logger     *slog.Logger
	popTimeout time.Duration
	stopCh     chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
}

func NewTrigger(client Popper, queue string, dispatcher Dispatcher, logger *slog.Logger) *Trigger {
	return &Trigger{
		Queue:      queue,
		client:     client,
		dispatcher: dispatcher,
		popTimeout: defaultPopTimeout,
		stopCh:     make(chan struct{}),
		logger: logger.With(
			"module", "queue_trigger",
			"queue", queue,
		),
	}
}

func (t *Trigger) Validate() error {
	if t.Queue == "" {
		return ErrQueueRequired
	}

	return nil
}

// Start consumes the queue in a background goroutine until Stop or ctx ends.
func (t *Trigger) Start(ctx context.Context) error {
	err := t.Validate()
	if err != nil {
		return err
	}

	t.logger.InfoContext(ctx, "Starting QueueTrigger")

	t.wg.Add(1)

	go t.consume(ctx)

	return nil
}

func (t *Trigger) consume(ctx context.Context) {
	defer t.wg.Done()

	for {
		select {
		case <-t.stopCh:
			t.logger.InfoContext(ctx, "Queue consumer stopped")

			return
		case <-ctx.Done():
			t.logger.InfoContext(ctx, "Context cancelled, stopping queue consumer")

			return
		default:
			err := t.processMessage(ctx)
			if err != nil && ctx.Err() == nil {
				t.logger.ErrorContext(ctx, "Error processing message", "error", err)
				time.Sleep(time.Second)
			}
		}
	}
}

// processMessage waits up to popTimeout for one message and dispatches it.
func (t *Trigger) processMessage(ctx context.Context) error {
	result, err := t.client.BLPop(ctx, t.popTimeout, t.Queue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}

		return fmt.Errorf("failed to pop message from queue: %w", err)
	}

	if len(result) < 2 {
		return nil
	}

	err = t.handle(ctx, result[1])
	if errors.Is(err, ErrInvalidMessage) {
		// A malformed message is dropped; retrying it would block the queue.
		t.logger.WarnContext(ctx, "Dropping queue message", "message", result[1], "error", err)

		return nil
	}

	return err
}

func (t *Trigger) handle(ctx context.Context, raw string) error {
	var message Message

	err := json.Unmarshal([]byte(raw), &message)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}

	if (message.WorkflowID == "") == (message.Event == "") {
		return fmt.Errorf("%w: exactly one of workflow_id or event is required", ErrInvalidMessage)
	}

	if message.Data == nil {
		message.Data = map[string]any{}
	}

	if message.Event != "" {
		executionIDs, err := t.dispatcher.DispatchEvent(ctx, message.Event, message.Data)
		t.logger.InfoContext(ctx, "Dispatched queued event", "event", message.Event, "executions", len(executionIDs))

		return err
	}

	executionID, err := t.dispatcher.Trigger(ctx, message.WorkflowID, message.Data)
	if err != nil {
		return fmt.Errorf("failed to trigger workflow %s: %w", message.WorkflowID, err)
	}

	t.logger.InfoContext(ctx, "Triggered queued workflow", "workflow_id", message.WorkflowID, "execution_id", executionID)

	return nil
}

func (t *Trigger) Stop(ctx context.Context) {
	t.logger.InfoContext(ctx, "Stopping QueueTrigger")

	t.stopOnce.Do(func() { close(t.stopCh) })
	t.wg.Wait()
}
