// Package events defines the execution lifecycle events the engine publishes.
package events

import (
	"encoding/json"
	"fmt"
	"time"
)

type EventType string

// Topic carries every lifecycle event.
const Topic = "flowline.executions"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	ExecutionStartedEvent   EventType = "workflow.execution.started"
	ExecutionStepEvent      EventType = "workflow.execution.step_completed"
	ExecutionDeferredEvent  EventType = "workflow.execution.deferred"
	ExecutionCompletedEvent EventType = "workflow.execution.completed"
	ExecutionFailedEvent    EventType = "workflow.execution.failed"
	ExecutionPausedEvent    EventType = "workflow.execution.paused"
	ExecutionResumedEvent   EventType = "workflow.execution.resumed"
)

// AllTypes lists every event type in lifecycle order.
var AllTypes = []EventType{
	ExecutionStartedEvent,
	ExecutionStepEvent,
	ExecutionDeferredEvent,
	ExecutionCompletedEvent,
	ExecutionFailedEvent,
	ExecutionPausedEvent,
	ExecutionResumedEvent,
}

type BaseEvent struct {
	ID          string         `json:"id"`
	Type        EventType      `json:"type"`
	Timestamp   time.Time      `json:"timestamp"`
	WorkflowID  string         `json:"workflow_id"`
	ExecutionID string         `json:"execution_id"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// NewBase stamps a base event with the current UTC time.
func NewBase(id string, eventType EventType, workflowID, executionID string) BaseEvent {
	return BaseEvent{
		ID:          id,
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		WorkflowID:  workflowID,
		ExecutionID: executionID,
	}
}

func (b BaseEvent) Base() BaseEvent {
	return b
}

type ExecutionStarted struct {
	BaseEvent

	TriggerData map[string]any `json:"trigger_data,omitempty"`
}

func (ExecutionStarted) GetType() EventType {
	return ExecutionStartedEvent
}

type ExecutionStepCompleted struct {
	BaseEvent

	StepNumber int    `json:"step_number"`
	StepType   string `json:"step_type"`
	Skipped    bool   `json:"skipped"`
}

func (ExecutionStepCompleted) GetType() EventType {
	return ExecutionStepEvent
}

type ExecutionDeferred struct {
	BaseEvent

	TaskID        string    `json:"task_id"`
	StepNumber    int       `json:"step_number"`
	ScheduledTime time.Time `json:"scheduled_time"`
}

func (ExecutionDeferred) GetType() EventType {
	return ExecutionDeferredEvent
}

type ExecutionCompleted struct {
	BaseEvent

	Duration time.Duration `json:"duration"`
}

func (ExecutionCompleted) GetType() EventType {
	return ExecutionCompletedEvent
}

type ExecutionFailed struct {
	BaseEvent

	StepNumber int    `json:"step_number,omitempty"`
	Error      string `json:"error"`
}

func (ExecutionFailed) GetType() EventType {
	return ExecutionFailedEvent
}

type ExecutionPaused struct {
	BaseEvent
}

func (ExecutionPaused) GetType() EventType {
	return ExecutionPausedEvent
}

type ExecutionResumed struct {
	BaseEvent
}

func (ExecutionResumed) GetType() EventType {
	return ExecutionResumedEvent
}

// Decode builds the concrete event for eventType from its JSON payload.
func Decode(eventType EventType, payload []byte) (any, error) {
	var event any

	switch eventType {
	case ExecutionStartedEvent:
		event = &ExecutionStarted{}
	case ExecutionStepEvent:
		event = &ExecutionStepCompleted{}
	case ExecutionDeferredEvent:
		event = &ExecutionDeferred{}
	case ExecutionCompletedEvent:
		event = &ExecutionCompleted{}
	case ExecutionFailedEvent:
		event = &ExecutionFailed{}
	case ExecutionPausedEvent:
		event = &ExecutionPaused{}
	case ExecutionResumedEvent:
		event = &ExecutionResumed{}
	default:
		return nil, fmt.Errorf("unknown event type %q", eventType)
	}

	err := json.Unmarshal(payload, event)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s event: %w", eventType, err)
	}

	return event, nil
}
