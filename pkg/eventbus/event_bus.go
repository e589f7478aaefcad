// Package eventbus publishes execution lifecycle events to watermill channels and metric sinks.
package eventbus

import (
	"context"

	"github.com/dukex/flowline/pkg/events"
)

type Event interface {
	GetType() events.EventType
}

type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

type EventHandler func(ctx context.Context, event any) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}

// based is satisfied by every event that embeds events.BaseEvent.
type based interface {
	Base() events.BaseEvent
}

func baseOf(event Event) (events.BaseEvent, bool) {
	b, ok := event.(based)
	if !ok {
		return events.BaseEvent{}, false
	}

	return b.Base(), true
}
