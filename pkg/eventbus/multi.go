package eventbus

import (
	"context"
	"errors"
)

// MultiPublisher fans one event out to several publishers.
type MultiPublisher []EventPublisher

func (m MultiPublisher) Publish(ctx context.Context, key string, event Event) error {
	var errs []error

	for _, publisher := range m {
		err := publisher.Publish(ctx, key, event)
		if err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, Event) error {
	return nil
}
