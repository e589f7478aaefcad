package main

import (
	"context"
	"log/slog"

	"github.com/dukex/flowline/pkg/eventbus"
	"github.com/dukex/flowline/pkg/events"
)

// followEvents logs every lifecycle event received from bus, at info level when
// verbose and at debug level otherwise.
func followEvents(ctx context.Context, bus eventbus.EventSubscriber, logger *slog.Logger, verbose bool) error {
	level := slog.LevelDebug
	if verbose {
		level = slog.LevelInfo
	}

	for _, eventType := range events.AllTypes {
		err := bus.Handle(eventType, func(ctx context.Context, event any) error {
			attrs := []any{"event_type", eventType}

			if based, ok := event.(interface{ Base() events.BaseEvent }); ok {
				base := based.Base()
				attrs = append(attrs,
					"event_id", base.ID,
					"workflow_id", base.WorkflowID,
					"execution_id", base.ExecutionID,
					"timestamp", base.Timestamp,
				)
			}

			logger.Log(ctx, level, "Lifecycle event", attrs...)

			return nil
		})
		if err != nil {
			return err
		}
	}

	return bus.Subscribe(ctx)
}
