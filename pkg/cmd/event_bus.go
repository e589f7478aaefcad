package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/flowline/pkg/channels/gochannel"
	"github.com/dukex/flowline/pkg/channels/kafka"
	"github.com/dukex/flowline/pkg/config"
	"github.com/dukex/flowline/pkg/eventbus"
)

// NewEventBus creates the lifecycle event bus. The none provider returns nil.
func NewEventBus(cfg config.EventsConfig, logger *slog.Logger) (eventbus.EventBus, error) {
	wmLogger := watermill.NewSlogLogger(logger)

	switch cfg.Provider {
	case config.EventsProviderNone:
		return nil, nil //nolint:nilnil
	case config.EventsProviderGoChannel:
		pub, sub, err := gochannel.CreateChannel(wmLogger)
		if err != nil {
			return nil, fmt.Errorf("failed to create Go channel pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub), nil
	case config.EventsProviderKafka:
		pub, sub, err := kafka.CreateChannel(wmLogger, cfg.KafkaBrokers, cfg.ServiceName)
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub), nil
	default:
		return nil, fmt.Errorf("unsupported event bus provider: %s", cfg.Provider)
	}
}

// Publishers bundles the event sinks the engine publishes to.
type Publishers struct {
	Bus    eventbus.EventBus
	Influx *eventbus.InfluxPublisher
}

// NewPublishers opens the event bus and, when configured, the InfluxDB sink.
func NewPublishers(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Publishers, error) {
	bus, err := NewEventBus(cfg.Events, logger)
	if err != nil {
		return nil, err
	}

	publishers := &Publishers{Bus: bus}

	if cfg.InfluxDB.URL != "" {
		influx, err := eventbus.ConnectInflux(ctx, logger,
			cfg.InfluxDB.URL, cfg.InfluxDB.Token, cfg.InfluxDB.Org, cfg.InfluxDB.Bucket)
		if err != nil {
			_ = publishers.Close()

			return nil, err
		}

		publishers.Influx = influx
	}

	return publishers, nil
}

// Publisher returns one publisher fanning out to every configured sink.
func (p *Publishers) Publisher() eventbus.EventPublisher {
	var multi eventbus.MultiPublisher

	if p.Bus != nil {
		multi = append(multi, p.Bus)
	}

	if p.Influx != nil {
		multi = append(multi, p.Influx)
	}

	if len(multi) == 0 {
		return eventbus.NopPublisher{}
	}

	return multi
}

func (p *Publishers) Close() error {
	var err error

	if p.Influx != nil {
		err = p.Influx.Close()
	}

	if p.Bus != nil {
		if closeErr := p.Bus.Close(); closeErr != nil {
			err = closeErr
		}
	}

	return err
}
