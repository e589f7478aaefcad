package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/flowline/pkg/actions/httprequest"
	"github.com/dukex/flowline/pkg/channels/kafka"
	"github.com/dukex/flowline/pkg/cmd"
	"github.com/dukex/flowline/pkg/config"
	"github.com/dukex/flowline/pkg/engine"
	"github.com/dukex/flowline/pkg/log"
	"github.com/dukex/flowline/pkg/persistence"
	"github.com/dukex/flowline/pkg/registry"
	cli "github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"
)

// runtime holds the collaborators shared by every command.
type runtime struct {
	cfg        *config.Config
	logger     *slog.Logger
	store      persistence.Persistence
	registry   *registry.Registry
	publishers *cmd.Publishers
	tracer     trace.Tracer
	engine     *engine.Engine
	closers    []func(context.Context) error
}

// loadConfig reads the YAML file and applies explicitly set flags over it.
func loadConfig(command *cli.Command) (*config.Config, error) {
	cfg, err := config.Load(command.String("config"))
	if err != nil {
		return nil, err
	}

	if command.IsSet("database-url") || cfg.DatabaseURL == "" {
		cfg.DatabaseURL = command.String("database-url")
	}

	if command.IsSet("event-bus") {
		cfg.Events.Provider = command.String("event-bus")
	}

	if command.IsSet("kafka-brokers") {
		cfg.Events.KafkaBrokers = kafka.ParseBrokers(command.String("kafka-brokers"))
	}

	if command.IsSet("plugins-path") {
		cfg.PluginsPath = command.String("plugins-path")
	}

	if command.IsSet("log-level") {
		cfg.Log.Level = command.String("log-level")
	}

	if command.IsSet("log-format") {
		cfg.Log.Format = command.String("log-format")
	}

	if command.IsSet("port") {
		cfg.Port = command.Int("port")
	}

	err = cfg.Validate()
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

func newRuntime(ctx context.Context, command *cli.Command, module string) (*runtime, error) {
	cfg, err := loadConfig(command)
	if err != nil {
		return nil, err
	}

	log.Setup(cfg.Log.Level, cfg.Log.Format)

	rt := &runtime{cfg: cfg, logger: log.WithModule(module)}

	err = rt.open(ctx)
	if err != nil {
		closeErr := rt.Close(ctx)

		return nil, errors.Join(err, closeErr)
	}

	return rt, nil
}

func (rt *runtime) open(ctx context.Context) error {
	store, err := cmd.NewPersistence(ctx, rt.logger, rt.cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open persistence: %w", err)
	}

	rt.store = store
	rt.closers = append(rt.closers, store.Close)

	tracer, shutdown, err := cmd.NewTracer(ctx, rt.cfg.Tracing)
	if err != nil {
		return fmt.Errorf("failed to initialize tracer: %w", err)
	}

	rt.tracer = tracer
	rt.closers = append(rt.closers, shutdown)

	client := httprequest.NewClient(rt.logger, rt.cfg.Engine.HTTPTimeout)

	reg, cleanup, err := cmd.NewRegistry(ctx, rt.logger, rt.cfg, client)
	if err != nil {
		return fmt.Errorf("failed to build action registry: %w", err)
	}

	rt.registry = reg
	rt.closers = append(rt.closers, func(context.Context) error {
		cleanup()

		return nil
	})

	publishers, err := cmd.NewPublishers(ctx, rt.cfg, rt.logger)
	if err != nil {
		return fmt.Errorf("failed to open event publishers: %w", err)
	}

	rt.publishers = publishers
	rt.closers = append(rt.closers, func(context.Context) error {
		return publishers.Close()
	})

	rt.engine = engine.New(engine.Options{
		Store:        rt.store,
		Registry:     rt.registry,
		Mailer:       cmd.NewMailer(rt.cfg.SMTP, rt.logger),
		HTTPClient:   client,
		Publisher:    publishers.Publisher(),
		Tracer:       rt.tracer,
		Logger:       rt.logger,
		MaxRetries:   rt.cfg.Engine.MaxRetries,
		RetryBackoff: rt.cfg.Engine.RetryBackoff,
		BatchSize:    rt.cfg.Engine.BatchSize,
	})

	return nil
}

// Close releases resources in reverse order of acquisition.
func (rt *runtime) Close(ctx context.Context) error {
	var errs []error

	for i := len(rt.closers) - 1; i >= 0; i-- {
		err := rt.closers[i](ctx)
		if err != nil {
			errs = append(errs, err)
		}
	}

	rt.closers = nil

	return errors.Join(errs...)
}
