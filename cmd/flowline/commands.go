package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dukex/flowline/pkg/actions/redispublish"
	"github.com/dukex/flowline/pkg/config"
	"github.com/dukex/flowline/pkg/scheduler"
	"github.com/dukex/flowline/pkg/triggers/queue"
	cli "github.com/urfave/cli/v3"
)

var ErrTriggerTarget = errors.New("either --workflow-id or --event is required")

func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start the API server and the embedded scheduler",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.BoolFlag{
				Name:    "no-scheduler",
				Usage:   "Do not poll deferred tasks or start scheduled workflows in this process",
				Sources: cli.EnvVars("NO_SCHEDULER"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			rt, err := newRuntime(ctx, command, "api")
			if err != nil {
				return err
			}

			defer func() {
				if err := rt.Close(context.Background()); err != nil {
					rt.logger.Error("Failed to release resources", "error", err)
				}
			}()

			rt.logger.InfoContext(ctx, "Initializing Flowline API", "port", rt.cfg.Port, "actions", rt.registry.Names())

			if rt.publishers.Bus != nil {
				err = followEvents(ctx, rt.publishers.Bus, rt.logger, false)
				if err != nil {
					return err
				}
			}

			if rt.cfg.Scheduler.Enabled && !command.Bool("no-scheduler") {
				s := scheduler.New(rt.engine, rt.store.Workflows(), rt.logger, scheduler.Options{
					PollSpec:  rt.cfg.Scheduler.Spec,
					Workflows: rt.cfg.Scheduler.Workflows,
				})

				err = s.Start(ctx)
				if err != nil {
					return fmt.Errorf("failed to start scheduler: %w", err)
				}

				defer s.Stop(context.Background())
			}

			if rt.cfg.Redis.Addr != "" && rt.cfg.Redis.EventQueue != "" {
				client, err := redispublish.Connect(ctx, rt.cfg.Redis.Addr, rt.cfg.Redis.Password, rt.cfg.Redis.DB)
				if err != nil {
					return err
				}

				defer func() { _ = client.Close() }()

				listener := queue.NewTrigger(client, rt.cfg.Redis.EventQueue, rt.engine, rt.logger)

				err = listener.Start(ctx)
				if err != nil {
					return fmt.Errorf("failed to start queue listener: %w", err)
				}

				defer listener.Stop(context.Background())
			}

			api := NewAPI(rt.logger, rt.store, rt.registry, rt.engine, rt.publishers.Publisher())

			return api.Start(ctx, rt.cfg.Port)
		},
	}
}

func RunSchedulerCommand() *cli.Command {
	return &cli.Command{
		Name:  "run-scheduler",
		Usage: "Resume every due deferred task once and exit",
		Action: func(ctx context.Context, command *cli.Command) error {
			rt, err := newRuntime(ctx, command, "scheduler")
			if err != nil {
				return err
			}

			defer func() { _ = rt.Close(context.Background()) }()

			processed, err := rt.engine.RunScheduler(ctx)

			fmt.Fprintf(command.Root().Writer, "processed %d deferred task(s)\n", processed)

			return err
		},
	}
}

func TriggerCommand() *cli.Command {
	return &cli.Command{
		Name:  "trigger",
		Usage: "Start a workflow, or every workflow listening to an event",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "workflow-id",
				Aliases: []string{"w"},
				Usage:   "ID of the workflow to start",
			},
			&cli.StringFlag{
				Name:    "event",
				Aliases: []string{"e"},
				Usage:   "Event name; starts every active workflow listening to it",
			},
			&cli.StringFlag{
				Name:    "data",
				Aliases: []string{"d"},
				Usage:   "Trigger data as a JSON object",
				Value:   "{}",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			data, err := parseTriggerData(command.String("data"))
			if err != nil {
				return err
			}

			workflowID, event := command.String("workflow-id"), command.String("event")
			if (workflowID == "") == (event == "") {
				return ErrTriggerTarget
			}

			rt, err := newRuntime(ctx, command, "trigger")
			if err != nil {
				return err
			}

			defer func() { _ = rt.Close(context.Background()) }()

			out := command.Root().Writer

			if event != "" {
				executionIDs, err := rt.engine.DispatchEvent(ctx, event, data)
				for _, id := range executionIDs {
					fmt.Fprintln(out, id)
				}

				return err
			}

			executionID, err := rt.engine.Trigger(ctx, workflowID, data)
			if err != nil {
				return err
			}

			fmt.Fprintln(out, executionID)

			return nil
		},
	}
}

func parseTriggerData(raw string) (map[string]any, error) {
	data := map[string]any{}

	if raw == "" {
		return data, nil
	}

	err := json.Unmarshal([]byte(raw), &data)
	if err != nil {
		return nil, fmt.Errorf("trigger data must be a JSON object: %w", err)
	}

	if data == nil {
		data = map[string]any{}
	}

	return data, nil
}

func EventsCommand() *cli.Command {
	return &cli.Command{
		Name:  "events",
		Usage: "Inspect execution lifecycle events",
		Commands: []*cli.Command{
			{
				Name:  "tail",
				Usage: "Print lifecycle events from the Kafka event bus until interrupted",
				Action: func(ctx context.Context, command *cli.Command) error {
					rt, err := newRuntime(ctx, command, "events")
					if err != nil {
						return err
					}

					defer func() { _ = rt.Close(context.Background()) }()

					if rt.cfg.Events.Provider != config.EventsProviderKafka {
						return fmt.Errorf("events tail needs the kafka event bus, got %q", rt.cfg.Events.Provider)
					}

					err = followEvents(ctx, rt.publishers.Bus, rt.logger, true)
					if err != nil {
						return err
					}

					<-ctx.Done()

					return nil
				},
			},
		},
	}
}
