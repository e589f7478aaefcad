package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/dukex/flowline/pkg/models"
	"github.com/dukex/flowline/pkg/persistence"
	"github.com/dukex/flowline/pkg/services"
	cli "github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

var ErrNoWorkflows = errors.New("import file defines no workflows")

// WorkflowFile is the YAML document accepted by `workflows import`.
type WorkflowFile struct {
	Workflows []*models.Workflow `yaml:"workflows"`
}

func WorkflowsCommand() *cli.Command {
	return &cli.Command{
		Name:    "workflows",
		Aliases: []string{"wf"},
		Usage:   "Manage workflow definitions",
		Commands: []*cli.Command{
			{
				Name:      "import",
				Usage:     "Create or replace workflows from a YAML file",
				ArgsUsage: "<file.yaml>",
				Action: func(ctx context.Context, command *cli.Command) error {
					path := command.Args().First()
					if path == "" {
						return errors.New("a YAML file is required")
					}

					file, err := readWorkflowFile(path)
					if err != nil {
						return err
					}

					rt, err := newRuntime(ctx, command, "workflows")
					if err != nil {
						return err
					}

					defer func() { _ = rt.Close(context.Background()) }()

					imported, err := importWorkflows(ctx, services.NewWorkflow(rt.store), file)
					for _, workflow := range imported {
						fmt.Fprintf(command.Root().Writer, "%s\t%s\n", workflow.ID, workflow.Name)
					}

					return err
				},
			},
			{
				Name:  "list",
				Usage: "List workflow definitions",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "all",
						Usage: "Include inactive workflows",
					},
				},
				Action: func(ctx context.Context, command *cli.Command) error {
					rt, err := newRuntime(ctx, command, "workflows")
					if err != nil {
						return err
					}

					defer func() { _ = rt.Close(context.Background()) }()

					workflows, err := services.NewWorkflow(rt.store).List(ctx, !command.Bool("all"))
					if err != nil {
						return err
					}

					return printWorkflows(command.Root().Writer, workflows)
				},
			},
		},
	}
}

func readWorkflowFile(path string) (*WorkflowFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow file %s: %w", path, err)
	}

	var file WorkflowFile

	err = yaml.Unmarshal(data, &file)
	if err != nil {
		return nil, fmt.Errorf("failed to parse YAML workflows: %w", err)
	}

	if len(file.Workflows) == 0 {
		return nil, ErrNoWorkflows
	}

	// is_active defaults to true when a definition leaves it out.
	var flags struct {
		Workflows []struct {
			Active *bool `yaml:"is_active"`
		} `yaml:"workflows"`
	}

	err = yaml.Unmarshal(data, &flags)
	if err != nil {
		return nil, fmt.Errorf("failed to parse YAML workflows: %w", err)
	}

	for i, workflow := range flags.Workflows {
		if workflow.Active == nil && i < len(file.Workflows) && file.Workflows[i] != nil {
			file.Workflows[i].Active = true
		}
	}

	return &file, nil
}

// importWorkflows replaces workflows whose ID already exists and creates the
// rest. It stops at the first invalid definition.
func importWorkflows(ctx context.Context, service *services.Workflow, file *WorkflowFile) ([]*models.Workflow, error) {
	imported := make([]*models.Workflow, 0, len(file.Workflows))

	for i, workflow := range file.Workflows {
		if workflow == nil {
			return imported, fmt.Errorf("workflow %d: %w", i+1, services.ErrInvalidRequest)
		}

		var (
			saved *models.Workflow
			err   error
		)

		if workflow.ID != "" {
			saved, err = service.Update(ctx, workflow.ID, workflow)
			if persistence.IsWorkflowNotFound(err) {
				saved, err = service.Create(ctx, workflow)
			}
		} else {
			saved, err = service.Create(ctx, workflow)
		}

		if err != nil {
			return imported, fmt.Errorf("workflow %d (%s): %w", i+1, workflow.Name, err)
		}

		imported = append(imported, saved)
	}

	return imported, nil
}

func printWorkflows(w io.Writer, workflows []*models.Workflow) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintln(tw, "ID\tNAME\tTRIGGER\tACTIVE\tSTEPS")

	for _, workflow := range workflows {
		trigger := string(workflow.TriggerType)

		switch workflow.TriggerType {
		case models.TriggerTypeEvent:
			trigger += ":" + workflow.TriggerEvent
		case models.TriggerTypeScheduled:
			trigger += ":" + workflow.Schedule
		case models.TriggerTypeManual:
		}

		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n",
			workflow.ID, workflow.Name, trigger, strconv.FormatBool(workflow.Active), len(workflow.Steps))
	}

	return tw.Flush()
}
