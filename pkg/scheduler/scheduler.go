// Package scheduler embeds a cron runner in the flowline server. It polls due
// deferred tasks on a fixed spec and starts active scheduled workflows on their
// own cron expressions.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/flowline/pkg/models"
	"github.com/dukex/flowline/pkg/persistence"
	"github.com/robfig/cron/v3"
)

const (
	DefaultPollSpec = "@every 1m"
	DefaultSyncSpec = "@every 1m"
)

// Engine is the part of the workflow engine the scheduler drives.
type Engine interface {
	Trigger(ctx context.Context, workflowID string, triggerData map[string]any) (string, error)
	RunScheduler(ctx context.Context) (int, error)
}

type Options struct {
	// PollSpec is the cron expression of the deferred task poller.
	PollSpec string
	// SyncSpec controls how often scheduled workflow definitions are reloaded.
	SyncSpec string
	// Workflows enables cron starts of scheduled workflows.
	Workflows bool
}

type entry struct {
	schedule string
	id       cron.EntryID
}

type Scheduler struct {
	engine    Engine
	workflows persistence.WorkflowRepository
	logger    *slog.Logger
	opts      Options
	cron      *cron.Cron

	mu      sync.Mutex
	ctx     context.Context
	entries map[string]entry
}

func New(engine Engine, workflows persistence.WorkflowRepository, logger *slog.Logger, opts Options) *Scheduler {
	if opts.PollSpec == "" {
		opts.PollSpec = DefaultPollSpec
	}

	if opts.SyncSpec == "" {
		opts.SyncSpec = DefaultSyncSpec
	}

	logger = logger.With("module", "scheduler")
	cronLogger := &cronLogger{logger: logger}

	return &Scheduler{
		engine:    engine,
		workflows: workflows,
		logger:    logger,
		opts:      opts,
		cron: cron.New(cron.WithLogger(cronLogger), cron.WithChain(
			cron.SkipIfStillRunning(cronLogger),
			cron.Recover(cronLogger),
		)),
		ctx:     context.Background(),
		entries: make(map[string]entry),
	}
}

// Start registers the jobs and starts the cron runner in its own goroutine.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	_, err := s.cron.AddFunc(s.opts.PollSpec, s.poll)
	if err != nil {
		return fmt.Errorf("invalid poll spec %q: %w", s.opts.PollSpec, err)
	}

	if s.opts.Workflows {
		err = s.Sync(ctx)
		if err != nil {
			return err
		}

		_, err = s.cron.AddFunc(s.opts.SyncSpec, func() {
			if err := s.Sync(s.context()); err != nil {
				s.logger.Error("Failed to sync scheduled workflows", "error", err)
			}
		})
		if err != nil {
			return fmt.Errorf("invalid sync spec %q: %w", s.opts.SyncSpec, err)
		}
	}

	s.logger.InfoContext(ctx, "Starting scheduler", "poll_spec", s.opts.PollSpec, "workflows", s.opts.Workflows)
	s.cron.Start()

	return nil
}

// Stop stops the runner and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	s.logger.InfoContext(ctx, "Stopping scheduler")

	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// Sync reconciles cron entries with the active scheduled workflows: new or
// changed schedules are (re)added and removed or disabled workflows dropped.
func (s *Scheduler) Sync(ctx context.Context) error {
	workflows, err := s.workflows.ListActiveByTrigger(ctx, models.TriggerTypeScheduled)
	if err != nil {
		return fmt.Errorf("failed to list scheduled workflows: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool, len(workflows))

	for _, workflow := range workflows {
		seen[workflow.ID] = true

		current, ok := s.entries[workflow.ID]
		if ok && current.schedule == workflow.Schedule {
			continue
		}

		if ok {
			s.cron.Remove(current.id)
		}

		id, err := s.cron.AddFunc(workflow.Schedule, s.fire(workflow.ID, workflow.Schedule))
		if err != nil {
			delete(s.entries, workflow.ID)
			s.logger.WarnContext(ctx, "Skipping workflow with invalid schedule",
				"workflow_id", workflow.ID, "schedule", workflow.Schedule, "error", err)

			continue
		}

		s.entries[workflow.ID] = entry{schedule: workflow.Schedule, id: id}
		s.logger.InfoContext(ctx, "Scheduled workflow", "workflow_id", workflow.ID, "schedule", workflow.Schedule)
	}

	for workflowID, current := range s.entries {
		if seen[workflowID] {
			continue
		}

		s.cron.Remove(current.id)
		delete(s.entries, workflowID)
		s.logger.InfoContext(ctx, "Unscheduled workflow", "workflow_id", workflowID)
	}

	return nil
}

// Scheduled returns the workflow IDs that currently have a cron entry.
func (s *Scheduler) Scheduled() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	scheduled := make(map[string]string, len(s.entries))
	for workflowID, current := range s.entries {
		scheduled[workflowID] = current.schedule
	}

	return scheduled
}

func (s *Scheduler) context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.ctx
}

func (s *Scheduler) poll() {
	ctx := s.context()

	processed, err := s.engine.RunScheduler(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "Scheduler run failed", "processed", processed, "error", err)

		return
	}

	if processed > 0 {
		s.logger.InfoContext(ctx, "Processed deferred tasks", "processed", processed)
	}
}

func (s *Scheduler) fire(workflowID, schedule string) func() {
	return func() {
		ctx := s.context()

		triggerData := map[string]any{
			"scheduled_at": time.Now().UTC().Format(time.RFC3339),
			"schedule":     schedule,
		}

		executionID, err := s.engine.Trigger(ctx, workflowID, triggerData)
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to start scheduled workflow", "workflow_id", workflowID, "error", err)

			return
		}

		s.logger.InfoContext(ctx, "Started scheduled workflow", "workflow_id", workflowID, "execution_id", executionID)
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l *cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
