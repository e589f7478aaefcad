// Package engine runs workflow executions: it triggers them, walks their steps,
// parks delayed steps as deferred tasks and resumes those tasks when they are due.
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/dukex/flowline/pkg/actions/httprequest"
	"github.com/dukex/flowline/pkg/eventbus"
	"github.com/dukex/flowline/pkg/events"
	"github.com/dukex/flowline/pkg/mailer"
	"github.com/dukex/flowline/pkg/models"
	"github.com/dukex/flowline/pkg/otelhelper"
	"github.com/dukex/flowline/pkg/persistence"
	"github.com/dukex/flowline/pkg/registry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultMaxRetries   = 3
	DefaultRetryBackoff = 5 * time.Minute
	DefaultBatchSize    = 50

	// defaultDelayMinutes applies to delay steps without duration_minutes.
	defaultDelayMinutes = 60
)

// Options wires the engine's collaborators. Only Store and Registry are required.
type Options struct {
	Store      persistence.Persistence
	Registry   *registry.Registry
	Mailer     mailer.Mailer
	HTTPClient *httprequest.Client
	Publisher  eventbus.EventPublisher
	Tracer     trace.Tracer
	Logger     *slog.Logger

	// Now is the engine clock. Defaults to time.Now in UTC.
	Now func() time.Time

	MaxRetries   int
	RetryBackoff time.Duration
	BatchSize    int
}

type Engine struct {
	store        persistence.Persistence
	registry     *registry.Registry
	mailer       mailer.Mailer
	http         *httprequest.Client
	publisher    eventbus.EventPublisher
	tracer       trace.Tracer
	logger       *slog.Logger
	now          func() time.Time
	maxRetries   int
	retryBackoff time.Duration
	batchSize    int
}

func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		store:        opts.Store,
		registry:     opts.Registry,
		mailer:       opts.Mailer,
		http:         opts.HTTPClient,
		publisher:    opts.Publisher,
		tracer:       opts.Tracer,
		logger:       logger.With("module", "engine"),
		now:          opts.Now,
		maxRetries:   opts.MaxRetries,
		retryBackoff: opts.RetryBackoff,
		batchSize:    opts.BatchSize,
	}

	if e.mailer == nil {
		e.mailer = mailer.NewLogMailer(logger)
	}

	if e.http == nil {
		e.http = httprequest.NewClient(logger, httprequest.DefaultTimeout)
	}

	if e.publisher == nil {
		e.publisher = eventbus.NopPublisher{}
	}

	if e.tracer == nil {
		e.tracer = otelhelper.NoopTracer()
	}

	if e.now == nil {
		e.now = time.Now
	}

	if e.maxRetries <= 0 {
		e.maxRetries = DefaultMaxRetries
	}

	if e.retryBackoff <= 0 {
		e.retryBackoff = DefaultRetryBackoff
	}

	if e.batchSize <= 0 {
		e.batchSize = DefaultBatchSize
	}

	return e
}

func (e *Engine) clock() time.Time {
	return e.now().UTC()
}

func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// record appends an execution log entry. Storage failures are logged, never returned.
func (e *Engine) record(ctx context.Context, executionID string, step *int, level models.LogLevel, message string, data map[string]any) {
	entry := &models.LogEntry{
		ID:          newID(),
		ExecutionID: executionID,
		StepNumber:  step,
		Level:       level,
		Message:     message,
		Data:        data,
		CreatedAt:   e.clock(),
	}

	attrs := []any{"execution_id", executionID, "level", level}
	if step != nil {
		attrs = append(attrs, "step", *step)
	}

	switch level {
	case models.LogLevelError:
		e.logger.ErrorContext(ctx, message, attrs...)
	case models.LogLevelWarning:
		e.logger.WarnContext(ctx, message, attrs...)
	default:
		e.logger.InfoContext(ctx, message, attrs...)
	}

	err := e.store.Logs().Append(ctx, entry)
	if err != nil {
		e.logger.ErrorContext(ctx, "failed to append execution log", "execution_id", executionID, "error", err)
	}
}

func (e *Engine) publish(ctx context.Context, executionID string, event eventbus.Event) {
	err := e.publisher.Publish(ctx, executionID, event)
	if err != nil {
		e.logger.WarnContext(ctx, "failed to publish event", "execution_id", executionID, "event_type", event.GetType(), "error", err)
	}
}

func (e *Engine) baseEvent(eventType events.EventType, execution *models.Execution) events.BaseEvent {
	base := events.NewBase(newID(), eventType, execution.WorkflowID, execution.ID)
	base.Timestamp = e.clock()

	return base
}

func stepRef(n int) *int {
	return &n
}
