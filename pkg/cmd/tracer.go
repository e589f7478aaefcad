package cmd

import (
	"context"

	"github.com/dukex/flowline/pkg/config"
	"github.com/dukex/flowline/pkg/otelhelper"
	"go.opentelemetry.io/otel/trace"
)

// NewTracer returns an OTLP tracer when tracing is enabled and a no-op one otherwise.
func NewTracer(ctx context.Context, cfg config.TracingConfig) (trace.Tracer, otelhelper.ShutdownFunc, error) {
	if !cfg.Enabled {
		return otelhelper.NoopTracer(), func(context.Context) error { return nil }, nil
	}

	return otelhelper.NewTracer(ctx, cfg.ServiceName)
}
