// Package log provides the `log` action, which writes its message to the
// process logger. It is the default action for smoke-testing workflows.
package log

import (
	"context"
	"log/slog"
)

type Action struct {
	logger *slog.Logger
}

func NewAction(logger *slog.Logger) *Action {
	return &Action{logger: logger.With("action_type", "log")}
}

func (*Action) ID() string {
	return "log"
}

// Execute logs config["message"] at config["level"] (debug, info, warn, error).
func (a *Action) Execute(ctx context.Context, config map[string]any, triggerData map[string]any) error {
	message, _ := config["message"].(string)
	if message == "" {
		message = "Log action executed"
	}

	level, _ := config["level"].(string)

	a.logger.Log(ctx, parseLevel(level), message, "trigger_data", triggerData)

	return nil
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
