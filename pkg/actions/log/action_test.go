package log

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAction_Execute(t *testing.T) {
	tests := []struct {
		name          string
		config        map[string]any
		expectedMsg   string
		expectedLevel string
	}{
		{
			name:          "nil config",
			config:        nil,
			expectedMsg:   "Log action executed",
			expectedLevel: "INFO",
		},
		{
			name:          "message only",
			config:        map[string]any{"message": "Hello, World!"},
			expectedMsg:   "Hello, World!",
			expectedLevel: "INFO",
		},
		{
			name:          "message with warn level",
			config:        map[string]any{"message": "careful", "level": "warn"},
			expectedMsg:   "careful",
			expectedLevel: "WARN",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer

			logger := slog.New(slog.NewTextHandler(&buf, nil))
			action := NewAction(logger)

			err := action.Execute(context.Background(), tt.config, map[string]any{"user": "ana"})
			require.NoError(t, err)

			output := buf.String()
			assert.Contains(t, output, tt.expectedMsg)
			assert.Contains(t, output, "level="+tt.expectedLevel)
			assert.Contains(t, output, "action_type=log")
		})
	}
}

func TestAction_ID(t *testing.T) {
	assert.Equal(t, "log", NewAction(slog.Default()).ID())
}
