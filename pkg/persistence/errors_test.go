package persistence_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/dukex/flowline/pkg/persistence"
	"github.com/stretchr/testify/assert"
)

func TestStandardizedErrors(t *testing.T) {
	t.Parallel()

	t.Run("error checking functions work correctly", func(t *testing.T) {
		workflowErr := persistence.NewWorkflowError("GetByID", "workflow-123", persistence.ErrWorkflowNotFound)
		executionErr := persistence.NewExecutionError("GetByID", "exec-1", persistence.ErrExecutionNotFound)
		taskErr := persistence.NewTaskError("Create", "task-1", persistence.ErrActiveTaskExists)

		assert.True(t, persistence.IsWorkflowNotFound(workflowErr))
		assert.True(t, persistence.IsExecutionNotFound(executionErr))
		assert.True(t, persistence.IsActiveTaskExists(taskErr))
		assert.True(t, persistence.IsNotFound(executionErr))
		assert.False(t, persistence.IsNotFound(taskErr))

		assert.True(t, errors.Is(workflowErr, persistence.ErrWorkflowNotFound))
	})

	t.Run("entity error contains context", func(t *testing.T) {
		err := persistence.NewExecutionError("Finish", "exec-9", persistence.ErrExecutionNotFound)

		assert.Contains(t, err.Error(), "Finish")
		assert.Contains(t, err.Error(), "execution exec-9")
		assert.Contains(t, err.Error(), "execution not found")
	})

	t.Run("wrapped errors are still detected", func(t *testing.T) {
		err := fmt.Errorf("load: %w", persistence.NewTaskError("GetByID", "t", persistence.ErrTaskNotFound))

		assert.True(t, persistence.IsTaskNotFound(err))
	})
}
