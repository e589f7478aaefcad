package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrWorkflowNotFound indicates a workflow was not found by the given identifier.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrExecutionNotFound indicates an execution was not found by the given identifier.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrTaskNotFound indicates a deferred task was not found by the given identifier.
	ErrTaskNotFound = errors.New("deferred task not found")

	// ErrActiveTaskExists indicates the execution already has an active task for the step.
	ErrActiveTaskExists = errors.New("active deferred task already exists for step")
)

// EntityError wraps repository errors with the operation and record involved.
type EntityError struct {
	Op     string // Operation being performed (e.g., "GetByID", "Create", "Claim")
	Entity string // "workflow", "execution", "task" or "log"
	ID     string
	Err    error
}

func (e *EntityError) Error() string {
	return fmt.Sprintf("%s operation failed for %s %s: %v", e.Op, e.Entity, e.ID, e.Err)
}

func (e *EntityError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for entity errors.
func (e *EntityError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func NewWorkflowError(op, workflowID string, err error) *EntityError {
	return &EntityError{Op: op, Entity: "workflow", ID: workflowID, Err: err}
}

func NewExecutionError(op, executionID string, err error) *EntityError {
	return &EntityError{Op: op, Entity: "execution", ID: executionID, Err: err}
}

func NewTaskError(op, taskID string, err error) *EntityError {
	return &EntityError{Op: op, Entity: "task", ID: taskID, Err: err}
}

// IsWorkflowNotFound checks if an error indicates a workflow was not found.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// IsExecutionNotFound checks if an error indicates an execution was not found.
func IsExecutionNotFound(err error) bool {
	return errors.Is(err, ErrExecutionNotFound)
}

func IsTaskNotFound(err error) bool {
	return errors.Is(err, ErrTaskNotFound)
}

func IsActiveTaskExists(err error) bool {
	return errors.Is(err, ErrActiveTaskExists)
}

// IsNotFound reports any of the not-found errors.
func IsNotFound(err error) bool {
	return IsWorkflowNotFound(err) || IsExecutionNotFound(err) || IsTaskNotFound(err)
}
