package engine

import (
	"errors"
	"fmt"

	"github.com/dukex/flowline/pkg/models"
	"github.com/dukex/flowline/pkg/persistence"
)

var (
	// ErrWorkflowInactive is reported as not found so callers cannot trigger disabled workflows.
	ErrWorkflowInactive = fmt.Errorf("workflow is inactive: %w", persistence.ErrWorkflowNotFound)

	ErrUnknownStepType    = errors.New("unknown step type")
	ErrActionRequired     = errors.New("action name is required")
	ErrMaxRetriesExceeded = errors.New("task failed after max retries")
	ErrEventRequired      = errors.New("event name is required")
)

// ActionFailure is the error of a single step dispatch.
type ActionFailure struct {
	StepNumber int
	StepType   models.StepType
	Err        error
}

func (e *ActionFailure) Error() string {
	return fmt.Sprintf("step %d (%s) failed: %v", e.StepNumber, e.StepType, e.Err)
}

func (e *ActionFailure) Unwrap() error {
	return e.Err
}

func IsActionFailure(err error) bool {
	var failure *ActionFailure

	return errors.As(err, &failure)
}
