// Package models defines the domain models for step-based workflow automation.
package models

import (
	"slices"
	"time"
)

// TriggerType describes how executions of a workflow are started.
type TriggerType string

const (
	TriggerTypeManual    TriggerType = "manual"    // Started by an explicit trigger call
	TriggerTypeEvent     TriggerType = "event"     // Started when a named event is dispatched
	TriggerTypeScheduled TriggerType = "scheduled" // Started by the cron runner
)

func (t TriggerType) Valid() bool {
	switch t {
	case TriggerTypeManual, TriggerTypeEvent, TriggerTypeScheduled:
		return true
	default:
		return false
	}
}

// StepType selects the dispatch branch of the step executor.
type StepType string

const (
	StepTypeEmail     StepType = "email"
	StepTypeAction    StepType = "action"
	StepTypeDelay     StepType = "delay"
	StepTypeCondition StepType = "condition"
	StepTypeAPICall   StepType = "api_call"
)

// StepTypes lists every step type the executor can dispatch.
var StepTypes = []StepType{StepTypeEmail, StepTypeAction, StepTypeDelay, StepTypeCondition, StepTypeAPICall}

func (s StepType) Valid() bool {
	return slices.Contains(StepTypes, s)
}

// Workflow is a named, ordered template of steps.
type Workflow struct {
	ID           string      `json:"id"                      yaml:"id,omitempty"`
	Name         string      `json:"name"                    yaml:"name"                    validate:"required"`
	Description  string      `json:"description"             yaml:"description"`
	TriggerType  TriggerType `json:"trigger_type"            yaml:"trigger_type"            validate:"omitempty,oneof=manual event scheduled"`
	TriggerEvent string      `json:"trigger_event,omitempty" yaml:"trigger_event,omitempty"`
	Schedule     string      `json:"schedule,omitempty"      yaml:"schedule,omitempty"`
	Active       bool        `json:"is_active"               yaml:"is_active"`
	Steps        []*Step     `json:"steps"                   yaml:"steps"                   validate:"required,min=1,dive,required"`
	CreatedAt    time.Time   `json:"created_at"              yaml:"-"`
	UpdatedAt    time.Time   `json:"updated_at"              yaml:"-"`
}

// Step is one unit of work inside a workflow.
type Step struct {
	ID           string         `json:"id"                  yaml:"-"`
	StepNumber   int            `json:"step_number"         yaml:"step_number"         validate:"min=0"`
	Type         StepType       `json:"step_type"           yaml:"step_type"           validate:"required,oneof=email action delay condition api_call"`
	Config       map[string]any `json:"config"              yaml:"config"`
	DelayMinutes int            `json:"delay_minutes"       yaml:"delay_minutes"       validate:"min=0"`
	Condition    *Condition     `json:"condition,omitempty" yaml:"condition,omitempty"`
}

// Condition gates a step on a single top-level trigger data field.
type Condition struct {
	Check    string `json:"check"    yaml:"check"    validate:"required"`
	Operator string `json:"operator" yaml:"operator"`
	Value    any    `json:"value"    yaml:"value"`
}

// FindStep returns the step with the given number, or nil.
func FindStep(steps []*Step, number int) *Step {
	for _, step := range steps {
		if step.StepNumber == number {
			return step
		}
	}

	return nil
}

// LastStepNumber returns the highest step number, or 0 for an empty list.
func LastStepNumber(steps []*Step) int {
	last := 0

	for _, step := range steps {
		if step.StepNumber > last {
			last = step.StepNumber
		}
	}

	return last
}

// StringConfig returns a string config value, or fallback when absent or not a string.
func (s *Step) StringConfig(key, fallback string) string {
	if v, ok := s.Config[key].(string); ok && v != "" {
		return v
	}

	return fallback
}

// IntConfig returns an integer config value. JSON numbers arrive as float64.
func (s *Step) IntConfig(key string, fallback int) int {
	switch v := s.Config[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return fallback
	}
}
