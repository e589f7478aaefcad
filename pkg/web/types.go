// Package web provides the HTTP handlers and request types of the flowline API.
package web

import (
	"github.com/dukex/flowline/pkg/models"
)

// TriggerRequest starts one execution of a workflow.
type TriggerRequest struct {
	WorkflowID string         `json:"workflow_id" validate:"required"`
	Data       map[string]any `json:"data"`
}

type TriggerResponse struct {
	ExecutionID string `json:"execution_id"`
}

// DispatchEventRequest starts every active workflow listening to Event.
type DispatchEventRequest struct {
	Event string         `json:"event" validate:"required"`
	Data  map[string]any `json:"data"`
}

type DispatchEventResponse struct {
	ExecutionIDs []string `json:"execution_ids"`
}

// WorkflowRequest is the body of workflow create and replace calls.
// IsActive defaults to true when omitted.
type WorkflowRequest struct {
	Name         string         `json:"name"          validate:"required"`
	Description  string         `json:"description"`
	TriggerType  string         `json:"trigger_type"  validate:"omitempty,oneof=manual event scheduled"`
	TriggerEvent string         `json:"trigger_event"`
	Schedule     string         `json:"schedule"`
	IsActive     *bool          `json:"is_active"`
	Steps        []*models.Step `json:"steps"         validate:"required,min=1"`
}

// Workflow converts the request into a definition for the workflow service.
func (r WorkflowRequest) Workflow() *models.Workflow {
	active := true
	if r.IsActive != nil {
		active = *r.IsActive
	}

	return &models.Workflow{
		Name:         r.Name,
		Description:  r.Description,
		TriggerType:  models.TriggerType(r.TriggerType),
		TriggerEvent: r.TriggerEvent,
		Schedule:     r.Schedule,
		Active:       active,
		Steps:        r.Steps,
	}
}

// UpdateWorkflowStatusRequest enables or disables a workflow.
type UpdateWorkflowStatusRequest struct {
	WorkflowID string `json:"workflow_id" validate:"required"`
	IsActive   *bool  `json:"is_active"   validate:"required"`
}

type RunSchedulerResponse struct {
	Processed int `json:"processed"`
}
