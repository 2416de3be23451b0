package web

import (
	"github.com/jobdeck/automation/pkg/models"
	"github.com/jobdeck/automation/pkg/validation"
)

// CreateWorkflowRequest carries a full workflow definition. New workflows
// always start in draft status.
type CreateWorkflowRequest struct {
	Name        string                 `json:"name"         validate:"required,min=3,max=100"`
	Description string                 `json:"description"  validate:"max=500"`
	TriggerType models.TriggerType     `json:"trigger_type" validate:"required"`
	Nodes       []*models.WorkflowNode `json:"nodes"`
	Connections []*models.Connection   `json:"connections"`
}

// UpdateWorkflowRequest replaces the definition of a draft workflow. Nil
// fields keep their current value.
type UpdateWorkflowRequest struct {
	Name        *string                `json:"name"         validate:"omitempty,min=3,max=100"`
	Description *string                `json:"description"  validate:"omitempty,max=500"`
	TriggerType *models.TriggerType    `json:"trigger_type"`
	Nodes       []*models.WorkflowNode `json:"nodes"`
	Connections []*models.Connection   `json:"connections"`
}

// ValidationResponse is returned by the validate and activate endpoints.
type ValidationResponse struct {
	Valid  bool               `json:"valid"`
	Issues []validation.Issue `json:"issues"`
}
