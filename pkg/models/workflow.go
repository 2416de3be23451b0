// Package models defines the core domain models for node-based workflow automation
package models

import "time"

// WorkflowStatus represents the lifecycle state of a workflow.
type WorkflowStatus string

const (
	WorkflowStatusDraft    WorkflowStatus = "draft"    // Editable, not executable
	WorkflowStatusActive   WorkflowStatus = "active"   // Validated, matched against incoming events
	WorkflowStatusArchived WorkflowStatus = "archived" // Historical, not executable
)

// TriggerType identifies the business event a workflow reacts to.
type TriggerType string

const (
	TriggerQuoteApproved         TriggerType = "quote_approved"
	TriggerQuoteRejected         TriggerType = "quote_rejected"
	TriggerInvoiceSent           TriggerType = "invoice_sent"
	TriggerInvoicePaid           TriggerType = "invoice_paid"
	TriggerServiceOrderCompleted TriggerType = "service_order_completed"
	TriggerProjectCreated        TriggerType = "project_created"
	TriggerTicketCreated         TriggerType = "ticket_created"
	TriggerTicketUpdated         TriggerType = "ticket_updated"
)

// KnownTriggerTypes lists every trigger type the engine matches on.
var KnownTriggerTypes = []TriggerType{
	TriggerQuoteApproved,
	TriggerQuoteRejected,
	TriggerInvoiceSent,
	TriggerInvoicePaid,
	TriggerServiceOrderCompleted,
	TriggerProjectCreated,
	TriggerTicketCreated,
	TriggerTicketUpdated,
}

// Workflow represents a user-authored automation graph bound to one trigger type.
// Deactivating a workflow does not touch in-flight executions.
type Workflow struct {
	ID          string          `json:"id"`
	TenantID    string          `json:"tenant_id"   validate:"required"`
	Name        string          `json:"name"        validate:"required,min=3"`
	Description string          `json:"description"`
	TriggerType TriggerType     `json:"trigger_type" validate:"required"`
	Status      WorkflowStatus  `json:"status"       validate:"required"`
	Nodes       []*WorkflowNode `json:"nodes"`
	Connections []*Connection   `json:"connections"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	DeletedAt   *time.Time      `json:"deleted_at,omitempty"`
}

func (w *Workflow) IsActive() bool {
	return w.Status == WorkflowStatusActive && w.DeletedAt == nil
}

// TriggerNode returns the workflow's trigger node, or nil when absent.
// Structural uniqueness of the trigger is the validator's concern.
func (w *Workflow) TriggerNode() *WorkflowNode {
	for _, node := range w.Nodes {
		if node.Kind == NodeKindTrigger {
			return node
		}
	}

	return nil
}
