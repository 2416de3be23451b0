// Package events defines the inbound business-event contract and the
// execution lifecycle notifications published by the engine.
package events

import (
	"errors"
	"time"

	"github.com/jobdeck/automation/pkg/models"
)

// Well-known document fields the condition evaluator and handlers read from
// the triggering document.
const (
	DocumentFieldID         = "id"
	DocumentFieldCustomerID = "customer_id"
	DocumentFieldProjectID  = "project_id"
	DocumentFieldAssignedTo = "assigned_to"
	DocumentFieldCreatedBy  = "created_by"
)

var ErrMissingTriggerType = errors.New("trigger event has no trigger_type")

// TriggerEvent is the contract the host application uses to hand business
// events to the engine: one document snapshot plus the acting user. "Current
// user" in conditions and assignments always means ActorUserID, never the
// workflow author.
type TriggerEvent struct {
	TriggerType models.TriggerType `json:"trigger_type" validate:"required"`
	TenantID    string             `json:"tenant_id"    validate:"required"`
	Document    map[string]any     `json:"document"`
	ActorUserID string             `json:"actor_user_id"`
	OccurredAt  time.Time          `json:"occurred_at"`
}

// Validate checks the structural minimum the engine needs to match the event.
func (e *TriggerEvent) Validate() error {
	if e.TriggerType == "" {
		return ErrMissingTriggerType
	}

	return nil
}

// DocumentField reads a field from the triggering document, reporting whether
// it was present.
func (e *TriggerEvent) DocumentField(name string) (any, bool) {
	if e.Document == nil {
		return nil, false
	}

	value, ok := e.Document[name]

	return value, ok
}
