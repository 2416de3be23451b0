package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// ActionType identifies the side effect an action node performs.
type ActionType string

const (
	ActionCreateProject      ActionType = "create_project"
	ActionCreateServiceOrder ActionType = "create_service_order"
	ActionCreateInvoice      ActionType = "create_invoice"
	ActionCreateTask         ActionType = "create_task"
	ActionCreateChecklist    ActionType = "create_checklist"
	ActionCreateNote         ActionType = "create_note"
	ActionUpdateStatus       ActionType = "update_status"
	ActionSendEmail          ActionType = "send_email"
	ActionSendHelpdeskEmail  ActionType = "send_helpdesk_email"
	ActionAssignUser         ActionType = "assign_user"
	ActionAssignTicket       ActionType = "assign_ticket"
	ActionUpdateTicketStatus ActionType = "update_ticket_status"
	ActionDelay              ActionType = "delay"
)

// KnownActionTypes lists every action type the dispatcher handles.
var KnownActionTypes = []ActionType{
	ActionCreateProject,
	ActionCreateServiceOrder,
	ActionCreateInvoice,
	ActionCreateTask,
	ActionCreateChecklist,
	ActionCreateNote,
	ActionUpdateStatus,
	ActionSendEmail,
	ActionSendHelpdeskEmail,
	ActionAssignUser,
	ActionAssignTicket,
	ActionUpdateTicketStatus,
	ActionDelay,
}

// DelayUnit is the time unit of a delay action.
type DelayUnit string

const (
	DelayUnitMinutes DelayUnit = "minutes"
	DelayUnitHours   DelayUnit = "hours"
	DelayUnitDays    DelayUnit = "days"
)

// AssignmentType selects how assign_user / assign_ticket pick the assignee.
type AssignmentType string

const (
	AssignCurrentUser  AssignmentType = "current_user"
	AssignSpecificUser AssignmentType = "specific_user"
	AssignRoundRobin   AssignmentType = "round_robin"
)

// CreateRecordConfig is the decoded config shared by the create_* actions.
// Title maps to the primary display field of the created record (project name,
// task title, note subject and so on).
type CreateRecordConfig struct {
	Title       string `json:"title"       validate:"required"`
	Description string `json:"description"`
	Status      string `json:"status"`
	DueInDays   int    `json:"due_in_days" validate:"min=0"`
}

// UpdateStatusConfig is the decoded config of update_status and
// update_ticket_status.
type UpdateStatusConfig struct {
	Status string `json:"status" validate:"required"`
}

// SendEmailConfig is the decoded config of send_email and send_helpdesk_email.
// Message is recommended but not required; the validator downgrades a blank
// message to a warning.
type SendEmailConfig struct {
	To      string `json:"to"      validate:"required"`
	Subject string `json:"subject" validate:"required"`
	Message string `json:"message"`
}

// AssignConfig is the decoded config of assign_user and assign_ticket.
// UserID is required only for specific_user assignment.
type AssignConfig struct {
	AssignmentType AssignmentType `json:"assignment_type" validate:"required,oneof=current_user specific_user round_robin"`
	UserID         string         `json:"user_id"`
}

// DelayConfig is the decoded config of a delay action.
type DelayConfig struct {
	Duration int       `json:"duration" validate:"required,gt=0"`
	Unit     DelayUnit `json:"unit"     validate:"required,oneof=minutes hours days"`
}

// Interval converts the configured delay into a time.Duration.
func (d *DelayConfig) Interval() time.Duration {
	switch d.Unit {
	case DelayUnitMinutes:
		return time.Duration(d.Duration) * time.Minute
	case DelayUnitHours:
		return time.Duration(d.Duration) * time.Hour
	case DelayUnitDays:
		return time.Duration(d.Duration) * 24 * time.Hour
	default:
		return 0
	}
}

// DecodeActionConfig decodes a raw config map into the typed record for the
// given action type. Unknown action types are rejected so that adding a new
// action forces a decision here as well as in the dispatcher.
func DecodeActionConfig(actionType ActionType, config map[string]any) (any, error) {
	var target any

	switch actionType {
	case ActionCreateProject, ActionCreateServiceOrder, ActionCreateInvoice,
		ActionCreateTask, ActionCreateChecklist, ActionCreateNote:
		target = &CreateRecordConfig{}
	case ActionUpdateStatus, ActionUpdateTicketStatus:
		target = &UpdateStatusConfig{}
	case ActionSendEmail, ActionSendHelpdeskEmail:
		target = &SendEmailConfig{}
	case ActionAssignUser, ActionAssignTicket:
		target = &AssignConfig{}
	case ActionDelay:
		target = &DelayConfig{}
	default:
		return nil, fmt.Errorf("unknown action type %q", actionType)
	}

	raw, err := json.Marshal(config)
	if err != nil {
		return nil, fmt.Errorf("failed to encode action config: %w", err)
	}

	if err := json.Unmarshal(raw, target); err != nil {
		return nil, fmt.Errorf("failed to decode %s config: %w", actionType, err)
	}

	return target, nil
}
