package models

import "time"

// ExecutionStatus is the state of one run of a workflow graph.
// running -> {running, suspended, completed, failed}
// suspended -> {running, failed}; completed and failed are terminal.
type ExecutionStatus string

const (
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusSuspended ExecutionStatus = "suspended"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
)

// IsTerminal reports whether the status admits no further transitions.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed
}

// FailureReasonCancelled marks an execution failed by operator cancellation
// rather than by a handler error.
const FailureReasonCancelled = "cancelled"

// StepOutcome records how one node resolved within an execution.
type StepOutcome string

const (
	StepOutcomeSuccess StepOutcome = "success"
	StepOutcomeFailure StepOutcome = "failure"
	StepOutcomeTrue    StepOutcome = "true"    // condition branch taken
	StepOutcomeFalse   StepOutcome = "false"   // condition branch taken
	StepOutcomeSkipped StepOutcome = "skipped" // not run, e.g. cancelled before the step
)

// Execution is one run of a workflow's graph for one matched event. Once
// completed or failed it is immutable history; suspended executions carry the
// resume point and are picked up by the sweep.
type Execution struct {
	ID              string           `json:"id"`
	WorkflowID      string           `json:"workflow_id" validate:"required"`
	TenantID        string           `json:"tenant_id"   validate:"required"`
	Status          ExecutionStatus  `json:"status"      validate:"required"`
	EventPayload    map[string]any   `json:"event_payload,omitempty"`
	ActorUserID     string           `json:"actor_user_id,omitempty"`
	ResumeAt        *time.Time       `json:"resume_at,omitempty"`
	ResumeNodeID    string           `json:"resume_node_id,omitempty"`
	FailureReason   string           `json:"failure_reason,omitempty"`
	CancelRequested bool             `json:"cancel_requested"`
	Steps           []*ExecutionStep `json:"steps,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	FinishedAt      *time.Time       `json:"finished_at,omitempty"`
}

// ExecutionStep is the append-only audit record of one node visit. Its ID
// doubles as the idempotency key handed to action handlers, so a retried
// handler invocation reuses the step id of the attempt it repeats.
type ExecutionStep struct {
	ID          string      `json:"id"`
	ExecutionID string      `json:"execution_id" validate:"required"`
	NodeID      string      `json:"node_id"      validate:"required"`
	Outcome     StepOutcome `json:"outcome"      validate:"required"`
	Attempt     int         `json:"attempt"`
	Error       string      `json:"error,omitempty"`
	Output      string      `json:"output,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

// HasVisited reports whether the execution already recorded a step for the
// given node. Used by the engine's defensive cycle check and by the sweep to
// avoid re-running actions that completed before a suspension.
func (e *Execution) HasVisited(nodeID string) bool {
	for _, step := range e.Steps {
		if step.NodeID == nodeID && step.Outcome != StepOutcomeSkipped {
			return true
		}
	}

	return false
}
