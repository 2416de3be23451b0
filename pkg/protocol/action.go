// Package protocol defines the contracts between the engine, the action
// handlers, and the host application's collaborators.
package protocol

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jobdeck/automation/pkg/events"
)

// ActionContext carries everything a handler may read: the triggering event
// and the identifiers of the step being executed. StepID is the idempotency
// token; a retried invocation presents the same StepID, and collaborators
// must not produce a second side effect for it.
type ActionContext struct {
	TenantID    string
	WorkflowID  string
	ExecutionID string
	StepID      string
	Event       *events.TriggerEvent
}

// Suspension instructs the engine to park the execution until ResumeAt
// instead of advancing. Only the delay action produces one.
type Suspension struct {
	ResumeAt time.Time
}

// ActionResult is the outcome of a successful handler invocation. Output is
// recorded on the execution step (e.g. the id of a created record). A non-nil
// Suspend takes precedence over advancing to the next node.
type ActionResult struct {
	Output  string
	Suspend *Suspension
}

// Action is one registered, idempotent side-effecting handler.
type Action interface {
	Execute(ctx context.Context, actionCtx ActionContext, logger *slog.Logger) (*ActionResult, error)
}

// ActionFactory builds an Action from a node's decoded configuration and
// describes the configuration shape for validation.
type ActionFactory interface {
	ID() string
	Create(config map[string]any) (Action, error)
	Schema() map[string]any
}

// FailureCategory classifies a handler failure; the engine derives its retry
// policy from it.
type FailureCategory string

const (
	FailureValidation FailureCategory = "validation" // bad config, never retried
	FailureTransient  FailureCategory = "transient"  // network/timeout class, retried with backoff
	FailurePermanent  FailureCategory = "permanent"  // rejected by the target system, never retried
)

// ActionError wraps a handler failure with its machine-readable category.
type ActionError struct {
	Category FailureCategory
	Err      error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("%s failure: %v", e.Category, e.Err)
}

func (e *ActionError) Unwrap() error {
	return e.Err
}

func NewValidationFailure(err error) *ActionError {
	return &ActionError{Category: FailureValidation, Err: err}
}

func NewTransientFailure(err error) *ActionError {
	return &ActionError{Category: FailureTransient, Err: err}
}

func NewPermanentFailure(err error) *ActionError {
	return &ActionError{Category: FailurePermanent, Err: err}
}

// CategoryOf extracts the failure category of a handler error. Uncategorized
// errors and context deadline errors count as transient so that flaky
// collaborators get their retries.
func CategoryOf(err error) FailureCategory {
	var actionErr *ActionError
	if errors.As(err, &actionErr) {
		return actionErr.Category
	}

	return FailureTransient
}
