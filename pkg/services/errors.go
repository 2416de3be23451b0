// Package services provides the API-facing operations on workflows and
// executions, sitting between the web layer and persistence.
package services

import (
	"errors"
	"fmt"
)

// Business logic errors. These map to client errors (4xx) at the web layer.
var (
	// Validation errors (400 Bad Request).
	ErrInvalidRequest     = errors.New("invalid request")
	ErrWorkflowNil        = errors.New("workflow cannot be nil")
	ErrNameRequired       = errors.New("workflow name is required")
	ErrTenantRequired     = errors.New("tenant id is required")
	ErrUnknownTriggerType = errors.New("unknown trigger type")
	ErrInvalidStatus      = errors.New("invalid workflow status")

	// Business logic conflicts (409 Conflict).
	ErrWorkflowNotEditable = errors.New("only draft workflows can be modified")
	ErrWorkflowNotValid    = errors.New("workflow has validation errors and cannot be activated")
	ErrExecutionFinished   = errors.New("execution already finished")
	ErrTenantMismatch      = errors.New("resource belongs to another tenant")
)

// ServiceError wraps service-level errors with operation context.
type ServiceError struct {
	Op      string
	Code    string
	Message string
	Err     error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError reports whether an error should surface as HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrWorkflowNil) ||
		errors.Is(err, ErrNameRequired) ||
		errors.Is(err, ErrTenantRequired) ||
		errors.Is(err, ErrUnknownTriggerType) ||
		errors.Is(err, ErrInvalidStatus)
}

// IsConflictError reports whether an error should surface as HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrWorkflowNotEditable) ||
		errors.Is(err, ErrWorkflowNotValid) ||
		errors.Is(err, ErrExecutionFinished) ||
		errors.Is(err, ErrTenantMismatch)
}

// NewValidationError creates a validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
