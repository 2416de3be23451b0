package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jobdeck/automation/pkg/models"
	"github.com/jobdeck/automation/pkg/persistence"
)

// ErrExecutionNotFound is returned when an execution does not exist or
// belongs to another tenant.
var ErrExecutionNotFound = persistence.ErrExecutionNotFound

// Execution exposes the operator-facing view of execution history plus
// cancellation.
type Execution struct {
	logger      *slog.Logger
	persistence persistence.Persistence
}

func NewExecution(logger *slog.Logger, persist persistence.Persistence) *Execution {
	return &Execution{
		logger:      logger.With("module", "execution_service"),
		persistence: persist,
	}
}

// ListExecutionsRequest filters the execution history of a tenant.
type ListExecutionsRequest struct {
	TenantID   string
	WorkflowID string
	Status     *models.ExecutionStatus
	Limit      int
	Offset     int
}

// List returns a tenant's executions, newest first.
func (e *Execution) List(ctx context.Context, req ListExecutionsRequest) ([]*models.Execution, error) {
	if req.TenantID == "" {
		return nil, ErrTenantRequired
	}

	if req.Limit <= 0 {
		req.Limit = 20
	}

	if req.Limit > 100 {
		req.Limit = 100
	}

	if req.Offset < 0 {
		req.Offset = 0
	}

	if req.Status != nil {
		switch *req.Status {
		case models.ExecutionStatusRunning,
			models.ExecutionStatusSuspended,
			models.ExecutionStatusCompleted,
			models.ExecutionStatusFailed:
		default:
			return nil, NewValidationError(
				"List",
				"INVALID_STATUS",
				fmt.Sprintf("invalid execution status %q", *req.Status),
				ErrInvalidStatus,
			)
		}
	}

	executions, err := e.persistence.ExecutionRepository().ListExecutions(ctx, persistence.ListExecutionsOptions{
		TenantID:   req.TenantID,
		WorkflowID: req.WorkflowID,
		Status:     req.Status,
		Limit:      req.Limit,
		Offset:     req.Offset,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}

	return executions, nil
}

// FetchByID returns a tenant's execution with its full step history.
func (e *Execution) FetchByID(ctx context.Context, tenantID, id string) (*models.Execution, error) {
	execution, err := e.persistence.ExecutionRepository().GetExecution(ctx, id)
	if err != nil {
		return nil, err
	}

	if execution.TenantID != tenantID {
		return nil, ErrExecutionNotFound
	}

	return execution, nil
}

// Cancel flags a running or suspended execution for cancellation. The engine
// honors the flag before its next node step; already completed work is never
// rolled back.
func (e *Execution) Cancel(ctx context.Context, tenantID, id string) error {
	execution, err := e.FetchByID(ctx, tenantID, id)
	if err != nil {
		return err
	}

	if execution.Status.IsTerminal() {
		return ErrExecutionFinished
	}

	if err := e.persistence.ExecutionRepository().RequestCancel(ctx, id); err != nil {
		if persistence.IsExecutionFinished(err) {
			return ErrExecutionFinished
		}

		return fmt.Errorf("failed to request cancellation: %w", err)
	}

	e.logger.Info("Execution cancellation requested",
		"execution_id", id,
		"tenant_id", tenantID)

	return nil
}
