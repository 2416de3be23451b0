// Package persistence provides the data storage abstraction for workflows
// and the append-only execution log.
package persistence

import (
	"context"
	"time"

	"github.com/jobdeck/automation/pkg/models"
)

type Persistence interface {
	WorkflowRepository() WorkflowRepository
	ExecutionRepository() ExecutionRepository
	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// WorkflowRepository stores authored workflow graphs.
type WorkflowRepository interface {
	Save(ctx context.Context, workflow *models.Workflow) error
	GetByID(ctx context.Context, id string) (*models.Workflow, error)
	ListByTenant(ctx context.Context, tenantID string) ([]*models.Workflow, error)
	// ListActiveByTrigger returns the active workflows of a tenant whose
	// trigger type equals the given event type.
	ListActiveByTrigger(ctx context.Context, tenantID string, triggerType models.TriggerType) ([]*models.Workflow, error)
	Delete(ctx context.Context, id string) error
}

// ListExecutionsOptions filters the operator-facing execution history.
type ListExecutionsOptions struct {
	TenantID   string
	WorkflowID string
	Status     *models.ExecutionStatus
	Limit      int
	Offset     int
}

// ExecutionRepository is the append-only execution store. Steps are never
// updated or deleted; execution rows mutate only while running or suspended.
type ExecutionRepository interface {
	CreateExecution(ctx context.Context, execution *models.Execution) error
	GetExecution(ctx context.Context, id string) (*models.Execution, error)
	UpdateExecution(ctx context.Context, execution *models.Execution) error
	AppendStep(ctx context.Context, step *models.ExecutionStep) error
	ListExecutions(ctx context.Context, opts ListExecutionsOptions) ([]*models.Execution, error)

	// ClaimDueExecutions atomically flips suspended executions whose
	// resume_at has elapsed back to running and returns them, so that two
	// engine instances never resume the same execution twice.
	ClaimDueExecutions(ctx context.Context, now time.Time, limit int) ([]*models.Execution, error)

	// RequestCancel flags a running or suspended execution for cancellation.
	// The engine honors the flag before each node step.
	RequestCancel(ctx context.Context, id string) error
	IsCancelRequested(ctx context.Context, id string) (bool, error)
}
