// Package memory implements the persistence interfaces in process memory.
// It backs tests and single-process embedding; everything is copied on the
// way in and out so callers cannot alias stored state.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jobdeck/automation/pkg/models"
	"github.com/jobdeck/automation/pkg/persistence"
)

type Persistence struct {
	workflows  *WorkflowRepository
	executions *ExecutionRepository
}

func NewPersistence() *Persistence {
	return &Persistence{
		workflows: &WorkflowRepository{
			workflows: make(map[string]*models.Workflow),
		},
		executions: &ExecutionRepository{
			executions: make(map[string]*models.Execution),
		},
	}
}

func (p *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return p.workflows
}

func (p *Persistence) ExecutionRepository() persistence.ExecutionRepository {
	return p.executions
}

func (p *Persistence) HealthCheck(_ context.Context) error {
	return nil
}

func (p *Persistence) Close(_ context.Context) error {
	return nil
}

// clone round-trips a value through JSON to detach it from caller memory.
func clone[T any](value *T) *T {
	raw, err := json.Marshal(value)
	if err != nil {
		panic(fmt.Sprintf("memory persistence failed to encode value: %v", err))
	}

	copied := new(T)
	if err := json.Unmarshal(raw, copied); err != nil {
		panic(fmt.Sprintf("memory persistence failed to decode value: %v", err))
	}

	return copied
}

type WorkflowRepository struct {
	mu        sync.RWMutex
	workflows map[string]*models.Workflow
}

func (r *WorkflowRepository) Save(_ context.Context, workflow *models.Workflow) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.workflows[workflow.ID] = clone(workflow)

	return nil
}

func (r *WorkflowRepository) GetByID(_ context.Context, id string) (*models.Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	workflow, ok := r.workflows[id]
	if !ok {
		return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
	}

	return clone(workflow), nil
}

func (r *WorkflowRepository) ListByTenant(_ context.Context, tenantID string) ([]*models.Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*models.Workflow, 0)

	for _, workflow := range r.workflows {
		if workflow.TenantID == tenantID && workflow.DeletedAt == nil {
			result = append(result, clone(workflow))
		}
	}

	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })

	return result, nil
}

func (r *WorkflowRepository) ListActiveByTrigger(_ context.Context, tenantID string, triggerType models.TriggerType) ([]*models.Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*models.Workflow, 0)

	for _, workflow := range r.workflows {
		if workflow.TenantID == tenantID && workflow.TriggerType == triggerType && workflow.IsActive() {
			result = append(result, clone(workflow))
		}
	}

	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })

	return result, nil
}

func (r *WorkflowRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	workflow, ok := r.workflows[id]
	if !ok {
		return persistence.NewWorkflowError("Delete", id, persistence.ErrWorkflowNotFound)
	}

	now := time.Now().UTC()
	workflow.DeletedAt = &now

	return nil
}

type ExecutionRepository struct {
	mu         sync.Mutex
	executions map[string]*models.Execution
}

func (r *ExecutionRepository) CreateExecution(_ context.Context, execution *models.Execution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.executions[execution.ID] = clone(execution)

	return nil
}

func (r *ExecutionRepository) GetExecution(_ context.Context, id string) (*models.Execution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	execution, ok := r.executions[id]
	if !ok {
		return nil, persistence.NewExecutionError("GetExecution", id, persistence.ErrExecutionNotFound)
	}

	return clone(execution), nil
}

func (r *ExecutionRepository) UpdateExecution(_ context.Context, execution *models.Execution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.executions[execution.ID]
	if !ok {
		return persistence.NewExecutionError("UpdateExecution", execution.ID, persistence.ErrExecutionNotFound)
	}

	if stored.Status.IsTerminal() {
		return persistence.NewExecutionError("UpdateExecution", execution.ID, persistence.ErrExecutionFinished)
	}

	updated := clone(execution)
	// Steps are append-only; keep the stored log authoritative.
	updated.Steps = stored.Steps
	r.executions[execution.ID] = updated

	return nil
}

func (r *ExecutionRepository) AppendStep(_ context.Context, step *models.ExecutionStep) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	execution, ok := r.executions[step.ExecutionID]
	if !ok {
		return persistence.NewExecutionError("AppendStep", step.ExecutionID, persistence.ErrExecutionNotFound)
	}

	execution.Steps = append(execution.Steps, clone(step))

	return nil
}

func (r *ExecutionRepository) ListExecutions(_ context.Context, opts persistence.ListExecutionsOptions) ([]*models.Execution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	matches := make([]*models.Execution, 0)

	for _, execution := range r.executions {
		if opts.TenantID != "" && execution.TenantID != opts.TenantID {
			continue
		}

		if opts.WorkflowID != "" && execution.WorkflowID != opts.WorkflowID {
			continue
		}

		if opts.Status != nil && execution.Status != *opts.Status {
			continue
		}

		matches = append(matches, clone(execution))
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].CreatedAt.Equal(matches[j].CreatedAt) {
			return matches[i].ID < matches[j].ID
		}

		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(matches) {
			return []*models.Execution{}, nil
		}

		matches = matches[opts.Offset:]
	}

	if opts.Limit > 0 && len(matches) > opts.Limit {
		matches = matches[:opts.Limit]
	}

	return matches, nil
}

func (r *ExecutionRepository) ClaimDueExecutions(_ context.Context, now time.Time, limit int) ([]*models.Execution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	due := make([]*models.Execution, 0)

	ids := make([]string, 0, len(r.executions))
	for id := range r.executions {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	for _, id := range ids {
		if limit > 0 && len(due) >= limit {
			break
		}

		execution := r.executions[id]
		if execution.Status != models.ExecutionStatusSuspended {
			continue
		}

		if execution.ResumeAt == nil || execution.ResumeAt.After(now) {
			continue
		}

		execution.Status = models.ExecutionStatusRunning
		due = append(due, clone(execution))
	}

	return due, nil
}

func (r *ExecutionRepository) RequestCancel(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	execution, ok := r.executions[id]
	if !ok {
		return persistence.NewExecutionError("RequestCancel", id, persistence.ErrExecutionNotFound)
	}

	if execution.Status.IsTerminal() {
		return persistence.NewExecutionError("RequestCancel", id, persistence.ErrExecutionFinished)
	}

	execution.CancelRequested = true

	return nil
}

func (r *ExecutionRepository) IsCancelRequested(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	execution, ok := r.executions[id]
	if !ok {
		return false, persistence.NewExecutionError("IsCancelRequested", id, persistence.ErrExecutionNotFound)
	}

	return execution.CancelRequested, nil
}
