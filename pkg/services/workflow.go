package services

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jobdeck/automation/pkg/models"
	"github.com/jobdeck/automation/pkg/persistence"
	"github.com/jobdeck/automation/pkg/validation"
)

// ErrWorkflowNotFound is returned when a workflow does not exist or belongs
// to another tenant.
var ErrWorkflowNotFound = persistence.ErrWorkflowNotFound

// Workflow manages authoring and lifecycle of workflow definitions.
type Workflow struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	validator   *validation.Validator
	structCheck *validator.Validate
}

// NewWorkflow creates a new workflow service.
func NewWorkflow(logger *slog.Logger, persist persistence.Persistence, workflowValidator *validation.Validator) *Workflow {
	return &Workflow{
		logger:      logger.With("module", "workflow_service"),
		persistence: persist,
		validator:   workflowValidator,
		structCheck: validator.New(),
	}
}

// HealthCheck checks the health of the persistence layer.
func (w *Workflow) HealthCheck(ctx context.Context) (string, bool) {
	if w.persistence == nil {
		return "Persistence layer not initialized", false
	}

	if err := w.persistence.HealthCheck(ctx); err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// FetchByID retrieves a tenant's workflow by its ID.
func (w *Workflow) FetchByID(ctx context.Context, tenantID, id string) (*models.Workflow, error) {
	workflow, err := w.persistence.WorkflowRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if workflow.TenantID != tenantID {
		return nil, ErrWorkflowNotFound
	}

	return workflow, nil
}

// List returns all workflows of a tenant, newest first.
func (w *Workflow) List(ctx context.Context, tenantID string) ([]*models.Workflow, error) {
	if tenantID == "" {
		return nil, ErrTenantRequired
	}

	workflows, err := w.persistence.WorkflowRepository().ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	slices.SortFunc(workflows, func(a, b *models.Workflow) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	return workflows, nil
}

// Create adds a new workflow in draft status.
func (w *Workflow) Create(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	if workflow == nil {
		return nil, ErrWorkflowNil
	}

	now := time.Now().UTC()
	workflow.ID = uuid.New().String()
	workflow.CreatedAt = now
	workflow.UpdatedAt = now

	if workflow.Status == "" {
		workflow.Status = models.WorkflowStatusDraft
	}

	if err := w.checkDefinition(workflow); err != nil {
		return nil, err
	}

	if err := w.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to create workflow: %w", err)
	}

	w.logger.Info("Workflow created",
		"workflow_id", workflow.ID,
		"tenant_id", workflow.TenantID,
		"trigger_type", workflow.TriggerType)

	return workflow, nil
}

// Update replaces the definition of a draft workflow. Active and archived
// workflows are immutable; deactivate first.
func (w *Workflow) Update(ctx context.Context, tenantID, workflowID string, workflow *models.Workflow) (*models.Workflow, error) {
	if workflow == nil {
		return nil, ErrWorkflowNil
	}

	existing, err := w.FetchByID(ctx, tenantID, workflowID)
	if err != nil {
		return nil, err
	}

	if existing.Status != models.WorkflowStatusDraft {
		return nil, ErrWorkflowNotEditable
	}

	workflow.ID = workflowID
	workflow.TenantID = existing.TenantID
	workflow.Status = existing.Status
	workflow.CreatedAt = existing.CreatedAt
	workflow.UpdatedAt = time.Now().UTC()

	if err := w.checkDefinition(workflow); err != nil {
		return nil, err
	}

	if err := w.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to update workflow: %w", err)
	}

	return workflow, nil
}

// Delete soft-deletes a workflow. In-flight executions are not touched.
func (w *Workflow) Delete(ctx context.Context, tenantID, workflowID string) error {
	if _, err := w.FetchByID(ctx, tenantID, workflowID); err != nil {
		return err
	}

	if err := w.persistence.WorkflowRepository().Delete(ctx, workflowID); err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}

	return nil
}

// Validate runs the structural validator against a stored workflow and
// returns its issues without changing any state.
func (w *Workflow) Validate(ctx context.Context, tenantID, workflowID string) ([]validation.Issue, error) {
	workflow, err := w.FetchByID(ctx, tenantID, workflowID)
	if err != nil {
		return nil, err
	}

	return w.validator.Validate(workflow)
}

// Activate transitions a workflow to active so the engine matches it against
// incoming events. Activation is refused while the definition has any
// error-severity issue; warnings do not block.
func (w *Workflow) Activate(ctx context.Context, tenantID, workflowID string) (*models.Workflow, []validation.Issue, error) {
	workflow, err := w.FetchByID(ctx, tenantID, workflowID)
	if err != nil {
		return nil, nil, err
	}

	issues, err := w.validator.Validate(workflow)
	if err != nil {
		return nil, nil, err
	}

	if !validation.IsValid(issues) {
		return nil, issues, ErrWorkflowNotValid
	}

	workflow.Status = models.WorkflowStatusActive
	workflow.UpdatedAt = time.Now().UTC()

	if err := w.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, nil, fmt.Errorf("failed to activate workflow: %w", err)
	}

	w.logger.Info("Workflow activated",
		"workflow_id", workflow.ID,
		"tenant_id", workflow.TenantID)

	return workflow, issues, nil
}

// Deactivate puts an active workflow back into draft. In-flight executions
// keep running to completion. Archived workflows stay archived.
func (w *Workflow) Deactivate(ctx context.Context, tenantID, workflowID string) (*models.Workflow, error) {
	workflow, err := w.FetchByID(ctx, tenantID, workflowID)
	if err != nil {
		return nil, err
	}

	if workflow.Status != models.WorkflowStatusActive {
		return nil, ErrWorkflowNotEditable
	}

	workflow.Status = models.WorkflowStatusDraft
	workflow.UpdatedAt = time.Now().UTC()

	if err := w.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to deactivate workflow: %w", err)
	}

	return workflow, nil
}

// Archive retires a workflow permanently. Archived workflows never match
// events and cannot return to draft.
func (w *Workflow) Archive(ctx context.Context, tenantID, workflowID string) (*models.Workflow, error) {
	workflow, err := w.FetchByID(ctx, tenantID, workflowID)
	if err != nil {
		return nil, err
	}

	workflow.Status = models.WorkflowStatusArchived
	workflow.UpdatedAt = time.Now().UTC()

	if err := w.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to archive workflow: %w", err)
	}

	return workflow, nil
}

// checkDefinition enforces the field-level constraints that hold for every
// save, draft or not. Graph-shape validation is the activation gate instead.
func (w *Workflow) checkDefinition(workflow *models.Workflow) error {
	if workflow.Name == "" {
		return ErrNameRequired
	}

	if workflow.TenantID == "" {
		return ErrTenantRequired
	}

	if !slices.Contains(models.KnownTriggerTypes, workflow.TriggerType) {
		return NewValidationError(
			"checkDefinition",
			"UNKNOWN_TRIGGER_TYPE",
			fmt.Sprintf("unknown trigger type %q", workflow.TriggerType),
			ErrUnknownTriggerType,
		)
	}

	switch workflow.Status {
	case models.WorkflowStatusDraft, models.WorkflowStatusActive, models.WorkflowStatusArchived:
	default:
		return NewValidationError(
			"checkDefinition",
			"INVALID_STATUS",
			fmt.Sprintf("invalid status %q", workflow.Status),
			ErrInvalidStatus,
		)
	}

	if err := w.structCheck.Struct(workflow); err != nil {
		return NewValidationError("checkDefinition", "INVALID_WORKFLOW", err.Error(), ErrInvalidRequest)
	}

	return nil
}
