package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jobdeck/automation/pkg/models"
	"github.com/jobdeck/automation/pkg/persistence"
)

// WorkflowRepository handles workflow-related database operations.
type WorkflowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(db *sql.DB, logger *slog.Logger) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger}
}

const workflowColumns = `
			id
		  , tenant_id
		  , name
		  , description
		  , trigger_type
		  , status
		  , created_at
		  , updated_at
		  , deleted_at
`

// Save upserts the workflow row and replaces its nodes and connections in
// one transaction.
func (r *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, fmt.Errorf("failed to begin transaction: %w", err))
	}

	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now().UTC()

	query := `
		INSERT INTO workflows (id, tenant_id, name, description, trigger_type, status, created_at, updated_at, deleted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			tenant_id = EXCLUDED.tenant_id
		  , name = EXCLUDED.name
		  , description = EXCLUDED.description
		  , trigger_type = EXCLUDED.trigger_type
		  , status = EXCLUDED.status
		  , updated_at = EXCLUDED.updated_at
		  , deleted_at = EXCLUDED.deleted_at
	`

	createdAt := workflow.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	_, err = tx.ExecContext(ctx, query,
		workflow.ID,
		workflow.TenantID,
		workflow.Name,
		workflow.Description,
		workflow.TriggerType,
		workflow.Status,
		createdAt,
		now,
		workflow.DeletedAt,
	)
	if err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, fmt.Errorf("failed to upsert workflow: %w", err))
	}

	_, err = tx.ExecContext(ctx, "DELETE FROM workflow_nodes WHERE workflow_id = $1", workflow.ID)
	if err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, fmt.Errorf("failed to clear nodes: %w", err))
	}

	_, err = tx.ExecContext(ctx, "DELETE FROM workflow_connections WHERE workflow_id = $1", workflow.ID)
	if err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, fmt.Errorf("failed to clear connections: %w", err))
	}

	for _, node := range workflow.Nodes {
		config, err := json.Marshal(node.Config)
		if err != nil {
			return persistence.NewWorkflowError("Save", workflow.ID, fmt.Errorf("failed to encode node config: %w", err))
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO workflow_nodes
				(workflow_id, node_id, kind, name, trigger_type, condition_type, action_type, config, position_x, position_y)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`,
			workflow.ID,
			node.ID,
			node.Kind,
			node.Name,
			nullableString(string(node.TriggerType)),
			nullableString(string(node.ConditionType)),
			nullableString(string(node.ActionType)),
			config,
			node.PositionX,
			node.PositionY,
		)
		if err != nil {
			return persistence.NewWorkflowError("Save", workflow.ID, fmt.Errorf("failed to insert node %s: %w", node.ID, err))
		}
	}

	for _, conn := range workflow.Connections {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO workflow_connections
				(workflow_id, connection_id, source_node_id, target_node_id, source_handle, target_handle, label)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`,
			workflow.ID,
			conn.ID,
			conn.SourceNodeID,
			conn.TargetNodeID,
			nullableString(conn.SourceHandle),
			nullableString(conn.TargetHandle),
			nullableString(conn.Label),
		)
		if err != nil {
			return persistence.NewWorkflowError("Save", workflow.ID, fmt.Errorf("failed to insert connection %s: %w", conn.ID, err))
		}
	}

	err = tx.Commit()
	if err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, fmt.Errorf("failed to commit: %w", err))
	}

	return nil
}

func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows WHERE id = $1 AND deleted_at IS NULL`

	row := r.db.QueryRowContext(ctx, query, id)

	workflow, err := scanWorkflow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
		}

		return nil, persistence.NewWorkflowError("GetByID", id, err)
	}

	err = r.loadGraph(ctx, workflow)
	if err != nil {
		return nil, persistence.NewWorkflowError("GetByID", id, err)
	}

	return workflow, nil
}

func (r *WorkflowRepository) ListByTenant(ctx context.Context, tenantID string) ([]*models.Workflow, error) {
	query := `
		SELECT ` + workflowColumns + `
		FROM workflows
		WHERE tenant_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC
	`

	return r.queryWorkflows(ctx, query, tenantID)
}

func (r *WorkflowRepository) ListActiveByTrigger(ctx context.Context, tenantID string, triggerType models.TriggerType) ([]*models.Workflow, error) {
	query := `
		SELECT ` + workflowColumns + `
		FROM workflows
		WHERE tenant_id = $1 AND trigger_type = $2 AND status = $3 AND deleted_at IS NULL
		ORDER BY id
	`

	return r.queryWorkflows(ctx, query, tenantID, triggerType, models.WorkflowStatusActive)
}

// Delete soft-deletes a workflow; executions keep their history.
func (r *WorkflowRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE workflows SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL", id)
	if err != nil {
		return persistence.NewWorkflowError("Delete", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewWorkflowError("Delete", id, err)
	}

	if affected == 0 {
		return persistence.NewWorkflowError("Delete", id, persistence.ErrWorkflowNotFound)
	}

	return nil
}

func (r *WorkflowRepository) queryWorkflows(ctx context.Context, query string, args ...any) ([]*models.Workflow, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	workflows := make([]*models.Workflow, 0)

	for rows.Next() {
		workflow, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		err = r.loadGraph(ctx, workflow)
		if err != nil {
			return nil, fmt.Errorf("failed to load workflow graph: %w", err)
		}

		workflows = append(workflows, workflow)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	return workflows, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(row rowScanner) (*models.Workflow, error) {
	var workflow models.Workflow

	err := row.Scan(
		&workflow.ID,
		&workflow.TenantID,
		&workflow.Name,
		&workflow.Description,
		&workflow.TriggerType,
		&workflow.Status,
		&workflow.CreatedAt,
		&workflow.UpdatedAt,
		&workflow.DeletedAt,
	)
	if err != nil {
		return nil, err
	}

	return &workflow, nil
}

// loadGraph attaches the node and connection rows to a scanned workflow.
func (r *WorkflowRepository) loadGraph(ctx context.Context, workflow *models.Workflow) error {
	nodeRows, err := r.db.QueryContext(ctx, `
		SELECT
			node_id
		  , kind
		  , name
		  , trigger_type
		  , condition_type
		  , action_type
		  , config
		  , position_x
		  , position_y
		FROM workflow_nodes
		WHERE workflow_id = $1
		ORDER BY node_id
	`, workflow.ID)
	if err != nil {
		return fmt.Errorf("failed to query nodes: %w", err)
	}

	defer func() {
		if err := nodeRows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	workflow.Nodes = make([]*models.WorkflowNode, 0)

	for nodeRows.Next() {
		var (
			node          models.WorkflowNode
			triggerType   sql.NullString
			conditionType sql.NullString
			actionType    sql.NullString
			config        []byte
		)

		err := nodeRows.Scan(
			&node.ID,
			&node.Kind,
			&node.Name,
			&triggerType,
			&conditionType,
			&actionType,
			&config,
			&node.PositionX,
			&node.PositionY,
		)
		if err != nil {
			return fmt.Errorf("failed to scan node: %w", err)
		}

		node.TriggerType = models.TriggerType(triggerType.String)
		node.ConditionType = models.ConditionType(conditionType.String)
		node.ActionType = models.ActionType(actionType.String)

		if len(config) > 0 {
			if err := json.Unmarshal(config, &node.Config); err != nil {
				return fmt.Errorf("failed to decode config for node %s: %w", node.ID, err)
			}
		}

		workflow.Nodes = append(workflow.Nodes, &node)
	}

	if err := nodeRows.Err(); err != nil {
		return fmt.Errorf("error iterating nodes: %w", err)
	}

	connRows, err := r.db.QueryContext(ctx, `
		SELECT
			connection_id
		  , source_node_id
		  , target_node_id
		  , source_handle
		  , target_handle
		  , label
		FROM workflow_connections
		WHERE workflow_id = $1
		ORDER BY connection_id
	`, workflow.ID)
	if err != nil {
		return fmt.Errorf("failed to query connections: %w", err)
	}

	defer func() {
		if err := connRows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	workflow.Connections = make([]*models.Connection, 0)

	for connRows.Next() {
		var (
			conn         models.Connection
			sourceHandle sql.NullString
			targetHandle sql.NullString
			label        sql.NullString
		)

		err := connRows.Scan(
			&conn.ID,
			&conn.SourceNodeID,
			&conn.TargetNodeID,
			&sourceHandle,
			&targetHandle,
			&label,
		)
		if err != nil {
			return fmt.Errorf("failed to scan connection: %w", err)
		}

		conn.SourceHandle = sourceHandle.String
		conn.TargetHandle = targetHandle.String
		conn.Label = label.String

		workflow.Connections = append(workflow.Connections, &conn)
	}

	if err := connRows.Err(); err != nil {
		return fmt.Errorf("error iterating connections: %w", err)
	}

	return nil
}

func nullableString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}
