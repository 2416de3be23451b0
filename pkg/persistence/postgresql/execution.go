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

// ExecutionRepository handles the append-only execution log.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

const executionColumns = `
			id
		  , workflow_id
		  , tenant_id
		  , status
		  , event_payload
		  , actor_user_id
		  , resume_at
		  , resume_node_id
		  , failure_reason
		  , cancel_requested
		  , created_at
		  , finished_at
`

func (r *ExecutionRepository) CreateExecution(ctx context.Context, execution *models.Execution) error {
	payload, err := json.Marshal(execution.EventPayload)
	if err != nil {
		return persistence.NewExecutionError("CreateExecution", execution.ID, fmt.Errorf("failed to encode event payload: %w", err))
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO executions
			(id, workflow_id, tenant_id, status, event_payload, actor_user_id,
			 resume_at, resume_node_id, failure_reason, cancel_requested, created_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		execution.ID,
		execution.WorkflowID,
		execution.TenantID,
		execution.Status,
		payload,
		execution.ActorUserID,
		execution.ResumeAt,
		execution.ResumeNodeID,
		execution.FailureReason,
		execution.CancelRequested,
		execution.CreatedAt,
		execution.FinishedAt,
	)
	if err != nil {
		return persistence.NewExecutionError("CreateExecution", execution.ID, err)
	}

	return nil
}

func (r *ExecutionRepository) GetExecution(ctx context.Context, id string) (*models.Execution, error) {
	query := `SELECT ` + executionColumns + ` FROM executions WHERE id = $1`

	execution, err := scanExecution(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewExecutionError("GetExecution", id, persistence.ErrExecutionNotFound)
		}

		return nil, persistence.NewExecutionError("GetExecution", id, err)
	}

	err = r.loadSteps(ctx, execution)
	if err != nil {
		return nil, persistence.NewExecutionError("GetExecution", id, err)
	}

	return execution, nil
}

// UpdateExecution persists the mutable fields of a non-terminal execution.
func (r *ExecutionRepository) UpdateExecution(ctx context.Context, execution *models.Execution) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE executions SET
			status = $2
		  , resume_at = $3
		  , resume_node_id = $4
		  , failure_reason = $5
		  , cancel_requested = $6
		  , finished_at = $7
		WHERE id = $1 AND status IN ($8, $9)
	`,
		execution.ID,
		execution.Status,
		execution.ResumeAt,
		execution.ResumeNodeID,
		execution.FailureReason,
		execution.CancelRequested,
		execution.FinishedAt,
		models.ExecutionStatusRunning,
		models.ExecutionStatusSuspended,
	)
	if err != nil {
		return persistence.NewExecutionError("UpdateExecution", execution.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewExecutionError("UpdateExecution", execution.ID, err)
	}

	if affected == 0 {
		// Either the row is gone or it already reached a terminal status.
		var status models.ExecutionStatus

		err := r.db.QueryRowContext(ctx, "SELECT status FROM executions WHERE id = $1", execution.ID).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.NewExecutionError("UpdateExecution", execution.ID, persistence.ErrExecutionNotFound)
		}

		if err != nil {
			return persistence.NewExecutionError("UpdateExecution", execution.ID, err)
		}

		return persistence.NewExecutionError("UpdateExecution", execution.ID, persistence.ErrExecutionFinished)
	}

	return nil
}

func (r *ExecutionRepository) AppendStep(ctx context.Context, step *models.ExecutionStep) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO execution_steps (id, execution_id, node_id, outcome, attempt, error, output, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		step.ID,
		step.ExecutionID,
		step.NodeID,
		step.Outcome,
		step.Attempt,
		step.Error,
		step.Output,
		step.CreatedAt,
	)
	if err != nil {
		return persistence.NewExecutionError("AppendStep", step.ExecutionID, err)
	}

	return nil
}

func (r *ExecutionRepository) ListExecutions(ctx context.Context, opts persistence.ListExecutionsOptions) ([]*models.Execution, error) {
	query := `SELECT ` + executionColumns + ` FROM executions WHERE 1=1`

	args := make([]any, 0, 4)

	if opts.TenantID != "" {
		args = append(args, opts.TenantID)
		query += fmt.Sprintf(" AND tenant_id = $%d", len(args))
	}

	if opts.WorkflowID != "" {
		args = append(args, opts.WorkflowID)
		query += fmt.Sprintf(" AND workflow_id = $%d", len(args))
	}

	if opts.Status != nil {
		args = append(args, *opts.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}

	query += " ORDER BY created_at DESC, id"

	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	executions := make([]*models.Execution, 0)

	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		err = r.loadSteps(ctx, execution)
		if err != nil {
			return nil, err
		}

		executions = append(executions, execution)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return executions, nil
}

// ClaimDueExecutions flips due suspended executions to running under
// SKIP LOCKED so concurrent sweepers never claim the same row.
func (r *ExecutionRepository) ClaimDueExecutions(ctx context.Context, now time.Time, limit int) ([]*models.Execution, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx, `
		UPDATE executions SET status = $1
		WHERE id IN (
			SELECT id FROM executions
			WHERE status = $2 AND resume_at <= $3
			ORDER BY resume_at
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+executionColumns,
		models.ExecutionStatusRunning,
		models.ExecutionStatusSuspended,
		now,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to claim due executions: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	claimed := make([]*models.Execution, 0)

	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan claimed execution: %w", err)
		}

		claimed = append(claimed, execution)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating claimed executions: %w", err)
	}

	for _, execution := range claimed {
		err = r.loadSteps(ctx, execution)
		if err != nil {
			return nil, err
		}
	}

	return claimed, nil
}

func (r *ExecutionRepository) RequestCancel(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE executions SET cancel_requested = TRUE
		WHERE id = $1 AND status IN ($2, $3)
	`, id, models.ExecutionStatusRunning, models.ExecutionStatusSuspended)
	if err != nil {
		return persistence.NewExecutionError("RequestCancel", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewExecutionError("RequestCancel", id, err)
	}

	if affected == 0 {
		var status models.ExecutionStatus

		err := r.db.QueryRowContext(ctx, "SELECT status FROM executions WHERE id = $1", id).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.NewExecutionError("RequestCancel", id, persistence.ErrExecutionNotFound)
		}

		if err != nil {
			return persistence.NewExecutionError("RequestCancel", id, err)
		}

		return persistence.NewExecutionError("RequestCancel", id, persistence.ErrExecutionFinished)
	}

	return nil
}

func (r *ExecutionRepository) IsCancelRequested(ctx context.Context, id string) (bool, error) {
	var cancelRequested bool

	err := r.db.QueryRowContext(ctx, "SELECT cancel_requested FROM executions WHERE id = $1", id).Scan(&cancelRequested)
	if errors.Is(err, sql.ErrNoRows) {
		return false, persistence.NewExecutionError("IsCancelRequested", id, persistence.ErrExecutionNotFound)
	}

	if err != nil {
		return false, persistence.NewExecutionError("IsCancelRequested", id, err)
	}

	return cancelRequested, nil
}

func scanExecution(row rowScanner) (*models.Execution, error) {
	var (
		execution models.Execution
		payload   []byte
	)

	err := row.Scan(
		&execution.ID,
		&execution.WorkflowID,
		&execution.TenantID,
		&execution.Status,
		&payload,
		&execution.ActorUserID,
		&execution.ResumeAt,
		&execution.ResumeNodeID,
		&execution.FailureReason,
		&execution.CancelRequested,
		&execution.CreatedAt,
		&execution.FinishedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &execution.EventPayload); err != nil {
			return nil, fmt.Errorf("failed to decode event payload: %w", err)
		}
	}

	return &execution, nil
}

func (r *ExecutionRepository) loadSteps(ctx context.Context, execution *models.Execution) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT
			id
		  , execution_id
		  , node_id
		  , outcome
		  , attempt
		  , error
		  , output
		  , created_at
		FROM execution_steps
		WHERE execution_id = $1
		ORDER BY created_at, id
	`, execution.ID)
	if err != nil {
		return fmt.Errorf("failed to query steps: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	execution.Steps = make([]*models.ExecutionStep, 0)

	for rows.Next() {
		var step models.ExecutionStep

		err := rows.Scan(
			&step.ID,
			&step.ExecutionID,
			&step.NodeID,
			&step.Outcome,
			&step.Attempt,
			&step.Error,
			&step.Output,
			&step.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to scan step: %w", err)
		}

		execution.Steps = append(execution.Steps, &step)
	}

	err = rows.Err()
	if err != nil {
		return fmt.Errorf("error iterating steps: %w", err)
	}

	return nil
}
