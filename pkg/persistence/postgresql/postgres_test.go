package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/jobdeck/automation/pkg/models"
	"github.com/jobdeck/automation/pkg/persistence"
	"github.com/jobdeck/automation/pkg/persistence/postgresql"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

var postgresContainer *postgres.PostgresContainer

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	// Drop tables in reverse dependency order (children first, parents last)
	for _, table := range []string{"execution_steps", "executions", "workflow_connections", "workflow_nodes", "workflows", "schema_migrations"} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context, string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("automation_test"),
			postgres.WithUsername("automation"),
			postgres.WithPassword("automation"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDb(ctx, t, databaseURL)

		err = p.Close(ctx)
		require.NoError(t, err)

		cancel()
	})

	return p, ctx, databaseURL
}

func TestNewPersistence_Migrations(t *testing.T) {
	_, ctx, databaseURL := setupTestDB(t)

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer func() {
		err := db.Close()
		require.NoError(t, err)
	}()

	var exists bool

	for _, table := range []string{"workflows", "workflow_nodes", "workflow_connections", "executions", "execution_steps", "schema_migrations"} {
		err = db.QueryRowContext(ctx, `SELECT EXISTS (SELECT FROM
information_schema.tables WHERE table_name = $1)`, table).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, "%s table should exist", table)
	}

	var version int

	err = db.QueryRowContext(ctx, "SELECT version FROM schema_migrations WHERE version = 1").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, 1, version)
}

func TestNewPersistence_HealthCheck(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	err := p.HealthCheck(ctx)
	assert.NoError(t, err)
}

func testWorkflow() *models.Workflow {
	return &models.Workflow{
		ID:          uuid.New().String(),
		TenantID:    "tenant-1",
		Name:        "Large quote follow-up",
		Description: "Creates a task when a large quote is approved",
		TriggerType: models.TriggerQuoteApproved,
		Status:      models.WorkflowStatusDraft,
		Nodes: []*models.WorkflowNode{
			{
				ID:          "trigger-1",
				Kind:        models.NodeKindTrigger,
				Name:        "Quote approved",
				TriggerType: models.TriggerQuoteApproved,
			},
			{
				ID:            "cond-1",
				Kind:          models.NodeKindCondition,
				ConditionType: models.ConditionFieldComparison,
				Config: map[string]any{
					"field":    "total_amount",
					"operator": "greater_than",
					"value":    float64(10000),
				},
			},
			{
				ID:         "task-1",
				Kind:       models.NodeKindAction,
				ActionType: models.ActionCreateTask,
				Config:     map[string]any{"title": "Schedule kickoff"},
				PositionX:  320,
				PositionY:  80,
			},
		},
		Connections: []*models.Connection{
			{ID: "c-1", SourceNodeID: "trigger-1", TargetNodeID: "cond-1"},
			{ID: "c-2", SourceNodeID: "cond-1", TargetNodeID: "task-1", Label: models.BranchTrue},
		},
	}
}

func TestNewPersistence_SaveAndRetrieveWorkflow(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	workflow := testWorkflow()

	err := p.WorkflowRepository().Save(ctx, workflow)
	require.NoError(t, err)

	retrieved, err := p.WorkflowRepository().GetByID(ctx, workflow.ID)
	require.NoError(t, err)
	require.NotNil(t, retrieved)

	assert.Equal(t, workflow.ID, retrieved.ID)
	assert.Equal(t, workflow.TenantID, retrieved.TenantID)
	assert.Equal(t, workflow.Name, retrieved.Name)
	assert.Equal(t, workflow.TriggerType, retrieved.TriggerType)
	assert.Equal(t, workflow.Status, retrieved.Status)
	require.Len(t, retrieved.Nodes, len(workflow.Nodes))
	require.Len(t, retrieved.Connections, len(workflow.Connections))

	for _, node := range retrieved.Nodes {
		switch node.ID {
		case "trigger-1":
			assert.Equal(t, models.NodeKindTrigger, node.Kind)
			assert.Equal(t, models.TriggerQuoteApproved, node.TriggerType)
		case "cond-1":
			assert.Equal(t, models.NodeKindCondition, node.Kind)
			assert.Equal(t, "total_amount", node.Config["field"])
			// JSON unmarshals numbers as float64
			assert.Equal(t, float64(10000), node.Config["value"])
		case "task-1":
			assert.Equal(t, models.NodeKindAction, node.Kind)
			assert.Equal(t, "Schedule kickoff", node.Config["title"])
			assert.Equal(t, 320, node.PositionX)
		}
	}

	for _, conn := range retrieved.Connections {
		if conn.ID == "c-2" {
			assert.Equal(t, models.BranchTrue, conn.BranchLabel())
		}
	}

	_, err = p.WorkflowRepository().GetByID(ctx, uuid.NewString())
	require.Error(t, err)
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func TestNewPersistence_UpdateReplacesGraph(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	workflow := testWorkflow()
	require.NoError(t, p.WorkflowRepository().Save(ctx, workflow))

	workflow.Name = "Renamed follow-up"
	workflow.Status = models.WorkflowStatusActive
	workflow.Nodes = workflow.Nodes[:2]
	workflow.Connections = workflow.Connections[:1]

	require.NoError(t, p.WorkflowRepository().Save(ctx, workflow))

	retrieved, err := p.WorkflowRepository().GetByID(ctx, workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed follow-up", retrieved.Name)
	assert.Equal(t, models.WorkflowStatusActive, retrieved.Status)
	assert.Len(t, retrieved.Nodes, 2)
	assert.Len(t, retrieved.Connections, 1)
}

func TestNewPersistence_ListActiveByTrigger(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	active := testWorkflow()
	active.Status = models.WorkflowStatusActive

	draft := testWorkflow()
	draft.ID = uuid.New().String()

	otherTrigger := testWorkflow()
	otherTrigger.ID = uuid.New().String()
	otherTrigger.Status = models.WorkflowStatusActive
	otherTrigger.TriggerType = models.TriggerInvoicePaid

	for _, workflow := range []*models.Workflow{active, draft, otherTrigger} {
		require.NoError(t, p.WorkflowRepository().Save(ctx, workflow))
	}

	matched, err := p.WorkflowRepository().ListActiveByTrigger(ctx, "tenant-1", models.TriggerQuoteApproved)
	require.NoError(t, err)
	require.Len(t, matched, 1)
	assert.Equal(t, active.ID, matched[0].ID)
}

func TestNewPersistence_DeleteWorkflow(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	workflow := testWorkflow()
	require.NoError(t, p.WorkflowRepository().Save(ctx, workflow))

	require.NoError(t, p.WorkflowRepository().Delete(ctx, workflow.ID))

	_, err := p.WorkflowRepository().GetByID(ctx, workflow.ID)
	require.Error(t, err)
	assert.True(t, persistence.IsWorkflowNotFound(err))

	listed, err := p.WorkflowRepository().ListByTenant(ctx, "tenant-1")
	require.NoError(t, err)
	assert.Empty(t, listed)

	err = p.WorkflowRepository().Delete(ctx, uuid.NewString())
	require.Error(t, err)
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

// seedWorkflow satisfies the executions foreign key.
func seedWorkflow(t *testing.T, ctx context.Context, p *postgresql.Persistence) string {
	t.Helper()

	workflow := testWorkflow()
	require.NoError(t, p.WorkflowRepository().Save(ctx, workflow))

	return workflow.ID
}

func testExecution(workflowID string, status models.ExecutionStatus) *models.Execution {
	return &models.Execution{
		ID:           uuid.New().String(),
		WorkflowID:   workflowID,
		TenantID:     "tenant-1",
		Status:       status,
		EventPayload: map[string]any{"id": "quote-7", "total_amount": float64(25000)},
		ActorUserID:  "user-7",
		CreatedAt:    time.Now().UTC(),
	}
}

func TestNewPersistence_ExecutionLifecycle(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.ExecutionRepository()
	workflowID := seedWorkflow(t, ctx, p)

	execution := testExecution(workflowID, models.ExecutionStatusRunning)
	require.NoError(t, repo.CreateExecution(ctx, execution))

	require.NoError(t, repo.AppendStep(ctx, &models.ExecutionStep{
		ID:          uuid.New().String(),
		ExecutionID: execution.ID,
		NodeID:      "trigger-1",
		Outcome:     models.StepOutcomeSuccess,
		Attempt:     1,
		CreatedAt:   time.Now().UTC(),
	}))
	require.NoError(t, repo.AppendStep(ctx, &models.ExecutionStep{
		ID:          uuid.New().String(),
		ExecutionID: execution.ID,
		NodeID:      "task-1",
		Outcome:     models.StepOutcomeSuccess,
		Attempt:     2,
		Output:      "rec-1",
		CreatedAt:   time.Now().UTC().Add(time.Millisecond),
	}))

	finishedAt := time.Now().UTC()
	execution.Status = models.ExecutionStatusCompleted
	execution.FinishedAt = &finishedAt
	require.NoError(t, repo.UpdateExecution(ctx, execution))

	retrieved, err := repo.GetExecution(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, retrieved.Status)
	assert.Equal(t, float64(25000), retrieved.EventPayload["total_amount"])
	require.Len(t, retrieved.Steps, 2)
	assert.Equal(t, "trigger-1", retrieved.Steps[0].NodeID)
	assert.Equal(t, "task-1", retrieved.Steps[1].NodeID)
	assert.Equal(t, 2, retrieved.Steps[1].Attempt)
	assert.Equal(t, "rec-1", retrieved.Steps[1].Output)

	// Terminal executions are immutable.
	retrieved.Status = models.ExecutionStatusRunning
	err = repo.UpdateExecution(ctx, retrieved)
	require.Error(t, err)
	assert.True(t, persistence.IsExecutionFinished(err))
}

func TestNewPersistence_ListExecutionsFilters(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.ExecutionRepository()
	workflowID := seedWorkflow(t, ctx, p)

	running := testExecution(workflowID, models.ExecutionStatusRunning)
	failed := testExecution(workflowID, models.ExecutionStatusFailed)
	foreign := testExecution(workflowID, models.ExecutionStatusRunning)
	foreign.TenantID = "tenant-2"

	for _, execution := range []*models.Execution{running, failed, foreign} {
		require.NoError(t, repo.CreateExecution(ctx, execution))
	}

	all, err := repo.ListExecutions(ctx, persistence.ListExecutionsOptions{TenantID: "tenant-1"})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	status := models.ExecutionStatusFailed
	onlyFailed, err := repo.ListExecutions(ctx, persistence.ListExecutionsOptions{TenantID: "tenant-1", Status: &status})
	require.NoError(t, err)
	require.Len(t, onlyFailed, 1)
	assert.Equal(t, failed.ID, onlyFailed[0].ID)

	limited, err := repo.ListExecutions(ctx, persistence.ListExecutionsOptions{TenantID: "tenant-1", Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestNewPersistence_ClaimDueExecutions(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.ExecutionRepository()
	workflowID := seedWorkflow(t, ctx, p)

	now := time.Now().UTC()

	due := testExecution(workflowID, models.ExecutionStatusSuspended)
	past := now.Add(-time.Minute)
	due.ResumeAt = &past
	due.ResumeNodeID = "task-1"

	notYet := testExecution(workflowID, models.ExecutionStatusSuspended)
	future := now.Add(time.Hour)
	notYet.ResumeAt = &future

	running := testExecution(workflowID, models.ExecutionStatusRunning)

	for _, execution := range []*models.Execution{due, notYet, running} {
		require.NoError(t, repo.CreateExecution(ctx, execution))
	}

	claimed, err := repo.ClaimDueExecutions(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, due.ID, claimed[0].ID)
	assert.Equal(t, models.ExecutionStatusRunning, claimed[0].Status)
	assert.Equal(t, "task-1", claimed[0].ResumeNodeID)

	// A second sweep must not claim the same execution again.
	claimed, err = repo.ClaimDueExecutions(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, claimed)
}

func TestNewPersistence_RequestCancel(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.ExecutionRepository()
	workflowID := seedWorkflow(t, ctx, p)

	execution := testExecution(workflowID, models.ExecutionStatusRunning)
	require.NoError(t, repo.CreateExecution(ctx, execution))

	cancelled, err := repo.IsCancelRequested(ctx, execution.ID)
	require.NoError(t, err)
	assert.False(t, cancelled)

	require.NoError(t, repo.RequestCancel(ctx, execution.ID))

	cancelled, err = repo.IsCancelRequested(ctx, execution.ID)
	require.NoError(t, err)
	assert.True(t, cancelled)

	finished := testExecution(workflowID, models.ExecutionStatusCompleted)
	require.NoError(t, repo.CreateExecution(ctx, finished))

	err = repo.RequestCancel(ctx, finished.ID)
	require.Error(t, err)
	assert.True(t, persistence.IsExecutionFinished(err))
}
