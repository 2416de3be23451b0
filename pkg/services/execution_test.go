package services_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/jobdeck/automation/pkg/models"
	"github.com/jobdeck/automation/pkg/persistence/memory"
	"github.com/jobdeck/automation/pkg/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newExecutionService(t *testing.T) (*services.Execution, *memory.Persistence) {
	t.Helper()

	persist := memory.NewPersistence()

	return services.NewExecution(slog.Default(), persist), persist
}

func seedExecution(t *testing.T, persist *memory.Persistence, id, tenantID string, status models.ExecutionStatus) {
	t.Helper()

	require.NoError(t, persist.ExecutionRepository().CreateExecution(context.Background(), &models.Execution{
		ID:         id,
		WorkflowID: "wf-1",
		TenantID:   tenantID,
		Status:     status,
		CreatedAt:  time.Now().UTC(),
	}))
}

func TestListRequiresTenant(t *testing.T) {
	service, _ := newExecutionService(t)

	_, err := service.List(context.Background(), services.ListExecutionsRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, services.ErrTenantRequired)
}

func TestListRejectsUnknownStatus(t *testing.T) {
	service, _ := newExecutionService(t)

	bogus := models.ExecutionStatus("paused")

	_, err := service.List(context.Background(), services.ListExecutionsRequest{TenantID: "tenant-1", Status: &bogus})
	require.Error(t, err)
	assert.True(t, services.IsValidationError(err))
}

func TestListFiltersByStatus(t *testing.T) {
	service, persist := newExecutionService(t)

	seedExecution(t, persist, "exec-1", "tenant-1", models.ExecutionStatusRunning)
	seedExecution(t, persist, "exec-2", "tenant-1", models.ExecutionStatusFailed)
	seedExecution(t, persist, "exec-3", "tenant-2", models.ExecutionStatusRunning)

	all, err := service.List(context.Background(), services.ListExecutionsRequest{TenantID: "tenant-1"})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	failed := models.ExecutionStatusFailed
	onlyFailed, err := service.List(context.Background(), services.ListExecutionsRequest{TenantID: "tenant-1", Status: &failed})
	require.NoError(t, err)
	require.Len(t, onlyFailed, 1)
	assert.Equal(t, "exec-2", onlyFailed[0].ID)
}

func TestFetchByIDIsTenantScopedForExecutions(t *testing.T) {
	service, persist := newExecutionService(t)

	seedExecution(t, persist, "exec-1", "tenant-1", models.ExecutionStatusRunning)

	fetched, err := service.FetchByID(context.Background(), "tenant-1", "exec-1")
	require.NoError(t, err)
	assert.Equal(t, "exec-1", fetched.ID)

	_, err = service.FetchByID(context.Background(), "tenant-2", "exec-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, services.ErrExecutionNotFound)
}

func TestCancelFlagsRunningExecution(t *testing.T) {
	ctx := context.Background()
	service, persist := newExecutionService(t)

	seedExecution(t, persist, "exec-1", "tenant-1", models.ExecutionStatusRunning)

	require.NoError(t, service.Cancel(ctx, "tenant-1", "exec-1"))

	cancelled, err := persist.ExecutionRepository().IsCancelRequested(ctx, "exec-1")
	require.NoError(t, err)
	assert.True(t, cancelled)
}

func TestCancelRefusesFinishedExecution(t *testing.T) {
	service, persist := newExecutionService(t)

	seedExecution(t, persist, "exec-1", "tenant-1", models.ExecutionStatusCompleted)

	err := service.Cancel(context.Background(), "tenant-1", "exec-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, services.ErrExecutionFinished)
	assert.True(t, services.IsConflictError(err))
}
