package status_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/jobdeck/automation/pkg/actions/status"
	"github.com/jobdeck/automation/pkg/events"
	"github.com/jobdeck/automation/pkg/mocks"
	"github.com/jobdeck/automation/pkg/models"
	"github.com/jobdeck/automation/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func documentContext(document map[string]any) protocol.ActionContext {
	return protocol.ActionContext{
		TenantID: "tenant-1",
		StepID:   "step-1",
		Event: &events.TriggerEvent{
			TriggerType: models.TriggerInvoiceSent,
			TenantID:    "tenant-1",
			Document:    document,
		},
	}
}

func TestUpdateDocumentStatus(t *testing.T) {
	store := mocks.NewRecordStore()
	factory := status.NewFactory(models.ActionUpdateStatus, store)

	action, err := factory.Create(map[string]any{"status": "in_progress"})
	require.NoError(t, err)

	result, err := action.Execute(context.Background(), documentContext(map[string]any{"id": "inv-3"}), slog.Default())
	require.NoError(t, err)
	assert.Equal(t, "in_progress", result.Output)

	require.Len(t, store.StatusUpdates, 1)
	update := store.StatusUpdates[0]
	assert.Equal(t, "inv-3", update.TargetID)
	assert.Equal(t, "in_progress", update.Value)
	assert.False(t, update.Ticket)
}

func TestUpdateTicketStatus(t *testing.T) {
	store := mocks.NewRecordStore()
	factory := status.NewFactory(models.ActionUpdateTicketStatus, store)

	action, err := factory.Create(map[string]any{"status": "closed"})
	require.NoError(t, err)

	_, err = action.Execute(context.Background(), documentContext(map[string]any{"id": "ticket-9"}), slog.Default())
	require.NoError(t, err)

	require.Len(t, store.StatusUpdates, 1)
	assert.True(t, store.StatusUpdates[0].Ticket)
}

func TestUpdateStatusWithoutDocumentID(t *testing.T) {
	factory := status.NewFactory(models.ActionUpdateStatus, mocks.NewRecordStore())

	action, err := factory.Create(map[string]any{"status": "done"})
	require.NoError(t, err)

	_, err = action.Execute(context.Background(), documentContext(map[string]any{}), slog.Default())
	require.Error(t, err)
	assert.ErrorIs(t, err, status.ErrDocumentWithoutID)
	assert.Equal(t, protocol.FailurePermanent, protocol.CategoryOf(err))
}

func TestUpdateStatusRequiresStatus(t *testing.T) {
	factory := status.NewFactory(models.ActionUpdateStatus, mocks.NewRecordStore())

	_, err := factory.Create(map[string]any{})
	require.Error(t, err)
	assert.Equal(t, protocol.FailureValidation, protocol.CategoryOf(err))
}
