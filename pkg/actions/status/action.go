// Package status implements the update_status and update_ticket_status
// actions against the host application's record store.
package status

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/jobdeck/automation/pkg/events"
	"github.com/jobdeck/automation/pkg/models"
	"github.com/jobdeck/automation/pkg/protocol"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

var ErrDocumentWithoutID = errors.New("triggering document has no id")

type Factory struct {
	actionType models.ActionType
	records    protocol.RecordStore
}

// NewFactory builds the factory for update_status or update_ticket_status.
func NewFactory(actionType models.ActionType, records protocol.RecordStore) *Factory {
	return &Factory{actionType: actionType, records: records}
}

func (f *Factory) ID() string {
	return string(f.actionType)
}

func (f *Factory) Create(config map[string]any) (protocol.Action, error) {
	decoded, err := models.DecodeActionConfig(f.actionType, config)
	if err != nil {
		return nil, protocol.NewValidationFailure(err)
	}

	statusConfig, _ := decoded.(*models.UpdateStatusConfig)
	if err := validate.Struct(statusConfig); err != nil {
		return nil, protocol.NewValidationFailure(err)
	}

	return &Action{
		ticket:  f.actionType == models.ActionUpdateTicketStatus,
		config:  statusConfig,
		records: f.records,
	}, nil
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"status": map[string]any{
				"type":      "string",
				"minLength": 1,
			},
		},
		"required": []string{"status"},
	}
}

type Action struct {
	ticket  bool
	config  *models.UpdateStatusConfig
	records protocol.RecordStore
}

// Execute sets the status of the triggering document (or ticket). The
// document id comes from the event payload, never from config.
func (a *Action) Execute(ctx context.Context, actionCtx protocol.ActionContext, logger *slog.Logger) (*protocol.ActionResult, error) {
	documentID := ""
	if actionCtx.Event != nil {
		if id, ok := actionCtx.Event.DocumentField(events.DocumentFieldID); ok {
			documentID = fmt.Sprintf("%v", id)
		}
	}

	if documentID == "" {
		return nil, protocol.NewPermanentFailure(ErrDocumentWithoutID)
	}

	var err error
	if a.ticket {
		err = a.records.UpdateTicketStatus(ctx, actionCtx.TenantID, actionCtx.StepID, documentID, a.config.Status)
	} else {
		err = a.records.UpdateDocumentStatus(ctx, actionCtx.TenantID, actionCtx.StepID, documentID, a.config.Status)
	}

	if err != nil {
		var actionErr *protocol.ActionError
		if errors.As(err, &actionErr) {
			return nil, err
		}

		return nil, protocol.NewTransientFailure(fmt.Errorf("record store: %w", err))
	}

	logger.Info("Updated status",
		"document_id", documentID,
		"status", a.config.Status,
		"ticket", a.ticket)

	return &protocol.ActionResult{Output: a.config.Status}, nil
}
