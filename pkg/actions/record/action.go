// Package record implements the create_* actions that produce business
// records (projects, service orders, invoices, tasks, checklists, notes)
// through the host application's record store.
package record

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jobdeck/automation/pkg/events"
	"github.com/jobdeck/automation/pkg/models"
	"github.com/jobdeck/automation/pkg/protocol"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type Factory struct {
	actionType models.ActionType
	kind       protocol.RecordKind
	records    protocol.RecordStore
}

// NewFactory builds the factory for one create_* action type.
func NewFactory(actionType models.ActionType, kind protocol.RecordKind, records protocol.RecordStore) *Factory {
	return &Factory{actionType: actionType, kind: kind, records: records}
}

func (f *Factory) ID() string {
	return string(f.actionType)
}

func (f *Factory) Create(config map[string]any) (protocol.Action, error) {
	decoded, err := models.DecodeActionConfig(f.actionType, config)
	if err != nil {
		return nil, protocol.NewValidationFailure(err)
	}

	recordConfig, _ := decoded.(*models.CreateRecordConfig)
	if err := validate.Struct(recordConfig); err != nil {
		return nil, protocol.NewValidationFailure(err)
	}

	return &Action{kind: f.kind, config: recordConfig, records: f.records}, nil
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"title": map[string]any{
				"type":      "string",
				"minLength": 1,
			},
			"description": map[string]any{"type": "string"},
			"status":      map[string]any{"type": "string"},
			"due_in_days": map[string]any{
				"type":    "integer",
				"minimum": 0,
			},
		},
		"required": []string{"title"},
	}
}

type Action struct {
	kind    protocol.RecordKind
	config  *models.CreateRecordConfig
	records protocol.RecordStore
}

// Execute creates exactly one record derived from the config and the
// triggering document. The step id keys the creation, so a retry returns the
// originally created record instead of a duplicate.
func (a *Action) Execute(ctx context.Context, actionCtx protocol.ActionContext, logger *slog.Logger) (*protocol.ActionResult, error) {
	record := protocol.NewRecord{
		Kind:        a.kind,
		Title:       a.config.Title,
		Description: a.config.Description,
		Status:      a.config.Status,
	}

	if a.config.DueInDays > 0 {
		due := time.Now().UTC().Add(time.Duration(a.config.DueInDays) * 24 * time.Hour)
		record.DueAt = &due
	}

	if event := actionCtx.Event; event != nil {
		if id, ok := event.DocumentField(events.DocumentFieldID); ok {
			record.SourceDocumentID = stringify(id)
		}

		if customerID, ok := event.DocumentField(events.DocumentFieldCustomerID); ok {
			record.CustomerID = stringify(customerID)
		}

		if projectID, ok := event.DocumentField(events.DocumentFieldProjectID); ok {
			record.ProjectID = stringify(projectID)
		}
	}

	recordID, err := a.records.CreateRecord(ctx, actionCtx.TenantID, actionCtx.StepID, record)
	if err != nil {
		return nil, wrapStoreError(err)
	}

	logger.Info("Created record",
		"record_kind", a.kind,
		"record_id", recordID)

	return &protocol.ActionResult{Output: recordID}, nil
}
