// Package assign implements the assign_user and assign_ticket actions,
// resolving the assignee from the event actor, a configured user, or a
// round-robin cursor in the user directory.
package assign

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

var (
	ErrNoActorUser       = errors.New("event has no actor user for current_user assignment")
	ErrNoUserConfigured  = errors.New("specific_user assignment requires user_id")
	ErrDocumentWithoutID = errors.New("triggering document has no id")
)

type Factory struct {
	actionType models.ActionType
	records    protocol.RecordStore
	directory  protocol.UserDirectory
}

// NewFactory builds the factory for assign_user or assign_ticket.
func NewFactory(actionType models.ActionType, records protocol.RecordStore, directory protocol.UserDirectory) *Factory {
	return &Factory{actionType: actionType, records: records, directory: directory}
}

func (f *Factory) ID() string {
	return string(f.actionType)
}

func (f *Factory) Create(config map[string]any) (protocol.Action, error) {
	decoded, err := models.DecodeActionConfig(f.actionType, config)
	if err != nil {
		return nil, protocol.NewValidationFailure(err)
	}

	assignConfig, _ := decoded.(*models.AssignConfig)
	if err := validate.Struct(assignConfig); err != nil {
		return nil, protocol.NewValidationFailure(err)
	}

	if assignConfig.AssignmentType == models.AssignSpecificUser && assignConfig.UserID == "" {
		return nil, protocol.NewValidationFailure(ErrNoUserConfigured)
	}

	return &Action{
		ticket:    f.actionType == models.ActionAssignTicket,
		config:    assignConfig,
		records:   f.records,
		directory: f.directory,
	}, nil
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"assignment_type": map[string]any{
				"type": "string",
				"enum": []string{"current_user", "specific_user", "round_robin"},
			},
			"user_id": map[string]any{"type": "string"},
		},
		"required": []string{"assignment_type"},
	}
}

type Action struct {
	ticket    bool
	config    *models.AssignConfig
	records   protocol.RecordStore
	directory protocol.UserDirectory
}

func (a *Action) Execute(ctx context.Context, actionCtx protocol.ActionContext, logger *slog.Logger) (*protocol.ActionResult, error) {
	userID, err := a.resolveAssignee(ctx, actionCtx)
	if err != nil {
		return nil, err
	}

	documentID := ""
	if actionCtx.Event != nil {
		if id, ok := actionCtx.Event.DocumentField(events.DocumentFieldID); ok {
			documentID = fmt.Sprintf("%v", id)
		}
	}

	if documentID == "" {
		return nil, protocol.NewPermanentFailure(ErrDocumentWithoutID)
	}

	if a.ticket {
		err = a.records.AssignTicket(ctx, actionCtx.TenantID, actionCtx.StepID, documentID, userID)
	} else {
		err = a.records.AssignDocument(ctx, actionCtx.TenantID, actionCtx.StepID, documentID, userID)
	}

	if err != nil {
		var actionErr *protocol.ActionError
		if errors.As(err, &actionErr) {
			return nil, err
		}

		return nil, protocol.NewTransientFailure(fmt.Errorf("record store: %w", err))
	}

	logger.Info("Assigned user",
		"document_id", documentID,
		"user_id", userID,
		"assignment_type", a.config.AssignmentType,
		"ticket", a.ticket)

	return &protocol.ActionResult{Output: userID}, nil
}

func (a *Action) resolveAssignee(ctx context.Context, actionCtx protocol.ActionContext) (string, error) {
	switch a.config.AssignmentType {
	case models.AssignCurrentUser:
		if actionCtx.Event == nil || actionCtx.Event.ActorUserID == "" {
			return "", protocol.NewPermanentFailure(ErrNoActorUser)
		}

		return actionCtx.Event.ActorUserID, nil
	case models.AssignSpecificUser:
		return a.config.UserID, nil
	case models.AssignRoundRobin:
		pool := "assign_user"
		if a.ticket {
			pool = "assign_ticket"
		}

		userID, err := a.directory.NextAssignee(ctx, actionCtx.TenantID, pool)
		if err != nil {
			return "", protocol.NewTransientFailure(fmt.Errorf("user directory: %w", err))
		}

		return userID, nil
	default:
		return "", protocol.NewValidationFailure(fmt.Errorf("unknown assignment type %q", a.config.AssignmentType))
	}
}
