// Package email implements the send_email and send_helpdesk_email actions on
// top of the host application's mail collaborator.
package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/jobdeck/automation/pkg/models"
	"github.com/jobdeck/automation/pkg/protocol"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type Factory struct {
	actionType models.ActionType
	mailer     protocol.Mailer
}

// NewFactory builds the factory for send_email or send_helpdesk_email.
func NewFactory(actionType models.ActionType, mailer protocol.Mailer) *Factory {
	return &Factory{actionType: actionType, mailer: mailer}
}

func (f *Factory) ID() string {
	return string(f.actionType)
}

func (f *Factory) Create(config map[string]any) (protocol.Action, error) {
	decoded, err := models.DecodeActionConfig(f.actionType, config)
	if err != nil {
		return nil, protocol.NewValidationFailure(err)
	}

	emailConfig, _ := decoded.(*models.SendEmailConfig)
	if err := validate.Struct(emailConfig); err != nil {
		return nil, protocol.NewValidationFailure(err)
	}

	return &Action{
		helpdesk: f.actionType == models.ActionSendHelpdeskEmail,
		config:   emailConfig,
		mailer:   f.mailer,
	}, nil
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"to": map[string]any{
				"type":      "string",
				"minLength": 1,
			},
			"subject": map[string]any{
				"type":      "string",
				"minLength": 1,
			},
			"message": map[string]any{"type": "string"},
		},
		"required": []string{"to", "subject"},
	}
}

type Action struct {
	helpdesk bool
	config   *models.SendEmailConfig
	mailer   protocol.Mailer
}

// Execute hands one mail to the mail collaborator, keyed by the step id so a
// retried invocation does not send twice.
func (a *Action) Execute(ctx context.Context, actionCtx protocol.ActionContext, logger *slog.Logger) (*protocol.ActionResult, error) {
	mail := protocol.OutboundMail{
		To:       a.config.To,
		Subject:  a.config.Subject,
		Body:     a.config.Message,
		Helpdesk: a.helpdesk,
	}

	err := a.mailer.Send(ctx, actionCtx.TenantID, actionCtx.StepID, mail)
	if err != nil {
		var actionErr *protocol.ActionError
		if errors.As(err, &actionErr) {
			return nil, err
		}

		return nil, protocol.NewTransientFailure(fmt.Errorf("mailer: %w", err))
	}

	logger.Info("Sent email",
		"to", a.config.To,
		"subject", a.config.Subject,
		"helpdesk", a.helpdesk)

	return &protocol.ActionResult{Output: a.config.To}, nil
}
