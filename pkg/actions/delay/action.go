// Package delay implements the delay pseudo-action. It never sleeps: it
// returns a suspension directive and the engine persists the execution until
// the resumption sweep picks it up again.
package delay

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jobdeck/automation/pkg/models"
	"github.com/jobdeck/automation/pkg/protocol"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type Factory struct {
	now func() time.Time
}

func NewFactory() *Factory {
	return &Factory{now: func() time.Time { return time.Now().UTC() }}
}

// NewFactoryWithClock is used by tests to pin the resume time.
func NewFactoryWithClock(now func() time.Time) *Factory {
	return &Factory{now: now}
}

func (f *Factory) ID() string {
	return string(models.ActionDelay)
}

func (f *Factory) Create(config map[string]any) (protocol.Action, error) {
	decoded, err := models.DecodeActionConfig(models.ActionDelay, config)
	if err != nil {
		return nil, protocol.NewValidationFailure(err)
	}

	delayConfig, _ := decoded.(*models.DelayConfig)
	if err := validate.Struct(delayConfig); err != nil {
		return nil, protocol.NewValidationFailure(err)
	}

	return &Action{config: delayConfig, now: f.now}, nil
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"duration": map[string]any{
				"type":    "integer",
				"minimum": 1,
			},
			"unit": map[string]any{
				"type": "string",
				"enum": []string{"minutes", "hours", "days"},
			},
		},
		"required": []string{"duration", "unit"},
	}
}

type Action struct {
	config *models.DelayConfig
	now    func() time.Time
}

func (a *Action) Execute(_ context.Context, _ protocol.ActionContext, logger *slog.Logger) (*protocol.ActionResult, error) {
	resumeAt := a.now().Add(a.config.Interval())

	logger.Info("Suspending execution for delay",
		"duration", a.config.Duration,
		"unit", a.config.Unit,
		"resume_at", resumeAt)

	return &protocol.ActionResult{
		Suspend: &protocol.Suspension{ResumeAt: resumeAt},
	}, nil
}
