// Package engine walks workflow graphs in response to business events. It is
// the only writer of execution state: it creates executions when a trigger
// event matches an active workflow, advances them node by node, suspends them
// on delay actions and resumes them when the sweep claims due suspensions.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jobdeck/automation/pkg/condition"
	"github.com/jobdeck/automation/pkg/eventbus"
	"github.com/jobdeck/automation/pkg/events"
	"github.com/jobdeck/automation/pkg/graph"
	"github.com/jobdeck/automation/pkg/models"
	"github.com/jobdeck/automation/pkg/persistence"
	"github.com/jobdeck/automation/pkg/protocol"
	"github.com/jobdeck/automation/pkg/registry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultHandlerTimeout bounds a single action handler invocation.
	DefaultHandlerTimeout = 30 * time.Second

	// DefaultMaxAttempts is how often a transient handler failure is tried
	// before the execution fails.
	DefaultMaxAttempts = 3

	// DefaultBackoffBase is the first retry delay; it doubles per attempt.
	DefaultBackoffBase = 500 * time.Millisecond
)

// Config tunes retry and timeout behavior. Zero values fall back to the
// defaults above.
type Config struct {
	HandlerTimeout time.Duration
	MaxAttempts    int
	BackoffBase    time.Duration
}

func (c Config) withDefaults() Config {
	if c.HandlerTimeout <= 0 {
		c.HandlerTimeout = DefaultHandlerTimeout
	}

	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}

	if c.BackoffBase <= 0 {
		c.BackoffBase = DefaultBackoffBase
	}

	return c
}

type Engine struct {
	logger     *slog.Logger
	workflows  persistence.WorkflowRepository
	executions persistence.ExecutionRepository
	registry   *registry.Registry
	evaluator  *condition.Evaluator
	publisher  eventbus.EventPublisher
	config     Config
	tracer     trace.Tracer
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error
}

func NewEngine(
	logger *slog.Logger,
	persist persistence.Persistence,
	reg *registry.Registry,
	publisher eventbus.EventPublisher,
	config Config,
) *Engine {
	return &Engine{
		logger:     logger.With("module", "engine"),
		workflows:  persist.WorkflowRepository(),
		executions: persist.ExecutionRepository(),
		registry:   reg,
		evaluator:  condition.NewEvaluator(logger),
		publisher:  publisher,
		config:     config.withDefaults(),
		tracer:     otel.Tracer("jobdeck.automation/engine"),
		now:        func() time.Time { return time.Now().UTC() },
		sleep:      sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// HandleEvent matches a business event against the tenant's active workflows
// and runs one execution per match. Each matched workflow gets its own
// execution; a failure in one does not stop the others.
func (e *Engine) HandleEvent(ctx context.Context, event *events.TriggerEvent) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("invalid trigger event: %w", err)
	}

	matched, err := e.workflows.ListActiveByTrigger(ctx, event.TenantID, event.TriggerType)
	if err != nil {
		return fmt.Errorf("failed to list workflows for trigger %s: %w", event.TriggerType, err)
	}

	logger := e.logger.With(
		"tenant_id", event.TenantID,
		"trigger_type", event.TriggerType,
	)

	if len(matched) == 0 {
		logger.Debug("No active workflows for event")

		return nil
	}

	var errs []error

	for _, workflow := range matched {
		if err := e.startExecution(ctx, workflow, event); err != nil {
			logger.Error("Failed to run workflow for event",
				"workflow_id", workflow.ID,
				"error", err)
			errs = append(errs, fmt.Errorf("workflow %s: %w", workflow.ID, err))
		}
	}

	return errors.Join(errs...)
}

func (e *Engine) startExecution(ctx context.Context, workflow *models.Workflow, event *events.TriggerEvent) error {
	g, err := graph.Build(workflow)
	if err != nil {
		return err
	}

	trigger := g.TriggerNode()
	if trigger == nil {
		return fmt.Errorf("workflow %s has no usable trigger node", workflow.ID)
	}

	execution := &models.Execution{
		ID:           uuid.New().String(),
		WorkflowID:   workflow.ID,
		TenantID:     workflow.TenantID,
		Status:       models.ExecutionStatusRunning,
		EventPayload: event.Document,
		ActorUserID:  event.ActorUserID,
		CreatedAt:    e.now(),
	}

	if err := e.executions.CreateExecution(ctx, execution); err != nil {
		return fmt.Errorf("failed to create execution: %w", err)
	}

	e.publish(ctx, events.ExecutionStarted{
		BaseEvent:   events.NewBaseEvent(events.ExecutionStartedEvent, execution),
		TriggerType: event.TriggerType,
	})

	ctx, span := e.tracer.Start(ctx, "engine.execute",
		trace.WithAttributes(
			attribute.String("workflow.id", workflow.ID),
			attribute.String("execution.id", execution.ID),
			attribute.String("trigger.type", string(event.TriggerType)),
		))
	defer span.End()

	if err := e.recordStep(ctx, execution, trigger.ID, models.StepOutcomeSuccess, 1, "", ""); err != nil {
		return err
	}

	next := e.nextAfter(g, trigger.ID)

	return e.walk(ctx, execution, g, event, next)
}

// Resume continues a claimed suspended execution from its stored resume node.
// The caller (the sweep) has already flipped the status back to running.
func (e *Engine) Resume(ctx context.Context, execution *models.Execution) error {
	workflow, err := e.workflows.GetByID(ctx, execution.WorkflowID)
	if err != nil {
		reason := fmt.Sprintf("workflow unavailable on resume: %v", err)

		return e.fail(ctx, execution, execution.ResumeNodeID, reason)
	}

	g, err := graph.Build(workflow)
	if err != nil {
		return e.fail(ctx, execution, execution.ResumeNodeID, fmt.Sprintf("workflow graph invalid on resume: %v", err))
	}

	event := &events.TriggerEvent{
		TriggerType: workflow.TriggerType,
		TenantID:    execution.TenantID,
		Document:    execution.EventPayload,
		ActorUserID: execution.ActorUserID,
	}

	resumeNodeID := execution.ResumeNodeID
	execution.ResumeAt = nil
	execution.ResumeNodeID = ""

	e.publish(ctx, events.ExecutionResumed{
		BaseEvent:    events.NewBaseEvent(events.ExecutionResumedEvent, execution),
		ResumeNodeID: resumeNodeID,
	})

	ctx, span := e.tracer.Start(ctx, "engine.resume",
		trace.WithAttributes(
			attribute.String("workflow.id", workflow.ID),
			attribute.String("execution.id", execution.ID),
		))
	defer span.End()

	return e.walk(ctx, execution, g, event, resumeNodeID)
}

// walk advances the execution from nodeID until it completes, fails or
// suspends. An empty nodeID means the previous node had no outgoing edge and
// the execution completes.
func (e *Engine) walk(ctx context.Context, execution *models.Execution, g *graph.Graph, event *events.TriggerEvent, nodeID string) error {
	logger := e.logger.With(
		"workflow_id", execution.WorkflowID,
		"execution_id", execution.ID,
		"tenant_id", execution.TenantID,
	)

	for nodeID != "" {
		cancelled, err := e.executions.IsCancelRequested(ctx, execution.ID)
		if err != nil {
			logger.Warn("Failed to check cancellation flag", "error", err)
		} else if cancelled {
			logger.Info("Execution cancelled before node", "node_id", nodeID)

			return e.cancel(ctx, execution, nodeID)
		}

		node := g.Node(nodeID)
		if node == nil {
			return e.fail(ctx, execution, nodeID, fmt.Sprintf("node %s not found in workflow graph", nodeID))
		}

		if execution.HasVisited(node.ID) {
			return e.fail(ctx, execution, node.ID, fmt.Sprintf("node %s visited twice, aborting to break cycle", node.ID))
		}

		switch node.Kind {
		case models.NodeKindTrigger:
			// A trigger mid-walk means the graph slipped past validation.
			return e.fail(ctx, execution, node.ID, "trigger node reached mid-execution")

		case models.NodeKindCondition:
			result := e.evaluator.Evaluate(node, event)

			outcome := models.StepOutcomeFalse
			branch := models.BranchFalse

			if result {
				outcome = models.StepOutcomeTrue
				branch = models.BranchTrue
			}

			logger.Info("Condition evaluated",
				"node_id", node.ID,
				"condition_type", node.ConditionType,
				"result", result)

			if err := e.recordStep(ctx, execution, node.ID, outcome, 1, "", ""); err != nil {
				return err
			}

			conn := g.OutgoingBranch(node.ID, branch)
			if conn == nil {
				nodeID = ""

				continue
			}

			nodeID = conn.TargetNodeID

		case models.NodeKindAction:
			next, err := e.runAction(ctx, execution, g, event, node, logger)
			if err != nil {
				return err
			}

			// runAction finalizes the execution itself on suspension and on
			// failure; only a still-running execution advances.
			if execution.Status != models.ExecutionStatusRunning {
				return nil
			}

			nodeID = next

		default:
			return e.fail(ctx, execution, node.ID, fmt.Sprintf("node %s has unknown kind %q", node.ID, node.Kind))
		}
	}

	return e.complete(ctx, execution)
}

// runAction dispatches one action node and returns the id of the next node.
// On suspension and on failure the execution is already persisted in that
// state; the caller must not advance it further.
func (e *Engine) runAction(ctx context.Context, execution *models.Execution, g *graph.Graph, event *events.TriggerEvent, node *models.WorkflowNode, logger *slog.Logger) (string, error) {
	stepID := uuid.New().String()

	action, err := e.registry.Create(string(node.ActionType), node.Config)
	if err != nil {
		reason := fmt.Sprintf("action %s is not executable: %v", node.ActionType, err)

		if recErr := e.recordStep(ctx, execution, node.ID, models.StepOutcomeFailure, 1, reason, ""); recErr != nil {
			return "", recErr
		}

		return "", e.fail(ctx, execution, node.ID, reason)
	}

	actionCtx := protocol.ActionContext{
		TenantID:    execution.TenantID,
		WorkflowID:  execution.WorkflowID,
		ExecutionID: execution.ID,
		StepID:      stepID,
		Event:       event,
	}

	actionLogger := logger.With(
		"node_id", node.ID,
		"action_type", node.ActionType,
	)

	var (
		result  *protocol.ActionResult
		attempt int
	)

	for attempt = 1; ; attempt++ {
		result, err = e.invoke(ctx, action, actionCtx, actionLogger)
		if err == nil {
			break
		}

		category := protocol.CategoryOf(err)

		if category != protocol.FailureTransient || attempt >= e.config.MaxAttempts {
			reason := fmt.Sprintf("action %s failed (%s): %v", node.ActionType, category, err)

			if recErr := e.recordStep(ctx, execution, node.ID, models.StepOutcomeFailure, attempt, err.Error(), ""); recErr != nil {
				return "", recErr
			}

			return "", e.fail(ctx, execution, node.ID, reason)
		}

		backoff := e.config.BackoffBase << (attempt - 1)

		actionLogger.Warn("Transient action failure, retrying",
			"attempt", attempt,
			"backoff", backoff,
			"error", err)

		if sleepErr := e.sleep(ctx, backoff); sleepErr != nil {
			if recErr := e.recordStep(ctx, execution, node.ID, models.StepOutcomeFailure, attempt, err.Error(), ""); recErr != nil {
				return "", recErr
			}

			return "", e.fail(ctx, execution, node.ID, fmt.Sprintf("retry interrupted: %v", sleepErr))
		}
	}

	if err := e.recordStepWithID(ctx, execution, stepID, node.ID, models.StepOutcomeSuccess, attempt, "", result.Output); err != nil {
		return "", err
	}

	next := e.nextAfter(g, node.ID)

	if result.Suspend != nil {
		return "", e.suspend(ctx, execution, node.ID, next, result.Suspend.ResumeAt)
	}

	return next, nil
}

// invoke runs the handler under the configured timeout. A deadline overrun is
// reported as a transient failure so it is retried.
func (e *Engine) invoke(ctx context.Context, action protocol.Action, actionCtx protocol.ActionContext, logger *slog.Logger) (*protocol.ActionResult, error) {
	handlerCtx, cancel := context.WithTimeout(ctx, e.config.HandlerTimeout)
	defer cancel()

	result, err := action.Execute(handlerCtx, actionCtx, logger)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, protocol.NewTransientFailure(fmt.Errorf("handler exceeded %s timeout: %w", e.config.HandlerTimeout, err))
		}

		return nil, err
	}

	if result == nil {
		result = &protocol.ActionResult{}
	}

	return result, nil
}

// nextAfter returns the target of the node's single outgoing edge, or "" at
// the end of a branch.
func (e *Engine) nextAfter(g *graph.Graph, nodeID string) string {
	outgoing := g.Outgoing(nodeID)
	if len(outgoing) == 0 {
		return ""
	}

	return outgoing[0].TargetNodeID
}

func (e *Engine) recordStep(ctx context.Context, execution *models.Execution, nodeID string, outcome models.StepOutcome, attempt int, errMsg, output string) error {
	return e.recordStepWithID(ctx, execution, uuid.New().String(), nodeID, outcome, attempt, errMsg, output)
}

func (e *Engine) recordStepWithID(ctx context.Context, execution *models.Execution, stepID, nodeID string, outcome models.StepOutcome, attempt int, errMsg, output string) error {
	step := &models.ExecutionStep{
		ID:          stepID,
		ExecutionID: execution.ID,
		NodeID:      nodeID,
		Outcome:     outcome,
		Attempt:     attempt,
		Error:       errMsg,
		Output:      output,
		CreatedAt:   e.now(),
	}

	if err := e.executions.AppendStep(ctx, step); err != nil {
		return fmt.Errorf("failed to append execution step: %w", err)
	}

	execution.Steps = append(execution.Steps, step)

	return nil
}

func (e *Engine) complete(ctx context.Context, execution *models.Execution) error {
	finishedAt := e.now()
	execution.Status = models.ExecutionStatusCompleted
	execution.FinishedAt = &finishedAt
	execution.ResumeAt = nil
	execution.ResumeNodeID = ""

	if err := e.executions.UpdateExecution(ctx, execution); err != nil {
		return fmt.Errorf("failed to complete execution %s: %w", execution.ID, err)
	}

	e.publish(ctx, events.ExecutionCompleted{
		BaseEvent:     events.NewBaseEvent(events.ExecutionCompletedEvent, execution),
		StepsExecuted: len(execution.Steps),
		DurationMs:    finishedAt.Sub(execution.CreatedAt).Milliseconds(),
	})

	e.logger.Info("Execution completed",
		"workflow_id", execution.WorkflowID,
		"execution_id", execution.ID,
		"steps", len(execution.Steps))

	return nil
}

func (e *Engine) fail(ctx context.Context, execution *models.Execution, nodeID, reason string) error {
	finishedAt := e.now()
	execution.Status = models.ExecutionStatusFailed
	execution.FailureReason = reason
	execution.FinishedAt = &finishedAt
	execution.ResumeAt = nil
	execution.ResumeNodeID = ""

	if err := e.executions.UpdateExecution(ctx, execution); err != nil {
		return fmt.Errorf("failed to mark execution %s failed: %w", execution.ID, err)
	}

	e.publish(ctx, events.ExecutionFailed{
		BaseEvent: events.NewBaseEvent(events.ExecutionFailedEvent, execution),
		NodeID:    nodeID,
		Reason:    reason,
	})

	e.logger.Error("Execution failed",
		"workflow_id", execution.WorkflowID,
		"execution_id", execution.ID,
		"node_id", nodeID,
		"reason", reason)

	return nil
}

func (e *Engine) cancel(ctx context.Context, execution *models.Execution, nodeID string) error {
	if err := e.recordStep(ctx, execution, nodeID, models.StepOutcomeSkipped, 0, "", ""); err != nil {
		return err
	}

	finishedAt := e.now()
	execution.Status = models.ExecutionStatusFailed
	execution.FailureReason = models.FailureReasonCancelled
	execution.FinishedAt = &finishedAt
	execution.ResumeAt = nil
	execution.ResumeNodeID = ""

	if err := e.executions.UpdateExecution(ctx, execution); err != nil {
		return fmt.Errorf("failed to mark execution %s cancelled: %w", execution.ID, err)
	}

	e.publish(ctx, events.ExecutionCancelled{
		BaseEvent: events.NewBaseEvent(events.ExecutionCancelledEvent, execution),
	})

	return nil
}

func (e *Engine) suspend(ctx context.Context, execution *models.Execution, nodeID, resumeNodeID string, resumeAt time.Time) error {
	execution.Status = models.ExecutionStatusSuspended
	execution.ResumeAt = &resumeAt
	execution.ResumeNodeID = resumeNodeID

	if err := e.executions.UpdateExecution(ctx, execution); err != nil {
		return fmt.Errorf("failed to suspend execution %s: %w", execution.ID, err)
	}

	e.publish(ctx, events.ExecutionSuspended{
		BaseEvent: events.NewBaseEvent(events.ExecutionSuspendedEvent, execution),
		NodeID:    nodeID,
		ResumeAt:  resumeAt,
	})

	e.logger.Info("Execution suspended",
		"workflow_id", execution.WorkflowID,
		"execution_id", execution.ID,
		"resume_at", resumeAt,
		"resume_node_id", resumeNodeID)

	return nil
}

func (e *Engine) publish(ctx context.Context, event events.Event) {
	if e.publisher == nil {
		return
	}

	if err := e.publisher.Publish(ctx, eventKey(event), event); err != nil {
		e.logger.Warn("Failed to publish lifecycle event",
			"event_type", event.GetType(),
			"error", err)
	}
}

func eventKey(event events.Event) string {
	if keyed, ok := event.(interface{ Key() string }); ok {
		return keyed.Key()
	}

	return ""
}
