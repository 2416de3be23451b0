package engine_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jobdeck/automation/pkg/engine"
	"github.com/jobdeck/automation/pkg/eventbus"
	"github.com/jobdeck/automation/pkg/events"
	"github.com/jobdeck/automation/pkg/mocks"
	"github.com/jobdeck/automation/pkg/models"
	"github.com/jobdeck/automation/pkg/persistence"
	"github.com/jobdeck/automation/pkg/persistence/memory"
	"github.com/jobdeck/automation/pkg/protocol"
	"github.com/jobdeck/automation/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// capturePublisher records lifecycle events in order. Concurrent scenarios
// publish from several goroutines.
type capturePublisher struct {
	mu    sync.Mutex
	keys  []string
	types []events.EventType
}

var _ eventbus.EventPublisher = (*capturePublisher)(nil)

func (p *capturePublisher) Publish(_ context.Context, key string, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.keys = append(p.keys, key)
	p.types = append(p.types, event.GetType())

	return nil
}

type fixture struct {
	persist   persistence.Persistence
	store     *mocks.RecordStore
	mailer    *mocks.Mailer
	publisher *capturePublisher
	engine    *engine.Engine
	sweeper   *engine.Sweeper
}

func newFixture(t *testing.T, config engine.Config) *fixture {
	t.Helper()

	persist := memory.NewPersistence()
	store := mocks.NewRecordStore()
	mailer := mocks.NewMailer()
	publisher := &capturePublisher{}

	reg := registry.NewRegistry(slog.Default())
	registry.RegisterDefaults(reg, registry.Collaborators{
		Records:   store,
		Mailer:    mailer,
		Directory: mocks.NewDirectory("user-1"),
	})

	eng := engine.NewEngine(slog.Default(), persist, reg, publisher, config)

	return &fixture{
		persist:   persist,
		store:     store,
		mailer:    mailer,
		publisher: publisher,
		engine:    eng,
		sweeper:   engine.NewSweeper(slog.Default(), eng, persist, "", 0),
	}
}

func (f *fixture) saveWorkflow(t *testing.T, workflow *models.Workflow) {
	t.Helper()
	require.NoError(t, f.persist.WorkflowRepository().Save(context.Background(), workflow))
}

// onlyExecution fetches the single execution the scenario produced, including
// its step log.
func (f *fixture) onlyExecution(t *testing.T) *models.Execution {
	t.Helper()

	listed, err := f.persist.ExecutionRepository().ListExecutions(context.Background(), persistence.ListExecutionsOptions{TenantID: "tenant-1"})
	require.NoError(t, err)
	require.Len(t, listed, 1)

	execution, err := f.persist.ExecutionRepository().GetExecution(context.Background(), listed[0].ID)
	require.NoError(t, err)

	return execution
}

func branchingWorkflow() *models.Workflow {
	return &models.Workflow{
		ID:          "wf-1",
		TenantID:    "tenant-1",
		Name:        "Large quote follow-up",
		TriggerType: models.TriggerQuoteApproved,
		Status:      models.WorkflowStatusActive,
		Nodes: []*models.WorkflowNode{
			{ID: "trigger-1", Kind: models.NodeKindTrigger, TriggerType: models.TriggerQuoteApproved},
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
			},
			{
				ID:         "mail-1",
				Kind:       models.NodeKindAction,
				ActionType: models.ActionSendEmail,
				Config: map[string]any{
					"to":      "sales@example.com",
					"subject": "Quote approved",
				},
			},
		},
		Connections: []*models.Connection{
			{ID: "c-1", SourceNodeID: "trigger-1", TargetNodeID: "cond-1"},
			{ID: "c-2", SourceNodeID: "cond-1", TargetNodeID: "task-1", Label: models.BranchTrue},
			{ID: "c-3", SourceNodeID: "cond-1", TargetNodeID: "mail-1", Label: models.BranchFalse},
		},
	}
}

func delayWorkflow() *models.Workflow {
	return &models.Workflow{
		ID:          "wf-1",
		TenantID:    "tenant-1",
		Name:        "Delayed follow-up task",
		TriggerType: models.TriggerQuoteApproved,
		Status:      models.WorkflowStatusActive,
		Nodes: []*models.WorkflowNode{
			{ID: "trigger-1", Kind: models.NodeKindTrigger, TriggerType: models.TriggerQuoteApproved},
			{
				ID:         "delay-1",
				Kind:       models.NodeKindAction,
				ActionType: models.ActionDelay,
				Config:     map[string]any{"duration": float64(30), "unit": "minutes"},
			},
			{
				ID:         "task-1",
				Kind:       models.NodeKindAction,
				ActionType: models.ActionCreateTask,
				Config:     map[string]any{"title": "Follow up"},
			},
		},
		Connections: []*models.Connection{
			{ID: "c-1", SourceNodeID: "trigger-1", TargetNodeID: "delay-1"},
			{ID: "c-2", SourceNodeID: "delay-1", TargetNodeID: "task-1"},
		},
	}
}

func quoteApprovedEvent(totalAmount float64) *events.TriggerEvent {
	return &events.TriggerEvent{
		TriggerType: models.TriggerQuoteApproved,
		TenantID:    "tenant-1",
		Document: map[string]any{
			"id":           "quote-7",
			"total_amount": totalAmount,
		},
		ActorUserID: "user-7",
		OccurredAt:  time.Now().UTC(),
	}
}

func stepOutcomes(execution *models.Execution) map[string]models.StepOutcome {
	outcomes := make(map[string]models.StepOutcome, len(execution.Steps))
	for _, step := range execution.Steps {
		outcomes[step.NodeID] = step.Outcome
	}

	return outcomes
}

func TestHandleEventTrueBranchCreatesTask(t *testing.T) {
	f := newFixture(t, engine.Config{})
	f.saveWorkflow(t, branchingWorkflow())

	require.NoError(t, f.engine.HandleEvent(context.Background(), quoteApprovedEvent(25000)))

	execution := f.onlyExecution(t)
	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
	require.NotNil(t, execution.FinishedAt)

	outcomes := stepOutcomes(execution)
	assert.Equal(t, models.StepOutcomeSuccess, outcomes["trigger-1"])
	assert.Equal(t, models.StepOutcomeTrue, outcomes["cond-1"])
	assert.Equal(t, models.StepOutcomeSuccess, outcomes["task-1"])
	assert.NotContains(t, outcomes, "mail-1")

	require.Len(t, f.store.Created, 1)
	assert.Equal(t, "tenant-1", f.store.Created[0].TenantID)
	assert.Empty(t, f.mailer.Sent)

	require.Len(t, f.publisher.types, 2)
	assert.Equal(t, events.ExecutionStartedEvent, f.publisher.types[0])
	assert.Equal(t, events.ExecutionCompletedEvent, f.publisher.types[1])
	// Lifecycle events of one execution share a partition key.
	assert.Equal(t, execution.ID, f.publisher.keys[0])
	assert.Equal(t, execution.ID, f.publisher.keys[1])
}

func TestHandleEventFalseBranchSendsEmail(t *testing.T) {
	f := newFixture(t, engine.Config{})
	f.saveWorkflow(t, branchingWorkflow())

	require.NoError(t, f.engine.HandleEvent(context.Background(), quoteApprovedEvent(500)))

	execution := f.onlyExecution(t)
	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)

	outcomes := stepOutcomes(execution)
	assert.Equal(t, models.StepOutcomeFalse, outcomes["cond-1"])
	assert.Equal(t, models.StepOutcomeSuccess, outcomes["mail-1"])
	assert.NotContains(t, outcomes, "task-1")

	assert.Empty(t, f.store.Created)
	assert.Len(t, f.mailer.Sent, 1)
}

func TestHandleEventWithoutMatchingWorkflow(t *testing.T) {
	f := newFixture(t, engine.Config{})

	draft := branchingWorkflow()
	draft.Status = models.WorkflowStatusDraft
	f.saveWorkflow(t, draft)

	require.NoError(t, f.engine.HandleEvent(context.Background(), quoteApprovedEvent(25000)))

	listed, err := f.persist.ExecutionRepository().ListExecutions(context.Background(), persistence.ListExecutionsOptions{TenantID: "tenant-1"})
	require.NoError(t, err)
	assert.Empty(t, listed)
	assert.Empty(t, f.publisher.types)
}

func TestHandleEventRejectsInvalidEvent(t *testing.T) {
	f := newFixture(t, engine.Config{})

	err := f.engine.HandleEvent(context.Background(), &events.TriggerEvent{TenantID: "tenant-1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, events.ErrMissingTriggerType)
}

func TestDelaySuspendsAndSweepResumes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, engine.Config{})
	f.saveWorkflow(t, delayWorkflow())

	require.NoError(t, f.engine.HandleEvent(ctx, quoteApprovedEvent(25000)))

	execution := f.onlyExecution(t)
	require.Equal(t, models.ExecutionStatusSuspended, execution.Status)
	assert.Equal(t, "task-1", execution.ResumeNodeID)
	require.NotNil(t, execution.ResumeAt)
	assert.WithinDuration(t, time.Now().UTC().Add(30*time.Minute), *execution.ResumeAt, time.Minute)

	// Nothing past the delay ran yet.
	assert.Empty(t, f.store.Created)

	// A sweep before the resume time claims nothing.
	resumed, err := f.sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, resumed)

	// Bring the resume time into the past and sweep again.
	past := time.Now().UTC().Add(-time.Minute)
	execution.ResumeAt = &past
	require.NoError(t, f.persist.ExecutionRepository().UpdateExecution(ctx, execution))

	resumed, err = f.sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, resumed)

	execution = f.onlyExecution(t)
	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
	assert.Empty(t, execution.ResumeNodeID)
	assert.Nil(t, execution.ResumeAt)

	// The delay step ran before the suspension and must not run again.
	delaySteps := 0

	for _, step := range execution.Steps {
		if step.NodeID == "delay-1" {
			delaySteps++
		}
	}

	assert.Equal(t, 1, delaySteps)
	assert.Len(t, f.store.Created, 1)

	assert.Equal(t, []events.EventType{
		events.ExecutionStartedEvent,
		events.ExecutionSuspendedEvent,
		events.ExecutionResumedEvent,
		events.ExecutionCompletedEvent,
	}, f.publisher.types)
}

func TestTransientFailureRetriesThenSucceeds(t *testing.T) {
	f := newFixture(t, engine.Config{MaxAttempts: 3, BackoffBase: time.Millisecond})
	f.saveWorkflow(t, branchingWorkflow())

	f.store.FailTimes = 2

	require.NoError(t, f.engine.HandleEvent(context.Background(), quoteApprovedEvent(25000)))

	execution := f.onlyExecution(t)
	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)

	var taskStep *models.ExecutionStep

	for _, step := range execution.Steps {
		if step.NodeID == "task-1" {
			taskStep = step
		}
	}

	require.NotNil(t, taskStep)
	assert.Equal(t, models.StepOutcomeSuccess, taskStep.Outcome)
	assert.Equal(t, 3, taskStep.Attempt)

	require.Len(t, f.store.Created, 1)
}

func TestPermanentFailureFailsImmediately(t *testing.T) {
	f := newFixture(t, engine.Config{MaxAttempts: 3, BackoffBase: time.Millisecond})
	f.saveWorkflow(t, branchingWorkflow())

	f.store.Err = protocol.NewPermanentFailure(errors.New("customer is gone"))

	require.NoError(t, f.engine.HandleEvent(context.Background(), quoteApprovedEvent(25000)))

	execution := f.onlyExecution(t)
	assert.Equal(t, models.ExecutionStatusFailed, execution.Status)
	assert.Contains(t, execution.FailureReason, "permanent")

	outcomes := stepOutcomes(execution)
	assert.Equal(t, models.StepOutcomeFailure, outcomes["task-1"])

	// No retries for permanent failures.
	assert.Equal(t, 1, f.store.Calls)

	// The execution is finalized exactly once: the failure must not be
	// followed by a completion attempt.
	assert.Equal(t, []events.EventType{
		events.ExecutionStartedEvent,
		events.ExecutionFailedEvent,
	}, f.publisher.types)
}

func TestConcurrentEventsFinishIndependently(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, engine.Config{})
	f.saveWorkflow(t, branchingWorkflow())

	// The true branch creates a task and fails; the false branch sends mail
	// and succeeds.
	f.store.Err = protocol.NewPermanentFailure(errors.New("record store rejected the task"))

	var wg sync.WaitGroup

	for _, amount := range []float64{25000, 500} {
		wg.Add(1)

		go func() {
			defer wg.Done()
			assert.NoError(t, f.engine.HandleEvent(ctx, quoteApprovedEvent(amount)))
		}()
	}

	wg.Wait()

	listed, err := f.persist.ExecutionRepository().ListExecutions(ctx, persistence.ListExecutionsOptions{TenantID: "tenant-1"})
	require.NoError(t, err)
	require.Len(t, listed, 2)

	byStatus := make(map[models.ExecutionStatus]int, 2)

	for _, execution := range listed {
		byStatus[execution.Status]++

		if execution.Status == models.ExecutionStatusFailed {
			assert.Contains(t, execution.FailureReason, "permanent")
		}
	}

	assert.Equal(t, 1, byStatus[models.ExecutionStatusCompleted])
	assert.Equal(t, 1, byStatus[models.ExecutionStatusFailed])

	assert.Len(t, f.mailer.Sent, 1)
	assert.Empty(t, f.store.Created)
}

func TestCancelledSuspensionNeverRunsRemainingNodes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, engine.Config{})
	f.saveWorkflow(t, delayWorkflow())

	require.NoError(t, f.engine.HandleEvent(ctx, quoteApprovedEvent(25000)))

	execution := f.onlyExecution(t)
	require.Equal(t, models.ExecutionStatusSuspended, execution.Status)

	require.NoError(t, f.persist.ExecutionRepository().RequestCancel(ctx, execution.ID))

	past := time.Now().UTC().Add(-time.Minute)
	execution.ResumeAt = &past
	execution.CancelRequested = true
	require.NoError(t, f.persist.ExecutionRepository().UpdateExecution(ctx, execution))

	resumed, err := f.sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, resumed)

	execution = f.onlyExecution(t)
	assert.Equal(t, models.ExecutionStatusFailed, execution.Status)
	assert.Equal(t, models.FailureReasonCancelled, execution.FailureReason)

	outcomes := stepOutcomes(execution)
	assert.Equal(t, models.StepOutcomeSkipped, outcomes["task-1"])
	assert.Empty(t, f.store.Created)
}

func TestRevisitedNodeAbortsExecution(t *testing.T) {
	f := newFixture(t, engine.Config{})

	// A cycle between two actions. Validation rejects this shape, but the
	// walk must still terminate if such a graph reaches the engine.
	workflow := &models.Workflow{
		ID:          "wf-1",
		TenantID:    "tenant-1",
		Name:        "Looping graph",
		TriggerType: models.TriggerQuoteApproved,
		Status:      models.WorkflowStatusActive,
		Nodes: []*models.WorkflowNode{
			{ID: "trigger-1", Kind: models.NodeKindTrigger, TriggerType: models.TriggerQuoteApproved},
			{
				ID:         "task-1",
				Kind:       models.NodeKindAction,
				ActionType: models.ActionCreateTask,
				Config:     map[string]any{"title": "First"},
			},
			{
				ID:         "task-2",
				Kind:       models.NodeKindAction,
				ActionType: models.ActionCreateTask,
				Config:     map[string]any{"title": "Second"},
			},
		},
		Connections: []*models.Connection{
			{ID: "c-1", SourceNodeID: "trigger-1", TargetNodeID: "task-1"},
			{ID: "c-2", SourceNodeID: "task-1", TargetNodeID: "task-2"},
			{ID: "c-3", SourceNodeID: "task-2", TargetNodeID: "task-1"},
		},
	}
	f.saveWorkflow(t, workflow)

	require.NoError(t, f.engine.HandleEvent(context.Background(), quoteApprovedEvent(25000)))

	execution := f.onlyExecution(t)
	assert.Equal(t, models.ExecutionStatusFailed, execution.Status)
	assert.Contains(t, execution.FailureReason, "visited twice")

	// Each action ran exactly once before the walk was aborted.
	assert.Len(t, f.store.Created, 2)
}
