package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/jobdeck/automation/pkg/persistence"
	"github.com/robfig/cron/v3"
)

const (
	// DefaultSweepSchedule checks for due suspensions once a minute, which
	// matches the minute-grained delay units workflows can express.
	DefaultSweepSchedule = "* * * * *"

	// DefaultSweepBatchSize bounds how many due executions one sweep claims.
	DefaultSweepBatchSize = 100
)

// Sweeper periodically claims suspended executions whose resume time has
// elapsed and hands them back to the engine. Claiming is atomic in the store,
// so running several engine instances never resumes an execution twice.
type Sweeper struct {
	logger     *slog.Logger
	engine     *Engine
	executions persistence.ExecutionRepository
	schedule   string
	batchSize  int
	cron       *cron.Cron
	now        func() time.Time
}

func NewSweeper(logger *slog.Logger, engine *Engine, persist persistence.Persistence, schedule string, batchSize int) *Sweeper {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}

	if batchSize <= 0 {
		batchSize = DefaultSweepBatchSize
	}

	return &Sweeper{
		logger:     logger.With("module", "sweeper"),
		engine:     engine,
		executions: persist.ExecutionRepository(),
		schedule:   schedule,
		batchSize:  batchSize,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Start registers the sweep on its cron schedule and runs it until Stop.
func (s *Sweeper) Start(ctx context.Context) error {
	s.cron = cron.New()

	_, err := s.cron.AddFunc(s.schedule, func() {
		if n, err := s.Sweep(ctx); err != nil {
			s.logger.Error("Sweep failed", "error", err)
		} else if n > 0 {
			s.logger.Info("Sweep resumed executions", "count", n)
		}
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("Suspension sweep started", "schedule", s.schedule)

	return nil
}

func (s *Sweeper) Stop() {
	if s.cron != nil {
		stopCtx := s.cron.Stop()
		<-stopCtx.Done()
	}
}

// Sweep claims one batch of due executions and resumes each. It returns the
// number of executions claimed.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	claimed, err := s.executions.ClaimDueExecutions(ctx, s.now(), s.batchSize)
	if err != nil {
		return 0, err
	}

	for _, execution := range claimed {
		if err := s.engine.Resume(ctx, execution); err != nil {
			s.logger.Error("Failed to resume execution",
				"execution_id", execution.ID,
				"workflow_id", execution.WorkflowID,
				"error", err)
		}
	}

	return len(claimed), nil
}
