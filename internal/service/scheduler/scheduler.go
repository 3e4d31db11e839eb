package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/biomonitor-labs/biomonitor-go/internal/domain"
	"github.com/biomonitor-labs/biomonitor-go/internal/repo"
	"github.com/biomonitor-labs/biomonitor-go/internal/service/runs"
)

const defaultBatchLimit = 25

// Outcome records what happened to one due programme in a tick.
type Outcome struct {
	ProgrammeID   string
	ProgrammeCode string
	RunID         string
	Status        domain.RunStatus
	Err           error
}

// Scheduler queues and executes runs for due programmes. Each programme in a
// batch is independent: one failure never aborts the rest.
type Scheduler struct {
	programmes repo.ProgrammeRepository
	runner     *runs.Service
	logger     *slog.Logger
	now        func() time.Time
	batchLimit int
}

func New(programmes repo.ProgrammeRepository, runner *runs.Service, logger *slog.Logger, batchLimit int) (*Scheduler, error) {
	if programmes == nil {
		return nil, errors.New("programme repository is required")
	}
	if runner == nil {
		return nil, errors.New("run service is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if batchLimit <= 0 {
		batchLimit = defaultBatchLimit
	}
	return &Scheduler{
		programmes: programmes,
		runner:     runner,
		logger:     logger,
		now:        time.Now,
		batchLimit: batchLimit,
	}, nil
}

// ProcessDueProgrammes queues one scheduled run per due programme, earliest
// due first, and executes each to completion.
func (s *Scheduler) ProcessDueProgrammes(ctx context.Context, actor string) ([]Outcome, error) {
	if s == nil || s.programmes == nil || s.runner == nil {
		return nil, errors.New("scheduler not initialized")
	}
	due, err := s.programmes.ListDue(ctx, s.now().UTC(), s.batchLimit)
	if err != nil {
		return nil, err
	}

	outcomes := make([]Outcome, 0, len(due))
	for _, programme := range due {
		outcome := Outcome{ProgrammeID: programme.ID, ProgrammeCode: programme.Code}
		run, err := s.runner.QueueRun(ctx, programme.ID, runs.QueueRunInput{
			RunType:     domain.RunTypeFull,
			Trigger:     domain.TriggerScheduled,
			RequestedBy: actor,
			ExecuteNow:  true,
		})
		if err != nil {
			outcome.Err = err
			s.logger.Error("scheduled run failed to start",
				"programme", programme.Code, "error", err)
		} else {
			outcome.RunID = run.ID
			outcome.Status = run.Status
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}

// Start runs the tick loop until the context is cancelled.
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	if s == nil {
		return
	}
	if interval <= 0 {
		interval = time.Minute
	}
	go s.loop(ctx, interval)
}

func (s *Scheduler) loop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.ProcessDueProgrammes(ctx, "scheduler"); err != nil {
				s.logger.Error("scheduler tick failed", "error", err)
			}
		}
	}
}
