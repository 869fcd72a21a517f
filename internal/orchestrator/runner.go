package orchestrator

import (
	"context"
	"log/slog"
	"time"
)

// Runner drives a job's orchestration with timer-triggered ticks until the
// job reaches a terminal state. Each tick is independent and short-lived;
// jobs run their own Runner with no shared state beyond the job store.
type Runner struct {
	service *Service
	logger  *slog.Logger
}

// NewRunner creates a Runner for the given service.
func NewRunner(service *Service, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{service: service, logger: logger}
}

// Run ticks the job at the service's poll interval until it is terminal or
// the context is cancelled. The first tick fires immediately so submission
// is not delayed by a full interval.
func (r *Runner) Run(ctx context.Context, jobID string) {
	interval := r.service.PollInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		done, err := r.tick(ctx, jobID)
		if err != nil {
			r.logger.Error("orchestration tick failed",
				slog.String("job_id", jobID),
				slog.String("error", err.Error()),
			)
		}
		if done {
			return
		}

		select {
		case <-ctx.Done():
			r.logger.Warn("orchestration stopped",
				slog.String("job_id", jobID),
				slog.String("reason", ctx.Err().Error()),
			)
			return
		case <-ticker.C:
		}
	}
}

// tick runs one pass and reports whether the job is terminal.
func (r *Runner) tick(ctx context.Context, jobID string) (bool, error) {
	if err := r.service.Tick(ctx, jobID); err != nil {
		return false, err
	}
	j, err := r.service.GetJob(ctx, jobID)
	if err != nil {
		return false, err
	}
	return j.IsTerminal(), nil
}
