package jobs

import (
	"context"
	"time"

	"shotpack/internal/infra"
)

// Sweeper periodically force-fails stuck jobs. It complements the manual
// cleanup endpoint so abandoned jobs are caught even without traffic.
type Sweeper struct {
	orchestrator *Orchestrator
	interval     time.Duration
	logger       infra.Logger
}

// NewSweeper uses a 5 minute interval when none is given.
func NewSweeper(orchestrator *Orchestrator, interval time.Duration, logger infra.Logger) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Sweeper{orchestrator: orchestrator, interval: interval, logger: logger}
}

// Run blocks until ctx is cancelled, sweeping once per interval.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			failed, err := s.orchestrator.CleanupStuck(ctx, "")
			if err != nil {
				s.logger.Error().Err(err).Msg("stuck job sweep failed")
				continue
			}
			if len(failed) > 0 {
				s.logger.Info().Int("count", len(failed)).Strs("job_ids", failed).Msg("swept stuck jobs")
			}
		}
	}
}
