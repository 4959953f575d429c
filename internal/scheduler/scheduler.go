package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/elonfeng/sentiradar/internal/logging"
	"github.com/elonfeng/sentiradar/pkg/refresh"
)

// Trigger starts one refresh run. *refresh.Runner implements it.
type Trigger interface {
	Run(ctx context.Context, req refresh.Request) (*refresh.Result, error)
}

// Scheduler runs periodic refreshes, one per configured timeframe.
type Scheduler struct {
	trigger    Trigger
	timeframes []string
	interval   time.Duration
}

// New creates a new scheduler.
func New(trigger Trigger, timeframes []string, interval time.Duration) *Scheduler {
	if interval == 0 {
		interval = 6 * time.Hour
	}
	if len(timeframes) == 0 {
		timeframes = []string{string(refresh.Timeframe24h)}
	}
	return &Scheduler{
		trigger:    trigger,
		timeframes: timeframes,
		interval:   interval,
	}
}

// Run starts the scheduler loop. Blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Run immediately on start.
	logging.Info().Msg("scheduler: initial refresh")
	s.refreshAll(ctx)

	logging.Info().Dur("interval", s.interval).Strs("timeframes", s.timeframes).Msg("scheduler: running")

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("scheduler: stopped")
			return ctx.Err()
		case <-ticker.C:
			s.refreshAll(ctx)
		}
	}
}

// refreshAll runs every timeframe in order. Runs never overlap.
func (s *Scheduler) refreshAll(ctx context.Context) {
	for _, tf := range s.timeframes {
		if ctx.Err() != nil {
			return
		}
		res, err := s.trigger.Run(ctx, refresh.Request{Timeframe: tf})
		switch {
		case res == nil && err != nil:
			logging.Error().Err(err).Str("timeframe", tf).Msg("scheduler: refresh not started")
		case err != nil && !errors.Is(err, context.Canceled):
			logging.Error().Err(err).Str("run_id", res.RunID).Str("timeframe", tf).Msg("scheduler: refresh failed")
		case res != nil:
			logging.Info().Str("run_id", res.RunID).Str("timeframe", tf).Str("status", string(res.Status)).
				Int("posts", res.Counts.Posts).Int("comments", res.Counts.Comments).Msg("scheduler: refresh done")
		}
	}
}
