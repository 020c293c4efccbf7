package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"scenestudio/internal/domain"
	"scenestudio/internal/metrics"
)

// SchedulerConfig controls the polling loop.
type SchedulerConfig struct {
	Interval    time.Duration
	Concurrency int
	SweepEvery  time.Duration
}

// Scheduler is the single loop that ticks every active batch.
type Scheduler struct {
	batches    domain.BatchStore
	reconciler *Reconciler
	cfg        SchedulerConfig
	metrics    *metrics.Pipeline
	now        func() time.Time
	logger     zerolog.Logger
}

func NewScheduler(batches domain.BatchStore, reconciler *Reconciler, cfg SchedulerConfig, m *metrics.Pipeline, logger zerolog.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if cfg.SweepEvery <= 0 {
		cfg.SweepEvery = 10 * time.Minute
	}
	return &Scheduler{
		batches:    batches,
		reconciler: reconciler,
		cfg:        cfg,
		metrics:    m,
		now:        time.Now,
		logger:     logger,
	}
}

// Run ticks until ctx is cancelled. A pass in progress finishes its
// settlement writes before Run returns.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	lastSweep := s.now()

	s.logger.Info().Dur("interval", s.cfg.Interval).Msg("scheduler: started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("scheduler: stopped")
			return nil
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error().Err(err).Msg("scheduler: pass failed")
			}
			if now := s.now(); now.Sub(lastSweep) >= s.cfg.SweepEvery {
				lastSweep = now
				if n, err := s.batches.Sweep(ctx, now); err != nil {
					s.logger.Warn().Err(err).Msg("scheduler: sweep failed")
				} else if n > 0 {
					s.logger.Info().Int("removed", n).Msg("scheduler: swept expired batches")
				}
			}
		}
	}
}

// RunOnce ticks every active batch once, waiting for all of them, and
// returns how many batches were visited.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	start := s.now()
	ids, err := s.batches.ActiveIDs(ctx)
	if err != nil {
		return 0, err
	}
	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for _, id := range ids {
		g.Go(func() error {
			_, err := s.reconciler.Tick(ctx, id)
			switch {
			case err == nil, errors.Is(err, context.Canceled):
			case errors.Is(err, ErrBatchLocked):
				s.logger.Debug().Str("batch_id", id).Msg("scheduler: batch held by another poller")
			default:
				s.logger.Warn().Err(err).Str("batch_id", id).Msg("scheduler: tick failed")
			}
			return nil
		})
	}
	_ = g.Wait()
	s.metrics.ObserveTick(s.now().Sub(start), len(ids))
	return len(ids), nil
}
