package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Scheduler invokes a job immediately on Start and then on every tick.
// A slow job delays the next tick rather than overlapping it.
type Scheduler struct {
	job      func(ctx context.Context)
	interval time.Duration
	clock    clockwork.Clock
	logger   *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScheduler(job func(ctx context.Context), interval time.Duration, clock clockwork.Clock, logger *zap.Logger) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Scheduler{job: job, interval: interval, clock: clock, logger: logger}
}

// Start launches the loop. Calling Start on a running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := s.clock.NewTicker(s.interval)
		defer ticker.Stop()

		s.job(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				s.job(ctx)
			}
		}
	}()
	s.logger.Debug("scheduler started", zap.Duration("interval", s.interval))
}

// Stop cancels the loop and waits for an in-flight job to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

// Running reports whether the loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}
