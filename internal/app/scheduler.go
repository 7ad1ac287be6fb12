package app

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"letters/api/internal/lifecycle"
)

type Sweeper interface {
	Sweep(ctx context.Context) (lifecycle.SweepReport, error)
}

// Scheduler runs the lifecycle sweep on a fixed interval.
type Scheduler struct {
	sweeper  Sweeper
	interval time.Duration
	logger   *zap.Logger
	stopChan chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	mu      sync.Mutex
	started bool
	stopped bool
}

func NewScheduler(sweeper Sweeper, interval time.Duration, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		sweeper:  sweeper,
		interval: interval,
		logger:   logger,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs a sweep immediately and then every interval until Stop or ctx
// cancellation. Calls after the first, or after Stop, do nothing.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped {
		return
	}
	s.started = true
	s.logger.Info("Starting sweep scheduler", zap.Duration("interval", s.interval))
	go s.run(ctx)
}

// Stop ends the loop and waits for an in-flight sweep to finish. It returns
// immediately when the loop was never started.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	started := s.started
	s.mu.Unlock()

	s.stopOnce.Do(func() {
		s.logger.Info("Stopping sweep scheduler")
		close(s.stopChan)
	})
	if started {
		<-s.done
	}
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep(ctx)
		case <-s.stopChan:
			return
		case <-ctx.Done():
			s.logger.Info("Sweep scheduler cancelled")
			return
		}
	}
}

func (s *Scheduler) sweep(ctx context.Context) {
	report, err := s.sweeper.Sweep(ctx)
	if err != nil {
		s.logger.Error("Sweep failed", zap.Error(err))
		return
	}
	if report.LockHeld {
		s.logger.Debug("Sweep skipped, another instance holds the lock")
	}
}
