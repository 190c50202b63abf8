// Package scheduler runs the periodic background jobs: the reconciliation
// sweep and the monthly billing run.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	mpesaapp "github.com/makao/backend/internal/application/mpesa"
	"github.com/makao/backend/internal/domain/shared"
)

// SweepRunner executes one reconciliation sweep
type SweepRunner interface {
	RunOnce(ctx context.Context) (*mpesaapp.SweepReport, error)
}

// SweepScheduler fires the sweep on a fixed interval. Runs never overlap
// within the process because the loop is a single goroutine; across
// processes the sweep's own run lock arbitrates.
type SweepScheduler struct {
	runner   SweepRunner
	interval time.Duration
	logger   *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewSweepScheduler creates a new SweepScheduler
func NewSweepScheduler(runner SweepRunner, interval time.Duration, logger *zap.Logger) *SweepScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &SweepScheduler{
		runner:   runner,
		interval: interval,
		logger:   logger,
	}
}

// Start begins the sweep loop. Calling Start on a running scheduler is a
// no-op.
func (s *SweepScheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.loop(ctx)

	s.logger.Info("sweep scheduler started", zap.Duration("interval", s.interval))
}

// Stop halts the loop and waits for an in-flight sweep to finish
func (s *SweepScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("sweep scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("sweep scheduler stop timed out")
		return ctx.Err()
	}
}

func (s *SweepScheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *SweepScheduler) runOnce(ctx context.Context) {
	_, err := s.runner.RunOnce(ctx)
	if err == nil {
		return
	}
	// Another deployment holding the run lock is routine, not a failure
	if domainErr, ok := err.(*shared.DomainError); ok && domainErr.Code == "CONFLICT" {
		s.logger.Debug("sweep skipped, another run holds the lock")
		return
	}
	s.logger.Error("scheduled sweep failed", zap.Error(err))
}
