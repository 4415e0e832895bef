// Package scheduler runs background maintenance jobs of the invoice service.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ArtifactCleaner removes stored invoice documents older than a retention period
type ArtifactCleaner interface {
	CleanupArtifacts(ctx context.Context, retention time.Duration) (int, error)
}

// CleanupSchedulerConfig holds configuration for the artifact cleanup scheduler
type CleanupSchedulerConfig struct {
	// Interval between cleanup runs
	Interval time.Duration

	// Retention is the age after which a stored invoice is removed.
	// Zero disables the scheduler.
	Retention time.Duration

	// RunTimeout is the maximum time for a single run
	RunTimeout time.Duration
}

// DefaultCleanupSchedulerConfig returns an hourly schedule without retention
func DefaultCleanupSchedulerConfig() CleanupSchedulerConfig {
	return CleanupSchedulerConfig{
		Interval:   time.Hour,
		RunTimeout: 5 * time.Minute,
	}
}

// Validate checks the configuration
func (c CleanupSchedulerConfig) Validate() error {
	switch {
	case c.Retention < 0:
		return fmt.Errorf("%w: retention cannot be negative", ErrInvalidConfig)
	case c.Retention > 0 && c.Interval <= 0:
		return fmt.Errorf("%w: interval must be positive", ErrInvalidConfig)
	case c.RunTimeout < 0:
		return fmt.Errorf("%w: run timeout cannot be negative", ErrInvalidConfig)
	}
	return nil
}

// CleanupScheduler periodically removes expired invoice artifacts
type CleanupScheduler struct {
	cleaner   ArtifactCleaner
	logger    *zap.Logger
	config    CleanupSchedulerConfig
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
	// tick is replaced in tests
	tick func(d time.Duration) (<-chan time.Time, func())
}

// NewCleanupScheduler creates a new cleanup scheduler
func NewCleanupScheduler(cleaner ArtifactCleaner, logger *zap.Logger, config CleanupSchedulerConfig) (*CleanupScheduler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CleanupScheduler{
		cleaner: cleaner,
		logger:  logger,
		config:  config,
		tick: func(d time.Duration) (<-chan time.Time, func()) {
			t := time.NewTicker(d)
			return t.C, t.Stop
		},
	}, nil
}

// Start starts the cleanup loop. It is a no-op when retention is zero or the
// scheduler is already running.
func (s *CleanupScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	if s.config.Retention <= 0 {
		s.mu.Unlock()
		s.logger.Info("Invoice artifact cleanup is disabled")
		return nil
	}
	s.isRunning = true
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	s.mu.Unlock()

	go s.run(ctx)

	s.logger.Info("Invoice artifact cleanup scheduler started",
		zap.Duration("interval", s.config.Interval),
		zap.Duration("retention", s.config.Retention),
	)
	return nil
}

// Stop cancels the loop and waits for an in-flight run to finish
func (s *CleanupScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Invoice artifact cleanup scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Invoice artifact cleanup scheduler stop timed out")
		return ctx.Err()
	}
}

// TriggerImmediate runs one cleanup outside the schedule and returns the
// number of removed artifacts
func (s *CleanupScheduler) TriggerImmediate(ctx context.Context) (int, error) {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return 0, ErrSchedulerNotRunning
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	return s.execute(ctx)
}

// IsRunning returns whether the scheduler is running
func (s *CleanupScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

func (s *CleanupScheduler) run(ctx context.Context) {
	defer s.wg.Done()

	ticks, stop := s.tick(s.config.Interval)
	defer stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("Invoice artifact cleanup loop stopping")
			return
		case <-ticks:
			_, _ = s.execute(ctx)
		}
	}
}

func (s *CleanupScheduler) execute(ctx context.Context) (int, error) {
	if s.config.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.RunTimeout)
		defer cancel()
	}

	start := time.Now()
	removed, err := s.cleaner.CleanupArtifacts(ctx, s.config.Retention)
	duration := time.Since(start)
	if err != nil {
		s.logger.Warn("Invoice artifact cleanup failed",
			zap.Duration("duration", duration),
			zap.Int("removed", removed),
			zap.Error(err),
		)
		return removed, err
	}

	s.logger.Debug("Invoice artifact cleanup completed",
		zap.Duration("duration", duration),
		zap.Int("removed", removed),
	)
	return removed, nil
}
