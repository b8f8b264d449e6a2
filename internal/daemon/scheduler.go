// Package daemon implements the guard control loop and the launcher that
// starts it.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/hawkeye/internal/domain"
	"github.com/eliteGoblin/hawkeye/internal/usecase"
)

// ErrLoopFailed means the control loop stopped on an unexpected failure
// rather than an interrupt.
var ErrLoopFailed = errors.New("control loop failed")

// Clock abstracts wall time for the scheduler.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time                         { return time.Now() }
func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// SystemClock is the real wall clock.
func SystemClock() Clock { return systemClock{} }

// Scheduler is the single-threaded guard loop.
//
// Every tick it re-reads config.json for its intervals, runs a sync pass and
// the message dispatcher when the poll interval has elapsed since the last
// poll, and always runs enforcement. The first tick always polls.
type Scheduler struct {
	store      domain.ArtifactStore
	sync       domain.Synchronizer
	enforcer   domain.Enforcer
	dispatcher domain.MessageDispatcher
	metrics    domain.MetricsRecorder
	clock      Clock
	logger     *zap.Logger

	lastPoll time.Time
	polled   bool
}

// NewScheduler creates the guard loop.
func NewScheduler(
	store domain.ArtifactStore,
	sync domain.Synchronizer,
	enforcer domain.Enforcer,
	dispatcher domain.MessageDispatcher,
	metrics domain.MetricsRecorder,
	clock Clock,
	logger *zap.Logger,
) *Scheduler {
	if clock == nil {
		clock = SystemClock()
	}
	return &Scheduler{
		store:      store,
		sync:       sync,
		enforcer:   enforcer,
		dispatcher: dispatcher,
		metrics:    metrics,
		clock:      clock,
		logger:     logger,
	}
}

// Run blocks until ctx is canceled (returns nil) or a tick panics (returns
// an error wrapping ErrLoopFailed). Cancellation is observed between ticks
// and during the sleep, never in the middle of a write.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("guard loop started", zap.String("status", "ok"))

	for {
		if ctx.Err() != nil {
			s.logger.Info("guard loop stopping", zap.String("status", "ok"))
			return nil
		}

		interval, err := s.safeTick(ctx)
		if err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			s.logger.Info("guard loop stopping", zap.String("status", "ok"))
			return nil
		case <-s.clock.After(interval):
		}
	}
}

func (s *Scheduler) safeTick(ctx context.Context) (interval time.Duration, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("guard loop crashed",
				zap.String("status", "fail"),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			err = fmt.Errorf("%w: %v", ErrLoopFailed, r)
		}
	}()
	return s.Tick(ctx), nil
}

// Tick runs one iteration and returns how long to sleep before the next.
func (s *Scheduler) Tick(ctx context.Context) time.Duration {
	now := s.clock.Now()

	cfg, err := usecase.LoadConfiguration(s.store)
	if err != nil {
		s.logger.Debug("config unusable, using defaults", zap.Error(err))
	}

	if s.pollDue(now, cfg.PollInterval()) {
		s.lastPoll = now
		s.polled = true
		s.poll(ctx)
	}

	s.enforce(ctx)

	s.metrics.ObserveTick(s.clock.Now())
	if err := s.metrics.Flush(); err != nil {
		s.logger.Warn("failed to write metrics", zap.String("status", "fail"), zap.Error(err))
	}

	// Intervals come from the config read at the start of the tick, so a sync
	// that changes them applies from the next tick on.
	return cfg.Interval()
}

func (s *Scheduler) pollDue(now time.Time, every time.Duration) bool {
	return !s.polled || now.Sub(s.lastPoll) >= every
}

func (s *Scheduler) poll(ctx context.Context) {
	results := s.sync.SyncAll(ctx)

	changed := 0
	failed := 0
	for _, r := range results {
		if r.Changed {
			changed++
		}
		if r.Outcome.Failed() {
			failed++
		}
	}
	s.logger.Debug("sync pass complete",
		zap.Int("changed", changed),
		zap.Int("failed", failed))

	// The message directive comes from the config this pass just committed.
	cfg, _ := usecase.LoadConfiguration(s.store)
	s.dispatcher.Tick(ctx, cfg)
}

func (s *Scheduler) enforce(ctx context.Context) {
	result, err := s.enforcer.Enforce(ctx)
	if err != nil {
		s.logger.Warn("enforcement skipped",
			zap.String("status", "fail"),
			zap.Error(err))
		return
	}

	if len(result.Targeted) > 0 {
		s.logger.Info("enforcement completed",
			zap.String("status", "ok"),
			zap.Int("targeted", len(result.Targeted)),
			zap.Int("killed", len(result.Killed)),
			zap.Int("errors", len(result.Errors)),
			zap.Int64("duration_ms", result.DurationMs))
	}
}
