package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// DefaultInterval is the scheduler's evaluation cadence.
const DefaultInterval = 30 * time.Minute

// Scheduler invokes evaluation passes at a fixed interval. Each pass runs
// under a deadline slightly shorter than the interval; a pass still running
// when the next tick arrives causes that tick to be skipped via the engine's
// running guard rather than overlap.
type Scheduler struct {
	engine   *Engine
	interval time.Duration
	logger   *slog.Logger

	stop chan struct{}
	done chan struct{}
}

// NewScheduler creates a scheduler. A non-positive interval falls back to
// the default.
func NewScheduler(e *Engine, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		engine:   e,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the scheduling loop in a new goroutine.
func (s *Scheduler) Start() {
	go s.loop()
}

// Stop halts the loop and waits for it to exit. A pass in flight is allowed
// to finish.
func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.done
}

func (s *Scheduler) loop() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("scheduler started", "interval", s.interval)
	for {
		select {
		case <-ticker.C:
			s.runOnce()
		case <-s.stop:
			s.logger.Info("scheduler stopped")
			return
		}
	}
}

func (s *Scheduler) runOnce() {
	// The deadline keeps a slow pass bounded by the interval, leaving a
	// safety margin before the next tick.
	ctx, cancel := context.WithTimeout(context.Background(), s.interval-s.interval/10)
	defer cancel()

	result, err := s.engine.RunEvaluationPass(ctx)
	if errors.Is(err, ErrPassInProgress) {
		s.logger.Warn("previous pass still running, skipping tick")
		return
	}
	if err != nil {
		s.logger.Error("evaluation pass failed", "error", err)
		return
	}
	s.logger.Debug("scheduled pass finished",
		"evaluated", result.Evaluated,
		"triggered", result.Triggered,
	)
}
