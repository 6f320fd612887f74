// Package scheduler implements a tick-based periodic collection scheduler.
// Every tick it runs the collector registry and hands each sample to the
// publisher, which owns batching and transmission.
package scheduler

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/Guliveer/diamond-agent/internal/models"
)

// Collector runs one collection cycle over every registered collector.
type Collector interface {
	CollectAll(ctx context.Context) []models.CollectorResult
}

// Publisher receives samples in collection order and is closed on shutdown.
type Publisher interface {
	Process(ctx context.Context, s models.Sample)
	Close(ctx context.Context) error
}

// Scheduler manages periodic metric collection.
type Scheduler struct {
	registry        Collector
	publisher       Publisher
	interval        time.Duration
	timeout         time.Duration
	shutdownTimeout time.Duration
	clock           clock.Clock
	logger          *zap.Logger
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock sets the clock driving the ticker.
func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithShutdownTimeout bounds the final publisher flush.
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Scheduler) { s.shutdownTimeout = d }
}

// New creates a Scheduler that collects every interval, giving each cycle
// at most timeout.
func New(registry Collector, publisher Publisher, interval, timeout time.Duration, logger *zap.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		registry:        registry,
		publisher:       publisher,
		interval:        interval,
		timeout:         timeout,
		shutdownTimeout: 30 * time.Second,
		clock:           clock.New(),
		logger:          logger.Named("scheduler"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.timeout <= 0 || s.timeout > s.interval {
		s.timeout = s.interval
	}
	return s
}

// Start runs a collection immediately and then on every tick. It blocks
// until ctx is cancelled, then closes the publisher so pending samples are
// flushed or spilled.
func (s *Scheduler) Start(ctx context.Context) error {
	ticker := s.clock.Ticker(s.interval)
	defer ticker.Stop()

	s.collect(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Stopping, flushing pending samples")
			closeCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
			defer cancel()
			return s.publisher.Close(closeCtx)
		case <-ticker.C:
			s.collect(ctx)
		}
	}
}

// collect runs all collectors with a timeout and feeds the samples to the
// publisher in registration order.
func (s *Scheduler) collect(ctx context.Context) {
	collectCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := s.clock.Now()
	results := s.registry.CollectAll(collectCtx)

	total := 0
	for _, res := range results {
		if res.Err != nil {
			s.logger.Warn("Collector failed",
				zap.String("collector", res.Name),
				zap.Error(res.Err))
		}
		for _, sample := range res.Samples {
			s.publisher.Process(ctx, sample)
		}
		total += len(res.Samples)
	}

	s.logger.Debug("Collected metrics",
		zap.Int("samples", total),
		zap.Duration("took", s.clock.Since(start)))
}
