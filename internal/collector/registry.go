// Package collector provides a registry for managing metric collectors.
// Collectors are registered at startup; the scheduler queries the registry
// to run all available collectors concurrently.
package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Guliveer/diamond-agent/internal/models"
	"github.com/Guliveer/diamond-agent/internal/telemetry"
)

// Registry manages all registered collectors and orchestrates concurrent collection.
type Registry struct {
	collectors []Collector
	metrics    *telemetry.Metrics
	logger     *zap.Logger
}

// NewRegistry creates a new collector registry with the given logger.
func NewRegistry(logger *zap.Logger, metrics *telemetry.Metrics) *Registry {
	if metrics == nil {
		metrics = telemetry.New()
	}
	return &Registry{
		collectors: make([]Collector, 0),
		metrics:    metrics,
		logger:     logger.Named("collector"),
	}
}

// Register adds a collector if it's available on the current platform.
// Unavailable collectors are logged and skipped.
func (r *Registry) Register(c Collector) {
	if c.IsAvailable() {
		r.collectors = append(r.collectors, c)
		r.logger.Info("Registered collector", zap.String("name", c.Name()))
	} else {
		r.logger.Warn("Collector not available, skipping", zap.String("name", c.Name()))
	}
}

// CollectAll runs all registered collectors concurrently and returns one
// result per collector in registration order. A failing or panicking
// collector yields a result with Err set and does not affect the others.
func (r *Registry) CollectAll(ctx context.Context) []models.CollectorResult {
	results := make([]models.CollectorResult, len(r.collectors))
	var wg sync.WaitGroup

	for i, c := range r.collectors {
		wg.Add(1)
		go func(i int, col Collector) {
			defer wg.Done()
			results[i] = r.collect(ctx, col)
		}(i, c)
	}

	wg.Wait()
	return results
}

func (r *Registry) collect(ctx context.Context, col Collector) (res models.CollectorResult) {
	res.Name = col.Name()
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			res.Samples = nil
			res.Err = fmt.Errorf("collector panicked: %v", p)
		}
		r.metrics.CollectDuration.WithLabelValues(res.Name).Observe(time.Since(start).Seconds())
		if res.Err != nil {
			r.metrics.CollectErrors.WithLabelValues(res.Name).Inc()
		}
	}()

	res.Samples, res.Err = col.Collect(ctx)
	return res
}

// Collectors returns a copy of all registered collectors.
func (r *Registry) Collectors() []Collector {
	result := make([]Collector, len(r.collectors))
	copy(result, r.collectors)
	return result
}

// Names returns the names of the registered collectors.
func (r *Registry) Names() []string {
	names := make([]string, len(r.collectors))
	for i, c := range r.collectors {
		names[i] = c.Name()
	}
	return names
}
