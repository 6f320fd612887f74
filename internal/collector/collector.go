// Package collector defines the Collector interface and provides
// implementations for various system metric collectors.
package collector

import (
	"context"
	"strings"
	"time"

	"github.com/Guliveer/diamond-agent/internal/models"
)

// Collector is the interface that all metric collectors must implement.
// Each collector gathers a specific type of system metric.
type Collector interface {
	// Name returns the unique identifier for this collector.
	Name() string

	// Collect gathers one cycle of samples.
	// The context allows for cancellation and timeout control.
	Collect(ctx context.Context) ([]models.Sample, error)

	// IsAvailable checks if this collector can run on the current platform.
	// Collectors that return false will not be registered.
	IsAvailable() bool
}

// CheckPoster renews TTL checks. Check collectors report liveness through
// it in addition to returning samples.
type CheckPoster interface {
	PostCheck(ctx context.Context, check models.Check)
}

// sampler stamps every sample of one cycle with the same time.
type sampler struct {
	now     time.Time
	samples []models.Sample
}

func newSampler() *sampler {
	return &sampler{now: time.Now()}
}

func (s *sampler) gauge(path string, v models.Value) {
	s.samples = append(s.samples, models.NewGauge(path, s.now, v))
}

func (s *sampler) counter(path string, v float64) {
	s.samples = append(s.samples, models.NewCounter(path, s.now, models.Float(v)))
}

func (s *sampler) add(sample models.Sample) {
	s.samples = append(s.samples, sample)
}

// sanitize makes a name safe for use as one path segment.
func sanitize(name string) string {
	return strings.NewReplacer(".", "_", "/", "_", ":", "_", " ", "_").Replace(name)
}
