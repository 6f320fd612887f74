package collector

import (
	"context"

	"github.com/Guliveer/diamond-agent/internal/models"
)

// HeartbeatCollector reports metrics.heartbeat = 1 every cycle so the
// backend can tell a silent host from a dead one.
type HeartbeatCollector struct{}

// NewHeartbeatCollector creates a heartbeat collector.
func NewHeartbeatCollector() *HeartbeatCollector {
	return &HeartbeatCollector{}
}

// Name returns the collector identifier.
func (c *HeartbeatCollector) Name() string { return "heartbeat" }

// Collect returns the heartbeat sample.
func (c *HeartbeatCollector) Collect(context.Context) ([]models.Sample, error) {
	s := newSampler()
	s.gauge("metrics.heartbeat", models.Int(1))
	return s.samples, nil
}

// IsAvailable returns true.
func (c *HeartbeatCollector) IsAvailable() bool { return true }
