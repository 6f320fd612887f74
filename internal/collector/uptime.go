// System uptime collector: seconds since last boot.
// Uses gopsutil for cross-platform uptime metrics.
package collector

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v3/host"

	"github.com/Guliveer/diamond-agent/internal/models"
)

// UptimeCollector collects system uptime in seconds.
type UptimeCollector struct{}

// NewUptimeCollector creates a new uptime collector.
func NewUptimeCollector() *UptimeCollector {
	return &UptimeCollector{}
}

// Name returns the collector identifier.
func (c *UptimeCollector) Name() string { return "uptime" }

// Collect reports uptime.seconds.
func (c *UptimeCollector) Collect(ctx context.Context) ([]models.Sample, error) {
	uptime, err := host.UptimeWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("uptime: %w", err)
	}
	s := newSampler()
	s.gauge("uptime.seconds", models.Int(int64(uptime)))
	return s.samples, nil
}

// IsAvailable returns true: uptime is available on all platforms.
func (c *UptimeCollector) IsAvailable() bool { return true }
