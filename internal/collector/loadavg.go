// Load average collector.
package collector

import (
	"context"
	"fmt"
	"runtime"

	"github.com/shirou/gopsutil/v3/load"

	"github.com/Guliveer/diamond-agent/internal/models"
)

// LoadAvgCollector collects the 1, 5 and 15 minute load averages and the
// number of running and total processes.
type LoadAvgCollector struct{}

// NewLoadAvgCollector creates a new load average collector.
func NewLoadAvgCollector() *LoadAvgCollector {
	return &LoadAvgCollector{}
}

// Name returns the collector identifier.
func (c *LoadAvgCollector) Name() string { return "loadavg" }

// Collect gathers load averages.
func (c *LoadAvgCollector) Collect(ctx context.Context) ([]models.Sample, error) {
	avg, err := load.AvgWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("load average: %w", err)
	}
	s := newSampler()
	s.gauge("loadavg.01", models.Float(avg.Load1))
	s.gauge("loadavg.05", models.Float(avg.Load5))
	s.gauge("loadavg.15", models.Float(avg.Load15))

	if misc, err := load.MiscWithContext(ctx); err == nil {
		s.gauge("loadavg.processes_running", models.Int(int64(misc.ProcsRunning)))
		s.gauge("loadavg.processes_total", models.Int(int64(misc.ProcsTotal)))
	}
	return s.samples, nil
}

// IsAvailable returns false on Windows, which has no load average.
func (c *LoadAvgCollector) IsAvailable() bool { return runtime.GOOS != "windows" }
