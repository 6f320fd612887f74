// Memory collector: virtual memory and swap in bytes.
package collector

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/Guliveer/diamond-agent/internal/models"
)

// MemoryCollector collects RAM and swap usage.
type MemoryCollector struct{}

// NewMemoryCollector creates a new memory collector.
func NewMemoryCollector() *MemoryCollector {
	return &MemoryCollector{}
}

// Name returns the collector identifier.
func (c *MemoryCollector) Name() string { return "memory" }

// Collect gathers memory gauges. Swap is optional.
func (c *MemoryCollector) Collect(ctx context.Context) ([]models.Sample, error) {
	v, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("virtual memory: %w", err)
	}

	s := newSampler()
	s.gauge("memory.MemTotal", byteCount(v.Total))
	s.gauge("memory.MemFree", byteCount(v.Free))
	s.gauge("memory.MemAvailable", byteCount(v.Available))
	s.gauge("memory.MemUsed", byteCount(v.Used))
	s.gauge("memory.Buffers", byteCount(v.Buffers))
	s.gauge("memory.Cached", byteCount(v.Cached))
	s.gauge("memory.Active", byteCount(v.Active))
	s.gauge("memory.Inactive", byteCount(v.Inactive))
	s.gauge("memory.utilization_percent", models.Float(v.UsedPercent))

	if sw, err := mem.SwapMemoryWithContext(ctx); err == nil {
		s.gauge("memory.SwapTotal", byteCount(sw.Total))
		s.gauge("memory.SwapFree", byteCount(sw.Free))
		s.gauge("memory.SwapUsed", byteCount(sw.Used))
	}
	return s.samples, nil
}

// IsAvailable returns true: memory metrics are available on all platforms.
func (c *MemoryCollector) IsAvailable() bool { return true }

func byteCount(n uint64) models.Value {
	return models.Int(int64(n))
}
