// CPU usage collector: per-state share of CPU time since the previous cycle,
// for the whole machine and per core.
package collector

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v3/cpu"

	"github.com/Guliveer/diamond-agent/internal/models"
	"github.com/Guliveer/diamond-agent/internal/rate"
)

// CPUCollector collects CPU usage percentages.
type CPUCollector struct {
	perCore bool
	times   func(ctx context.Context, perCPU bool) ([]cpu.TimesStat, error)
	rc      *rate.Computer
}

// NewCPUCollector creates a new CPU collector. perCore adds cpu.cpuN.* paths.
func NewCPUCollector(perCore bool, rc *rate.Computer) *CPUCollector {
	return &CPUCollector{perCore: perCore, times: cpu.TimesWithContext, rc: rc}
}

// Name returns the collector identifier.
func (c *CPUCollector) Name() string { return "cpu" }

// Collect derives each state's time since the last cycle and reports it as
// a percentage of the total. The first cycle only records a baseline.
func (c *CPUCollector) Collect(ctx context.Context) ([]models.Sample, error) {
	total, err := c.times(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("cpu times: %w", err)
	}
	s := newSampler()
	if len(total) > 0 {
		c.percentages(s, "cpu.total", total[0])
	}

	if c.perCore {
		cores, err := c.times(ctx, true)
		if err != nil {
			// Non-fatal: totals are still reported
			return s.samples, nil
		}
		for _, core := range cores {
			c.percentages(s, "cpu."+core.CPU, core)
		}
	}
	return s.samples, nil
}

func (c *CPUCollector) percentages(s *sampler, prefix string, t cpu.TimesStat) {
	states := []struct {
		name string
		v    float64
	}{
		{"user", t.User},
		{"nice", t.Nice},
		{"system", t.System},
		{"idle", t.Idle},
		{"iowait", t.Iowait},
		{"irq", t.Irq},
		{"softirq", t.Softirq},
		{"steal", t.Steal},
	}

	deltas := make([]float64, len(states))
	var sum float64
	for i, st := range states {
		deltas[i] = c.rc.Derive(prefix+"."+st.name, st.v, rate.MaxCounter64)
		sum += deltas[i]
	}
	if sum == 0 {
		return
	}
	for i, st := range states {
		s.gauge(prefix+"."+st.name, models.Float(deltas[i]/sum*100))
	}
}

// IsAvailable returns true: CPU metrics are available on all platforms.
func (c *CPUCollector) IsAvailable() bool { return true }
