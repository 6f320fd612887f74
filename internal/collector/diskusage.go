// Disk I/O collector: per-device operation and byte rates and busy time.
package collector

import (
	"context"
	"fmt"
	"sort"

	"github.com/shirou/gopsutil/v3/disk"

	"github.com/Guliveer/diamond-agent/internal/metriccache"
	"github.com/Guliveer/diamond-agent/internal/models"
	"github.com/Guliveer/diamond-agent/internal/rate"
)

// DiskUsageCollector collects disk I/O statistics.
type DiskUsageCollector struct {
	counters func(ctx context.Context, names ...string) (map[string]disk.IOCountersStat, error)
	rc       *rate.Computer
}

// NewDiskUsageCollector creates a disk I/O collector.
func NewDiskUsageCollector(rc *rate.Computer) *DiskUsageCollector {
	return &DiskUsageCollector{counters: disk.IOCountersWithContext, rc: rc}
}

// Name returns the collector identifier.
func (c *DiskUsageCollector) Name() string { return "diskusage" }

// Collect reports per-device rates and diskusage.total.* sums.
func (c *DiskUsageCollector) Collect(ctx context.Context) ([]models.Sample, error) {
	stats, err := c.counters(ctx)
	if err != nil {
		return nil, fmt.Errorf("disk counters: %w", err)
	}

	devices := make([]string, 0, len(stats))
	for name := range stats {
		devices = append(devices, name)
	}
	sort.Strings(devices)

	s := newSampler()
	cache := metriccache.New()
	for _, dev := range devices {
		st := stats[dev]
		prefix := "diskusage." + sanitize(dev) + "."
		rates := []struct {
			name string
			raw  uint64
		}{
			{"reads_per_second", st.ReadCount},
			{"writes_per_second", st.WriteCount},
			{"read_byte_per_second", st.ReadBytes},
			{"write_byte_per_second", st.WriteBytes},
		}
		for _, r := range rates {
			path := prefix + r.name
			sample := models.NewRate(path, s.now, models.Float(c.rc.Rate(path, float64(r.raw), rate.MaxCounter64)))
			s.add(sample)
			cache.Add(sample)
		}
		io := prefix + "io_milliseconds"
		s.counter(io, c.rc.Derive(io, float64(st.IoTime), rate.MaxCounter64))
	}

	for _, name := range []string{"reads_per_second", "writes_per_second", "read_byte_per_second", "write_byte_per_second"} {
		if total, ok := cache.Sum(`diskusage\.[^.]+\.`+name+`$`, "diskusage.total."+name); ok {
			s.add(total)
		}
	}
	return s.samples, nil
}

// IsAvailable returns true.
func (c *DiskUsageCollector) IsAvailable() bool { return true }
