// Network I/O collector: per-interface byte, packet, error and drop rates,
// plus totals and averages across interfaces.
// Uses gopsutil for cross-platform network metrics.
package collector

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v3/net"

	"github.com/Guliveer/diamond-agent/internal/metriccache"
	"github.com/Guliveer/diamond-agent/internal/models"
	"github.com/Guliveer/diamond-agent/internal/rate"
)

// networkCounters are aggregated across interfaces.
var networkCounters = []string{
	"rx_byte", "tx_byte",
	"rx_packets", "tx_packets",
	"rx_errors", "tx_errors",
	"rx_drop", "tx_drop",
}

// NetworkCollector collects network I/O rates per interface.
type NetworkCollector struct {
	counters func(ctx context.Context, pernic bool) ([]net.IOCountersStat, error)
	rc       *rate.Computer
}

// NewNetworkCollector creates a new network collector.
func NewNetworkCollector(rc *rate.Computer) *NetworkCollector {
	return &NetworkCollector{counters: net.IOCountersWithContext, rc: rc}
}

// Name returns the collector identifier.
func (c *NetworkCollector) Name() string { return "network" }

// Collect gathers per-second rates for every interface except loopback.
// The first collection returns zero rates while establishing a baseline.
func (c *NetworkCollector) Collect(ctx context.Context) ([]models.Sample, error) {
	stats, err := c.counters(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("network counters: %w", err)
	}

	s := newSampler()
	cache := metriccache.New()
	for _, st := range stats {
		if st.Name == "lo" || st.Name == "lo0" {
			continue
		}
		prefix := "network." + sanitize(st.Name) + "."
		raw := []uint64{
			st.BytesRecv, st.BytesSent,
			st.PacketsRecv, st.PacketsSent,
			st.Errin, st.Errout,
			st.Dropin, st.Dropout,
		}
		for i, name := range networkCounters {
			path := prefix + name
			v := c.rc.Rate(path, float64(raw[i]), rate.MaxCounter64)
			sample := models.NewRate(path, s.now, models.Float(v))
			s.add(sample)
			cache.Add(sample)
		}
	}

	for _, name := range networkCounters {
		pattern := `network\.[^.]+\.` + name + `$`
		if total, ok := cache.Sum(pattern, "network.total."+name); ok {
			s.add(total)
		}
		if avg, ok := cache.Avg(pattern, "network.avg."+name); ok {
			s.add(avg)
		}
	}
	return s.samples, nil
}

// IsAvailable returns true: network metrics are available on all platforms.
func (c *NetworkCollector) IsAvailable() bool { return true }
