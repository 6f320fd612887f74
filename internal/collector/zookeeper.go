// Zookeeper collector: ensemble member statistics from the "srvr" four
// letter word.
package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/samuel/go-zookeeper/zk"
	"go.uber.org/zap"

	"github.com/Guliveer/diamond-agent/internal/models"
	"github.com/Guliveer/diamond-agent/internal/rate"
)

// ZKStatsFunc queries servers with "srvr". The returned slice matches
// servers by index; ok is false if any server failed.
type ZKStatsFunc func(servers []string, timeout time.Duration) (stats []*zk.ServerStats, ok bool)

const zkTimeout = 5 * time.Second

// ZookeeperCollector collects Zookeeper server statistics.
type ZookeeperCollector struct {
	servers []string
	stats   ZKStatsFunc
	rc      *rate.Computer
	logger  *zap.Logger
}

// NewZookeeperCollector creates a collector for servers ("host:port").
// A nil stats function uses zk.FLWSrvr.
func NewZookeeperCollector(servers []string, stats ZKStatsFunc, rc *rate.Computer, logger *zap.Logger) *ZookeeperCollector {
	if stats == nil {
		stats = zk.FLWSrvr
	}
	return &ZookeeperCollector{servers: servers, stats: stats, rc: rc, logger: logger}
}

// Name returns the collector identifier.
func (c *ZookeeperCollector) Name() string { return "zookeeper" }

// IsAvailable reports whether any server is configured.
func (c *ZookeeperCollector) IsAvailable() bool { return len(c.servers) > 0 }

// Collect reports per-server gauges and packet counters. Servers that do
// not answer are skipped; the cycle fails only if none answered.
func (c *ZookeeperCollector) Collect(ctx context.Context) ([]models.Sample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	timeout := zkTimeout
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < timeout {
		timeout = time.Until(deadline)
	}

	stats, _ := c.stats(c.servers, timeout)

	s := newSampler()
	answered := 0
	for i, st := range stats {
		if i >= len(c.servers) || st == nil {
			continue
		}
		server := c.servers[i]
		if st.Error != nil {
			c.logger.Warn("Zookeeper server did not answer",
				zap.String("server", server),
				zap.Error(st.Error))
			continue
		}
		answered++

		prefix := "zookeeper." + sanitize(server) + "."
		s.gauge(prefix+"zk_avg_latency", models.Int(st.AvgLatency))
		s.gauge(prefix+"zk_min_latency", models.Int(st.MinLatency))
		s.gauge(prefix+"zk_max_latency", models.Int(st.MaxLatency))
		s.gauge(prefix+"zk_num_alive_connections", models.Int(st.Connections))
		s.gauge(prefix+"zk_znode_count", models.Int(st.NodeCount))
		leader := int64(0)
		if st.Mode == zk.ModeLeader {
			leader = 1
		}
		s.gauge(prefix+"zk_is_leader", models.Int(leader))

		for _, ctr := range []struct {
			name string
			raw  int64
		}{
			{"zk_packets_received", st.Received},
			{"zk_packets_sent", st.Sent},
		} {
			path := prefix + ctr.name
			s.counter(path, c.rc.Derive(path, float64(ctr.raw), rate.MaxCounter64))
		}
	}

	if answered == 0 {
		return nil, fmt.Errorf("no zookeeper server answered (%d configured)", len(c.servers))
	}
	return s.samples, nil
}
