// Docker collector: container counts and per-container resource usage read
// from the daemon's stats API.
package collector

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/Guliveer/diamond-agent/internal/config"
	"github.com/Guliveer/diamond-agent/internal/models"
	"github.com/Guliveer/diamond-agent/internal/rate"
)

// DockerAPI is the subset of the Docker client the collector uses.
type DockerAPI interface {
	ContainerList(ctx context.Context, options container.ListOptions) ([]types.Container, error)
	ContainerStats(ctx context.Context, containerID string, stream bool) (types.ContainerStats, error)
	ContainerInspect(ctx context.Context, containerID string) (types.ContainerJSON, error)
}

// DockerCollector collects container metrics.
type DockerCollector struct {
	client DockerAPI
	cfg    config.DockerConfig
	rc     *rate.Computer
	logger *zap.Logger
}

// NewDockerCollector creates a Docker collector. A nil client makes the
// collector unavailable.
func NewDockerCollector(client DockerAPI, cfg config.DockerConfig, rc *rate.Computer, logger *zap.Logger) *DockerCollector {
	return &DockerCollector{client: client, cfg: cfg, rc: rc, logger: logger}
}

// Name returns the collector identifier.
func (c *DockerCollector) Name() string { return "docker" }

// IsAvailable reports whether a Docker client was configured.
func (c *DockerCollector) IsAvailable() bool { return c.client != nil }

// Collect reports container counts and, per running container, either the
// full stats or only CPU and memory percentages. A container that fails is
// logged and skipped.
func (c *DockerCollector) Collect(ctx context.Context) ([]models.Sample, error) {
	all, err := c.client.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}

	var running []types.Container
	for _, ct := range all {
		if ct.State == "running" {
			running = append(running, ct)
		}
	}

	s := newSampler()
	s.gauge("containers.counts.running", models.Int(int64(len(running))))
	s.gauge("containers.counts.stopped", models.Int(int64(len(all)-len(running))))
	s.gauge("containers.counts.all_containers", models.Int(int64(len(all))))

	for _, ct := range running {
		name := containerName(ct)
		if err := c.collectContainer(ctx, s, ct.ID, name); err != nil {
			c.logger.Warn("Unable to collect container",
				zap.String("container", name),
				zap.Error(err))
		}
	}
	return s.samples, nil
}

func (c *DockerCollector) collectContainer(ctx context.Context, s *sampler, id, name string) error {
	prefix := "containers." + sanitize(name) + "."

	if c.cfg.Uptime {
		info, err := c.client.ContainerInspect(ctx, id)
		if err == nil && info.ContainerJSONBase != nil && info.State != nil {
			if started, err := time.Parse(time.RFC3339Nano, info.State.StartedAt); err == nil {
				s.gauge(prefix+"netuitive.docker.uptime.seconds", models.Int(int64(s.now.Sub(started).Seconds())))
			}
		}
	}

	resp, err := c.client.ContainerStats(ctx, id, false)
	if err != nil {
		return fmt.Errorf("stats: %w", err)
	}
	defer resp.Body.Close()

	var st types.StatsJSON
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return fmt.Errorf("decode stats: %w", err)
	}

	if c.cfg.Minimal {
		c.minimal(s, prefix, st)
		return nil
	}
	c.full(s, prefix, st)
	return nil
}

// minimal reports memory use as a share of the limit and CPU use as a share
// of the host's CPU time since the previous cycle.
func (c *DockerCollector) minimal(s *sampler, prefix string, st types.StatsJSON) {
	if st.MemoryStats.Limit > 0 {
		s.gauge(prefix+"netuitive.docker.memory.container_memory_percent",
			models.Float(100*float64(st.MemoryStats.Usage)/float64(st.MemoryStats.Limit)))
	}

	usage := c.rc.Derive(prefix+"cpu.cpu_usage.total_usage", float64(st.CPUStats.CPUUsage.TotalUsage), rate.MaxCounter64)
	total := c.rc.Derive(prefix+"cpu.system_cpu_usage", float64(st.CPUStats.SystemUsage), rate.MaxCounter64)
	if total != 0 {
		s.gauge(prefix+"netuitive.docker.cpu.container_cpu_percent", models.Float(100*usage/total))
	}
}

// full reports memory gauges and CPU and network counters.
func (c *DockerCollector) full(s *sampler, prefix string, st types.StatsJSON) {
	mem := st.MemoryStats
	s.gauge(prefix+"memory.usage", byteCount(mem.Usage))
	s.gauge(prefix+"memory.max_usage", byteCount(mem.MaxUsage))
	s.gauge(prefix+"memory.limit", byteCount(mem.Limit))
	s.gauge(prefix+"memory.failcnt", byteCount(mem.Failcnt))
	keys := make([]string, 0, len(mem.Stats))
	for k := range mem.Stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		s.gauge(prefix+"memory.stats."+k, byteCount(mem.Stats[k]))
	}

	cpu := st.CPUStats
	c.count(s, prefix+"cpu.cpu_usage.total_usage", cpu.CPUUsage.TotalUsage)
	c.count(s, prefix+"cpu.cpu_usage.usage_in_kernelmode", cpu.CPUUsage.UsageInKernelmode)
	c.count(s, prefix+"cpu.cpu_usage.usage_in_usermode", cpu.CPUUsage.UsageInUsermode)
	c.count(s, prefix+"cpu.system_cpu_usage", cpu.SystemUsage)
	for i, v := range cpu.CPUUsage.PercpuUsage {
		c.count(s, fmt.Sprintf("%scpu.cpu_usage.percpu_usage%d", prefix, i), v)
	}
	c.count(s, prefix+"cpu.throttling_data.throttled_periods", cpu.ThrottlingData.ThrottledPeriods)
	c.count(s, prefix+"cpu.throttling_data.throttled_time", cpu.ThrottlingData.ThrottledTime)

	ifaces := make([]string, 0, len(st.Networks))
	for k := range st.Networks {
		ifaces = append(ifaces, k)
	}
	sort.Strings(ifaces)
	for _, iface := range ifaces {
		n := st.Networks[iface]
		p := prefix + "network." + sanitize(iface) + "."
		c.count(s, p+"rx_bytes", n.RxBytes)
		c.count(s, p+"rx_packets", n.RxPackets)
		c.count(s, p+"rx_errors", n.RxErrors)
		c.count(s, p+"rx_dropped", n.RxDropped)
		c.count(s, p+"tx_bytes", n.TxBytes)
		c.count(s, p+"tx_packets", n.TxPackets)
		c.count(s, p+"tx_errors", n.TxErrors)
		c.count(s, p+"tx_dropped", n.TxDropped)
	}
}

func (c *DockerCollector) count(s *sampler, path string, raw uint64) {
	s.counter(path, c.rc.Derive(path, float64(raw), rate.MaxCounter64))
}

// containerName picks the container's own name ("/web") over link aliases
// ("/app/web") and strips the leading slash.
func containerName(ct types.Container) string {
	for _, n := range ct.Names {
		if strings.Count(n, "/") == 1 {
			return strings.TrimPrefix(n, "/")
		}
	}
	if len(ct.Names) > 0 {
		return strings.TrimPrefix(ct.Names[0], "/")
	}
	if len(ct.ID) > 12 {
		return ct.ID[:12]
	}
	return ct.ID
}
