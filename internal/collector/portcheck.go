// Port check collector: connection state counts per watched port and a TTL
// check while something listens on it.
package collector

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/net"

	"github.com/Guliveer/diamond-agent/internal/config"
	"github.com/Guliveer/diamond-agent/internal/models"
)

// ConnectionsFunc lists sockets of kind ("tcp", "udp", ...).
type ConnectionsFunc func(ctx context.Context, kind string) ([]net.ConnectionStat, error)

// PortCheckCollector watches configured ports.
type PortCheckCollector struct {
	ports       map[string]config.PortDef
	ttl         time.Duration
	connections ConnectionsFunc
	poster      CheckPoster
}

// NewPortCheckCollector creates a port check collector. A nil connections
// function uses gopsutil.
func NewPortCheckCollector(cfg config.PortCheckConfig, connections ConnectionsFunc, poster CheckPoster) *PortCheckCollector {
	if connections == nil {
		connections = net.ConnectionsWithContext
	}
	return &PortCheckCollector{
		ports:       cfg.Ports,
		ttl:         cfg.TTL.Duration,
		connections: connections,
		poster:      poster,
	}
}

// Name returns the collector identifier.
func (c *PortCheckCollector) Name() string { return "portcheck" }

// IsAvailable reports whether any port is configured.
func (c *PortCheckCollector) IsAvailable() bool { return len(c.ports) > 0 }

// Collect counts connections by state for each port. UDP sockets count as
// listening. A check named "<name>.<port>" is posted for every port with a
// listener.
func (c *PortCheckCollector) Collect(ctx context.Context) ([]models.Sample, error) {
	names := make([]string, 0, len(c.ports))
	for name := range c.ports {
		names = append(names, name)
	}
	sort.Strings(names)

	byProto := make(map[string][]net.ConnectionStat)
	s := newSampler()
	for _, name := range names {
		def := c.ports[name]
		proto := strings.ToLower(def.Proto)
		if proto == "" {
			proto = "tcp"
		}
		conns, ok := byProto[proto]
		if !ok {
			var err error
			conns, err = c.connections(ctx, proto)
			if err != nil {
				return s.samples, fmt.Errorf("list %s connections: %w", proto, err)
			}
			byProto[proto] = conns
		}

		counts := make(map[string]int64)
		for _, conn := range conns {
			if conn.Laddr.Port != def.Number {
				continue
			}
			status := "listen"
			if proto == "tcp" || proto == "tcp4" || proto == "tcp6" {
				status = strings.ToLower(conn.Status)
			}
			counts[status]++
		}

		states := make([]string, 0, len(counts))
		for st := range counts {
			states = append(states, st)
		}
		sort.Strings(states)
		for _, st := range states {
			s.gauge(fmt.Sprintf("port.%s.%s", sanitize(name), st), models.Int(counts[st]))
		}

		if counts["listen"] >= 1 && c.poster != nil {
			c.poster.PostCheck(ctx, models.Check{
				Name: fmt.Sprintf("%s.%d", name, def.Number),
				TTL:  c.ttl,
			})
		}
	}
	return s.samples, nil
}
