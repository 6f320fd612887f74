package collector

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/samuel/go-zookeeper/zk"
	gnet "github.com/shirou/gopsutil/v3/net"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Guliveer/diamond-agent/internal/config"
	"github.com/Guliveer/diamond-agent/internal/rate"
)

func TestZookeeper(t *testing.T) {
	calls := 0
	stats := func(servers []string, _ time.Duration) ([]*zk.ServerStats, bool) {
		calls++
		return []*zk.ServerStats{
			{AvgLatency: 2, Connections: 12, NodeCount: 40, Received: int64(100 * calls), Sent: int64(90 * calls), Mode: zk.ModeLeader},
			{Error: errors.New("connection refused")},
		}, false
	}
	c := NewZookeeperCollector([]string{"zk1:2181", "zk2:2181"}, stats, rate.New(), zap.NewNop())
	require.True(t, c.IsAvailable())

	_, err := c.Collect(context.Background())
	require.NoError(t, err)
	samples, err := c.Collect(context.Background())
	require.NoError(t, err)

	leader, ok := find(samples, "zookeeper.zk1_2181.zk_is_leader")
	require.True(t, ok)
	assert.Equal(t, int64(1), leader.Value.Int64())
	received, ok := find(samples, "zookeeper.zk1_2181.zk_packets_received")
	require.True(t, ok)
	assert.Equal(t, 100.0, received.Value.Float64())
	_, ok = find(samples, "zookeeper.zk2_2181.zk_avg_latency")
	assert.False(t, ok, "failed server skipped")
}

func TestZookeeperAllDown(t *testing.T) {
	stats := func(servers []string, _ time.Duration) ([]*zk.ServerStats, bool) {
		return []*zk.ServerStats{{Error: errors.New("timeout")}}, false
	}
	c := NewZookeeperCollector([]string{"zk1:2181"}, stats, rate.New(), zap.NewNop())
	_, err := c.Collect(context.Background())
	assert.Error(t, err)
}

func TestPortCheck(t *testing.T) {
	conns := func(_ context.Context, kind string) ([]gnet.ConnectionStat, error) {
		if kind != "tcp" {
			return nil, nil
		}
		return []gnet.ConnectionStat{
			{Laddr: gnet.Addr{Port: 22}, Status: "LISTEN"},
			{Laddr: gnet.Addr{Port: 22}, Status: "ESTABLISHED"},
			{Laddr: gnet.Addr{Port: 22}, Status: "ESTABLISHED"},
			{Laddr: gnet.Addr{Port: 8080}, Status: "TIME_WAIT"},
		}, nil
	}
	poster := &recordingPoster{}
	c := NewPortCheckCollector(config.PortCheckConfig{
		TTL: config.Duration{Duration: 150 * time.Second},
		Ports: map[string]config.PortDef{
			"ssh":  {Number: 22, Proto: "tcp"},
			"echo": {Number: 8080},
		},
	}, conns, poster)

	samples, err := c.Collect(context.Background())
	require.NoError(t, err)

	est, ok := find(samples, "port.ssh.established")
	require.True(t, ok)
	assert.Equal(t, int64(2), est.Value.Int64())
	_, ok = find(samples, "port.echo.time_wait")
	assert.True(t, ok)

	require.Len(t, poster.checks, 1, "only listening ports are checked")
	assert.Equal(t, "ssh.22", poster.checks[0].Name)
	assert.Equal(t, 150*time.Second, poster.checks[0].TTL)
}

func TestProcessCheck(t *testing.T) {
	list := func(context.Context) ([]ProcInfo, error) {
		return []ProcInfo{
			{Name: "nginx", Exe: "/usr/sbin/nginx", Status: []string{"sleep"}},
			{Name: "nginx", Exe: "/usr/sbin/nginx", Status: []string{"stop"}},
			{Name: "java", Cmdline: []string{"java", "-jar", "kafka.jar"}, Status: []string{"running"}},
		}, nil
	}
	poster := &recordingPoster{}
	c, err := NewProcessCheckCollector(config.ProcessCheckConfig{
		TTL: config.Duration{Duration: time.Minute},
		Processes: map[string]config.ProcessDef{
			"web":   {Exe: []string{"nginx$"}},
			"kafka": {Cmdline: []string{`kafka\.jar`}},
			"redis": {Name: []string{"^redis"}},
		},
	}, list, poster, zap.NewNop())
	require.NoError(t, err)

	samples, err := c.Collect(context.Background())
	require.NoError(t, err)

	web, ok := find(samples, "process.web.up")
	require.True(t, ok)
	assert.Equal(t, int64(1), web.Value.Int64(), "stopped process not counted")
	kafka, _ := find(samples, "process.kafka.up")
	assert.Equal(t, int64(1), kafka.Value.Int64())
	redis, _ := find(samples, "process.redis.up")
	assert.Equal(t, int64(0), redis.Value.Int64())

	names := []string{}
	for _, c := range poster.checks {
		names = append(names, c.Name)
	}
	assert.ElementsMatch(t, []string{"web", "kafka"}, names)
}

func TestProcessCheckBadPattern(t *testing.T) {
	_, err := NewProcessCheckCollector(config.ProcessCheckConfig{
		Processes: map[string]config.ProcessDef{"x": {Name: []string{"("}}},
	}, nil, nil, zap.NewNop())
	assert.Error(t, err)
}

func startDNSServer(t *testing.T) string {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	mux := dns.NewServeMux()
	mux.HandleFunc("good.example.", func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		rr, _ := dns.NewRR("good.example. 60 IN A 10.0.0.1")
		m.Answer = append(m.Answer, rr)
		w.WriteMsg(m)
	})
	mux.HandleFunc(".", func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetRcode(r, dns.RcodeNameError)
		w.WriteMsg(m)
	})

	started := make(chan struct{})
	srv := &dns.Server{PacketConn: pc, Handler: mux, NotifyStartedFunc: func() { close(started) }}
	go srv.ActivateAndServe()
	<-started
	t.Cleanup(func() { srv.Shutdown() })
	return pc.LocalAddr().String()
}

func TestDNSCheck(t *testing.T) {
	addr := startDNSServer(t)
	poster := &recordingPoster{}
	c := NewDNSCheckCollector(config.DNSCheckConfig{
		TTL:      config.Duration{Duration: time.Minute},
		Names:    []string{"good.example", "missing.example"},
		Resolver: addr,
	}, poster, zap.NewNop())
	require.True(t, c.IsAvailable())

	samples, err := c.Collect(context.Background())
	require.NoError(t, err)

	good, ok := find(samples, "dns.good_example.resolved")
	require.True(t, ok)
	assert.Equal(t, int64(1), good.Value.Int64())
	missing, ok := find(samples, "dns.missing_example.resolved")
	require.True(t, ok)
	assert.Equal(t, int64(0), missing.Value.Int64())

	require.Len(t, poster.checks, 1)
	assert.Equal(t, "good.example", poster.checks[0].Name)
}
