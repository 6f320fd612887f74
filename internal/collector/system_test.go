package collector

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/net"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Guliveer/diamond-agent/internal/models"
	"github.com/Guliveer/diamond-agent/internal/rate"
)

func TestCPUPercentages(t *testing.T) {
	readings := [][]cpu.TimesStat{
		{{CPU: "cpu-total", User: 100, System: 50, Idle: 850}},
		{{CPU: "cpu-total", User: 130, System: 60, Idle: 910}},
	}
	call := 0
	c := NewCPUCollector(false, rate.New())
	c.times = func(context.Context, bool) ([]cpu.TimesStat, error) {
		r := readings[call]
		call++
		return r, nil
	}

	first, err := c.Collect(context.Background())
	require.NoError(t, err)
	assert.Empty(t, first, "first cycle only records a baseline")

	second, err := c.Collect(context.Background())
	require.NoError(t, err)

	// Deltas: user 30, system 10, idle 60 of 100.
	user, ok := find(second, "cpu.total.user")
	require.True(t, ok)
	assert.InDelta(t, 30.0, user.Value.Float64(), 1e-9)
	idle, _ := find(second, "cpu.total.idle")
	assert.InDelta(t, 60.0, idle.Value.Float64(), 1e-9)
	system, _ := find(second, "cpu.total.system")
	assert.InDelta(t, 10.0, system.Value.Float64(), 1e-9)
}

func TestNetworkRatesAndAggregates(t *testing.T) {
	mock := clock.NewMock()
	readings := [][]net.IOCountersStat{
		{
			{Name: "lo", BytesRecv: 1},
			{Name: "eth0", BytesRecv: 1000},
			{Name: "eth1", BytesRecv: 3000},
		},
		{
			{Name: "lo", BytesRecv: 999999},
			{Name: "eth0", BytesRecv: 2000},
			{Name: "eth1", BytesRecv: 5000},
		},
	}
	call := 0
	c := NewNetworkCollector(rate.New(rate.WithClock(mock)))
	c.counters = func(context.Context, bool) ([]net.IOCountersStat, error) {
		r := readings[call]
		call++
		return r, nil
	}

	_, err := c.Collect(context.Background())
	require.NoError(t, err)
	mock.Add(10 * time.Second)
	samples, err := c.Collect(context.Background())
	require.NoError(t, err)

	_, ok := find(samples, "network.lo.rx_byte")
	assert.False(t, ok, "loopback skipped")

	eth0, ok := find(samples, "network.eth0.rx_byte")
	require.True(t, ok)
	assert.Equal(t, models.Rate, eth0.Kind)
	assert.Equal(t, 100.0, eth0.Value.Float64())

	total, ok := find(samples, "network.total.rx_byte")
	require.True(t, ok)
	assert.Equal(t, 300.0, total.Value.Float64())

	avg, ok := find(samples, "network.avg.rx_byte")
	require.True(t, ok)
	assert.Equal(t, 150.0, avg.Value.Float64())
}

func TestDiskUsage(t *testing.T) {
	mock := clock.NewMock()
	readings := []map[string]disk.IOCountersStat{
		{"sda": {ReadCount: 100, WriteBytes: 4096, IoTime: 10}, "sdb": {ReadCount: 0}},
		{"sda": {ReadCount: 160, WriteBytes: 8192, IoTime: 25}, "sdb": {ReadCount: 40}},
	}
	call := 0
	c := NewDiskUsageCollector(rate.New(rate.WithClock(mock)))
	c.counters = func(context.Context, ...string) (map[string]disk.IOCountersStat, error) {
		r := readings[call]
		call++
		return r, nil
	}

	_, err := c.Collect(context.Background())
	require.NoError(t, err)
	mock.Add(2 * time.Second)
	samples, err := c.Collect(context.Background())
	require.NoError(t, err)

	reads, ok := find(samples, "diskusage.sda.reads_per_second")
	require.True(t, ok)
	assert.Equal(t, 30.0, reads.Value.Float64())

	io, ok := find(samples, "diskusage.sda.io_milliseconds")
	require.True(t, ok)
	assert.Equal(t, models.Counter, io.Kind)
	assert.Equal(t, 15.0, io.Value.Float64())

	total, ok := find(samples, "diskusage.total.reads_per_second")
	require.True(t, ok)
	assert.Equal(t, 50.0, total.Value.Float64())
}
