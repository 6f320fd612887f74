package metriccache

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Guliveer/diamond-agent/internal/models"
)

func gauge(path string, v models.Value) models.Sample {
	return models.NewGauge(path, time.Unix(1700000000, 0), v)
}

func networkCache() *Cache {
	c := New()
	c.Add(gauge("net.eth0.rx", models.Int(100)))
	c.Add(gauge("net.eth1.rx", models.Int(200)))
	c.Add(gauge("net.eth0.tx", models.Int(5)))
	return c
}

func TestFind(t *testing.T) {
	found := networkCache().Find("net.*.rx")

	require.Len(t, found, 2)
	assert.Equal(t, "net.eth0.rx", found[0].Path)
	assert.Equal(t, "net.eth1.rx", found[1].Path)
}

func TestFindIsAnchoredAtStartOnly(t *testing.T) {
	c := New()
	c.Add(gauge("network.eth0.rx_byte", models.Int(1000)))
	c.Add(gauge("host.network.eth0.rx_byte", models.Int(1)))

	found := c.Find("network")
	require.Len(t, found, 1)
	assert.Equal(t, "network.eth0.rx_byte", found[0].Path)
}

func TestFindNoMatchOrBadPattern(t *testing.T) {
	c := networkCache()
	assert.Empty(t, c.Find("disk.*"))
	assert.Empty(t, c.Find("net.(eth"))
}

func TestFindKeepsDuplicates(t *testing.T) {
	c := New()
	c.Add(gauge("a.b", models.Int(1)))
	c.Add(gauge("a.b", models.Int(2)))
	assert.Len(t, c.Find("a.b"), 2)
}

func TestAvg(t *testing.T) {
	mock := clock.NewMock()
	mock.Set(time.Unix(1700000100, 0))
	c := NewWithClock(mock)
	c.Add(gauge("net.eth0.rx", models.Int(100)))
	c.Add(gauge("net.eth1.rx", models.Int(200)))
	c.Add(gauge("net.eth0.tx", models.Int(5)))

	s, ok := c.Avg("net.*.rx", "net.rx.avg")
	require.True(t, ok)
	assert.Equal(t, "net.rx.avg", s.Path)
	assert.False(t, s.Value.IsInt())
	assert.Equal(t, 150.0, s.Value.Float64())
	assert.Equal(t, models.Gauge, s.Kind)
	assert.Equal(t, mock.Now(), s.Timestamp)
}

func TestAvgUsesTrueDivision(t *testing.T) {
	c := New()
	c.Add(gauge("x.a", models.Int(1)))
	c.Add(gauge("x.b", models.Int(2)))

	s, ok := c.Avg("x", "x.avg")
	require.True(t, ok)
	assert.Equal(t, 1.5, s.Value.Float64())
}

func TestSumMaxMin(t *testing.T) {
	c := networkCache()

	tests := []struct {
		name string
		agg  func(string, string) (models.Sample, bool)
		want int64
	}{
		{"sum", c.Sum, 300},
		{"max", c.Max, 200},
		{"min", c.Min, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, ok := tt.agg("net.*.rx", "net.rx."+tt.name)
			require.True(t, ok)
			assert.Equal(t, "net.rx."+tt.name, s.Path)
			assert.True(t, s.Value.IsInt(), "integer inputs keep integer type")
			assert.Equal(t, tt.want, s.Value.Int64())
		})
	}
}

func TestMixedTypesPromoteToFloat(t *testing.T) {
	c := New()
	c.Add(gauge("disk.sda.util", models.Int(2)))
	c.Add(gauge("disk.sdb.util", models.Float(0.5)))

	sum, ok := c.Sum("disk", "disk.util.total")
	require.True(t, ok)
	assert.False(t, sum.Value.IsInt())
	assert.Equal(t, 2.5, sum.Value.Float64())

	hi, ok := c.Max("disk", "disk.util.max")
	require.True(t, ok)
	assert.False(t, hi.Value.IsInt())
	assert.Equal(t, 2.0, hi.Value.Float64())
}

func TestAggregatesAbsentOnEmptyMatch(t *testing.T) {
	c := networkCache()
	aggs := map[string]func(string, string) (models.Sample, bool){
		"avg": c.Avg, "sum": c.Sum, "max": c.Max, "min": c.Min,
	}
	for name, agg := range aggs {
		_, ok := agg("cpu.*", "cpu."+name)
		assert.False(t, ok, name)
	}
}
