package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Guliveer/diamond-agent/internal/models"
)

type fakeRegistry struct {
	mu     sync.Mutex
	cycles int
}

func (f *fakeRegistry) CollectAll(context.Context) []models.CollectorResult {
	f.mu.Lock()
	f.cycles++
	f.mu.Unlock()
	now := time.Now()
	return []models.CollectorResult{
		{Name: "cpu", Samples: []models.Sample{
			models.NewGauge("cpu.total.idle", now, models.Float(90)),
			models.NewGauge("cpu.total.user", now, models.Float(10)),
		}},
		{Name: "docker", Err: errors.New("daemon unreachable")},
		{Name: "heartbeat", Samples: []models.Sample{
			models.NewGauge("metrics.heartbeat", now, models.Int(1)),
		}},
	}
}

func (f *fakeRegistry) Cycles() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cycles
}

type fakePublisher struct {
	mu     sync.Mutex
	paths  []string
	closed bool
}

func (f *fakePublisher) Process(_ context.Context, s models.Sample) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, s.Path)
}

func (f *fakePublisher) Close(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return ctx.Err()
}

func (f *fakePublisher) snapshot() ([]string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.paths...), f.closed
}

func TestStartCollectsImmediatelyInOrder(t *testing.T) {
	reg := &fakeRegistry{}
	pub := &fakePublisher{}
	s := New(reg, pub, time.Hour, time.Second, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	assert.Eventually(t, func() bool { return reg.Cycles() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	paths, closed := pub.snapshot()
	assert.Equal(t, []string{"cpu.total.idle", "cpu.total.user", "metrics.heartbeat"}, paths)
	assert.True(t, closed, "publisher closed on shutdown")
}

func TestStartCollectsEveryInterval(t *testing.T) {
	reg := &fakeRegistry{}
	pub := &fakePublisher{}
	s := New(reg, pub, 10*time.Millisecond, 0, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	assert.Eventually(t, func() bool { return reg.Cycles() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestTimeoutCappedByInterval(t *testing.T) {
	s := New(&fakeRegistry{}, &fakePublisher{}, time.Second, time.Minute, zap.NewNop())
	assert.Equal(t, time.Second, s.timeout)
}
