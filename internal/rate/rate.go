// Package rate turns monotonically increasing counters into per-interval
// deltas and per-second rates, tolerating counter wraparound and resets.
package rate

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/patrickmn/go-cache"
)

const (
	// MaxCounter32 is the wraparound ceiling of a 32-bit counter.
	MaxCounter32 float64 = 1<<32 - 1

	// MaxCounter64 is the wraparound ceiling of a 64-bit counter.
	MaxCounter64 float64 = 1<<64 - 1
)

// state is the last raw reading observed for one path.
type state struct {
	raw float64
	at  time.Time
}

// Computer keeps the previous reading of every counter path it has seen.
// Each collector owns its own Computer; nothing is shared between instances.
type Computer struct {
	clock  clock.Clock
	states *cache.Cache
	ttl    time.Duration

	// mu makes each read-modify-write of a path atomic.
	mu sync.Mutex
}

// Option configures a Computer.
type Option func(*Computer)

// WithClock sets the time source used to stamp observations.
func WithClock(c clock.Clock) Option {
	return func(rc *Computer) { rc.clock = c }
}

// WithStateTTL evicts paths that have not been observed for ttl, measured
// on the Computer's clock. A path that reappears after eviction warms up
// again. Zero keeps state forever.
func WithStateTTL(ttl time.Duration) Option {
	return func(rc *Computer) { rc.ttl = ttl }
}

// New creates an empty Computer.
func New(opts ...Option) *Computer {
	rc := &Computer{clock: clock.New()}
	for _, opt := range opts {
		opt(rc)
	}
	expiration := cache.NoExpiration
	cleanup := time.Duration(0)
	if rc.ttl > 0 {
		expiration = rc.ttl
		cleanup = rc.ttl
	}
	rc.states = cache.New(expiration, cleanup)
	return rc
}

// Derive returns how much the counter at path grew since the previous call.
//
// The first call for a path records a baseline and returns 0. When the counter
// went down it is assumed to have wrapped at maxCounter; if that still gives a
// negative delta (a reset to a lower baseline) the result is clamped to 0.
// The stored reading is always replaced by raw.
func (rc *Computer) Derive(path string, raw, maxCounter float64) float64 {
	delta, _ := rc.observe(path, raw, maxCounter)
	return delta
}

// Rate is Derive divided by the seconds elapsed since the previous call.
// It returns 0 on the first call and when no time has elapsed.
func (rc *Computer) Rate(path string, raw, maxCounter float64) float64 {
	delta, elapsed := rc.observe(path, raw, maxCounter)
	if elapsed <= 0 {
		return 0
	}
	return delta / elapsed.Seconds()
}

// Len returns the number of tracked paths.
func (rc *Computer) Len() int {
	return rc.states.ItemCount()
}

// Forget drops the state of path so its next observation warms up again.
func (rc *Computer) Forget(path string) {
	rc.states.Delete(path)
}

func (rc *Computer) observe(path string, raw, maxCounter float64) (float64, time.Duration) {
	now := rc.clock.Now()

	rc.mu.Lock()
	defer rc.mu.Unlock()

	prev, found := rc.states.Get(path)
	rc.states.SetDefault(path, state{raw: raw, at: now})
	if !found {
		return 0, 0
	}

	last := prev.(state)
	// The cache janitor only frees memory; staleness follows the clock.
	if rc.ttl > 0 && now.Sub(last.at) >= rc.ttl {
		return 0, 0
	}
	return delta(last.raw, raw, maxCounter), now.Sub(last.at)
}

func delta(last, raw, maxCounter float64) float64 {
	d := raw - last
	if d < 0 {
		d = (maxCounter - last) + raw + 1
	}
	if d < 0 {
		return 0
	}
	return d
}
