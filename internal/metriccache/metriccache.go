// Package metriccache holds the samples of one collection cycle so that
// aggregate samples (average rx bytes across interfaces, total disk reads)
// can be derived from them without collectors knowing about each other.
//
// A Cache lives for one cycle and is not safe for concurrent writers: each
// collector creates its own.
package metriccache

import (
	"regexp"

	"github.com/benbjohnson/clock"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Guliveer/diamond-agent/internal/models"
)

// patterns memoises compiled path patterns; the same handful recur every cycle.
var patterns *lru.Cache[string, *regexp.Regexp]

func init() {
	var err error
	patterns, err = lru.New[string, *regexp.Regexp](256)
	if err != nil {
		panic(err)
	}
}

// Cache is an append-only collection of samples.
type Cache struct {
	clock   clock.Clock
	samples []models.Sample
}

// New creates an empty cache stamped with the wall clock.
func New() *Cache {
	return NewWithClock(clock.New())
}

// NewWithClock creates an empty cache whose aggregates are stamped by c.
func NewWithClock(c clock.Clock) *Cache {
	return &Cache{clock: c}
}

// Add appends s. Duplicate paths are kept.
func (c *Cache) Add(s models.Sample) {
	c.samples = append(c.samples, s)
}

// Len returns the number of stored samples.
func (c *Cache) Len() int {
	return len(c.samples)
}

// Find returns, in insertion order, the samples whose path matches pattern.
// The pattern is a regular expression anchored at the start of the path only.
// An invalid pattern matches nothing.
func (c *Cache) Find(pattern string) []models.Sample {
	re, err := compile(pattern)
	if err != nil {
		return nil
	}
	var found []models.Sample
	for _, s := range c.samples {
		if re.MatchString(s.Path) {
			found = append(found, s)
		}
	}
	return found
}

// Avg returns the mean of the matched values as a float sample named name.
// ok is false when nothing matched.
func (c *Cache) Avg(pattern, name string) (models.Sample, bool) {
	found := c.Find(pattern)
	if len(found) == 0 {
		return models.Sample{}, false
	}
	var total float64
	for _, s := range found {
		total += s.Value.Float64()
	}
	return c.sample(name, models.Float(total/float64(len(found)))), true
}

// Sum returns the sum of the matched values. The sum stays integral when
// every matched value is integral.
func (c *Cache) Sum(pattern, name string) (models.Sample, bool) {
	found := c.Find(pattern)
	if len(found) == 0 {
		return models.Sample{}, false
	}
	if allInt(found) {
		var total int64
		for _, s := range found {
			total += s.Value.Int64()
		}
		return c.sample(name, models.Int(total)), true
	}
	var total float64
	for _, s := range found {
		total += s.Value.Float64()
	}
	return c.sample(name, models.Float(total)), true
}

// Max returns the largest matched value.
func (c *Cache) Max(pattern, name string) (models.Sample, bool) {
	return c.pick(pattern, name, func(a, b float64) bool { return a > b })
}

// Min returns the smallest matched value.
func (c *Cache) Min(pattern, name string) (models.Sample, bool) {
	return c.pick(pattern, name, func(a, b float64) bool { return a < b })
}

func (c *Cache) pick(pattern, name string, better func(a, b float64) bool) (models.Sample, bool) {
	found := c.Find(pattern)
	if len(found) == 0 {
		return models.Sample{}, false
	}
	best := found[0].Value
	for _, s := range found[1:] {
		if better(s.Value.Float64(), best.Float64()) {
			best = s.Value
		}
	}
	if !allInt(found) {
		best = models.Float(best.Float64())
	}
	return c.sample(name, best), true
}

func (c *Cache) sample(name string, v models.Value) models.Sample {
	return models.NewGauge(name, c.clock.Now(), v)
}

func allInt(samples []models.Sample) bool {
	for _, s := range samples {
		if !s.Value.IsInt() {
			return false
		}
	}
	return true
}

func compile(pattern string) (*regexp.Regexp, error) {
	if re, ok := patterns.Get(pattern); ok {
		return re, nil
	}
	re, err := regexp.Compile("^(?:" + pattern + ")")
	if err != nil {
		return nil, err
	}
	patterns.Add(pattern, re)
	return re, nil
}
