// Package models defines the metric data structures used throughout the agent.
// These structures are serialized to JSON for transmission to the ingestion API.
package models

import (
	"fmt"
	"math"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
)

// Kind tells downstream consumers how to interpret a sample's value.
type Kind string

const (
	Gauge   Kind = "GAUGE"
	Counter Kind = "COUNTER"
	Rate    Kind = "RATE"
)

// Value is a numeric measurement that remembers whether it was integral.
// Aggregations use this to keep integer sums integral.
type Value struct {
	i       int64
	f       float64
	isFloat bool
}

// Int returns an integral Value.
func Int(v int64) Value { return Value{i: v} }

// Float returns a floating point Value.
func Float(v float64) Value { return Value{f: v, isFloat: true} }

// IsInt reports whether the value is integral.
func (v Value) IsInt() bool { return !v.isFloat }

// Int64 returns the value truncated to an int64.
func (v Value) Int64() int64 {
	if v.isFloat {
		return int64(v.f)
	}
	return v.i
}

// Float64 returns the value as a float64.
func (v Value) Float64() float64 {
	if v.isFloat {
		return v.f
	}
	return float64(v.i)
}

func (v Value) String() string {
	if v.isFloat {
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	}
	return strconv.FormatInt(v.i, 10)
}

// IsFinite reports whether the value can be encoded as a JSON number.
func (v Value) IsFinite() bool {
	return !v.isFloat || !(math.IsNaN(v.f) || math.IsInf(v.f, 0))
}

// MarshalJSON encodes the value as a bare JSON number.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.isFloat {
		if !v.IsFinite() {
			return nil, fmt.Errorf("unsupported value %v", v.f)
		}
		return []byte(strconv.FormatFloat(v.f, 'g', -1, 64)), nil
	}
	return []byte(strconv.FormatInt(v.i, 10)), nil
}

// UnmarshalJSON decodes a JSON number, keeping integers integral.
func (v *Value) UnmarshalJSON(data []byte) error {
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if i, err := n.Int64(); err == nil {
		*v = Int(i)
		return nil
	}
	f, err := n.Float64()
	if err != nil {
		return err
	}
	*v = Float(f)
	return nil
}

// Sample is one timestamped, named, typed scalar measurement.
// Samples are passed by value and never mutated after creation.
type Sample struct {
	Path      string
	Timestamp time.Time
	Value     Value
	Kind      Kind
	Host      string
}

type sampleJSON struct {
	Path      string `json:"path"`
	Timestamp int64  `json:"timestamp"`
	Value     Value  `json:"value"`
	Kind      Kind   `json:"kind"`
	Host      string `json:"host,omitempty"`
}

// MarshalJSON encodes the timestamp as unix seconds.
func (s Sample) MarshalJSON() ([]byte, error) {
	return json.Marshal(sampleJSON{
		Path:      s.Path,
		Timestamp: s.Timestamp.Unix(),
		Value:     s.Value,
		Kind:      s.Kind,
		Host:      s.Host,
	})
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (s *Sample) UnmarshalJSON(data []byte) error {
	var raw sampleJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = Sample{
		Path:      raw.Path,
		Timestamp: time.Unix(raw.Timestamp, 0).UTC(),
		Value:     raw.Value,
		Kind:      raw.Kind,
		Host:      raw.Host,
	}
	return nil
}

// NewGauge creates a GAUGE sample.
func NewGauge(path string, ts time.Time, v Value) Sample {
	return Sample{Path: path, Timestamp: ts, Value: v, Kind: Gauge}
}

// NewCounter creates a COUNTER sample.
func NewCounter(path string, ts time.Time, v Value) Sample {
	return Sample{Path: path, Timestamp: ts, Value: v, Kind: Counter}
}

// NewRate creates a RATE sample.
func NewRate(path string, ts time.Time, v Value) Sample {
	return Sample{Path: path, Timestamp: ts, Value: v, Kind: Rate}
}

// WithHost returns a copy of the sample reported on behalf of host.
func (s Sample) WithHost(host string) Sample {
	s.Host = host
	return s
}

// Check is a liveness signal: the sink raises an alert if it is not renewed
// within TTL.
type Check struct {
	Name string
	Host string
	TTL  time.Duration
}

// CollectorResult holds the output of a single collector run.
type CollectorResult struct {
	Name    string
	Samples []Sample
	Err     error
}
