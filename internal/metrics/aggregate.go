package metrics

import (
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Aggregate is a point-in-time copy of everything recorded for one metric
// or submetric. Which fields are meaningful depends on Type.
type Aggregate struct {
	Name   string
	Metric string
	Type   Type
	IsTime bool

	Count int64
	Sum   float64
	Min   float64
	Max   float64
	Avg   float64
	Med   float64

	// Value is the last value for gauges, the sum for counters and the rate for rates
	Value float64

	// Rate is passes/total for rates and sum per second of run time for counters
	Rate   float64
	Passes int64
	Fails  int64

	PerSecond []float64
	Samples   []float64
	Elapsed   time.Duration

	hist *hdrhistogram.Histogram
}

// P returns the approximate q-th percentile (0..100) of a trend, clamped to the
// exact observed min and max.
func (a Aggregate) P(q float64) float64 {
	if a.hist == nil || a.Count == 0 {
		return 0
	}
	v := float64(a.hist.ValueAtQuantile(q)) / histScale
	if v < a.Min {
		v = a.Min
	}
	if v > a.Max {
		v = a.Max
	}
	return v
}

// Empty reports whether no sample has been recorded.
func (a Aggregate) Empty() bool {
	return a.Count == 0
}
