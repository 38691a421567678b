package metrics

import (
	"math"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

const (
	// trend values are stored as integer thousandths: microseconds for time trends
	histScale = 1000
	// time trends clamp at one hour, other trends at one billion
	histMaxTime  = int64(time.Hour / time.Microsecond)
	histMaxValue = int64(1e9 * histScale)

	// ReservoirSize bounds the raw samples kept per trend series
	ReservoirSize = 1000
)

type sink interface {
	add(v float64, t time.Time)
	fill(a *Aggregate)
}

func newSink(typ Type, isTime bool) sink {
	switch typ {
	case Counter:
		return &counterSink{}
	case Gauge:
		return &gaugeSink{}
	case Rate:
		return &rateSink{}
	default:
		return newTrendSink(isTime)
	}
}

type counterSink struct {
	mu      sync.Mutex
	sum     float64
	count   int64
	first   time.Time
	buckets []float64
}

func (s *counterSink) add(v float64, t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.count == 0 {
		s.first = t.Truncate(time.Second)
	}
	s.sum += v
	s.count++

	idx := int(t.Sub(s.first) / time.Second)
	if idx < 0 {
		idx = 0
	}
	for len(s.buckets) <= idx {
		s.buckets = append(s.buckets, 0)
	}
	s.buckets[idx] += v
}

func (s *counterSink) fill(a *Aggregate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.Count = s.count
	a.Sum = s.sum
	a.Value = s.sum
	a.PerSecond = append([]float64(nil), s.buckets...)
}

type gaugeSink struct {
	mu       sync.Mutex
	value    float64
	min, max float64
	count    int64
}

func (s *gaugeSink) add(v float64, _ time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.count == 0 || v < s.min {
		s.min = v
	}
	if s.count == 0 || v > s.max {
		s.max = v
	}
	s.value = v
	s.count++
}

func (s *gaugeSink) fill(a *Aggregate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.Count = s.count
	a.Value = s.value
	a.Min = s.min
	a.Max = s.max
}

type rateSink struct {
	passes int64
	total  int64
}

func (s *rateSink) add(v float64, _ time.Time) {
	atomic.AddInt64(&s.total, 1)
	if v != 0 {
		atomic.AddInt64(&s.passes, 1)
	}
}

func (s *rateSink) fill(a *Aggregate) {
	// total is bumped before passes, so reading passes first keeps passes <= total
	passes := atomic.LoadInt64(&s.passes)
	total := atomic.LoadInt64(&s.total)
	a.Count = total
	a.Passes = passes
	a.Fails = total - passes
	if total > 0 {
		a.Rate = float64(passes) / float64(total)
	}
	a.Value = a.Rate
}

// trendSink keeps exact count/sum/min/max, an HDR histogram for quantiles
// and a bounded reservoir of raw values.
type trendSink struct {
	mu        sync.Mutex
	hist      *hdrhistogram.Histogram
	limit     int64
	count     int64
	sum       float64
	min, max  float64
	reservoir []float64
}

func newTrendSink(isTime bool) *trendSink {
	limit := histMaxValue
	if isTime {
		limit = histMaxTime
	}
	return &trendSink{
		hist:      hdrhistogram.New(1, limit, 3),
		limit:     limit,
		reservoir: make([]float64, 0, ReservoirSize),
	}
}

func (s *trendSink) add(v float64, _ time.Time) {
	scaled := int64(math.Round(v * histScale))
	if scaled < 0 {
		scaled = 0
	}
	if scaled > s.limit {
		scaled = s.limit
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.hist.RecordValue(scaled)
	if s.count == 0 || v < s.min {
		s.min = v
	}
	if s.count == 0 || v > s.max {
		s.max = v
	}
	s.count++
	s.sum += v

	if len(s.reservoir) < ReservoirSize {
		s.reservoir = append(s.reservoir, v)
	} else if j := rand.Int64N(s.count); j < ReservoirSize {
		s.reservoir[j] = v
	}
}

func (s *trendSink) fill(a *Aggregate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.Count = s.count
	a.Sum = s.sum
	a.Min = s.min
	a.Max = s.max
	if s.count > 0 {
		a.Avg = s.sum / float64(s.count)
	}
	a.Samples = append([]float64(nil), s.reservoir...)
	a.hist = hdrhistogram.Import(s.hist.Export())
	a.Med = a.P(50)
}
