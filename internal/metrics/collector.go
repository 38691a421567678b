package metrics

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Collector is the single registry of metrics for a run. It is safe for
// concurrent use and is passed explicitly to every component that records.
type Collector struct {
	mu      sync.RWMutex
	metrics map[string]*Metric
	start   time.Time
	now     func() time.Time
}

// NewCollector returns a collector with the built-in metrics registered.
func NewCollector() *Collector {
	c := &Collector{
		metrics: make(map[string]*Metric),
		now:     time.Now,
	}
	c.start = c.now()
	registerBuiltins(c)
	return c
}

// Start is the reference time used for counter rates.
func (c *Collector) Start() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.start
}

// ResetStart moves the reference time, typically to the moment the run begins.
func (c *Collector) ResetStart(t time.Time) {
	c.mu.Lock()
	c.start = t
	c.mu.Unlock()
}

// Register declares name with a type. Declaring an existing name with the same
// type returns the existing metric; a different type panics.
func (c *Collector) Register(name string, typ Type, isTime bool) *Metric {
	c.mu.RLock()
	m, ok := c.metrics[name]
	c.mu.RUnlock()
	if !ok {
		c.mu.Lock()
		if m, ok = c.metrics[name]; !ok {
			m = newMetric(c, name, typ, isTime)
			c.metrics[name] = m
		}
		c.mu.Unlock()
	}
	if m.Type != typ {
		panic(fmt.Sprintf("metrics: %q already registered as %s, not %s", name, m.Type, typ))
	}
	return m
}

func (c *Collector) Counter(name string) *Metric { return c.Register(name, Counter, false) }

func (c *Collector) Gauge(name string) *Metric { return c.Register(name, Gauge, false) }

func (c *Collector) Rate(name string) *Metric { return c.Register(name, Rate, false) }

func (c *Collector) Trend(name string, isTime bool) *Metric { return c.Register(name, Trend, isTime) }

// Get looks up a metric without creating it.
func (c *Collector) Get(name string) (*Metric, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.metrics[name]
	return m, ok
}

// Record appends one sample. Unknown names become non-time trends, whose
// percentiles are exact to three significant digits up to 1e9; larger values
// only show in max.
func (c *Collector) Record(name string, value float64, tags Tags) {
	m, ok := c.Get(name)
	if !ok {
		m = c.Register(name, Trend, false)
	}
	m.Add(value, tags)
}

// Push records a prepared sample.
func (c *Collector) Push(s Sample) {
	c.Record(s.Name, s.Value, s.Tags)
}

// Emit is Record with context tags, skipped once ctx is done.
func (c *Collector) Emit(ctx context.Context, name string, value float64, tags Tags) {
	if ctx.Err() != nil {
		return
	}
	c.Record(name, value, mergeTags(TagsFromContext(ctx), tags))
}

// Metrics returns every registered metric sorted by name.
func (c *Collector) Metrics() []*Metric {
	c.mu.RLock()
	out := make([]*Metric, 0, len(c.metrics))
	for _, m := range c.metrics {
		out = append(out, m)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Snapshot returns the aggregate of name. ok is false for unknown names.
func (c *Collector) Snapshot(name string) (Aggregate, bool) {
	m, ok := c.Get(name)
	if !ok {
		return Aggregate{Name: name}, false
	}
	return m.Snapshot(), true
}

// Submetric resolves a "name{k:v}" selector, declaring the submetric if the
// selector has tags. The parent metric must already be registered.
func (c *Collector) Submetric(sel string) (*Metric, *Submetric, error) {
	name, tags, err := ParseSelector(sel)
	if err != nil {
		return nil, nil, err
	}
	m, ok := c.Get(name)
	if !ok {
		return nil, nil, fmt.Errorf("no metric named %q", name)
	}
	if len(tags) == 0 {
		return m, nil, nil
	}
	return m, m.Submetric(tags), nil
}

// SnapshotSelector returns the aggregate for a metric or submetric selector.
func (c *Collector) SnapshotSelector(sel string) (Aggregate, error) {
	m, sub, err := c.Submetric(sel)
	if err != nil {
		return Aggregate{}, err
	}
	if sub != nil {
		return sub.Snapshot(), nil
	}
	return m.Snapshot(), nil
}

func (c *Collector) aggregate(name string, m *Metric, s sink) Aggregate {
	a := Aggregate{
		Name:    name,
		Metric:  m.Name,
		Type:    m.Type,
		IsTime:  m.IsTime,
		Elapsed: c.now().Sub(c.Start()),
	}
	s.fill(&a)
	if m.Type == Counter && a.Elapsed > 0 {
		a.Rate = a.Sum / a.Elapsed.Seconds()
	}
	return a
}
