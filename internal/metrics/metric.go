package metrics

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Type decides how samples of a metric are aggregated
type Type int

const (
	Counter Type = iota
	Gauge
	Rate
	Trend
)

func (t Type) String() string {
	switch t {
	case Counter:
		return "counter"
	case Gauge:
		return "gauge"
	case Rate:
		return "rate"
	case Trend:
		return "trend"
	}
	return fmt.Sprintf("type(%d)", int(t))
}

// Tags label a sample. Treat them as read-only once recorded.
type Tags map[string]string

// With returns a copy of t with k set to v.
func (t Tags) With(k, v string) Tags {
	out := make(Tags, len(t)+1)
	for key, val := range t {
		out[key] = val
	}
	out[k] = v
	return out
}

// Contains reports whether every pair of sub is present in t.
func (t Tags) Contains(sub Tags) bool {
	for k, v := range sub {
		if got, ok := t[k]; !ok || got != v {
			return false
		}
	}
	return true
}

func (t Tags) String() string {
	if len(t) == 0 {
		return ""
	}
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ":" + t[k]
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func mergeTags(base, extra Tags) Tags {
	if len(base) == 0 {
		return extra
	}
	if len(extra) == 0 {
		return base
	}
	out := make(Tags, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// Sample is one observation
type Sample struct {
	Name  string
	Value float64
	Tags  Tags
	Time  time.Time
}

// Metric is a named series plus the submetrics declared on it
type Metric struct {
	Name   string
	Type   Type
	IsTime bool

	collector *Collector
	sink      sink

	mu   sync.RWMutex
	subs map[string]*Submetric
}

// Submetric aggregates the samples of its parent whose tags contain Tags
type Submetric struct {
	Name   string
	Parent *Metric
	Tags   Tags
	sink   sink
}

func newMetric(c *Collector, name string, typ Type, isTime bool) *Metric {
	return &Metric{
		Name:      name,
		Type:      typ,
		IsTime:    isTime,
		collector: c,
		sink:      newSink(typ, isTime),
		subs:      make(map[string]*Submetric),
	}
}

// Add records value for this metric and every matching submetric.
func (m *Metric) Add(value float64, tags Tags) {
	now := m.collector.now()
	m.sink.add(value, now)

	m.mu.RLock()
	for _, s := range m.subs {
		if tags.Contains(s.Tags) {
			s.sink.add(value, now)
		}
	}
	m.mu.RUnlock()
}

// Emit records value with the tags carried by ctx merged under tags.
// Nothing is recorded once ctx is done.
func (m *Metric) Emit(ctx context.Context, value float64, tags Tags) {
	if ctx.Err() != nil {
		return
	}
	m.Add(value, mergeTags(TagsFromContext(ctx), tags))
}

// AddBool records 1 for true and 0 for false, for rate metrics.
func (m *Metric) AddBool(ok bool, tags Tags) {
	v := 0.0
	if ok {
		v = 1
	}
	m.Add(v, tags)
}

// Submetric returns the submetric filtered by tags, creating it if needed.
// Samples recorded before creation are not replayed.
func (m *Metric) Submetric(tags Tags) *Submetric {
	name := m.Name + tags.String()

	m.mu.RLock()
	s, ok := m.subs[name]
	m.mu.RUnlock()
	if ok {
		return s
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok = m.subs[name]; ok {
		return s
	}
	s = &Submetric{Name: name, Parent: m, Tags: tags, sink: newSink(m.Type, m.IsTime)}
	m.subs[name] = s
	return s
}

// Submetrics lists the declared submetrics sorted by name.
func (m *Metric) Submetrics() []*Submetric {
	m.mu.RLock()
	out := make([]*Submetric, 0, len(m.subs))
	for _, s := range m.subs {
		out = append(out, s)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Snapshot returns a consistent aggregate as of now.
func (m *Metric) Snapshot() Aggregate {
	return m.collector.aggregate(m.Name, m, m.sink)
}

// Snapshot returns a consistent aggregate of the submetric as of now.
func (s *Submetric) Snapshot() Aggregate {
	return s.Parent.collector.aggregate(s.Name, s.Parent, s.sink)
}

// ParseSelector splits "name{k:v,k2:v2}" into the metric name and its tag filter.
func ParseSelector(sel string) (string, Tags, error) {
	sel = strings.TrimSpace(sel)
	open := strings.IndexByte(sel, '{')
	if open < 0 {
		if sel == "" {
			return "", nil, fmt.Errorf("empty metric selector")
		}
		return sel, nil, nil
	}
	if !strings.HasSuffix(sel, "}") {
		return "", nil, fmt.Errorf("metric selector %q: missing closing brace", sel)
	}
	name := strings.TrimSpace(sel[:open])
	if name == "" {
		return "", nil, fmt.Errorf("metric selector %q: missing metric name", sel)
	}

	body := strings.TrimSpace(sel[open+1 : len(sel)-1])
	if body == "" {
		return "", nil, fmt.Errorf("metric selector %q: empty tag filter", sel)
	}
	tags := make(Tags)
	for _, pair := range strings.Split(body, ",") {
		k, v, ok := strings.Cut(pair, ":")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return "", nil, fmt.Errorf("metric selector %q: tag %q is not key:value", sel, pair)
		}
		tags[k] = strings.TrimSpace(v)
	}
	return name, tags, nil
}
