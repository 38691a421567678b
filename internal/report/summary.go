package report

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"fxload/internal/checks"
	"fxload/internal/metrics"
	"fxload/internal/threshold"
)

// Meta describes the run a summary belongs to.
type Meta struct {
	RunID      string    `json:"runId"`
	ConfigFile string    `json:"configFile,omitempty"`
	Scenarios  []string  `json:"scenarios"`
	StartedAt  time.Time `json:"startedAt"`
	Duration   Duration  `json:"duration"`
	Aborted    bool      `json:"aborted,omitempty"`
}

// Duration marshals as a Go duration string.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MetricSummary is the exported aggregate of one metric. Which fields are
// set depends on Type.
type MetricSummary struct {
	Type   string  `json:"type"`
	IsTime bool    `json:"isTime,omitempty"`
	Count  int64   `json:"count"`
	Sum    float64 `json:"sum,omitempty"`
	Rate   float64 `json:"rate,omitempty"`
	Value  float64 `json:"value,omitempty"`
	Avg    float64 `json:"avg,omitempty"`
	Min    float64 `json:"min,omitempty"`
	Med    float64 `json:"med,omitempty"`
	Max    float64 `json:"max,omitempty"`
	P90    float64 `json:"p(90),omitempty"`
	P95    float64 `json:"p(95),omitempty"`
	P99    float64 `json:"p(99),omitempty"`
	Passes int64   `json:"passes,omitempty"`
	Fails  int64   `json:"fails,omitempty"`
}

// ThresholdResult is a threshold.Result with the error flattened for export.
type ThresholdResult struct {
	threshold.Result
	Error string `json:"error,omitempty"`
}

// Summary is everything reported at the end of a run.
type Summary struct {
	Meta       Meta                     `json:"meta"`
	Passed     bool                     `json:"passed"`
	Metrics    map[string]MetricSummary `json:"metrics"`
	Checks     []checks.Result          `json:"checks"`
	Thresholds []ThresholdResult        `json:"thresholds"`

	aggs []metrics.Aggregate
}

// Build snapshots every metric with at least one sample, plus the declared
// submetrics.
func Build(c *metrics.Collector, reg *checks.Registry, results []threshold.Result, meta Meta) *Summary {
	s := &Summary{
		Meta:    meta,
		Passed:  threshold.Passed(results) && !meta.Aborted,
		Metrics: make(map[string]MetricSummary),
	}
	for _, m := range c.Metrics() {
		agg := m.Snapshot()
		if agg.Empty() {
			continue
		}
		s.add(agg)
		for _, sub := range m.Submetrics() {
			if sa := sub.Snapshot(); !sa.Empty() {
				s.add(sa)
			}
		}
	}
	if reg != nil {
		s.Checks = reg.All()
	}
	for _, r := range results {
		tr := ThresholdResult{Result: r}
		if r.Err != nil {
			tr.Error = r.Err.Error()
		}
		s.Thresholds = append(s.Thresholds, tr)
	}
	return s
}

func (s *Summary) add(a metrics.Aggregate) {
	s.aggs = append(s.aggs, a)
	ms := MetricSummary{Type: a.Type.String(), IsTime: a.IsTime, Count: a.Count}
	switch a.Type {
	case metrics.Counter:
		ms.Sum, ms.Rate = a.Sum, a.Rate
	case metrics.Gauge:
		ms.Value, ms.Min, ms.Max = a.Value, a.Min, a.Max
	case metrics.Rate:
		ms.Rate, ms.Passes, ms.Fails = a.Rate, a.Passes, a.Fails
	case metrics.Trend:
		ms.Avg, ms.Min, ms.Med, ms.Max = a.Avg, a.Min, a.Med, a.Max
		ms.P90, ms.P95, ms.P99 = a.P(90), a.P(95), a.P(99)
	}
	s.Metrics[a.Name] = ms
}

// Aggregate returns the snapshot taken for name, if any.
func (s *Summary) Aggregate(name string) (metrics.Aggregate, bool) {
	for _, a := range s.aggs {
		if a.Name == name {
			return a, true
		}
	}
	return metrics.Aggregate{}, false
}

// WriteJSON exports the summary to path.
func WriteJSON(path string, s *Summary) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}
