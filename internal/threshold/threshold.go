package threshold

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"fxload/internal/metrics"
)

var (
	ErrNoData        = errors.New("no samples recorded")
	ErrUnknownMetric = errors.New("threshold on unknown metric")
	ErrAborted       = errors.New("run aborted by threshold")
)

// Spec is one configured threshold on a metric selector.
type Spec struct {
	Threshold      string        `mapstructure:"threshold" json:"threshold" yaml:"threshold"`
	AbortOnFail    bool          `mapstructure:"abortOnFail" json:"abortOnFail,omitempty" yaml:"abortOnFail,omitempty"`
	DelayAbortEval time.Duration `mapstructure:"delayAbortEval" json:"delayAbortEval,omitempty" yaml:"delayAbortEval,omitempty"`
}

// Threshold is a Spec bound to its metric (or submetric) in a collector.
type Threshold struct {
	Selector string
	Spec
	Expr *Expr

	metric *metrics.Metric
	sub    *metrics.Submetric
}

func (t *Threshold) snapshot() metrics.Aggregate {
	if t.sub != nil {
		return t.sub.Snapshot()
	}
	return t.metric.Snapshot()
}

// Result is the outcome of one threshold.
type Result struct {
	Selector    string  `json:"metric"`
	Threshold   string  `json:"threshold"`
	Value       float64 `json:"value"`
	Pass        bool    `json:"ok"`
	AbortOnFail bool    `json:"abortOnFail,omitempty"`
	Err         error   `json:"-"`
}

// Set holds every threshold of a run.
type Set struct {
	Thresholds []*Threshold
	Log        zerolog.Logger

	collector *metrics.Collector
}

// Validate parses defs without a collector; it catches syntax errors and
// functions no metric type supports.
func Validate(defs map[string][]Spec) error {
	for sel, specs := range defs {
		if _, _, err := metrics.ParseSelector(sel); err != nil {
			return fmt.Errorf("threshold %q: %w", sel, err)
		}
		for _, s := range specs {
			e, err := Parse(s.Threshold)
			if err != nil {
				return fmt.Errorf("threshold %q: %w", sel, err)
			}
			known := false
			for typ := range Funcs {
				known = known || e.Supports(typ)
			}
			if !known {
				return fmt.Errorf("threshold %q: %w %q", sel, ErrUnsupportedFunc, e.Func)
			}
		}
	}
	return nil
}

// New binds defs to c. Metrics must be registered beforehand; selectors with
// tags declare their submetrics here so they see every later sample.
func New(c *metrics.Collector, defs map[string][]Spec, log zerolog.Logger) (*Set, error) {
	set := &Set{Log: log, collector: c}

	selectors := make([]string, 0, len(defs))
	for sel := range defs {
		selectors = append(selectors, sel)
	}
	sort.Strings(selectors)

	for _, sel := range selectors {
		name, _, err := metrics.ParseSelector(sel)
		if err != nil {
			return nil, fmt.Errorf("threshold %q: %w", sel, err)
		}
		if _, ok := c.Get(name); !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownMetric, name)
		}
		m, sub, err := c.Submetric(sel)
		if err != nil {
			return nil, fmt.Errorf("threshold %q: %w", sel, err)
		}
		for _, s := range defs[sel] {
			e, err := Parse(s.Threshold)
			if err != nil {
				return nil, fmt.Errorf("threshold %q: %w", sel, err)
			}
			if !e.Supports(m.Type) {
				return nil, fmt.Errorf("threshold %q: %w %q for %s metric", sel, ErrUnsupportedFunc, e.Func, m.Type)
			}
			set.Thresholds = append(set.Thresholds, &Threshold{Selector: sel, Spec: s, Expr: e, metric: m, sub: sub})
		}
	}
	return set, nil
}

// Evaluate checks every threshold against the collector's current state.
func (s *Set) Evaluate(ctx context.Context) []Result {
	out := make([]Result, 0, len(s.Thresholds))
	for _, t := range s.Thresholds {
		out = append(out, s.evaluate(ctx, t))
	}
	return out
}

func (s *Set) evaluate(ctx context.Context, t *Threshold) Result {
	r := Result{Selector: t.Selector, Threshold: t.Expr.Source, AbortOnFail: t.AbortOnFail}
	agg := t.snapshot()
	if agg.Empty() {
		r.Err = ErrNoData
		return r
	}
	r.Value = t.Expr.Value(agg)
	ok, err := t.Expr.Compare(ctx, r.Value)
	if err != nil {
		r.Err = err
		return r
	}
	r.Pass = ok
	return r
}

// Passed is true when every result passed.
func Passed(results []Result) bool {
	for _, r := range results {
		if !r.Pass {
			return false
		}
	}
	return true
}

// Watch evaluates abortOnFail thresholds every interval until ctx is done.
// A failure returns an error wrapping ErrAborted; thresholds without data
// yet are skipped.
func (s *Set) Watch(ctx context.Context, interval time.Duration) error {
	var watched []*Threshold
	for _, t := range s.Thresholds {
		if t.AbortOnFail {
			watched = append(watched, t)
		}
	}
	if len(watched) == 0 {
		return nil
	}
	if interval <= 0 {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		elapsed := time.Since(s.collector.Start())
		for _, t := range watched {
			if elapsed < t.DelayAbortEval {
				continue
			}
			r := s.evaluate(ctx, t)
			if r.Pass || errors.Is(r.Err, ErrNoData) {
				continue
			}
			s.Log.Warn().
				Str("metric", r.Selector).
				Str("threshold", r.Threshold).
				Float64("value", r.Value).
				Msg("Threshold crossed, aborting run")
			return fmt.Errorf("%w: %s %s", ErrAborted, r.Selector, r.Threshold)
		}
	}
}
