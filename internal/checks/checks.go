package checks

import (
	"context"
	"sort"
	"sync"

	"fxload/internal/metrics"
)

// Result is the tally of one named check.
type Result struct {
	Name   string `json:"name"`
	Group  string `json:"group,omitempty"`
	Passes uint64 `json:"passes"`
	Fails  uint64 `json:"fails"`
}

// Registry records checks into the "checks" rate and keeps per-name counts
// for the summary.
type Registry struct {
	collector *metrics.Collector

	mu      sync.Mutex
	results map[string]*Result
	order   []string
}

func NewRegistry(c *metrics.Collector) *Registry {
	return &Registry{collector: c, results: make(map[string]*Result)}
}

// Check records ok under name and returns it. Checks made through a
// context that is already done are not counted.
func (r *Registry) Check(ctx context.Context, name string, ok bool) bool {
	if ctx.Err() != nil {
		return ok
	}
	group := metrics.TagsFromContext(ctx)["group"]
	r.collector.Rate(metrics.Checks).Emit(ctx, boolValue(ok), metrics.Tags{"check": name})

	key := group + "::" + name
	r.mu.Lock()
	res, found := r.results[key]
	if !found {
		res = &Result{Name: name, Group: group}
		r.results[key] = res
		r.order = append(r.order, key)
	}
	if ok {
		res.Passes++
	} else {
		res.Fails++
	}
	r.mu.Unlock()
	return ok
}

// All returns a copy of the tallies, grouped and in first-seen order.
func (r *Registry) All() []Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Result, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, *r.results[k])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Group < out[j].Group })
	return out
}

// Totals sums passes and fails across every check.
func (r *Registry) Totals() (passes, fails uint64) {
	for _, res := range r.All() {
		passes += res.Passes
		fails += res.Fails
	}
	return passes, fails
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
