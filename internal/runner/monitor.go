package runner

import (
	"context"
	"time"

	"fxload/internal/metrics"
)

// StatsSnapshot is sent over the channel
type StatsSnapshot struct {
	Elapsed  time.Duration
	Duration time.Duration
	Done     bool

	Requests uint64
	Success  uint64
	Fail     uint64
	Bytes    uint64
	Inflight int64

	VUs        int64
	VUsMax     int64
	Iterations uint64
	Dropped    uint64

	ChecksPassed int64
	ChecksFailed int64

	// Pre-calculated percentiles for the UI (cheap copy)
	P50ServiceMs float64
	P90ServiceMs float64
	P95ServiceMs float64
	P99ServiceMs float64
	MaxServiceMs float64
	AvgServiceMs float64
}

// StatsUpdateChan is the channel type
type StatsUpdateChan chan StatsSnapshot

// Monitor turns the shared collector and the scenario runners into periodic
// snapshots for the progress line and the dashboard.
type Monitor struct {
	Collector *metrics.Collector
	Runners   []*Runner
	Updates   StatsUpdateChan
}

func NewMonitor(c *metrics.Collector, runners []*Runner, updates StatsUpdateChan) *Monitor {
	if updates == nil {
		// Avoid nil panics if not provided
		updates = make(StatsUpdateChan, 10)
	}
	return &Monitor{Collector: c, Runners: runners, Updates: updates}
}

// Duration is the longest scenario's scheduled duration.
func (m *Monitor) Duration() time.Duration {
	var d time.Duration
	for _, r := range m.Runners {
		if r.Cfg.Duration() > d {
			d = r.Cfg.Duration()
		}
	}
	return d
}

// StartTickLoop starts a goroutine that pushes stats updates. The final
// snapshot, with Done set, is always delivered and ends the loop.
func (m *Monitor) StartTickLoop(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if m.sendUpdate(ctx) {
					return
				}
			}
		}
	}()
}

func (m *Monitor) sendUpdate(ctx context.Context) bool {
	s := m.Snapshot()
	if s.Done {
		select {
		case m.Updates <- s:
		case <-ctx.Done():
		}
		return true
	}

	// Non-blocking send
	select {
	case m.Updates <- s:
	default:
		// Drop update if channel full, UI acts as backpressure
	}
	return false
}

func (m *Monitor) Snapshot() StatsSnapshot {
	s := StatsSnapshot{Duration: m.Duration(), Done: len(m.Runners) > 0}

	var first time.Time
	for _, r := range m.Runners {
		if at := r.StartedAt(); !at.IsZero() && (first.IsZero() || at.Before(first)) {
			first = at
		}
		s.Inflight += r.Active()
		s.VUs += r.Active()
		s.VUsMax += r.Allocated()
		s.Dropped += r.Dropped()
		s.Done = s.Done && r.Done()
	}
	if !first.IsZero() {
		s.Elapsed = time.Since(first)
	}

	c := m.Collector
	reqs := c.Counter(metrics.HTTPReqs).Snapshot()
	failed := c.Rate(metrics.HTTPReqFailed).Snapshot()
	s.Requests = uint64(reqs.Sum)
	s.Fail = uint64(failed.Passes)
	if s.Requests >= s.Fail {
		s.Success = s.Requests - s.Fail
	}
	s.Bytes = uint64(c.Counter(metrics.DataReceived).Snapshot().Sum)
	s.Iterations = uint64(c.Counter(metrics.Iterations).Snapshot().Sum)

	checks := c.Rate(metrics.Checks).Snapshot()
	s.ChecksPassed = checks.Passes
	s.ChecksFailed = checks.Fails

	d := c.Trend(metrics.HTTPReqDuration, true).Snapshot()
	s.P50ServiceMs = d.P(50)
	s.P90ServiceMs = d.P(90)
	s.P95ServiceMs = d.P(95)
	s.P99ServiceMs = d.P(99)
	s.MaxServiceMs = d.Max
	s.AvgServiceMs = d.Avg
	return s
}
