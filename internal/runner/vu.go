package runner

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"fxload/internal/metrics"
)

// VU is one virtual user. Its ID is unique within the scenario and stable for
// its lifetime; Iteration counts the iterations it has started and
// GlobalIteration numbers the current one across the whole scenario.
type VU struct {
	ID              int64
	Iteration       int64
	GlobalIteration int64
	Scenario        string

	Collector *metrics.Collector
	Log       zerolog.Logger

	mu       sync.Mutex
	busy     bool
	cancel   context.CancelFunc
	retireAt time.Time
	counter  *atomic.Int64
}

func newVU(id int64, scenario string, c *metrics.Collector, log zerolog.Logger) *VU {
	return &VU{
		ID:        id,
		Scenario:  scenario,
		Collector: c,
		Log:       log.With().Int64("vu", id).Logger(),
	}
}

// Sleep pauses for think time, returning early with ctx's error.
func (vu *VU) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Group runs fn with a nested group tag ("::outer::inner") and records
// group_duration when fn returns before ctx is done.
func (vu *VU) Group(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	parent := metrics.TagsFromContext(ctx)["group"]
	groupCtx := metrics.WithTags(ctx, metrics.Tags{"group": parent + "::" + name})

	start := time.Now()
	err := fn(groupCtx)
	vu.Collector.Trend(metrics.GroupDuration, true).Emit(groupCtx, msSince(start), nil)
	return err
}

func (vu *VU) begin(cancel context.CancelFunc) {
	vu.mu.Lock()
	vu.busy = true
	vu.cancel = cancel
	vu.retireAt = time.Time{}
	vu.Iteration++
	if vu.counter != nil {
		vu.GlobalIteration = vu.counter.Add(1) - 1
	}
	vu.mu.Unlock()
}

func (vu *VU) end() {
	vu.mu.Lock()
	vu.busy = false
	vu.cancel = nil
	vu.retireAt = time.Time{}
	vu.mu.Unlock()
}

// checkRetire starts the grace window for a busy VU above the target and
// cancels its iteration once the window has passed.
func (vu *VU) checkRetire(now time.Time, target int64, grace time.Duration) {
	vu.mu.Lock()
	defer vu.mu.Unlock()
	if !vu.busy || vu.ID <= target {
		vu.retireAt = time.Time{}
		return
	}
	if vu.retireAt.IsZero() {
		vu.retireAt = now.Add(grace)
		return
	}
	if !now.Before(vu.retireAt) && vu.cancel != nil {
		vu.Log.Debug().Dur("grace", grace).Msg("Abandoning iteration after ramp-down")
		vu.cancel()
		vu.cancel = nil
	}
}

// runIteration executes one iteration on vu and records iterations and
// iteration_duration unless the iteration was abandoned.
func runIteration(ctx context.Context, vu *VU, exec Exec) {
	iterCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	vu.begin(cancel)
	defer vu.end()

	start := time.Now()
	if err := safeExec(iterCtx, vu, exec); err != nil {
		vu.Log.Debug().Err(err).Int64("iteration", vu.Iteration).Msg("Iteration failed")
	}
	if iterCtx.Err() != nil {
		return
	}
	vu.Collector.Counter(metrics.Iterations).Emit(iterCtx, 1, nil)
	vu.Collector.Trend(metrics.IterationDuration, true).Emit(iterCtx, msSince(start), nil)
}

func safeExec(ctx context.Context, vu *VU, exec Exec) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic in iteration: %v", p)
		}
	}()
	return exec(ctx, vu)
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t)) / float64(time.Millisecond)
}
