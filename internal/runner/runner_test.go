package runner

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fxload/internal/metrics"
)

// concurrency tracks how many iterations run at once
type concurrency struct {
	current atomic.Int64
	peak    atomic.Int64
	started atomic.Int64
}

func (c *concurrency) enter() {
	c.started.Add(1)
	n := c.current.Add(1)
	for {
		p := c.peak.Load()
		if n <= p || c.peak.CompareAndSwap(p, n) {
			return
		}
	}
}

func (c *concurrency) leave() { c.current.Add(-1) }

func newTestRunner(t *testing.T, cfg Config, exec Exec) (*Runner, *metrics.Collector) {
	t.Helper()
	c := metrics.NewCollector()
	if cfg.Name == "" {
		cfg.Name = "test"
	}
	r, err := NewRunner(cfg, exec, c, zerolog.Nop())
	require.NoError(t, err)
	return r, c
}

func sleepy(track *concurrency, d time.Duration) Exec {
	return func(ctx context.Context, vu *VU) error {
		track.enter()
		defer track.leave()
		return vu.Sleep(ctx, d)
	}
}

func TestNewRunnerRejectsInvalidConfig(t *testing.T) {
	c := metrics.NewCollector()
	noop := func(context.Context, *VU) error { return nil }

	_, err := NewRunner(Config{Executor: "per-vu-iterations"}, noop, c, zerolog.Nop())
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewRunner(Config{Executor: RampingVUs, Stages: []Stage{{Duration: time.Second, Target: 1}}}, nil, c, zerolog.Nop())
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRampingVUsHoldsConcurrencyAtTarget(t *testing.T) {
	track := &concurrency{}
	r, c := newTestRunner(t, Config{
		Executor:     RampingVUs,
		Stages:       []Stage{{Duration: 100 * time.Millisecond, Target: 4}, {Duration: 300 * time.Millisecond, Target: 4}},
		GracefulStop: time.Second,
	}, sleepy(track, 10*time.Millisecond))

	r.Run(context.Background())

	assert.LessOrEqual(t, track.peak.Load(), int64(4))
	assert.Equal(t, int64(4), track.peak.Load())
	assert.Equal(t, int64(4), r.Allocated())

	iters := c.Counter(metrics.Iterations).Snapshot()
	assert.Equal(t, float64(track.started.Load()), iters.Sum)
	assert.Equal(t, int64(0), r.Active())
	assert.Equal(t, track.started.Load(), r.Started())
	assert.True(t, r.Done())

	vusMax := c.Gauge(metrics.VUsMax).Snapshot()
	assert.Equal(t, 4.0, vusMax.Value)
}

func TestRampingVUsLetsIterationFinishWithinGrace(t *testing.T) {
	track := &concurrency{}
	r, c := newTestRunner(t, Config{
		Executor:         RampingVUs,
		StartVUs:         1,
		Stages:           []Stage{{Duration: 50 * time.Millisecond, Target: 1}, {Duration: time.Millisecond, Target: 0}, {Duration: 200 * time.Millisecond, Target: 0}},
		GracefulRampDown: 500 * time.Millisecond,
		GracefulStop:     time.Second,
	}, sleepy(track, 30*time.Millisecond))

	r.Run(context.Background())

	started := track.started.Load()
	require.GreaterOrEqual(t, started, int64(2))
	assert.Equal(t, float64(started), c.Counter(metrics.Iterations).Snapshot().Sum)
}

func TestRampingVUsAbandonsIterationAfterGrace(t *testing.T) {
	var cancelled atomic.Bool
	exec := func(ctx context.Context, vu *VU) error {
		<-ctx.Done()
		cancelled.Store(true)
		vu.Collector.Counter("after_cutoff").Emit(ctx, 1, nil)
		return ctx.Err()
	}
	r, c := newTestRunner(t, Config{
		Executor:         RampingVUs,
		StartVUs:         1,
		Stages:           []Stage{{Duration: 30 * time.Millisecond, Target: 1}, {Duration: time.Millisecond, Target: 0}, {Duration: 300 * time.Millisecond, Target: 0}},
		GracefulRampDown: 50 * time.Millisecond,
		GracefulStop:     time.Second,
	}, exec)

	done := make(chan struct{})
	go func() {
		r.Run(context.Background())
		close(done)
	}()

	require.Eventually(t, cancelled.Load, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(0), c.Counter("after_cutoff").Snapshot().Count)
	assert.Equal(t, int64(0), c.Counter(metrics.Iterations).Snapshot().Count)

	<-done
}

func TestRunStopsWhenContextCancelled(t *testing.T) {
	track := &concurrency{}
	r, _ := newTestRunner(t, Config{
		Executor: RampingVUs,
		Stages:   []Stage{{Duration: time.Minute, Target: 3}},
	}, sleepy(track, time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	r.Run(ctx)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestErrorsAndPanicsDoNotStopTheRun(t *testing.T) {
	var n atomic.Int64
	exec := func(ctx context.Context, vu *VU) error {
		defer vu.Sleep(ctx, 5*time.Millisecond)
		switch n.Add(1) % 3 {
		case 0:
			panic("boom")
		case 1:
			return errors.New("login status is 500")
		}
		return nil
	}
	r, c := newTestRunner(t, Config{
		Executor: RampingVUs,
		Stages:   []Stage{{Duration: 150 * time.Millisecond, Target: 2}},
	}, exec)

	r.Run(context.Background())

	assert.Greater(t, n.Load(), int64(3))
	assert.Equal(t, float64(n.Load()), c.Counter(metrics.Iterations).Snapshot().Sum)
}

func TestArrivalRateDropsIterationsAtTheCap(t *testing.T) {
	track := &concurrency{}
	r, c := newTestRunner(t, Config{
		Executor:        RampingArrivalRate,
		StartRate:       50,
		TimeUnit:        time.Second,
		Stages:          []Stage{{Duration: 300 * time.Millisecond, Target: 50}},
		PreAllocatedVUs: 2,
		MaxVUs:          2,
		GracefulStop:    time.Second,
	}, sleepy(track, 100*time.Millisecond))

	r.Run(context.Background())

	assert.LessOrEqual(t, track.peak.Load(), int64(2))
	assert.Greater(t, r.Dropped(), uint64(0))
	assert.Equal(t, float64(r.Dropped()), c.Counter(metrics.DroppedIterations).Snapshot().Sum)
	assert.Equal(t, int64(15), track.started.Load()+int64(r.Dropped()))
	assert.Equal(t, int64(2), r.Allocated())
}

func TestArrivalRateAllocatesUpToMaxVUs(t *testing.T) {
	track := &concurrency{}
	r, c := newTestRunner(t, Config{
		Executor:        RampingArrivalRate,
		StartRate:       100,
		Stages:          []Stage{{Duration: 200 * time.Millisecond, Target: 100}},
		PreAllocatedVUs: 1,
		MaxVUs:          5,
		GracefulStop:    time.Second,
	}, sleepy(track, 40*time.Millisecond))

	r.Run(context.Background())

	assert.Greater(t, r.Allocated(), int64(1))
	assert.LessOrEqual(t, r.Allocated(), int64(5))
	assert.LessOrEqual(t, track.peak.Load(), int64(5))
	assert.Equal(t, float64(track.started.Load()), c.Counter(metrics.Iterations).Snapshot().Sum)
}

func TestArrivalRateIsOpenLoop(t *testing.T) {
	track := &concurrency{}
	r, _ := newTestRunner(t, Config{
		Executor:        RampingArrivalRate,
		StartRate:       20,
		Stages:          []Stage{{Duration: 500 * time.Millisecond, Target: 20}},
		PreAllocatedVUs: 20,
		GracefulStop:    time.Second,
	}, sleepy(track, 200*time.Millisecond))

	r.Run(context.Background())

	// 10 starts at 50ms spacing despite each taking 200ms
	assert.Equal(t, int64(10), track.started.Load())
	assert.GreaterOrEqual(t, track.peak.Load(), int64(3))
	assert.Equal(t, uint64(0), r.Dropped())
}

func TestScenarioTagsReachSamples(t *testing.T) {
	exec := func(ctx context.Context, vu *VU) error {
		vu.Collector.Counter("custom_request_count").Emit(ctx, 1, nil)
		return vu.Sleep(ctx, 10*time.Millisecond)
	}
	r, c := newTestRunner(t, Config{
		Name:     "user_journey",
		Executor: RampingVUs,
		StartVUs: 1,
		Stages:   []Stage{{Duration: 50 * time.Millisecond, Target: 1}},
		Tags:     metrics.Tags{"env": "test"},
	}, exec)
	c.Counter("custom_request_count")
	_, sub, err := c.Submetric("custom_request_count{scenario:user_journey,env:test}")
	require.NoError(t, err)

	r.Run(context.Background())

	assert.Greater(t, sub.Snapshot().Sum, 0.0)
	assert.Equal(t, c.Counter("custom_request_count").Snapshot().Sum, sub.Snapshot().Sum)
}

func TestGroupNestsTagsAndRecordsDuration(t *testing.T) {
	c := metrics.NewCollector()
	vu := newVU(1, "test", c, zerolog.Nop())
	_, sub, err := c.Submetric("group_duration{group:::Authentication::Login}")
	require.NoError(t, err)

	var seen string
	err = vu.Group(context.Background(), "Authentication", func(ctx context.Context) error {
		return vu.Group(ctx, "Login", func(ctx context.Context) error {
			seen = metrics.TagsFromContext(ctx)["group"]
			return nil
		})
	})
	require.NoError(t, err)

	assert.Equal(t, "::Authentication::Login", seen)
	assert.Equal(t, int64(1), sub.Snapshot().Count)
	assert.Equal(t, int64(2), c.Trend(metrics.GroupDuration, true).Snapshot().Count)
}

func TestMonitorSnapshot(t *testing.T) {
	track := &concurrency{}
	r, c := newTestRunner(t, Config{
		Executor: RampingVUs,
		Stages:   []Stage{{Duration: 60 * time.Millisecond, Target: 2}},
	}, sleepy(track, 5*time.Millisecond))
	c.Counter(metrics.HTTPReqs).Add(10, nil)
	for i := 0; i < 10; i++ {
		c.Rate(metrics.HTTPReqFailed).AddBool(i < 2, nil)
		c.Trend(metrics.HTTPReqDuration, true).Add(float64(10*(i+1)), nil)
	}

	updates := make(StatsUpdateChan, 100)
	m := NewMonitor(c, []*Runner{r}, updates)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.StartTickLoop(ctx, 10*time.Millisecond)

	r.Run(context.Background())

	s := m.Snapshot()
	assert.True(t, s.Done)
	assert.Equal(t, uint64(10), s.Requests)
	assert.Equal(t, uint64(2), s.Fail)
	assert.Equal(t, uint64(8), s.Success)
	assert.Equal(t, uint64(track.started.Load()), s.Iterations)
	assert.Equal(t, 100.0, s.MaxServiceMs)
	assert.Equal(t, 60*time.Millisecond, s.Duration)
	assert.Positive(t, s.Elapsed)

	deadline := time.After(time.Second)
	for {
		select {
		case u := <-updates:
			if u.Done {
				return
			}
		case <-deadline:
			t.Fatal("final snapshot never delivered")
		}
	}
}
