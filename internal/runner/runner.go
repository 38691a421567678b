package runner

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"fxload/internal/metrics"
)

const (
	controllerTick = 10 * time.Millisecond
	gaugeInterval  = time.Second
)

// Runner schedules the iterations of one scenario from its stages. Wall-clock
// time since Run started is the only input to the schedule.
type Runner struct {
	Cfg       Config
	Exec      Exec
	Collector *metrics.Collector
	Log       zerolog.Logger

	startedAt atomic.Int64
	target    atomic.Int64
	active    atomic.Int64
	allocated atomic.Int64
	dropped   atomic.Uint64
	done      atomic.Bool
	iters     atomic.Int64

	mu       sync.Mutex
	changeCh chan struct{}
}

func NewRunner(cfg Config, exec Exec, c *metrics.Collector, log zerolog.Logger) (*Runner, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if exec == nil {
		return nil, fmt.Errorf("%w %q: no exec function", ErrInvalidConfig, cfg.Name)
	}
	if c == nil {
		return nil, fmt.Errorf("%w %q: no metric collector", ErrInvalidConfig, cfg.Name)
	}

	return &Runner{
		Cfg:       cfg,
		Exec:      exec,
		Collector: c,
		Log:       log.With().Str("scenario", cfg.Name).Logger(),
		changeCh:  make(chan struct{}),
	}, nil
}

// Run blocks until every iteration has finished or been abandoned. New
// iterations start until Cfg.Duration(); in-flight ones then get GracefulStop.
// Cancelling ctx abandons everything immediately.
func (r *Runner) Run(ctx context.Context) {
	start := time.Now()
	r.startedAt.Store(start.UnixNano())
	ctx = metrics.WithTags(ctx, r.scenarioTags())

	hardCtx, cancel := context.WithDeadline(ctx, start.Add(r.Cfg.Duration()+r.Cfg.GracefulStop))
	defer cancel()

	r.Log.Info().
		Str("executor", r.Cfg.Executor).
		Dur("duration", r.Cfg.Duration()).
		Msg("Scenario started")

	gaugesDone := make(chan struct{})
	go r.sampleGauges(hardCtx, gaugesDone)

	switch r.Cfg.Executor {
	case RampingVUs:
		r.runRampingVUs(ctx, hardCtx, start)
	case RampingArrivalRate:
		r.runArrivalRate(ctx, hardCtx, start)
	}

	r.done.Store(true)
	cancel()
	<-gaugesDone
	r.emitGauges()

	r.Log.Info().
		Dur("elapsed", time.Since(start)).
		Uint64("dropped_iterations", r.dropped.Load()).
		Msg("Scenario finished")
}

func (r *Runner) runRampingVUs(ctx, hardCtx context.Context, start time.Time) {
	total := r.Cfg.Duration()
	maxVUs := MaxTarget(r.Cfg.StartVUs, r.Cfg.Stages)

	vus := make([]*VU, maxVUs)
	for i := range vus {
		vus[i] = newVU(int64(i+1), r.Cfg.Name, r.Collector, r.Log)
		vus[i].counter = &r.iters
	}
	r.allocated.Store(int64(maxVUs))
	r.setTarget(int64(VUTarget(r.Cfg.StartVUs, r.Cfg.Stages, 0)))

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for _, vu := range vus {
		wg.Add(1)
		go func(vu *VU) {
			defer wg.Done()
			r.vuLoop(hardCtx, vu, stop)
		}(vu)
	}

	ticker := time.NewTicker(controllerTick)
	defer ticker.Stop()
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case now := <-ticker.C:
			elapsed := now.Sub(start)
			if elapsed >= total {
				break loop
			}
			target := int64(VUTarget(r.Cfg.StartVUs, r.Cfg.Stages, elapsed))
			r.setTarget(target)
			for _, vu := range vus {
				vu.checkRetire(now, target, r.Cfg.GracefulRampDown)
			}
		}
	}

	close(stop)
	wg.Wait()
}

// vuLoop runs back-to-back iterations while the VU is within the target.
func (r *Runner) vuLoop(ctx context.Context, vu *VU, stop <-chan struct{}) {
	for {
		target, changed := r.targetState()
		if vu.ID > target {
			select {
			case <-changed:
				continue
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
		}

		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		default:
		}

		r.active.Add(1)
		runIteration(ctx, vu, r.Exec)
		r.active.Add(-1)
	}
}

func (r *Runner) runArrivalRate(ctx, hardCtx context.Context, start time.Time) {
	total := r.Cfg.Duration()
	sched := arrivalSchedule{
		start:  float64(r.Cfg.StartRate),
		stages: r.Cfg.Stages,
		unit:   r.Cfg.TimeUnit,
	}

	idle := make(chan *VU, r.Cfg.MaxVUs)
	var nextID int64
	allocate := func() *VU {
		nextID++
		r.allocated.Store(nextID)
		vu := newVU(nextID, r.Cfg.Name, r.Collector, r.Log)
		vu.counter = &r.iters
		return vu
	}
	for i := 0; i < r.Cfg.PreAllocatedVUs; i++ {
		idle <- allocate()
	}

	dropped := r.Collector.Counter(metrics.DroppedIterations)
	warned := false
	var wg sync.WaitGroup

	for k := 0; ; k++ {
		offset, ok := sched.offset(float64(k))
		if !ok || offset >= total {
			break
		}
		if !sleepUntil(ctx, start.Add(offset)) {
			break
		}
		rate := Interpolate(float64(r.Cfg.StartRate), r.Cfg.Stages, offset)
		r.target.Store(int64(math.Round(rate)))

		var vu *VU
		select {
		case vu = <-idle:
		default:
			if nextID < int64(r.Cfg.MaxVUs) {
				vu = allocate()
			}
		}
		if vu == nil {
			r.dropped.Add(1)
			dropped.Emit(ctx, 1, nil)
			if !warned {
				r.Log.Warn().Int("maxVUs", r.Cfg.MaxVUs).Msg("Insufficient VUs, dropping iterations")
				warned = true
			}
			continue
		}

		wg.Add(1)
		r.active.Add(1)
		go func(vu *VU) {
			defer wg.Done()
			runIteration(hardCtx, vu, r.Exec)
			r.active.Add(-1)
			idle <- vu
		}(vu)
	}

	wg.Wait()
}

func (r *Runner) setTarget(v int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.target.Load() == v {
		return
	}
	r.target.Store(v)
	close(r.changeCh)
	r.changeCh = make(chan struct{})
}

func (r *Runner) targetState() (int64, <-chan struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.target.Load(), r.changeCh
}

func (r *Runner) sampleGauges(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(gaugeInterval)
	defer ticker.Stop()
	r.emitGauges()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.emitGauges()
		}
	}
}

func (r *Runner) emitGauges() {
	tags := r.scenarioTags()
	r.Collector.Gauge(metrics.VUs).Add(float64(r.active.Load()), tags)
	r.Collector.Gauge(metrics.VUsMax).Add(float64(r.allocated.Load()), tags)
}

func (r *Runner) scenarioTags() metrics.Tags {
	return r.Cfg.Tags.With("scenario", r.Cfg.Name)
}

// Active is the number of iterations currently running.
func (r *Runner) Active() int64 { return r.active.Load() }

// Allocated is the number of VUs created so far.
func (r *Runner) Allocated() int64 { return r.allocated.Load() }

// Target is the current VU target or iterations per time unit.
func (r *Runner) Target() int64 { return r.target.Load() }

func (r *Runner) Dropped() uint64 { return r.dropped.Load() }

// Started is the number of iterations begun so far.
func (r *Runner) Started() int64 { return r.iters.Load() }

func (r *Runner) Done() bool { return r.done.Load() }

// StartedAt is zero until Run is called.
func (r *Runner) StartedAt() time.Time {
	ns := r.startedAt.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

func sleepUntil(ctx context.Context, t time.Time) bool {
	d := time.Until(t)
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
