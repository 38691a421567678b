package runner

import (
	"math"
	"time"
)

// Stage ramps the target (VUs or iterations per time unit) linearly from the
// previous stage's target to Target over Duration.
type Stage struct {
	Duration time.Duration `mapstructure:"duration" json:"duration" yaml:"duration"`
	Target   int           `mapstructure:"target" json:"target" yaml:"target"`
}

// TotalDuration is the sum of all stage durations.
func TotalDuration(stages []Stage) time.Duration {
	var total time.Duration
	for _, s := range stages {
		total += s.Duration
	}
	return total
}

// MaxTarget is the highest target reached, including the starting value.
func MaxTarget(start int, stages []Stage) int {
	max := start
	for _, s := range stages {
		if s.Target > max {
			max = s.Target
		}
	}
	return max
}

// Interpolate returns the target at offset t, linear between stage boundaries.
// Before zero it is start; past the last stage it is the last target.
func Interpolate(start float64, stages []Stage, t time.Duration) float64 {
	prev := start
	if t <= 0 {
		return prev
	}
	var elapsed time.Duration
	for _, s := range stages {
		if t < elapsed+s.Duration {
			frac := float64(t-elapsed) / float64(s.Duration)
			return prev + (float64(s.Target)-prev)*frac
		}
		elapsed += s.Duration
		prev = float64(s.Target)
	}
	return prev
}

// VUTarget is the number of VUs that should be active at t, rounded to the
// nearest whole VU and clamped to [0, MaxTarget].
func VUTarget(start int, stages []Stage, t time.Duration) int {
	v := int(math.Round(Interpolate(float64(start), stages, t)))
	if v < 0 {
		return 0
	}
	if max := MaxTarget(start, stages); v > max {
		return max
	}
	return v
}

// arrivalSchedule maps an iteration number to its start offset by inverting
// the integral of the interpolated rate.
type arrivalSchedule struct {
	start  float64
	stages []Stage
	unit   time.Duration
}

// offset returns when iteration k (0-based) should start: the moment the
// cumulative number of scheduled starts reaches k. ok is false when the
// stages end first.
func (s arrivalSchedule) offset(k float64) (time.Duration, bool) {
	perSec := 1 / s.unit.Seconds()
	r0 := s.start * perSec
	var acc float64
	var elapsed time.Duration

	for _, st := range s.stages {
		d := st.Duration.Seconds()
		r1 := float64(st.Target) * perSec
		area := (r0 + r1) / 2 * d

		if d > 0 && acc+area > k {
			x := k - acc
			a := (r1 - r0) / (2 * d)
			denom := r0 + math.Sqrt(math.Max(r0*r0+4*a*x, 0))
			var tau float64
			if denom > 0 {
				tau = 2 * x / denom
			}
			if tau > d {
				tau = d
			}
			return elapsed + time.Duration(tau*float64(time.Second)), true
		}

		acc += area
		elapsed += st.Duration
		r0 = r1
	}
	return 0, false
}
