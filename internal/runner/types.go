package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fxload/internal/metrics"
)

const (
	RampingVUs         = "ramping-vus"
	RampingArrivalRate = "ramping-arrival-rate"

	DefaultGracefulRampDown = 30 * time.Second
	DefaultGracefulStop     = 30 * time.Second
	DefaultTimeUnit         = time.Second
)

// ErrInvalidConfig wraps every scenario configuration problem.
var ErrInvalidConfig = errors.New("invalid scenario config")

// Config describes how one scenario is scheduled.
type Config struct {
	Name     string  `mapstructure:"-" json:"name" yaml:"-"`
	Executor string  `mapstructure:"executor" json:"executor" yaml:"executor"`
	Stages   []Stage `mapstructure:"stages" json:"stages" yaml:"stages"`

	// Ramping VUs (closed loop)
	StartVUs         int           `mapstructure:"startVUs" json:"startVUs,omitempty" yaml:"startVUs,omitempty"`
	GracefulRampDown time.Duration `mapstructure:"gracefulRampDown" json:"gracefulRampDown,omitempty" yaml:"gracefulRampDown,omitempty"`

	// Ramping arrival rate (open loop)
	StartRate       int           `mapstructure:"startRate" json:"startRate,omitempty" yaml:"startRate,omitempty"`
	TimeUnit        time.Duration `mapstructure:"timeUnit" json:"timeUnit,omitempty" yaml:"timeUnit,omitempty"`
	PreAllocatedVUs int           `mapstructure:"preAllocatedVUs" json:"preAllocatedVUs,omitempty" yaml:"preAllocatedVUs,omitempty"`
	MaxVUs          int           `mapstructure:"maxVUs" json:"maxVUs,omitempty" yaml:"maxVUs,omitempty"`

	GracefulStop time.Duration `mapstructure:"gracefulStop" json:"gracefulStop,omitempty" yaml:"gracefulStop,omitempty"`
	MaxDuration  time.Duration `mapstructure:"maxDuration" json:"maxDuration,omitempty" yaml:"maxDuration,omitempty"`
	Tags         metrics.Tags  `mapstructure:"tags" json:"tags,omitempty" yaml:"tags,omitempty"`
}

// Exec is one iteration of a scenario. Returned errors and panics are
// logged and never stop the run.
type Exec func(ctx context.Context, vu *VU) error

// WithDefaults fills the optional durations and the VU cap.
func (c Config) WithDefaults() Config {
	if c.GracefulRampDown == 0 {
		c.GracefulRampDown = DefaultGracefulRampDown
	}
	if c.GracefulStop == 0 {
		c.GracefulStop = DefaultGracefulStop
	}
	if c.TimeUnit == 0 {
		c.TimeUnit = DefaultTimeUnit
	}
	if c.Executor == RampingArrivalRate && c.MaxVUs == 0 {
		c.MaxVUs = c.PreAllocatedVUs
	}
	return c
}

// Validate reports configuration errors before any VU starts.
func (c Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w %q: %s", ErrInvalidConfig, c.Name, fmt.Sprintf(format, args...))
	}

	switch c.Executor {
	case RampingVUs, RampingArrivalRate:
	case "":
		return invalid("executor is required")
	default:
		return invalid("unknown executor %q", c.Executor)
	}

	if len(c.Stages) == 0 {
		return invalid("at least one stage is required")
	}
	for i, s := range c.Stages {
		if s.Duration < 0 {
			return invalid("stage %d has a negative duration", i)
		}
		if s.Target < 0 {
			return invalid("stage %d has a negative target", i)
		}
	}
	if TotalDuration(c.Stages) <= 0 {
		return invalid("stages must last longer than zero")
	}
	if c.GracefulRampDown < 0 || c.GracefulStop < 0 || c.MaxDuration < 0 {
		return invalid("graceful windows and maxDuration must not be negative")
	}

	switch c.Executor {
	case RampingVUs:
		if c.StartVUs < 0 {
			return invalid("startVUs must not be negative")
		}
		if MaxTarget(c.StartVUs, c.Stages) == 0 {
			return invalid("no stage targets a VU count above zero")
		}
	case RampingArrivalRate:
		if c.StartRate < 0 {
			return invalid("startRate must not be negative")
		}
		if c.TimeUnit <= 0 {
			return invalid("timeUnit must be positive")
		}
		if c.PreAllocatedVUs < 0 {
			return invalid("preAllocatedVUs must not be negative")
		}
		if c.MaxVUs < 1 {
			return invalid("maxVUs must be at least 1")
		}
		if c.MaxVUs < c.PreAllocatedVUs {
			return invalid("maxVUs (%d) is lower than preAllocatedVUs (%d)", c.MaxVUs, c.PreAllocatedVUs)
		}
	}
	return nil
}

// Duration is how long new iterations may start.
func (c Config) Duration() time.Duration {
	total := TotalDuration(c.Stages)
	if c.MaxDuration > 0 && c.MaxDuration < total {
		return c.MaxDuration
	}
	return total
}
