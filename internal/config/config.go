package config

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"fxload/internal/httpx"
	"fxload/internal/runner"
	"fxload/internal/scenario"
	"fxload/internal/threshold"
)

const EnvPrefix = "FXLOAD"

// ErrInvalid wraps every configuration problem found before a run starts.
var ErrInvalid = errors.New("invalid configuration")

// Thresholds maps a metric selector such as "http_req_duration{name:login}"
// to its threshold specs.
type Thresholds map[string][]threshold.Spec

// Scenario is one scheduled scenario: which function to run and how.
type Scenario struct {
	Exec          string `mapstructure:"exec"`
	runner.Config `mapstructure:",squash"`
	// Thresholds apply only when this scenario is selected
	Thresholds Thresholds `mapstructure:"thresholds"`
}

// Config is the static run configuration. It is not modified once a run starts.
type Config struct {
	scenario.Target `mapstructure:",squash"`

	InsecureSkipTLSVerify bool              `mapstructure:"insecureSkipTLSVerify"`
	Timeout               time.Duration     `mapstructure:"timeout"`
	Headers               map[string]string `mapstructure:"headers"`
	UserAgent             string            `mapstructure:"userAgent"`

	Scenarios  map[string]Scenario `mapstructure:"scenarios"`
	Thresholds Thresholds          `mapstructure:"thresholds"`

	SummaryExport string `mapstructure:"summaryExport"`
	HistoryPath   string `mapstructure:"historyPath"`
	MetricsAddr   string `mapstructure:"metricsAddr"`
}

// HTTPOptions returns the client options for the whole run.
func (c *Config) HTTPOptions() httpx.Options {
	return httpx.Options{
		Insecure:  c.InsecureSkipTLSVerify,
		Timeout:   c.Timeout,
		Headers:   c.Headers,
		UserAgent: c.UserAgent,
	}
}

// Select returns the named scenarios (all when names is empty) sorted by
// name, with Name and Exec filled in.
func (c *Config) Select(names ...string) ([]Scenario, error) {
	if len(names) == 0 {
		for name := range c.Scenarios {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	out := make([]Scenario, 0, len(names))
	for _, name := range names {
		s, ok := c.Scenarios[strings.ToLower(name)]
		if !ok {
			return nil, fmt.Errorf("%w: no scenario named %q", ErrInvalid, name)
		}
		s.Name = strings.ToLower(name)
		if s.Exec == "" {
			s.Exec = s.Name
		}
		out = append(out, s)
	}
	return out, nil
}

// ThresholdsFor merges the global thresholds with those of the selected
// scenarios, dropping duplicate expressions.
func (c *Config) ThresholdsFor(selected []Scenario) Thresholds {
	out := Thresholds{}
	add := func(ts Thresholds) {
		for sel, specs := range ts {
			for _, s := range specs {
				dup := false
				for _, have := range out[sel] {
					dup = dup || have.Threshold == s.Threshold
				}
				if !dup {
					out[sel] = append(out[sel], s)
				}
			}
		}
	}
	add(c.Thresholds)
	for _, s := range selected {
		add(s.Thresholds)
	}
	return out
}

// Validate reports the first configuration error. Nothing is started.
func (c *Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: baseURL %q must be an absolute http(s) URL", ErrInvalid, c.BaseURL)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive", ErrInvalid)
	}
	if c.ThinkTime < 0 {
		return fmt.Errorf("%w: thinkTime must not be negative", ErrInvalid)
	}
	if len(c.Scenarios) == 0 {
		return fmt.Errorf("%w: no scenarios configured", ErrInvalid)
	}

	selected, err := c.Select()
	if err != nil {
		return err
	}
	for _, s := range selected {
		if _, ok := scenario.Lookup(s.Exec); !ok {
			return fmt.Errorf("%w: scenario %q: unknown exec %q (have %s)", ErrInvalid, s.Name, s.Exec, strings.Join(scenario.Names(), ", "))
		}
		if err := s.Config.WithDefaults().Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalid, err)
		}
	}
	if err := threshold.Validate(c.ThresholdsFor(selected)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// Load reads path (optional) and FXLOAD_* environment overrides on top of
// the defaults. Without a file, or a file without scenarios, the two
// built-in scenarios are used.
func Load(v *viper.Viper, path string) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("credentials.password", EnvPrefix+"_CREDENTIALS_PASSWORD", EnvPrefix+"_PASSWORD")
	_ = v.BindEnv("baseURL", EnvPrefix+"_BASEURL", EnvPrefix+"_BASE_URL")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("%w: read %s: %w", ErrInvalid, path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg, viper.DecodeHook(decodeHook())); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if !v.IsSet("scenarios") {
		def := Default()
		cfg.Scenarios = def.Scenarios
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	def := Default()
	v.SetDefault("baseURL", def.BaseURL)
	v.SetDefault("endpoints.signup", def.Endpoints.Signup)
	v.SetDefault("endpoints.login", def.Endpoints.Login)
	v.SetDefault("endpoints.subscriptions", def.Endpoints.Subscriptions)
	v.SetDefault("endpoints.mySubscriptions", def.Endpoints.MySubscriptions)
	v.SetDefault("credentials.password", def.Credentials.Password)
	v.SetDefault("credentials.mobile", def.Credentials.Mobile)
	v.SetDefault("thinkTime", def.ThinkTime)
	v.SetDefault("timeout", def.Timeout)
	v.SetDefault("headers", def.Headers)
	v.SetDefault("userAgent", def.UserAgent)
	v.SetDefault("insecureSkipTLSVerify", def.InsecureSkipTLSVerify)
}

var specType = reflect.TypeOf(threshold.Spec{})

// thresholdSpecHook accepts a bare expression string wherever a Spec is expected.
func thresholdSpecHook() mapstructure.DecodeHookFuncType {
	return func(from, to reflect.Type, data any) (any, error) {
		if to != specType || from.Kind() != reflect.String {
			return data, nil
		}
		return threshold.Spec{Threshold: data.(string)}, nil
	}
}

func decodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		thresholdSpecHook(),
	)
}
