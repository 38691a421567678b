package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fxload/internal/runner"
	"fxload/internal/scenario"
	"fxload/internal/threshold"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, DefaultBaseURL, cfg.BaseURL)
	assert.Equal(t, "/subscriptions/my", cfg.Endpoints.MySubscriptions)
	assert.Equal(t, time.Second, cfg.ThinkTime)
	assert.Equal(t, 60*time.Second, cfg.Timeout)
	assert.True(t, cfg.InsecureSkipTLSVerify)

	selected, err := cfg.Select()
	require.NoError(t, err)
	require.Len(t, selected, 2)
	assert.Equal(t, scenario.APILoadName, selected[0].Name)
	assert.Equal(t, runner.RampingArrivalRate, selected[0].Executor)
	assert.Equal(t, 500, selected[0].MaxVUs)
	assert.Equal(t, scenario.UserJourneyName, selected[1].Name)
	assert.Equal(t, 10*time.Minute, selected[1].Config.Duration())
	assert.Equal(t, 6*time.Minute, selected[0].Config.Duration())

	th := cfg.ThresholdsFor(selected)
	assert.Len(t, th["http_req_duration"], 1, "duplicate expressions collapse")
	assert.Equal(t, "rate<0.02", th["custom_failure_rate"][0].Threshold)
	assert.Equal(t, "rate>0.95", th["checks"][0].Threshold)

	only, err := cfg.Select("api_load")
	require.NoError(t, err)
	assert.NotContains(t, cfg.ThresholdsFor(only), "custom_failure_rate")
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("FXLOAD_BASEURL", "http://localhost:9090/api/v1")
	t.Setenv("FXLOAD_PASSWORD", "s3cret-pass")
	t.Setenv("FXLOAD_THINKTIME", "250ms")
	t.Setenv("FXLOAD_INSECURESKIPTLSVERIFY", "false")

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9090/api/v1", cfg.BaseURL)
	assert.Equal(t, "s3cret-pass", cfg.Credentials.Password)
	assert.Equal(t, 250*time.Millisecond, cfg.ThinkTime)
	assert.False(t, cfg.InsecureSkipTLSVerify)
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, "fxload.yaml", `
baseURL: http://localhost:8080/api/v1
thinkTime: 0s
scenarios:
  smoke:
    exec: user_journey
    executor: ramping-vus
    startVUs: 1
    stages:
      - duration: 30s
        target: 5
    tags:
      env: staging
thresholds:
  http_req_duration:
    - p(95)<300
    - threshold: p(99)<1000
      abortOnFail: true
      delayAbortEval: 10s
  checks: rate>0.99
`)
	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, time.Duration(0), cfg.ThinkTime)
	require.Len(t, cfg.Scenarios, 1, "a file with scenarios replaces the built-in ones")
	smoke := cfg.Scenarios["smoke"]
	assert.Equal(t, "user_journey", smoke.Exec)
	assert.Equal(t, []runner.Stage{{Duration: 30 * time.Second, Target: 5}}, smoke.Stages)
	assert.Equal(t, "staging", smoke.Tags["env"])

	assert.Equal(t, []threshold.Spec{
		{Threshold: "p(95)<300"},
		{Threshold: "p(99)<1000", AbortOnFail: true, DelayAbortEval: 10 * time.Second},
	}, cfg.Thresholds["http_req_duration"])
	assert.Equal(t, []threshold.Spec{{Threshold: "rate>0.99"}}, cfg.Thresholds["checks"])
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestValidateFailsFast(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   error
	}{
		{"relative base url", func(c *Config) { c.BaseURL = "/api/v1" }, ErrInvalid},
		{"no scenarios", func(c *Config) { c.Scenarios = nil }, ErrInvalid},
		{"unknown exec", func(c *Config) {
			s := c.Scenarios["api_load"]
			s.Exec = "browse"
			c.Scenarios["api_load"] = s
		}, ErrInvalid},
		{"bad executor", func(c *Config) {
			s := c.Scenarios["api_load"]
			s.Executor = "constant-vus"
			c.Scenarios["api_load"] = s
		}, runner.ErrInvalidConfig},
		{"unsupported function", func(c *Config) {
			c.Thresholds["http_req_duration"] = []threshold.Spec{{Threshold: "median<3"}}
		}, threshold.ErrUnsupportedFunc},
		{"bad expression", func(c *Config) {
			c.Thresholds["checks"] = []threshold.Spec{{Threshold: "rate"}}
		}, threshold.ErrParse},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }, ErrInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			err := c.Validate()
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestSelectUnknown(t *testing.T) {
	_, err := Default().Select("nope")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestPrintRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Thresholds["http_req_failed"] = []threshold.Spec{{Threshold: "rate<0.5", AbortOnFail: true, DelayAbortEval: time.Minute}}

	var buf bytes.Buffer
	require.NoError(t, Print(&buf, cfg))
	out := buf.String()
	assert.Contains(t, out, "duration: 4m0s")
	assert.Contains(t, out, "gracefulRampDown: 30s")
	assert.Contains(t, out, "********")
	assert.NotContains(t, out, "password123")

	again, err := Load(viper.New(), writeFile(t, "printed.yaml", out))
	require.NoError(t, err)
	require.NoError(t, again.Validate())
	assert.Equal(t, cfg.Scenarios["user_journey"].Stages, again.Scenarios["user_journey"].Stages)
	assert.Equal(t, cfg.Scenarios["api_load"].Thresholds, again.Scenarios["api_load"].Thresholds)
	assert.Equal(t, cfg.Thresholds["http_req_failed"], again.Thresholds["http_req_failed"])
}

func TestHTTPOptions(t *testing.T) {
	opts := Default().HTTPOptions()
	assert.True(t, opts.Insecure)
	assert.Equal(t, "application/json", opts.Headers["Accept"])
}
