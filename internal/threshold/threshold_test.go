package threshold

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fxload/internal/metrics"
)

func TestParse(t *testing.T) {
	tests := []struct {
		src   string
		fn    string
		arg   float64
		op    string
		limit float64
	}{
		{"p(95)<250", "p", 95, "<", 250},
		{"p(99.9) <= 1000", "p", 99.9, "<=", 1000},
		{"rate<0.02", "rate", 0, "<", 0.02},
		{"rate>0.95", "rate", 0, ">", 0.95},
		{" avg >= 10 ", "avg", 0, ">=", 10},
		{"count===4", "count", 0, "===", 4},
		{"value!=-1", "value", 0, "!=", -1},
		{"max<1e3", "max", 0, "<", 1000},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			e, err := Parse(tt.src)
			require.NoError(t, err)
			assert.Equal(t, tt.fn, e.Func)
			assert.Equal(t, tt.arg, e.Arg)
			assert.Equal(t, tt.op, e.Op)
			assert.Equal(t, tt.limit, e.Limit)
		})
	}
}

func TestParseRejects(t *testing.T) {
	for _, src := range []string{"", "p95<250", "p()<1", "p(101)<1", "rate(5)<1", "rate<", "rate=1", "rate<abc", "<5"} {
		_, err := Parse(src)
		assert.ErrorIs(t, err, ErrParse, src)
	}
}

func TestCompareOperators(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		src  string
		v    float64
		want bool
	}{
		{"rate<0.02", 0.01, true},
		{"rate<0.02", 0.02, false},
		{"rate<=0.02", 0.02, true},
		{"rate>0.95", 0.96, true},
		{"rate>=0.95", 0.94, false},
		{"count==4", 4, true},
		{"count===4", 4, true},
		{"count!=4", 4, false},
	}
	for _, tt := range tests {
		e, err := Parse(tt.src)
		require.NoError(t, err)
		got, err := e.Compare(ctx, tt.v)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%s with %v", tt.src, tt.v)
	}
}

func TestNewFailsFast(t *testing.T) {
	c := metrics.NewCollector()
	c.Rate("custom_failure_rate")
	log := zerolog.Nop()

	_, err := New(c, map[string][]Spec{"custom_failure_rate": {{Threshold: "p(95)<1"}}}, log)
	assert.ErrorIs(t, err, ErrUnsupportedFunc)

	_, err = New(c, map[string][]Spec{"http_req_duration": {{Threshold: "rate<1"}}}, log)
	assert.ErrorIs(t, err, ErrUnsupportedFunc)

	_, err = New(c, map[string][]Spec{"vus": {{Threshold: "value<10"}, {Threshold: "avg<1"}}}, log)
	assert.ErrorIs(t, err, ErrUnsupportedFunc)

	_, err = New(c, map[string][]Spec{"nope": {{Threshold: "rate<1"}}}, log)
	assert.ErrorIs(t, err, ErrUnknownMetric)

	_, err = New(c, map[string][]Spec{"checks": {{Threshold: "rate<<1"}}}, log)
	assert.ErrorIs(t, err, ErrParse)

	_, err = New(c, map[string][]Spec{"checks{check": {{Threshold: "rate<1"}}}, log)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(map[string][]Spec{
		"http_req_duration{name:login}": {{Threshold: "p(95)<250"}},
		"checks":                        {{Threshold: "rate>0.95"}},
	}))
	assert.ErrorIs(t, Validate(map[string][]Spec{"x": {{Threshold: "median<1"}}}), ErrUnsupportedFunc)
	assert.ErrorIs(t, Validate(map[string][]Spec{"x": {{Threshold: "p(95)"}}}), ErrParse)
}

func TestEvaluate(t *testing.T) {
	c := metrics.NewCollector()
	failures := c.Rate("custom_failure_rate")
	set, err := New(c, map[string][]Spec{
		"http_req_duration":               {{Threshold: "p(95)<250"}, {Threshold: "max<90"}},
		"http_req_duration{name:login}":   {{Threshold: "avg<20"}},
		"custom_failure_rate":             {{Threshold: "rate<0.02"}},
		"custom_request_count":            {{Threshold: "count>0"}},
		"http_req_duration{name:unknown}": {{Threshold: "p(95)<250"}},
	}, zerolog.Nop())
	require.Error(t, err, "custom_request_count is not registered yet")

	c.Counter("custom_request_count")
	set, err = New(c, map[string][]Spec{
		"http_req_duration":               {{Threshold: "p(95)<250"}, {Threshold: "max<90"}},
		"http_req_duration{name:login}":   {{Threshold: "avg<20"}},
		"custom_failure_rate":             {{Threshold: "rate<0.02"}},
		"custom_request_count":            {{Threshold: "count>0"}},
		"http_req_duration{name:unknown}": {{Threshold: "p(95)<250"}},
	}, zerolog.Nop())
	require.NoError(t, err)

	d := c.Trend(metrics.HTTPReqDuration, true)
	for i := 1; i <= 100; i++ {
		name := "signup"
		if i%2 == 0 {
			name = "login"
		}
		d.Add(float64(i), metrics.Tags{"name": name})
	}
	for i := 0; i < 100; i++ {
		failures.AddBool(i == 0, nil)
	}
	c.Counter("custom_request_count").Add(4, nil)

	results := set.Evaluate(context.Background())
	require.Len(t, results, 6)
	byKey := map[string]Result{}
	for _, r := range results {
		byKey[r.Selector+" "+r.Threshold] = r
	}

	assert.True(t, byKey["http_req_duration p(95)<250"].Pass)
	assert.False(t, byKey["http_req_duration max<90"].Pass)
	assert.Equal(t, 100.0, byKey["http_req_duration max<90"].Value)
	assert.False(t, byKey["http_req_duration{name:login} avg<20"].Pass)
	assert.Equal(t, 51.0, byKey["http_req_duration{name:login} avg<20"].Value)
	assert.True(t, byKey["custom_failure_rate rate<0.02"].Pass)
	assert.True(t, byKey["custom_request_count count>0"].Pass)

	noData := byKey["http_req_duration{name:unknown} p(95)<250"]
	assert.False(t, noData.Pass)
	assert.ErrorIs(t, noData.Err, ErrNoData)

	assert.False(t, Passed(results))
}

func TestRateThresholdMatchesFailureRatio(t *testing.T) {
	for _, tc := range []struct {
		failed, total int
		pass          bool
	}{{1, 100, true}, {2, 100, false}, {0, 10, true}, {3, 10, false}} {
		c := metrics.NewCollector()
		r := c.Rate("custom_failure_rate")
		for i := 0; i < tc.total; i++ {
			r.AddBool(i < tc.failed, nil)
		}
		set, err := New(c, map[string][]Spec{"custom_failure_rate": {{Threshold: "rate<0.02"}}}, zerolog.Nop())
		require.NoError(t, err)
		assert.Equal(t, tc.pass, Passed(set.Evaluate(context.Background())), "%d/%d", tc.failed, tc.total)
	}
}

func TestWatchAbortsOnFailure(t *testing.T) {
	c := metrics.NewCollector()
	set, err := New(c, map[string][]Spec{
		"http_req_failed": {{Threshold: "rate<0.1", AbortOnFail: true}},
	}, zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- set.Watch(ctx, 10*time.Millisecond) }()

	time.Sleep(30 * time.Millisecond)
	c.Rate(metrics.HTTPReqFailed).AddBool(true, nil)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrAborted)
	case <-ctx.Done():
		t.Fatal("watch did not abort")
	}
}

func TestWatchHonoursDelayAndContext(t *testing.T) {
	c := metrics.NewCollector()
	c.Rate(metrics.HTTPReqFailed).AddBool(true, nil)
	set, err := New(c, map[string][]Spec{
		"http_req_failed": {{Threshold: "rate<0.1", AbortOnFail: true, DelayAbortEval: time.Hour}},
	}, zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.NoError(t, set.Watch(ctx, 5*time.Millisecond))

	plain, err := New(c, map[string][]Spec{"http_req_failed": {{Threshold: "rate<0.1"}}}, zerolog.Nop())
	require.NoError(t, err)
	assert.NoError(t, plain.Watch(context.Background(), time.Millisecond), "nothing to watch returns at once")
}
