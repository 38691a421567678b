package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fxload/internal/metrics"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func newTestClient(opts Options) (*Client, *metrics.Collector) {
	c := metrics.NewCollector()
	return NewClient(c, opts, zerolog.Nop()), c
}

func TestRequestRecordsMetrics(t *testing.T) {
	var got http.Header
	var gotBody loginRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		json.NewDecoder(r.Body).Decode(&gotBody)
		time.Sleep(10 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"token":"abc"}`))
	}))
	defer srv.Close()

	client, c := newTestClient(Options{Headers: map[string]string{"Accept": "application/json"}})
	_, sub, err := c.Submetric("http_req_duration{status:201}")
	require.NoError(t, err)

	res := client.Post(context.Background(), srv.URL+"/auth/login", loginRequest{Username: "a@b.c", Password: "pw"}, &Params{
		Headers: map[string]string{"X-Trace": "1"},
		Trend:   "login_duration",
		Name:    "login",
	})

	require.NoError(t, res.Error)
	assert.Equal(t, http.StatusCreated, res.Status)
	assert.True(t, res.OK())
	assert.GreaterOrEqual(t, res.Timings.Duration, 10*time.Millisecond)
	assert.GreaterOrEqual(t, res.Timings.Waiting, 10*time.Millisecond)

	assert.Equal(t, "application/json", got.Get("Content-Type"))
	assert.Equal(t, "application/json", got.Get("Accept"))
	assert.Equal(t, "1", got.Get("X-Trace"))
	assert.Equal(t, DefaultUserAgent, got.Get("User-Agent"))
	assert.Equal(t, "a@b.c", gotBody.Username)

	assert.Equal(t, 1.0, c.Counter(metrics.HTTPReqs).Snapshot().Sum)
	assert.Equal(t, 0.0, c.Rate(metrics.HTTPReqFailed).Snapshot().Rate)
	assert.Equal(t, int64(1), c.Trend(metrics.HTTPReqDuration, true).Snapshot().Count)
	assert.Equal(t, int64(1), sub.Snapshot().Count)
	assert.Equal(t, int64(1), c.Trend("login_duration", true).Snapshot().Count)
	assert.Positive(t, c.Counter(metrics.DataReceived).Snapshot().Sum)
	assert.Positive(t, c.Counter(metrics.DataSent).Snapshot().Sum)
}

func TestNameTagGroupsDynamicURLs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	client, c := newTestClient(Options{})
	_, named, err := c.Submetric("http_reqs{name:subscription}")
	require.NoError(t, err)

	for _, id := range []string{"1", "2", "3"} {
		client.Get(context.Background(), srv.URL+"/subscriptions/"+id, &Params{Name: "subscription"})
	}
	assert.Equal(t, 3.0, named.Snapshot().Sum)
}

func TestResponseJSONAccess(t *testing.T) {
	res := &Response{URL: "http://x/auth/login", Body: []byte(`{"token":"abc","subscriptions":[]}`)}

	var body struct {
		Token string `json:"token"`
	}
	require.NoError(t, res.JSON(&body))
	assert.Equal(t, "abc", body.Token)

	v, err := res.JSONPath("$.subscriptions")
	require.NoError(t, err)
	assert.Equal(t, []any{}, v)
	assert.Equal(t, "abc", res.Field("$.token"))
	assert.Equal(t, "", res.Field("$.missing"))
}

func TestResponseParseError(t *testing.T) {
	res := &Response{URL: "http://x/auth/login", Body: []byte("<html>oops</html>")}

	var body map[string]any
	err := res.JSON(&body)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "http://x/auth/login", perr.URL)

	_, err = res.JSONPath("$.token")
	assert.ErrorAs(t, err, &perr)

	empty := &Response{URL: "http://x"}
	assert.ErrorAs(t, empty.JSON(&body), &perr)
}

func TestNetworkErrorIsRecordedAsFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client, c := newTestClient(Options{})
	res := client.Get(context.Background(), url+"/subscriptions/my", nil)

	require.Error(t, res.Error)
	assert.Equal(t, 0, res.Status)
	assert.Equal(t, "connection", res.ErrorCode)
	assert.False(t, res.OK())

	assert.Equal(t, 1.0, c.Counter(metrics.HTTPReqs).Snapshot().Sum)
	assert.Equal(t, 1.0, c.Rate(metrics.HTTPReqFailed).Snapshot().Rate)
	assert.Equal(t, 0.0, c.Counter(metrics.DataReceived).Snapshot().Sum)
}

func TestPerRequestTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	client, c := newTestClient(Options{})
	res := client.Get(context.Background(), srv.URL, &Params{Timeout: 20 * time.Millisecond})

	require.Error(t, res.Error)
	assert.Equal(t, "timeout", res.ErrorCode)
	assert.Less(t, res.Timings.Duration, time.Second)
	assert.Equal(t, 1.0, c.Counter(metrics.HTTPReqs).Snapshot().Sum)
}

func TestCancelledContextRecordsNothing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	client, c := newTestClient(Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := client.Get(ctx, srv.URL, &Params{Trend: "fetch_subscriptions_duration"})
	require.Error(t, res.Error)
	assert.Equal(t, "canceled", res.ErrorCode)
	assert.Equal(t, int64(0), c.Counter(metrics.HTTPReqs).Snapshot().Count)
	_, ok := c.Get("fetch_subscriptions_duration")
	assert.False(t, ok)
}

func TestExpectedStatuses(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	client, c := newTestClient(Options{})
	client.Get(context.Background(), srv.URL, nil)
	assert.Equal(t, 1.0, c.Rate(metrics.HTTPReqFailed).Snapshot().Rate)

	client, c = newTestClient(Options{})
	client.Get(context.Background(), srv.URL, &Params{Expected: func(s int) bool { return s == http.StatusNotFound }})
	assert.Equal(t, 0.0, c.Rate(metrics.HTTPReqFailed).Snapshot().Rate)
}

func TestInsecureTLS(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	strict, _ := newTestClient(Options{})
	res := strict.Get(context.Background(), srv.URL, nil)
	require.Error(t, res.Error)
	assert.Equal(t, "tls", res.ErrorCode)

	insecure, _ := newTestClient(Options{Insecure: true})
	res = insecure.Get(context.Background(), srv.URL, nil)
	require.NoError(t, res.Error)
	assert.Equal(t, http.StatusOK, res.Status)
	assert.Positive(t, res.Timings.TLSHandshaking)
}

func TestEncodeBody(t *testing.T) {
	b, isJSON, err := encodeBody(map[string]int{"a": 1})
	require.NoError(t, err)
	assert.True(t, isJSON)
	assert.JSONEq(t, `{"a":1}`, string(b))

	b, isJSON, err = encodeBody("raw")
	require.NoError(t, err)
	assert.False(t, isJSON)
	assert.Equal(t, "raw", string(b))

	_, _, err = encodeBody(make(chan int))
	assert.Error(t, err)
}
