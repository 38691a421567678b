package scenario

import (
	"context"
	"net/http"
	"strconv"

	"fxload/internal/httpx"
	"fxload/internal/metrics"
	"fxload/internal/runner"
)

const (
	APILoadName = "api_load"

	defaultAPILoadEmail = "user_{{.VU}}_{{.Iteration}}_{{randomInt 0 10000}}@example.com"
)

// endpoint names prefix the per-endpoint trend and status counter
var apiEndpoints = []string{"signup", "login", "create_subscription", "get_my_subscriptions"}

func durationMetric(endpoint string) string { return endpoint + "_duration" }

func statusMetric(endpoint string) string { return endpoint + "_status_code" }

func declareAPILoad(c *metrics.Collector) {
	for _, e := range apiEndpoints {
		c.Trend(durationMetric(e), true)
		c.Counter(statusMetric(e))
	}
}

// APILoad runs the four endpoints once per iteration with a fixed
// subscription payload. Every endpoint gets a duration trend and a status
// counter, both tagged with the response status.
func APILoad(env *Env) (runner.Exec, error) {
	declareAPILoad(env.Collector)
	emailTpl, err := env.emailTemplate(APILoadName+".email", defaultAPILoadEmail)
	if err != nil {
		return nil, err
	}
	t := env.Target

	call := func(ctx context.Context, endpoint, method, url string, body any, headers map[string]string) *httpx.Response {
		res := env.Client.Request(ctx, method, url, body, &httpx.Params{
			Name:    endpoint,
			Trend:   durationMetric(endpoint),
			Headers: headers,
		})
		env.Collector.Counter(statusMetric(endpoint)).Emit(ctx, 1, metrics.Tags{"status": strconv.Itoa(res.Status)})
		return res
	}
	created := func(res *httpx.Response) bool {
		return res.Status == http.StatusCreated || res.Status == http.StatusOK
	}

	return func(ctx context.Context, vu *runner.VU) error {
		email, err := env.email(emailTpl, vu)
		if err != nil {
			return err
		}

		res := call(ctx, "signup", http.MethodPost, t.URL(t.Endpoints.Signup), SignupRequest{
			Email:    email,
			Password: t.Credentials.Password,
			Mobile:   t.Credentials.Mobile,
		}, nil)
		env.Checks.Check(ctx, "register status is 201 or 200", created(res))
		if err := vu.Sleep(ctx, t.ThinkTime); err != nil {
			return err
		}

		res = call(ctx, "login", http.MethodPost, t.URL(t.Endpoints.Login), LoginRequest{
			Username: email,
			Password: t.Credentials.Password,
		}, nil)
		token := res.Field("$.token")
		env.Checks.Check(ctx, "login status is 200 with token", res.Status == http.StatusOK && token != "")
		if err := vu.Sleep(ctx, t.ThinkTime); err != nil {
			return err
		}

		res = call(ctx, "create_subscription", http.MethodPost, t.URL(t.Endpoints.Subscriptions), FixedSubscription(), bearer(token))
		env.Checks.Check(ctx, "create subscription status is 201 or 200", created(res))
		if err := vu.Sleep(ctx, t.ThinkTime); err != nil {
			return err
		}

		res = call(ctx, "get_my_subscriptions", http.MethodGet, t.URL(t.Endpoints.MySubscriptions), nil, bearer(token))
		subs, err := res.JSONPath("$.subscriptions")
		_, isArray := subs.([]any)
		env.Checks.Check(ctx, "get my subscriptions status is 200 with list", res.Status == http.StatusOK && err == nil && isArray)
		return vu.Sleep(ctx, t.ThinkTime)
	}, nil
}
