package scenario

import (
	"context"
	"net/http"

	"fxload/internal/httpx"
	"fxload/internal/metrics"
	"fxload/internal/runner"
)

const (
	UserJourneyName = "user_journey"

	SignupDuration             = "signup_duration"
	LoginDuration              = "login_duration"
	SubscriptionCreateDuration = "subscription_create_duration"
	FetchSubscriptionsDuration = "fetch_subscriptions_duration"
	CustomFailureRate          = "custom_failure_rate"
	CustomRequestCount         = "custom_request_count"

	defaultJourneyEmail = "user{{randomInt 0 10000000}}@example.com"
)

func declareUserJourney(c *metrics.Collector) {
	for _, name := range []string{SignupDuration, LoginDuration, SubscriptionCreateDuration, FetchSubscriptionsDuration} {
		c.Trend(name, true)
	}
	c.Rate(CustomFailureRate)
	c.Counter(CustomRequestCount)
}

// UserJourney signs a fresh user up, logs in, creates a random subscription
// and lists the user's subscriptions, pausing for think time after each step.
func UserJourney(env *Env) (runner.Exec, error) {
	declareUserJourney(env.Collector)
	emailTpl, err := env.emailTemplate(UserJourneyName+".email", defaultJourneyEmail)
	if err != nil {
		return nil, err
	}
	t := env.Target
	failures := env.Collector.Rate(CustomFailureRate)
	requests := env.Collector.Counter(CustomRequestCount)

	// step records the bookkeeping shared by all four requests
	step := func(ctx context.Context, res *httpx.Response, want int, check string, extra bool) {
		requests.Emit(ctx, 1, nil)
		failures.Emit(ctx, boolValue(res.Status != want), nil)
		env.Checks.Check(ctx, check, res.Status == want && extra)
	}

	return func(ctx context.Context, vu *runner.VU) error {
		var token string

		err := vu.Group(ctx, "Authentication", func(ctx context.Context) error {
			email, err := env.email(emailTpl, vu)
			if err != nil {
				return err
			}
			res := env.Client.Post(ctx, t.URL(t.Endpoints.Signup), SignupRequest{
				Email:    email,
				Password: t.Credentials.Password,
				Mobile:   t.Credentials.Mobile,
			}, &httpx.Params{Name: "signup", Trend: SignupDuration})
			step(ctx, res, http.StatusCreated, "signup status is 201", true)
			if err := vu.Sleep(ctx, t.ThinkTime); err != nil {
				return err
			}

			res = env.Client.Post(ctx, t.URL(t.Endpoints.Login), LoginRequest{
				Username: email,
				Password: t.Credentials.Password,
			}, &httpx.Params{Name: "login", Trend: LoginDuration})
			var login LoginResponse
			if err := res.JSON(&login); err != nil {
				vu.Log.Debug().Err(err).Msg("Login response has no token")
			}
			token = login.Token
			step(ctx, res, http.StatusOK, "login status is 200 with token", token != "")
			return vu.Sleep(ctx, t.ThinkTime)
		})
		if err != nil {
			return err
		}

		return vu.Group(ctx, "Subscription Management", func(ctx context.Context) error {
			res := env.Client.Post(ctx, t.URL(t.Endpoints.Subscriptions), RandomSubscription(), &httpx.Params{
				Name:    "create_subscription",
				Trend:   SubscriptionCreateDuration,
				Headers: bearer(token),
			})
			step(ctx, res, http.StatusCreated, "subscription status is 201", true)
			if err := vu.Sleep(ctx, t.ThinkTime); err != nil {
				return err
			}

			res = env.Client.Get(ctx, t.URL(t.Endpoints.MySubscriptions), &httpx.Params{
				Name:    "fetch_subscriptions",
				Trend:   FetchSubscriptionsDuration,
				Headers: bearer(token),
			})
			step(ctx, res, http.StatusOK, "fetch subscriptions status is 200", true)
			return vu.Sleep(ctx, t.ThinkTime)
		})
	}, nil
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
