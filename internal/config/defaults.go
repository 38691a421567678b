package config

import (
	"time"

	"fxload/internal/httpx"
	"fxload/internal/runner"
	"fxload/internal/scenario"
)

const DefaultBaseURL = "https://localhost:8443/api/v1"

// Default is the built-in run: the closed-loop user journey and the
// open-loop API load, each with its own thresholds.
func Default() *Config {
	return &Config{
		Target: scenario.Target{
			BaseURL: DefaultBaseURL,
			Endpoints: scenario.Endpoints{
				Signup:          "/auth/signup",
				Login:           "/auth/login",
				Subscriptions:   "/subscriptions",
				MySubscriptions: "/subscriptions/my",
			},
			Credentials: scenario.Credentials{
				Password: "password123",
				Mobile:   "+1234567890",
			},
			ThinkTime: time.Second,
		},
		InsecureSkipTLSVerify: true,
		Timeout:               httpx.DefaultTimeout,
		Headers:               map[string]string{"Accept": "application/json"},
		UserAgent:             httpx.DefaultUserAgent,
		Scenarios: map[string]Scenario{
			scenario.UserJourneyName: {
				Exec: scenario.UserJourneyName,
				Config: runner.Config{
					Executor: runner.RampingVUs,
					StartVUs: 0,
					Stages: []runner.Stage{
						{Duration: time.Minute, Target: 50},
						{Duration: time.Minute, Target: 100},
						{Duration: 2 * time.Minute, Target: 200},
						{Duration: 4 * time.Minute, Target: 200},
						{Duration: 2 * time.Minute, Target: 0},
					},
					GracefulRampDown: 30 * time.Second,
				},
				Thresholds: Thresholds{
					"http_req_duration":   {{Threshold: "p(95)<250"}},
					"custom_failure_rate": {{Threshold: "rate<0.02"}},
				},
			},
			scenario.APILoadName: {
				Exec: scenario.APILoadName,
				Config: runner.Config{
					Executor:        runner.RampingArrivalRate,
					StartRate:       1,
					TimeUnit:        time.Second,
					PreAllocatedVUs: 100,
					MaxVUs:          500,
					Stages: []runner.Stage{
						{Duration: time.Minute, Target: 2},
						{Duration: 2 * time.Minute, Target: 5},
						{Duration: 2 * time.Minute, Target: 5},
						{Duration: time.Minute, Target: 1},
					},
				},
				Thresholds: Thresholds{
					"http_req_duration": {{Threshold: "p(95)<250"}},
					"checks":            {{Threshold: "rate>0.95"}},
				},
			},
		},
		Thresholds: Thresholds{},
	}
}
