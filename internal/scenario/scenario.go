package scenario

import (
	"fmt"
	"sort"
	"strings"
	"text/template"
	"time"

	"github.com/rs/zerolog"

	"fxload/internal/checks"
	"fxload/internal/httpx"
	"fxload/internal/metrics"
	"fxload/internal/runner"
)

// Endpoints are the paths of the subscription API, relative to the base URL.
type Endpoints struct {
	Signup          string `mapstructure:"signup" json:"signup" yaml:"signup"`
	Login           string `mapstructure:"login" json:"login" yaml:"login"`
	Subscriptions   string `mapstructure:"subscriptions" json:"subscriptions" yaml:"subscriptions"`
	MySubscriptions string `mapstructure:"mySubscriptions" json:"mySubscriptions" yaml:"mySubscriptions"`
}

type Credentials struct {
	Password string `mapstructure:"password" json:"-" yaml:"password"`
	Mobile   string `mapstructure:"mobile" json:"mobile" yaml:"mobile"`
}

// Target is everything the scenarios need to know about the service under test.
type Target struct {
	BaseURL       string        `mapstructure:"baseURL" json:"baseURL" yaml:"baseURL"`
	Endpoints     Endpoints     `mapstructure:"endpoints" json:"endpoints" yaml:"endpoints"`
	Credentials   Credentials   `mapstructure:"credentials" json:"credentials" yaml:"credentials"`
	EmailTemplate string        `mapstructure:"emailTemplate" json:"emailTemplate,omitempty" yaml:"emailTemplate,omitempty"`
	ThinkTime     time.Duration `mapstructure:"thinkTime" json:"thinkTime" yaml:"thinkTime"`
}

// URL joins the base URL and an endpoint path.
func (t Target) URL(path string) string {
	return strings.TrimRight(t.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

// Env is shared by every iteration of a scenario. Nothing in it is mutated
// by scenario code except through the collector and check registry.
type Env struct {
	Target    Target
	Client    *httpx.Client
	Checks    *checks.Registry
	Collector *metrics.Collector
	Feeder    *Feeder
	Log       zerolog.Logger
}

// Builder turns an Env into the iteration function of one scenario.
type Builder func(env *Env) (runner.Exec, error)

var registry = map[string]Builder{
	UserJourneyName: UserJourney,
	APILoadName:     APILoad,
}

// Lookup returns the builder registered as name.
func Lookup(name string) (Builder, bool) {
	b, ok := registry[name]
	return b, ok
}

// Names lists the registered scenario functions.
func Names() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Build resolves name and builds its iteration function.
func Build(name string, env *Env) (runner.Exec, error) {
	b, ok := Lookup(name)
	if !ok {
		return nil, fmt.Errorf("unknown scenario function %q (have %s)", name, strings.Join(Names(), ", "))
	}
	return b(env)
}

// Declare registers the custom metrics of every scenario so thresholds can
// bind to them before the run starts.
func Declare(c *metrics.Collector) {
	declareUserJourney(c)
	declareAPILoad(c)
}

func (env *Env) emailTemplate(name, fallback string) (*template.Template, error) {
	text := env.Target.EmailTemplate
	if text == "" {
		text = fallback
	}
	t, err := env.Feeder.Parse(name, text)
	if err != nil {
		return nil, fmt.Errorf("email template: %w", err)
	}
	return t, nil
}

func (env *Env) email(t *template.Template, vu *runner.VU) (string, error) {
	return env.Feeder.Execute(t, TemplateData{
		VU:        vu.ID,
		Iteration: vu.Iteration - 1,
		Scenario:  vu.Scenario,
	})
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}
