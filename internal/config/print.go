package config

import (
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"fxload/internal/runner"
)

// Print writes the normalized configuration as YAML. Durations are written
// in their string form so the output can be loaded again. The password is
// masked.
func Print(w io.Writer, c *Config) error {
	scenarios := map[string]any{}
	selected, err := c.Select()
	if err != nil {
		return err
	}
	for _, s := range selected {
		scenarios[s.Name] = scenarioView(s)
	}

	view := map[string]any{
		"baseURL":               c.BaseURL,
		"endpoints":             c.Endpoints,
		"credentials":           map[string]string{"password": mask(c.Credentials.Password), "mobile": c.Credentials.Mobile},
		"thinkTime":             dur(c.ThinkTime),
		"insecureSkipTLSVerify": c.InsecureSkipTLSVerify,
		"timeout":               dur(c.Timeout),
		"headers":               c.Headers,
		"userAgent":             c.UserAgent,
		"scenarios":             scenarios,
	}
	if c.EmailTemplate != "" {
		view["emailTemplate"] = c.EmailTemplate
	}
	if len(c.Thresholds) > 0 {
		view["thresholds"] = thresholdsView(c.Thresholds)
	}
	for k, v := range map[string]string{"summaryExport": c.SummaryExport, "historyPath": c.HistoryPath, "metricsAddr": c.MetricsAddr} {
		if v != "" {
			view[k] = v
		}
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(view); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}

func scenarioView(s Scenario) map[string]any {
	cfg := s.Config.WithDefaults()
	stages := make([]map[string]any, 0, len(cfg.Stages))
	for _, st := range cfg.Stages {
		stages = append(stages, map[string]any{"duration": dur(st.Duration), "target": st.Target})
	}
	out := map[string]any{
		"exec":         s.Exec,
		"executor":     cfg.Executor,
		"stages":       stages,
		"gracefulStop": dur(cfg.GracefulStop),
	}
	switch cfg.Executor {
	case runner.RampingVUs:
		out["startVUs"] = cfg.StartVUs
		out["gracefulRampDown"] = dur(cfg.GracefulRampDown)
	case runner.RampingArrivalRate:
		out["startRate"] = cfg.StartRate
		out["timeUnit"] = dur(cfg.TimeUnit)
		out["preAllocatedVUs"] = cfg.PreAllocatedVUs
		out["maxVUs"] = cfg.MaxVUs
	}
	if cfg.MaxDuration > 0 {
		out["maxDuration"] = dur(cfg.MaxDuration)
	}
	if len(cfg.Tags) > 0 {
		out["tags"] = map[string]string(cfg.Tags)
	}
	if len(s.Thresholds) > 0 {
		out["thresholds"] = thresholdsView(s.Thresholds)
	}
	return out
}

func thresholdsView(ts Thresholds) map[string][]any {
	out := map[string][]any{}
	for sel, specs := range ts {
		for _, s := range specs {
			if !s.AbortOnFail && s.DelayAbortEval == 0 {
				out[sel] = append(out[sel], s.Threshold)
				continue
			}
			m := map[string]any{"threshold": s.Threshold, "abortOnFail": s.AbortOnFail}
			if s.DelayAbortEval > 0 {
				m["delayAbortEval"] = dur(s.DelayAbortEval)
			}
			out[sel] = append(out[sel], m)
		}
	}
	return out
}

func dur(d time.Duration) string { return d.String() }

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}
