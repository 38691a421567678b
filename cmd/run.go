package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"fxload/internal/checks"
	"fxload/internal/cli"
	"fxload/internal/config"
	"fxload/internal/httpx"
	"fxload/internal/metrics"
	"fxload/internal/report"
	"fxload/internal/runner"
	"fxload/internal/scenario"
	"fxload/internal/storage"
	"fxload/internal/threshold"
	"fxload/internal/tui"
)

type runOptions struct {
	tui         bool
	history     bool
	maxDuration time.Duration
	progress    time.Duration
}

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run [scenario...]",
		Short: "Run load test scenarios (all configured ones by default)",
		Example: `  fxload run
  fxload run user_journey --base-url http://localhost:8080/api/v1
  FXLOAD_PASSWORD=secret fxload run api_load --summary-export out.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoad(cmd, root, opts, args)
		},
	}

	f := cmd.Flags()
	f.String("base-url", "", "base URL of the API, e.g. http://localhost:8080/api/v1")
	f.Bool("insecure", false, "skip TLS certificate verification")
	f.String("summary-export", "", "write the summary to this file (.json or .csv)")
	f.String("metrics-addr", "", "serve live Prometheus metrics on this address, e.g. :9090")
	f.String("history-path", "", "history database (default ~/.fxload/history.db)")
	f.BoolVar(&opts.history, "history", false, "save the run summary to the history database")
	f.BoolVar(&opts.tui, "tui", false, "show the live dashboard")
	f.DurationVar(&opts.maxDuration, "max-duration", 0, "stop starting iterations after this long (in-flight ones get gracefulStop)")
	f.DurationVar(&opts.progress, "progress-interval", time.Second, "headless progress line refresh")

	bind := map[string]string{
		"baseURL":               "base-url",
		"insecureSkipTLSVerify": "insecure",
		"summaryExport":         "summary-export",
		"metricsAddr":           "metrics-addr",
		"historyPath":           "history-path",
	}
	for key, flag := range bind {
		_ = root.v.BindPFlag(key, f.Lookup(flag))
	}
	return cmd
}

// loadRun is everything a run needs, wired before the first VU starts.
type loadRun struct {
	id         string
	cfg        *config.Config
	selected   []config.Scenario
	collector  *metrics.Collector
	checks     *checks.Registry
	thresholds *threshold.Set
	runners    []*runner.Runner
}

// prepare builds the collector, scenarios and thresholds. Any error here is
// a configuration error and nothing has been started. A positive maxDuration
// caps every selected scenario; in-flight iterations still get gracefulStop.
func prepare(cfg *config.Config, names []string, maxDuration time.Duration, log zerolog.Logger) (*loadRun, error) {
	selected, err := cfg.Select(names...)
	if err != nil {
		return nil, err
	}

	c := metrics.NewCollector()
	scenario.Declare(c)
	set, err := threshold.New(c, cfg.ThresholdsFor(selected), log)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrInvalid, err)
	}

	reg := checks.NewRegistry(c)
	env := &scenario.Env{
		Target:    cfg.Target,
		Client:    httpx.NewClient(c, cfg.HTTPOptions(), log),
		Checks:    reg,
		Collector: c,
		Feeder:    scenario.NewFeeder(),
		Log:       log,
	}

	lr := &loadRun{cfg: cfg, selected: selected, collector: c, checks: reg, thresholds: set}
	for _, s := range selected {
		exec, err := scenario.Build(s.Exec, env)
		if err != nil {
			return nil, fmt.Errorf("%w: scenario %q: %w", config.ErrInvalid, s.Name, err)
		}
		rc := s.Config
		if maxDuration > 0 && (rc.MaxDuration == 0 || maxDuration < rc.MaxDuration) {
			rc.MaxDuration = maxDuration
		}
		r, err := runner.NewRunner(rc, exec, c, log)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", config.ErrInvalid, err)
		}
		lr.runners = append(lr.runners, r)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	lr.id = id.String()
	return lr, nil
}

func (lr *loadRun) names() []string {
	out := make([]string, len(lr.selected))
	for i, s := range lr.selected {
		out[i] = s.Name
	}
	return out
}

// execute runs every scenario concurrently along with the threshold watcher
// and the optional metrics endpoint. It reports whether a threshold aborted
// the run.
func (lr *loadRun) execute(ctx context.Context, log zerolog.Logger, progress func(context.Context, runner.StatsUpdateChan, context.CancelFunc) error, interval time.Duration) (bool, error) {
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	lr.collector.ResetStart(time.Now())
	g, gctx := errgroup.WithContext(runCtx)
	auxCtx, stopAux := context.WithCancel(gctx)
	defer stopAux()

	g.Go(func() error {
		defer stopAux()
		var scenarios errgroup.Group
		for _, r := range lr.runners {
			scenarios.Go(func() error {
				r.Run(gctx)
				return nil
			})
		}
		return scenarios.Wait()
	})

	g.Go(func() error {
		return lr.thresholds.Watch(auxCtx, time.Second)
	})

	if addr := lr.cfg.MetricsAddr; addr != "" {
		g.Go(func() error {
			return metrics.Serve(auxCtx, addr, lr.collector, log)
		})
	}

	if progress != nil {
		updates := make(runner.StatsUpdateChan, 16)
		runner.NewMonitor(lr.collector, lr.runners, updates).StartTickLoop(gctx, interval)
		g.Go(func() error {
			return progress(gctx, updates, cancelRun)
		})
	}

	err := g.Wait()
	if errors.Is(err, threshold.ErrAborted) {
		return true, nil
	}
	return false, err
}

func runLoad(cmd *cobra.Command, root *rootOptions, opts *runOptions, args []string) error {
	cfg, err := root.config()
	if err != nil {
		return err
	}

	logOut := cmd.ErrOrStderr()
	log, err := root.logger(logOut)
	if err != nil {
		return err
	}
	if opts.tui {
		// the dashboard owns the terminal
		log = log.Level(zerolog.ErrorLevel)
	}

	lr, err := prepare(cfg, args, opts.maxDuration, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	var longest time.Duration
	for _, r := range lr.runners {
		longest = max(longest, r.Cfg.Duration())
	}

	var progress func(context.Context, runner.StatsUpdateChan, context.CancelFunc) error
	if opts.tui {
		title := "fxload: " + strings.Join(lr.names(), ", ")
		progress = func(ctx context.Context, updates runner.StatsUpdateChan, cancel context.CancelFunc) error {
			return tui.Run(ctx, title, updates, cancel)
		}
	} else {
		cli.Header(out, cfg.BaseURL, lr.names(), longest)
		progress = func(ctx context.Context, updates runner.StatsUpdateChan, _ context.CancelFunc) error {
			cli.Progress(ctx, out, updates)
			return nil
		}
	}

	log.Info().Str("run", lr.id).Strs("scenarios", lr.names()).Msg("Starting run")
	started := time.Now()
	aborted, err := lr.execute(ctx, log, progress, opts.progress)
	if err != nil {
		return err
	}

	results := lr.thresholds.Evaluate(context.Background())
	summary := report.Build(lr.collector, lr.checks, results, report.Meta{
		RunID:      lr.id,
		ConfigFile: root.cfgFile,
		Scenarios:  lr.names(),
		StartedAt:  started.UTC(),
		Duration:   report.Duration(time.Since(started)),
		Aborted:    aborted,
	})
	if err := report.WriteText(out, summary); err != nil {
		return err
	}

	if path := cfg.SummaryExport; path != "" {
		if err := export(path, summary); err != nil {
			return err
		}
		log.Info().Str("path", path).Msg("Summary exported")
	}

	if opts.history {
		if err := saveHistory(cfg.HistoryPath, summary); err != nil {
			log.Warn().Err(err).Msg("Could not save run history")
		}
	}

	if !summary.Passed {
		failed := 0
		for _, r := range results {
			if !r.Pass {
				failed++
			}
		}
		return &ThresholdsFailedError{Failed: failed, Aborted: aborted}
	}
	return nil
}

func export(path string, s *report.Summary) error {
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return report.WriteCSV(path, s)
	}
	return report.WriteJSON(path, s)
}

func openHistory(path string) (*storage.Store, error) {
	if path == "" {
		var err error
		if path, err = storage.DefaultPath(); err != nil {
			return nil, err
		}
	}
	return storage.Open(path)
}

func saveHistory(path string, s *report.Summary) error {
	store, err := openHistory(path)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.Save(storage.NewRecord(s))
}
