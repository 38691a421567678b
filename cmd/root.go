package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"fxload/internal/banner"
	"fxload/internal/config"
)

// ThresholdsFailedError is returned by the run command when at least one
// threshold failed or the run was aborted by one.
type ThresholdsFailedError struct {
	Failed  int
	Aborted bool
}

func (e *ThresholdsFailedError) Error() string {
	if e.Aborted {
		return "run aborted by a threshold"
	}
	return fmt.Sprintf("%d threshold(s) failed", e.Failed)
}

const exitThresholds = 99

type rootOptions struct {
	cfgFile   string
	logLevel  string
	logFormat string
	v         *viper.Viper
}

func NewRootCmd() *cobra.Command {
	opts := &rootOptions{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:   "fxload",
		Short: "fxload - load tests for the FX subscription API",
		Long: `
fxload drives the FX subscription API (signup, login, subscriptions) with
scheduled virtual users and checks the results against thresholds.

Scenarios:
  user_journey  ramping VUs walking signup, login, create and list
  api_load      ramping arrival rate over the same endpoints`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), banner.GetString())
		cmd.Usage()
	})

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&opts.cfgFile, "config", "c", "", "config file (yaml, json or toml)")
	pf.StringVar(&opts.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	pf.StringVar(&opts.logFormat, "log-format", "console", "log format (console or json)")

	rootCmd.AddCommand(
		newRunCmd(opts),
		newDummyCmd(opts),
		newValidateCmd(opts),
		newHistoryCmd(opts),
	)
	return rootCmd
}

func Execute() {
	err := NewRootCmd().Execute()
	if err == nil {
		return
	}

	var tf *ThresholdsFailedError
	if errors.As(err, &tf) {
		fmt.Fprintln(os.Stderr, "❌", err)
		os.Exit(exitThresholds)
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(1)
}

// logger builds the process logger on w from the persistent flags.
func (o *rootOptions) logger(w io.Writer) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(o.logLevel))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid --log-level %q: %w", o.logLevel, err)
	}

	switch o.logFormat {
	case "json":
	case "console", "":
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	default:
		return zerolog.Nop(), fmt.Errorf("invalid --log-format %q", o.logFormat)
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger(), nil
}

// config loads and validates the run configuration.
func (o *rootOptions) config() (*config.Config, error) {
	cfg, err := config.Load(o.v, o.cfgFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
