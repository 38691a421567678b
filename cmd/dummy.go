package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"fxload/internal/dummy"
)

func newDummyCmd(root *rootOptions) *cobra.Command {
	cfg := dummy.ServerConfig{}

	cmd := &cobra.Command{
		Use:   "dummy",
		Short: "Run an in-memory FX subscription service to test against",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := root.logger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return dummy.Serve(ctx, cfg, log)
		},
	}

	f := cmd.Flags()
	f.IntVarP(&cfg.Port, "port", "p", 8080, "port to listen on")
	f.StringVar(&cfg.Prefix, "prefix", dummy.DefaultPrefix, "path prefix of every route")
	f.DurationVar(&cfg.Latency, "latency", 0, "added to every response")
	f.DurationVar(&cfg.Jitter, "jitter", 0, "random extra latency, up to this much")
	f.Float64Var(&cfg.ErrorRate, "error-rate", 0, "fraction of requests answered with 500")
	return cmd
}
