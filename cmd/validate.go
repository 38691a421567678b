package cmd

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"fxload/internal/config"
)

func newValidateCmd(root *rootOptions) *cobra.Command {
	var printCfg bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration without sending any request",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.config()
			if err != nil {
				return err
			}
			if _, err := prepare(cfg, nil, 0, zerolog.Nop()); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if printCfg {
				return config.Print(out, cfg)
			}
			selected, _ := cfg.Select()
			for _, s := range selected {
				fmt.Fprintf(out, "✓ %-14s %s, %s\n", s.Name, s.Executor, s.Duration())
			}
			fmt.Fprintln(out, "configuration is valid")
			return nil
		},
	}
	cmd.Flags().BoolVar(&printCfg, "print", false, "print the effective configuration as YAML")
	return cmd
}
