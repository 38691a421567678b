package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"fxload/internal/report"
	"fxload/internal/storage"
	"fxload/internal/tui/styles"
)

func newHistoryCmd(root *rootOptions) *cobra.Command {
	var (
		path  string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List saved runs, or show the summary of one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openHistory(path)
			if err != nil {
				return err
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			if len(args) == 1 {
				rec, err := store.Get(args[0])
				if err != nil {
					return err
				}
				if rec.Summary == nil {
					return fmt.Errorf("run %s has no stored summary", rec.ID)
				}
				return report.WriteText(out, rec.Summary)
			}

			recs, err := store.List(limit)
			if err != nil {
				return err
			}
			if len(recs) == 0 {
				fmt.Fprintln(out, "no runs recorded yet; use fxload run --history")
				return nil
			}
			fmt.Fprintln(out, historyTable(recs))
			return nil
		},
	}

	cmd.Flags().StringVar(&path, "history-path", "", "history database (default ~/.fxload/history.db)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to list, 0 for all")
	return cmd
}

func historyTable(recs []storage.RunRecord) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(styles.Subtle).
		Headers("ID", "STARTED", "SCENARIOS", "REQUESTS", "P(95)", "RESULT")

	for _, r := range recs {
		result := "PASSED"
		switch {
		case r.Aborted:
			result = "ABORTED"
		case !r.Passed:
			result = "FAILED"
		}
		t.Row(
			r.ID,
			r.Time.Local().Format(time.DateTime),
			strings.Join(r.Scenarios, ","),
			fmt.Sprintf("%.0f", r.Requests()),
			fmt.Sprintf("%.2fms", r.P95()),
			result,
		)
	}
	return t.String()
}
