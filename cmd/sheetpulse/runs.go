package main

import (
	"fmt"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"sheetpulse/pkg/artifacts"
)

func newRunsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent refresh runs from the ledger",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ledger, err := artifacts.OpenLedger(filepath.Join(cfg.LogsRoot, "sheetpulse.db"))
			if err != nil {
				return err
			}
			defer ledger.Close()

			runs, err := ledger.RecentRuns(limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RUN\tUSER\tWORKBOOK\tSHEET\tOUTCOME")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.RunID, r.User, r.Workbook, r.Sheet, r.Outcome)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum rows to list")
	return cmd
}
