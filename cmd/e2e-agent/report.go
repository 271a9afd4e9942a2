package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/loopback-labs/e2e-agent/internal/report"
	"github.com/loopback-labs/e2e-agent/internal/store"
	"github.com/loopback-labs/e2e-agent/internal/store/migrations"
)

func newReportCommand() *cobra.Command {
	var out string
	var limit uint64

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Export run history to an XLSX report",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Agent.DataFolder == "" {
				return fmt.Errorf("run history is disabled: set agent.data_folder")
			}
			db, err := store.NewDB(filepath.Join(cfg.Agent.DataFolder, "e2e-agent.db"))
			if err != nil {
				return fmt.Errorf("failed to open run history database: %w", err)
			}
			defer db.Close()
			if err := migrations.Run(cmd.Context(), db); err != nil {
				return err
			}

			runs, err := store.NewStore(db).Runs().ListRuns(cmd.Context(), store.WithLimit(limit))
			if err != nil {
				return err
			}
			if err := report.Write(runs, out); err != nil {
				return err
			}
			fmt.Printf("wrote %d runs to %s\n", len(runs), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "e2e-runs.xlsx", "Output path for the report")
	cmd.Flags().Uint64Var(&limit, "limit", 0, "Maximum runs to export (0 means all)")
	return cmd
}
