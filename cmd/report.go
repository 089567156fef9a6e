package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"resale-pipeline/services"
	"resale-pipeline/storage"
)

func newReportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Show per-family image counts, status and the last crawl run",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := storage.NewPostgresStore(cmd.Context(), cfg.DSN(), logger)
			if err != nil {
				return err
			}
			defer store.Close()

			svc := services.NewInsightService(store, logger)
			report, err := svc.Generate(cmd.Context())
			if err != nil {
				return err
			}
			svc.Print(os.Stdout, report)
			return nil
		},
	}
}
