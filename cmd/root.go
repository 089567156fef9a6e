// Package cmd implements the command-line interface: reference-image
// ingestion, the family report, comp pricing and helpers around them.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"resale-pipeline/config"
	"resale-pipeline/utils"
)

var (
	logLevel string
	debug    bool

	cfg    *config.Config
	logger *utils.Logger

	rootCmd = &cobra.Command{
		Use:           "resale-pipeline",
		Short:         "Reference-image ingestion and resale price guidance",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cfg = config.Load()
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			if debug {
				cfg.LogLevel = "debug"
				cfg.LogDevelopment = true
			}
			logger = utils.NewLoggerWithConfig(utils.LogConfig{
				Level:       cfg.LogLevel,
				Format:      cfg.LogFormat,
				Development: cfg.LogDevelopment,
			})
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				logger.Sync()
			}
		},
	}
)

// Execute runs the root command. SIGINT and SIGTERM cancel the command context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error); overrides LOG_LEVEL")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(newIngestCommand())
	rootCmd.AddCommand(newReportCommand())
	rootCmd.AddCommand(newPriceCommand())
	rootCmd.AddCommand(newIdentifyCommand())
	rootCmd.AddCommand(newBackfillCommand())
}
