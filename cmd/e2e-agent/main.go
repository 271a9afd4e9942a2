package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/loopback-labs/e2e-agent/internal/config"
)

var version = "dev"

var (
	configFile string
	cfg        *config.Configuration
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "e2e-agent",
		Short: "Runs remotely generated e2e test suites against a locally served application",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(configFile, cmd.Flags())
			if err != nil {
				return err
			}
			logger, err := buildLogger(cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			zap.ReplaceGlobals(logger)
			return nil
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to the configuration file")
	rootCmd.PersistentFlags().String("repo", "", "Path to the local repository (overrides config)")
	rootCmd.PersistentFlags().Int("port", 0, "Local port the application listens on (overrides config)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error (overrides config)")

	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newReportCommand())
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the agent version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		exitCode = 1
	}
	_ = zap.L().Sync()
	os.Exit(exitCode)
}

// exitCode lets run commands report failed suites without an error dump.
var exitCode int

func buildLogger(level, format string) (*zap.Logger, error) {
	var zapCfg zap.Config
	if format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	zapCfg.Level = lvl
	return zapCfg.Build()
}
