package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/couchcryptid/saferoute/internal/config"
	"github.com/couchcryptid/saferoute/internal/observability"
	"github.com/spf13/cobra"
)

var (
	cfg     *config.Config
	logger  *slog.Logger
	envFile string
)

var rootCmd = &cobra.Command{
	Use:           "saferoute",
	Short:         "Incident risk surface builder and risk-aware router",
	Long:          "Builds an H3 risk surface from collision and crime records, then routes over a street graph trading travel time against risk.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadDotEnv(envFile); err != nil {
			return err
		}
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c
		logger = observability.NewLogger(cfg)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "optional KEY=VALUE file loaded before reading the environment")
	rootCmd.AddCommand(buildCmd, serveCmd, compareCmd, graphCmd, hotspotsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}
