/*
Package main is the entry point for the offline training CLI.

Usage:

	train [command]

Available Commands:

	run       Train the classifier and write the model artifacts
	verify    Verify the model artifacts load and agree
	fetch     Download the training dataset
	schedule  Retrain on a cron schedule
*/
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"diabetesrisk/internal/cli"
	"diabetesrisk/internal/config"
	"diabetesrisk/internal/logger"
)

// Version information (set via ldflags during build)
var (
	version = "dev"
	commit  = "none"
)

func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel, "text")

	rootCmd := &cobra.Command{
		Use:   "train",
		Short: "Train and inspect the diabetes risk model",
		Long: `train builds the scaler and random forest served by the API from a CSV
dataset, and checks that the written artifacts load the way the server loads
them.`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(cli.NewRunCmd())
	rootCmd.AddCommand(cli.NewVerifyCmd())
	rootCmd.AddCommand(cli.NewFetchCmd())
	rootCmd.AddCommand(cli.NewScheduleCmd())

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
