// Package main is the CLI entry point for the Healthmate CoachAI service:
// a streaming health coach agent backed by Bedrock and the HealthManager
// tool gateway.
//
// Start the server:
//
//	coachai serve
//	coachai serve --config coachai.yaml
//
// Configuration comes from the environment (HEALTHMATE_ENV,
// HEALTHMANAGER_GATEWAY_ID, HEALTHMATE_AI_MODEL, ...) or from a YAML file
// passed with --config; environment values win.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "coachai",
		Short:        "Healthmate CoachAI - streaming health coach agent",
		Long:         "CoachAI answers health coaching conversations by streaming a Bedrock model,\nwith health data tools proxied through the HealthManager MCP gateway.",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	rootCmd.AddCommand(buildServeCmd())
	return rootCmd
}
