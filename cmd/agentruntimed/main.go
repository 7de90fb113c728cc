// Package main provides the CLI entry point for the agent runtime daemon.
//
// The daemon hosts the request dispatcher behind a loopback WebSocket
// gateway, runs the agentic planner loop and the task-queue poller, and
// supervises capability-restricted sub-agent worker processes. All
// credential-backed operations (LLM completion, signing, embeddings) are
// delegated to a separate secretsbrokerd process; after the broker
// handshake, the daemon scrubs sensitive variables from its own
// environment.
//
// # Basic Usage
//
// Start the runtime:
//
//	agentruntimed serve --config agentrt.yaml
//
// Run the self-checks:
//
//	agentruntimed doctor
//
// The worker subcommand is not for interactive use; it is the child-side
// entry the supervisor spawns for each sub-agent.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Build information - populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// A local .env is a development convenience; in deployment the broker
	// holds the secrets and the runtime's environment stays minimal.
	_ = godotenv.Load()

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
		Use:          "agentruntimed",
		Short:        "Autonomous agent runtime daemon",
		Long:         "Hosts the typed RPC gateway, planner loop, task-queue poller, and sub-agent supervisor behind a secrets-broker boundary.",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	rootCmd.AddCommand(
		buildServeCmd(),
		buildWorkerCmd(),
		buildDoctorCmd(),
		buildTokenCmd(),
	)
	return rootCmd
}
