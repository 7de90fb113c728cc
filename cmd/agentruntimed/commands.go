// commands.go contains the cobra command definitions and their flag
// configurations; each builder wires a command to its handler in
// serve.go, worker.go, or doctor.go.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nexuscore/agentrt/internal/config"
	"github.com/nexuscore/agentrt/internal/gateway"
)

func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the agent runtime",
		Long: `Start the runtime with every configured subsystem:

1. Load configuration (YAML over defaults)
2. Connect to the secrets broker and scrub sensitive environment variables
3. Register gateway methods and seal the dispatcher
4. Start the gateway, planner loop, queue poller, and approval sweep

Graceful shutdown is handled on SIGINT/SIGTERM.`,
		Example: `  # Start with default config lookup
  agentruntimed serve

  # Start with an explicit config
  agentruntimed serve --config /etc/agentrt/production.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), resolveConfigPath(configPath), debug)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file (default agentrt.yaml)")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

func buildWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:    "worker",
		Short:  "Run as a sub-agent worker (spawned by the supervisor, not for interactive use)",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkerProcess(cmd.Context())
		},
	}
}

func buildDoctorCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run the runtime self-checks",
		Long:  "Probes broker reachability, key/value store health, workspace writability, and sub-agent headroom, and prints a report.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(cmd.Context(), resolveConfigPath(configPath))
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file (default agentrt.yaml)")
	return cmd
}

// buildTokenCmd issues a gateway connection token for local tooling when
// connection auth is enabled.
func buildTokenCmd() *cobra.Command {
	var (
		configPath string
		subject    string
		ttl        time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a gateway connection token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath(configPath))
			if err != nil {
				return err
			}
			verifier := gateway.NewTokenVerifier(cfg.Gateway.AuthSecret)
			if verifier == nil {
				return fmt.Errorf("gateway auth is disabled (no auth_secret configured)")
			}
			token, err := verifier.Issue(subject, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file (default agentrt.yaml)")
	cmd.Flags().StringVar(&subject, "subject", "cli", "Token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime (0 for non-expiring)")
	return cmd
}

// resolveConfigPath falls back to AGENTRT_CONFIG, then agentrt.yaml.
func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv("AGENTRT_CONFIG"); env != "" {
		return env
	}
	return "agentrt.yaml"
}
