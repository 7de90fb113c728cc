// Package main provides the secrets broker daemon. It is the only process
// that holds API keys and signing material; the agent runtime talks to it
// over a Unix-socket IPC and receives completions, embeddings, and
// signatures — never raw keys.
//
// Start it before the runtime:
//
//	secretsbrokerd -socket /tmp/agentrt-broker.sock -provider anthropic
//
// Credentials are read from this process's environment only:
//
//   - ANTHROPIC_API_KEY: Anthropic API key
//   - OPENAI_API_KEY: OpenAI API key (also enables embeddings)
//   - AWS_* credential chain: Bedrock
//   - AGENT_PRIVATE_KEY: hex secp256k1 key registered under key id "default"
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/nexuscore/agentrt/internal/broker"
)

func main() {
	_ = godotenv.Load()

	socketPath := flag.String("socket", "/tmp/agentrt-broker.sock", "Unix socket to listen on")
	provider := flag.String("provider", "anthropic", "LLM provider: anthropic, openai, or bedrock")
	model := flag.String("model", "", "Model override for the chosen provider")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := broker.ServerConfig{
		SocketPath:      *socketPath,
		LLMProvider:     *provider,
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		BedrockRegion:   os.Getenv("AWS_REGION"),
		SigningKeys:     map[string]string{},
	}
	switch *provider {
	case "anthropic":
		cfg.AnthropicModel = *model
	case "openai":
		cfg.OpenAIModel = *model
	case "bedrock":
		cfg.BedrockModel = *model
	}
	if key := os.Getenv("AGENT_PRIVATE_KEY"); key != "" {
		cfg.SigningKeys["default"] = key
	}

	server, err := broker.NewServer(ctx, cfg, logger.With("component", "broker"))
	if err != nil {
		logger.Error("broker startup failed", "error", err)
		os.Exit(1)
	}

	logger.Info("secrets broker listening", "socket", *socketPath, "provider", *provider)
	if err := server.Serve(ctx); err != nil {
		logger.Error("broker exited", "error", err)
		os.Exit(1)
	}
}
