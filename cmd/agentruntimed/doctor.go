package main

import (
	"context"
	"fmt"
	"time"

	"github.com/nexuscore/agentrt/internal/broker"
	"github.com/nexuscore/agentrt/internal/config"
	"github.com/nexuscore/agentrt/internal/doctor"
	"github.com/nexuscore/agentrt/internal/workspace"
)

// runDoctor builds just enough of the runtime to probe it: broker socket,
// configured store backend, workspace root. The supervisor row reports
// degraded since no supervisor runs inside the doctor process.
func runDoctor(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	deps := doctor.Deps{ConcurrencyCap: cfg.Subagent.ConcurrencyCap}

	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	client, err := broker.Dial(dialCtx, cfg.Broker.SocketPath)
	cancel()
	if err == nil {
		defer client.Close()
		deps.Broker = client
	}

	if store, err := buildStore(cfg.KVStore); err == nil {
		defer store.Close()
		deps.Store = store
	}

	if jail, err := workspace.New(cfg.Workspace.Root, cfg.Workspace.MaxFileSize); err == nil {
		deps.Workspace = jail
	}

	failed := false
	for _, result := range doctor.RunAll(ctx, deps) {
		marker := "✓"
		switch result.Status {
		case doctor.StatusDegraded:
			marker = "!"
		case doctor.StatusFailed:
			marker = "✗"
			failed = true
		}
		line := fmt.Sprintf("%s %-10s %s", marker, result.Name, result.Status)
		if result.Detail != "" {
			line += " — " + result.Detail
		}
		fmt.Println(line)
	}
	if failed {
		return fmt.Errorf("one or more checks failed")
	}
	return nil
}
