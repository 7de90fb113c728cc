package main

import (
	"log/slog"
	"os"
)

// scrubEnvironment removes the configured sensitive variable names from
// this process's environment. It runs once, after the broker handshake and
// the startup reads that legitimately need the values, and before any
// handler can observe the environment.
func scrubEnvironment(names []string, logger *slog.Logger) {
	scrubbed := 0
	for _, name := range names {
		if _, present := os.LookupEnv(name); present {
			if err := os.Unsetenv(name); err != nil {
				logger.Error("failed to scrub environment variable", "name", name, "error", err)
				continue
			}
			scrubbed++
		}
	}
	logger.Info("environment scrubbed", "removed", scrubbed, "checked", len(names))
}
