// Command ragctx ingests documents and serves token-bounded retrieval
// context for LLM prompts.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/custodia-labs/ragctx/internal/adapters/driving/cli"
	"github.com/custodia-labs/ragctx/internal/logger"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	// A missing .env is normal; variables may come from the environment.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Warn("loading .env: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cli.SetVersion(version)
	cli.SetInitializer(wire)

	if err := cli.Execute(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
