package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/foodly/authsync"
	"github.com/urfave/cli/v3"
)

func main() {
	config := authsync.DefaultConfig()
	logger := NewLogger(nil, config.Log.Level)

	runner := NewRunner(RunnerOpts{
		Config: config,
		Logger: logger,
	})

	app := &cli.Command{
		Name:     "authsync",
		Usage:    "Foodly session client: sign in, sign out and watch the session",
		Version:  "0.1.0",
		Commands: runner.register(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, os.Args); err != nil {
		if msg := authsync.UserMessage(err, ""); msg != "" && !authsync.IsCancelled(err) {
			logger.Error(msg)
		}
		logger.Fatalf("application error: %v", err)
	}
}
