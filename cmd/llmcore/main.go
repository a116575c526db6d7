package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"llmcore/internal/cli"
)

func main() {
	// Ctrl+C / SIGTERM cancel waits; a running generation finishes first.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := cli.Execute(ctx, os.Args[1:], cli.Deps{})
	stop()
	os.Exit(code)
}
