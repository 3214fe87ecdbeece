// Command entitydoc validates, patches and stores entity documents.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// Overridden with -ldflags "-X main.version=...".
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := newRootCmd()
	// Errors are printed by the commands themselves.
	if err := root.ExecuteContext(ctx); err != nil {
		return 1
	}
	return 0
}
