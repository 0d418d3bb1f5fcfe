package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/crimson-sun/faultline/internal/model"
)

// Exit codes.
const (
	exitOK     = 0
	exitFailed = 1
	exitUsage  = 2
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(os.Stderr, "\nreceived %v, shutting down...\n", sig)
		cancel()
	}()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "faultline:", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps a run error to the process exit status. Bad clustering
// parameters are usage errors; everything else is a failed run.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ce *model.ClusterConfigError
	if errors.As(err, &ce) {
		return exitUsage
	}
	return exitFailed
}
