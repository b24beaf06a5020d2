package process

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/kelsos/collector-sync/internal/logger"
)

// WaitForExit blocks until SIGINT or SIGTERM arrives, ctx is cancelled or
// done is closed. It returns the signal that ended the wait, if any.
func WaitForExit(ctx context.Context, done <-chan struct{}) os.Signal {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		logger.Info("Received signal %v, stopping uploads...", sig)
		return sig
	case <-ctx.Done():
		return nil
	case <-done:
		logger.Info("Task manager exited")
		return nil
	}
}
