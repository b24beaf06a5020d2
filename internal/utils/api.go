package utils

import (
	"context"
	"time"

	"github.com/kelsos/collector-sync/internal/logger"
)

// WaitForAPIReady pings until the API answers, maxAttempts is reached or ctx
// is cancelled.
func WaitForAPIReady(ctx context.Context, ping func(context.Context) error, maxAttempts int, delay time.Duration) bool {
	logger.Info("Checking API readiness...")

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		logger.Debug("Checking API readiness (attempt %d/%d)...", attempt, maxAttempts)

		err := ping(ctx)
		if err == nil {
			logger.Info("API is ready!")
			return true
		}
		logger.Debug("API not ready: %v", err)

		if attempt == maxAttempts {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}
	}

	logger.Warn("API failed to become ready after %d attempts", maxAttempts)
	return false
}
