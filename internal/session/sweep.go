package session

import (
	"context"
	"log/slog"
	"time"
)

// RunSweeper calls sw.Sweep every interval until ctx is cancelled. Failures
// are logged and the loop keeps going.
func RunSweeper(ctx context.Context, sw Sweeper, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := sw.Sweep(ctx)
			if err != nil {
				if ctx.Err() == nil {
					logger.Warn("session sweep failed", "error", err)
				}
				continue
			}
			if n > 0 {
				logger.Debug("expired sessions removed", "count", n)
			}
		}
	}
}
