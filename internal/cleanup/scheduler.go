// ABOUTME: Periodic scheduling for the cleanup reconciler
// ABOUTME: Runs real passes on an interval until the context is cancelled

package cleanup

import (
	"context"
	"time"
)

// DefaultInterval is the pass cadence when the config does not choose one.
const DefaultInterval = time.Hour

// Schedule runs reconciler passes on the given interval until ctx is
// cancelled. It blocks; run it on its own goroutine. The first pass happens
// after one interval, not at startup, so a crash-looping process does not
// hammer the stores.
func (r *Reconciler) Schedule(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info("cleanup scheduler started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("cleanup scheduler stopped")
			return
		case <-ticker.C:
			r.Run(ctx, false)
		}
	}
}
