package statemachine

import (
	"context"
	"time"
)

// Sleep waits for d or until ctx is done, returning the context's cause in the latter case.
// Simulated collaborators use it instead of bare timers so cancellation stops them.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}
