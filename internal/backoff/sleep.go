package backoff

import (
	"context"
	"time"
)

// Sleep waits for d or until ctx is cancelled, whichever comes first.
// Returns ctx.Err() on cancellation, nil otherwise. This is the bounded,
// cancelable wait between background-agent retry attempts.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
