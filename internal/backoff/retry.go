package backoff

import (
	"context"
	"fmt"
)

// Retry runs fn up to attempts times, sleeping policy.Delay between
// failures. It returns nil as soon as fn succeeds, ctx.Err() if the
// context is cancelled before an attempt or during a wait, and the last
// error from fn (wrapped) once every attempt has failed.
//
// fn receives the 1-indexed attempt number. Retry never sleeps after the
// final attempt.
func Retry(ctx context.Context, policy Policy, attempts int, fn func(attempt int) error) error {
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn(attempt)
		if lastErr == nil {
			return nil
		}
		if attempt < attempts {
			if err := Sleep(ctx, policy.Delay(attempt)); err != nil {
				return err
			}
		}
	}
	return fmt.Errorf("all %d attempts failed: %w", attempts, lastErr)
}
