package backoff

import (
	"context"
	"errors"
	"testing"
	"time"
)

// instantPolicy removes real sleeps from retry tests.
var instantPolicy = Policy{Initial: 0, Max: 0, Factor: 1, Jitter: 0}

func TestRetrySucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), instantPolicy, 3, func(attempt int) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), instantPolicy, 5, func(attempt int) error {
		calls++
		if attempt < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	sentinel := errors.New("persistent")
	calls := 0
	err := Retry(context.Background(), instantPolicy, 3, func(attempt int) error {
		calls++
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected wrapped sentinel, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRetryAttemptNumbersAreOneIndexed(t *testing.T) {
	var seen []int
	_ = Retry(context.Background(), instantPolicy, 3, func(attempt int) error {
		seen = append(seen, attempt)
		return errors.New("fail")
	})
	want := []int{1, 2, 3}
	if len(seen) != len(want) {
		t.Fatalf("got attempts %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("got attempts %v, want %v", seen, want)
		}
	}
}

func TestRetryStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := Retry(ctx, instantPolicy, 3, func(attempt int) error {
		calls++
		return errors.New("fail")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 0 {
		t.Errorf("expected no calls after cancellation, got %d", calls)
	}
}

func TestRetryCancelledDuringSleep(t *testing.T) {
	slow := Policy{Initial: time.Hour, Max: time.Hour, Factor: 1, Jitter: 0}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- Retry(ctx, slow, 2, func(attempt int) error {
			return errors.New("fail")
		})
	}()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("retry did not observe cancellation during its sleep")
	}
}

func TestRetryZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	_ = Retry(context.Background(), instantPolicy, 0, func(attempt int) error {
		calls++
		return errors.New("fail")
	})
	if calls != 1 {
		t.Errorf("expected exactly 1 call, got %d", calls)
	}
}
