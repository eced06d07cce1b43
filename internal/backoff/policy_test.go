package backoff

import (
	"testing"
	"time"
)

func TestPolicyDelayGrowsExponentially(t *testing.T) {
	p := Policy{Initial: 100 * time.Millisecond, Max: 30 * time.Second, Factor: 2, Jitter: 0}

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{5, 1600 * time.Millisecond},
	}
	for _, tc := range cases {
		if got := p.DelayWithRand(tc.attempt, 0); got != tc.want {
			t.Errorf("attempt %d: got %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestPolicyDelayClampsToMax(t *testing.T) {
	p := Policy{Initial: time.Second, Max: 5 * time.Second, Factor: 10, Jitter: 0}
	if got := p.DelayWithRand(4, 0); got != 5*time.Second {
		t.Errorf("got %v, want the 5s cap", got)
	}
}

func TestPolicyDelayJitterIsAdditiveAndBounded(t *testing.T) {
	p := Policy{Initial: 100 * time.Millisecond, Max: 30 * time.Second, Factor: 2, Jitter: 0.5}

	lo := p.DelayWithRand(1, 0)
	hi := p.DelayWithRand(1, 0.999)
	if lo != 100*time.Millisecond {
		t.Errorf("zero random should yield the base delay, got %v", lo)
	}
	if hi <= lo || hi >= 150*time.Millisecond+time.Millisecond {
		t.Errorf("jittered delay %v out of expected (100ms, 150ms] band", hi)
	}
}

func TestPolicyDelayAttemptFloor(t *testing.T) {
	p := DefaultPolicy()
	if got, want := p.DelayWithRand(0, 0), p.DelayWithRand(1, 0); got != want {
		t.Errorf("attempt 0 should behave like attempt 1: got %v, want %v", got, want)
	}
}
