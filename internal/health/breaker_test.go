package health

import (
	"errors"
	"testing"
	"time"
)

// fakeClock drives breaker/limiter time in tests.
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time        { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

// --- Breaker Tests ---

func TestBreaker_StartsClosed(t *testing.T) {
	b := NewBreaker(5, time.Minute)

	if b.State() != BreakerClosed {
		t.Errorf("expected CLOSED, got %s", b.State())
	}
	if err := b.Allow(); err != nil {
		t.Errorf("closed breaker should allow: %v", err)
	}
}

func TestBreaker_TripsAtThreshold(t *testing.T) {
	b := NewBreaker(3, time.Minute)

	if b.RecordFailure() {
		t.Error("failure 1 should not trip")
	}
	if b.RecordFailure() {
		t.Error("failure 2 should not trip")
	}
	if !b.RecordFailure() {
		t.Error("failure 3 should trip the breaker")
	}
	if b.State() != BreakerOpen {
		t.Errorf("expected OPEN, got %s", b.State())
	}
}

func TestBreaker_OpenRejectsWithRetryAfter(t *testing.T) {
	clock := newFakeClock()
	b := NewBreaker(1, 5*time.Minute)
	b.now = clock.Now

	b.RecordFailure()

	clock.Advance(2 * time.Minute)
	err := b.Allow()
	if err == nil {
		t.Fatal("open breaker should reject")
	}

	var open *CircuitOpenError
	if !errors.As(err, &open) {
		t.Fatalf("expected CircuitOpenError, got %T", err)
	}
	if open.RetryAfter != 3*time.Minute {
		t.Errorf("expected retry-after 3m, got %s", open.RetryAfter)
	}
}

func TestBreaker_HalfOpenAfterTimeout(t *testing.T) {
	clock := newFakeClock()
	b := NewBreaker(1, time.Minute)
	b.now = clock.Now

	b.RecordFailure()
	clock.Advance(time.Minute + time.Second)

	// First check past the timeout admits a single probe
	if err := b.Allow(); err != nil {
		t.Fatalf("probe should be allowed: %v", err)
	}
	if b.State() != BreakerHalfOpen {
		t.Errorf("expected HALF_OPEN, got %s", b.State())
	}

	// Only one probe while the first is in flight
	if err := b.Allow(); err == nil {
		t.Error("second probe should be rejected")
	}
}

func TestBreaker_ProbeSuccessCloses(t *testing.T) {
	clock := newFakeClock()
	b := NewBreaker(1, time.Minute)
	b.now = clock.Now

	b.RecordFailure()
	clock.Advance(2 * time.Minute)

	if err := b.Allow(); err != nil {
		t.Fatalf("probe should be allowed: %v", err)
	}
	b.RecordSuccess()

	if b.State() != BreakerClosed {
		t.Errorf("expected CLOSED after probe success, got %s", b.State())
	}
	if err := b.Allow(); err != nil {
		t.Errorf("closed breaker should allow: %v", err)
	}

	// Failure counter is reset: one failure must not re-trip a threshold-2 breaker
	b2 := NewBreaker(2, time.Minute)
	b2.RecordFailure()
	b2.RecordSuccess()
	if b2.RecordFailure() {
		t.Error("counter should reset on success")
	}
}

func TestBreaker_ProbeFailureReopens(t *testing.T) {
	clock := newFakeClock()
	b := NewBreaker(1, time.Minute)
	b.now = clock.Now

	b.RecordFailure()
	clock.Advance(2 * time.Minute)

	if err := b.Allow(); err != nil {
		t.Fatalf("probe should be allowed: %v", err)
	}
	if !b.RecordFailure() {
		t.Error("probe failure should re-open")
	}
	if b.State() != BreakerOpen {
		t.Errorf("expected OPEN, got %s", b.State())
	}

	// Timeout restarts from the probe failure
	clock.Advance(30 * time.Second)
	if err := b.Allow(); err == nil {
		t.Error("breaker should still be open before the restarted timeout")
	}
	clock.Advance(31 * time.Second)
	if err := b.Allow(); err != nil {
		t.Errorf("probe should be allowed after restarted timeout: %v", err)
	}
}

func TestBreaker_Reset(t *testing.T) {
	b := NewBreaker(1, time.Hour)
	b.RecordFailure()

	if b.State() != BreakerOpen {
		t.Fatalf("expected OPEN, got %s", b.State())
	}

	b.Reset()

	if b.State() != BreakerClosed {
		t.Errorf("expected CLOSED after reset, got %s", b.State())
	}
	if err := b.Allow(); err != nil {
		t.Errorf("reset breaker should allow: %v", err)
	}
}

func TestBreaker_Defaults(t *testing.T) {
	b := NewBreaker(0, 0)

	// Default threshold is 5
	for i := 0; i < 4; i++ {
		if b.RecordFailure() {
			t.Fatalf("failure %d should not trip", i+1)
		}
	}
	if !b.RecordFailure() {
		t.Error("failure 5 should trip")
	}
}
