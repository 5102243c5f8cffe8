package health

import (
	"errors"
	"testing"
	"time"

	"github.com/shaiso/Formata/internal/domain"
)

func newTestLimiter(opts domain.RateLimitOptions) (*Limiter, *fakeClock) {
	clock := newFakeClock()
	l := NewLimiter(opts)
	l.now = clock.Now
	return l, clock
}

// --- Limiter Tests ---

func TestLimiter_BurstWindowCapsRapidCalls(t *testing.T) {
	// base 5/min, burst 2 per 10s: six rapid calls admit exactly two
	l, clock := newTestLimiter(domain.RateLimitOptions{Base: 5, Burst: 2, WindowSec: 60})

	admitted := 0
	for i := 0; i < 6; i++ {
		err := l.Allow()
		if err == nil {
			admitted++
			continue
		}
		var limited *RateLimitedError
		if !errors.As(err, &limited) {
			t.Fatalf("expected RateLimitedError, got %T", err)
		}
		if limited.Reason != ReasonBurstExceeded {
			t.Errorf("call %d: expected burst_exceeded, got %s", i, limited.Reason)
		}
		clock.Advance(10 * time.Millisecond)
	}

	if admitted != 2 {
		t.Errorf("expected 2 admitted, got %d", admitted)
	}
}

func TestLimiter_BurstRecoversAfterShortWindow(t *testing.T) {
	l, clock := newTestLimiter(domain.RateLimitOptions{Base: 10, Burst: 2, WindowSec: 60})

	if err := l.Allow(); err != nil {
		t.Fatalf("call 1: %v", err)
	}
	if err := l.Allow(); err != nil {
		t.Fatalf("call 2: %v", err)
	}
	if err := l.Allow(); err == nil {
		t.Fatal("call 3 should hit the burst cap")
	}

	clock.Advance(11 * time.Second)

	if err := l.Allow(); err != nil {
		t.Errorf("call after burst window should pass: %v", err)
	}
}

func TestLimiter_LongWindowExceeded(t *testing.T) {
	l, clock := newTestLimiter(domain.RateLimitOptions{Base: 3, Burst: 3, WindowSec: 60})

	for i := 0; i < 3; i++ {
		if err := l.Allow(); err != nil {
			t.Fatalf("call %d: %v", i+1, err)
		}
		clock.Advance(15 * time.Second) // stay clear of the burst window
	}

	err := l.Allow()
	if err == nil {
		t.Fatal("fourth call should exceed the window limit")
	}
	var limited *RateLimitedError
	if !errors.As(err, &limited) {
		t.Fatalf("expected RateLimitedError, got %T", err)
	}
	if limited.Reason != ReasonWindowExceeded {
		t.Errorf("expected window_exceeded, got %s", limited.Reason)
	}
	if limited.RetryAfter <= 0 {
		t.Errorf("retry-after should be positive, got %s", limited.RetryAfter)
	}
}

func TestLimiter_WindowSlides(t *testing.T) {
	l, clock := newTestLimiter(domain.RateLimitOptions{Base: 2, Burst: 2, WindowSec: 60})

	if err := l.Allow(); err != nil {
		t.Fatalf("call 1: %v", err)
	}
	clock.Advance(30 * time.Second)
	if err := l.Allow(); err != nil {
		t.Fatalf("call 2: %v", err)
	}
	if err := l.Allow(); err == nil {
		t.Fatal("call 3 should be rejected")
	}

	// First stamp leaves the window
	clock.Advance(31 * time.Second)
	if err := l.Allow(); err != nil {
		t.Errorf("call after slide should pass: %v", err)
	}
	if got := l.Admitted(); got != 2 {
		t.Errorf("expected 2 stamps in window, got %d", got)
	}
}

func TestLimiter_AdaptiveGrowth(t *testing.T) {
	l, _ := newTestLimiter(domain.RateLimitOptions{Base: 10, Burst: 3, WindowSec: 60})

	before := l.Limit()
	l.OnSuccess()
	after := l.Limit()

	if after <= before {
		t.Errorf("limit should grow on success: %v -> %v", before, after)
	}

	// Ceiling at 2x base
	for i := 0; i < 100; i++ {
		l.OnSuccess()
	}
	if got := l.Limit(); got > 20.0 {
		t.Errorf("limit should be capped at 2x base, got %v", got)
	}
}

func TestLimiter_ThrottleShrinksFasterThanGrowth(t *testing.T) {
	l, _ := newTestLimiter(domain.RateLimitOptions{Base: 10, Burst: 3, WindowSec: 60})

	l.OnSuccess()
	grown := l.Limit()
	growth := grown - 10.0

	l.OnThrottle()
	shrunk := l.Limit()
	shrink := grown - shrunk

	if shrink <= growth {
		t.Errorf("one throttle (−%v) should outweigh one success (+%v)", shrink, growth)
	}
}

func TestLimiter_ThrottleFloor(t *testing.T) {
	l, _ := newTestLimiter(domain.RateLimitOptions{Base: 10, Burst: 3, WindowSec: 60})

	for i := 0; i < 100; i++ {
		l.OnThrottle()
	}
	if got := l.Limit(); got < 1.0 {
		t.Errorf("limit should never drop below 1, got %v", got)
	}
}

func TestLimiter_RejectStreakNudgesDown(t *testing.T) {
	l, clock := newTestLimiter(domain.RateLimitOptions{Base: 10, Burst: 1, WindowSec: 60})

	if err := l.Allow(); err != nil {
		t.Fatalf("first call: %v", err)
	}

	before := l.Limit()
	for i := 0; i < 3; i++ {
		clock.Advance(time.Millisecond)
		if err := l.Allow(); err == nil {
			t.Fatalf("rejection %d expected", i+1)
		}
	}
	if got := l.Limit(); got >= before {
		t.Errorf("three consecutive rejections should shrink the limit: %v -> %v", before, got)
	}
}

func TestLimiter_DelayBounds(t *testing.T) {
	l, _ := newTestLimiter(domain.RateLimitOptions{Base: 6, Burst: 3, WindowSec: 60})

	// limit 6 per 60s -> base pause 10s, jitter up to 20%
	for i := 0; i < 50; i++ {
		d := l.Delay()
		if d < 10*time.Second || d > 12*time.Second {
			t.Fatalf("delay out of bounds: %s", d)
		}
	}
}

func TestLimiter_Reset(t *testing.T) {
	l, _ := newTestLimiter(domain.RateLimitOptions{Base: 10, Burst: 2, WindowSec: 60})

	l.Allow()
	l.Allow()
	for i := 0; i < 5; i++ {
		l.OnThrottle()
	}

	l.Reset()

	if got := l.Limit(); got != 10.0 {
		t.Errorf("limit should return to base, got %v", got)
	}
	if got := l.Admitted(); got != 0 {
		t.Errorf("stamps should be cleared, got %d", got)
	}
}
