package retry

import (
	"errors"
	"testing"
	"time"

	"github.com/shaiso/Formata/internal/domain"
)

var errNetwork = errors.New("connection reset")
var errBadConfig = errors.New("selector not found")

func testClassifier(err error) Class {
	if errors.Is(err, errBadConfig) {
		return ClassTerminal
	}
	return ClassRetryable
}

// --- Policy Tests ---

func TestPolicy_StepBudgetIsRetries(t *testing.T) {
	// maxRetries=2 means up to 3 attempts total
	p := New(domain.Options{MaxRetries: 2}, testClassifier)

	tests := []struct {
		attempt int
		want    bool
	}{
		{1, true},
		{2, true},
		{3, false},
		{4, false},
	}

	for _, tt := range tests {
		if got := p.ShouldRetry(errNetwork, tt.attempt, false); got != tt.want {
			t.Errorf("attempt %d: ShouldRetry = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestPolicy_SubmissionBudgetIsAttempts(t *testing.T) {
	// Default submission budget is a single attempt: no automatic re-submit
	p := New(domain.Options{}, testClassifier)

	if p.ShouldRetry(errNetwork, 1, true) {
		t.Error("default submission budget should not allow a second attempt")
	}

	p2 := New(domain.Options{SubmissionMaxRetries: 3}, testClassifier)
	if !p2.ShouldRetry(errNetwork, 1, true) {
		t.Error("attempt 1 of 3 should retry")
	}
	if !p2.ShouldRetry(errNetwork, 2, true) {
		t.Error("attempt 2 of 3 should retry")
	}
	if p2.ShouldRetry(errNetwork, 3, true) {
		t.Error("attempt 3 of 3 should not retry")
	}
}

func TestPolicy_TerminalErrorNeverRetries(t *testing.T) {
	p := New(domain.Options{MaxRetries: 5}, testClassifier)

	if p.ShouldRetry(errBadConfig, 1, false) {
		t.Error("terminal error should not be retried")
	}
	if p.ShouldRetry(nil, 1, false) {
		t.Error("nil error should not be retried")
	}
}

func TestPolicy_BackoffGrowsExponentially(t *testing.T) {
	p := New(domain.Options{}, testClassifier)

	// jitter is up to 10%, so check bands rather than exact values
	tests := []struct {
		attempt int
		min     time.Duration
		max     time.Duration
	}{
		{1, time.Second, 1100 * time.Millisecond},
		{2, 2 * time.Second, 2200 * time.Millisecond},
		{3, 4 * time.Second, 4400 * time.Millisecond},
	}

	for _, tt := range tests {
		got := p.Backoff(tt.attempt)
		if got < tt.min || got > tt.max {
			t.Errorf("Backoff(%d) = %s, want [%s, %s]", tt.attempt, got, tt.min, tt.max)
		}
	}
}

func TestPolicy_BackoffCapped(t *testing.T) {
	p := New(domain.Options{}, testClassifier)

	got := p.Backoff(20)
	if got > 33*time.Second {
		t.Errorf("Backoff(20) = %s, should be capped near 30s", got)
	}
	if got < 30*time.Second {
		t.Errorf("Backoff(20) = %s, should reach the 30s cap", got)
	}
}

func TestPolicy_DefaultsFromOptions(t *testing.T) {
	p := New(domain.Options{}, testClassifier)

	if p.MaxRetries != domain.DefaultMaxRetries {
		t.Errorf("MaxRetries = %d, want %d", p.MaxRetries, domain.DefaultMaxRetries)
	}
	if p.SubmissionMaxAttempts != domain.DefaultSubmissionMaxRetries {
		t.Errorf("SubmissionMaxAttempts = %d, want %d", p.SubmissionMaxAttempts, domain.DefaultSubmissionMaxRetries)
	}
}
