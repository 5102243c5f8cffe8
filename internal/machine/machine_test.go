package machine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Formata/internal/domain"
	"github.com/shaiso/Formata/internal/health"
	"github.com/shaiso/Formata/internal/retry"
)

// scriptedExecutor counts calls per action kind and delegates to handle.
type scriptedExecutor struct {
	mu     sync.Mutex
	calls  map[ActionKind]int
	handle func(kind ActionKind, call int, a Action) (*ActionResult, error)
}

func newScripted(handle func(kind ActionKind, call int, a Action) (*ActionResult, error)) *scriptedExecutor {
	return &scriptedExecutor{calls: make(map[ActionKind]int), handle: handle}
}

func (e *scriptedExecutor) Execute(_ context.Context, a Action) (*ActionResult, error) {
	e.mu.Lock()
	e.calls[a.Kind]++
	call := e.calls[a.Kind]
	e.mu.Unlock()
	return e.handle(a.Kind, call, a)
}

func (e *scriptedExecutor) count(kind ActionKind) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[kind]
}

func (e *scriptedExecutor) total() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, c := range e.calls {
		n += c
	}
	return n
}

// fastOptions keeps pacing out of the way of the tests.
func fastOptions() domain.Options {
	return domain.Options{
		RateLimit: domain.RateLimitOptions{Base: 100_000, Burst: 100_000, WindowSec: 1},
		Breaker:   domain.BreakerOptions{Threshold: 5, ResetTimeoutMs: 60_000},
	}
}

func fastPolicy(maxRetries, submissionMaxAttempts int) *retry.Policy {
	return &retry.Policy{
		MaxRetries:            maxRetries,
		SubmissionMaxAttempts: submissionMaxAttempts,
		InitialDelay:          time.Millisecond,
		MaxDelay:              5 * time.Millisecond,
		GrowthFactor:          2,
		Classify:              DefaultClassifier,
	}
}

func testApplication(steps int, opts domain.Options) *domain.Application {
	cfg := domain.TargetConfig{Platform: "greenhouse", ConfirmationTimeoutSec: 5}
	for i := 0; i < steps; i++ {
		cfg.Steps = append(cfg.Steps, domain.StepMapping{
			Name: fmt.Sprintf("step-%d", i),
			Fields: []domain.FieldMapping{
				{Kind: "fill", SelectorHint: fmt.Sprintf("#field-%d", i), Value: "value", Required: true},
			},
		})
	}
	return &domain.Application{
		ID:        uuid.New(),
		Platform:  "greenhouse",
		JobRef:    "job-123",
		ProfileID: uuid.New(),
		State:     domain.StateInitialized,
		Config:    cfg,
		Options:   opts,
		CreatedAt: time.Now(),
	}
}

func newTestMachine(app *domain.Application, ex Executor, p *retry.Policy) (*Machine, *health.Registry) {
	reg := health.NewRegistry(app.Options, nil)
	m := New(app, Config{
		Registry:            reg,
		Retry:               p,
		Executor:            ex,
		ConfirmPollInterval: 5 * time.Millisecond,
		Logger:              slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return m, reg
}

// inspectAware answers inspect from the live application state and
// everything else from the supplied handler.
func inspectAware(app *domain.Application, rest func(kind ActionKind, call int, a Action) (*ActionResult, error)) *scriptedExecutor {
	return newScripted(func(kind ActionKind, call int, a Action) (*ActionResult, error) {
		if kind == ActionInspect {
			return &ActionResult{Success: true, MoreSteps: app.StepIndex < len(app.Config.Steps)}, nil
		}
		return rest(kind, call, a)
	})
}

func allSucceed(kind ActionKind, call int, a Action) (*ActionResult, error) {
	return &ActionResult{Success: true}, nil
}

// --- Machine Tests ---

func TestMachine_HappyPath(t *testing.T) {
	app := testApplication(2, fastOptions())
	ex := inspectAware(app, allSucceed)
	m, _ := newTestMachine(app, ex, fastPolicy(2, 1))

	res, err := m.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.State != domain.StateCompleted {
		t.Errorf("state = %s, want COMPLETED", res.State)
	}
	if res.Outcome != "confirmed" {
		t.Errorf("outcome = %q, want confirmed", res.Outcome)
	}
	if !ValidWalk(res.History) {
		t.Errorf("history is not a valid walk: %+v", res.History)
	}
	if len(res.ErrorLog) != 0 {
		t.Errorf("error log should be empty, got %+v", res.ErrorLog)
	}
	if app.StepIndex != 2 {
		t.Errorf("step index = %d, want 2", app.StepIndex)
	}
	if got := ex.count(ActionFill); got != 2 {
		t.Errorf("fill calls = %d, want 2", got)
	}
	if got := ex.count(ActionSubmit); got != 1 {
		t.Errorf("submit calls = %d, want 1", got)
	}
	if snap := m.Progress(); snap.Percentage != 100 {
		t.Errorf("final progress = %v, want 100", snap.Percentage)
	}
	if app.FinishedAt == nil {
		t.Error("FinishedAt should be set")
	}
}

func TestMachine_RetriesExhaustedFails(t *testing.T) {
	// maxRetries=2 gives exactly three filling attempts
	app := testApplication(1, fastOptions())
	ex := inspectAware(app, func(kind ActionKind, call int, a Action) (*ActionResult, error) {
		if kind == ActionFill {
			return &ActionResult{Success: false, Error: "element not interactable"}, nil
		}
		return &ActionResult{Success: true}, nil
	})
	m, _ := newTestMachine(app, ex, fastPolicy(2, 1))

	res, err := m.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.State != domain.StateFailed {
		t.Errorf("state = %s, want FAILED", res.State)
	}
	if !strings.Contains(res.Outcome, ReasonRetriesExhausted) {
		t.Errorf("outcome = %q, want retries_exhausted reason", res.Outcome)
	}
	if got := ex.count(ActionFill); got != 3 {
		t.Errorf("fill attempts = %d, want 3", got)
	}
	if got := ex.count(ActionSubmit); got != 0 {
		t.Errorf("submit should never run, got %d calls", got)
	}
	last := app.LastError()
	if last == nil || !strings.Contains(last.Message, "element not interactable") {
		t.Errorf("last error should carry the step failure, got %+v", last)
	}
	if !ValidWalk(res.History) {
		t.Errorf("history is not a valid walk: %+v", res.History)
	}
}

func TestMachine_RetriedStepSucceeds(t *testing.T) {
	app := testApplication(1, fastOptions())
	ex := inspectAware(app, func(kind ActionKind, call int, a Action) (*ActionResult, error) {
		if kind == ActionFill && call == 1 {
			return &ActionResult{Success: false, Error: "stale element"}, nil
		}
		return &ActionResult{Success: true}, nil
	})
	m, _ := newTestMachine(app, ex, fastPolicy(2, 1))

	res, err := m.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.State != domain.StateCompleted {
		t.Errorf("state = %s, want COMPLETED", res.State)
	}
	if got := ex.count(ActionFill); got != 2 {
		t.Errorf("fill attempts = %d, want 2", got)
	}

	// The survived failure stays in the log, marked recovered
	if len(res.ErrorLog) == 0 {
		t.Fatal("error log should keep the recovered failure")
	}
	for _, entry := range res.ErrorLog {
		if !entry.Recovered {
			t.Errorf("entry should be marked recovered: %+v", entry)
		}
	}
}

func TestMachine_OpenBreakerFailsFastWithoutExecutor(t *testing.T) {
	opts := fastOptions()
	opts.Breaker.Threshold = 2
	app := testApplication(1, opts)
	ex := inspectAware(app, allSucceed)
	m, reg := newTestMachine(app, ex, fastPolicy(2, 1))

	reg.RecordFailure("greenhouse")
	reg.RecordFailure("greenhouse")
	if reg.BreakerState("greenhouse") != health.BreakerOpen {
		t.Fatal("breaker should be open before the run")
	}

	res, err := m.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.State != domain.StateFailed {
		t.Errorf("state = %s, want FAILED", res.State)
	}
	if !strings.Contains(res.Outcome, string(health.ReasonCircuitOpen)) {
		t.Errorf("outcome = %q, want circuit_open reason", res.Outcome)
	}
	if got := ex.total(); got != 0 {
		t.Errorf("executor should never be invoked through an open breaker, got %d calls", got)
	}
}

func TestMachine_ThrottleSignalShrinksLimit(t *testing.T) {
	app := testApplication(1, fastOptions())
	ex := inspectAware(app, func(kind ActionKind, call int, a Action) (*ActionResult, error) {
		if kind == ActionFill {
			return &ActionResult{Success: false, Signal: SignalThrottled, Error: "429 too many requests"}, nil
		}
		return &ActionResult{Success: true}, nil
	})
	m, reg := newTestMachine(app, ex, fastPolicy(0, 1))

	res, err := m.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.State != domain.StateFailed {
		t.Errorf("state = %s, want FAILED", res.State)
	}
	base := float64(app.Options.RateLimit.Base)
	if got := reg.Health("greenhouse").Limiter().Limit(); got >= base {
		t.Errorf("throttle signal should leave the limit below base: %v >= %v", got, base)
	}
}

func TestMachine_ConfirmationTimeoutFails(t *testing.T) {
	app := testApplication(1, fastOptions())
	app.Config.ConfirmationTimeoutSec = 1
	ex := inspectAware(app, func(kind ActionKind, call int, a Action) (*ActionResult, error) {
		if kind == ActionConfirm {
			return &ActionResult{Success: false}, nil
		}
		return &ActionResult{Success: true}, nil
	})
	m, _ := newTestMachine(app, ex, fastPolicy(2, 1))

	start := time.Now()
	res, err := m.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.State != domain.StateFailed {
		t.Errorf("state = %s, want FAILED", res.State)
	}
	if res.Outcome != ReasonConfirmationTimeout {
		t.Errorf("outcome = %q, want %q", res.Outcome, ReasonConfirmationTimeout)
	}
	if elapsed := time.Since(start); elapsed < time.Second {
		t.Errorf("machine gave up before the confirmation timeout: %s", elapsed)
	}
	if ex.count(ActionConfirm) < 2 {
		t.Errorf("confirmation should be polled, got %d calls", ex.count(ActionConfirm))
	}
	last := app.LastError()
	if last == nil || !strings.Contains(last.Message, "no confirmation signal") {
		t.Errorf("timeout should be recorded in the error log, got %+v", last)
	}
}

func TestMachine_CancelDuringAwaitConfirmation(t *testing.T) {
	app := testApplication(1, fastOptions())
	app.Config.ConfirmationTimeoutSec = 60
	ex := inspectAware(app, func(kind ActionKind, call int, a Action) (*ActionResult, error) {
		if kind == ActionConfirm {
			return &ActionResult{Success: false}, nil
		}
		return &ActionResult{Success: true}, nil
	})
	m, _ := newTestMachine(app, ex, fastPolicy(2, 1))

	done := make(chan *Result, 1)
	go func() {
		res, err := m.Run(context.Background())
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		done <- res
	}()

	// Wait until the machine reaches confirmation polling
	deadline := time.Now().Add(2 * time.Second)
	for ex.count(ActionConfirm) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("machine never reached confirmation polling")
		}
		time.Sleep(time.Millisecond)
	}

	if !m.Cancel() {
		t.Error("Cancel on a running machine should return true")
	}
	if !m.Cancel() {
		t.Error("repeated Cancel before the terminal state should return true")
	}

	var res *Result
	select {
	case res = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("machine did not stop after cancel")
	}

	if res.State != domain.StateCancelled {
		t.Errorf("state = %s, want CANCELLED", res.State)
	}
	if res.Outcome != ReasonCancelled {
		t.Errorf("outcome = %q, want %q", res.Outcome, ReasonCancelled)
	}
	if !ValidWalk(res.History) {
		t.Errorf("history is not a valid walk: %+v", res.History)
	}
	if m.Cancel() {
		t.Error("Cancel on a finished machine should return false")
	}
	if app.FinishedAt == nil {
		t.Error("FinishedAt should be set on cancellation")
	}
}

func TestMachine_CancelDuringBackoffSkipsRetry(t *testing.T) {
	app := testApplication(1, fastOptions())
	ex := inspectAware(app, func(kind ActionKind, call int, a Action) (*ActionResult, error) {
		if kind == ActionFill {
			return &ActionResult{Success: false, Error: "flaky"}, nil
		}
		return &ActionResult{Success: true}, nil
	})
	p := fastPolicy(3, 1)
	// Long enough to cancel inside the backoff; keep MaxDelay above it
	// so the pause is not clamped back down.
	p.InitialDelay = 300 * time.Millisecond
	p.MaxDelay = time.Second
	m, _ := newTestMachine(app, ex, p)

	done := make(chan *Result, 1)
	go func() {
		res, err := m.Run(context.Background())
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		done <- res
	}()

	deadline := time.Now().Add(2 * time.Second)
	for ex.count(ActionFill) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("machine never attempted the fill")
		}
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond) // let it enter the backoff pause
	m.Cancel()

	var res *Result
	select {
	case res = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("machine did not stop after cancel")
	}

	if res.State != domain.StateCancelled {
		t.Errorf("state = %s, want CANCELLED (cancellation outranks pending retries)", res.State)
	}
	if got := ex.count(ActionFill); got != 1 {
		t.Errorf("fill attempts = %d, want 1 (no retry after cancel)", got)
	}
}

func TestMachine_ContextCancellation(t *testing.T) {
	app := testApplication(1, fastOptions())
	app.Config.ConfirmationTimeoutSec = 60
	ex := inspectAware(app, func(kind ActionKind, call int, a Action) (*ActionResult, error) {
		if kind == ActionConfirm {
			return &ActionResult{Success: false}, nil
		}
		return &ActionResult{Success: true}, nil
	})
	m, _ := newTestMachine(app, ex, fastPolicy(2, 1))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan *Result, 1)
	go func() {
		res, err := m.Run(ctx)
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		done <- res
	}()

	deadline := time.Now().Add(2 * time.Second)
	for ex.count(ActionConfirm) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("machine never reached confirmation polling")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case res := <-done:
		if res.State != domain.StateCancelled {
			t.Errorf("state = %s, want CANCELLED", res.State)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("machine did not stop after context cancellation")
	}
}

func TestMachine_CancelRacesCompletion(t *testing.T) {
	// Cancel is called from another goroutine while Run drives the
	// walk to its terminal state; both sides must stay synchronized.
	app := testApplication(2, fastOptions())
	ex := inspectAware(app, allSucceed)
	m, _ := newTestMachine(app, ex, fastPolicy(2, 1))

	done := make(chan *Result, 1)
	go func() {
		res, err := m.Run(context.Background())
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		done <- res
	}()

	deadline := time.Now().Add(2 * time.Second)
	for m.Cancel() {
		if time.Now().After(deadline) {
			t.Fatal("Cancel kept returning true after the machine should have finished")
		}
	}

	var res *Result
	select {
	case res = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("machine did not finish")
	}

	// Depending on timing the cancel may land before or after completion
	if res.State != domain.StateCancelled && res.State != domain.StateCompleted {
		t.Errorf("state = %s, want CANCELLED or COMPLETED", res.State)
	}
	if !ValidWalk(res.History) {
		t.Errorf("history is not a valid walk: %+v", res.History)
	}
	if m.Cancel() {
		t.Error("Cancel on a finished machine should return false")
	}
}

func TestMachine_ConfirmationDeadlineBoundsAdmissionWait(t *testing.T) {
	// A saturated burst window makes the limiter quote a retry-after far
	// beyond the confirmation timeout; the deadline must cut it short.
	app := testApplication(0, domain.Options{
		RateLimit: domain.RateLimitOptions{Base: 100_000, Burst: 2, WindowSec: 60},
		Breaker:   domain.BreakerOptions{Threshold: 100, ResetTimeoutMs: 60_000},
	})
	app.Config.ConfirmationTimeoutSec = 1
	ex := inspectAware(app, allSucceed)
	m, _ := newTestMachine(app, ex, fastPolicy(2, 1))

	start := time.Now()
	res, err := m.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	elapsed := time.Since(start)

	if res.State != domain.StateFailed {
		t.Errorf("state = %s, want FAILED", res.State)
	}
	if res.Outcome != ReasonConfirmationTimeout {
		t.Errorf("outcome = %q, want %q", res.Outcome, ReasonConfirmationTimeout)
	}
	if elapsed < time.Second {
		t.Errorf("machine gave up before the confirmation timeout: %s", elapsed)
	}
	if elapsed >= 2*time.Second {
		t.Errorf("confirmation phase overshot its timeout: %s", elapsed)
	}
	// Inspect and submit exhausted the burst budget, so no confirm
	// attempt should have reached the executor
	if got := ex.count(ActionConfirm); got != 0 {
		t.Errorf("confirm calls = %d, want 0", got)
	}
}

func TestMachine_CancelMidFillLeavesTargetClean(t *testing.T) {
	// An interrupted fill is not a field failure: nothing in the error
	// log, nothing fed to the breaker.
	app := testApplication(1, domain.Options{
		RateLimit: domain.RateLimitOptions{Base: 100_000, Burst: 100_000, WindowSec: 1},
		Breaker:   domain.BreakerOptions{Threshold: 1, ResetTimeoutMs: 60_000},
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ex := inspectAware(app, func(kind ActionKind, call int, a Action) (*ActionResult, error) {
		if kind == ActionFill {
			cancel()
			return nil, context.Canceled
		}
		return &ActionResult{Success: true}, nil
	})
	m, reg := newTestMachine(app, ex, fastPolicy(2, 1))

	res, err := m.Run(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.State != domain.StateCancelled {
		t.Errorf("state = %s, want CANCELLED", res.State)
	}
	if len(res.ErrorLog) != 0 {
		t.Errorf("error log should be empty, got %+v", res.ErrorLog)
	}
	if got := reg.BreakerState("greenhouse"); got != health.BreakerClosed {
		t.Errorf("breaker state = %s, want CLOSED (single-failure threshold)", got)
	}
}

func TestMachine_MissingStepMappingIsStructural(t *testing.T) {
	// Target keeps revealing steps the config has no mapping for
	app := testApplication(0, fastOptions())
	ex := newScripted(func(kind ActionKind, call int, a Action) (*ActionResult, error) {
		if kind == ActionInspect {
			return &ActionResult{Success: true, MoreSteps: true}, nil
		}
		return &ActionResult{Success: true}, nil
	})
	m, _ := newTestMachine(app, ex, fastPolicy(5, 1))

	res, err := m.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.State != domain.StateFailed {
		t.Errorf("state = %s, want FAILED", res.State)
	}
	// Structural errors must not burn the retry budget
	if got := ex.count(ActionInspect); got != 1 {
		t.Errorf("inspect calls = %d, want 1 (no retries for structural errors)", got)
	}
	if got := ex.count(ActionFill); got != 0 {
		t.Errorf("fill should never run, got %d calls", got)
	}
}

func TestMachine_SubmissionNotRetriedByDefault(t *testing.T) {
	app := testApplication(1, fastOptions())
	ex := inspectAware(app, func(kind ActionKind, call int, a Action) (*ActionResult, error) {
		if kind == ActionSubmit {
			return &ActionResult{Success: false, Error: "gateway timeout"}, nil
		}
		return &ActionResult{Success: true}, nil
	})
	m, _ := newTestMachine(app, ex, fastPolicy(3, 1))

	res, err := m.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.State != domain.StateFailed {
		t.Errorf("state = %s, want FAILED", res.State)
	}
	if got := ex.count(ActionSubmit); got != 1 {
		t.Errorf("submit attempts = %d, want 1 (submission is not retried by default)", got)
	}
}

func TestMachine_SubmissionRetriedWhenBudgetAllows(t *testing.T) {
	app := testApplication(1, fastOptions())
	ex := inspectAware(app, func(kind ActionKind, call int, a Action) (*ActionResult, error) {
		if kind == ActionSubmit && call == 1 {
			return &ActionResult{Success: false, Error: "gateway timeout"}, nil
		}
		return &ActionResult{Success: true}, nil
	})
	m, _ := newTestMachine(app, ex, fastPolicy(3, 2))

	res, err := m.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.State != domain.StateCompleted {
		t.Errorf("state = %s, want COMPLETED", res.State)
	}
	if got := ex.count(ActionSubmit); got != 2 {
		t.Errorf("submit attempts = %d, want 2", got)
	}
}

func TestMachine_OptionalFieldFailureStillCompletes(t *testing.T) {
	app := testApplication(1, fastOptions())
	app.Config.Steps[0].Fields = []domain.FieldMapping{
		{Kind: "fill", SelectorHint: "#name", Value: "Jane", Required: true},
		{Kind: "fill", SelectorHint: "#portfolio", Value: "https://example.com", Required: false},
	}
	ex := inspectAware(app, func(kind ActionKind, call int, a Action) (*ActionResult, error) {
		if kind == ActionFill && a.SelectorHint == "#portfolio" {
			return &ActionResult{Success: false, Error: "element not found"}, nil
		}
		return &ActionResult{Success: true}, nil
	})
	m, _ := newTestMachine(app, ex, fastPolicy(2, 1))

	res, err := m.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.State != domain.StateCompleted {
		t.Errorf("state = %s, want COMPLETED", res.State)
	}
	if len(res.ErrorLog) != 1 {
		t.Fatalf("expected one logged field failure, got %+v", res.ErrorLog)
	}
	if !res.ErrorLog[0].Recovered {
		t.Error("optional field failure should be marked recovered")
	}
}

func TestMachine_RunRequiresInitializedState(t *testing.T) {
	app := testApplication(1, fastOptions())
	app.State = domain.StateCompleted
	m, _ := newTestMachine(app, newScripted(allSucceed), fastPolicy(2, 1))

	_, err := m.Run(context.Background())
	var invalid *InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
	if app.State != domain.StateCompleted {
		t.Errorf("illegal start must not mutate the application, state = %s", app.State)
	}
}
