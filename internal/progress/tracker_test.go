package progress

import (
	"testing"
	"time"

	"github.com/shaiso/Formata/internal/domain"
)

// --- Tracker Tests ---

func TestTracker_InitialSnapshot(t *testing.T) {
	tr := NewTracker(3)
	snap := tr.Snapshot()

	if snap.Phase != domain.StateInitialized {
		t.Errorf("phase = %s, want INITIALIZED", snap.Phase)
	}
	if snap.Percentage != 0 {
		t.Errorf("percentage = %v, want 0", snap.Percentage)
	}
	if snap.TotalSteps != 3 {
		t.Errorf("total steps = %d, want 3", snap.TotalSteps)
	}
	if _, ok := snap.PhaseTimestamps[string(domain.StateInitialized)]; !ok {
		t.Error("INITIALIZED entry timestamp missing")
	}
}

func TestTracker_PercentageMonotonicOverHappyPath(t *testing.T) {
	tr := NewTracker(2)

	walk := []struct {
		to   domain.ApplicationState
		step int
	}{
		{domain.StateDetectingSteps, 0},
		{domain.StateFillingStep, 0},
		{domain.StateValidatingStep, 0},
		{domain.StateDetectingSteps, 1},
		{domain.StateFillingStep, 1},
		{domain.StateValidatingStep, 1},
		{domain.StateDetectingSteps, 2},
		{domain.StateSubmitting, 2},
		{domain.StateAwaitingConfirmation, 2},
		{domain.StateCompleted, 2},
	}

	last := -1.0
	for _, w := range walk {
		tr.Observe(w.to, w.step)
		got := tr.Snapshot().Percentage
		if got < last {
			t.Fatalf("percentage regressed at %s step %d: %v < %v", w.to, w.step, got, last)
		}
		last = got
	}

	if last != 100 {
		t.Errorf("final percentage = %v, want 100", last)
	}
}

func TestTracker_StepRange(t *testing.T) {
	tr := NewTracker(4)

	tr.Observe(domain.StateFillingStep, 0)
	if got := tr.Snapshot().Percentage; got != 10 {
		t.Errorf("first step = %v, want 10", got)
	}

	tr.Observe(domain.StateFillingStep, 2)
	if got := tr.Snapshot().Percentage; got != 45 {
		t.Errorf("mid step = %v, want 45", got)
	}

	tr.Observe(domain.StateSubmitting, 4)
	if got := tr.Snapshot().Percentage; got != 90 {
		t.Errorf("submitting = %v, want 90", got)
	}
}

func TestTracker_UnknownTotalSteps(t *testing.T) {
	tr := NewTracker(0)

	tr.Observe(domain.StateFillingStep, 1)
	if got := tr.Snapshot().Percentage; got != 10 {
		t.Errorf("unknown total should pin step range at 10, got %v", got)
	}

	tr.SetTotalSteps(2)
	if got := tr.Snapshot().Percentage; got != 45 {
		t.Errorf("after SetTotalSteps = %v, want 45", got)
	}
}

func TestTracker_PhaseTimestampKeepsFirstEntry(t *testing.T) {
	tr := NewTracker(2)

	tr.Observe(domain.StateDetectingSteps, 0)
	first := tr.Snapshot().PhaseTimestamps[string(domain.StateDetectingSteps)]

	time.Sleep(5 * time.Millisecond)
	tr.Observe(domain.StateFillingStep, 0)
	tr.Observe(domain.StateValidatingStep, 0)
	tr.Observe(domain.StateDetectingSteps, 1)

	again := tr.Snapshot().PhaseTimestamps[string(domain.StateDetectingSteps)]
	if !again.Equal(first) {
		t.Error("re-entering a phase should keep the first-entry timestamp")
	}
}

func TestFromHistory(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	history := []domain.Transition{
		{From: domain.StateInitialized, To: domain.StateDetectingSteps, At: base},
		{From: domain.StateDetectingSteps, To: domain.StateFillingStep, At: base.Add(time.Second)},
		{From: domain.StateFillingStep, To: domain.StateValidatingStep, At: base.Add(2 * time.Second)},
	}

	snap := FromHistory(history, 0, 2)

	if snap.Phase != domain.StateValidatingStep {
		t.Errorf("phase = %s, want VALIDATING_STEP", snap.Phase)
	}
	if snap.Percentage != 10 {
		t.Errorf("percentage = %v, want 10", snap.Percentage)
	}
	if got := snap.PhaseTimestamps[string(domain.StateInitialized)]; !got.Equal(base) {
		t.Errorf("INITIALIZED timestamp = %v, want %v", got, base)
	}
}

func TestFromHistory_Empty(t *testing.T) {
	snap := FromHistory(nil, 0, 0)

	if snap.Phase != domain.StateInitialized {
		t.Errorf("phase = %s, want INITIALIZED", snap.Phase)
	}
	if snap.Percentage != 0 {
		t.Errorf("percentage = %v, want 0", snap.Percentage)
	}
}
