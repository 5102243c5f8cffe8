package machine

import (
	"testing"
	"time"

	"github.com/shaiso/Formata/internal/domain"
)

// --- Transition Table Tests ---

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from domain.ApplicationState
		to   domain.ApplicationState
		want bool
	}{
		{domain.StateInitialized, domain.StateDetectingSteps, true},
		{domain.StateDetectingSteps, domain.StateFillingStep, true},
		{domain.StateDetectingSteps, domain.StateSubmitting, true},
		{domain.StateFillingStep, domain.StateValidatingStep, true},
		{domain.StateValidatingStep, domain.StateDetectingSteps, true},
		{domain.StateSubmitting, domain.StateAwaitingConfirmation, true},
		{domain.StateAwaitingConfirmation, domain.StateCompleted, true},
		{domain.StateAwaitingConfirmation, domain.StateFailed, true},
		{domain.StateErrorRecovery, domain.StateFillingStep, true},
		{domain.StateErrorRecovery, domain.StateFailed, true},

		// Skipping phases is illegal
		{domain.StateInitialized, domain.StateFillingStep, false},
		{domain.StateInitialized, domain.StateCompleted, false},
		{domain.StateFillingStep, domain.StateSubmitting, false},
		{domain.StateDetectingSteps, domain.StateCompleted, false},
		{domain.StateSubmitting, domain.StateCompleted, false},

		// Terminal states are frozen
		{domain.StateCompleted, domain.StateDetectingSteps, false},
		{domain.StateFailed, domain.StateErrorRecovery, false},
		{domain.StateCancelled, domain.StateCancelled, false},
	}

	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestCanTransition_CancellableFromAnyActiveState(t *testing.T) {
	active := []domain.ApplicationState{
		domain.StateInitialized,
		domain.StateDetectingSteps,
		domain.StateFillingStep,
		domain.StateValidatingStep,
		domain.StateSubmitting,
		domain.StateAwaitingConfirmation,
		domain.StateErrorRecovery,
	}
	for _, from := range active {
		if !CanTransition(from, domain.StateCancelled) {
			t.Errorf("%s should be cancellable", from)
		}
		if !CanTransition(from, domain.StateErrorRecovery) && from != domain.StateErrorRecovery {
			t.Errorf("%s should reach ERROR_RECOVERY", from)
		}
	}
}

func TestValidWalk(t *testing.T) {
	now := time.Now()

	valid := []domain.Transition{
		{From: domain.StateInitialized, To: domain.StateDetectingSteps, At: now},
		{From: domain.StateDetectingSteps, To: domain.StateFillingStep, At: now},
		{From: domain.StateFillingStep, To: domain.StateValidatingStep, At: now},
		{From: domain.StateValidatingStep, To: domain.StateDetectingSteps, At: now},
		{From: domain.StateDetectingSteps, To: domain.StateSubmitting, At: now},
		{From: domain.StateSubmitting, To: domain.StateAwaitingConfirmation, At: now},
		{From: domain.StateAwaitingConfirmation, To: domain.StateCompleted, At: now},
	}
	if !ValidWalk(valid) {
		t.Error("happy-path walk should be valid")
	}

	illegalEdge := []domain.Transition{
		{From: domain.StateInitialized, To: domain.StateSubmitting, At: now},
	}
	if ValidWalk(illegalEdge) {
		t.Error("walk with illegal edge should be invalid")
	}

	disconnected := []domain.Transition{
		{From: domain.StateInitialized, To: domain.StateDetectingSteps, At: now},
		{From: domain.StateFillingStep, To: domain.StateValidatingStep, At: now},
	}
	if ValidWalk(disconnected) {
		t.Error("walk with disconnected edges should be invalid")
	}

	if !ValidWalk(nil) {
		t.Error("empty walk should be valid")
	}
}
