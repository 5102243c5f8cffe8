package machine

import "github.com/shaiso/Formata/internal/domain"

// transitions — закрытая таблица легальных переходов.
//
// Любое ребро вне таблицы — нарушение контракта (InvalidTransitionError).
// ERROR_RECOVERY достижим из любого нетерминального состояния и либо
// возвращает задачу в прерванное состояние, либо завершает её как FAILED.
// CANCELLED достижим из любого нетерминального состояния; из терминальных
// состояний переходов нет.
var transitions = map[domain.ApplicationState][]domain.ApplicationState{
	domain.StateInitialized: {
		domain.StateDetectingSteps,
		domain.StateErrorRecovery,
		domain.StateCancelled,
	},
	domain.StateDetectingSteps: {
		domain.StateFillingStep,
		domain.StateSubmitting,
		domain.StateErrorRecovery,
		domain.StateCancelled,
	},
	domain.StateFillingStep: {
		domain.StateValidatingStep,
		domain.StateErrorRecovery,
		domain.StateCancelled,
	},
	domain.StateValidatingStep: {
		domain.StateDetectingSteps,
		domain.StateErrorRecovery,
		domain.StateCancelled,
	},
	domain.StateSubmitting: {
		domain.StateAwaitingConfirmation,
		domain.StateErrorRecovery,
		domain.StateCancelled,
	},
	domain.StateAwaitingConfirmation: {
		domain.StateCompleted,
		domain.StateFailed,
		domain.StateErrorRecovery,
		domain.StateCancelled,
	},
	domain.StateErrorRecovery: {
		domain.StateDetectingSteps,
		domain.StateFillingStep,
		domain.StateSubmitting,
		domain.StateFailed,
		domain.StateCancelled,
	},
	// Терминальные состояния неизменяемы
	domain.StateCompleted: {},
	domain.StateFailed:    {},
	domain.StateCancelled: {},
}

// CanTransition проверяет легальность перехода from → to.
func CanTransition(from, to domain.ApplicationState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidWalk проверяет, что история переходов — корректный путь по таблице:
// рёбра легальны и стыкуются между собой.
func ValidWalk(history []domain.Transition) bool {
	for i, tr := range history {
		if !CanTransition(tr.From, tr.To) {
			return false
		}
		if i > 0 && history[i-1].To != tr.From {
			return false
		}
	}
	return true
}
