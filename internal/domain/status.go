package domain

// ApplicationState — состояние выполнения application.
//
// Жизненный цикл:
//
//	INITIALIZED → DETECTING_STEPS → FILLING_STEP → VALIDATING_STEP
//	                    ↑                               │
//	                    └───── (ещё есть шаги) ─────────┘
//	DETECTING_STEPS → SUBMITTING → AWAITING_CONFIRMATION → COMPLETED
//	                                                     ↘ FAILED
//
// Из любого нетерминального состояния возможен переход в ERROR_RECOVERY
// (восстановление после ошибки шага) и в CANCELLED (отмена пользователем).
// ERROR_RECOVERY возвращает задачу в прерванное состояние или завершает
// её как FAILED.
type ApplicationState string

const (
	// StateInitialized — application создан, но ещё не начал выполняться.
	StateInitialized ApplicationState = "INITIALIZED"

	// StateDetectingSteps — определение, остались ли шаги в workflow.
	StateDetectingSteps ApplicationState = "DETECTING_STEPS"

	// StateFillingStep — заполнение полей текущего шага.
	StateFillingStep ApplicationState = "FILLING_STEP"

	// StateValidatingStep — проверка результатов заполнения шага.
	StateValidatingStep ApplicationState = "VALIDATING_STEP"

	// StateSubmitting — финальная отправка формы. Самый рискованный переход:
	// повторные попытки ограничены отдельным, меньшим бюджетом.
	StateSubmitting ApplicationState = "SUBMITTING"

	// StateAwaitingConfirmation — ожидание сигнала подтверждения от цели.
	StateAwaitingConfirmation ApplicationState = "AWAITING_CONFIRMATION"

	// StateErrorRecovery — восстановление после ошибки шага (backoff + retry).
	StateErrorRecovery ApplicationState = "ERROR_RECOVERY"

	// StateCompleted — application успешно завершён.
	StateCompleted ApplicationState = "COMPLETED"

	// StateFailed — application завершился с ошибкой.
	StateFailed ApplicationState = "FAILED"

	// StateCancelled — application отменён пользователем.
	StateCancelled ApplicationState = "CANCELLED"
)

// IsTerminal возвращает true, если состояние финальное.
// Терминальные состояния неизменяемы — переходы из них не допускаются.
func (s ApplicationState) IsTerminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}
