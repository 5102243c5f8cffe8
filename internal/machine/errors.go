package machine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shaiso/Formata/internal/domain"
	"github.com/shaiso/Formata/internal/health"
	"github.com/shaiso/Formata/internal/retry"
)

// Причины терминальных состояний.
const (
	// ReasonConfirmationTimeout — подтверждение не пришло в срок.
	ReasonConfirmationTimeout = "confirmation_timeout"

	// ReasonCancelled — отмена по запросу пользователя.
	ReasonCancelled = "cancelled"

	// ReasonRetriesExhausted — бюджет retry исчерпан.
	ReasonRetriesExhausted = "retries_exhausted"
)

// ErrorKind — классификация ошибки шага.
type ErrorKind string

const (
	// KindTransient — временная ошибка: сеть, таймаут, нестабильный элемент.
	KindTransient ErrorKind = "transient"

	// KindStructural — структурная ошибка: конфигурация, валидация,
	// недопустимый повтор. Не retry'ится.
	KindStructural ErrorKind = "structural"
)

// InvalidTransitionError — попытка нелегального перехода состояний.
//
// Нарушение контракта программой, а не среды: никогда не retry'ится
// и не глотается, задача остаётся в прежнем состоянии без мутаций.
type InvalidTransitionError struct {
	From domain.ApplicationState
	To   domain.ApplicationState
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition %s -> %s", e.From, e.To)
}

// StepExecutionError — ошибка выполнения шага, пришедшая от executor'а.
type StepExecutionError struct {
	// Step — индекс шага.
	Step int

	// Action — тип действия, на котором произошла ошибка.
	Action ActionKind

	// Kind — классификация (transient/structural).
	Kind ErrorKind

	// Message — диагностика.
	Message string
}

func (e *StepExecutionError) Error() string {
	return fmt.Sprintf("step %d (%s): %s", e.Step, e.Action, e.Message)
}

// ConfirmationTimeoutError — сигнал подтверждения не пришёл в срок.
// Терминальная ошибка: задача уходит в FAILED, никогда — молча в COMPLETED.
type ConfirmationTimeoutError struct {
	Timeout time.Duration
}

func (e *ConfirmationTimeoutError) Error() string {
	return fmt.Sprintf("no confirmation signal within %s", e.Timeout)
}

// DefaultClassifier — классификатор по умолчанию для retry.Policy.
//
// Ошибки здоровья цели (breaker, limiter) терминальны для ядра:
// их перепланирует caller на своём уровне. Структурные ошибки шагов
// терминальны, временные — retryable.
func DefaultClassifier(err error) retry.Class {
	var step *StepExecutionError
	if errors.As(err, &step) {
		if step.Kind == KindStructural {
			return retry.ClassTerminal
		}
		return retry.ClassRetryable
	}

	var open *health.CircuitOpenError
	if errors.As(err, &open) {
		return retry.ClassTerminal
	}

	var limited *health.RateLimitedError
	if errors.As(err, &limited) {
		return retry.ClassTerminal
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return retry.ClassTerminal
	}

	return retry.ClassRetryable
}
