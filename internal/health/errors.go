package health

import (
	"fmt"
	"time"
)

// Reason — причина отказа в допуске запроса.
type Reason string

// Причины отказа.
const (
	// ReasonCircuitOpen — breaker разомкнут для цели.
	ReasonCircuitOpen Reason = "circuit_open"

	// ReasonWindowExceeded — длинное окно исчерпано.
	ReasonWindowExceeded Reason = "window_exceeded"

	// ReasonBurstExceeded — burst-окно исчерпано.
	ReasonBurstExceeded Reason = "burst_exceeded"
)

// CircuitOpenError — запрос отклонён: breaker разомкнут.
//
// Не retry'ится ядром — поднимается наверх, чтобы caller мог
// перепланировать задачу целиком.
type CircuitOpenError struct {
	// Target — цель, для которой разомкнут breaker.
	Target string

	// RetryAfter — сколько осталось до возможного HALF_OPEN.
	RetryAfter time.Duration
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit open for %s (retry after %s)", e.Target, e.RetryAfter.Round(time.Second))
}

// RateLimitedError — запрос отклонён rate limiter'ом.
type RateLimitedError struct {
	// Target — цель, по которой сработал лимит.
	Target string

	// Reason — какое именно окно исчерпано.
	Reason Reason

	// RetryAfter — через сколько допуск вероятно возможен.
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited for %s: %s (retry after %s)", e.Target, e.Reason, e.RetryAfter.Round(time.Millisecond))
}
