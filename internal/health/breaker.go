package health

import (
	"sync"
	"time"

	"github.com/shaiso/Formata/internal/domain"
)

// BreakerState — состояние circuit breaker'а.
type BreakerState string

const (
	// BreakerClosed — запросы проходят, ошибки считаются.
	BreakerClosed BreakerState = "CLOSED"

	// BreakerOpen — все запросы отклоняются до истечения resetTimeout.
	BreakerOpen BreakerState = "OPEN"

	// BreakerHalfOpen — разрешён ровно один пробный запрос.
	BreakerHalfOpen BreakerState = "HALF_OPEN"
)

// Breaker — классический трёхсостоянный circuit breaker, один на цель.
//
// CLOSED: каждая ошибка увеличивает счётчик; по достижении порога —
// размыкание (OPEN) с фиксацией времени.
// OPEN: все запросы отклоняются с CircuitOpenError, пока не истечёт
// resetTimeout; следующая проверка после этого переводит в HALF_OPEN.
// HALF_OPEN: проходит ровно один пробный запрос; успех сбрасывает счётчик
// и замыкает breaker, ошибка немедленно размыкает заново (таймаут идёт
// с начала).
type Breaker struct {
	threshold    int
	resetTimeout time.Duration

	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time
	probing  bool // пробный запрос HALF_OPEN уже выдан

	now func() time.Time
}

// NewBreaker создаёт breaker. Нулевые параметры заменяются значениями
// по умолчанию (порог 5, таймаут 5 минут).
func NewBreaker(threshold int, resetTimeout time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = domain.DefaultBreakerThreshold
	}
	if resetTimeout <= 0 {
		resetTimeout = time.Duration(domain.DefaultBreakerResetTimeoutMs) * time.Millisecond
	}
	return &Breaker{
		threshold:    threshold,
		resetTimeout: resetTimeout,
		state:        BreakerClosed,
		now:          time.Now,
	}
}

// Allow проверяет здоровье цели перед запросом.
//
// Возвращает nil, если запрос можно выполнять, или *CircuitOpenError.
// В состоянии OPEN по истечении resetTimeout сама проверка переводит
// breaker в HALF_OPEN и пропускает единственный пробный запрос.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return nil

	case BreakerOpen:
		elapsed := b.now().Sub(b.openedAt)
		if elapsed < b.resetTimeout {
			return &CircuitOpenError{RetryAfter: b.resetTimeout - elapsed}
		}
		// Таймаут истёк — пропускаем один пробный запрос
		b.state = BreakerHalfOpen
		b.probing = true
		return nil

	case BreakerHalfOpen:
		if b.probing {
			return &CircuitOpenError{RetryAfter: b.resetTimeout}
		}
		b.probing = true
		return nil
	}

	return nil
}

// RecordSuccess фиксирует успешный запрос.
// В HALF_OPEN замыкает breaker; в CLOSED сбрасывает счётчик
// последовательных ошибок.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	if b.state == BreakerHalfOpen {
		b.state = BreakerClosed
		b.probing = false
	}
}

// RecordFailure фиксирует ошибку запроса.
// Возвращает true, если именно эта ошибка разомкнула breaker.
func (b *Breaker) RecordFailure() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerHalfOpen:
		// Пробный запрос провалился — размыкаемся заново, таймаут с начала
		b.state = BreakerOpen
		b.openedAt = b.now()
		b.probing = false
		return true

	case BreakerClosed:
		b.failures++
		if b.failures >= b.threshold {
			b.state = BreakerOpen
			b.openedAt = b.now()
			return true
		}
	}

	return false
}

// State возвращает текущее состояние breaker'а.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset замыкает breaker и обнуляет счётчики (операторский сброс).
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = BreakerClosed
	b.failures = 0
	b.probing = false
}
