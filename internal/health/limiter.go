package health

import (
	"math/rand"
	"sync"
	"time"

	"github.com/shaiso/Formata/internal/domain"
)

// Параметры адаптации лимита.
//
// Асимметрия намеренная: лимит падает быстрее, чем растёт, —
// смещение в сторону осторожности. Конкретные множители — подстроечные
// константы исходной системы, инвариантом является только направление.
const (
	// limitUpFactor — рост лимита на каждый внешний успех (+10%).
	limitUpFactor = 1.10

	// limitDownFactor — падение лимита на throttle-сигнал (−20%).
	limitDownFactor = 0.80

	// limitCeilingFactor — жёсткий потолок: во сколько раз лимит может
	// превысить базовый.
	limitCeilingFactor = 2.0

	// minLimit — пол лимита: 1 запрос на окно.
	minLimit = 1.0

	// burstWindow — короткое окно с собственным, меньшим допуском.
	burstWindow = 10 * time.Second

	// rejectStreakForNudge — сколько последовательных отказов в допуске
	// считаются сигналом перегруза и тоже роняют лимит.
	rejectStreakForNudge = 3

	// delayJitterFrac — доля jitter'а в вычисляемой паузе между действиями.
	delayJitterFrac = 0.20
)

// Limiter — адаптивный rate limiter одной цели.
//
// Учёт двухоконный: скользящее длинное окно с адаптивным лимитом плюс
// burst-окно (последние 10 секунд) с собственным меньшим допуском —
// burst пресекается даже при формально не исчерпанном длинном окне.
type Limiter struct {
	window time.Duration
	base   float64
	burst  int

	mu           sync.Mutex
	limit        float64
	stamps       []time.Time
	rejectStreak int

	now func() time.Time
}

// NewLimiter создаёт limiter из настроек. Нулевые поля opts заменяются
// значениями по умолчанию.
func NewLimiter(opts domain.RateLimitOptions) *Limiter {
	if opts.Base <= 0 {
		opts.Base = domain.DefaultRateBase
	}
	if opts.Burst <= 0 {
		opts.Burst = domain.DefaultRateBurst
	}
	if opts.WindowSec <= 0 {
		opts.WindowSec = domain.DefaultRateWindowSec
	}
	return &Limiter{
		window: opts.Window(),
		base:   float64(opts.Base),
		burst:  opts.Burst,
		limit:  float64(opts.Base),
		now:    time.Now,
	}
}

// Allow решает, допустить ли запрос, и при допуске записывает отметку.
//
// Порядок проверок: длинное окно, затем burst-окно. Отказ возвращается
// как *RateLimitedError с причиной и оценкой retry-after. Повторные
// отказы подряд дополнительно роняют лимит — цель явно не успевает.
func (l *Limiter) Allow() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now)

	if len(l.stamps) >= int(l.limit) {
		return l.reject(now, ReasonWindowExceeded, l.stamps[0].Add(l.window).Sub(now))
	}

	if n := l.inBurstWindow(now); n >= l.burst {
		oldest := l.stamps[len(l.stamps)-n]
		return l.reject(now, ReasonBurstExceeded, oldest.Add(burstWindow).Sub(now))
	}

	l.stamps = append(l.stamps, now)
	l.rejectStreak = 0
	return nil
}

// reject оформляет отказ и при серии отказов роняет лимит.
// Вызывается под мьютексом.
func (l *Limiter) reject(now time.Time, reason Reason, retryAfter time.Duration) error {
	l.rejectStreak++
	if l.rejectStreak >= rejectStreakForNudge {
		l.nudgeDown()
		l.rejectStreak = 0
	}
	if retryAfter < 0 {
		retryAfter = 0
	}
	return &RateLimitedError{Reason: reason, RetryAfter: retryAfter}
}

// OnSuccess — внешне наблюдаемый успех: лимит подрастает (не выше потолка).
func (l *Limiter) OnSuccess() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.limit = min(l.limit*limitUpFactor, l.base*limitCeilingFactor)
}

// OnThrottle — внешне наблюдаемый throttle-сигнал цели: лимит падает
// (не ниже 1 запроса на окно).
func (l *Limiter) OnThrottle() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nudgeDown()
}

// nudgeDown роняет лимит. Вызывается под мьютексом.
func (l *Limiter) nudgeDown() {
	l.limit = max(l.limit*limitDownFactor, minLimit)
}

// Delay возвращает рекомендуемую паузу между действиями по цели:
// window/limit плюс случайный jitter до 20% — чтобы не создавать
// синхронных паттернов запросов.
//
// Пауза рекомендательная: limiter её не форсирует, state machine
// обязуется выдерживать её как минимальный интервал.
func (l *Limiter) Delay() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	base := time.Duration(float64(l.window) / l.limit)
	jitter := time.Duration(rand.Float64() * delayJitterFrac * float64(base))
	return base + jitter
}

// Limit возвращает текущий лимит (запросов на окно).
func (l *Limiter) Limit() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.limit
}

// Admitted возвращает количество отметок в длинном окне.
func (l *Limiter) Admitted() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.prune(l.now())
	return len(l.stamps)
}

// Reset возвращает limiter к базовому лимиту и чистит отметки.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.limit = l.base
	l.stamps = nil
	l.rejectStreak = 0
}

// prune выбрасывает отметки старше длинного окна. Вызывается под мьютексом.
func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	expired := 0
	for _, ts := range l.stamps {
		if ts.After(cutoff) {
			break
		}
		expired++
	}
	l.stamps = l.stamps[expired:]
}

// inBurstWindow считает отметки в burst-окне. Вызывается под мьютексом.
func (l *Limiter) inBurstWindow(now time.Time) int {
	cutoff := now.Add(-burstWindow)
	n := 0
	for i := len(l.stamps) - 1; i >= 0; i-- {
		if !l.stamps[i].After(cutoff) {
			break
		}
		n++
	}
	return n
}
