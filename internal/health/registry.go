package health

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shaiso/Formata/internal/domain"
	"github.com/shaiso/Formata/internal/telemetry"
)

// TargetHealth — учётная запись здоровья одной цели.
//
// Создаётся лениво при первом обращении и живёт до конца процесса.
// Breaker и limiter независимы, но опрашиваются в фиксированном порядке
// (breaker первым).
type TargetHealth struct {
	breaker *Breaker
	limiter *Limiter

	// busy — affinity-слот цели: активно вести цель может только
	// одна задача, чтобы учёт rate limit был точным.
	busy chan struct{}
}

// Breaker возвращает breaker цели.
func (t *TargetHealth) Breaker() *Breaker { return t.breaker }

// Limiter возвращает limiter цели.
func (t *TargetHealth) Limiter() *Limiter { return t.limiter }

// Registry — реестр TargetHealth по идентификатору цели.
//
// Передаётся в state machine при конструировании (никакого глобального
// состояния). Настройки breaker/limiter задаются на уровне реестра и
// применяются к каждой лениво создаваемой цели.
type Registry struct {
	opts    domain.Options
	metrics *telemetry.Metrics

	mu      sync.RWMutex
	targets map[string]*TargetHealth
}

// NewRegistry создаёт реестр с настройками по умолчанию из opts.
// metrics может быть nil.
func NewRegistry(opts domain.Options, metrics *telemetry.Metrics) *Registry {
	return &Registry{
		opts:    opts.WithDefaults(),
		metrics: metrics,
		targets: make(map[string]*TargetHealth),
	}
}

// Health возвращает запись цели, создавая её при первом обращении.
func (r *Registry) Health(target string) *TargetHealth {
	r.mu.RLock()
	th, ok := r.targets[target]
	r.mu.RUnlock()
	if ok {
		return th
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if th, ok := r.targets[target]; ok {
		return th
	}

	th = &TargetHealth{
		breaker: NewBreaker(r.opts.Breaker.Threshold, r.opts.Breaker.ResetTimeout()),
		limiter: NewLimiter(r.opts.RateLimit),
		busy:    make(chan struct{}, 1),
	}
	r.targets[target] = th
	return th
}

// Admit решает, можно ли выполнить запрос к цели.
//
// Порядок фиксированный: сначала breaker, потом limiter — разомкнутый
// breaker не даёт запросу израсходовать бюджет окна. Ошибки допуска
// несут идентификатор цели.
func (r *Registry) Admit(target string) error {
	th := r.Health(target)

	if err := th.breaker.Allow(); err != nil {
		var open *CircuitOpenError
		if errors.As(err, &open) {
			open.Target = target
		}
		r.countRejection(target, ReasonCircuitOpen)
		return err
	}

	if err := th.limiter.Allow(); err != nil {
		var limited *RateLimitedError
		if errors.As(err, &limited) {
			limited.Target = target
			r.countRejection(target, limited.Reason)
		}
		return err
	}

	return nil
}

// RecordSuccess фиксирует успешный внешний результат:
// breaker сбрасывает счётчик ошибок, лимит подрастает.
func (r *Registry) RecordSuccess(target string) {
	th := r.Health(target)
	th.breaker.RecordSuccess()
	th.limiter.OnSuccess()
}

// RecordFailure фиксирует неуспешный внешний результат.
func (r *Registry) RecordFailure(target string) {
	th := r.Health(target)
	if th.breaker.RecordFailure() && r.metrics != nil {
		r.metrics.BreakerTrips.WithLabelValues(target).Inc()
	}
}

// RecordThrottle фиксирует явный throttle-сигнал цели: лимит падает
// агрессивнее, чем растёт на успехах, и breaker засчитывает ошибку.
func (r *Registry) RecordThrottle(target string) {
	th := r.Health(target)
	th.limiter.OnThrottle()
	if th.breaker.RecordFailure() && r.metrics != nil {
		r.metrics.BreakerTrips.WithLabelValues(target).Inc()
	}
}

// Delay возвращает рекомендуемую паузу между действиями по цели.
func (r *Registry) Delay(target string) time.Duration {
	return r.Health(target).limiter.Delay()
}

// BreakerState возвращает состояние breaker'а цели.
func (r *Registry) BreakerState(target string) BreakerState {
	return r.Health(target).breaker.State()
}

// Reset сбрасывает здоровье цели (операторская команда).
func (r *Registry) Reset(target string) {
	th := r.Health(target)
	th.breaker.Reset()
	th.limiter.Reset()
}

// Acquire занимает affinity-слот цели: пока слот занят, другая задача
// не может активно вести ту же цель. Ожидание кооперативное — отмена
// контекста наблюдается.
func (r *Registry) Acquire(ctx context.Context, target string) error {
	th := r.Health(target)
	select {
	case th.busy <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release освобождает affinity-слот цели.
func (r *Registry) Release(target string) {
	th := r.Health(target)
	select {
	case <-th.busy:
	default:
	}
}

// countRejection учитывает отказ в допуске в метриках.
func (r *Registry) countRejection(target string, reason Reason) {
	if r.metrics != nil {
		r.metrics.AdmissionsRejected.WithLabelValues(target, string(reason)).Inc()
	}
}
