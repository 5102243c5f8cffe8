package retry

import (
	"math/rand"
	"time"

	"github.com/shaiso/Formata/internal/domain"
)

// Значения по умолчанию для Policy.
const (
	defaultInitialDelay = time.Second
	defaultMaxDelay     = 30 * time.Second
	defaultGrowthFactor = 2.0

	// backoffJitterFrac — доля jitter'а в вычисленной задержке (до 10%).
	backoffJitterFrac = 0.10
)

// Class — классификация ошибки шага.
type Class int

const (
	// ClassRetryable — временная ошибка (сеть, таймаут): шаг можно повторить.
	ClassRetryable Class = iota

	// ClassTerminal — структурная ошибка (валидация, конфигурация):
	// повторы бессмысленны.
	ClassTerminal
)

// Classifier относит ошибку к retryable или terminal.
// Поставляется caller'ом — policy не знает устройства ошибок executor'а.
type Classifier func(error) Class

// Policy — политика retry для одного application.
type Policy struct {
	// MaxRetries — максимум повторных попыток на обычный шаг
	// (сверх первой; всего попыток MaxRetries+1).
	MaxRetries int

	// SubmissionMaxAttempts — максимум попыток отправки, включая первую.
	// Здесь бюджет считается попытками, а не повторами: каждая отправка
	// рискует дублировать side effects.
	SubmissionMaxAttempts int

	// InitialDelay — базовая задержка backoff.
	InitialDelay time.Duration

	// MaxDelay — потолок задержки.
	MaxDelay time.Duration

	// GrowthFactor — множитель роста задержки между попытками.
	GrowthFactor float64

	// Classify — классификатор ошибок.
	Classify Classifier
}

// New создаёт Policy из options. classify обязателен.
func New(opts domain.Options, classify Classifier) *Policy {
	opts = opts.WithDefaults()
	return &Policy{
		MaxRetries:            opts.MaxRetries,
		SubmissionMaxAttempts: opts.SubmissionMaxRetries,
		InitialDelay:          defaultInitialDelay,
		MaxDelay:              defaultMaxDelay,
		GrowthFactor:          defaultGrowthFactor,
		Classify:              classify,
	}
}

// ShouldRetry решает, делать ли ещё одну попытку после ошибки.
//
// attempt — номер только что провалившейся попытки (с 1).
// submission включает отдельный бюджет отправки.
func (p *Policy) ShouldRetry(err error, attempt int, submission bool) bool {
	if err == nil {
		return false
	}
	if p.Classify != nil && p.Classify(err) == ClassTerminal {
		return false
	}

	if submission {
		return attempt < p.SubmissionMaxAttempts
	}
	return attempt <= p.MaxRetries
}

// Backoff вычисляет задержку перед попыткой attempt+1:
// initial * growth^(attempt-1), с потолком MaxDelay и jitter'ом
// пропорционально задержке (до 10%).
func (p *Policy) Backoff(attempt int) time.Duration {
	initial := p.InitialDelay
	if initial <= 0 {
		initial = defaultInitialDelay
	}
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = defaultMaxDelay
	}
	growth := p.GrowthFactor
	if growth < 1 {
		growth = defaultGrowthFactor
	}

	delay := initial
	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * growth)
		if delay >= maxDelay {
			delay = maxDelay
			break
		}
	}
	if delay > maxDelay {
		delay = maxDelay
	}

	jitter := time.Duration(rand.Float64() * backoffJitterFrac * float64(delay))
	return delay + jitter
}
