package domain

import "time"

// Значения по умолчанию для Options.
const (
	DefaultMaxRetries           = 3
	DefaultStepTimeoutMs        = 30000
	DefaultSubmissionMaxRetries = 1

	DefaultRateBase      = 10
	DefaultRateBurst     = 3
	DefaultRateWindowSec = 60

	DefaultBreakerThreshold      = 5
	DefaultBreakerResetTimeoutMs = 300000
)

// Options — настройки выполнения application.
//
// Все поля имеют значения по умолчанию; неизвестные JSON-ключи
// игнорируются при разборе, а не считаются ошибкой.
type Options struct {
	// MaxRetries — максимум повторных попыток на шаг. Default: 3.
	MaxRetries int `json:"max_retries,omitempty"`

	// StepTimeoutMs — таймаут выполнения шага в миллисекундах. Default: 30000.
	StepTimeoutMs int `json:"step_timeout_ms,omitempty"`

	// SubmissionMaxRetries — максимум попыток отправки. Default: 1.
	// Отдельный, меньший бюджет: повторная отправка рискует дублировать
	// side effects на цели.
	SubmissionMaxRetries int `json:"submission_max_retries,omitempty"`

	// RateLimit — настройки rate limiter'а для цели.
	RateLimit RateLimitOptions `json:"rate_limit,omitempty"`

	// Breaker — настройки circuit breaker'а для цели.
	Breaker BreakerOptions `json:"breaker,omitempty"`
}

// RateLimitOptions — настройки rate limiter'а.
type RateLimitOptions struct {
	// Base — стартовый лимит запросов на окно. Default: 10.
	Base int `json:"base,omitempty"`

	// Burst — допуск burst-окна (последние 10 секунд). Default: 3.
	Burst int `json:"burst,omitempty"`

	// WindowSec — длина длинного окна в секундах. Default: 60.
	WindowSec int `json:"window_sec,omitempty"`
}

// BreakerOptions — настройки circuit breaker'а.
type BreakerOptions struct {
	// Threshold — количество последовательных ошибок до размыкания. Default: 5.
	Threshold int `json:"threshold,omitempty"`

	// ResetTimeoutMs — сколько держать breaker разомкнутым. Default: 300000 (5 минут).
	ResetTimeoutMs int `json:"reset_timeout_ms,omitempty"`
}

// WithDefaults возвращает копию options с заполненными значениями по умолчанию.
func (o Options) WithDefaults() Options {
	if o.MaxRetries <= 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.StepTimeoutMs <= 0 {
		o.StepTimeoutMs = DefaultStepTimeoutMs
	}
	if o.SubmissionMaxRetries <= 0 {
		o.SubmissionMaxRetries = DefaultSubmissionMaxRetries
	}
	if o.RateLimit.Base <= 0 {
		o.RateLimit.Base = DefaultRateBase
	}
	if o.RateLimit.Burst <= 0 {
		o.RateLimit.Burst = DefaultRateBurst
	}
	if o.RateLimit.WindowSec <= 0 {
		o.RateLimit.WindowSec = DefaultRateWindowSec
	}
	if o.Breaker.Threshold <= 0 {
		o.Breaker.Threshold = DefaultBreakerThreshold
	}
	if o.Breaker.ResetTimeoutMs <= 0 {
		o.Breaker.ResetTimeoutMs = DefaultBreakerResetTimeoutMs
	}
	return o
}

// Window возвращает длинное окно как Duration.
func (r RateLimitOptions) Window() time.Duration {
	return time.Duration(r.WindowSec) * time.Second
}

// ResetTimeout возвращает таймаут сброса breaker'а как Duration.
func (b BreakerOptions) ResetTimeout() time.Duration {
	return time.Duration(b.ResetTimeoutMs) * time.Millisecond
}
