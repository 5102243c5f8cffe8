package domain

import "time"

// TargetConfig — конфигурация целевой платформы для одного application.
//
// Содержит всё, что caller знает о workflow заранее: маппинги полей
// по шагам и стратегию подтверждения. Сколько шагов окажется в workflow
// на самом деле — решает цель; state machine узнаёт это на ходу.
type TargetConfig struct {
	// Platform — идентификатор платформы (дублирует Application.Platform).
	Platform string `json:"platform"`

	// Steps — маппинги полей по индексу шага.
	Steps []StepMapping `json:"steps"`

	// ConfirmationTimeoutSec — сколько ждать сигнал подтверждения
	// после отправки. Default: 30.
	ConfirmationTimeoutSec int `json:"confirmation_timeout_sec,omitempty"`
}

// StepMapping — поля одного шага workflow.
type StepMapping struct {
	// Name — имя шага (для логов и истории).
	Name string `json:"name,omitempty"`

	// Fields — поля шага в порядке заполнения.
	Fields []FieldMapping `json:"fields"`

	// TimeoutSec — таймаут выполнения шага. 0 — взять из Options.StepTimeoutMs.
	TimeoutSec int `json:"timeout_sec,omitempty"`
}

// FieldMapping — одно поле формы.
type FieldMapping struct {
	// Kind — тип действия над полем: "fill", "click", "read".
	Kind string `json:"kind"`

	// SelectorHint — подсказка executor'у, как найти элемент.
	// Интерпретация подсказки — целиком на стороне executor'а.
	SelectorHint string `json:"selector_hint"`

	// Value — значение для заполнения.
	Value string `json:"value,omitempty"`

	// Required — провал этого поля фатален для шага.
	// Провал необязательного поля записывается в журнал и поглощается.
	Required bool `json:"required,omitempty"`
}

// ConfirmationTimeout возвращает таймаут подтверждения как Duration.
func (c *TargetConfig) ConfirmationTimeout() time.Duration {
	if c.ConfirmationTimeoutSec <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.ConfirmationTimeoutSec) * time.Second
}

// StepTimeout возвращает таймаут шага с учётом options.
func (c *TargetConfig) StepTimeout(step int, opts Options) time.Duration {
	if step >= 0 && step < len(c.Steps) && c.Steps[step].TimeoutSec > 0 {
		return time.Duration(c.Steps[step].TimeoutSec) * time.Second
	}
	return time.Duration(opts.StepTimeoutMs) * time.Millisecond
}

// StepName возвращает имя шага для логов.
func (c *TargetConfig) StepName(step int) string {
	if step >= 0 && step < len(c.Steps) && c.Steps[step].Name != "" {
		return c.Steps[step].Name
	}
	return ""
}
