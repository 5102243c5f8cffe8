package domain

import (
	"time"

	"github.com/google/uuid"
)

// Application — одна попытка провести целевую платформу через
// многошаговый workflow до терминального результата.
//
// Application создаётся когда:
// - Пользователь отправляет заявку вручную (через API/CLI)
// - Scheduler диспатчит отложенную заявку в окне отправки
//
// Мутирует Application исключительно state machine (internal/machine);
// после достижения терминального состояния запись неизменяема.
type Application struct {
	// ID — уникальный идентификатор application.
	ID uuid.UUID `json:"id"`

	// Platform — идентификатор целевой платформы (единица учёта
	// rate limit и circuit breaker).
	Platform string `json:"platform"`

	// JobRef — внешняя ссылка на вакансию/форму, ради которой заполняется workflow.
	JobRef string `json:"job_ref"`

	// ProfileID — ссылка на профиль пользователя, от имени которого идёт заполнение.
	// Сам профиль хранится внешней системой.
	ProfileID uuid.UUID `json:"profile_id"`

	// State — текущее состояние state machine.
	State ApplicationState `json:"state"`

	// StepIndex — индекс текущего шага workflow.
	// Монотонно не убывает, кроме явного отката при восстановлении.
	StepIndex int `json:"step_index"`

	// History — упорядоченная история переходов состояний.
	// Append-only: из неё выводится progress snapshot.
	History []Transition `json:"history,omitempty"`

	// ErrorLog — упорядоченный журнал ошибок шагов.
	ErrorLog []ErrorEntry `json:"error_log,omitempty"`

	// Outcome — человекочитаемая причина терминального состояния.
	// Терминальное состояние никогда не достигается без объяснения.
	Outcome string `json:"outcome,omitempty"`

	// Config — конфигурация цели: маппинги полей по шагам, таймауты.
	Config TargetConfig `json:"config"`

	// Options — настройки retry / rate limit / breaker.
	Options Options `json:"options"`

	// Deferred — заявка не диспатчится сразу, а ждёт окна отправки
	// (обрабатывается Scheduler'ом).
	Deferred bool `json:"deferred,omitempty"`

	// StartedAt — время начала выполнения.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FinishedAt — время достижения терминального состояния.
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// CreatedAt — время создания application.
	CreatedAt time.Time `json:"created_at"`
}

// Transition — одна запись истории переходов.
type Transition struct {
	From    ApplicationState `json:"from"`
	To      ApplicationState `json:"to"`
	At      time.Time        `json:"at"`
	Outcome string           `json:"outcome,omitempty"`
}

// ErrorEntry — одна запись журнала ошибок.
type ErrorEntry struct {
	// Step — индекс шага, на котором произошла ошибка.
	Step int `json:"step"`

	// Message — текст ошибки.
	Message string `json:"message"`

	// At — время ошибки.
	At time.Time `json:"at"`

	// Recovered — ошибка была поглощена (retry удался или поле необязательное).
	Recovered bool `json:"recovered"`
}

// Duration возвращает продолжительность выполнения.
// Возвращает 0, если application ещё не завершён.
func (a *Application) Duration() time.Duration {
	if a.StartedAt == nil || a.FinishedAt == nil {
		return 0
	}
	return a.FinishedAt.Sub(*a.StartedAt)
}

// IsFinished возвращает true, если application в терминальном состоянии.
func (a *Application) IsFinished() bool {
	return a.State.IsTerminal()
}

// RecordTransition добавляет переход в историю. Состояние не меняет —
// это делает state machine после проверки таблицы переходов.
func (a *Application) RecordTransition(from, to ApplicationState, outcome string) {
	a.History = append(a.History, Transition{
		From:    from,
		To:      to,
		At:      time.Now(),
		Outcome: outcome,
	})
}

// RecordError добавляет запись в журнал ошибок.
func (a *Application) RecordError(step int, message string, recovered bool) {
	a.ErrorLog = append(a.ErrorLog, ErrorEntry{
		Step:      step,
		Message:   message,
		At:        time.Now(),
		Recovered: recovered,
	})
}

// MarkStarted фиксирует время начала выполнения.
func (a *Application) MarkStarted() {
	now := time.Now()
	a.StartedAt = &now
}

// MarkFinished фиксирует терминальный результат.
func (a *Application) MarkFinished(outcome string) {
	now := time.Now()
	a.FinishedAt = &now
	a.Outcome = outcome
}

// LastError возвращает последнюю запись журнала ошибок или nil.
func (a *Application) LastError() *ErrorEntry {
	if len(a.ErrorLog) == 0 {
		return nil
	}
	return &a.ErrorLog[len(a.ErrorLog)-1]
}
