package domain

import (
	"time"

	"github.com/google/uuid"
)

// SubmissionWindow — окно отправки отложенных заявок.
//
// Заявки, созданные с флагом Deferred, не диспатчатся сразу: они ждут,
// пока scheduler откроет окно. Это позволяет отправлять заявки пачками
// в "человеческое" время (утро буднего дня), а не в момент создания.
//
// Окно задаётся:
// - Cron-выражением: "0 9 * * 1-5" (будни в 9:00)
// - Интервалом: каждые N секунд
type SubmissionWindow struct {
	// ID — уникальный идентификатор окна.
	ID uuid.UUID `json:"id"`

	// ProfileID — профиль, чьи отложенные заявки диспатчит это окно.
	ProfileID uuid.UUID `json:"profile_id"`

	// Platform — платформа, по которой фильтруются заявки.
	// Пустая строка — все платформы профиля.
	Platform string `json:"platform,omitempty"`

	// Name — имя окна для удобства.
	Name string `json:"name,omitempty"`

	// CronExpr — cron-выражение открытия окна.
	// Формат: "минуты часы дни месяцы дни_недели"
	// Если задан CronExpr, IntervalSec игнорируется.
	CronExpr string `json:"cron_expr,omitempty"`

	// IntervalSec — интервал в секундах между открытиями.
	// Используется если CronExpr не задан.
	IntervalSec int `json:"interval_sec,omitempty"`

	// Timezone — часовой пояс для вычисления времени. Default: "UTC".
	Timezone string `json:"timezone"`

	// BatchSize — сколько заявок диспатчить за одно открытие. Default: 5.
	// Маленькие пачки дружелюбнее к rate limiter'у цели.
	BatchSize int `json:"batch_size,omitempty"`

	// Enabled — флаг активности окна.
	Enabled bool `json:"enabled"`

	// NextDueAt — время следующего открытия.
	// Scheduler диспатчит заявки, когда now >= NextDueAt.
	NextDueAt *time.Time `json:"next_due_at,omitempty"`

	// LastRunAt — время последнего открытия.
	LastRunAt *time.Time `json:"last_run_at,omitempty"`

	// CreatedAt — время создания окна.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt — время последнего обновления.
	UpdatedAt time.Time `json:"updated_at"`
}

// IsCron возвращает true, если окно использует cron-выражение.
func (w *SubmissionWindow) IsCron() bool {
	return w.CronExpr != ""
}

// IsInterval возвращает true, если окно использует интервал.
func (w *SubmissionWindow) IsInterval() bool {
	return w.CronExpr == "" && w.IntervalSec > 0
}

// IsDue проверяет, пора ли открывать окно.
func (w *SubmissionWindow) IsDue(now time.Time) bool {
	if !w.Enabled || w.NextDueAt == nil {
		return false
	}
	return !now.Before(*w.NextDueAt)
}

// EffectiveBatchSize возвращает размер пачки с учётом default.
func (w *SubmissionWindow) EffectiveBatchSize() int {
	if w.BatchSize <= 0 {
		return 5
	}
	return w.BatchSize
}

// RecordOpen записывает открытие окна и время следующего.
func (w *SubmissionWindow) RecordOpen(nextDue time.Time) {
	now := time.Now()
	w.LastRunAt = &now
	w.NextDueAt = &nextDue
	w.UpdatedAt = now
}
