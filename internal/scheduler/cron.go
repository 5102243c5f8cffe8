package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shaiso/Formata/internal/domain"
)

// cronParser — парсер cron-выражений.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// CalculateNextDue вычисляет следующее открытие окна.
// Для интервалов просто добавляет IntervalSec к текущему времени.
// Учитывает timezone окна.
func CalculateNextDue(window *domain.SubmissionWindow, from time.Time) (time.Time, error) {
	loc, err := time.LoadLocation(window.Timezone)
	if err != nil {
		// Fallback на UTC если timezone невалидный
		loc = time.UTC
	}

	fromInTz := from.In(loc)

	if window.IsCron() {
		return calculateNextCron(window.CronExpr, fromInTz)
	}

	if window.IsInterval() {
		return calculateNextInterval(window.IntervalSec, fromInTz), nil
	}

	return time.Time{}, fmt.Errorf("window has neither cron_expr nor interval_sec")
}

// calculateNextCron вычисляет следующее время по cron-выражению.
func calculateNextCron(cronExpr string, from time.Time) (time.Time, error) {
	schedule, err := cronParser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", cronExpr, err)
	}

	next := schedule.Next(from)
	return next.UTC(), nil // возвращаем в UTC для хранения в БД
}

// calculateNextInterval вычисляет следующее время по интервалу.
func calculateNextInterval(intervalSec int, from time.Time) time.Time {
	next := from.Add(time.Duration(intervalSec) * time.Second)
	return next.UTC() // возвращаем в UTC для хранения в БД
}

// ValidateCronExpr проверяет валидность cron-выражения.
func ValidateCronExpr(cronExpr string) error {
	_, err := cronParser.Parse(cronExpr)
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
	}
	return nil
}

// CalculateInitialNextDue вычисляет первое открытие для нового окна.
// Используется при создании окна через API.
func CalculateInitialNextDue(window *domain.SubmissionWindow) (time.Time, error) {
	return CalculateNextDue(window, time.Now())
}
