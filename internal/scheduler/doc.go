// Package scheduler реализует открытие окон отправки.
//
// Scheduler периодически проверяет окна с истекшим next_due_at и
// диспатчит пачку отложенных заявок профиля в очередь выполнения.
//
// Структура:
//   - scheduler.go — основная логика Scheduler (Tick, processWindow)
//   - cron.go      — парсинг cron-выражений и вычисление следующего времени
//
// Использование:
//
//	sched := scheduler.New(scheduler.Config{
//	    WindowRepo: windowRepo,
//	    AppRepo:    appRepo,
//	    Publisher:  publisher,  // опционально
//	    Logger:     logger,
//	})
//
//	// Вызывается каждый тик (обычно раз в секунду)
//	if err := sched.Tick(ctx); err != nil {
//	    logger.Error("scheduler tick failed", "error", err)
//	}
//
// Leader Election:
//
// Scheduler не реализует leader election самостоятельно.
// Это делается в main.go через pg_try_advisory_lock.
// Метод Tick() вызывается только лидером.
package scheduler
