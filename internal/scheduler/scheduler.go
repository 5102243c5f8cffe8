package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/Formata/internal/domain"
	"github.com/shaiso/Formata/internal/mq"
	"github.com/shaiso/Formata/internal/repo"
)

// Scheduler открывает due окна отправки и диспатчит отложенные заявки.
type Scheduler struct {
	windowRepo *repo.WindowRepo
	appRepo    *repo.ApplicationRepo
	publisher  *mq.Publisher
	logger     *slog.Logger
	batchSize  int
}

// Config — конфигурация Scheduler.
type Config struct {
	WindowRepo *repo.WindowRepo
	AppRepo    *repo.ApplicationRepo
	Publisher  *mq.Publisher
	Logger     *slog.Logger
	BatchSize  int // количество окон за один тик (default: 100)
}

// New создаёт Scheduler.
func New(cfg Config) *Scheduler {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	return &Scheduler{
		windowRepo: cfg.WindowRepo,
		appRepo:    cfg.AppRepo,
		publisher:  cfg.Publisher,
		logger:     cfg.Logger,
		batchSize:  batchSize,
	}
}

// Tick выполняет один тик планировщика.
//
// 1. Находит due окна (enabled=true, next_due_at <= now)
// 2. Для каждого окна диспатчит пачку отложенных заявок
// 3. Обновляет next_due_at
//
// Ошибки одного окна не блокируют обработку остальных.
func (s *Scheduler) Tick(ctx context.Context) error {
	now := time.Now()

	windows, err := s.windowRepo.ListDue(ctx, now, s.batchSize)
	if err != nil {
		return fmt.Errorf("list due windows: %w", err)
	}

	if len(windows) == 0 {
		return nil
	}

	s.logger.Debug("found due windows", "count", len(windows))

	var processed, dispatched int
	for i := range windows {
		window := &windows[i]

		n, err := s.processWindow(ctx, window, now)
		if err != nil {
			s.logger.Error("failed to process window",
				"window_id", window.ID,
				"window_name", window.Name,
				"error", err,
			)
			continue
		}

		processed++
		dispatched += n
	}

	s.logger.Info("scheduler tick completed",
		"due", len(windows),
		"processed", processed,
		"applications_dispatched", dispatched,
	)

	return nil
}

// processWindow открывает одно окно: диспатчит пачку отложенных заявок
// профиля и переставляет next_due_at. Возвращает количество заявок,
// отправленных в очередь.
func (s *Scheduler) processWindow(ctx context.Context, window *domain.SubmissionWindow, now time.Time) (int, error) {
	apps, err := s.appRepo.ListDeferred(ctx, window.ProfileID, window.Platform, window.EffectiveBatchSize())
	if err != nil {
		return 0, fmt.Errorf("list deferred applications: %w", err)
	}

	dispatched := 0
	for i := range apps {
		app := &apps[i]

		if err := s.dispatchApplication(ctx, app); err != nil {
			s.logger.Error("failed to dispatch application",
				"window_id", window.ID,
				"application_id", app.ID,
				"error", err,
			)
			continue
		}
		dispatched++
	}

	if dispatched > 0 {
		s.logger.Info("window opened",
			"window_id", window.ID,
			"window_name", window.Name,
			"profile_id", window.ProfileID,
			"platform", window.Platform,
			"dispatched", dispatched,
		)
	}

	// Переставляем next_due_at даже если диспатчить было нечего:
	// окно открылось, следующее открытие — по расписанию
	nextDue, err := CalculateNextDue(window, now)
	if err != nil {
		s.logger.Error("failed to calculate next due, leaving window as is",
			"window_id", window.ID,
			"error", err,
		)
		return dispatched, nil
	}

	window.RecordOpen(nextDue)
	if err := s.windowRepo.Update(ctx, window); err != nil {
		return dispatched, fmt.Errorf("update window: %w", err)
	}

	return dispatched, nil
}

// dispatchApplication снимает флаг отложенности и публикует заявку
// в очередь выполнения.
func (s *Scheduler) dispatchApplication(ctx context.Context, app *domain.Application) error {
	// ClearDeferred атомарен: конкурирующий тик (или ручной диспатч)
	// получает ErrInvalidState и пропускает заявку
	if err := s.appRepo.ClearDeferred(ctx, app.ID); err != nil {
		if errors.Is(err, repo.ErrInvalidState) {
			return nil
		}
		return fmt.Errorf("clear deferred: %w", err)
	}

	if s.publisher != nil {
		if err := s.publisher.PublishApplicationPending(ctx, app.ID); err != nil {
			// Не фатальная ошибка — заявка уже не deferred,
			// runner подхватит её через polling
			s.logger.Warn("failed to publish application.pending",
				"application_id", app.ID,
				"error", err,
			)
		}
	}

	return nil
}
