package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Formata/internal/domain"
	"github.com/shaiso/Formata/internal/machine"
	"github.com/shaiso/Formata/internal/mq"
	"github.com/shaiso/Formata/internal/repo"
	"github.com/shaiso/Formata/internal/telemetry"
)

// checkpointTimeout — бюджет на сохранение промежуточного состояния.
const checkpointTimeout = 5 * time.Second

// handleApplicationPending обрабатывает событие из очереди applications.pending.
func (r *Runner) handleApplicationPending(ctx context.Context, delivery *mq.Delivery) error {
	payload, err := mq.ParsePayload[mq.ApplicationPendingPayload](&delivery.Message)
	if err != nil {
		r.logger.Error("failed to parse application.pending payload", "error", err)
		return err
	}

	r.logger.Debug("received application.pending event",
		"application_id", payload.ApplicationID,
	)

	if err := r.processApplication(ctx, payload.ApplicationID); err != nil {
		// Ожидаемые ситуации — не возвращаем ошибку (ack)
		if errors.Is(err, ErrApplicationNotFound) ||
			errors.Is(err, ErrApplicationNotPending) ||
			errors.Is(err, ErrApplicationDeferred) {
			r.logger.Debug("application not processed",
				"application_id", payload.ApplicationID,
				"reason", err,
			)
			return nil
		}
		r.logger.Error("failed to process application",
			"application_id", payload.ApplicationID,
			"error", err,
		)
		return err
	}

	return nil
}

// processApplication загружает заявку, занимает affinity-слот цели
// и ведёт заявку через state machine до терминального состояния.
func (r *Runner) processApplication(ctx context.Context, id uuid.UUID) error {
	app, err := r.appRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrApplicationNotFound, id)
		}
		return fmt.Errorf("get application: %w", err)
	}

	if app.State != domain.StateInitialized {
		return ErrApplicationNotPending
	}
	if app.Deferred {
		return ErrApplicationDeferred
	}

	// Одну цель активно ведёт один слот — иначе учёт rate limit
	// перестаёт соответствовать реальному потоку запросов
	if err := r.registry.Acquire(ctx, app.Platform); err != nil {
		return fmt.Errorf("acquire target slot: %w", err)
	}
	defer r.registry.Release(app.Platform)

	logger := telemetry.WithApplicationID(r.logger, app.ID.String())
	logger = telemetry.WithTarget(logger, app.Platform)

	logger.Info("application picked up",
		"job_ref", app.JobRef,
		"profile_id", app.ProfileID,
	)
	if r.metrics != nil {
		r.metrics.ApplicationsStarted.Inc()
	}

	m := machine.New(app, machine.Config{
		Registry:   r.registry,
		Executor:   r.executors.Bind(app.Platform, app.JobRef),
		Logger:     logger,
		Metrics:    r.metrics,
		Checkpoint: r.persistCheckpoint,
	})

	r.track(app.ID, m)
	defer r.untrack(app.ID)

	result, err := m.Run(ctx)
	if err != nil {
		// Нарушение контракта машины: заявка остаётся как есть,
		// сообщение вернётся в очередь
		return fmt.Errorf("run state machine: %w", err)
	}

	if err := r.appRepo.Update(ctx, app); err != nil {
		return fmt.Errorf("persist application: %w", err)
	}

	logger.Info("application processed",
		"state", result.State,
		"outcome", result.Outcome,
		"duration", result.Duration,
	)
	if r.metrics != nil {
		r.metrics.ApplicationsFinished.WithLabelValues(string(result.State)).Inc()
	}

	return r.publishCompletion(ctx, app, result)
}

// persistCheckpoint сохраняет промежуточное состояние заявки, чтобы
// прогресс был виден API до завершения. Ошибки сохранения не прерывают
// выполнение: терминальное состояние всё равно будет записано в конце.
func (r *Runner) persistCheckpoint(app *domain.Application) {
	ctx, cancel := context.WithTimeout(context.Background(), checkpointTimeout)
	defer cancel()

	if err := r.appRepo.Update(ctx, app); err != nil {
		r.logger.Warn("failed to persist checkpoint",
			"application_id", app.ID,
			"state", app.State,
			"error", err,
		)
	}
}

// publishCompletion публикует событие application.completed.
func (r *Runner) publishCompletion(ctx context.Context, app *domain.Application, result *machine.Result) error {
	if r.publisher == nil {
		r.logger.Warn("publisher not available, skipping application.completed publish",
			"application_id", app.ID,
		)
		return nil
	}

	payload := mq.ApplicationCompletedPayload{
		ApplicationID: app.ID,
		State:         string(result.State),
		Outcome:       result.Outcome,
		Platform:      app.Platform,
		DurationMs:    result.Duration.Milliseconds(),
	}

	if err := r.publisher.PublishApplicationCompleted(ctx, payload); err != nil {
		r.logger.Warn("failed to publish application.completed",
			"application_id", app.ID,
			"error", err,
		)
		// Заявка уже сохранена — потерянное событие не повод для requeue
	}

	return nil
}

// handleControl обрабатывает broadcast-команду из control-очереди.
// Команды всегда ack'аются: requeue broadcast'а ведёт к петле доставки.
func (r *Runner) handleControl(ctx context.Context, delivery *mq.Delivery) error {
	switch delivery.Message.Type {
	case mq.MessageTypeApplicationCancel:
		payload, err := mq.ParsePayload[mq.ApplicationCancelPayload](&delivery.Message)
		if err != nil {
			r.logger.Error("failed to parse application.cancel payload", "error", err)
			return nil
		}
		r.cancelApplication(ctx, payload.ApplicationID)

	case mq.MessageTypeTargetReset:
		payload, err := mq.ParsePayload[mq.TargetResetPayload](&delivery.Message)
		if err != nil {
			r.logger.Error("failed to parse target.reset payload", "error", err)
			return nil
		}
		r.registry.Reset(payload.Platform)
		r.logger.Info("target health reset", "target", payload.Platform)

	default:
		r.logger.Debug("ignoring control message", "type", delivery.Message.Type)
	}

	return nil
}

// cancelApplication отменяет заявку.
//
// Активная машина получает запрос отмены и завершится сама; заявка,
// ещё не подхваченная runner'ом, переводится в CANCELLED прямо в БД.
// Команда приходит каждому runner'у — чужие заявки просто игнорируются.
func (r *Runner) cancelApplication(ctx context.Context, id uuid.UUID) {
	if m, ok := r.lookup(id); ok {
		if m.Cancel() {
			r.logger.Info("cancellation requested", "application_id", id)
		}
		return
	}

	err := r.appRepo.MarkCancelled(ctx, id, "cancelled")
	switch {
	case err == nil:
		r.logger.Info("pending application cancelled", "application_id", id)
	case errors.Is(err, repo.ErrInvalidState):
		// Заявка живёт у другого runner'а или уже терминальна
	default:
		r.logger.Warn("failed to cancel application", "application_id", id, "error", err)
	}
}
