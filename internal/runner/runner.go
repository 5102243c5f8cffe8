package runner

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Formata/internal/domain"
	"github.com/shaiso/Formata/internal/health"
	"github.com/shaiso/Formata/internal/machine"
	"github.com/shaiso/Formata/internal/mq"
	"github.com/shaiso/Formata/internal/repo"
	"github.com/shaiso/Formata/internal/telemetry"
)

// Default configuration values.
const (
	defaultPollInterval = 10 * time.Second
	defaultBatchSize    = 20
	defaultPrefetch     = 5
)

// ExecutorFactory привязывает executor действий к контексту заявки.
// Реализуется BridgeExecutor'ом; в тестах подменяется фейком.
type ExecutorFactory interface {
	Bind(platform, jobRef string) machine.Executor
}

// Runner ведёт applications через state machine.
//
// Активные машины живут в памяти runner'а: отменить заявку может только
// тот экземпляр, который её ведёт, поэтому команды отмены приходят
// broadcast'ом через control-обменник.
type Runner struct {
	// Repositories
	appRepo *repo.ApplicationRepo

	// MQ
	publisher *mq.Publisher
	conn      *mq.Connection

	// Health registry — общий для всех машин процесса: учёт rate limit
	// и breaker ведётся на цель, а не на заявку.
	registry *health.Registry

	// Фабрика executor'ов для исходящих действий
	executors ExecutorFactory

	// Consumers
	consumer        *mq.Consumer
	controlConsumer *mq.Consumer

	// Configuration
	pollInterval time.Duration
	batchSize    int

	// Активные машины по ID заявки.
	activeMu sync.RWMutex
	active   map[uuid.UUID]*machine.Machine

	// Lifecycle
	logger     *slog.Logger
	metrics    *telemetry.Metrics
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — конфигурация Runner.
type Config struct {
	// Repositories
	AppRepo *repo.ApplicationRepo

	// MQ
	Publisher *mq.Publisher
	Conn      *mq.Connection

	// Registry — реестр здоровья целей (обязателен).
	Registry *health.Registry

	// Executors — фабрика executor'ов действий (обязательна).
	Executors ExecutorFactory

	// Polling configuration
	PollInterval time.Duration // интервал polling (default: 10s)
	BatchSize    int           // количество заявок за один poll (default: 20)

	// Logger
	Logger *slog.Logger

	// Metrics (опционально)
	Metrics *telemetry.Metrics
}

// New создаёт Runner.
func New(cfg Config) *Runner {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Runner{
		appRepo:      cfg.AppRepo,
		publisher:    cfg.Publisher,
		conn:         cfg.Conn,
		registry:     cfg.Registry,
		executors:    cfg.Executors,
		pollInterval: pollInterval,
		batchSize:    batchSize,
		active:       make(map[uuid.UUID]*machine.Machine),
		logger:       logger,
		metrics:      cfg.Metrics,
	}
}

// Start запускает Runner.
//
// Запускает:
//   - Consumer для applications.pending
//   - Consumer эксклюзивной control-очереди (broadcast-команды)
//   - Polling горутину для fallback
func (r *Runner) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	r.cancelFunc = cancel

	r.logger.Info("starting runner",
		"poll_interval", r.pollInterval,
		"batch_size", r.batchSize,
	)

	controlQueue, err := mq.DeclareControlQueue(ctx, r.conn)
	if err != nil {
		return err
	}

	r.consumer = mq.NewConsumer(r.conn, r.logger, mq.ConsumerConfig{
		Queue:    string(mq.QueueApplicationsPending),
		Handler:  r.handleApplicationPending,
		Prefetch: defaultPrefetch,
	})

	r.controlConsumer = mq.NewConsumer(r.conn, r.logger, mq.ConsumerConfig{
		Queue:   string(controlQueue),
		Handler: r.handleControl,
	})

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Error("application consumer error", "error", err)
		}
	}()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.controlConsumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Error("control consumer error", "error", err)
		}
	}()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.pollLoop(ctx)
	}()

	r.logger.Info("runner started", "control_queue", controlQueue)
	return nil
}

// Stop останавливает Runner. Активные машины получают запрос отмены,
// ожидание завершения — через wg.
func (r *Runner) Stop() {
	r.stoppedMu.Lock()
	r.stopped = true
	r.stoppedMu.Unlock()

	r.logger.Info("stopping runner...")

	if r.cancelFunc != nil {
		r.cancelFunc()
	}
	if r.consumer != nil {
		r.consumer.Stop()
	}
	if r.controlConsumer != nil {
		r.controlConsumer.Stop()
	}

	r.wg.Wait()

	r.logger.Info("runner stopped")
}

// IsStopped проверяет, остановлен ли Runner.
func (r *Runner) IsStopped() bool {
	r.stoppedMu.RLock()
	defer r.stoppedMu.RUnlock()
	return r.stopped
}

// ActiveCount возвращает количество активных машин.
func (r *Runner) ActiveCount() int {
	r.activeMu.RLock()
	defer r.activeMu.RUnlock()
	return len(r.active)
}

// pollLoop — цикл polling для fallback.
func (r *Runner) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	// Первый poll сразу при старте (подхватываем заявки, созданные
	// пока runner был выключен)
	r.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.poll(ctx)
		}
	}
}

// poll выполняет один цикл polling.
func (r *Runner) poll(ctx context.Context) {
	apps, err := r.appRepo.List(ctx, repo.ApplicationFilter{
		State: domain.StateInitialized,
		Limit: r.batchSize,
	})
	if err != nil {
		r.logger.Error("failed to list pending applications", "error", err)
		return
	}

	if len(apps) == 0 {
		return
	}

	r.logger.Debug("poll found pending applications", "count", len(apps))

	for i := range apps {
		app := &apps[i]
		if app.Deferred {
			continue // ждёт окна отправки
		}

		if err := r.processApplication(ctx, app.ID); err != nil {
			if errors.Is(err, ErrApplicationNotPending) {
				continue
			}
			r.logger.Error("failed to process application from poll",
				"application_id", app.ID,
				"error", err,
			)
		}
	}
}

// track регистрирует активную машину.
func (r *Runner) track(id uuid.UUID, m *machine.Machine) {
	r.activeMu.Lock()
	r.active[id] = m
	r.activeMu.Unlock()
}

// untrack снимает машину с учёта.
func (r *Runner) untrack(id uuid.UUID) {
	r.activeMu.Lock()
	delete(r.active, id)
	r.activeMu.Unlock()
}

// lookup возвращает активную машину по ID заявки.
func (r *Runner) lookup(id uuid.UUID) (*machine.Machine, bool) {
	r.activeMu.RLock()
	defer r.activeMu.RUnlock()
	m, ok := r.active[id]
	return m, ok
}
