package machine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shaiso/Formata/internal/domain"
	"github.com/shaiso/Formata/internal/health"
	"github.com/shaiso/Formata/internal/progress"
	"github.com/shaiso/Formata/internal/retry"
	"github.com/shaiso/Formata/internal/telemetry"
)

// Default configuration values.
const (
	defaultConfirmPollInterval = 2 * time.Second

	// minAdmissionWait — нижняя граница ожидания после отказа limiter'а,
	// чтобы не крутиться в плотном цикле допуска.
	minAdmissionWait = 50 * time.Millisecond
)

// Config — зависимости Machine.
type Config struct {
	// Registry — реестр здоровья целей (обязателен).
	Registry *health.Registry

	// Retry — политика retry. nil — политика по умолчанию
	// из options задачи с DefaultClassifier.
	Retry *retry.Policy

	// Executor — внешний исполнитель действий (обязателен).
	Executor Executor

	// ConfirmPollInterval — интервал опроса подтверждения (default: 2s).
	ConfirmPollInterval time.Duration

	// Logger
	Logger *slog.Logger

	// Metrics (опционально)
	Metrics *telemetry.Metrics

	// Checkpoint вызывается после каждого перехода состояния (опционально).
	// Caller обычно сохраняет application, чтобы прогресс был виден
	// снаружи процесса. Вызов синхронный, из горутины Run.
	Checkpoint func(*domain.Application)
}

// Machine ведёт один application от INITIALIZED до терминального состояния.
//
// Перед каждым исходящим действием machine приостанавливается:
// сначала на рекомендованную limiter'ом паузу, затем на допуск
// (breaker первым, limiter вторым). Каждая точка приостановки
// наблюдает отмену.
type Machine struct {
	app  *domain.Application
	cfg  domain.TargetConfig
	opts domain.Options

	registry    *health.Registry
	retryPolicy *retry.Policy
	executor    Executor
	tracker     *progress.Tracker
	logger      *slog.Logger
	metrics     *telemetry.Metrics

	confirmPoll time.Duration
	checkpoint  func(*domain.Application)

	// Учёт попыток текущего шага и отправки.
	attempts       int
	submitAttempts int

	// lastErr / resumeState — контекст для ERROR_RECOVERY.
	lastErr     error
	resumeState domain.ApplicationState

	// lastAction — время последнего действия (минимальный интервал).
	lastAction time.Time

	// terminal выставляется в transition под cancelMu: Cancel читает его
	// из чужой горутины, пока Run мутирует app.State.
	cancelMu  sync.Mutex
	cancelled bool
	terminal  bool
	cancelCh  chan struct{}
}

// Result — итог выполнения application.
//
// Достаточен, чтобы caller отрисовал прогресс или сохранил audit trail:
// терминальное состояние всегда сопровождается причиной и полным
// журналом ошибок.
type Result struct {
	State    domain.ApplicationState
	Outcome  string
	Duration time.Duration
	History  []domain.Transition
	ErrorLog []domain.ErrorEntry
}

// New создаёт Machine для application.
func New(app *domain.Application, cfg Config) *Machine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = telemetry.WithApplicationID(logger, app.ID.String())
	logger = telemetry.WithTarget(logger, app.Platform)

	opts := app.Options.WithDefaults()

	retryPolicy := cfg.Retry
	if retryPolicy == nil {
		retryPolicy = retry.New(opts, DefaultClassifier)
	}

	confirmPoll := cfg.ConfirmPollInterval
	if confirmPoll <= 0 {
		confirmPoll = defaultConfirmPollInterval
	}

	return &Machine{
		app:         app,
		cfg:         app.Config,
		opts:        opts,
		registry:    cfg.Registry,
		retryPolicy: retryPolicy,
		executor:    cfg.Executor,
		tracker:     progress.NewTracker(len(app.Config.Steps)),
		logger:      logger,
		metrics:     cfg.Metrics,
		confirmPoll: confirmPoll,
		checkpoint:  cfg.Checkpoint,
		cancelCh:    make(chan struct{}),
	}
}

// Progress возвращает снимок прогресса. Безопасен для опроса из любой
// горутины, состояния machine не мутирует.
func (m *Machine) Progress() progress.Snapshot {
	return m.tracker.Snapshot()
}

// Cancel запрашивает отмену. Идемпотентен; возвращает false, если
// задача уже в терминальном состоянии. Отмена наблюдается на ближайшей
// точке приостановки и имеет приоритет над оставшимися retry.
func (m *Machine) Cancel() bool {
	m.cancelMu.Lock()
	defer m.cancelMu.Unlock()

	if m.terminal {
		return false
	}
	if !m.cancelled {
		m.cancelled = true
		close(m.cancelCh)
	}
	return true
}

// Run ведёт application до терминального состояния.
//
// Ошибка возвращается только при нарушении контракта (нелегальный
// переход); ошибки среды поглощаются и отражаются в Result.
func (m *Machine) Run(ctx context.Context) (*Result, error) {
	app := m.app

	if app.State != domain.StateInitialized {
		return nil, &InvalidTransitionError{From: app.State, To: domain.StateDetectingSteps}
	}

	app.MarkStarted()
	m.logger.Info("application started",
		"job_ref", app.JobRef,
		"steps_mapped", len(m.cfg.Steps),
	)

	if err := m.transition(domain.StateDetectingSteps, ""); err != nil {
		return nil, err
	}

	for !app.State.IsTerminal() {
		if m.interrupted(ctx) {
			if err := m.toCancelled(); err != nil {
				return nil, err
			}
			break
		}

		var err error
		switch app.State {
		case domain.StateDetectingSteps:
			err = m.detectSteps(ctx)
		case domain.StateFillingStep:
			err = m.fillStep(ctx)
		case domain.StateValidatingStep:
			err = m.validateStep()
		case domain.StateSubmitting:
			err = m.submit(ctx)
		case domain.StateAwaitingConfirmation:
			err = m.awaitConfirmation(ctx)
		case domain.StateErrorRecovery:
			err = m.recoverStep(ctx)
		default:
			err = fmt.Errorf("unexpected state %s", app.State)
		}
		if err != nil {
			return nil, err
		}
	}

	result := m.result()
	m.logger.Info("application finished",
		"state", result.State,
		"outcome", result.Outcome,
		"duration", result.Duration,
		"errors", len(result.ErrorLog),
	)
	return result, nil
}

// --- Фазы ---

// detectSteps осматривает текущий экран и решает: заполнять следующий шаг
// или отправлять форму.
func (m *Machine) detectSteps(ctx context.Context) error {
	res, err := m.act(ctx, Action{Kind: ActionInspect}, false)
	if err != nil {
		return m.enterRecovery(err, domain.StateDetectingSteps)
	}

	if !res.MoreSteps {
		return m.transition(domain.StateSubmitting, "no steps remain")
	}

	if m.app.StepIndex >= len(m.cfg.Steps) {
		// Цель показывает шаг, для которого нет маппинга — конфигурация неполна
		return m.enterRecovery(&StepExecutionError{
			Step:    m.app.StepIndex,
			Action:  ActionInspect,
			Kind:    KindStructural,
			Message: fmt.Sprintf("no field mapping for step %d", m.app.StepIndex),
		}, domain.StateDetectingSteps)
	}

	return m.transition(domain.StateFillingStep, "")
}

// fillStep заполняет поля текущего шага.
//
// Провал отдельного поля не валит задачу сразу: он записывается в журнал,
// шаг доходит до VALIDATING_STEP, и уже там решается фатальность.
// Прерывают заполнение только ошибки допуска (breaker/limiter).
func (m *Machine) fillStep(ctx context.Context) error {
	step := m.cfg.Steps[m.app.StepIndex]

	for _, field := range step.Fields {
		if m.interrupted(ctx) {
			return nil // отмену обработает главный цикл
		}

		action := Action{
			Kind:         ActionKind(field.Kind),
			SelectorHint: field.SelectorHint,
			Value:        field.Value,
		}

		res, err := m.act(ctx, action, false)
		if err != nil {
			var open *health.CircuitOpenError
			if errors.As(err, &open) {
				return m.enterRecovery(err, domain.StateDetectingSteps)
			}
			// Прерванное отменой заполнение — не провал поля
			if errors.Is(err, context.Canceled) {
				return nil // отмену обработает главный цикл
			}
			// Ошибка поля: записываем и продолжаем
			m.app.RecordError(m.app.StepIndex, err.Error(), !field.Required)
			m.logger.Warn("field failed",
				"step", m.app.StepIndex,
				"selector_hint", field.SelectorHint,
				"required", field.Required,
				"error", err,
			)
			continue
		}
		_ = res
	}

	return m.transition(domain.StateValidatingStep, "")
}

// validateStep решает, фатальны ли накопленные провалы полей шага.
// Провал обязательного поля — ошибка шага (retry через ERROR_RECOVERY);
// провалы необязательных полей поглощаются.
func (m *Machine) validateStep() error {
	if msg := m.requiredFailure(); msg != "" {
		return m.enterRecovery(&StepExecutionError{
			Step:    m.app.StepIndex,
			Action:  ActionFill,
			Kind:    KindTransient,
			Message: msg,
		}, domain.StateDetectingSteps)
	}

	m.logger.Debug("step validated",
		"step", m.app.StepIndex,
		"name", m.cfg.StepName(m.app.StepIndex),
	)

	m.app.StepIndex++
	m.attempts = 0
	return m.transition(domain.StateDetectingSteps, "step complete")
}

// requiredFailure возвращает сообщение первого непоглощённого провала
// обязательного поля текущего шага, либо "".
func (m *Machine) requiredFailure() string {
	for _, entry := range m.app.ErrorLog {
		if entry.Step == m.app.StepIndex && !entry.Recovered {
			return entry.Message
		}
	}
	return ""
}

// submit выполняет финальную отправку формы.
func (m *Machine) submit(ctx context.Context) error {
	res, err := m.act(ctx, Action{Kind: ActionSubmit}, true)
	if err != nil {
		return m.enterRecovery(err, domain.StateSubmitting)
	}
	_ = res

	return m.transition(domain.StateAwaitingConfirmation, "submitted")
}

// awaitConfirmation опрашивает сигнал подтверждения до таймаута.
// Отсутствие сигнала в срок — FAILED с причиной confirmation_timeout,
// никогда — молчаливый COMPLETED.
func (m *Machine) awaitConfirmation(ctx context.Context) error {
	timeout := m.cfg.ConfirmationTimeout()
	deadline := time.Now().Add(timeout)

	// Дедлайн ограничивает каждую паузу фазы — спейсинг и ожидание
	// допуска внутри act в том числе. Иначе занятый limiter оттянул бы
	// финализацию на произвольный срок после истечения таймаута.
	confirmCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	for {
		if m.interrupted(ctx) {
			return nil
		}

		if !time.Now().Before(deadline) {
			confirmErr := &ConfirmationTimeoutError{Timeout: timeout}
			m.app.RecordError(m.app.StepIndex, confirmErr.Error(), false)
			return m.toFailed(ReasonConfirmationTimeout)
		}

		res, err := m.act(confirmCtx, Action{Kind: ActionConfirm}, false)
		if err == nil && res.Success {
			return m.transition(domain.StateCompleted, "confirmed")
		}
		// Дедлайн, истёкший внутри act, ловит проверка в начале цикла

		remaining := time.Until(deadline)
		wait := m.confirmPoll
		if remaining < wait {
			wait = remaining
		}
		if wait > 0 {
			if stop := m.sleep(confirmCtx, wait); stop && m.interrupted(ctx) {
				return nil
			}
		}
	}
}

// recoverStep — развилка ERROR_RECOVERY: повторить прерванный шаг
// или завершить задачу как FAILED.
func (m *Machine) recoverStep(ctx context.Context) error {
	// Отмена приоритетнее оставшихся retry
	if m.interrupted(ctx) {
		return nil
	}

	err := m.lastErr
	target := m.app.Platform

	// Ошибки здоровья цели ядро не retry'ит — поднимаем наверх
	var open *health.CircuitOpenError
	if errors.As(err, &open) {
		return m.toFailed(fmt.Sprintf("%s: %s", health.ReasonCircuitOpen, err))
	}

	submission := m.resumeState == domain.StateSubmitting
	attempt := m.attempts
	if submission {
		attempt = m.submitAttempts
	}

	if !m.retryPolicy.ShouldRetry(err, attempt, submission) {
		// Исчерпанный бюджет — тоже сигнал о здоровье цели
		m.registry.RecordFailure(target)
		return m.toFailed(fmt.Sprintf("%s: %s", ReasonRetriesExhausted, err))
	}

	if m.registry.BreakerState(target) == health.BreakerOpen {
		return m.toFailed(fmt.Sprintf("%s: breaker opened during recovery", health.ReasonCircuitOpen))
	}

	delay := m.retryPolicy.Backoff(attempt)
	m.logger.Debug("retrying step",
		"step", m.app.StepIndex,
		"attempt", attempt,
		"delay", delay,
		"error", err,
	)
	if m.metrics != nil {
		m.metrics.ActionRetries.Inc()
	}

	if stop := m.sleep(ctx, delay); stop {
		return nil
	}

	// Ошибка пережита — помечаем записи шага поглощёнными
	m.absorbStepErrors()

	return m.transition(m.resumeState, fmt.Sprintf("retry %d", attempt+1))
}

// absorbStepErrors помечает ошибки текущего шага как recovered.
func (m *Machine) absorbStepErrors() {
	for i := range m.app.ErrorLog {
		if m.app.ErrorLog[i].Step == m.app.StepIndex {
			m.app.ErrorLog[i].Recovered = true
		}
	}
}

// --- Переходы ---

// transition выполняет переход по таблице. Нелегальный переход возвращает
// InvalidTransitionError, не мутируя задачу.
func (m *Machine) transition(to domain.ApplicationState, outcome string) error {
	from := m.app.State
	if !CanTransition(from, to) {
		return &InvalidTransitionError{From: from, To: to}
	}

	m.app.RecordTransition(from, to, outcome)
	m.app.State = to
	m.tracker.Observe(to, m.app.StepIndex)

	m.logger.Debug("transition", "from", from, "to", to, "outcome", outcome)

	if to.IsTerminal() {
		m.app.MarkFinished(outcomeOrState(outcome, to))
		m.cancelMu.Lock()
		m.terminal = true
		m.cancelMu.Unlock()
	}
	if m.checkpoint != nil {
		m.checkpoint(m.app)
	}
	return nil
}

// enterRecovery переводит задачу в ERROR_RECOVERY, запоминая ошибку,
// точку возврата и счёт попыток.
func (m *Machine) enterRecovery(err error, resume domain.ApplicationState) error {
	m.lastErr = err
	m.resumeState = resume

	if resume == domain.StateSubmitting {
		m.submitAttempts++
	} else {
		m.attempts++
	}

	// Отмена не ошибка задачи — журнал не засоряем
	if !errors.Is(err, context.Canceled) {
		var step *StepExecutionError
		if !errors.As(err, &step) {
			// Ошибки допуска тоже попадают в журнал
			m.app.RecordError(m.app.StepIndex, err.Error(), false)
		} else if m.requiredFailure() == "" {
			m.app.RecordError(m.app.StepIndex, err.Error(), false)
		}
	}

	return m.transition(domain.StateErrorRecovery, err.Error())
}

// toFailed завершает задачу как FAILED с причиной.
func (m *Machine) toFailed(reason string) error {
	return m.transition(domain.StateFailed, reason)
}

// toCancelled завершает задачу как CANCELLED.
func (m *Machine) toCancelled() error {
	return m.transition(domain.StateCancelled, ReasonCancelled)
}

// --- Действия и приостановки ---

// act выполняет одно исходящее действие: пауза-спейсинг, допуск
// (breaker первым, limiter вторым), вызов executor'а, обратная связь
// в учёт здоровья цели.
func (m *Machine) act(ctx context.Context, action Action, submission bool) (*ActionResult, error) {
	target := m.app.Platform

	// 1. Минимальный интервал между действиями по цели
	if !m.lastAction.IsZero() {
		spacing := m.registry.Delay(target)
		elapsed := time.Since(m.lastAction)
		if elapsed < spacing {
			if stop := m.sleep(ctx, spacing-elapsed); stop {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
				return nil, context.Canceled
			}
		}
	}

	// 2. Допуск: отказ limiter'а — подождать и попробовать снова,
	// разомкнутый breaker — fail fast
	for {
		if m.interrupted(ctx) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return nil, context.Canceled
		}

		err := m.registry.Admit(target)
		if err == nil {
			break
		}

		var limited *health.RateLimitedError
		if errors.As(err, &limited) {
			wait := limited.RetryAfter
			if wait < minAdmissionWait {
				wait = minAdmissionWait
			}
			m.logger.Debug("admission denied, waiting",
				"reason", limited.Reason,
				"retry_after", wait,
			)
			if stop := m.sleep(ctx, wait); stop {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
				return nil, context.Canceled
			}
			continue
		}

		// Breaker разомкнут — fail fast, executor не вызывается
		return nil, err
	}

	if m.metrics != nil {
		m.metrics.ActionsExecuted.WithLabelValues(target).Inc()
	}

	// 3. Выполнение с таймаутом шага
	stepTimeout := m.cfg.StepTimeout(m.app.StepIndex, m.opts)
	actionCtx, cancel := context.WithTimeout(ctx, stepTimeout)
	res, execErr := m.executor.Execute(actionCtx, action)
	cancel()

	m.lastAction = time.Now()

	// 4. Обратная связь
	if execErr != nil {
		// Отмена пользователя — не сигнал о здоровье цели
		if errors.Is(execErr, context.Canceled) {
			return nil, execErr
		}
		kind := KindTransient
		if errors.Is(execErr, context.DeadlineExceeded) && submission {
			// Таймаут неидемпотентного шага терминален
			kind = KindStructural
		}
		m.registry.RecordFailure(target)
		return nil, &StepExecutionError{
			Step:    m.app.StepIndex,
			Action:  action.Kind,
			Kind:    kind,
			Message: execErr.Error(),
		}
	}

	// Сигналы бедствия учитываются независимо от исхода действия
	switch res.Signal {
	case SignalThrottled, SignalAutomationDetected:
		m.logger.Warn("target distress signal", "signal", res.Signal)
		m.registry.RecordThrottle(target)
	}

	if !res.Success {
		// Отрицательный confirm — «ещё нет», а не ошибка цели
		if res.Signal == SignalNone && action.Kind != ActionConfirm {
			m.registry.RecordFailure(target)
		}
		return res, &StepExecutionError{
			Step:    m.app.StepIndex,
			Action:  action.Kind,
			Kind:    KindTransient,
			Message: res.Error,
		}
	}

	if res.Signal == SignalNone {
		m.registry.RecordSuccess(target)
	}
	return res, nil
}

// sleep — кооперативная приостановка: наблюдает context и отмену.
// Возвращает true, если ожидание прервано.
func (m *Machine) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return false
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return false
	case <-ctx.Done():
		return true
	case <-m.cancelCh:
		return true
	}
}

// interrupted проверяет отмену (context или явный Cancel).
func (m *Machine) interrupted(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	select {
	case <-m.cancelCh:
		return true
	default:
		return false
	}
}

// result собирает итог выполнения.
func (m *Machine) result() *Result {
	return &Result{
		State:    m.app.State,
		Outcome:  m.app.Outcome,
		Duration: m.app.Duration(),
		History:  m.app.History,
		ErrorLog: m.app.ErrorLog,
	}
}

func outcomeOrState(outcome string, state domain.ApplicationState) string {
	if outcome != "" {
		return outcome
	}
	return string(state)
}
