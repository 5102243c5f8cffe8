package progress

import (
	"sync"
	"time"

	"github.com/shaiso/Formata/internal/domain"
)

// Snapshot — снимок прогресса application на момент вызова.
type Snapshot struct {
	// Phase — текущее состояние state machine.
	Phase domain.ApplicationState `json:"phase"`

	// StepIndex — индекс текущего шага.
	StepIndex int `json:"step_index"`

	// TotalSteps — известное количество шагов workflow.
	// 0, если цель ещё не раскрыла структуру.
	TotalSteps int `json:"total_steps"`

	// Percentage — оценка завершённости, 0–100.
	Percentage float64 `json:"percentage"`

	// PhaseTimestamps — время первого входа в каждую фазу.
	PhaseTimestamps map[string]time.Time `json:"phase_timestamps,omitempty"`
}

// Tracker наблюдает переходы одного application и отдаёт снимки.
// Методы потокобезопасны: снимок можно опрашивать, пока машина работает.
type Tracker struct {
	mu         sync.RWMutex
	phase      domain.ApplicationState
	stepIndex  int
	totalSteps int
	stamps     map[string]time.Time
}

// NewTracker создаёт tracker. totalSteps — ожидаемое число шагов
// из конфигурации цели (может уточняться позже).
func NewTracker(totalSteps int) *Tracker {
	return &Tracker{
		phase:      domain.StateInitialized,
		totalSteps: totalSteps,
		stamps:     map[string]time.Time{string(domain.StateInitialized): time.Now()},
	}
}

// Observe фиксирует переход состояния и текущий шаг.
func (t *Tracker) Observe(to domain.ApplicationState, stepIndex int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.phase = to
	t.stepIndex = stepIndex
	if _, seen := t.stamps[string(to)]; !seen {
		t.stamps[string(to)] = time.Now()
	}
}

// SetTotalSteps уточняет количество шагов, когда цель его раскрыла.
func (t *Tracker) SetTotalSteps(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if n > t.totalSteps {
		t.totalSteps = n
	}
}

// Snapshot возвращает снимок прогресса.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	stamps := make(map[string]time.Time, len(t.stamps))
	for k, v := range t.stamps {
		stamps[k] = v
	}

	return Snapshot{
		Phase:           t.phase,
		StepIndex:       t.stepIndex,
		TotalSteps:      t.totalSteps,
		Percentage:      percentage(t.phase, t.stepIndex, t.totalSteps),
		PhaseTimestamps: stamps,
	}
}

// FromHistory восстанавливает снимок из сохранённой истории переходов.
// Используется API для заявок, которых нет в памяти runner'а.
func FromHistory(history []domain.Transition, stepIndex, totalSteps int) Snapshot {
	phase := domain.StateInitialized
	stamps := make(map[string]time.Time, len(history))

	for _, tr := range history {
		if _, seen := stamps[string(tr.From)]; !seen {
			stamps[string(tr.From)] = tr.At
		}
		if _, seen := stamps[string(tr.To)]; !seen {
			stamps[string(tr.To)] = tr.At
		}
		phase = tr.To
	}

	return Snapshot{
		Phase:           phase,
		StepIndex:       stepIndex,
		TotalSteps:      totalSteps,
		Percentage:      percentage(phase, stepIndex, totalSteps),
		PhaseTimestamps: stamps,
	}
}

// Веса фаз для оценки завершённости: заполнение шагов занимает
// диапазон 10–80%, хвост — отправка и подтверждение.
func percentage(phase domain.ApplicationState, stepIndex, totalSteps int) float64 {
	switch phase {
	case domain.StateInitialized:
		return 0
	case domain.StateCompleted:
		return 100
	case domain.StateFailed, domain.StateCancelled:
		// Терминальная фаза без успеха: прогресс по последнему шагу
		return stepFraction(stepIndex, totalSteps)
	case domain.StateSubmitting:
		return 90
	case domain.StateAwaitingConfirmation:
		return 95
	default:
		// DETECTING_STEPS / FILLING_STEP / VALIDATING_STEP / ERROR_RECOVERY
		return stepFraction(stepIndex, totalSteps)
	}
}

func stepFraction(stepIndex, totalSteps int) float64 {
	if totalSteps <= 0 {
		return 10
	}
	frac := float64(stepIndex) / float64(totalSteps)
	if frac > 1 {
		frac = 1
	}
	return 10 + 70*frac
}
