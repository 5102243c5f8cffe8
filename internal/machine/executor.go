package machine

import "context"

// ActionKind — тип действия executor'а.
type ActionKind string

// Типы действий.
const (
	// ActionInspect — осмотр текущего экрана: остались ли шаги.
	ActionInspect ActionKind = "inspect"

	// ActionFill — заполнение поля значением.
	ActionFill ActionKind = "fill"

	// ActionClick — клик по элементу.
	ActionClick ActionKind = "click"

	// ActionRead — чтение значения элемента.
	ActionRead ActionKind = "read"

	// ActionSubmit — финальная отправка формы.
	ActionSubmit ActionKind = "submit"

	// ActionConfirm — проверка сигнала подтверждения после отправки.
	ActionConfirm ActionKind = "confirm"
)

// Signal — сигнал бедствия цели, который executor мог заметить.
// Передаётся в breaker/limiter независимо от успеха самого действия.
type Signal string

const (
	// SignalNone — сигналов нет.
	SignalNone Signal = ""

	// SignalThrottled — цель явно ответила throttling'ом (429 и т.п.).
	SignalThrottled Signal = "throttled"

	// SignalAutomationDetected — цель заподозрила автоматизацию
	// (captcha, challenge, блокирующий баннер).
	SignalAutomationDetected Signal = "automation_detected"
)

// Action — одно действие для executor'а.
type Action struct {
	// Kind — тип действия.
	Kind ActionKind `json:"kind"`

	// SelectorHint — подсказка, как найти элемент.
	SelectorHint string `json:"selector_hint,omitempty"`

	// Value — значение для заполнения.
	Value string `json:"value,omitempty"`
}

// ActionResult — результат действия.
type ActionResult struct {
	// Success — действие выполнено.
	Success bool `json:"success"`

	// Error — диагностика при неуспехе ("element not found" и т.п.).
	Error string `json:"error,omitempty"`

	// Signal — замеченный сигнал бедствия цели.
	Signal Signal `json:"signal,omitempty"`

	// Value — прочитанное значение (для ActionRead).
	Value string `json:"value,omitempty"`

	// MoreSteps — в workflow остались шаги (для ActionInspect).
	MoreSteps bool `json:"more_steps,omitempty"`
}

// Executor — внешний исполнитель действий.
//
// Ядро его потребляет, но не реализует: транспорт до цели (DOM,
// браузер, HTTP) — целиком забота executor'а. Инфраструктурные сбои
// возвращаются через error, логические неуспехи — через Result.Success.
type Executor interface {
	Execute(ctx context.Context, action Action) (*ActionResult, error)
}
