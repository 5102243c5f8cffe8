package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics — Prometheus-метрики runner'а.
type Metrics struct {
	// ApplicationsStarted — заявки, взятые в работу.
	ApplicationsStarted prometheus.Counter

	// ApplicationsFinished — заявки по терминальному состоянию.
	ApplicationsFinished *prometheus.CounterVec

	// ActionsExecuted — действия, отправленные executor'у, по целям.
	ActionsExecuted *prometheus.CounterVec

	// ActionRetries — повторные попытки шагов.
	ActionRetries prometheus.Counter

	// BreakerTrips — размыкания breaker'а по целям.
	BreakerTrips *prometheus.CounterVec

	// AdmissionsRejected — отказы в допуске по целям и причинам.
	AdmissionsRejected *prometheus.CounterVec
}

// NewMetrics регистрирует метрики в reg и возвращает их.
// reg == nil — используется prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		ApplicationsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "formata_applications_started_total",
			Help: "Applications picked up by the runner.",
		}),
		ApplicationsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "formata_applications_finished_total",
			Help: "Applications by terminal state.",
		}, []string{"state"}),
		ActionsExecuted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "formata_actions_executed_total",
			Help: "Actions dispatched to the executor, by target.",
		}, []string{"target"}),
		ActionRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "formata_action_retries_total",
			Help: "Step retry attempts.",
		}),
		BreakerTrips: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "formata_breaker_trips_total",
			Help: "Circuit breaker trips, by target.",
		}, []string{"target"}),
		AdmissionsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "formata_admissions_rejected_total",
			Help: "Admission rejections, by target and reason.",
		}, []string{"target", "reason"}),
	}
}
