package governance

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes governance counters to Prometheus.
type Metrics struct {
	alertsAdmitted      prometheus.Counter
	alertsSuppressed    *prometheus.CounterVec
	evaluationFailOpens prometheus.Counter
	escalationsTotal    *prometheus.CounterVec
	activeEscalations   prometheus.Gauge
	adaptiveAdjustments *prometheus.CounterVec
	notificationsSent   prometheus.Counter
}

// NewMetrics registers governance metrics on the given registerer. A
// fresh registry per engine keeps tests isolated.
func NewMetrics(prefix string, reg prometheus.Registerer) *Metrics {
	if prefix == "" {
		prefix = "alerting"
	}
	factory := promauto.With(reg)

	return &Metrics{
		alertsAdmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_governance_alerts_admitted_total",
			Help: "Total number of alerts admitted by the rate limit evaluator",
		}),
		alertsSuppressed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "_governance_alerts_suppressed_total",
			Help: "Total number of alerts suppressed, by rejecting scope",
		}, []string{"scope_type"}),
		evaluationFailOpens: factory.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_governance_evaluation_fail_opens_total",
			Help: "Total number of evaluations that failed open on an internal error",
		}),
		escalationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "_governance_escalations_total",
			Help: "Total number of escalation transitions, by outcome",
		}, []string{"outcome"}),
		activeEscalations: factory.NewGauge(prometheus.GaugeOpts{
			Name: prefix + "_governance_active_escalations",
			Help: "Number of escalation state machines still in flight",
		}),
		adaptiveAdjustments: factory.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "_governance_adaptive_adjustments_total",
			Help: "Total number of adaptive limit adjustments, by direction",
		}, []string{"direction"}),
		notificationsSent: factory.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_governance_notifications_sent_total",
			Help: "Total number of notification requests handed to the dispatcher",
		}),
	}
}
