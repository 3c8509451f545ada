package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Latency: длительность стадий пайплайна
	StageDuration *prometheus.HistogramVec

	// Traffic: обработанные транзакции по вердиктам
	VerdictTotal *prometheus.CounterVec

	// Errors: классификация отказов коллабораторов
	ErrorTotal *prometheus.CounterVec

	// Saturation: глубина очереди эскалаций
	EscalationQueueDepth prometheus.Gauge

	// Состояние Circuit Breaker провайдеров (0 - ок, 1 - выбило)
	CircuitBreakerState *prometheus.GaugeVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - Если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		StageDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sentinel_stage_duration_seconds",
			Help:    "Histogram of pipeline stage latencies.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"stage", "status"}),

		VerdictTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_verdicts_total",
			Help: "Total number of issued verdicts.",
		}, []string{"verdict"}),

		ErrorTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_errors_total",
			Help: "Total number of errors by type.",
		}, []string{"type"}), // типы: reasoning, policy_search, threat_feed, storage

		EscalationQueueDepth: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "sentinel_escalation_queue_depth",
			Help: "Current number of escalations awaiting human review.",
		}),

		CircuitBreakerState: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "sentinel_circuit_breaker_state",
			Help: "Current state of the circuit breaker (0=closed, 1=open).",
		}, []string{"provider"}),
	}
}

// ObserveStage реализует workflow.MetricsRecorder.
func (m *Metrics) ObserveStage(stage, status string, d time.Duration) {
	m.StageDuration.WithLabelValues(stage, status).Observe(d.Seconds())
}

// IncVerdict реализует workflow.MetricsRecorder.
func (m *Metrics) IncVerdict(verdict string) {
	m.VerdictTotal.WithLabelValues(verdict).Inc()
}
