package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Traffic: поступившие задачи
	TasksSubmitted *prometheus.CounterVec

	// Latency: полный цикл диспетчеризации (включая транспорт)
	DispatchDuration *prometheus.HistogramVec

	// Errors: классификация отказов
	ErrorTotal *prometheus.CounterVec

	// Saturation: состояние Circuit Breaker (0 - closed, 1 - half_open, 2 - open)
	CircuitBreakerState *prometheus.GaugeVec

	// Глубина очереди ожидания
	QueueDepth prometheus.Gauge

	// Живые песочницы
	ActiveSandboxes prometheus.Gauge

	// Заполненность буфера событий (backpressure)
	EventBufferFill prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - без регистратора метрики уходят в локальный реестр
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		TasksSubmitted: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_tasks_submitted_total",
			Help: "Total number of submitted tasks.",
		}, []string{"task_type", "priority"}),

		DispatchDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dispatch_duration_seconds",
			Help:    "Histogram of full dispatch latencies.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"agent_type", "status"}),

		ErrorTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_errors_total",
			Help: "Total number of errors by type.",
		}, []string{"type"}), // типы: queue_full, no_capable_agent, circuit_open, transport, sandbox, expired

		CircuitBreakerState: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "dispatch_circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=half_open, 2=open).",
		}, []string{"agent_type"}),

		QueueDepth: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "dispatch_queue_depth",
			Help: "Current number of queued tasks.",
		}),

		ActiveSandboxes: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "dispatch_active_sandboxes",
			Help: "Current number of live sandbox instances.",
		}),

		EventBufferFill: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "dispatch_event_buffer_utilization",
			Help: "Current number of events in the outbound buffer.",
		}),
	}
}
