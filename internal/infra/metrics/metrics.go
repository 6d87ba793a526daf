package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	UpdatesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_updates_total",
		Help: "Входящие апдейты по видам",
	}, []string{"kind"})

	UpdatesDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_updates_dropped_total",
		Help: "Апдейты, отброшенные проверкой привязки чата",
	}, []string{"kind"})

	CommandsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_commands_total",
		Help: "Выполненные команды",
	}, []string{"command"})

	BotSendErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bot_send_errors_total",
		Help: "Ошибки отправки сообщений ботом",
	})

	RefreshJobsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_refresh_jobs_total",
		Help: "Поставленные задачи массового обновления имён",
	})

	RefreshedConsumers = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_refresh_updated_total",
		Help: "Пользователи, чьё имя обновилось при массовом обновлении",
	})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: prometheus.DefBuckets,
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		UpdatesTotal,
		UpdatesDropped,
		CommandsTotal,
		BotSendErrors,
		RefreshJobsTotal,
		RefreshedConsumers,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// IncUpdate увеличивает счётчик апдейтов указанного вида.
func IncUpdate(kind string) {
	UpdatesTotal.WithLabelValues(kind).Inc()
}

// IncDropped увеличивает счётчик отброшенных апдейтов.
func IncDropped(kind string) {
	UpdatesDropped.WithLabelValues(kind).Inc()
}

// IncCommand увеличивает счётчик команды.
func IncCommand(command string) {
	CommandsTotal.WithLabelValues(command).Inc()
}
