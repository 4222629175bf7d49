// Package metrics holds the Prometheus collectors updated by the feed,
// the monitor and the bot controller. They are registered in init() and
// served at /metrics by the API.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	PriceFetchErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "signalbot_price_fetch_errors_total",
			Help: "Failed market-data fetches; the previous snapshot was kept.",
		},
	)

	PricesCached = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "signalbot_prices_cached",
			Help: "Symbols currently held in the price snapshot.",
		},
	)

	MonitorRuns = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "signalbot_monitor_runs_total",
			Help: "Completed monitor passes.",
		},
	)

	MonitorDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "signalbot_monitor_duration_seconds",
			Help:    "Duration of a monitor pass.",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Transitions counts lifecycle events by type (entry_triggered, target_hit, ...).
	Transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signalbot_signal_transitions_total",
			Help: "Signal lifecycle transitions by event type.",
		},
		[]string{"event"},
	)

	// Outcomes counts terminal classifications by outcome.
	Outcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signalbot_signal_outcomes_total",
			Help: "Signals closed, by outcome.",
		},
		[]string{"outcome"},
	)

	UpdateErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "signalbot_signal_update_errors_total",
			Help: "Per-signal persistence failures during a monitor pass.",
		},
	)

	UpdateConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "signalbot_signal_update_conflicts_total",
			Help: "Conditional updates that matched no row and were skipped.",
		},
	)

	Notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signalbot_notifications_total",
			Help: "Notifications by kind and result (sent|failed|dropped).",
		},
		[]string{"kind", "result"},
	)

	BotRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signalbot_bot_runs_total",
			Help: "Bot runs by trigger (schedule|manual|monitor) and result (ok|error).",
		},
		[]string{"trigger", "result"},
	)

	BotRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "signalbot_bot_running",
			Help: "1 while the scheduling loop is active.",
		},
	)
)

func init() {
	prometheus.MustRegister(PriceFetchErrors, PricesCached)
	prometheus.MustRegister(MonitorRuns, MonitorDuration, Transitions, Outcomes)
	prometheus.MustRegister(UpdateErrors, UpdateConflicts)
	prometheus.MustRegister(Notifications)
	prometheus.MustRegister(BotRuns, BotRunning)
}

// SetBotRunning flips the running gauge.
func SetBotRunning(running bool) {
	if running {
		BotRunning.Set(1)
		return
	}
	BotRunning.Set(0)
}
