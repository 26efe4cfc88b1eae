// Package metrics carries the bot's prometheus instrumentation (§4.11),
// grounded on the client_golang usage already present in the teacher's
// go.mod for its hook and plank components.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics groups every counter/histogram the core updates.
type Metrics struct {
	EventsTotal            *prometheus.CounterVec
	CommandsTotal          *prometheus.CounterVec
	StatusUpdatesTotal     *prometheus.CounterVec
	AutomergeAttemptsTotal *prometheus.CounterVec
	StatusDurationSeconds  prometheus.Histogram
}

// NewMetrics builds and registers the bot's metrics against reg. Pass
// prometheus.NewRegistry() in tests to avoid collisions with the
// global default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "prbot_events_total",
			Help: "Webhook events dispatched, by event kind.",
		}, []string{"event_kind"}),
		CommandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "prbot_commands_total",
			Help: "Parsed commands dispatched to the executor, by verb; handling_status is always \"dispatched\".",
		}, []string{"verb", "handling_status"}),
		StatusUpdatesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "prbot_status_updates_total",
			Help: "Completed status-engine runs, by repository.",
		}, []string{"repository"}),
		AutomergeAttemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "prbot_automerge_attempts_total",
			Help: "Auto-merge attempts, by result.",
		}, []string{"result"}),
		StatusDurationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "prbot_status_duration_seconds",
			Help:    "Duration of a full status-engine run.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		m.EventsTotal,
		m.CommandsTotal,
		m.StatusUpdatesTotal,
		m.AutomergeAttemptsTotal,
		m.StatusDurationSeconds,
	)
	return m
}
