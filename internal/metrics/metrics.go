// Package metrics exposes Prometheus counters for the orchestration engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus instruments.
type Metrics struct {
	TasksDispatched  *prometheus.CounterVec
	TasksTerminal    *prometheus.CounterVec
	RetryAttempts    *prometheus.CounterVec
	StreamFrames     *prometheus.CounterVec
	PeriodsMerged    prometheus.Counter
	DispatchRefusals prometheus.Counter
}

// New registers the engine metrics on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TasksDispatched: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mentora_tasks_dispatched_total",
			Help: "Tasks dispatched to the remote worker, by kind.",
		}, []string{"kind"}),
		TasksTerminal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mentora_tasks_terminal_total",
			Help: "Tasks reaching a terminal status, by kind and status.",
		}, []string{"kind", "status"}),
		RetryAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mentora_poll_attempts_total",
			Help: "Status poll attempts, by kind.",
		}, []string{"kind"}),
		StreamFrames: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mentora_stream_frames_total",
			Help: "Stream frames processed, by disposition (accepted or discarded).",
		}, []string{"disposition"}),
		PeriodsMerged: factory.NewCounter(prometheus.CounterOpts{
			Name: "mentora_periods_merged_total",
			Help: "Partial period results merged into the aggregator.",
		}),
		DispatchRefusals: factory.NewCounter(prometheus.CounterOpts{
			Name: "mentora_dispatch_refusals_total",
			Help: "Dispatch requests refused by the session registry.",
		}),
	}
}
