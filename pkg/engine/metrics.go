package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's prometheus counters. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	questsStarted  *prometheus.CounterVec
	choicesApplied *prometheus.CounterVec
	questsFinished *prometheus.CounterVec
	crafts         *prometheus.CounterVec
	failures       *prometheus.CounterVec
}

// NewMetrics registers the engine counters with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		questsStarted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quest_engine_quests_started_total",
				Help: "Total number of quest runs started, by quest.",
			},
			[]string{"quest"},
		),
		choicesApplied: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quest_engine_choices_applied_total",
				Help: "Total number of choices applied, by quest.",
			},
			[]string{"quest"},
		),
		questsFinished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quest_engine_quests_finished_total",
				Help: "Total number of quest runs that ended, by quest and status.",
			},
			[]string{"quest", "status"},
		),
		crafts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quest_engine_crafts_total",
				Help: "Total number of successful crafts, by item.",
			},
			[]string{"item"},
		),
		failures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quest_engine_failures_total",
				Help: "Total number of failed operations, by operation and reason.",
			},
			[]string{"operation", "reason"},
		),
	}
}

func (m *Metrics) questStarted(quest string) {
	if m == nil {
		return
	}
	m.questsStarted.WithLabelValues(quest).Inc()
}

func (m *Metrics) choiceApplied(quest string) {
	if m == nil {
		return
	}
	m.choicesApplied.WithLabelValues(quest).Inc()
}

func (m *Metrics) questFinished(quest, status string) {
	if m == nil {
		return
	}
	m.questsFinished.WithLabelValues(quest, status).Inc()
}

func (m *Metrics) crafted(item string) {
	if m == nil {
		return
	}
	m.crafts.WithLabelValues(item).Inc()
}

func (m *Metrics) failed(operation string, reason Reason) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(operation, string(reason)).Inc()
}
