// Package services – Prometheus instrumentation for the bot engine.
//
// These counters complement the HTTP-level metrics in the middleware package
// with domain outcomes: how messages classify, how often the engine escalates
// to experts, and how the pattern base grows. Label cardinality is bounded by
// construction (fixed outcome/source vocabularies, never raw text).
package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// classificationsTotal counts processed messages by classification outcome:
	// "exact", "matched", or "unknown".
	classificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_classifications_total",
			Help: "Total classified user messages by outcome.",
		},
		[]string{"outcome"},
	)

	// escalationsTotal counts questions routed to human experts by trigger:
	// "low_confidence", "feedback", or "manual".
	escalationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_escalations_total",
			Help: "Total questions escalated to experts by trigger.",
		},
		[]string{"trigger"},
	)

	// learnedPatternsTotal counts patterns appended to intents by source:
	// "frequency", "similarity", or "feedback".
	learnedPatternsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_learned_patterns_total",
			Help: "Total patterns learned into intents by source heuristic.",
		},
		[]string{"source"},
	)

	// expertAnswersTotal counts ingested expert answers; "update" separates
	// re-answers from first answers.
	expertAnswersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_expert_answers_total",
			Help: "Total expert answers ingested into the intent base.",
		},
		[]string{"update"},
	)
)

func init() {
	prometheus.MustRegister(
		classificationsTotal,
		escalationsTotal,
		learnedPatternsTotal,
		expertAnswersTotal,
	)
}
