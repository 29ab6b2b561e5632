package chat

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	turnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reva",
			Name:      "turns_total",
			Help:      "Total assistant turns by terminal node and outcome",
		},
		[]string{"node", "outcome"}, // outcome: "ok", "aborted"
	)

	turnDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "reva",
			Name:      "turn_duration_seconds",
			Help:      "Duration of assistant turns in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"node"},
	)

	classificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reva",
			Name:      "classifications_total",
			Help:      "Intent classifications by intent and outcome",
		},
		[]string{"intent", "outcome"}, // outcome: "ok", "degraded"
	)

	classifierDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "reva",
			Name:      "classifier_duration_seconds",
			Help:      "Duration of intent classification in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	routingDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reva",
			Name:      "routing_decisions_total",
			Help:      "Routing decisions by selected node",
		},
		[]string{"node"},
	)

	llmCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reva",
			Name:      "llm_calls_total",
			Help:      "Total LLM calls by purpose and status",
		},
		[]string{"purpose", "status"},
	)

	llmDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "reva",
			Name:      "llm_duration_seconds",
			Help:      "Duration of LLM calls in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~50s
		},
		[]string{"purpose"},
	)

	toolCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reva",
			Name:      "tool_calls_total",
			Help:      "Total tool invocations by tool and status",
		},
		[]string{"tool", "status"},
	)

	toolDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "reva",
			Name:      "tool_duration_seconds",
			Help:      "Duration of tool invocations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"tool"},
	)

	retrievalTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reva",
			Name:      "retrieval_total",
			Help:      "Knowledge retrievals by outcome",
		},
		[]string{"outcome"}, // "hit", "empty", "error", "disabled"
	)

	retrievalDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "reva",
			Name:      "retrieval_duration_seconds",
			Help:      "Duration of knowledge retrieval in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)
)
