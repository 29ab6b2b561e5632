package knowledge

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	embedCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reva",
			Name:      "knowledge_embed_calls_total",
			Help:      "Total query embedding calls",
		},
		[]string{"status"},
	)

	embedDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "reva",
			Name:      "knowledge_embed_duration_seconds",
			Help:      "Duration of query embedding calls in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	retrievalCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reva",
			Name:      "knowledge_cache_total",
			Help:      "Retrieval cache outcomes",
		},
		[]string{"result"},
	)
)
