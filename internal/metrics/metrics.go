package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Counters for the ingestion and retrieval pipelines. Registered on the
// default registry; cmd exposes them over promhttp when serving.
var (
	SegmentsIngested = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fiscora",
		Name:      "segments_ingested_total",
		Help:      "Segments written to the store.",
	})

	EmbeddingFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fiscora",
		Name:      "embedding_failures_total",
		Help:      "Embedding requests that failed after retries.",
	})

	EmbeddingCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fiscora",
		Name:      "embedding_cache_hits_total",
		Help:      "Query embeddings served from cache.",
	})

	RetrievalDegradations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fiscora",
		Name:      "retrieval_degradations_total",
		Help:      "Searches that fell down the degradation ladder, by stage reached.",
	}, []string{"stage"})

	WebPagesAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fiscora",
		Name:      "web_pages_accepted_total",
		Help:      "Web pages that passed verification, extraction and locale checks.",
	})

	WebPagesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fiscora",
		Name:      "web_pages_rejected_total",
		Help:      "Web pages dropped during augmentation, by reason.",
	}, []string{"reason"})

	AnswersComposed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fiscora",
		Name:      "answers_composed_total",
		Help:      "Answer streams completed end to end.",
	})
)
