package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	retrievalLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dashgpt_retrieval_latency_ms",
		Help:    "Latency of vector store retrieval in milliseconds",
		Buckets: []float64{5, 10, 25, 50, 100, 200, 400, 800, 1600},
	}, []string{"method"})

	retrievalResults = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dashgpt_retrieval_results",
		Help:    "Number of passages returned per retrieval",
		Buckets: []float64{0, 1, 2, 3, 5, 10},
	}, []string{"method"})

	streamFragments = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dashgpt_stream_fragments_total",
		Help: "Completion fragments relayed to clients",
	}, []string{"model"})

	pipelineOutcome = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dashgpt_pipeline_total",
		Help: "Pipeline outcomes by final stage",
	}, []string{"stage", "outcome"})

	promptTruncations = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dashgpt_prompt_truncations_total",
		Help: "Prompts truncated to fit the token ceiling",
	})

	embeddingCache = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dashgpt_embedding_cache_total",
		Help: "Query embedding cache lookups",
	}, []string{"result"})

	feedbackVotes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dashgpt_feedback_total",
		Help: "Feedback submissions by vote and category",
	}, []string{"vote", "category"})
)

func ensureRegistered() {
	once.Do(func() {
		prometheus.MustRegister(retrievalLatency, retrievalResults, streamFragments,
			pipelineOutcome, promptTruncations, embeddingCache, feedbackVotes)
	})
}

// Register makes the collectors visible on the default registry before the
// first observation.
func Register() {
	ensureRegistered()
}

// ObserveRetrieval records latency and result size for a retrieval method.
func ObserveRetrieval(method string, start time.Time, results int) {
	ensureRegistered()
	retrievalLatency.WithLabelValues(method).Observe(float64(time.Since(start).Milliseconds()))
	retrievalResults.WithLabelValues(method).Observe(float64(results))
}

func IncFragments(model string, n int) {
	ensureRegistered()
	streamFragments.WithLabelValues(model).Add(float64(n))
}

// IncPipeline records how a pipeline run ended.
func IncPipeline(stage, outcome string) {
	ensureRegistered()
	pipelineOutcome.WithLabelValues(stage, outcome).Inc()
}

func IncTruncation() {
	ensureRegistered()
	promptTruncations.Inc()
}

func IncEmbeddingCache(hit bool) {
	ensureRegistered()
	if hit {
		embeddingCache.WithLabelValues("hit").Inc()
		return
	}
	embeddingCache.WithLabelValues("miss").Inc()
}

func IncFeedback(vote, category string) {
	ensureRegistered()
	feedbackVotes.WithLabelValues(vote, category).Inc()
}
