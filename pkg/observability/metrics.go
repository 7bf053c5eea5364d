// Package observability exposes the operational surface of the service:
// Prometheus metrics, health checks, and the ops HTTP server that serves
// both. HTTP-level request metrics come from the API middleware; the
// metrics here cover the tutoring domain itself.
package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	chatMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lingokit_chat_messages_total",
			Help: "Chat messages handled, by teaching strategy and difficulty level",
		},
		[]string{"strategy", "difficulty"},
	)

	chatDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lingokit_chat_duration_seconds",
			Help:    "End-to-end chat turn duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"strategy"},
	)

	generationFallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lingokit_generation_fallbacks_total",
			Help: "Generation provider failures that caused a fallback to the next provider",
		},
		[]string{"provider"},
	)

	llmTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lingokit_llm_tokens_total",
			Help: "LLM tokens consumed, by provider and kind (prompt or completion)",
		},
		[]string{"provider", "kind"},
	)

	retrievalDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lingokit_retrieval_duration_seconds",
			Help:    "Knowledge-base retrieval duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lingokit_sessions_active",
			Help: "Learning sessions currently active",
		},
	)

	sessionsStartedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lingokit_sessions_started_total",
			Help: "Learning sessions created",
		},
	)

	sessionsEndedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lingokit_sessions_ended_total",
			Help: "Learning sessions ended, by reason (user or reaper)",
		},
		[]string{"reason"},
	)

	documentsIngestedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lingokit_documents_ingested_total",
			Help: "Knowledge-base chunks ingested, by detected difficulty",
		},
		[]string{"difficulty"},
	)

	initOnce sync.Once
)

// InitMetrics registers the domain metrics with the default registry.
// Safe to call more than once.
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			chatMessagesTotal,
			chatDuration,
			generationFallbacksTotal,
			llmTokensTotal,
			retrievalDuration,
			sessionsActive,
			sessionsStartedTotal,
			sessionsEndedTotal,
			documentsIngestedTotal,
		)
	})
}

// MetricsHandler returns the Prometheus scrape handler.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// RecordChatMessage records one handled chat turn.
func RecordChatMessage(strategy, difficulty string, duration time.Duration) {
	chatMessagesTotal.WithLabelValues(strategy, difficulty).Inc()
	chatDuration.WithLabelValues(strategy).Observe(duration.Seconds())
}

// RecordGenerationFallback counts a provider failure that triggered
// fallback.
func RecordGenerationFallback(provider string) {
	generationFallbacksTotal.WithLabelValues(provider).Inc()
}

// RecordTokenUsage counts tokens consumed by a generation call.
func RecordTokenUsage(provider string, promptTokens, completionTokens int) {
	if promptTokens > 0 {
		llmTokensTotal.WithLabelValues(provider, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		llmTokensTotal.WithLabelValues(provider, "completion").Add(float64(completionTokens))
	}
}

// RecordRetrieval records one knowledge-base search.
func RecordRetrieval(duration time.Duration) {
	retrievalDuration.Observe(duration.Seconds())
}

// SetActiveSessions sets the active session gauge.
func SetActiveSessions(count int) {
	sessionsActive.Set(float64(count))
}

// RecordSessionStarted counts a created session.
func RecordSessionStarted() {
	sessionsStartedTotal.Inc()
}

// RecordSessionEnded counts an ended session. Reason is "user" for explicit
// end requests and "reaper" for idle cleanup.
func RecordSessionEnded(reason string) {
	sessionsEndedTotal.WithLabelValues(reason).Inc()
}

// RecordDocumentsIngested counts ingested chunks for a difficulty level.
func RecordDocumentsIngested(difficulty string, count int) {
	if count > 0 {
		documentsIngestedTotal.WithLabelValues(difficulty).Add(float64(count))
	}
}
