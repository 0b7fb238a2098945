package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Message metrics
	messagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "siege_bot_messages_received_total",
		Help: "Total number of messages received",
	}, []string{"chat_type"})

	pipelineOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "siege_bot_pipeline_outcomes_total",
		Help: "Total number of messages by terminal pipeline state",
	}, []string{"state"})

	pipelineDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "siege_bot_pipeline_duration_seconds",
		Help:    "Time from admission to terminal state",
		Buckets: prometheus.DefBuckets,
	}, []string{"state"})

	// Command metrics
	commandsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "siege_bot_commands_executed_total",
		Help: "Total number of commands executed",
	}, []string{"command"})

	// Intent metrics
	intentsClassified = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "siege_bot_intents_total",
		Help: "Total number of classified intents",
	}, []string{"intent"})

	lookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "siege_bot_lookups_total",
		Help: "Total number of intent lookups",
	}, []string{"kind", "status"})

	// Generation metrics
	generationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "siege_bot_generation_duration_seconds",
		Help:    "Duration of generation requests",
		Buckets: []float64{.25, .5, 1, 2, 4, 8, 15, 30},
	}, []string{"provider", "status"})

	generationTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "siege_bot_generation_requests_total",
		Help: "Total number of generation requests",
	}, []string{"provider", "status"})

	// Cache metrics
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "siege_bot_cache_hits_total",
		Help: "Total number of lookup cache hits",
	})

	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "siege_bot_cache_misses_total",
		Help: "Total number of lookup cache misses",
	})

	// Rate limit metrics
	rateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "siege_bot_rate_limit_exceeded_total",
		Help: "Total number of rate limit rejections",
	}, []string{"scope"})

	// Storage metrics
	storageOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "siege_bot_storage_operations_total",
		Help: "Total number of storage operations",
	}, []string{"operation", "status"})

	storageOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "siege_bot_storage_operation_duration_seconds",
		Help:    "Duration of storage operations",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	trackedSubjects = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "siege_bot_tracked_subjects",
		Help: "Number of subjects tracked by each rate limiter",
	}, []string{"scope"})

	activeWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "siege_bot_active_workers",
		Help: "Number of live per-user workers",
	})

	activePersonas = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "siege_bot_active_personas",
		Help: "Number of chats per selected persona",
	}, []string{"persona"})
)

// Metrics provides methods to record metrics
type Metrics struct{}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordMessageReceived records a received message
func (m *Metrics) RecordMessageReceived(chatType string) {
	messagesReceived.WithLabelValues(chatType).Inc()
}

// RecordOutcome records a message reaching a terminal state
func (m *Metrics) RecordOutcome(state string, duration time.Duration) {
	pipelineOutcomes.WithLabelValues(state).Inc()
	pipelineDuration.WithLabelValues(state).Observe(duration.Seconds())
}

// RecordCommandExecuted records an executed command
func (m *Metrics) RecordCommandExecuted(command string) {
	commandsExecuted.WithLabelValues(command).Inc()
}

// RecordIntent records a classified intent
func (m *Metrics) RecordIntent(intent string) {
	intentsClassified.WithLabelValues(intent).Inc()
}

// RecordLookup records an intent lookup result
func (m *Metrics) RecordLookup(kind, status string) {
	lookupsTotal.WithLabelValues(kind, status).Inc()
}

// RecordGeneration records a generation request
func (m *Metrics) RecordGeneration(provider, status string, duration time.Duration) {
	generationDuration.WithLabelValues(provider, status).Observe(duration.Seconds())
	generationTotal.WithLabelValues(provider, status).Inc()
}

// RecordCacheHit records a cache hit
func (m *Metrics) RecordCacheHit() {
	cacheHits.Inc()
}

// RecordCacheMiss records a cache miss
func (m *Metrics) RecordCacheMiss() {
	cacheMisses.Inc()
}

// RecordRateLimitExceeded records a rejection by the chat or user limiter
func (m *Metrics) RecordRateLimitExceeded(scope string) {
	rateLimitExceeded.WithLabelValues(scope).Inc()
}

// RecordStorageOperation records a storage operation
func (m *Metrics) RecordStorageOperation(operation, status string, duration time.Duration) {
	storageOperations.WithLabelValues(operation, status).Inc()
	storageOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// SetTrackedSubjects sets the number of subjects a limiter tracks
func (m *Metrics) SetTrackedSubjects(scope string, count int) {
	trackedSubjects.WithLabelValues(scope).Set(float64(count))
}

// SetActiveWorkers sets the number of live per-user workers
func (m *Metrics) SetActiveWorkers(count int) {
	activeWorkers.Set(float64(count))
}

// SetActivePersonas sets the per-persona chat counts
func (m *Metrics) SetActivePersonas(counts map[string]int) {
	activePersonas.Reset()
	for name, n := range counts {
		activePersonas.WithLabelValues(name).Set(float64(n))
	}
}

// NewMetricsServer builds the metrics and health HTTP server
func NewMetricsServer(port int, path string) *http.Server {
	router := mux.NewRouter()
	router.Handle(path, promhttp.Handler())

	// Health check endpoint
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}).Methods(http.MethodGet)

	return &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}
