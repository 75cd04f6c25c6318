package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "aris"

var (
	once sync.Once

	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "response_cache_lookups_total",
			Help:      "Response cache lookups by result.",
		},
		[]string{"result"},
	)

	cacheSwept = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "response_cache_swept_total",
			Help:      "Expired response cache entries removed by sweeps.",
		},
	)

	cacheEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "response_cache_entries",
			Help:      "Current number of in-memory response cache entries.",
		},
	)

	generationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Time spent in the language model by outcome.",
			Buckets:   []float64{.1, .5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"outcome"},
	)

	speechRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "speech_retries_total",
			Help:      "Retry attempts of speech synthesis.",
		},
	)

	flagToggles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flag_toggles_total",
			Help:      "User flag toggles by flag name.",
		},
		[]string{"flag"},
	)

	persistenceFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settings_persistence_failures_total",
			Help:      "Failed writes of user settings to durable storage.",
		},
	)

	autoChat = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "autochat_messages_total",
			Help:      "Proactive messages by status.",
		},
		[]string{"status"},
	)

	remindersSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "schedule_reminders_total",
			Help:      "Schedule reminders by status.",
		},
		[]string{"status"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP API requests by route.",
		},
		[]string{"route"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			cacheLookups, cacheSwept, cacheEntries,
			generationDuration, speechRetries, flagToggles,
			persistenceFailures, autoChat, remindersSent, httpRequests,
		)
	})
}

func IncCacheHit() {
	cacheLookups.WithLabelValues("hit").Inc()
}

func IncCacheMiss() {
	cacheLookups.WithLabelValues("miss").Inc()
}

func AddCacheSwept(n int) {
	cacheSwept.Add(float64(n))
}

func SetCacheEntries(n int) {
	cacheEntries.Set(float64(n))
}

func ObserveGeneration(outcome string, seconds float64) {
	generationDuration.WithLabelValues(outcome).Observe(seconds)
}

func IncSpeechRetry() {
	speechRetries.Inc()
}

func IncFlagToggle(flag string) {
	flagToggles.WithLabelValues(flag).Inc()
}

func IncPersistenceFailure() {
	persistenceFailures.Inc()
}

func IncAutoChat(status string) {
	autoChat.WithLabelValues(status).Inc()
}

func IncReminder(status string) {
	remindersSent.WithLabelValues(status).Inc()
}

func IncHTTP(route string) {
	httpRequests.WithLabelValues(route).Inc()
}
