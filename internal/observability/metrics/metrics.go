// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "wav_translate"

// Metrics holds all Prometheus metrics for the tool.
type Metrics struct {
	// Session metrics
	SessionsTotal   prometheus.Counter
	SessionsActive  prometheus.Gauge
	SessionOutcomes *prometheus.CounterVec
	SessionDuration prometheus.Histogram

	// Segment metrics
	SegmentsTranslated   prometheus.Counter
	SegmentsUntranslated prometheus.Counter
	NoMatchResults       prometheus.Counter
	InterimResults       prometheus.Counter

	// Audio metrics
	AudioBytesSent  prometheus.Counter
	AudioChunksSent prometheus.Counter

	// Collaborator metrics
	STTStreams         *prometheus.CounterVec
	STTErrors          *prometheus.CounterVec
	TranslationLatency prometheus.Histogram
	TranslationErrors  prometheus.Counter

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics(prometheus.DefaultRegisterer)

// NewMetrics creates all metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SessionsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of translation sessions started",
		}),
		SessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of translation sessions currently running",
		}),
		SessionOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_outcomes_total",
			Help:      "Translation sessions by terminal outcome",
		}, []string{"status"}),
		SessionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Wall-clock duration of translation sessions",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		}),

		SegmentsTranslated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_translated_total",
			Help:      "Finalized segments collected with a translation",
		}),
		SegmentsUntranslated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_untranslated_total",
			Help:      "Finalized segments recognized without a usable translation",
		}),
		NoMatchResults: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "no_match_results_total",
			Help:      "Finalized results with no recognized speech",
		}),
		InterimResults: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interim_results_total",
			Help:      "Interim recognition results received",
		}),

		AudioBytesSent: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_sent_total",
			Help:      "Audio bytes streamed to the speech service",
		}),
		AudioChunksSent: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_chunks_sent_total",
			Help:      "Audio chunks streamed to the speech service",
		}),

		STTStreams: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stt_streams_total",
			Help:      "Speech service streams by final gRPC code",
		}, []string{"method", "code"}),
		STTErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stt_errors_total",
			Help:      "Total number of speech service errors",
		}, []string{"provider", "code"}),
		TranslationLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "translation_latency_seconds",
			Help:      "Latency of per-utterance translation calls",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}),
		TranslationErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "translation_errors_total",
			Help:      "Total number of failed translation calls",
		}),

		KafkaPublishTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),
	}
}

// RecordSessionStart records a new session starting.
func (m *Metrics) RecordSessionStart() {
	m.SessionsTotal.Inc()
	m.SessionsActive.Inc()
}

// RecordSessionEnd records a session reaching a terminal outcome.
func (m *Metrics) RecordSessionEnd(status string, durationSeconds float64) {
	m.SessionsActive.Dec()
	m.SessionDuration.Observe(durationSeconds)
	m.SessionOutcomes.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordTranslatedSegment() {
	m.SegmentsTranslated.Inc()
}

func (m *Metrics) RecordUntranslatedSegment() {
	m.SegmentsUntranslated.Inc()
}

func (m *Metrics) RecordNoMatch() {
	m.NoMatchResults.Inc()
}

func (m *Metrics) RecordInterim() {
	m.InterimResults.Inc()
}

// RecordAudioSent records one audio chunk streamed to the collaborator.
func (m *Metrics) RecordAudioSent(bytes int) {
	m.AudioBytesSent.Add(float64(bytes))
	m.AudioChunksSent.Inc()
}

// RecordSTTStream records a finished gRPC stream to the speech service.
func (m *Metrics) RecordSTTStream(method, code string) {
	m.STTStreams.WithLabelValues(method, code).Inc()
}

// RecordSTTError records an STT error.
func (m *Metrics) RecordSTTError(provider, code string) {
	m.STTErrors.WithLabelValues(provider, code).Inc()
}

// RecordTranslation records one translation call.
func (m *Metrics) RecordTranslation(err error, latencySeconds float64) {
	m.TranslationLatency.Observe(latencySeconds)
	if err != nil {
		m.TranslationErrors.Inc()
	}
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}
