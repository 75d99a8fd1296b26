// Package config loads runtime configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"wav-translate/internal/service/speech"
)

// Names of the two required collaborator settings.
const (
	EnvSpeechKey    = "SPEECH_KEY"
	EnvSpeechRegion = "SPEECH_REGION"
)

// Configuration is the full process configuration.
type Configuration struct {
	Service       ServiceConfig
	Speech        SpeechConfig
	STT           STTConfig
	Translation   TranslationConfig
	Kafka         KafkaConfig
	Observability ObservabilityConfig
}

type ServiceConfig struct {
	Principal string
}

// SpeechConfig holds the collaborator credentials. Both values are read
// verbatim and have no defaults.
type SpeechConfig struct {
	Key    string
	Region string
}

type STTConfig struct {
	Provider       string // google, mock
	AudioEncoding  string
	SampleRateHz   int // 0 = take it from the WAV header
	InterimResults bool
	ChunkBytes     int

	// MaxStreamDuration is the audio per streaming call; longer recordings
	// continue on new calls.
	MaxStreamDuration time.Duration
}

type TranslationConfig struct {
	Model              string
	CandidateLanguages []string
	Timeout            time.Duration // 0 = no deadline
}

type KafkaConfig struct {
	Enabled       bool
	Brokers       []string
	TopicSegments string
	TopicSessions string
	Principal     string
}

type ObservabilityConfig struct {
	LogLevel    string
	LogFormat   string
	MetricsAddr string
}

// Load reads the configuration from the environment. Malformed values fall
// back to their defaults.
func Load() *Configuration {
	principal := envOrDefault("SERVICE_PRINCIPAL", "svc-wav-translate")

	return &Configuration{
		Service: ServiceConfig{
			Principal: principal,
		},
		Speech: SpeechConfig{
			Key:    os.Getenv(EnvSpeechKey),
			Region: os.Getenv(EnvSpeechRegion),
		},
		STT: STTConfig{
			Provider:          envOrDefault("STT_PROVIDER", "google"),
			AudioEncoding:     envOrDefault("STT_AUDIO_ENCODING", "LINEAR16"),
			SampleRateHz:      envOrDefaultInt("STT_SAMPLE_RATE_HZ", 0),
			InterimResults:    envOrDefaultBool("STT_INTERIM_RESULTS", true),
			ChunkBytes:        envOrDefaultInt("STT_CHUNK_BYTES", 16000),
			MaxStreamDuration: envOrDefaultDuration("STT_MAX_STREAM_DURATION", 290*time.Second),
		},
		Translation: TranslationConfig{
			Model:              envOrDefault("TRANSLATE_MODEL", "gemini-2.0-flash"),
			CandidateLanguages: envOrDefaultList("TRANSLATE_CANDIDATE_LANGUAGES", speech.DefaultCandidateLanguages),
			Timeout:            envOrDefaultDuration("TRANSLATE_TIMEOUT", 30*time.Minute),
		},
		Kafka: KafkaConfig{
			Enabled:       envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:       envOrDefaultList("KAFKA_BROKERS", nil),
			TopicSegments: envOrDefault("KAFKA_TOPIC_SEGMENTS", "speech.translation.segment"),
			TopicSessions: envOrDefault("KAFKA_TOPIC_SESSIONS", "speech.translation.session"),
			Principal:     envOrDefault("KAFKA_PRINCIPAL", principal),
		},
		Observability: ObservabilityConfig{
			LogLevel:    envOrDefault("LOG_LEVEL", "info"),
			LogFormat:   envOrDefault("LOG_FORMAT", "console"),
			MetricsAddr: os.Getenv("METRICS_ADDR"),
		},
	}
}

// ParseList splits a comma separated list, trimming blanks.
func ParseList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envOrDefaultBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func envOrDefaultList(key string, def []string) []string {
	list := ParseList(os.Getenv(key))
	if len(list) == 0 {
		return append([]string(nil), def...)
	}
	return list
}
