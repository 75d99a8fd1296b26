package events

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"wav-translate/internal/models"
	"wav-translate/internal/observability/metrics"
)

func newTestMetrics() *metrics.Metrics {
	return metrics.NewMetrics(prometheus.NewRegistry())
}

func segmentEvent() models.TranslationSegmentEvent {
	return models.TranslationSegmentEvent{
		EventType:      models.EventTypeSegment,
		SessionID:      "sess-123",
		SegmentID:      "sess-123-seg-1",
		TargetLanguage: "es",
		SourceText:     "hello world",
		TranslatedText: "hola mundo",
	}
}

func TestNew_DisabledMode(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{"nil config", nil},
		{"disabled", &Config{Enabled: false, Brokers: []string{"localhost:9092"}}},
		{"no brokers", &Config{Enabled: true, Brokers: []string{}}},
		{"empty brokers", &Config{Enabled: true, Brokers: nil}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.cfg)
			if p == nil {
				t.Fatal("expected non-nil publisher")
			}
			if p.enabled {
				t.Error("expected publisher to be disabled")
			}
			if p.writerSegments != nil {
				t.Error("expected nil segment writer when disabled")
			}
			if p.writerSessions != nil {
				t.Error("expected nil session writer when disabled")
			}
		})
	}
}

func TestNew_EnabledCreatesWriters(t *testing.T) {
	p := New(&Config{
		Enabled:       true,
		Brokers:       []string{"localhost:9092"},
		TopicSegments: "test.segments",
		TopicSessions: "test.sessions",
		Metrics:       newTestMetrics(),
	})
	defer p.Close()

	if !p.enabled {
		t.Fatal("expected publisher to be enabled")
	}
	if p.writerSegments == nil || p.writerSegments.Topic != "test.segments" {
		t.Error("expected segment writer on test.segments")
	}
	if p.writerSessions == nil || p.writerSessions.Topic != "test.sessions" {
		t.Error("expected session writer on test.sessions")
	}
}

func TestNew_ConfigValues(t *testing.T) {
	p := New(&Config{
		Enabled:       false,
		Brokers:       []string{"localhost:9092"},
		TopicSegments: "test.segments",
		TopicSessions: "test.sessions",
		Principal:     "test-principal",
	})

	if p.principal != "test-principal" {
		t.Errorf("expected principal 'test-principal', got %s", p.principal)
	}
	if p.topicSegments != "test.segments" {
		t.Errorf("expected segment topic 'test.segments', got %s", p.topicSegments)
	}
	if p.topicSessions != "test.sessions" {
		t.Errorf("expected session topic 'test.sessions', got %s", p.topicSessions)
	}
}

func TestPublisher_PublishSegment_Disabled(t *testing.T) {
	m := newTestMetrics()
	p := New(&Config{Enabled: false, TopicSegments: "test.segments", Metrics: m})

	if err := p.PublishSegment(context.Background(), "sess-123", segmentEvent()); err != nil {
		t.Errorf("expected no error when disabled, got %v", err)
	}
	if got := testutil.ToFloat64(m.KafkaPublishTotal.WithLabelValues("test.segments", "segment")); got != 1 {
		t.Errorf("expected publish to be counted, got %v", got)
	}
}

func TestPublisher_PublishSession_Disabled(t *testing.T) {
	p := New(&Config{Enabled: false, Metrics: newTestMetrics()})

	ev := models.SessionOutcomeEvent{
		EventType:      models.EventTypeSession,
		SessionID:      "sess-123",
		TargetLanguage: "es",
		Status:         "completed",
	}
	if err := p.PublishSession(context.Background(), "sess-123", ev); err != nil {
		t.Errorf("expected no error when disabled, got %v", err)
	}
}

func TestPublisher_RejectsInvalidEvent(t *testing.T) {
	p := New(&Config{Enabled: false, Metrics: newTestMetrics()})

	ev := segmentEvent()
	ev.TranslatedText = ""
	if err := p.PublishSegment(context.Background(), "sess-123", ev); err == nil {
		t.Error("expected validation error")
	}
}

func TestPublisher_RejectsUnknownEvent(t *testing.T) {
	p := New(&Config{Enabled: false, Metrics: newTestMetrics()})

	if err := p.PublishSegment(context.Background(), "k", make(chan int)); err == nil {
		t.Error("expected error for unsupported event")
	}
}

func TestPublisher_Close_NoWriters(t *testing.T) {
	p := New(&Config{Enabled: false})

	if err := p.Close(); err != nil {
		t.Errorf("expected no error closing disabled publisher, got %v", err)
	}
}

func TestPublisher_Close_NilPublisherWriters(t *testing.T) {
	p := &Publisher{}

	if err := p.Close(); err != nil {
		t.Errorf("expected no error closing publisher with nil writers, got %v", err)
	}
}
