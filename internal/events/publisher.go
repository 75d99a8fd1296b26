// Package events provides event publishing functionality.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"wav-translate/internal/observability/metrics"
	"wav-translate/internal/schema"
)

// Publisher publishes translation events to separate Kafka topics.
type Publisher struct {
	writerSegments *kafka.Writer
	writerSessions *kafka.Writer
	principal      string
	topicSegments  string
	topicSessions  string
	enabled        bool
	metrics        *metrics.Metrics
	validator      *schema.Validator
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers       []string
	TopicSegments string
	TopicSessions string
	Principal     string
	Enabled       bool
	Metrics       *metrics.Metrics // defaults to metrics.DefaultMetrics
}

// New creates a Kafka event publisher. When Kafka is disabled or no brokers
// are configured the publisher only logs events.
func New(cfg *Config) *Publisher {
	if cfg == nil {
		log.Debug().Msg("Kafka disabled (nil config), using log-only mode")
		return &Publisher{
			enabled:   false,
			metrics:   metrics.DefaultMetrics,
			validator: schema.New(),
		}
	}

	m := cfg.Metrics
	if m == nil {
		m = metrics.DefaultMetrics
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Debug().Msg("Kafka disabled, using log-only mode")
		return &Publisher{
			principal:     cfg.Principal,
			topicSegments: cfg.TopicSegments,
			topicSessions: cfg.TopicSessions,
			enabled:       false,
			metrics:       m,
			validator:     schema.New(),
		}
	}

	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	transport := &kafka.Transport{
		Dial: dialer.DialFunc,
	}

	newWriter := func(topic string) *kafka.Writer {
		return &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
			WriteTimeout: 10 * time.Second,
			RequiredAcks: kafka.RequireOne,
			Transport:    transport,
		}
	}

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicSegments", cfg.TopicSegments).
		Str("topicSessions", cfg.TopicSessions).
		Str("principal", cfg.Principal).
		Msg("Kafka publisher initialized")

	return &Publisher{
		writerSegments: newWriter(cfg.TopicSegments),
		writerSessions: newWriter(cfg.TopicSessions),
		principal:      cfg.Principal,
		topicSegments:  cfg.TopicSegments,
		topicSessions:  cfg.TopicSessions,
		enabled:        true,
		metrics:        m,
		validator:      schema.New(),
	}
}

// PublishSegment publishes a translation segment event, keyed by session.
func (p *Publisher) PublishSegment(ctx context.Context, key string, event any) error {
	return p.publish(ctx, p.writerSegments, p.topicSegments, "segment", key, event)
}

// PublishSession publishes a session outcome event, keyed by session.
func (p *Publisher) PublishSession(ctx context.Context, key string, event any) error {
	return p.publish(ctx, p.writerSessions, p.topicSessions, "session", key, event)
}

func (p *Publisher) publish(ctx context.Context, writer *kafka.Writer, topic, eventType, key string, event any) error {
	start := time.Now()

	if err := p.validator.Validate(event); err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Rejected invalid event")
		return err
	}

	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to marshal event")
		return err
	}

	log.Debug().
		Str("principal", p.principal).
		Str("topic", topic).
		Str("key", key).
		RawJSON("payload", payload).
		Msg("Publishing event")

	if !p.enabled || writer == nil {
		p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(eventType)},
			{Key: "principal", Value: []byte(p.principal)},
		},
	}

	if err := writer.WriteMessages(ctx, msg); err != nil {
		log.Error().
			Err(err).
			Str("topic", topic).
			Str("key", key).
			Msg("Failed to write to Kafka")
		p.metrics.RecordKafkaPublish(topic, eventType, err, time.Since(start).Seconds())
		return err
	}

	p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
	return nil
}

// Close closes both Kafka writers.
func (p *Publisher) Close() error {
	var err error
	if p.writerSegments != nil {
		if e := p.writerSegments.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing segment writer")
			err = e
		}
	}
	if p.writerSessions != nil {
		if e := p.writerSessions.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing session writer")
			err = e
		}
	}
	return err
}
