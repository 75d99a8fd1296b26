package session

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"wav-translate/internal/models"
	"wav-translate/internal/observability/logging"
	"wav-translate/internal/observability/metrics"
	"wav-translate/internal/service/speech"
)

const defaultPublishTimeout = 5 * time.Second

// SegmentPublisher receives one event per collected segment.
type SegmentPublisher interface {
	PublishSegment(ctx context.Context, key string, event any) error
}

// CollectorConfig configures a Collector.
type CollectorConfig struct {
	SessionID      string
	TargetLanguage string
	// Progress receives the human-readable segment lines. Nil discards them.
	Progress  io.Writer
	Publisher SegmentPublisher
	Metrics   *metrics.Metrics // defaults to metrics.DefaultMetrics
}

// Collector accumulates finalized translations for one session and one
// target language. It implements speech.Callback.
type Collector struct {
	sessionId string
	target    string
	progress  io.Writer
	publisher SegmentPublisher
	metrics   *metrics.Metrics
	ids       *Generator
	logger    zerolog.Logger

	mu       sync.Mutex
	segments []models.TranslationSegment
	outcome  Outcome
	finished bool

	done chan struct{}
	once sync.Once
}

var _ speech.Callback = (*Collector)(nil)

// NewCollector creates a collector with empty accumulators.
func NewCollector(cfg CollectorConfig) *Collector {
	m := cfg.Metrics
	if m == nil {
		m = metrics.DefaultMetrics
	}
	progress := cfg.Progress
	if progress == nil {
		progress = io.Discard
	}
	return &Collector{
		sessionId: cfg.SessionID,
		target:    cfg.TargetLanguage,
		progress:  progress,
		publisher: cfg.Publisher,
		metrics:   m,
		ids:       NewGenerator(),
		logger:    logging.WithSession(cfg.SessionID, cfg.TargetLanguage),
		done:      make(chan struct{}),
	}
}

// OnRecognizing handles interim hypotheses. Nothing is accumulated.
func (c *Collector) OnRecognizing(r speech.Result) {
	c.metrics.RecordInterim()
	c.logger.Debug().
		Str("text", r.Text).
		Str("language", r.Language).
		Msg("Interim result")
}

// OnRecognized handles a finalized result.
func (c *Collector) OnRecognized(r speech.Result) {
	switch r.Reason {
	case speech.ReasonTranslatedSpeech:
		c.onTranslated(r)
	case speech.ReasonRecognizedSpeech:
		if r.Text == "" {
			return
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.dropLocked("recognized") {
			return
		}
		c.metrics.RecordUntranslatedSegment()
		fmt.Fprintf(c.progress, "[SRC only] %s\n\n", r.Text)
	case speech.ReasonNoMatch:
		c.metrics.RecordNoMatch()
		c.logger.Debug().Dur("offset", r.Offset).Msg("No speech recognized in segment")
	default:
		c.logger.Warn().Str("reason", r.Reason.String()).Msg("Ignoring result with unexpected reason")
	}
}

func (c *Collector) onTranslated(r speech.Result) {
	tgt := r.Translations[c.target]
	if tgt == "" {
		c.metrics.RecordUntranslatedSegment()
		c.logger.Debug().Str("text", r.Text).Msg("Finalized segment has no translation for target")
		return
	}

	seg := models.TranslationSegment{
		SourceText:     r.Text,
		TranslatedText: tgt,
		SourceLanguage: r.Language,
		AudioOffsetMs:  r.Offset.Milliseconds(),
	}

	c.mu.Lock()
	if c.dropLocked("translated") {
		c.mu.Unlock()
		return
	}
	c.segments = append(c.segments, seg)
	fmt.Fprintf(c.progress, "[SRC] %s\n", seg.SourceText)
	fmt.Fprintf(c.progress, "[%s] %s\n\n", strings.ToUpper(c.target), seg.TranslatedText)
	c.mu.Unlock()

	c.metrics.RecordTranslatedSegment()
	c.publish(seg)
}

// dropLocked reports whether an event arrived after completion. c.mu must be held.
func (c *Collector) dropLocked(kind string) bool {
	if !c.finished {
		return false
	}
	c.logger.Warn().Str("event", kind).Msg("Dropping event delivered after session completion")
	return true
}

func (c *Collector) publish(seg models.TranslationSegment) {
	if c.publisher == nil {
		return
	}

	segmentId, seq := c.ids.Next(c.sessionId)
	event := models.TranslationSegmentEvent{
		EventType:      models.EventTypeSegment,
		SessionID:      c.sessionId,
		SegmentID:      segmentId,
		Sequence:       seq,
		SourceLanguage: seg.SourceLanguage,
		TargetLanguage: c.target,
		SourceText:     seg.SourceText,
		TranslatedText: seg.TranslatedText,
		AudioOffsetMs:  seg.AudioOffsetMs,
		Timestamp:      time.Now().UnixMilli(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultPublishTimeout)
	defer cancel()
	if err := c.publisher.PublishSegment(ctx, c.sessionId, event); err != nil {
		// Publishing is best effort; the segment stays collected.
		c.logger.Error().Err(err).Str("segmentId", segmentId).Msg("Failed to publish segment event")
	}
}

// OnCanceled handles the terminal cancel event.
func (c *Collector) OnCanceled(cc speech.Cancellation) {
	fmt.Fprintf(c.progress, "Canceled: %s\n", cc.Reason)

	if cc.Reason == speech.CancellationError {
		fmt.Fprintf(c.progress, "Error details: %s\n", cc.ErrorDetails)
		c.logger.Error().
			Str("code", cc.ErrorCode).
			Str("details", cc.ErrorDetails).
			Msg("Session canceled with error")
		c.finish(Outcome{
			Status:       StatusCanceledWithError,
			ErrorCode:    cc.ErrorCode,
			ErrorDetails: cc.ErrorDetails,
		})
		return
	}

	c.logger.Info().Msg("Session canceled at end of stream")
	c.finish(Outcome{Status: StatusCompleted})
}

// OnSessionStopped handles the terminal stop event.
func (c *Collector) OnSessionStopped() {
	c.logger.Info().Msg("Session stopped")
	c.finish(Outcome{Status: StatusCompleted})
}

// finish records the outcome and closes Done. Only the first call counts.
func (c *Collector) finish(o Outcome) {
	c.once.Do(func() {
		c.mu.Lock()
		c.finished = true
		c.outcome = o
		c.mu.Unlock()
		close(c.done)
	})
}

// Done is closed once a terminal event has been observed.
func (c *Collector) Done() <-chan struct{} {
	return c.done
}

// Outcome returns the recorded outcome, StatusPending before completion.
func (c *Collector) Outcome() Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outcome
}

// Bundle returns a copy of the segments collected so far.
func (c *Collector) Bundle() models.ResultBundle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return models.NewResultBundle(c.segments)
}
