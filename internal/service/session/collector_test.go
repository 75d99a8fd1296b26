package session

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"wav-translate/internal/models"
	"wav-translate/internal/observability/metrics"
	"wav-translate/internal/service/speech"
)

// fakePublisher records published segment events.
type fakePublisher struct {
	mu     sync.Mutex
	events []models.TranslationSegmentEvent
	err    error
}

func (p *fakePublisher) PublishSegment(_ context.Context, _ string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event.(models.TranslationSegmentEvent))
	return p.err
}

func (p *fakePublisher) Events() []models.TranslationSegmentEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.TranslationSegmentEvent(nil), p.events...)
}

func newTestMetrics() *metrics.Metrics {
	return metrics.NewMetrics(prometheus.NewRegistry())
}

func newTestCollector(progress *bytes.Buffer, pub SegmentPublisher) *Collector {
	cfg := CollectorConfig{
		SessionID:      "sess-1",
		TargetLanguage: "es",
		Metrics:        newTestMetrics(),
		Publisher:      pub,
	}
	if progress != nil {
		cfg.Progress = progress
	}
	return NewCollector(cfg)
}

func translated(src, tgt string) speech.Result {
	r := speech.Result{
		Reason:       speech.ReasonTranslatedSpeech,
		Text:         src,
		Language:     "en-US",
		Translations: map[string]string{},
	}
	if tgt != "" {
		r.Translations["es"] = tgt
	}
	return r
}

func feed(c *Collector, results ...speech.Result) {
	for _, r := range results {
		c.OnRecognized(r)
	}
}

func TestCollector_SkipsEmptyTranslations(t *testing.T) {
	c := newTestCollector(nil, nil)

	feed(c,
		translated("src1", "tgt1"),
		translated("src2", ""),
		translated("src3", "tgt3"),
	)
	c.OnSessionStopped()

	b := c.Bundle()
	if !reflect.DeepEqual(b.TranslatedLines, []string{"tgt1", "tgt3"}) {
		t.Errorf("translated = %v", b.TranslatedLines)
	}
	if !reflect.DeepEqual(b.RecognizedLines, []string{"src1", "src3"}) {
		t.Errorf("recognized = %v", b.RecognizedLines)
	}
}

func TestCollector_Idempotent(t *testing.T) {
	events := []speech.Result{
		translated("hello", "hola"),
		{Reason: speech.ReasonNoMatch},
		{Reason: speech.ReasonRecognizedSpeech, Text: "only source"},
		translated("world", "mundo"),
	}

	var bundles []models.ResultBundle
	for i := 0; i < 2; i++ {
		c := newTestCollector(nil, nil)
		feed(c, events...)
		c.OnSessionStopped()
		bundles = append(bundles, c.Bundle())
	}

	if !reflect.DeepEqual(bundles[0], bundles[1]) {
		t.Errorf("expected identical bundles, got %+v and %+v", bundles[0], bundles[1])
	}
}

func TestCollector_IgnoresNonTranslatedResults(t *testing.T) {
	var out bytes.Buffer
	c := newTestCollector(&out, nil)

	c.OnRecognizing(speech.Result{Reason: speech.ReasonRecognizing, Text: "hel"})
	feed(c,
		speech.Result{Reason: speech.ReasonRecognizedSpeech, Text: "untranslated"},
		speech.Result{Reason: speech.ReasonRecognizedSpeech},
		speech.Result{Reason: speech.ReasonNoMatch},
	)

	b := c.Bundle()
	if len(b.TranslatedLines) != 0 || len(b.RecognizedLines) != 0 {
		t.Errorf("expected nothing accumulated, got %+v", b)
	}
	if got := out.String(); got != "[SRC only] untranslated\n\n" {
		t.Errorf("unexpected progress output %q", got)
	}
}

func TestCollector_TranslationForOtherTargetIgnored(t *testing.T) {
	c := newTestCollector(nil, nil)

	c.OnRecognized(speech.Result{
		Reason:       speech.ReasonTranslatedSpeech,
		Text:         "hello",
		Translations: map[string]string{"fr": "bonjour"},
	})

	if n := len(c.Bundle().TranslatedLines); n != 0 {
		t.Errorf("expected no segments, got %d", n)
	}
}

func TestCollector_ProgressLines(t *testing.T) {
	var out bytes.Buffer
	c := newTestCollector(&out, nil)

	feed(c, translated("hello", "hola"))

	want := "[SRC] hello\n[ES] hola\n\n"
	if got := out.String(); got != want {
		t.Errorf("progress = %q, expected %q", got, want)
	}
}

func TestCollector_CanceledWithError(t *testing.T) {
	var out bytes.Buffer
	c := newTestCollector(&out, nil)

	feed(c, translated("hello", "hola"))
	c.OnCanceled(speech.Cancellation{
		Reason:       speech.CancellationError,
		ErrorCode:    "Unauthenticated",
		ErrorDetails: "invalid key",
	})

	select {
	case <-c.Done():
	default:
		t.Fatal("expected Done to be closed")
	}

	o := c.Outcome()
	if o.Status != StatusCanceledWithError || o.ErrorCode != "Unauthenticated" || o.ErrorDetails != "invalid key" {
		t.Errorf("unexpected outcome %+v", o)
	}
	if !strings.Contains(out.String(), "Canceled: Error\nError details: invalid key\n") {
		t.Errorf("missing cancellation diagnostics in %q", out.String())
	}
	if n := len(c.Bundle().TranslatedLines); n != 1 {
		t.Errorf("expected partial results kept, got %d", n)
	}
}

func TestCollector_CanceledEndOfStream(t *testing.T) {
	var out bytes.Buffer
	c := newTestCollector(&out, nil)

	c.OnCanceled(speech.Cancellation{Reason: speech.CancellationEndOfStream})

	if c.Outcome().Status != StatusCompleted {
		t.Errorf("expected completed, got %v", c.Outcome().Status)
	}
	if strings.Contains(out.String(), "Error details") {
		t.Errorf("unexpected error details for end of stream: %q", out.String())
	}
}

func TestCollector_FirstTerminalEventWins(t *testing.T) {
	c := newTestCollector(nil, nil)

	c.OnSessionStopped()
	c.OnCanceled(speech.Cancellation{Reason: speech.CancellationError, ErrorDetails: "late"})
	c.OnSessionStopped()

	if c.Outcome().Status != StatusCompleted {
		t.Errorf("expected first outcome to stick, got %v", c.Outcome().Status)
	}
}

func TestCollector_DropsEventsAfterCompletion(t *testing.T) {
	c := newTestCollector(nil, nil)

	feed(c, translated("a", "uno"))
	c.OnSessionStopped()
	feed(c, translated("b", "dos"))

	if got := c.Bundle().TranslatedLines; !reflect.DeepEqual(got, []string{"uno"}) {
		t.Errorf("expected late event dropped, got %v", got)
	}
}

func TestCollector_OutcomePendingBeforeCompletion(t *testing.T) {
	c := newTestCollector(nil, nil)

	if c.Outcome().Status != StatusPending {
		t.Errorf("expected pending, got %v", c.Outcome().Status)
	}
	select {
	case <-c.Done():
		t.Error("Done closed before any terminal event")
	default:
	}
}

func TestCollector_BundleIsCopy(t *testing.T) {
	c := newTestCollector(nil, nil)
	feed(c, translated("hello", "hola"))

	b := c.Bundle()
	b.TranslatedLines[0] = "mutated"

	if c.Bundle().TranslatedLines[0] != "hola" {
		t.Error("bundle mutation leaked into collector")
	}
}

func TestCollector_PublishesSegments(t *testing.T) {
	pub := &fakePublisher{}
	c := newTestCollector(nil, pub)

	feed(c, translated("hello", "hola"), translated("nope", ""), translated("world", "mundo"))

	events := pub.Events()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].SegmentID != "sess-1-seg-1" || events[1].SegmentID != "sess-1-seg-2" {
		t.Errorf("unexpected segment ids %s, %s", events[0].SegmentID, events[1].SegmentID)
	}
	if events[1].Sequence != 2 {
		t.Errorf("expected sequence 2, got %d", events[1].Sequence)
	}
	if events[0].EventType != models.EventTypeSegment || events[0].TargetLanguage != "es" {
		t.Errorf("unexpected event %+v", events[0])
	}
	if events[0].TranslatedText != "hola" || events[0].SourceText != "hello" {
		t.Errorf("unexpected payload %+v", events[0])
	}
}

func TestCollector_PublishErrorKeepsSegment(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	c := newTestCollector(nil, pub)

	feed(c, translated("hello", "hola"))

	if n := len(c.Bundle().TranslatedLines); n != 1 {
		t.Errorf("expected segment kept despite publish error, got %d", n)
	}
}

func TestCollector_Metrics(t *testing.T) {
	m := newTestMetrics()
	c := NewCollector(CollectorConfig{SessionID: "s", TargetLanguage: "es", Metrics: m})

	c.OnRecognizing(speech.Result{Reason: speech.ReasonRecognizing})
	feed(c,
		translated("a", "b"),
		translated("c", ""),
		speech.Result{Reason: speech.ReasonNoMatch},
	)

	if got := testutil.ToFloat64(m.SegmentsTranslated); got != 1 {
		t.Errorf("translated = %v", got)
	}
	if got := testutil.ToFloat64(m.SegmentsUntranslated); got != 1 {
		t.Errorf("untranslated = %v", got)
	}
	if got := testutil.ToFloat64(m.NoMatchResults); got != 1 {
		t.Errorf("no match = %v", got)
	}
	if got := testutil.ToFloat64(m.InterimResults); got != 1 {
		t.Errorf("interim = %v", got)
	}
}

func TestCollector_ConcurrentEvents(t *testing.T) {
	c := newTestCollector(nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			feed(c, translated("x", "y"))
		}()
	}
	go func() {
		time.Sleep(time.Millisecond)
		c.OnSessionStopped()
	}()
	wg.Wait()
	<-c.Done()

	b := c.Bundle()
	if len(b.TranslatedLines) != len(b.RecognizedLines) {
		t.Errorf("accumulators out of step: %d vs %d", len(b.TranslatedLines), len(b.RecognizedLines))
	}
}
