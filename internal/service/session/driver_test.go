package session

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"wav-translate/internal/service/speech"
)

// fakeRecognizer replays events on a goroutine. With hang set it never
// delivers a terminal event.
type fakeRecognizer struct {
	events   []func(cb speech.Callback)
	startErr error
	stopErr  error

	mu      sync.Mutex
	started bool
	stopped bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

func newFakeRecognizer(events ...func(cb speech.Callback)) *fakeRecognizer {
	return &fakeRecognizer{events: events, stopCh: make(chan struct{})}
}

func (f *fakeRecognizer) StartContinuousRecognition(_ context.Context, cb speech.Callback) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.mu.Lock()
	f.started = true
	f.mu.Unlock()

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		for _, ev := range f.events {
			select {
			case <-f.stopCh:
				return
			default:
			}
			ev(cb)
		}
	}()
	return nil
}

func (f *fakeRecognizer) StopContinuousRecognition() error {
	f.mu.Lock()
	if !f.stopped {
		f.stopped = true
		close(f.stopCh)
	}
	f.mu.Unlock()
	f.wg.Wait()
	return f.stopErr
}

func (f *fakeRecognizer) Close() error { return nil }

func (f *fakeRecognizer) Stopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

func recognized(src, tgt string) func(cb speech.Callback) {
	return func(cb speech.Callback) { cb.OnRecognized(translated(src, tgt)) }
}

func stopped() func(cb speech.Callback) {
	return func(cb speech.Callback) { cb.OnSessionStopped() }
}

func canceled(code, details string) func(cb speech.Callback) {
	return func(cb speech.Callback) {
		cb.OnCanceled(speech.Cancellation{Reason: speech.CancellationError, ErrorCode: code, ErrorDetails: details})
	}
}

func TestDriver_Run_Completed(t *testing.T) {
	rec := newFakeRecognizer(recognized("hello", "hola"), recognized("world", "mundo"), stopped())
	m := newTestMetrics()
	c := NewCollector(CollectorConfig{SessionID: "s", TargetLanguage: "es", Metrics: m})
	d := NewDriver(rec, c, m)

	outcome, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Status != StatusCompleted {
		t.Errorf("expected completed, got %v", outcome.Status)
	}
	if !rec.Stopped() {
		t.Error("expected recognizer to be stopped")
	}
	if d.State() != StateStopped {
		t.Errorf("expected StateStopped, got %v", d.State())
	}
	if got := c.Bundle().TranslatedLines; !reflect.DeepEqual(got, []string{"hola", "mundo"}) {
		t.Errorf("translated = %v", got)
	}
	if got := testutil.ToFloat64(m.SessionOutcomes.WithLabelValues("completed")); got != 1 {
		t.Errorf("expected completed outcome recorded, got %v", got)
	}
	if got := testutil.ToFloat64(m.SessionsActive); got != 0 {
		t.Errorf("expected no active sessions, got %v", got)
	}
}

func TestDriver_Run_CancelAfterNEvents(t *testing.T) {
	for _, n := range []int{0, 1, 3} {
		events := make([]func(cb speech.Callback), 0, n+2)
		for i := 0; i < n; i++ {
			events = append(events, recognized("src", "tgt"))
		}
		events = append(events, canceled("Unavailable", "connection reset"))
		// Never delivered: the session is already complete.
		events = append(events, recognized("late", "tarde"))

		rec := newFakeRecognizer(events...)
		c := NewCollector(CollectorConfig{SessionID: "s", TargetLanguage: "es", Metrics: newTestMetrics()})
		d := NewDriver(rec, c, newTestMetrics())

		outcome, err := d.Run(context.Background())

		var cerr *CancellationError
		if !errors.As(err, &cerr) {
			t.Fatalf("n=%d: expected *CancellationError, got %v", n, err)
		}
		if cerr.Code != "Unavailable" || cerr.Details != "connection reset" {
			t.Errorf("n=%d: unexpected cancellation %+v", n, cerr)
		}
		if outcome.Status != StatusCanceledWithError {
			t.Errorf("n=%d: expected canceled, got %v", n, outcome.Status)
		}
		if got := len(c.Bundle().TranslatedLines); got != n {
			t.Errorf("n=%d: expected %d segments, got %d", n, n, got)
		}
	}
}

func TestDriver_Run_Timeout(t *testing.T) {
	// No terminal event: the recognizer hangs.
	rec := newFakeRecognizer(recognized("hello", "hola"))
	c := NewCollector(CollectorConfig{SessionID: "s", TargetLanguage: "es", Metrics: newTestMetrics()})
	d := NewDriver(rec, c, newTestMetrics())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	outcome, err := d.Run(ctx)
	if !errors.Is(err, ErrSessionTimeout) {
		t.Fatalf("expected ErrSessionTimeout, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected error to wrap context.DeadlineExceeded, got %v", err)
	}
	if outcome.Status != StatusTimedOut {
		t.Errorf("expected timed out, got %v", outcome.Status)
	}
	if !rec.Stopped() {
		t.Error("expected recognizer to be stopped after timeout")
	}
	if got := c.Bundle().TranslatedLines; !reflect.DeepEqual(got, []string{"hola"}) {
		t.Errorf("expected partial results, got %v", got)
	}
}

func TestDriver_Run_Interrupted(t *testing.T) {
	rec := newFakeRecognizer()
	c := NewCollector(CollectorConfig{SessionID: "s", TargetLanguage: "es", Metrics: newTestMetrics()})
	d := NewDriver(rec, c, newTestMetrics())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome, err := d.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if errors.Is(err, ErrSessionTimeout) {
		t.Error("interruption must not be reported as a timeout")
	}
	if outcome.Status != StatusInterrupted {
		t.Errorf("expected interrupted, got %v", outcome.Status)
	}
}

func TestDriver_Run_StartError(t *testing.T) {
	rec := newFakeRecognizer()
	rec.startErr = errors.New("dial failed")
	c := NewCollector(CollectorConfig{SessionID: "s", TargetLanguage: "es", Metrics: newTestMetrics()})
	d := NewDriver(rec, c, newTestMetrics())

	_, err := d.Run(context.Background())
	if err == nil || !errors.Is(err, rec.startErr) {
		t.Fatalf("expected wrapped start error, got %v", err)
	}
	if d.State() != StateStopped {
		t.Errorf("expected StateStopped, got %v", d.State())
	}
}

func TestDriver_Run_StopError(t *testing.T) {
	rec := newFakeRecognizer(stopped())
	rec.stopErr = errors.New("close failed")
	c := NewCollector(CollectorConfig{SessionID: "s", TargetLanguage: "es", Metrics: newTestMetrics()})
	d := NewDriver(rec, c, newTestMetrics())

	outcome, err := d.Run(context.Background())
	if !errors.Is(err, rec.stopErr) {
		t.Fatalf("expected stop error, got %v", err)
	}
	if outcome.Status != StatusCompleted {
		t.Errorf("expected completed, got %v", outcome.Status)
	}
}

func TestDriver_Run_OnlyOnce(t *testing.T) {
	rec := newFakeRecognizer(stopped())
	c := NewCollector(CollectorConfig{SessionID: "s", TargetLanguage: "es", Metrics: newTestMetrics()})
	d := NewDriver(rec, c, newTestMetrics())

	if _, err := d.Run(context.Background()); err != nil {
		t.Fatalf("first run: unexpected error: %v", err)
	}
	if _, err := d.Run(context.Background()); !errors.Is(err, ErrStopped) {
		t.Errorf("second run: expected ErrStopped, got %v", err)
	}
}

func TestCancellationError_Message(t *testing.T) {
	tests := []struct {
		err      *CancellationError
		expected string
	}{
		{&CancellationError{Code: "Unauthenticated", Details: "bad key"}, "translation canceled (Unauthenticated): bad key"},
		{&CancellationError{Details: "bad key"}, "translation canceled: bad key"},
	}

	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.expected {
			t.Errorf("Error() = %q, expected %q", got, tt.expected)
		}
	}
}

func TestStatus_String(t *testing.T) {
	tests := []struct {
		status   Status
		expected string
	}{
		{StatusPending, "pending"},
		{StatusCompleted, "completed"},
		{StatusCanceledWithError, "canceled"},
		{StatusTimedOut, "timed_out"},
		{StatusInterrupted, "interrupted"},
		{Status(42), "unknown(42)"},
	}

	for _, tt := range tests {
		if got := tt.status.String(); got != tt.expected {
			t.Errorf("Status(%d).String() = %s, expected %s", tt.status, got, tt.expected)
		}
	}
}
