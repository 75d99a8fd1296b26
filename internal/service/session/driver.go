package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"wav-translate/internal/observability/logging"
	"wav-translate/internal/observability/metrics"
	"wav-translate/internal/service/speech"
)

// ErrSessionTimeout is returned when the session deadline passes before the
// provider signals completion.
var ErrSessionTimeout = errors.New("translation session timed out")

// Status tags how a session ended.
type Status int

const (
	StatusPending Status = iota
	StatusCompleted
	StatusCanceledWithError
	StatusTimedOut
	// StatusInterrupted means the caller canceled the context.
	StatusInterrupted
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusCompleted:
		return "completed"
	case StatusCanceledWithError:
		return "canceled"
	case StatusTimedOut:
		return "timed_out"
	case StatusInterrupted:
		return "interrupted"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Outcome is the terminal result of a session.
type Outcome struct {
	Status       Status
	ErrorCode    string
	ErrorDetails string
}

// CancellationError is returned when the provider cancels the session with an error.
type CancellationError struct {
	Code    string
	Details string
}

func (e *CancellationError) Error() string {
	if e.Code == "" {
		return "translation canceled: " + e.Details
	}
	return fmt.Sprintf("translation canceled (%s): %s", e.Code, e.Details)
}

// Driver runs one recognition session to completion.
type Driver struct {
	recognizer speech.Recognizer
	collector  *Collector
	lifecycle  *Lifecycle
	metrics    *metrics.Metrics
	logger     zerolog.Logger
}

// NewDriver creates a driver for rec, delivering events to c.
func NewDriver(rec speech.Recognizer, c *Collector, m *metrics.Metrics) *Driver {
	if m == nil {
		m = metrics.DefaultMetrics
	}
	lc := NewLifecycle(c.sessionId)
	return &Driver{
		recognizer: rec,
		collector:  c,
		lifecycle:  lc,
		metrics:    m,
		logger:     logging.WithSession(lc.SessionId(), c.target).With().Str("component", "driver").Logger(),
	}
}

// State returns the current lifecycle state.
func (d *Driver) State() State {
	return d.lifecycle.State()
}

// Run starts recognition and blocks until the collector observes a terminal
// event or ctx is done, then stops the session. Collected segments remain
// readable from the collector whatever the outcome.
func (d *Driver) Run(ctx context.Context) (Outcome, error) {
	if err := d.lifecycle.Start(); err != nil {
		return Outcome{}, err
	}

	start := time.Now()
	d.metrics.RecordSessionStart()

	if err := d.recognizer.StartContinuousRecognition(ctx, d.collector); err != nil {
		d.lifecycle.Stop()
		d.metrics.RecordSessionEnd("failed", time.Since(start).Seconds())
		return Outcome{}, fmt.Errorf("start recognition: %w", err)
	}
	d.logger.Info().Msg("Recognition started")

	select {
	case <-d.collector.Done():
	case <-ctx.Done():
		status := StatusInterrupted
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			status = StatusTimedOut
		}
		d.logger.Warn().Err(ctx.Err()).Msg("Session did not complete before context ended")
		d.collector.finish(Outcome{Status: status, ErrorDetails: ctx.Err().Error()})
	}

	if err := d.lifecycle.BeginStop(); err != nil {
		d.logger.Warn().Err(err).Msg("Unexpected lifecycle state")
	}
	stopErr := d.recognizer.StopContinuousRecognition()
	d.lifecycle.Stop()

	outcome := d.collector.Outcome()
	elapsed := time.Since(start)
	d.metrics.RecordSessionEnd(outcome.Status.String(), elapsed.Seconds())

	d.logger.Info().
		Str("status", outcome.Status.String()).
		Dur("elapsed", elapsed).
		Msg("Session stopped")

	var err error
	switch outcome.Status {
	case StatusCanceledWithError:
		err = &CancellationError{Code: outcome.ErrorCode, Details: outcome.ErrorDetails}
	case StatusTimedOut:
		err = fmt.Errorf("%w after %s: %w", ErrSessionTimeout, elapsed.Round(time.Millisecond), context.DeadlineExceeded)
	case StatusInterrupted:
		err = fmt.Errorf("translation interrupted: %w", context.Canceled)
	}

	if stopErr != nil {
		if err != nil {
			d.logger.Error().Err(stopErr).Msg("Failed to stop recognition")
		} else {
			err = fmt.Errorf("stop recognition: %w", stopErr)
		}
	}
	return outcome, err
}
