// Package app wires configuration, the speech provider, the session driver
// and the output writer into one translation run.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"wav-translate/internal/config"
	"wav-translate/internal/input"
	"wav-translate/internal/models"
	"wav-translate/internal/observability/logging"
	"wav-translate/internal/observability/metrics"
	"wav-translate/internal/output"
	"wav-translate/internal/service/session"
	"wav-translate/internal/service/speech"
	"wav-translate/internal/service/speech/google"
	"wav-translate/internal/service/speech/mock"
)

// ErrUnknownProvider is returned for an unsupported STT_PROVIDER value.
var ErrUnknownProvider = errors.New("unknown speech provider")

const publishTimeout = 5 * time.Second

// Publisher publishes segment and session events.
type Publisher interface {
	PublishSegment(ctx context.Context, key string, event any) error
	PublishSession(ctx context.Context, key string, event any) error
}

// RecognizerFactory creates the recognizer for one session.
type RecognizerFactory func(ctx context.Context, sessionId string, cfg speech.SessionConfig) (speech.Recognizer, error)

// Request is one translation job.
type Request struct {
	AudioPath      string
	TargetLanguage string
	SourceLanguage string        // empty auto-detects
	Candidates     []string      // nil uses the configured candidates
	OutPath        string        // empty skips the file
	Timeout        time.Duration // 0 uses the configured timeout
}

// Status is a snapshot of the current or last session.
type Status struct {
	SessionID      string    `json:"sessionId,omitempty"`
	State          string    `json:"state"`
	AudioPath      string    `json:"audioPath,omitempty"`
	TargetLanguage string    `json:"targetLanguage,omitempty"`
	Outcome        string    `json:"outcome,omitempty"`
	Segments       int       `json:"segments"`
	StartedAt      time.Time `json:"startedAt,omitempty"`
}

// Application holds process-wide state for the tool.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Configuration
	Metrics     *metrics.Metrics
	Publisher   Publisher
	// Progress receives the user-facing progress lines.
	Progress io.Writer

	newRecognizer RecognizerFactory

	mu     sync.RWMutex
	status Status
}

// Option configures an Application.
type Option func(*Application)

func WithPublisher(p Publisher) Option {
	return func(a *Application) { a.Publisher = p }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Application) { a.Metrics = m }
}

func WithProgress(w io.Writer) Option {
	return func(a *Application) { a.Progress = w }
}

// WithRecognizerFactory overrides provider selection.
func WithRecognizerFactory(f RecognizerFactory) Option {
	return func(a *Application) { a.newRecognizer = f }
}

// New constructs a new Application from the provided configuration.
func New(cfg *config.Configuration, opts ...Option) *Application {
	a := &Application{
		StartupTime: time.Now().UTC(),
		Cfg:         cfg,
		Metrics:     metrics.DefaultMetrics,
		Progress:    os.Stdout,
		Logger:      logging.WithComponent("application"),
		status:      Status{State: "idle"},
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.newRecognizer == nil {
		a.newRecognizer = a.defaultRecognizer
	}

	a.Logger.Debug().
		Str("sttProvider", cfg.STT.Provider).
		Bool("kafka", cfg.Kafka.Enabled).
		Msg("Application created")
	return a
}

// defaultRecognizer selects the provider named by STT_PROVIDER.
func (a *Application) defaultRecognizer(ctx context.Context, sessionId string, sc speech.SessionConfig) (speech.Recognizer, error) {
	switch strings.ToLower(a.Cfg.STT.Provider) {
	case "mock":
		return mock.New(mock.DefaultScript(sc.TargetLanguage), sc.AudioPath), nil
	case "google", "":
		return google.New(ctx,
			google.Config{
				AudioEncoding:     a.Cfg.STT.AudioEncoding,
				SampleRateHz:      a.Cfg.STT.SampleRateHz,
				InterimResults:    a.Cfg.STT.InterimResults,
				ChunkBytes:        a.Cfg.STT.ChunkBytes,
				TranslationModel:  a.Cfg.Translation.Model,
				MaxStreamDuration: a.Cfg.STT.MaxStreamDuration,
			},
			speech.Credentials{Key: a.Cfg.Speech.Key, Region: a.Cfg.Speech.Region},
			sc,
			google.WithMetrics(a.Metrics),
			google.WithSessionID(sessionId),
		)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, a.Cfg.STT.Provider)
	}
}

// Translate validates the request, runs one session and writes the output.
// The bundle holds whatever was collected, also when an error is returned.
func (a *Application) Translate(ctx context.Context, req Request) (models.ResultBundle, error) {
	empty := models.NewResultBundle(nil)

	if err := input.Validate(req.AudioPath,
		input.Setting{Name: config.EnvSpeechKey, Value: a.Cfg.Speech.Key},
		input.Setting{Name: config.EnvSpeechRegion, Value: a.Cfg.Speech.Region},
	); err != nil {
		return empty, err
	}

	candidates := req.Candidates
	if candidates == nil {
		candidates = a.Cfg.Translation.CandidateLanguages
	}
	sc, err := speech.NewSessionConfig(req.TargetLanguage, req.SourceLanguage, candidates, req.AudioPath)
	if err != nil {
		return empty, err
	}

	sessionId := uuid.NewString()
	logger := logging.WithSession(sessionId, sc.TargetLanguage)
	logger.Info().
		Str("audioPath", sc.AudioPath).
		Str("sourceLanguage", sc.SourceLanguage).
		Strs("candidates", sc.CandidateSourceLanguages).
		Msg("Session configured")

	rec, err := a.newRecognizer(ctx, sessionId, sc)
	if err != nil {
		return empty, fmt.Errorf("create recognizer: %w", err)
	}
	defer func() {
		if err := rec.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close recognizer")
		}
	}()

	collector := session.NewCollector(session.CollectorConfig{
		SessionID:      sessionId,
		TargetLanguage: sc.TargetLanguage,
		Progress:       a.Progress,
		Publisher:      a.Publisher,
		Metrics:        a.Metrics,
	})
	driver := session.NewDriver(rec, collector, a.Metrics)

	timeout := req.Timeout
	if timeout == 0 {
		timeout = a.Cfg.Translation.Timeout
	}
	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	started := time.Now()
	a.setStatus(Status{
		SessionID:      sessionId,
		State:          "running",
		AudioPath:      sc.AudioPath,
		TargetLanguage: sc.TargetLanguage,
		StartedAt:      started.UTC(),
	})

	fmt.Fprintln(a.Progress, "Starting translation...")
	outcome, runErr := driver.Run(runCtx)
	bundle := collector.Bundle()

	a.setStatus(Status{
		SessionID:      sessionId,
		State:          strings.ToLower(driver.State().String()),
		AudioPath:      sc.AudioPath,
		TargetLanguage: sc.TargetLanguage,
		Outcome:        outcome.Status.String(),
		Segments:       len(bundle.TranslatedLines),
		StartedAt:      started.UTC(),
	})

	if outcome.Status == session.StatusPending {
		// Recognition never started; nothing to publish or write.
		return bundle, runErr
	}

	a.publishOutcome(sessionId, sc, outcome, len(bundle.TranslatedLines), time.Since(started))

	if req.OutPath != "" {
		if err := output.WriteText(req.OutPath, bundle.TranslatedLines); err != nil {
			if runErr != nil {
				logger.Error().Err(runErr).Msg("Session failed")
			}
			return bundle, fmt.Errorf("write output: %w", err)
		}
		fmt.Fprintf(a.Progress, "\nSaved translated text → %s\n", req.OutPath)
	}

	return bundle, runErr
}

func (a *Application) publishOutcome(sessionId string, sc speech.SessionConfig, o session.Outcome, segments int, elapsed time.Duration) {
	if a.Publisher == nil {
		return
	}
	ev := models.SessionOutcomeEvent{
		EventType:      models.EventTypeSession,
		SessionID:      sessionId,
		AudioPath:      sc.AudioPath,
		TargetLanguage: sc.TargetLanguage,
		Status:         o.Status.String(),
		ErrorCode:      o.ErrorCode,
		ErrorDetails:   o.ErrorDetails,
		Segments:       segments,
		DurationMs:     elapsed.Milliseconds(),
		Timestamp:      time.Now().UnixMilli(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := a.Publisher.PublishSession(ctx, sessionId, ev); err != nil {
		a.Logger.Error().Err(err).Str("sessionId", sessionId).Msg("Failed to publish session outcome")
	}
}

func (a *Application) setStatus(s Status) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.status = s
}

// Status returns the current or last session status.
func (a *Application) Status() Status {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.status
}

// Shutdown closes the publisher, if it holds resources, before process exit.
func (a *Application) Shutdown() error {
	a.Logger.Debug().
		Dur("uptime", time.Since(a.StartupTime)).
		Msg("Application shutting down")

	if c, ok := a.Publisher.(io.Closer); ok {
		if err := c.Close(); err != nil {
			return fmt.Errorf("close publisher: %w", err)
		}
	}
	return nil
}
