// Package mock provides a scripted speech.Recognizer for tests and offline
// runs without cloud credentials. It simulates progressive interim results,
// one final result per utterance, and a terminal event.
package mock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"wav-translate/internal/observability/logging"
	"wav-translate/internal/service/audio"
	"wav-translate/internal/service/speech"
)

// ErrAlreadyStarted is returned when recognition is started twice.
var ErrAlreadyStarted = errors.New("recognition already started")

// Utterance is one simulated utterance.
type Utterance struct {
	Partials    []string // progressive interim hypotheses
	Final       string   // final transcript, empty for no match
	Translation string   // empty delivers a final with no translation
	Language    string
	SourceOnly  bool // deliver RecognizedSpeech instead of TranslatedSpeech
}

// Script drives a mock session.
type Script struct {
	Target     string
	Utterances []Utterance
	// Delay is the pause before each delivered event.
	Delay time.Duration
	// Cancel, when set, is delivered instead of the session-stopped event.
	Cancel *speech.Cancellation
	// Hang suppresses the terminal event entirely.
	Hang bool
}

type phrase struct {
	partials []string
	text     string
}

var phrases = []phrase{
	{[]string{"Good", "Good morning"}, "Good morning everyone"},
	{[]string{"Thank", "Thank you for"}, "Thank you for coming today"},
	{[]string{"Let's", "Let's begin"}, "Let's begin the meeting"},
}

// dictionary maps a target language prefix to translations of phrases.
var dictionary = map[string][]string{
	"es": {"Buenos días a todos", "Gracias por venir hoy", "Comencemos la reunión"},
	"fr": {"Bonjour à tous", "Merci d'être venus aujourd'hui", "Commençons la réunion"},
	"de": {"Guten Morgen zusammen", "Danke, dass Sie heute gekommen sind", "Lassen Sie uns das Meeting beginnen"},
	"hi": {"सभी को सुप्रभात", "आज आने के लिए धन्यवाद", "चलिए बैठक शुरू करते हैं"},
}

// DefaultScript returns a short English session translated into target.
// Targets missing from the dictionary get a bracketed pseudo translation.
func DefaultScript(target string) Script {
	key := strings.ToLower(target)
	if i := strings.IndexAny(key, "-_"); i > 0 {
		key = key[:i]
	}
	translations := dictionary[key]

	s := Script{Target: target, Delay: 50 * time.Millisecond}
	for i, p := range phrases {
		tr := fmt.Sprintf("[%s] %s", target, p.text)
		if translations != nil {
			tr = translations[i]
		}
		s.Utterances = append(s.Utterances, Utterance{
			Partials:    p.partials,
			Final:       p.text,
			Translation: tr,
			Language:    "en-US",
		})
	}
	return s
}

// Recognizer replays a Script on a background goroutine.
type Recognizer struct {
	script    Script
	audioPath string
	logger    zerolog.Logger

	mu       sync.Mutex
	started  bool
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

var _ speech.Recognizer = (*Recognizer)(nil)

// New creates a mock recognizer. When audioPath is set the file header is
// parsed on start so malformed input still fails.
func New(script Script, audioPath string) *Recognizer {
	return &Recognizer{
		script:    script,
		audioPath: audioPath,
		logger:    logging.WithProvider("", "mock"),
		stopCh:    make(chan struct{}),
	}
}

// StartContinuousRecognition begins replaying the script.
func (r *Recognizer) StartContinuousRecognition(ctx context.Context, cb speech.Callback) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return ErrAlreadyStarted
	}

	if r.audioPath != "" {
		src, err := audio.Open(r.audioPath)
		if err != nil {
			return err
		}
		r.logger.Debug().
			Bool("wav", src.IsWAV).
			Uint32("sampleRate", src.Format.SampleRate).
			Uint16("channels", src.Format.Channels).
			Msg("Mock recognizer opened audio")
		src.Close()
	}

	r.started = true
	r.wg.Add(1)
	go r.run(cb)
	return nil
}

func (r *Recognizer) run(cb speech.Callback) {
	defer r.wg.Done()

	var offset time.Duration
	for _, u := range r.script.Utterances {
		for _, p := range u.Partials {
			if !r.wait() {
				return
			}
			cb.OnRecognizing(speech.Result{Reason: speech.ReasonRecognizing, Text: p, Language: u.Language, Offset: offset})
		}
		if !r.wait() {
			return
		}
		cb.OnRecognized(r.finalResult(u, offset))
		offset += time.Second
	}

	if r.script.Hang {
		r.logger.Debug().Msg("Mock recognizer hanging until stopped")
		<-r.stopCh
		return
	}
	if !r.wait() {
		return
	}
	if r.script.Cancel != nil {
		cb.OnCanceled(*r.script.Cancel)
		return
	}
	cb.OnSessionStopped()
}

func (r *Recognizer) finalResult(u Utterance, offset time.Duration) speech.Result {
	res := speech.Result{Text: u.Final, Language: u.Language, Offset: offset, Duration: time.Second}
	switch {
	case u.Final == "":
		res.Reason = speech.ReasonNoMatch
	case u.SourceOnly:
		res.Reason = speech.ReasonRecognizedSpeech
	default:
		res.Reason = speech.ReasonTranslatedSpeech
		res.Translations = map[string]string{}
		if u.Translation != "" {
			res.Translations[r.script.Target] = u.Translation
		}
	}
	return res
}

// wait pauses for the script delay. It returns false once stopped.
func (r *Recognizer) wait() bool {
	if r.script.Delay > 0 {
		t := time.NewTimer(r.script.Delay)
		defer t.Stop()
		select {
		case <-r.stopCh:
			return false
		case <-t.C:
		}
	}
	select {
	case <-r.stopCh:
		return false
	default:
		return true
	}
}

// StopContinuousRecognition stops replay and waits for the goroutine.
func (r *Recognizer) StopContinuousRecognition() error {
	r.stopOnce.Do(func() { close(r.stopCh) })
	r.wg.Wait()
	return nil
}

// Close is a no-op.
func (r *Recognizer) Close() error {
	return nil
}
