// Package speech defines the contract between the translation session and
// the speech-translation provider that does the actual recognition.
package speech

import (
	"context"
	"fmt"
	"time"
)

// ResultReason classifies a recognition result.
type ResultReason int

const (
	// ReasonRecognizing marks an interim, non-final hypothesis.
	ReasonRecognizing ResultReason = iota
	// ReasonRecognizedSpeech is a final transcript with no translation.
	ReasonRecognizedSpeech
	// ReasonTranslatedSpeech is a final transcript with translations attached.
	ReasonTranslatedSpeech
	// ReasonNoMatch means the audio segment contained no recognizable speech.
	ReasonNoMatch
)

func (r ResultReason) String() string {
	switch r {
	case ReasonRecognizing:
		return "Recognizing"
	case ReasonRecognizedSpeech:
		return "RecognizedSpeech"
	case ReasonTranslatedSpeech:
		return "TranslatedSpeech"
	case ReasonNoMatch:
		return "NoMatch"
	default:
		return fmt.Sprintf("Unknown(%d)", int(r))
	}
}

// Result is one recognition event delivered by a provider.
type Result struct {
	Reason ResultReason
	// Text is the recognized source-language text.
	Text string
	// Language is the detected (or configured) source language, if known.
	Language string
	// Translations maps target language code to translated text.
	Translations map[string]string
	// Offset is the start of the segment relative to the start of the audio.
	Offset time.Duration
	// Duration is the length of the segment, zero when the provider does not report it.
	Duration time.Duration
}

// CancellationReason tells whether a cancellation is a clean end of stream
// or an error.
type CancellationReason int

const (
	CancellationEndOfStream CancellationReason = iota
	CancellationError
)

func (r CancellationReason) String() string {
	switch r {
	case CancellationEndOfStream:
		return "EndOfStream"
	case CancellationError:
		return "Error"
	default:
		return fmt.Sprintf("Unknown(%d)", int(r))
	}
}

// Cancellation describes a terminal cancel event.
type Cancellation struct {
	Reason       CancellationReason
	ErrorCode    string
	ErrorDetails string
}

// Callback receives session lifecycle events from a Recognizer.
//
// A provider delivers zero or more OnRecognizing/OnRecognized events followed
// by exactly one OnCanceled or OnSessionStopped. Events are delivered serially
// and in stream order, usually from a goroutine owned by the provider.
type Callback interface {
	OnRecognizing(r Result)
	OnRecognized(r Result)
	OnCanceled(c Cancellation)
	OnSessionStopped()
}

// Recognizer is one continuous-recognition session over one audio input.
type Recognizer interface {
	// StartContinuousRecognition begins asynchronous delivery of events to cb.
	StartContinuousRecognition(ctx context.Context, cb Callback) error

	// StopContinuousRecognition stops the session. It is synchronous: no
	// callback runs after it returns.
	StopContinuousRecognition() error

	// Close releases provider resources.
	Close() error
}
