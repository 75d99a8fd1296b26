// Package models defines translation results and the events published for them.
package models

// Event type names carried in the eventType field.
const (
	EventTypeSegment = "speech.translation.segment"
	EventTypeSession = "speech.translation.session"
)

// TranslationSegment is one finalized utterance with its translation.
type TranslationSegment struct {
	SourceText     string `json:"sourceText"`
	TranslatedText string `json:"translatedText"`
	SourceLanguage string `json:"sourceLanguage,omitempty"`
	AudioOffsetMs  int64  `json:"audioOffsetMs,omitempty"`
}

// ResultBundle is what a session returns to its caller. Lines are in the
// arrival order of finalization events.
type ResultBundle struct {
	TranslatedLines []string             `json:"translatedLines"`
	RecognizedLines []string             `json:"recognizedLines"`
	Segments        []TranslationSegment `json:"segments"`
}

// NewResultBundle builds a bundle from segments in order.
func NewResultBundle(segments []TranslationSegment) ResultBundle {
	b := ResultBundle{
		TranslatedLines: make([]string, 0, len(segments)),
		RecognizedLines: make([]string, 0, len(segments)),
		Segments:        make([]TranslationSegment, 0, len(segments)),
	}
	for _, s := range segments {
		b.TranslatedLines = append(b.TranslatedLines, s.TranslatedText)
		b.RecognizedLines = append(b.RecognizedLines, s.SourceText)
		b.Segments = append(b.Segments, s)
	}
	return b
}

// TranslationSegmentEvent is published once per collected segment.
type TranslationSegmentEvent struct {
	EventType      string `json:"eventType"`
	SessionID      string `json:"sessionId"`
	SegmentID      string `json:"segmentId"`
	Sequence       int    `json:"sequence"`
	SourceLanguage string `json:"sourceLanguage,omitempty"`
	TargetLanguage string `json:"targetLanguage"`
	SourceText     string `json:"sourceText"`
	TranslatedText string `json:"translatedText"`
	AudioOffsetMs  int64  `json:"audioOffsetMs"`
	Timestamp      int64  `json:"timestamp"`
}

// SessionOutcomeEvent is published once when a session ends.
type SessionOutcomeEvent struct {
	EventType      string `json:"eventType"`
	SessionID      string `json:"sessionId"`
	AudioPath      string `json:"audioPath"`
	TargetLanguage string `json:"targetLanguage"`
	Status         string `json:"status"`
	ErrorCode      string `json:"errorCode,omitempty"`
	ErrorDetails   string `json:"errorDetails,omitempty"`
	Segments       int    `json:"segments"`
	DurationMs     int64  `json:"durationMs"`
	Timestamp      int64  `json:"timestamp"`
}
