package schema

import (
	"errors"
	"strings"
	"testing"

	"wav-translate/internal/models"
)

func validSegment() models.TranslationSegmentEvent {
	return models.TranslationSegmentEvent{
		EventType:      models.EventTypeSegment,
		SessionID:      "sess-1",
		SegmentID:      "sess-1-seg-1",
		TargetLanguage: "es",
		SourceText:     "hello",
		TranslatedText: "hola",
	}
}

func TestValidate_SegmentEvent(t *testing.T) {
	v := New()

	if err := v.Validate(validSegment()); err != nil {
		t.Errorf("expected valid event, got %v", err)
	}
	ev := validSegment()
	if err := v.Validate(&ev); err != nil {
		t.Errorf("expected valid pointer event, got %v", err)
	}
}

func TestValidate_SegmentEvent_MissingFields(t *testing.T) {
	ev := validSegment()
	ev.SessionID = ""
	ev.TranslatedText = ""

	err := New().Validate(ev)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "sessionId") || !strings.Contains(err.Error(), "translatedText") {
		t.Errorf("error should name missing fields, got %v", err)
	}
}

func TestValidate_SegmentEvent_WrongType(t *testing.T) {
	ev := validSegment()
	ev.EventType = models.EventTypeSession

	if err := New().Validate(ev); err == nil {
		t.Error("expected error for mismatched eventType")
	}
}

func TestValidate_SessionEvent(t *testing.T) {
	ev := models.SessionOutcomeEvent{
		EventType:      models.EventTypeSession,
		SessionID:      "sess-1",
		TargetLanguage: "es",
		Status:         "completed",
	}
	if err := New().Validate(ev); err != nil {
		t.Errorf("expected valid event, got %v", err)
	}

	ev.Status = ""
	if err := New().Validate(ev); err == nil {
		t.Error("expected error for missing status")
	}
}

func TestValidate_Unsupported(t *testing.T) {
	tests := []struct {
		name  string
		event any
	}{
		{"map", map[string]string{"text": "x"}},
		{"channel", make(chan int)},
		{"nil segment pointer", (*models.TranslationSegmentEvent)(nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New().Validate(tt.event)
			if !errors.Is(err, ErrUnsupportedEvent) {
				t.Errorf("expected ErrUnsupportedEvent, got %v", err)
			}
		})
	}
}
