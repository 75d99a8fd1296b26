// Package schema checks outgoing events before they are published.
package schema

import (
	"errors"
	"fmt"
	"strings"

	"wav-translate/internal/models"
)

// ErrUnsupportedEvent is returned for event types the validator does not know.
var ErrUnsupportedEvent = errors.New("unsupported event type")

// Validator checks required fields on published events.
type Validator struct{}

func New() *Validator {
	return &Validator{}
}

// Validate returns an error naming every missing required field.
func (v *Validator) Validate(event any) error {
	var missing []string
	require := func(name, value string) {
		if value == "" {
			missing = append(missing, name)
		}
	}

	switch ev := event.(type) {
	case models.TranslationSegmentEvent:
		if ev.EventType != models.EventTypeSegment {
			return fmt.Errorf("segment event has eventType %q", ev.EventType)
		}
		require("sessionId", ev.SessionID)
		require("segmentId", ev.SegmentID)
		require("targetLanguage", ev.TargetLanguage)
		require("translatedText", ev.TranslatedText)
	case *models.TranslationSegmentEvent:
		if ev == nil {
			return fmt.Errorf("%w: nil %T", ErrUnsupportedEvent, event)
		}
		return v.Validate(*ev)
	case models.SessionOutcomeEvent:
		if ev.EventType != models.EventTypeSession {
			return fmt.Errorf("session event has eventType %q", ev.EventType)
		}
		require("sessionId", ev.SessionID)
		require("targetLanguage", ev.TargetLanguage)
		require("status", ev.Status)
	case *models.SessionOutcomeEvent:
		if ev == nil {
			return fmt.Errorf("%w: nil %T", ErrUnsupportedEvent, event)
		}
		return v.Validate(*ev)
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedEvent, event)
	}

	if len(missing) > 0 {
		return fmt.Errorf("event missing required fields: %s", strings.Join(missing, ", "))
	}
	return nil
}
