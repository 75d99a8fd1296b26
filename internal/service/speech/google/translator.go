package google

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"wav-translate/internal/observability/metrics"
)

// DefaultTranslationModel is used when no model is configured.
const DefaultTranslationModel = "gemini-2.0-flash"

const translationInstruction = "You are a speech translation engine. Translate the user's utterance " +
	"into the requested target language. Reply with the translation only: no quotes, no notes, " +
	"no transliteration. If the utterance is already in the target language, repeat it unchanged."

// ErrEmptyTranslation is returned when the model produced no text.
var ErrEmptyTranslation = errors.New("empty translation")

// Translator translates one finalized utterance.
type Translator interface {
	Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error)
}

// GeminiTranslator translates utterances with a Gemini model.
type GeminiTranslator struct {
	client  *genai.Client
	model   string
	metrics *metrics.Metrics
}

// NewGeminiTranslator creates a Gemini client authenticated with apiKey.
func NewGeminiTranslator(ctx context.Context, apiKey, model string, m *metrics.Metrics) (*GeminiTranslator, error) {
	if apiKey == "" {
		return nil, errors.New("gemini API key is required")
	}
	if model == "" {
		model = DefaultTranslationModel
	}
	if m == nil {
		m = metrics.DefaultMetrics
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiTranslator{client: client, model: model, metrics: m}, nil
}

// Translate returns text translated into targetLang. sourceLang may be empty.
func (g *GeminiTranslator) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	start := time.Now()

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(translationInstruction, genai.RoleUser),
		Temperature:       genai.Ptr[float32](0),
	}
	contents := []*genai.Content{
		genai.NewContentFromText(translationPrompt(text, sourceLang, targetLang), genai.RoleUser),
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		g.metrics.RecordTranslation(err, time.Since(start).Seconds())
		return "", fmt.Errorf("generate translation: %w", err)
	}

	out := responseText(resp)
	if out == "" {
		g.metrics.RecordTranslation(ErrEmptyTranslation, time.Since(start).Seconds())
		return "", ErrEmptyTranslation
	}

	g.metrics.RecordTranslation(nil, time.Since(start).Seconds())
	return out, nil
}

func translationPrompt(text, sourceLang, targetLang string) string {
	var b strings.Builder
	if sourceLang != "" {
		fmt.Fprintf(&b, "Source language: %s\n", sourceLang)
	}
	fmt.Fprintf(&b, "Target language: %s\n", targetLang)
	fmt.Fprintf(&b, "Utterance:\n%s", text)
	return b.String()
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			b.WriteString(part.Text)
		}
	}
	return strings.TrimSpace(b.String())
}
