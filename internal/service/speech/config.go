package speech

import "errors"

// DefaultCandidateLanguages is offered for source-language detection when
// neither a fixed source nor a custom candidate list is given.
var DefaultCandidateLanguages = []string{"en-US", "hi-IN", "mr-IN", "gu-IN", "ta-IN", "te-IN", "bn-IN"}

// ErrMissingTargetLanguage is returned when no target language is supplied.
var ErrMissingTargetLanguage = errors.New("target language is required")

// Credentials are the two collaborator settings read from the environment.
type Credentials struct {
	Key    string
	Region string
}

// SessionConfig configures one translation session.
//
// Exactly one target language is registered. When SourceLanguage is empty,
// CandidateSourceLanguages is non-empty and the provider auto-detects the
// source among them.
type SessionConfig struct {
	TargetLanguage           string
	SourceLanguage           string
	CandidateSourceLanguages []string
	AudioPath                string
}

// AutoDetect reports whether the source language is detected by the provider.
func (c SessionConfig) AutoDetect() bool {
	return c.SourceLanguage == ""
}

// TargetLanguages returns the registered target set, which always has one entry.
func (c SessionConfig) TargetLanguages() []string {
	return []string{c.TargetLanguage}
}

// NewSessionConfig builds a SessionConfig. Language codes are not validated;
// malformed codes are surfaced by the provider.
func NewSessionConfig(target, source string, candidates []string, audioPath string) (SessionConfig, error) {
	if target == "" {
		return SessionConfig{}, ErrMissingTargetLanguage
	}

	cfg := SessionConfig{
		TargetLanguage: target,
		SourceLanguage: source,
		AudioPath:      audioPath,
	}
	if source == "" {
		if len(candidates) == 0 {
			candidates = DefaultCandidateLanguages
		}
		cfg.CandidateSourceLanguages = append([]string(nil), candidates...)
	}
	return cfg, nil
}
