package analysis

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxTextRunes rejects texts too large to be worth truncating.
const MaxTextRunes = 100_000

// maxFocusRunes bounds short free-form steering fields.
const maxFocusRunes = 500

// Language selects the output language of generated text.
type Language string

const (
	English Language = "en"
	French  Language = "fr"
)

// InputError reports a caller mistake detected before any provider call.
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// IsInputError reports whether err is or wraps an *InputError.
func IsInputError(err error) bool {
	var inputErr *InputError
	return errors.As(err, &inputErr)
}

// ParseLanguage maps "" to English and rejects unsupported languages.
func ParseLanguage(value string) (Language, error) {
	switch lang := Language(strings.ToLower(strings.TrimSpace(value))); lang {
	case "":
		return English, nil
	case English, French:
		return lang, nil
	default:
		return "", &InputError{Field: "language", Reason: fmt.Sprintf("unsupported language %q (use en or fr)", value)}
	}
}

// Tones accepted for cover letters.
var Tones = []string{"professional", "enthusiastic", "concise"}

// ParseCVInput is the input of parse-cv.
type ParseCVInput struct {
	Text     string `json:"text"`
	Language string `json:"language,omitempty"`
}

// MatchJobInput is the input of match-job.
type MatchJobInput struct {
	CVText   string `json:"cv_text"`
	JobText  string `json:"job_text"`
	Language string `json:"language,omitempty"`
}

// CoverLetterInput is the input of cover-letter.
type CoverLetterInput struct {
	CVText   string `json:"cv_text"`
	JobText  string `json:"job_text"`
	Tone     string `json:"tone,omitempty"`
	Language string `json:"language,omitempty"`
}

// DetectProfileInput is the input of detect-profile.
type DetectProfileInput struct {
	Text string `json:"text"`
}

// RewriteCVInput is the input of rewrite-cv. JobText is optional.
type RewriteCVInput struct {
	CVText   string `json:"cv_text"`
	JobText  string `json:"job_text,omitempty"`
	Focus    string `json:"focus,omitempty"`
	Language string `json:"language,omitempty"`
}

func requireText(field, value string) (string, error) {
	text := strings.TrimSpace(value)
	if text == "" {
		return "", &InputError{Field: field, Reason: "is required"}
	}
	return boundText(field, text, MaxTextRunes)
}

func boundText(field, value string, max int) (string, error) {
	if n := utf8.RuneCountInString(value); n > max {
		return "", &InputError{Field: field, Reason: fmt.Sprintf("is too long (%d characters, max %d)", n, max)}
	}
	return value, nil
}

func parseTone(value string) (string, error) {
	tone := strings.ToLower(strings.TrimSpace(value))
	if tone == "" {
		return Tones[0], nil
	}
	for _, known := range Tones {
		if tone == known {
			return tone, nil
		}
	}
	return "", &InputError{Field: "tone", Reason: fmt.Sprintf("unsupported tone %q (use %s)", value, strings.Join(Tones, ", "))}
}
