package analysis

import (
	"fmt"

	"github.com/careerlens/careerlens/internal/inference"
)

// Builders turn validated domain input into a gateway request. They reject
// bad input with an *InputError and truncate long texts to the policy bound.

// BuildParseCV prepares a parse-cv request.
func BuildParseCV(in ParseCVInput, policy Policy) (inference.Request[CVProfile], error) {
	lang, err := ParseLanguage(in.Language)
	if err != nil {
		return inference.Request[CVProfile]{}, err
	}
	cv, err := requireText("text", in.Text)
	if err != nil {
		return inference.Request[CVProfile]{}, err
	}
	return prepare(OpParseCV, policy, map[string]string{
		"cv_text":              clip(cv, policy),
		"language_instruction": languageInstructions[lang],
	}, cvProfileShape, cvProfileFallback(lang))
}

// BuildMatchJob prepares a match-job request.
func BuildMatchJob(in MatchJobInput, policy Policy) (inference.Request[JobMatch], error) {
	lang, err := ParseLanguage(in.Language)
	if err != nil {
		return inference.Request[JobMatch]{}, err
	}
	cv, err := requireText("cv_text", in.CVText)
	if err != nil {
		return inference.Request[JobMatch]{}, err
	}
	job, err := requireText("job_text", in.JobText)
	if err != nil {
		return inference.Request[JobMatch]{}, err
	}
	return prepare(OpMatchJob, policy, map[string]string{
		"cv_text":              clip(cv, policy),
		"job_text":             clip(job, policy),
		"language_instruction": languageInstructions[lang],
	}, jobMatchShape, jobMatchFallback(lang))
}

// BuildCoverLetter prepares a cover-letter request.
func BuildCoverLetter(in CoverLetterInput, policy Policy) (inference.Request[CoverLetter], error) {
	lang, err := ParseLanguage(in.Language)
	if err != nil {
		return inference.Request[CoverLetter]{}, err
	}
	tone, err := parseTone(in.Tone)
	if err != nil {
		return inference.Request[CoverLetter]{}, err
	}
	cv, err := requireText("cv_text", in.CVText)
	if err != nil {
		return inference.Request[CoverLetter]{}, err
	}
	job, err := requireText("job_text", in.JobText)
	if err != nil {
		return inference.Request[CoverLetter]{}, err
	}
	return prepare(OpCoverLetter, policy, map[string]string{
		"cv_text":              clip(cv, policy),
		"job_text":             clip(job, policy),
		"tone":                 tone,
		"language_instruction": languageInstructions[lang],
	}, coverLetterShape, coverLetterFallback(lang))
}

// BuildDetectProfile prepares a detect-profile request.
func BuildDetectProfile(in DetectProfileInput, policy Policy) (inference.Request[ProfileDetection], error) {
	text, err := requireText("text", in.Text)
	if err != nil {
		return inference.Request[ProfileDetection]{}, err
	}
	return prepare(OpDetectProfile, policy, map[string]string{
		"text": clip(text, policy),
	}, profileDetectionShape, profileDetectionFallback())
}

// BuildRewriteCV prepares a rewrite-cv request.
func BuildRewriteCV(in RewriteCVInput, policy Policy) (inference.Request[CVRewrite], error) {
	lang, err := ParseLanguage(in.Language)
	if err != nil {
		return inference.Request[CVRewrite]{}, err
	}
	cv, err := requireText("cv_text", in.CVText)
	if err != nil {
		return inference.Request[CVRewrite]{}, err
	}
	job, err := boundText("job_text", in.JobText, MaxTextRunes)
	if err != nil {
		return inference.Request[CVRewrite]{}, err
	}
	focus, err := boundText("focus", in.Focus, maxFocusRunes)
	if err != nil {
		return inference.Request[CVRewrite]{}, err
	}
	return prepare(OpRewriteCV, policy, map[string]string{
		"cv_text":              clip(cv, policy),
		"job_text":             clip(job, policy),
		"focus":                focus,
		"language_instruction": languageInstructions[lang],
	}, cvRewriteShape, cvRewriteFallback(lang))
}

func prepare[T any](op Operation, policy Policy, vars map[string]string, shape inference.Shape, fallback T) (inference.Request[T], error) {
	p, err := promptFor(op)
	if err != nil {
		return inference.Request[T]{}, fmt.Errorf("load prompt: %w", err)
	}
	system, user := p.Render(vars)
	temperature := policy.Temperature

	return inference.Request[T]{
		Operation:       string(op),
		System:          system,
		User:            user,
		MaxOutputTokens: policy.MaxOutputTokens,
		Temperature:     &temperature,
		Shape:           shape,
		Fallback:        fallback,
	}, nil
}

func clip(text string, policy Policy) string {
	out, _ := inference.Truncate(text, policy.MaxInputChars)
	return out
}
