package analysis

import "github.com/careerlens/careerlens/internal/inference"

// Experience is one position held.
type Experience struct {
	Title      string   `json:"title"`
	Company    string   `json:"company"`
	Start      string   `json:"start"`
	End        string   `json:"end"`
	Highlights []string `json:"highlights"`
}

// Education is one degree or certification.
type Education struct {
	Degree      string `json:"degree"`
	Institution string `json:"institution"`
	Year        string `json:"year"`
}

// CVProfile is the structured reading of a CV.
type CVProfile struct {
	FullName        string       `json:"full_name"`
	Headline        string       `json:"headline"`
	Summary         string       `json:"summary"`
	YearsExperience float64      `json:"years_experience"`
	Skills          []string     `json:"skills"`
	Experience      []Experience `json:"experience"`
	Education       []Education  `json:"education"`
	Languages       []string     `json:"languages"`
}

// JobMatch scores a CV against a job description (0-100).
type JobMatch struct {
	Score           float64  `json:"score"`
	Verdict         string   `json:"verdict"`
	Summary         string   `json:"summary"`
	MatchedSkills   []string `json:"matched_skills"`
	MissingSkills   []string `json:"missing_skills"`
	Strengths       []string `json:"strengths"`
	Recommendations []string `json:"recommendations"`
}

// CoverLetter is a generated letter.
type CoverLetter struct {
	Subject    string   `json:"subject"`
	Body       string   `json:"body"`
	Highlights []string `json:"highlights"`
}

// ProfileDetection classifies a pasted text.
type ProfileDetection struct {
	// Kind is one of cv, job_description, other or unknown.
	Kind       string  `json:"kind"`
	Confidence float64 `json:"confidence"`
	Language   string  `json:"language"`
	Reason     string  `json:"reason"`
}

// RewriteSection is one rewritten CV section.
type RewriteSection struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// CVRewrite is an improved CV with the list of edits made.
type CVRewrite struct {
	Summary  string           `json:"summary"`
	Sections []RewriteSection `json:"sections"`
	Changes  []string         `json:"changes"`
}

var (
	cvProfileShape = inference.Shape{
		"full_name":        inference.KindString,
		"summary":          inference.KindString,
		"years_experience": inference.KindNumber,
		"skills":           inference.KindArray,
		"experience":       inference.KindArray,
		"education":        inference.KindArray,
	}
	jobMatchShape = inference.Shape{
		"score":           inference.KindNumber,
		"verdict":         inference.KindString,
		"summary":         inference.KindString,
		"matched_skills":  inference.KindArray,
		"missing_skills":  inference.KindArray,
		"recommendations": inference.KindArray,
	}
	coverLetterShape = inference.Shape{
		"subject": inference.KindString,
		"body":    inference.KindString,
	}
	profileDetectionShape = inference.Shape{
		"kind":       inference.KindString,
		"confidence": inference.KindNumber,
	}
	cvRewriteShape = inference.Shape{
		"summary":  inference.KindString,
		"sections": inference.KindArray,
		"changes":  inference.KindArray,
	}
)

// Shapes returns the declared result shape of every operation.
func Shapes() map[Operation]inference.Shape {
	return map[Operation]inference.Shape{
		OpParseCV:       cvProfileShape,
		OpMatchJob:      jobMatchShape,
		OpCoverLetter:   coverLetterShape,
		OpDetectProfile: profileDetectionShape,
		OpRewriteCV:     cvRewriteShape,
	}
}

var unavailable = map[Language]string{
	English: "The analysis is temporarily unavailable. Please try again in a few minutes.",
	French:  "L'analyse est temporairement indisponible. Veuillez réessayer dans quelques minutes.",
}

func cvProfileFallback(lang Language) CVProfile {
	return CVProfile{
		Summary:    unavailable[lang],
		Skills:     []string{},
		Experience: []Experience{},
		Education:  []Education{},
		Languages:  []string{},
	}
}

func jobMatchFallback(lang Language) JobMatch {
	return JobMatch{
		Verdict:         "unavailable",
		Summary:         unavailable[lang],
		MatchedSkills:   []string{},
		MissingSkills:   []string{},
		Strengths:       []string{},
		Recommendations: []string{},
	}
}

func coverLetterFallback(lang Language) CoverLetter {
	return CoverLetter{Body: unavailable[lang], Highlights: []string{}}
}

func profileDetectionFallback() ProfileDetection {
	return ProfileDetection{Kind: "unknown"}
}

func cvRewriteFallback(lang Language) CVRewrite {
	return CVRewrite{Summary: unavailable[lang], Sections: []RewriteSection{}, Changes: []string{}}
}
