package models

import "time"

// SlideIssue is one problem the vision analyzer found on a rendered slide.
type SlideIssue struct {
	Kind        string `json:"kind"`
	Description string `json:"description"`
	ElementID   string `json:"element_id,omitempty"`
}

// SlideAnalysis is the analyzer verdict for one slide in one iteration.
// Operations are ordered by repair priority: font-size first, then text,
// then reposition/resize.
type SlideAnalysis struct {
	HasIssues    bool         `json:"has_issues"`
	Issues       []SlideIssue `json:"issues,omitempty"`
	Suggestions  []string     `json:"suggestions,omitempty"`
	Operations   []Operation  `json:"operations,omitempty"`
	QualityScore float64      `json:"quality_score"`
}

// SlideValidation is the carried-forward record for one slide across the
// validation loop: the last score observed, the surviving issues and any
// absorbed analysis failure.
type SlideValidation struct {
	SlideID      string       `json:"slide_id"`
	Position     int          `json:"position"`
	Iterations   int          `json:"iterations"`
	QualityScore float64      `json:"quality_score"`
	Issues       []SlideIssue `json:"issues,omitempty"`
	AnalysisErr  string       `json:"analysis_error,omitempty"`
	OpsApplied   int          `json:"ops_applied"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// ValidationReport summarises one run of the validation loop.
type ValidationReport struct {
	Iterations int                         `json:"iterations"`
	Converged  bool                        `json:"converged"`
	Slides     map[string]*SlideValidation `json:"slides"`

	// PreviewRefs holds the last rendered slide images in position order.
	PreviewRefs []string `json:"preview_refs,omitempty"`
}
