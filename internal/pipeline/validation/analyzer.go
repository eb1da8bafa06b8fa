package validation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/AlanHootman/ppt-assistant-sub000/internal/interfaces"
	"github.com/AlanHootman/ppt-assistant-sub000/internal/models"
	"github.com/ternarybob/arbor"
)

// Analyzer diagnoses rendered slides with the vision model. The model
// answers with a JSON verdict whose operations are decoded into the
// typed operation sum before application.
type Analyzer struct {
	pool   interfaces.ModelPool
	logger arbor.ILogger
}

// NewAnalyzer creates a vision-backed slide analyzer.
func NewAnalyzer(pool interfaces.ModelPool, logger arbor.ILogger) *Analyzer {
	return &Analyzer{pool: pool, logger: logger}
}

// AnalyzeSlide feeds the rendered image, the slide's element inventory
// and the planned section content to the vision model.
func (a *Analyzer) AnalyzeSlide(ctx context.Context, imagePath string, elements []models.EditableRegion, section *models.Section) (*models.SlideAnalysis, error) {
	client, err := a.pool.Client(ctx, models.ModelVision)
	if err != nil {
		return nil, fmt.Errorf("vision client unavailable: %w", err)
	}

	response, err := client.AnalyzeImage(ctx, imagePath, analysisPrompt(elements, section))
	if err != nil {
		return nil, fmt.Errorf("slide analysis failed: %w", err)
	}

	return decodeAnalysis(response)
}

// decodeAnalysis parses the model verdict. Operations with unknown tags
// are dropped; a malformed verdict fails the slide's analysis.
func decodeAnalysis(response string) (*models.SlideAnalysis, error) {
	payload := extractJSONObject(response)

	var raw struct {
		HasIssues    bool                `json:"has_issues"`
		Issues       []models.SlideIssue `json:"issues"`
		Suggestions  []string            `json:"suggestions"`
		Operations   json.RawMessage     `json:"operations"`
		QualityScore float64             `json:"quality_score"`
	}
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return nil, fmt.Errorf("analysis verdict is not valid JSON: %w", err)
	}

	analysis := &models.SlideAnalysis{
		HasIssues:    raw.HasIssues,
		Issues:       raw.Issues,
		Suggestions:  raw.Suggestions,
		QualityScore: raw.QualityScore,
	}

	if len(raw.Operations) > 0 {
		ops, err := models.DecodeOperations(raw.Operations)
		if err != nil {
			return nil, fmt.Errorf("analysis operations malformed: %w", err)
		}
		analysis.Operations = models.SortOperations(ops)
	}

	return analysis, nil
}

func analysisPrompt(elements []models.EditableRegion, section *models.Section) string {
	var b strings.Builder
	b.WriteString("Review this rendered presentation slide for layout problems: ")
	b.WriteString("text overflowing its box, truncation, overlap, unreadably small or large fonts, or empty regions that should carry content.\n\n")

	b.WriteString("Editable elements on this slide:\n")
	for _, el := range elements {
		fmt.Fprintf(&b, "- id=%s role=%s", el.ElementID, el.Role)
		if el.MaxChars > 0 {
			fmt.Fprintf(&b, " capacity≈%d chars", el.MaxChars)
		}
		b.WriteString("\n")
	}

	if section != nil {
		fmt.Fprintf(&b, "\nPlanned content: %s\n", section.Title)
		for _, block := range section.Blocks {
			if block.Text != "" {
				fmt.Fprintf(&b, "- %s\n", block.Text)
			}
			for _, item := range block.Items {
				fmt.Fprintf(&b, "- %s\n", item)
			}
		}
	}

	b.WriteString(`
Answer with a JSON object only:
{"has_issues": bool, "issues": [{"kind": "...", "description": "...", "element_id": "..."}],
 "suggestions": ["..."], "quality_score": 0.0-1.0,
 "operations": [{"type": "adjust_font_size|update_text|adjust_position|resize_element", "element_id": "...", ...}]}
Prefer font-size adjustments over text rewrites, and text rewrites over moving or resizing elements.`)

	return b.String()
}

// extractJSONObject trims prose and code fences around the first balanced
// JSON object in the response.
func extractJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return s
	}
	depth := 0
	inString := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			if c == '\\' {
				i++
			} else if c == '"' {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return s[start:]
}

var _ interfaces.SlideAnalyzer = (*Analyzer)(nil)
