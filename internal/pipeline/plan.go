package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/AlanHootman/ppt-assistant-sub000/internal/interfaces"
	"github.com/AlanHootman/ppt-assistant-sub000/internal/models"
	"github.com/AlanHootman/ppt-assistant-sub000/internal/services/cache"
)

// runPlan builds the ordered slide list. The deck structure is fixed
// (one opening slide, one content slide per section with content, one
// closing slide); the deep-thinking model picks the layout for each
// content slide from the template's inventory, with the visualization
// hint as the deterministic fallback.
func (e *Engine) runPlan(ctx context.Context, st *pipelineState) error {
	if st.outline == nil || st.features == nil {
		return PreconditionError(StagePlan, "outline and template features are required")
	}

	key := cache.Fingerprint(st.outline, st.features)
	plan, err := cachedStage(e, StagePlan, key, func() (*models.ContentPlan, error) {
		return e.buildPlan(ctx, st.outline, st.features)
	})
	if err != nil {
		return err
	}

	st.plan = plan
	return nil
}

func (e *Engine) buildPlan(ctx context.Context, outline *models.Outline, features *models.TemplateFeatures) (*models.ContentPlan, error) {
	sections := contentSections(outline)

	plan := &models.ContentPlan{
		Title:    outline.Title,
		Subtitle: outline.Subtitle,
	}

	opening := features.FindLayout(models.LayoutOpening)
	if opening == nil {
		opening = &features.Layouts[0]
	}
	closing := features.FindLayout(models.LayoutClosing)
	if closing == nil {
		closing = &features.Layouts[len(features.Layouts)-1]
	}

	// Slide ids are positional but durable: they are planted into slide
	// notes during generation and survive reordering from then on.
	nextID := 0
	newID := func() string {
		nextID++
		return fmt.Sprintf("s-%03d", nextID)
	}

	plan.Slides = append(plan.Slides, models.SlideDescriptor{
		SlideID:   newID(),
		Type:      models.SlideOpening,
		Layout:    opening.Name,
		Reasoning: "deck opening",
	})

	choices, err := e.chooseLayouts(ctx, sections, features)
	if err != nil {
		return nil, err
	}
	for i := range sections {
		section := sections[i]
		plan.Slides = append(plan.Slides, models.SlideDescriptor{
			SlideID:   newID(),
			Type:      models.SlideContent,
			Layout:    choices[i].layout,
			Reasoning: choices[i].reasoning,
			Section:   &section,
		})
	}

	plan.Slides = append(plan.Slides, models.SlideDescriptor{
		SlideID:   newID(),
		Type:      models.SlideClosing,
		Layout:    closing.Name,
		Reasoning: "deck closing",
	})

	return plan, nil
}

// contentSections returns the flattened sections that carry content of
// their own. Pure container sections contribute through their children.
func contentSections(outline *models.Outline) []models.Section {
	var out []models.Section
	for _, s := range outline.FlatSections() {
		if len(s.Blocks) == 0 && len(s.Subsections) > 0 {
			continue
		}
		out = append(out, s)
	}
	return out
}

type layoutChoice struct {
	layout    string
	reasoning string
}

// chooseLayouts asks the deep-thinking model to pick one template layout
// per section. An unusable answer falls back to the hint-driven choice
// rather than failing the stage; only a transport-level model failure
// aborts planning.
func (e *Engine) chooseLayouts(ctx context.Context, sections []models.Section, features *models.TemplateFeatures) ([]layoutChoice, error) {
	fallback := make([]layoutChoice, len(sections))
	for i := range sections {
		fallback[i] = hintChoice(&sections[i], features)
	}
	if len(sections) == 0 {
		return fallback, nil
	}

	client, err := e.pool.Client(ctx, models.ModelDeepThinking)
	if err != nil {
		return nil, ModelError(StagePlan, err)
	}

	response, err := client.GenerateText(ctx, []interfaces.Message{
		{Role: "system", Content: planSystemPrompt},
		{Role: "user", Content: planUserPrompt(sections, features)},
	})
	if err != nil {
		return nil, ModelError(StagePlan, err)
	}

	var picks []struct {
		Layout    string `json:"layout"`
		Reasoning string `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(extractJSON(response)), &picks); err != nil || len(picks) != len(sections) {
		e.logger.Warn().Int("sections", len(sections)).Int("picks", len(picks)).
			Msg("Unusable layout picks from planner model, using hint-driven choices")
		return fallback, nil
	}

	valid := make(map[string]bool, len(features.Layouts))
	for _, l := range features.Layouts {
		valid[l.Name] = true
	}

	choices := make([]layoutChoice, len(sections))
	for i, pick := range picks {
		if valid[pick.Layout] {
			choices[i] = layoutChoice{layout: pick.Layout, reasoning: pick.Reasoning}
		} else {
			choices[i] = fallback[i]
		}
	}
	return choices, nil
}

// hintChoice maps a section's visualization hint onto the template's
// layout inventory.
func hintChoice(section *models.Section, features *models.TemplateFeatures) layoutChoice {
	var want models.LayoutType
	switch section.VisualizationHint {
	case models.VisualizeFlow:
		want = models.LayoutFlow
	case models.VisualizeGrid:
		want = models.LayoutGrid
	case models.VisualizeTimeline:
		want = models.LayoutTimeline
	case models.VisualizeTable:
		want = models.LayoutComparison
	case models.VisualizeProse:
		want = models.LayoutTitleBody
	default:
		want = models.LayoutBulletList
	}

	if layout := features.FindLayout(want); layout != nil {
		return layoutChoice{layout: layout.Name, reasoning: fmt.Sprintf("visualization hint %s", section.VisualizationHint)}
	}
	if layout := features.FirstContentLayout(); layout != nil {
		return layoutChoice{layout: layout.Name, reasoning: "first content layout fallback"}
	}
	return layoutChoice{layout: features.Layouts[0].Name, reasoning: "only available layout"}
}

const planSystemPrompt = `You map presentation sections onto template layouts. ` +
	`Answer with a JSON array only, one object per section, each with keys ` +
	`"layout" (a layout name from the inventory) and "reasoning" (one sentence).`

func planUserPrompt(sections []models.Section, features *models.TemplateFeatures) string {
	var b strings.Builder
	b.WriteString("Layout inventory:\n")
	for _, l := range features.Layouts {
		fmt.Fprintf(&b, "- %s (%s): %s\n", l.Name, l.Type, l.Purpose)
	}
	b.WriteString("\nSections:\n")
	for i, s := range sections {
		fmt.Fprintf(&b, "%d. %s [semantic=%s relation=%s hint=%s]\n",
			i+1, s.Title, s.SemanticType, s.RelationType, s.VisualizationHint)
	}
	return b.String()
}
