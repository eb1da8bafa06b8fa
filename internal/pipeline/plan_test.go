package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlanHootman/ppt-assistant-sub000/internal/models"
)

func planFeatures() *models.TemplateFeatures {
	return &models.TemplateFeatures{
		TemplateRef: "basic",
		Layouts: []models.LayoutDescriptor{
			{Name: "Cover", Type: models.LayoutOpening, SlideIndex: 0},
			{Name: "Bullets", Type: models.LayoutBulletList, SlideIndex: 1},
			{Name: "Steps", Type: models.LayoutFlow, SlideIndex: 2},
			{Name: "Thanks", Type: models.LayoutClosing, SlideIndex: 3},
		},
	}
}

func planOutline() *models.Outline {
	return &models.Outline{
		Title:    "Deck",
		Subtitle: "Sub",
		Sections: []models.Section{
			{Title: "Intro", Level: 1, Blocks: []models.ContentBlock{{Type: models.BlockParagraph, Text: "hello"}}, VisualizationHint: models.VisualizeBullets},
			{Title: "Rollout", Level: 1, Blocks: []models.ContentBlock{{Type: models.BlockParagraph, Text: "steps"}}, VisualizationHint: models.VisualizeFlow},
		},
	}
}

func TestContentSectionsSkipsPureContainers(t *testing.T) {
	outline := &models.Outline{
		Sections: []models.Section{
			{Title: "Container", Level: 1, Subsections: []models.Section{
				{Title: "Child", Level: 2, Blocks: []models.ContentBlock{{Type: models.BlockParagraph, Text: "x"}}},
			}},
			{Title: "Leaf", Level: 1, Blocks: []models.ContentBlock{{Type: models.BlockParagraph, Text: "y"}}},
		},
	}

	sections := contentSections(outline)
	require.Len(t, sections, 2)
	assert.Equal(t, "Child", sections[0].Title)
	assert.Equal(t, "Leaf", sections[1].Title)
}

func TestHintChoice(t *testing.T) {
	features := planFeatures()

	choice := hintChoice(&models.Section{VisualizationHint: models.VisualizeFlow}, features)
	assert.Equal(t, "Steps", choice.layout)

	// No comparison layout in the inventory: fall back to the first
	// content layout.
	choice = hintChoice(&models.Section{VisualizationHint: models.VisualizeTable}, features)
	assert.Equal(t, "Bullets", choice.layout)

	bare := &models.TemplateFeatures{Layouts: []models.LayoutDescriptor{
		{Name: "Only", Type: models.LayoutOpening},
	}}
	choice = hintChoice(&models.Section{}, bare)
	assert.Equal(t, "Only", choice.layout)
}

func TestBuildPlanStructure(t *testing.T) {
	client := &fakeClient{response: `[
		{"layout": "Bullets", "reasoning": "itemized intro"},
		{"layout": "Steps", "reasoning": "sequential rollout"}
	]`}
	e := testEngine(t, &fakePool{client: client}, newFakeCache(), false)

	plan, err := e.buildPlan(context.Background(), planOutline(), planFeatures())
	require.NoError(t, err)

	require.Len(t, plan.Slides, 4)
	assert.Equal(t, "Deck", plan.Title)
	assert.Equal(t, "Sub", plan.Subtitle)

	assert.Equal(t, models.SlideOpening, plan.Slides[0].Type)
	assert.Equal(t, "Cover", plan.Slides[0].Layout)
	assert.Equal(t, "s-001", plan.Slides[0].SlideID)

	assert.Equal(t, models.SlideContent, plan.Slides[1].Type)
	assert.Equal(t, "Bullets", plan.Slides[1].Layout)
	require.NotNil(t, plan.Slides[1].Section)
	assert.Equal(t, "Intro", plan.Slides[1].Section.Title)

	assert.Equal(t, "Steps", plan.Slides[2].Layout)

	assert.Equal(t, models.SlideClosing, plan.Slides[3].Type)
	assert.Equal(t, "Thanks", plan.Slides[3].Layout)
	assert.Equal(t, "s-004", plan.Slides[3].SlideID)
}

func TestBuildPlanFallsBackOnUnusablePicks(t *testing.T) {
	client := &fakeClient{response: "I could not decide, sorry."}
	e := testEngine(t, &fakePool{client: client}, newFakeCache(), false)

	plan, err := e.buildPlan(context.Background(), planOutline(), planFeatures())
	require.NoError(t, err)

	require.Len(t, plan.Slides, 4)
	assert.Equal(t, "Bullets", plan.Slides[1].Layout, "bullets hint maps to the bullet layout")
	assert.Equal(t, "Steps", plan.Slides[2].Layout, "flow hint maps to the flow layout")
}

func TestBuildPlanRejectsUnknownLayoutPicks(t *testing.T) {
	client := &fakeClient{response: `[
		{"layout": "Imaginary", "reasoning": "made up"},
		{"layout": "Steps", "reasoning": "real"}
	]`}
	e := testEngine(t, &fakePool{client: client}, newFakeCache(), false)

	plan, err := e.buildPlan(context.Background(), planOutline(), planFeatures())
	require.NoError(t, err)

	assert.Equal(t, "Bullets", plan.Slides[1].Layout, "unknown pick falls back to the hint choice")
	assert.Equal(t, "Steps", plan.Slides[2].Layout)
}

func TestBuildPlanModelFailureAborts(t *testing.T) {
	client := &fakeClient{err: assert.AnError}
	e := testEngine(t, &fakePool{client: client}, newFakeCache(), false)

	_, err := e.buildPlan(context.Background(), planOutline(), planFeatures())
	require.Error(t, err)

	jerr := AsJobError(err)
	assert.Equal(t, models.ErrModelUnavailable, jerr.Kind)
	assert.True(t, jerr.Retryable)
}
