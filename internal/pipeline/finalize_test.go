package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlanHootman/ppt-assistant-sub000/internal/deck"
	"github.com/AlanHootman/ppt-assistant-sub000/internal/models"
)

func finalizePlan() *models.ContentPlan {
	return &models.ContentPlan{Slides: []models.SlideDescriptor{
		{SlideID: "s-001", Type: models.SlideOpening},
		{SlideID: "s-002", Type: models.SlideContent},
	}}
}

func TestDropTemplateSlides(t *testing.T) {
	d := &deck.Deck{Slides: []deck.Slide{
		{Notes: "template boilerplate"},
		{Notes: "slide_id: s-001"},
		{Notes: ""},
		{Notes: "slide_id: s-002"},
	}}

	cleaned, err := dropTemplateSlides(d, finalizePlan())
	require.NoError(t, err)
	require.Len(t, cleaned.Slides, 2)
	assert.Equal(t, "s-001", cleaned.Slides[0].SlideID())
	assert.Equal(t, "s-002", cleaned.Slides[1].SlideID())

	// The input deck is untouched.
	assert.Len(t, d.Slides, 4)
}

func TestDropTemplateSlidesRefusesEmptyResult(t *testing.T) {
	d := &deck.Deck{Slides: []deck.Slide{
		{Notes: "no id"},
		{Notes: "slide_id: s-999"},
	}}

	_, err := dropTemplateSlides(d, finalizePlan())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "remove all 2 slides")
}

func TestReorderByPlan(t *testing.T) {
	d := &deck.Deck{Slides: []deck.Slide{
		{Notes: "slide_id: s-002", Layout: "content"},
		{Notes: "slide_id: s-001", Layout: "cover"},
	}}

	ordered, err := reorderByPlan(d, finalizePlan())
	require.NoError(t, err)
	require.Len(t, ordered.Slides, 2)
	assert.Equal(t, "cover", ordered.Slides[0].Layout)
	assert.Equal(t, "content", ordered.Slides[1].Layout)
}

func TestReorderByPlanMissingSlideFails(t *testing.T) {
	d := &deck.Deck{Slides: []deck.Slide{
		{Notes: "slide_id: s-001"},
	}}

	_, err := reorderByPlan(d, finalizePlan())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s-002")
}
