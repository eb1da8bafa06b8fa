package deck

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlanHootman/ppt-assistant-sub000/internal/models"
)

func testSlide() Slide {
	return Slide{
		Layout: "content",
		Elements: []Element{
			{ID: "title-1", Role: "title", Text: "Old title", FontSize: 36},
			{ID: "body-1", Role: "paragraph_multi", Text: "Old body", FontSize: 18, X: 100, Y: 200, W: 600, H: 300},
			{ID: "img-1", Role: "image", ImageRef: "placeholder.png"},
		},
	}
}

func TestApplyOperations(t *testing.T) {
	slide := testSlide()

	require.NoError(t, Apply(&slide, models.Operation{Type: models.OpUpdateText, ElementID: "title-1", Text: "New title"}))
	assert.Equal(t, "New title", slide.FindElement("title-1").Text)

	require.NoError(t, Apply(&slide, models.Operation{Type: models.OpAdjustFontSize, ElementID: "body-1", FontSize: 14}))
	assert.Equal(t, 14.0, slide.FindElement("body-1").FontSize)

	require.NoError(t, Apply(&slide, models.Operation{Type: models.OpReplaceImage, ElementID: "img-1", ImageRef: "chart.png"}))
	assert.Equal(t, "chart.png", slide.FindElement("img-1").ImageRef)

	require.NoError(t, Apply(&slide, models.Operation{Type: models.OpAdjustPosition, ElementID: "body-1", X: 50, Y: 60}))
	assert.Equal(t, 50.0, slide.FindElement("body-1").X)

	require.NoError(t, Apply(&slide, models.Operation{Type: models.OpResizeElement, ElementID: "body-1", W: 400, H: 200}))
	assert.Equal(t, 400.0, slide.FindElement("body-1").W)
}

func TestApplyDeleteElement(t *testing.T) {
	slide := testSlide()

	require.NoError(t, Apply(&slide, models.Operation{Type: models.OpDeleteElement, ElementID: "body-1"}))
	assert.Nil(t, slide.FindElement("body-1"))
	assert.Len(t, slide.Elements, 2)

	err := Apply(&slide, models.Operation{Type: models.OpDeleteElement, ElementID: "body-1"})
	assert.Error(t, err, "deleting a missing element fails")
}

func TestApplyUnknownElementFails(t *testing.T) {
	slide := testSlide()
	err := Apply(&slide, models.Operation{Type: models.OpUpdateText, ElementID: "ghost", Text: "x"})
	assert.Error(t, err)
}

func TestApplyBatchSortsAndSkipsFailures(t *testing.T) {
	slide := testSlide()

	// Delete sorts last, so the update on the same element still lands.
	ops := []models.Operation{
		{Type: models.OpDeleteElement, ElementID: "body-1"},
		{Type: models.OpUpdateText, ElementID: "body-1", Text: "final body"},
		{Type: models.OpUpdateText, ElementID: "ghost", Text: "never lands"},
		{Type: models.OpAdjustFontSize, ElementID: "title-1", FontSize: 40},
	}

	applied, err := ApplyBatch(&slide, ops)
	require.NoError(t, err)
	assert.Equal(t, 3, applied)
	assert.Equal(t, 40.0, slide.FindElement("title-1").FontSize)
	assert.Nil(t, slide.FindElement("body-1"))
}

func TestCloneSlideIsIndependent(t *testing.T) {
	original := testSlide()
	clone := CloneSlide(original)

	clone.Elements[0].Text = "changed"
	clone.SetSlideID("s-001")

	assert.Equal(t, "Old title", original.Elements[0].Text)
	assert.Equal(t, "", original.SlideID())
}
