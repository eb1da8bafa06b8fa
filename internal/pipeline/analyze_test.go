package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlanHootman/ppt-assistant-sub000/internal/deck"
	"github.com/AlanHootman/ppt-assistant-sub000/internal/models"
)

func TestClassifyRegion(t *testing.T) {
	tests := []struct {
		name string
		el   deck.Element
		want models.RegionRole
	}{
		{"explicit role wins", deck.Element{Role: "bullet_long", FontSize: 40}, models.RoleBulletLong},
		{"image ref", deck.Element{ImageRef: "pic.png", FontSize: 40}, models.RoleImage},
		{"large font is a title", deck.Element{FontSize: 36, W: 800, H: 80}, models.RoleTitle},
		{"small box is a shape label", deck.Element{FontSize: 14, W: 250, H: 50}, models.RoleShapeLabel},
		{"tall box is a multi paragraph", deck.Element{FontSize: 18, W: 600, H: 220}, models.RoleParagraphMulti},
		{"default single paragraph", deck.Element{FontSize: 18, W: 600, H: 100}, models.RoleParagraphSingle},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyRegion(&tt.el))
		})
	}
}

func TestMaxCharsFor(t *testing.T) {
	el := &deck.Element{W: 400, H: 100, FontSize: 20}
	// 36 chars per line at 11px per char, 3 lines at 28px line height.
	assert.Equal(t, 108, maxCharsFor(el, models.RoleParagraphMulti))

	assert.Equal(t, 0, maxCharsFor(&deck.Element{FontSize: 20}, models.RoleTitle))
}

func TestAnalyzeSlideGroupsShapePairs(t *testing.T) {
	slide := &deck.Slide{
		Layout: "Process Flow",
		Elements: []deck.Element{
			{ID: "title-1", Role: "title", FontSize: 36},
			{ID: "step1-label", Role: "shape_label"},
			{ID: "step1-body", Role: "shape_content"},
			{ID: "step2-label", Role: "shape_label"},
			{ID: "step2-body", Role: "shape_content"},
			{ID: "hero", ImageRef: "placeholder.png"},
		},
	}

	descriptor := analyzeSlide(slide, 3)

	assert.Equal(t, "Process Flow", descriptor.Name)
	assert.Equal(t, 3, descriptor.SlideIndex)
	assert.Equal(t, models.LayoutFlow, descriptor.Type)
	assert.Equal(t, 1, descriptor.ImageSlots)
	require.Len(t, descriptor.Regions, 6)

	byID := make(map[string]models.EditableRegion)
	for _, r := range descriptor.Regions {
		byID[r.ElementID] = r
	}
	assert.Equal(t, "step1", byID["step1-label"].GroupID)
	assert.Equal(t, "step1", byID["step1-body"].GroupID)
	assert.Equal(t, "step2", byID["step2-label"].GroupID)
	assert.Empty(t, byID["title-1"].GroupID)
}

func TestAnalyzeSlideNamesUnnamedLayouts(t *testing.T) {
	slide := &deck.Slide{Elements: []deck.Element{{ID: "a", FontSize: 36}}}
	descriptor := analyzeSlide(slide, 2)
	assert.Equal(t, "layout-2", descriptor.Name)
}

func TestClassifyLayoutByName(t *testing.T) {
	empty := &models.LayoutDescriptor{}
	assert.Equal(t, models.LayoutOpening, classifyLayout("Cover Slide", empty, 0))
	assert.Equal(t, models.LayoutClosing, classifyLayout("Thank You", empty, 0))
	assert.Equal(t, models.LayoutTimeline, classifyLayout("Project Timeline", empty, 0))
	assert.Equal(t, models.LayoutComparison, classifyLayout("Versus", empty, 0))
	assert.Equal(t, models.LayoutGrid, classifyLayout("Feature Grid", empty, 0))
}

func TestClassifyLayoutByStructure(t *testing.T) {
	empty := &models.LayoutDescriptor{}
	assert.Equal(t, models.LayoutFlow, classifyLayout("Untitled", empty, 3))
	assert.Equal(t, models.LayoutComparison, classifyLayout("Untitled", empty, 2))

	bullets := &models.LayoutDescriptor{Regions: []models.EditableRegion{
		{ElementID: "b1", Role: models.RoleBulletLong},
	}}
	assert.Equal(t, models.LayoutBulletList, classifyLayout("Untitled", bullets, 0))

	prose := &models.LayoutDescriptor{Regions: []models.EditableRegion{
		{ElementID: "p1", Role: models.RoleParagraphMulti},
	}}
	assert.Equal(t, models.LayoutTitleBody, classifyLayout("Untitled", prose, 0))

	assert.Equal(t, models.LayoutFreeForm, classifyLayout("Untitled", empty, 0))
}
