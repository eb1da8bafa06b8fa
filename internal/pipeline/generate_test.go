package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/AlanHootman/ppt-assistant-sub000/internal/models"
)

func contentLayout() *models.LayoutDescriptor {
	return &models.LayoutDescriptor{
		Name: "Bullets",
		Type: models.LayoutBulletList,
		Regions: []models.EditableRegion{
			{ElementID: "title-1", Role: models.RoleTitle},
			{ElementID: "bullets-1", Role: models.RoleBulletLong},
			{ElementID: "body-1", Role: models.RoleParagraphMulti},
			{ElementID: "img-1", Role: models.RoleImage},
		},
	}
}

func opsByElement(ops []models.Operation) map[string]models.Operation {
	out := make(map[string]models.Operation, len(ops))
	for _, op := range ops {
		out[op.ElementID] = op
	}
	return out
}

func TestPlanOperationsOpeningSlide(t *testing.T) {
	layout := &models.LayoutDescriptor{
		Name: "Cover",
		Type: models.LayoutOpening,
		Regions: []models.EditableRegion{
			{ElementID: "title-1", Role: models.RoleTitle},
			{ElementID: "subtitle-1", Role: models.RoleParagraphSingle},
		},
	}
	plan := &models.ContentPlan{Title: "Deck", Subtitle: "Sub"}
	entry := &models.SlideDescriptor{SlideID: "s-001", Type: models.SlideOpening}

	ops := opsByElement(planOperations(entry, layout, plan))
	assert.Equal(t, "Deck", ops["title-1"].Text)
	assert.Equal(t, "Sub", ops["subtitle-1"].Text)
}

func TestPlanOperationsContentSlide(t *testing.T) {
	plan := &models.ContentPlan{Title: "Deck"}
	entry := &models.SlideDescriptor{
		SlideID: "s-002",
		Type:    models.SlideContent,
		Section: &models.Section{
			Title: "Highlights",
			Blocks: []models.ContentBlock{
				{Type: models.BlockBulletList, Items: []string{"one", "two"}},
				{Type: models.BlockParagraph, Text: "A longer paragraph that should land in the multi-line body region."},
				{Type: models.BlockImage, ImageRef: "chart.png"},
			},
		},
	}

	ops := opsByElement(planOperations(entry, contentLayout(), plan))
	assert.Equal(t, "Highlights", ops["title-1"].Text)
	assert.Equal(t, "one\ntwo", ops["bullets-1"].Text)
	assert.Contains(t, ops["body-1"].Text, "longer paragraph")
	assert.Equal(t, models.OpReplaceImage, ops["img-1"].Type)
	assert.Equal(t, "chart.png", ops["img-1"].ImageRef)
}

func TestPlanOperationsClosingSlide(t *testing.T) {
	plan := &models.ContentPlan{Title: "Deck"}
	entry := &models.SlideDescriptor{SlideID: "s-009", Type: models.SlideClosing}

	ops := opsByElement(planOperations(entry, contentLayout(), plan))
	assert.Equal(t, "Thank you", ops["title-1"].Text)
}

func TestPlanOperationsClearsUnclaimedTextRegions(t *testing.T) {
	plan := &models.ContentPlan{Title: "Deck"}
	entry := &models.SlideDescriptor{
		SlideID: "s-003",
		Type:    models.SlideContent,
		Section: &models.Section{Title: "Sparse"},
	}

	ops := opsByElement(planOperations(entry, contentLayout(), plan))
	assert.Equal(t, "Sparse", ops["title-1"].Text)
	// Template boilerplate in unused text regions is cleared.
	assert.Equal(t, "", ops["bullets-1"].Text)
	assert.Equal(t, "", ops["body-1"].Text)
	// Image regions are left alone.
	_, touched := ops["img-1"]
	assert.False(t, touched)
}

func TestPlanOperationsSpreadsListOverShapePairs(t *testing.T) {
	layout := &models.LayoutDescriptor{
		Name: "Steps",
		Type: models.LayoutFlow,
		Regions: []models.EditableRegion{
			{ElementID: "step1-body", Role: models.RoleShapeContent, GroupID: "step1"},
			{ElementID: "step2-body", Role: models.RoleShapeContent, GroupID: "step2"},
			{ElementID: "step3-body", Role: models.RoleShapeContent, GroupID: "step3"},
		},
	}
	plan := &models.ContentPlan{Title: "Deck"}
	entry := &models.SlideDescriptor{
		SlideID: "s-004",
		Type:    models.SlideContent,
		Section: &models.Section{
			Title: "Rollout",
			Blocks: []models.ContentBlock{
				{Type: models.BlockNumberedList, Items: []string{"plan", "build", "ship"}},
			},
		},
	}

	ops := opsByElement(planOperations(entry, layout, plan))
	assert.Equal(t, "plan", ops["step1-body"].Text)
	assert.Equal(t, "build", ops["step2-body"].Text)
	assert.Equal(t, "ship", ops["step3-body"].Text)
}

func TestPlanOperationsShortParagraphPrefersLabels(t *testing.T) {
	layout := &models.LayoutDescriptor{
		Name: "Mixed",
		Regions: []models.EditableRegion{
			{ElementID: "label-1", Role: models.RoleShapeLabel},
			{ElementID: "body-1", Role: models.RoleParagraphMulti},
		},
	}
	plan := &models.ContentPlan{Title: "Deck"}
	entry := &models.SlideDescriptor{
		SlideID: "s-005",
		Type:    models.SlideContent,
		Section: &models.Section{
			Title:  "Terse",
			Blocks: []models.ContentBlock{{Type: models.BlockParagraph, Text: "Short note"}},
		},
	}

	ops := opsByElement(planOperations(entry, layout, plan))
	assert.Equal(t, "Short note", ops["label-1"].Text)
	assert.Equal(t, "", ops["body-1"].Text)
}

func TestPlanOperationsTableFlattensRows(t *testing.T) {
	plan := &models.ContentPlan{Title: "Deck"}
	entry := &models.SlideDescriptor{
		SlideID: "s-006",
		Type:    models.SlideContent,
		Section: &models.Section{
			Title: "Numbers",
			Blocks: []models.ContentBlock{
				{Type: models.BlockTable, Rows: [][]string{{"Region", "Growth"}, {"EMEA", "12%"}}},
			},
		},
	}

	ops := opsByElement(planOperations(entry, contentLayout(), plan))
	assert.Equal(t, "Region | Growth\nEMEA | 12%", ops["body-1"].Text)
}
