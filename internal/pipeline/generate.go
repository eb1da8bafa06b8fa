package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/AlanHootman/ppt-assistant-sub000/internal/deck"
	"github.com/AlanHootman/ppt-assistant-sub000/internal/models"
)

// slideGenRecord documents what generation did to one slide: the plan
// entry it came from and the operations applied. Saved alongside the
// output artifact.
type slideGenRecord struct {
	SlideID    string             `json:"slide_id"`
	Layout     string             `json:"layout"`
	Operations []models.Operation `json:"operations"`
}

// runGenerate clones template slides per plan entry, plants the slide_id
// into each clone's notes and rewrites the editable elements from the
// section content. Generated slides are appended to the working deck;
// template originals are cleaned up in finalize.
func (e *Engine) runGenerate(ctx context.Context, st *pipelineState) error {
	if st.plan == nil || st.features == nil {
		return PreconditionError(StageGenerate, "content plan and template features are required")
	}

	template, err := deck.Load(e.templatePath(st.job.Input.TemplateRef))
	if err != nil {
		return PreconditionError(StageGenerate, fmt.Sprintf("template not readable: %v", err))
	}

	working := &deck.Deck{
		Title:  st.plan.Title,
		Theme:  template.Theme,
		Slides: make([]deck.Slide, len(template.Slides)),
	}
	for i := range template.Slides {
		working.Slides[i] = deck.CloneSlide(template.Slides[i])
	}

	layoutIndex := make(map[string]*models.LayoutDescriptor, len(st.features.Layouts))
	for i := range st.features.Layouts {
		layoutIndex[st.features.Layouts[i].Name] = &st.features.Layouts[i]
	}

	var records []slideGenRecord
	for i := range st.plan.Slides {
		entry := &st.plan.Slides[i]

		descriptor := layoutIndex[entry.Layout]
		if descriptor == nil {
			descriptor = st.features.FirstContentLayout()
			if descriptor == nil {
				descriptor = &st.features.Layouts[0]
			}
		}
		if descriptor.SlideIndex >= len(template.Slides) {
			return NewError(models.ErrStageFailed, StageGenerate,
				fmt.Sprintf("layout %s points past the template", descriptor.Name), nil)
		}

		slide := deck.CloneSlide(template.Slides[descriptor.SlideIndex])
		slide.SetSlideID(entry.SlideID)

		ops := planOperations(entry, descriptor, st.plan)
		if _, err := deck.ApplyBatch(&slide, ops); err != nil {
			return NewError(models.ErrStageFailed, StageGenerate,
				fmt.Sprintf("failed to apply operations for slide %s", entry.SlideID), err)
		}

		working.Slides = append(working.Slides, slide)
		records = append(records, slideGenRecord{
			SlideID:    entry.SlideID,
			Layout:     descriptor.Name,
			Operations: ops,
		})
	}

	reportPath := fmt.Sprintf("%s/generation-report.json", st.workDir)
	if err := writeJSONArtifact(reportPath, records); err != nil {
		e.logger.Warn().Err(err).Str("job_id", st.job.ID).Msg("Failed to save generation report")
	}

	st.working = working
	return nil
}

// planOperations maps a plan entry's content onto the layout's editable
// regions: titles to title regions, list items to bullet and numbered
// regions, long text to multi-line paragraphs, short labels to shape
// labels. Unfilled regions are cleared so no template boilerplate leaks
// into the output.
func planOperations(entry *models.SlideDescriptor, layout *models.LayoutDescriptor, plan *models.ContentPlan) []models.Operation {
	var ops []models.Operation
	filled := make(map[string]bool)

	setText := func(elementID, text string) {
		ops = append(ops, models.Operation{Type: models.OpUpdateText, ElementID: elementID, Text: text})
		filled[elementID] = true
	}

	titleRegions := layout.RegionsByRole(models.RoleTitle)

	switch entry.Type {
	case models.SlideOpening:
		if len(titleRegions) > 0 {
			setText(titleRegions[0].ElementID, plan.Title)
		}
		if plan.Subtitle != "" {
			if region := firstFreeRegion(layout, filled, models.RoleParagraphSingle, models.RoleParagraphMulti); region != nil {
				setText(region.ElementID, plan.Subtitle)
			}
		}

	case models.SlideClosing:
		if len(titleRegions) > 0 {
			setText(titleRegions[0].ElementID, "Thank you")
		}

	default:
		if entry.Section == nil {
			break
		}
		section := entry.Section
		if len(titleRegions) > 0 {
			setText(titleRegions[0].ElementID, section.Title)
		}

		for _, block := range section.Blocks {
			switch block.Type {
			case models.BlockBulletList, models.BlockNumberedList:
				roles := []models.RegionRole{models.RoleNumbered, models.RoleBulletLong, models.RoleBulletShort}
				if block.Type == models.BlockBulletList {
					roles = []models.RegionRole{models.RoleBulletLong, models.RoleBulletShort, models.RoleNumbered}
				}
				if region := firstFreeRegion(layout, filled, roles...); region != nil {
					setText(region.ElementID, strings.Join(block.Items, "\n"))
					break
				}
				// No list region left: spread items over shape pairs.
				spreadOverShapes(layout, filled, block.Items, setText)

			case models.BlockParagraph, models.BlockCode:
				roles := []models.RegionRole{models.RoleParagraphMulti, models.RoleParagraphSingle}
				if len(block.Text) <= 40 {
					roles = []models.RegionRole{models.RoleShapeLabel, models.RoleParagraphSingle, models.RoleParagraphMulti}
				}
				if region := firstFreeRegion(layout, filled, roles...); region != nil {
					setText(region.ElementID, block.Text)
				}

			case models.BlockTable:
				if region := firstFreeRegion(layout, filled, models.RoleParagraphMulti); region != nil {
					var rows []string
					for _, row := range block.Rows {
						rows = append(rows, strings.Join(row, " | "))
					}
					setText(region.ElementID, strings.Join(rows, "\n"))
				}

			case models.BlockImage:
				if block.ImageRef == "" {
					continue
				}
				if region := firstFreeRegion(layout, filled, models.RoleImage); region != nil {
					ops = append(ops, models.Operation{
						Type:      models.OpReplaceImage,
						ElementID: region.ElementID,
						ImageRef:  block.ImageRef,
					})
					filled[region.ElementID] = true
				}
			}
		}
	}

	// Clear text regions nothing claimed.
	for _, region := range layout.Regions {
		if !filled[region.ElementID] && region.Role != models.RoleImage {
			ops = append(ops, models.Operation{Type: models.OpUpdateText, ElementID: region.ElementID, Text: ""})
		}
	}

	return ops
}

// firstFreeRegion returns the first unclaimed region matching any of the
// roles, in role preference order.
func firstFreeRegion(layout *models.LayoutDescriptor, filled map[string]bool, roles ...models.RegionRole) *models.EditableRegion {
	for _, role := range roles {
		for _, region := range layout.RegionsByRole(role) {
			if !filled[region.ElementID] {
				r := region
				return &r
			}
		}
	}
	return nil
}

// spreadOverShapes distributes list items across shape label/content
// pairs, one item per group.
func spreadOverShapes(layout *models.LayoutDescriptor, filled map[string]bool, items []string, setText func(string, string)) {
	labels := layout.RegionsByRole(models.RoleShapeLabel)
	contents := layout.RegionsByRole(models.RoleShapeContent)

	for i, item := range items {
		if i < len(contents) && !filled[contents[i].ElementID] {
			setText(contents[i].ElementID, item)
		} else if i < len(labels) && !filled[labels[i].ElementID] {
			setText(labels[i].ElementID, item)
		}
	}
}
