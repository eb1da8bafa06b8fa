package deck

import (
	"fmt"

	"github.com/AlanHootman/ppt-assistant-sub000/internal/models"
)

// Apply executes one operation against a slide. Unknown element IDs fail;
// the caller decides whether a failed op aborts the batch.
func Apply(slide *Slide, op models.Operation) error {
	if err := op.Validate(); err != nil {
		return err
	}

	if op.Type == models.OpDeleteElement {
		for i := range slide.Elements {
			if slide.Elements[i].ID == op.ElementID {
				slide.Elements = append(slide.Elements[:i], slide.Elements[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("delete_element: element not found: %s", op.ElementID)
	}

	el := slide.FindElement(op.ElementID)
	if el == nil {
		return fmt.Errorf("%s: element not found: %s", op.Type, op.ElementID)
	}

	switch op.Type {
	case models.OpUpdateText:
		el.Text = op.Text
	case models.OpAdjustFontSize:
		el.FontSize = op.FontSize
	case models.OpReplaceImage:
		el.ImageRef = op.ImageRef
	case models.OpAdjustPosition:
		el.X = op.X
		el.Y = op.Y
	case models.OpResizeElement:
		el.W = op.W
		el.H = op.H
	default:
		return fmt.Errorf("unknown operation type: %s", op.Type)
	}
	return nil
}

// ApplyBatch sorts the batch by repair priority and applies each op in
// turn. Ops addressing missing elements are skipped, not fatal: a prior
// delete may have removed their target. Returns the count applied.
func ApplyBatch(slide *Slide, ops []models.Operation) (int, error) {
	applied := 0
	for _, op := range models.SortOperations(ops) {
		if err := Apply(slide, op); err != nil {
			continue
		}
		applied++
	}
	return applied, nil
}
