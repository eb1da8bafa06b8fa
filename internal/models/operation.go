package models

import (
	"encoding/json"
	"fmt"
)

// OpType tags one element-addressed edit emitted by the planner or the
// vision analyzer.
type OpType string

const (
	OpUpdateText     OpType = "update_text"
	OpAdjustFontSize OpType = "adjust_font_size"
	OpReplaceImage   OpType = "replace_image"
	OpAdjustPosition OpType = "adjust_position"
	OpResizeElement  OpType = "resize_element"
	OpDeleteElement  OpType = "delete_element"
)

// Operation is the tagged sum for deck edits. Exactly the fields relevant
// to the tag are honoured; the single applier in the deck package matches
// on Type and routes to the typed handler.
type Operation struct {
	Type      OpType  `json:"type"`
	ElementID string  `json:"element_id"`
	Text      string  `json:"text,omitempty"`
	FontSize  float64 `json:"font_size,omitempty"`
	ImageRef  string  `json:"image_ref,omitempty"`
	X         float64 `json:"x,omitempty"`
	Y         float64 `json:"y,omitempty"`
	W         float64 `json:"w,omitempty"`
	H         float64 `json:"h,omitempty"`
}

// repairPriority orders analyzer repairs: font-size adjustments are the
// cheapest fix, then content updates, then geometry changes.
func (o Operation) repairPriority() int {
	switch o.Type {
	case OpAdjustFontSize:
		return 0
	case OpUpdateText:
		return 1
	case OpReplaceImage:
		return 2
	case OpAdjustPosition, OpResizeElement:
		return 3
	case OpDeleteElement:
		return 4
	default:
		return 5
	}
}

// SortOperations orders a repair batch by priority, keeping the analyzer's
// relative order within each priority class.
func SortOperations(ops []Operation) []Operation {
	out := make([]Operation, 0, len(ops))
	for prio := 0; prio <= 5; prio++ {
		for _, op := range ops {
			if op.repairPriority() == prio {
				out = append(out, op)
			}
		}
	}
	return out
}

// Validate checks that the operation addresses an element and carries the
// payload its tag requires.
func (o Operation) Validate() error {
	if o.ElementID == "" {
		return fmt.Errorf("operation %s: element_id is required", o.Type)
	}
	switch o.Type {
	case OpUpdateText:
		// Empty text is a legal clear.
	case OpAdjustFontSize:
		if o.FontSize <= 0 {
			return fmt.Errorf("adjust_font_size: font_size must be positive")
		}
	case OpReplaceImage:
		if o.ImageRef == "" {
			return fmt.Errorf("replace_image: image_ref is required")
		}
	case OpAdjustPosition, OpResizeElement, OpDeleteElement:
	default:
		return fmt.Errorf("unknown operation type: %s", o.Type)
	}
	return nil
}

// DecodeOperations parses an analyzer JSON array into validated operations,
// dropping entries with unknown tags rather than failing the batch.
func DecodeOperations(data []byte) ([]Operation, error) {
	var raw []Operation
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode operations: %w", err)
	}

	ops := make([]Operation, 0, len(raw))
	for _, op := range raw {
		if err := op.Validate(); err != nil {
			continue
		}
		ops = append(ops, op)
	}
	return ops, nil
}
