package models

// SlideType classifies a planned slide's role in the deck.
type SlideType string

const (
	SlideOpening SlideType = "opening"
	SlideContent SlideType = "content"
	SlideClosing SlideType = "closing"
)

// SlideDescriptor is one entry of the content plan. SlideID is durable:
// it survives reordering and deletion because it is embedded into the
// generated slide's notes and re-read during finalize.
type SlideDescriptor struct {
	SlideID   string    `json:"slide_id"`
	Type      SlideType `json:"slide_type"`
	Layout    string    `json:"layout"`
	Reasoning string    `json:"reasoning,omitempty"`
	Section   *Section  `json:"section,omitempty"`
}

// ContentPlan is the plan stage artifact: the ordered slide list that
// dictates the final deck structure. It always opens with one opening
// slide and closes with one closing slide.
type ContentPlan struct {
	Title    string            `json:"title"`
	Subtitle string            `json:"subtitle,omitempty"`
	Slides   []SlideDescriptor `json:"slides"`
}

// ByID returns the descriptor with the given slide id, or nil.
func (p *ContentPlan) ByID(slideID string) *SlideDescriptor {
	for i := range p.Slides {
		if p.Slides[i].SlideID == slideID {
			return &p.Slides[i]
		}
	}
	return nil
}

// Order returns slide ids in plan order. Finalize uses this to rebuild the
// physical ordering from the ids stored in slide notes.
func (p *ContentPlan) Order() []string {
	ids := make([]string, len(p.Slides))
	for i, s := range p.Slides {
		ids[i] = s.SlideID
	}
	return ids
}
