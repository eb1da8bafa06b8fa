package models

// SemanticType classifies what a section of the document is about.
type SemanticType string

const (
	SemanticConcept    SemanticType = "concept"
	SemanticProcess    SemanticType = "process"
	SemanticComparison SemanticType = "comparison"
	SemanticData       SemanticType = "data"
	SemanticExample    SemanticType = "example"
	SemanticSummary    SemanticType = "summary"
)

// RelationType classifies how a section's items relate to each other.
type RelationType string

const (
	RelationParallel    RelationType = "parallel"
	RelationSequential  RelationType = "sequential"
	RelationHierarchy   RelationType = "hierarchy"
	RelationContrast    RelationType = "contrast"
	RelationStandalone  RelationType = "standalone"
)

// VisualizationHint suggests how a section is best laid out on a slide.
type VisualizationHint string

const (
	VisualizeBullets  VisualizationHint = "bullets"
	VisualizeFlow     VisualizationHint = "flow"
	VisualizeGrid     VisualizationHint = "grid"
	VisualizeTimeline VisualizationHint = "timeline"
	VisualizeTable    VisualizationHint = "table"
	VisualizeProse    VisualizationHint = "prose"
)

// BlockType identifies one content block inside a section.
type BlockType string

const (
	BlockParagraph    BlockType = "paragraph"
	BlockBulletList   BlockType = "bullet_list"
	BlockNumberedList BlockType = "numbered_list"
	BlockCode         BlockType = "code"
	BlockTable        BlockType = "table"
	BlockImage        BlockType = "image"
)

// ContentBlock is one piece of content within a section: a paragraph, a
// list (Items populated), a code block, a table (Rows populated) or an
// image reference.
type ContentBlock struct {
	Type     BlockType  `json:"type"`
	Text     string     `json:"text,omitempty"`
	Items    []string   `json:"items,omitempty"`
	Language string     `json:"language,omitempty"`
	Rows     [][]string `json:"rows,omitempty"`
	ImageRef string     `json:"image_ref,omitempty"`
}

// Section is one logical unit of the document with model-assigned
// annotation tags. Subsections nest at most five levels deep.
type Section struct {
	Title             string            `json:"title"`
	Level             int               `json:"level"`
	Blocks            []ContentBlock    `json:"blocks,omitempty"`
	Subsections       []Section         `json:"subsections,omitempty"`
	SemanticType      SemanticType      `json:"semantic_type"`
	RelationType      RelationType      `json:"relation_type"`
	VisualizationHint VisualizationHint `json:"visualization_hint"`
}

// Outline is the parse stage artifact: the structured view of the source
// markdown that all later stages consume.
type Outline struct {
	Title    string    `json:"title"`
	Subtitle string    `json:"subtitle,omitempty"`
	Sections []Section `json:"sections"`
}

// MaxSectionDepth bounds subsection nesting in the outline.
const MaxSectionDepth = 5

// FlatSections returns the sections in document order with nesting
// flattened, which is how the planner consumes them.
func (o *Outline) FlatSections() []Section {
	var out []Section
	var walk func(secs []Section)
	walk = func(secs []Section) {
		for _, s := range secs {
			out = append(out, s)
			walk(s.Subsections)
		}
	}
	walk(o.Sections)
	return out
}
