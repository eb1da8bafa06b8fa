package models

// LayoutType classifies the content structure of a template layout.
type LayoutType string

const (
	LayoutTitleBody   LayoutType = "title_body"
	LayoutBulletList  LayoutType = "bullet_list"
	LayoutFlow        LayoutType = "flow"
	LayoutGrid        LayoutType = "grid"
	LayoutComparison  LayoutType = "comparison"
	LayoutTimeline    LayoutType = "timeline"
	LayoutFreeForm    LayoutType = "free_form"
	LayoutOpening     LayoutType = "opening"
	LayoutClosing     LayoutType = "closing"
)

// RegionRole classifies an editable text area within a layout.
type RegionRole string

const (
	RoleTitle            RegionRole = "title"
	RoleParagraphSingle  RegionRole = "paragraph_single"
	RoleParagraphMulti   RegionRole = "paragraph_multi"
	RoleBulletShort      RegionRole = "bullet_short"
	RoleBulletLong       RegionRole = "bullet_long"
	RoleNumbered         RegionRole = "numbered"
	RoleShapeLabel       RegionRole = "shape_label"
	RoleShapeContent     RegionRole = "shape_content"
	RoleImage            RegionRole = "image"
)

// EditableRegion describes one replaceable element in a template layout.
type EditableRegion struct {
	ElementID string     `json:"element_id"`
	Role      RegionRole `json:"role"`
	MaxChars  int        `json:"max_chars,omitempty"`
	GroupID   string     `json:"group_id,omitempty"`
}

// LayoutDescriptor is the analysis of one template slide: its purpose, the
// editable regions it exposes and how composite regions group together.
type LayoutDescriptor struct {
	Name       string           `json:"name"`
	Purpose    string           `json:"purpose,omitempty"`
	Type       LayoutType       `json:"type"`
	Regions    []EditableRegion `json:"regions"`
	ImageSlots int              `json:"image_slots"`
	SlideIndex int              `json:"slide_index"`
}

// TemplateFeatures is the analyze stage artifact: per-layout descriptors
// plus the template theme.
type TemplateFeatures struct {
	TemplateRef string             `json:"template_ref"`
	Theme       string             `json:"theme,omitempty"`
	Layouts     []LayoutDescriptor `json:"layouts"`
}

// RegionsByRole returns the layout's regions with the given role in
// declaration order.
func (d *LayoutDescriptor) RegionsByRole(role RegionRole) []EditableRegion {
	var out []EditableRegion
	for _, r := range d.Regions {
		if r.Role == role {
			out = append(out, r)
		}
	}
	return out
}

// FindLayout returns the first layout of the given type, or nil.
func (t *TemplateFeatures) FindLayout(lt LayoutType) *LayoutDescriptor {
	for i := range t.Layouts {
		if t.Layouts[i].Type == lt {
			return &t.Layouts[i]
		}
	}
	return nil
}

// FirstContentLayout returns the fallback layout used when a plan entry's
// chosen layout has no match: the first layout that is neither opening nor
// closing, or nil when the template has none.
func (t *TemplateFeatures) FirstContentLayout() *LayoutDescriptor {
	for i := range t.Layouts {
		if t.Layouts[i].Type != LayoutOpening && t.Layouts[i].Type != LayoutClosing {
			return &t.Layouts[i]
		}
	}
	return nil
}
