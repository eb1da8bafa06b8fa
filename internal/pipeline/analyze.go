package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/AlanHootman/ppt-assistant-sub000/internal/deck"
	"github.com/AlanHootman/ppt-assistant-sub000/internal/models"
)

// runAnalyze derives the per-layout feature set from the template deck.
// The analysis is deterministic: element roles and geometry classify each
// layout, so re-running on the same template always yields the same
// descriptor counts.
func (e *Engine) runAnalyze(ctx context.Context, st *pipelineState) error {
	templateRef := st.job.Input.TemplateRef
	templatePath := e.templatePath(templateRef)
	if _, err := os.Stat(templatePath); err != nil {
		return PreconditionError(StageAnalyze, fmt.Sprintf("template not found: %s", templateRef))
	}

	key := templateStem(templateRef)
	features, err := cachedStage(e, StageAnalyze, key, func() (*models.TemplateFeatures, error) {
		template, err := deck.Load(templatePath)
		if err != nil {
			return nil, NewError(models.ErrStageFailed, StageAnalyze, "failed to load template", err)
		}
		if len(template.Slides) == 0 {
			return nil, NewError(models.ErrStageFailed, StageAnalyze, "template has no slides", nil)
		}

		features := &models.TemplateFeatures{
			TemplateRef: templateRef,
			Theme:       template.Theme,
		}
		for i := range template.Slides {
			features.Layouts = append(features.Layouts, analyzeSlide(&template.Slides[i], i))
		}
		return features, nil
	})
	if err != nil {
		return err
	}

	st.features = features
	return nil
}

// templatePath resolves a template ref against the template directory.
// Refs may carry the .json extension or omit it.
func (e *Engine) templatePath(ref string) string {
	name := ref
	if !strings.HasSuffix(name, ".json") {
		name += ".json"
	}
	return filepath.Join(e.storageCfg.TemplateDir, name)
}

func templateStem(ref string) string {
	return strings.TrimSuffix(filepath.Base(ref), filepath.Ext(ref))
}

// analyzeSlide classifies one template slide into a layout descriptor.
func analyzeSlide(s *deck.Slide, index int) models.LayoutDescriptor {
	name := s.Layout
	if name == "" {
		name = fmt.Sprintf("layout-%d", index)
	}

	descriptor := models.LayoutDescriptor{
		Name:       name,
		SlideIndex: index,
	}

	groups := make(map[string]int)
	for _, el := range s.Elements {
		role := classifyRegion(&el)
		if role == models.RoleImage {
			descriptor.ImageSlots++
		}
		region := models.EditableRegion{
			ElementID: el.ID,
			Role:      role,
			MaxChars:  maxCharsFor(&el, role),
		}
		// Shape pairs group by shared id prefix ("step1-label"/"step1-body").
		if role == models.RoleShapeLabel || role == models.RoleShapeContent {
			if prefix, _, found := strings.Cut(el.ID, "-"); found {
				region.GroupID = prefix
				groups[prefix]++
			}
		}
		descriptor.Regions = append(descriptor.Regions, region)
	}

	descriptor.Type = classifyLayout(name, &descriptor, len(groups))
	descriptor.Purpose = layoutPurpose(descriptor.Type)
	return descriptor
}

// classifyRegion maps one element to its editable-region role. An explicit
// role on the element wins; otherwise geometry decides.
func classifyRegion(el *deck.Element) models.RegionRole {
	switch models.RegionRole(el.Role) {
	case models.RoleTitle, models.RoleParagraphSingle, models.RoleParagraphMulti,
		models.RoleBulletShort, models.RoleBulletLong, models.RoleNumbered,
		models.RoleShapeLabel, models.RoleShapeContent, models.RoleImage:
		return models.RegionRole(el.Role)
	}

	if el.ImageRef != "" {
		return models.RoleImage
	}
	if el.FontSize >= 32 {
		return models.RoleTitle
	}
	if el.H < 60 && el.W < 300 {
		return models.RoleShapeLabel
	}
	if el.H >= 200 {
		return models.RoleParagraphMulti
	}
	return models.RoleParagraphSingle
}

// maxCharsFor estimates region capacity from its box and font size. The
// validation loop uses this as a soft bound when matching content.
func maxCharsFor(el *deck.Element, role models.RegionRole) int {
	fontSize := el.FontSize
	if fontSize <= 0 {
		fontSize = 18
	}
	charW := fontSize * 0.55
	lineH := fontSize * 1.4
	if charW <= 0 || lineH <= 0 || el.W <= 0 || el.H <= 0 {
		return 0
	}
	perLine := int(el.W / charW)
	lines := int(el.H / lineH)
	if lines < 1 {
		lines = 1
	}
	return perLine * lines
}

// classifyLayout infers the layout's content structure type from its name
// and region mix.
func classifyLayout(name string, d *models.LayoutDescriptor, groupCount int) models.LayoutType {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "opening"), strings.Contains(lower, "cover"), strings.Contains(lower, "title slide"):
		return models.LayoutOpening
	case strings.Contains(lower, "closing"), strings.Contains(lower, "thank"), strings.Contains(lower, "end"):
		return models.LayoutClosing
	case strings.Contains(lower, "timeline"):
		return models.LayoutTimeline
	case strings.Contains(lower, "comparison"), strings.Contains(lower, "versus"):
		return models.LayoutComparison
	case strings.Contains(lower, "flow"), strings.Contains(lower, "process"):
		return models.LayoutFlow
	case strings.Contains(lower, "grid"):
		return models.LayoutGrid
	}

	bullets := len(d.RegionsByRole(models.RoleBulletShort)) +
		len(d.RegionsByRole(models.RoleBulletLong)) +
		len(d.RegionsByRole(models.RoleNumbered))
	switch {
	case groupCount >= 3:
		return models.LayoutFlow
	case groupCount == 2:
		return models.LayoutComparison
	case bullets > 0:
		return models.LayoutBulletList
	case len(d.RegionsByRole(models.RoleParagraphMulti)) > 0 || len(d.RegionsByRole(models.RoleParagraphSingle)) > 0:
		return models.LayoutTitleBody
	default:
		return models.LayoutFreeForm
	}
}

func layoutPurpose(t models.LayoutType) string {
	switch t {
	case models.LayoutOpening:
		return "Deck opening with title and subtitle"
	case models.LayoutClosing:
		return "Deck closing"
	case models.LayoutBulletList:
		return "Itemized points"
	case models.LayoutFlow:
		return "Sequential steps"
	case models.LayoutComparison:
		return "Side-by-side comparison"
	case models.LayoutTimeline:
		return "Chronological progression"
	case models.LayoutGrid:
		return "Grid of parallel items"
	case models.LayoutTitleBody:
		return "Title with body text"
	default:
		return "Free-form content"
	}
}
