package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/AlanHootman/ppt-assistant-sub000/internal/interfaces"
	"github.com/AlanHootman/ppt-assistant-sub000/internal/models"
	"github.com/AlanHootman/ppt-assistant-sub000/internal/services/cache"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// runParse builds the structured outline from the job's markdown. The
// structural pass is deterministic (goldmark AST); the annotation tags
// come from one text-model call over the flattened sections. An empty
// document fails immediately rather than retrying: a markdown text with
// no headings cannot converge into an outline.
func (e *Engine) runParse(ctx context.Context, st *pipelineState) error {
	markdown := st.job.Input.Markdown
	if strings.TrimSpace(markdown) == "" {
		return PreconditionError(StageParse, "markdown is empty")
	}

	key := cache.Fingerprint(markdown)
	outline, err := cachedStage(e, StageParse, key, func() (*models.Outline, error) {
		outline, err := buildOutline([]byte(markdown))
		if err != nil {
			return nil, NewError(models.ErrStageFailed, StageParse, "failed to parse markdown", err)
		}
		if len(outline.Sections) == 0 && outline.Title == "" {
			return nil, NewError(models.ErrStageFailed, StageParse, "document yields an empty outline", nil)
		}

		if err := e.annotateOutline(ctx, outline); err != nil {
			return nil, err
		}
		return outline, nil
	})
	if err != nil {
		return err
	}

	st.outline = outline
	return nil
}

// buildOutline walks the goldmark AST into the outline tree. The first H1
// becomes the title; a leading paragraph before any section becomes the
// subtitle; deeper headings open nested sections up to MaxSectionDepth.
func buildOutline(source []byte) (*models.Outline, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.Table))
	doc := md.Parser().Parse(text.NewReader(source))

	outline := &models.Outline{}

	// sectionStack[i] holds the open section at depth i+1.
	var sectionStack []*models.Section

	appendSection := func(level int, title string) {
		if level > models.MaxSectionDepth {
			level = models.MaxSectionDepth
		}
		section := models.Section{Title: title, Level: level}

		if level <= 1 || len(sectionStack) == 0 {
			outline.Sections = append(outline.Sections, section)
			sectionStack = []*models.Section{&outline.Sections[len(outline.Sections)-1]}
			return
		}

		parentDepth := level - 1
		if parentDepth > len(sectionStack) {
			parentDepth = len(sectionStack)
		}
		parent := sectionStack[parentDepth-1]
		parent.Subsections = append(parent.Subsections, section)
		sectionStack = append(sectionStack[:parentDepth], &parent.Subsections[len(parent.Subsections)-1])
	}

	currentSection := func() *models.Section {
		if len(sectionStack) == 0 {
			return nil
		}
		return sectionStack[len(sectionStack)-1]
	}

	addBlock := func(block models.ContentBlock) {
		if section := currentSection(); section != nil {
			section.Blocks = append(section.Blocks, block)
		}
	}

	for node := doc.FirstChild(); node != nil; node = node.NextSibling() {
		switch n := node.(type) {
		case *ast.Heading:
			title := string(n.Text(source))
			if n.Level == 1 && outline.Title == "" {
				outline.Title = title
				continue
			}
			// H2 opens a level-1 section; H1 after the title does too.
			level := n.Level - 1
			if level < 1 {
				level = 1
			}
			appendSection(level, title)

		case *ast.Paragraph:
			content := string(n.Text(source))
			if currentSection() == nil {
				if outline.Subtitle == "" && outline.Title != "" {
					outline.Subtitle = content
				}
				continue
			}
			if img := firstImage(n, source); img != "" {
				addBlock(models.ContentBlock{Type: models.BlockImage, ImageRef: img})
				continue
			}
			addBlock(models.ContentBlock{Type: models.BlockParagraph, Text: content})

		case *ast.List:
			items := listItems(n, source)
			if len(items) == 0 {
				continue
			}
			blockType := models.BlockBulletList
			if n.IsOrdered() {
				blockType = models.BlockNumberedList
			}
			addBlock(models.ContentBlock{Type: blockType, Items: items})

		case *extast.Table:
			rows := tableRows(n, source)
			if len(rows) == 0 {
				continue
			}
			addBlock(models.ContentBlock{Type: models.BlockTable, Rows: rows})

		case *ast.FencedCodeBlock:
			var code strings.Builder
			for i := 0; i < n.Lines().Len(); i++ {
				line := n.Lines().At(i)
				code.Write(line.Value(source))
			}
			addBlock(models.ContentBlock{
				Type:     models.BlockCode,
				Text:     code.String(),
				Language: string(n.Language(source)),
			})
		}
	}

	return outline, nil
}

func listItems(list *ast.List, source []byte) []string {
	var items []string
	for item := list.FirstChild(); item != nil; item = item.NextSibling() {
		text := strings.TrimSpace(string(item.Text(source)))
		if text != "" {
			items = append(items, text)
		}
	}
	return items
}

// tableRows flattens the header and body rows into cell text. The header
// row comes first so downstream text joins keep the column names.
func tableRows(table *extast.Table, source []byte) [][]string {
	var rows [][]string
	for child := table.FirstChild(); child != nil; child = child.NextSibling() {
		switch child.(type) {
		case *extast.TableHeader, *extast.TableRow:
			var row []string
			for cell := child.FirstChild(); cell != nil; cell = cell.NextSibling() {
				if _, ok := cell.(*extast.TableCell); ok {
					row = append(row, string(cell.Text(source)))
				}
			}
			rows = append(rows, row)
		}
	}
	return rows
}

func firstImage(node ast.Node, source []byte) string {
	var ref string
	ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if img, ok := n.(*ast.Image); ok && entering {
			ref = string(img.Destination)
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})
	return ref
}

// sectionAnnotation mirrors the JSON shape the annotation prompt asks for.
type sectionAnnotation struct {
	SemanticType      string `json:"semantic_type"`
	RelationType      string `json:"relation_type"`
	VisualizationHint string `json:"visualization_hint"`
}

// annotateOutline asks the text model for the three annotation tags per
// flattened section, then writes them back into the tree. Transient model
// failures are retried by the pool; exhaustion surfaces as ModelUnavailable.
func (e *Engine) annotateOutline(ctx context.Context, outline *models.Outline) error {
	flat := outline.FlatSections()
	if len(flat) == 0 {
		return nil
	}

	client, err := e.pool.Client(ctx, models.ModelText)
	if err != nil {
		return ModelError(StageParse, err)
	}

	response, err := client.GenerateText(ctx, []interfaces.Message{
		{Role: "system", Content: annotationSystemPrompt},
		{Role: "user", Content: annotationUserPrompt(flat)},
	})
	if err != nil {
		return ModelError(StageParse, err)
	}

	var annotations []sectionAnnotation
	if err := json.Unmarshal([]byte(extractJSON(response)), &annotations); err != nil {
		return NewError(models.ErrStageFailed, StageParse, "annotation response is not valid JSON", err)
	}
	if len(annotations) != len(flat) {
		return NewError(models.ErrStageFailed, StageParse,
			fmt.Sprintf("annotation count mismatch: %d sections, %d annotations", len(flat), len(annotations)), nil)
	}

	i := 0
	var apply func(secs []models.Section)
	apply = func(secs []models.Section) {
		for j := range secs {
			a := annotations[i]
			i++
			secs[j].SemanticType = normalizeSemanticType(a.SemanticType)
			secs[j].RelationType = normalizeRelationType(a.RelationType)
			secs[j].VisualizationHint = normalizeVisualizationHint(a.VisualizationHint)
			apply(secs[j].Subsections)
		}
	}
	apply(outline.Sections)

	return nil
}

const annotationSystemPrompt = `You classify presentation outline sections. ` +
	`Answer with a JSON array only, one object per section, each with keys ` +
	`"semantic_type" (concept|process|comparison|data|example|summary), ` +
	`"relation_type" (parallel|sequential|hierarchy|contrast|standalone) and ` +
	`"visualization_hint" (bullets|flow|grid|timeline|table|prose).`

func annotationUserPrompt(sections []models.Section) string {
	var b strings.Builder
	b.WriteString("Classify these sections in order:\n")
	for i, s := range sections {
		fmt.Fprintf(&b, "%d. %s", i+1, s.Title)
		for _, block := range s.Blocks {
			if block.Type == models.BlockParagraph && block.Text != "" {
				summary := block.Text
				if len(summary) > 200 {
					summary = summary[:200]
				}
				fmt.Fprintf(&b, " - %s", summary)
				break
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

// The normalizers fall back to the most generic tag so one off-vocabulary
// answer does not fail the stage.

func normalizeSemanticType(s string) models.SemanticType {
	switch models.SemanticType(s) {
	case models.SemanticConcept, models.SemanticProcess, models.SemanticComparison,
		models.SemanticData, models.SemanticExample, models.SemanticSummary:
		return models.SemanticType(s)
	default:
		return models.SemanticConcept
	}
}

func normalizeRelationType(s string) models.RelationType {
	switch models.RelationType(s) {
	case models.RelationParallel, models.RelationSequential, models.RelationHierarchy,
		models.RelationContrast, models.RelationStandalone:
		return models.RelationType(s)
	default:
		return models.RelationStandalone
	}
}

func normalizeVisualizationHint(s string) models.VisualizationHint {
	switch models.VisualizationHint(s) {
	case models.VisualizeBullets, models.VisualizeFlow, models.VisualizeGrid,
		models.VisualizeTimeline, models.VisualizeTable, models.VisualizeProse:
		return models.VisualizationHint(s)
	default:
		return models.VisualizeBullets
	}
}
