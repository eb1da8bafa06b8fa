package validation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/AlanHootman/ppt-assistant-sub000/internal/deck"
	"github.com/AlanHootman/ppt-assistant-sub000/internal/models"
)

// fakeRenderer pretends every slide rendered, handing back stable image
// names keyed by position.
type fakeRenderer struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (r *fakeRenderer) RenderDeck(ctx context.Context, deckPath string, outDir string) (map[int]string, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}

	d, err := deck.Load(deckPath)
	if err != nil {
		return nil, err
	}
	images := make(map[int]string, len(d.Slides))
	for i := range d.Slides {
		images[i] = fmt.Sprintf("slide-%d.png", i)
	}
	return images, nil
}

// fakeAnalyzer plays back scripted verdicts per image, repeating the last
// one once the script runs out.
type fakeAnalyzer struct {
	mu       sync.Mutex
	verdicts map[string][]*models.SlideAnalysis
	errs     map[string]error
	served   map[string]int
}

func (a *fakeAnalyzer) AnalyzeSlide(ctx context.Context, imagePath string, elements []models.EditableRegion, section *models.Section) (*models.SlideAnalysis, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.errs[imagePath]; err != nil {
		return nil, err
	}
	if a.served == nil {
		a.served = make(map[string]int)
	}
	script := a.verdicts[imagePath]
	if len(script) == 0 {
		return &models.SlideAnalysis{QualityScore: 1}, nil
	}
	i := a.served[imagePath]
	if i >= len(script) {
		i = len(script) - 1
	}
	a.served[imagePath]++
	return script[i], nil
}

func clean() *models.SlideAnalysis {
	return &models.SlideAnalysis{HasIssues: false, QualityScore: 0.9}
}

func broken(elementID string) *models.SlideAnalysis {
	return &models.SlideAnalysis{
		HasIssues:    true,
		QualityScore: 0.4,
		Issues:       []models.SlideIssue{{Kind: "overflow", ElementID: elementID}},
		Operations: []models.Operation{
			{Type: models.OpAdjustFontSize, ElementID: elementID, FontSize: 20},
		},
	}
}

func loopFixture() (*deck.Deck, *models.ContentPlan, *models.TemplateFeatures) {
	d := &deck.Deck{Slides: []deck.Slide{
		{Notes: "slide_id: s-001", Elements: []deck.Element{{ID: "t1", Text: "a", FontSize: 30}}},
		{Notes: "slide_id: s-002", Elements: []deck.Element{{ID: "t2", Text: "b", FontSize: 18}}},
	}}
	plan := &models.ContentPlan{Slides: []models.SlideDescriptor{
		{SlideID: "s-001", Layout: "L1"},
		{SlideID: "s-002", Layout: "L2"},
	}}
	features := &models.TemplateFeatures{Layouts: []models.LayoutDescriptor{
		{Name: "L1", Regions: []models.EditableRegion{{ElementID: "t1", Role: models.RoleTitle}}},
		{Name: "L2", Regions: []models.EditableRegion{{ElementID: "t2", Role: models.RoleParagraphSingle}}},
	}}
	return d, plan, features
}

func TestLoopConverges(t *testing.T) {
	d, plan, features := loopFixture()
	analyzer := &fakeAnalyzer{verdicts: map[string][]*models.SlideAnalysis{
		"slide-0.png": {broken("t1"), clean()},
		"slide-1.png": {clean()},
	}}

	loop := NewLoop(&fakeRenderer{}, analyzer, 5, 2, arbor.NewLogger())
	report, err := loop.Run(context.Background(), d, plan, features, t.TempDir(), nil)
	require.NoError(t, err)

	assert.True(t, report.Converged)
	assert.Equal(t, 2, report.Iterations)
	require.Contains(t, report.Slides, "s-001")
	assert.Equal(t, 1, report.Slides["s-001"].OpsApplied)
	assert.Equal(t, []string{"slide-0.png", "slide-1.png"}, report.PreviewRefs)

	// The repair landed on the deck itself.
	assert.Equal(t, 20.0, d.Slides[0].FindElement("t1").FontSize)
}

func TestLoopStopsAtIterationCeiling(t *testing.T) {
	d, plan, features := loopFixture()
	analyzer := &fakeAnalyzer{verdicts: map[string][]*models.SlideAnalysis{
		"slide-0.png": {broken("t1")},
		"slide-1.png": {broken("t2")},
	}}

	loop := NewLoop(&fakeRenderer{}, analyzer, 2, 2, arbor.NewLogger())
	report, err := loop.Run(context.Background(), d, plan, features, t.TempDir(), nil)
	require.NoError(t, err)

	assert.False(t, report.Converged)
	assert.Equal(t, 2, report.Iterations)
}

func TestLoopStopsWhenNoOperationsRemain(t *testing.T) {
	d, plan, features := loopFixture()
	stuck := &models.SlideAnalysis{
		HasIssues:    true,
		QualityScore: 0.5,
		Issues:       []models.SlideIssue{{Kind: "crowded", Description: "too much content"}},
	}
	analyzer := &fakeAnalyzer{verdicts: map[string][]*models.SlideAnalysis{
		"slide-0.png": {stuck},
		"slide-1.png": {clean()},
	}}

	loop := NewLoop(&fakeRenderer{}, analyzer, 5, 2, arbor.NewLogger())
	report, err := loop.Run(context.Background(), d, plan, features, t.TempDir(), nil)
	require.NoError(t, err)

	assert.False(t, report.Converged, "issues remain but nothing can be repaired")
	assert.Equal(t, 1, report.Iterations)
}

func TestLoopAbsorbsAnalysisFailures(t *testing.T) {
	d, plan, features := loopFixture()
	analyzer := &fakeAnalyzer{
		errs: map[string]error{"slide-0.png": errors.New("vision model unavailable")},
		verdicts: map[string][]*models.SlideAnalysis{
			"slide-1.png": {clean()},
		},
	}

	loop := NewLoop(&fakeRenderer{}, analyzer, 3, 2, arbor.NewLogger())
	report, err := loop.Run(context.Background(), d, plan, features, t.TempDir(), nil)
	require.NoError(t, err)

	assert.True(t, report.Converged)
	require.Contains(t, report.Slides, "s-001")
	assert.Contains(t, report.Slides["s-001"].AnalysisErr, "vision model unavailable")
}

func TestLoopCancellation(t *testing.T) {
	d, plan, features := loopFixture()
	loop := NewLoop(&fakeRenderer{}, &fakeAnalyzer{}, 3, 2, arbor.NewLogger())

	_, err := loop.Run(context.Background(), d, plan, features, t.TempDir(), func() bool { return true })
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCancelled))
}

func TestLoopSkipsIterationWhenRenderFails(t *testing.T) {
	d, plan, features := loopFixture()
	renderer := &fakeRenderer{err: errors.New("chrome crashed")}

	loop := NewLoop(renderer, &fakeAnalyzer{}, 2, 2, arbor.NewLogger())
	report, err := loop.Run(context.Background(), d, plan, features, t.TempDir(), nil)
	require.NoError(t, err)

	assert.Equal(t, 2, renderer.calls, "each iteration retries the render")
	assert.False(t, report.Converged)
	assert.Empty(t, report.Slides)
}
