package validation

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/AlanHootman/ppt-assistant-sub000/internal/deck"
	"github.com/AlanHootman/ppt-assistant-sub000/internal/interfaces"
	"github.com/AlanHootman/ppt-assistant-sub000/internal/models"
	"github.com/ternarybob/arbor"
)

// ErrCancelled is returned when the job's cancellation flag is observed
// at an iteration boundary.
var ErrCancelled = errors.New("validation loop cancelled")

// Loop is the per-slide render, diagnose, repair cycle. Analyses run
// concurrently up to MaxWorkers; repairs apply serially in ascending
// position order so every iteration observes a consistent deck.
type Loop struct {
	renderer      interfaces.SlideRenderer
	analyzer      interfaces.SlideAnalyzer
	maxIterations int
	maxWorkers    int
	logger        arbor.ILogger
}

// NewLoop creates a validation loop with the given bounds. Iterations
// and workers both default to sensible minimums when out of range.
func NewLoop(renderer interfaces.SlideRenderer, analyzer interfaces.SlideAnalyzer, maxIterations, maxWorkers int, logger arbor.ILogger) *Loop {
	if maxIterations < 1 {
		maxIterations = 1
	}
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &Loop{
		renderer:      renderer,
		analyzer:      analyzer,
		maxIterations: maxIterations,
		maxWorkers:    maxWorkers,
		logger:        logger,
	}
}

// slideVerdict pairs one position's analysis with its failure, if any.
type slideVerdict struct {
	position int
	slideID  string
	analysis *models.SlideAnalysis
	err      error
}

// Run mutates the deck in place until no slide reports issues, an
// iteration applies zero operations, or the iteration bound is reached.
// Per-slide analysis failures are absorbed into the report; only
// cancellation aborts the loop with an error.
func (l *Loop) Run(ctx context.Context, d *deck.Deck, plan *models.ContentPlan, features *models.TemplateFeatures, workDir string, cancelled interfaces.CancelCheck) (*models.ValidationReport, error) {
	report := &models.ValidationReport{
		Slides: make(map[string]*models.SlideValidation),
	}

	regionIndex := make(map[string][]models.EditableRegion, len(features.Layouts))
	for _, layout := range features.Layouts {
		regionIndex[layout.Name] = layout.Regions
	}
	layoutByID := make(map[string]string, len(plan.Slides))
	for _, entry := range plan.Slides {
		layoutByID[entry.SlideID] = entry.Layout
	}

	for iteration := 1; iteration <= l.maxIterations; iteration++ {
		if cancelled != nil && cancelled() {
			return report, ErrCancelled
		}
		report.Iterations = iteration

		// Save and batch-render the current deck state. A failure here
		// skips this iteration and retries on the next.
		deckPath := filepath.Join(workDir, fmt.Sprintf("validate-%d.json", iteration))
		if err := deck.Save(d, deckPath); err != nil {
			l.logger.Warn().Err(err).Int("iteration", iteration).Msg("Validation save failed, skipping iteration")
			continue
		}
		images, err := l.renderer.RenderDeck(ctx, deckPath, filepath.Join(workDir, fmt.Sprintf("renders-%d", iteration)))
		if err != nil {
			l.logger.Warn().Err(err).Int("iteration", iteration).Msg("Validation render failed, skipping iteration")
			continue
		}
		report.PreviewRefs = previewRefs(images)

		verdicts := l.analyzeAll(ctx, d, plan, regionIndex, layoutByID, images)

		// Repairs are serial, ascending position.
		sort.Slice(verdicts, func(i, j int) bool { return verdicts[i].position < verdicts[j].position })

		issuesSeen := false
		opsExecuted := 0
		for _, v := range verdicts {
			record := report.Slides[v.slideID]
			if record == nil {
				record = &models.SlideValidation{SlideID: v.slideID}
				report.Slides[v.slideID] = record
			}
			record.Position = v.position
			record.Iterations = iteration
			record.UpdatedAt = time.Now()

			if v.err != nil {
				record.AnalysisErr = v.err.Error()
				l.logger.Warn().Err(v.err).Str("slide_id", v.slideID).Int("position", v.position).Msg("Slide analysis failed")
				continue
			}

			record.AnalysisErr = ""
			record.QualityScore = v.analysis.QualityScore
			record.Issues = v.analysis.Issues

			if !v.analysis.HasIssues {
				continue
			}
			issuesSeen = true
			if len(v.analysis.Operations) == 0 {
				continue
			}

			applied, _ := deck.ApplyBatch(&d.Slides[v.position], v.analysis.Operations)
			record.OpsApplied += applied
			opsExecuted += applied
		}

		l.logger.Info().
			Int("iteration", iteration).
			Int("slides", len(verdicts)).
			Bool("issues", issuesSeen).
			Int("ops_executed", opsExecuted).
			Msg("Validation iteration finished")

		if !issuesSeen || opsExecuted == 0 {
			report.Converged = !issuesSeen
			return report, nil
		}
	}

	return report, nil
}

// previewRefs flattens a render batch into position order.
func previewRefs(images map[int]string) []string {
	positions := make([]int, 0, len(images))
	for position := range images {
		positions = append(positions, position)
	}
	sort.Ints(positions)

	refs := make([]string, 0, len(positions))
	for _, position := range positions {
		refs = append(refs, images[position])
	}
	return refs
}

// analyzeAll schedules the per-slide analyses concurrently up to
// MaxWorkers and collects the verdicts. Only positions whose notes carry
// a slide_id matching a plan entry participate.
func (l *Loop) analyzeAll(
	ctx context.Context,
	d *deck.Deck,
	plan *models.ContentPlan,
	regionIndex map[string][]models.EditableRegion,
	layoutByID map[string]string,
	images map[int]string,
) []slideVerdict {
	var (
		mu       sync.Mutex
		verdicts []slideVerdict
		wg       sync.WaitGroup
	)
	sem := make(chan struct{}, l.maxWorkers)

	for position := range d.Slides {
		slideID := d.Slides[position].SlideID()
		if slideID == "" {
			continue
		}
		entry := plan.ByID(slideID)
		if entry == nil {
			continue
		}
		imagePath, ok := images[position]
		if !ok {
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(position int, slideID, imagePath string, entry *models.SlideDescriptor) {
			defer wg.Done()
			defer func() { <-sem }()

			analysis, err := l.analyzer.AnalyzeSlide(ctx, imagePath, regionIndex[layoutByID[slideID]], entry.Section)

			mu.Lock()
			verdicts = append(verdicts, slideVerdict{
				position: position,
				slideID:  slideID,
				analysis: analysis,
				err:      err,
			})
			mu.Unlock()
		}(position, slideID, imagePath, entry)
	}

	wg.Wait()
	return verdicts
}
