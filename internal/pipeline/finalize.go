package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/AlanHootman/ppt-assistant-sub000/internal/deck"
	"github.com/AlanHootman/ppt-assistant-sub000/internal/models"
	"github.com/AlanHootman/ppt-assistant-sub000/internal/pipeline/validation"
)

// runFinalize cleans template remnants out of the working deck, rebuilds
// the physical order from the slide_ids planted in notes, runs the
// validation loop and saves the output artifact.
func (e *Engine) runFinalize(ctx context.Context, st *pipelineState) error {
	if st.working == nil || st.plan == nil {
		return PreconditionError(StageFinalize, "generated slides and content plan are required")
	}

	cleaned, err := dropTemplateSlides(st.working, st.plan)
	if err != nil {
		return NewError(models.ErrStageFailed, StageFinalize, "slide cleanup refused", err)
	}

	ordered, err := reorderByPlan(cleaned, st.plan)
	if err != nil {
		return NewError(models.ErrStageFailed, StageFinalize, "slide reorder failed", err)
	}
	st.working = ordered

	if st.job.Input.ValidationEnabled && e.validCfg.Enabled {
		loop := validation.NewLoop(
			e.renderer,
			validation.NewAnalyzer(e.pool, e.logger),
			e.validCfg.MaxIterations,
			e.validCfg.MaxWorkers,
			e.logger,
		)
		report, err := loop.Run(ctx, st.working, st.plan, st.features, st.workDir, st.cancelled)
		if err != nil {
			if errors.Is(err, validation.ErrCancelled) {
				return &Error{Kind: models.ErrCancelled, Stage: StageFinalize, Message: "job cancelled"}
			}
			return NewError(models.ErrStageFailed, StageFinalize, "validation loop failed", err)
		}
		st.report = report
		e.reporter.ReportPreviews(ctx, st.job.ID, report.PreviewRefs)
	}

	outputDir := filepath.Join(e.storageCfg.OutputDir, st.job.ID)
	outputRef := filepath.Join(outputDir, "presentation.json")
	if err := deck.Save(st.working, outputRef); err != nil {
		return NewError(models.ErrStageFailed, StageFinalize, "failed to save presentation", err)
	}

	if st.report != nil {
		if err := writeJSONArtifact(filepath.Join(outputDir, "validation-report.json"), st.report); err != nil {
			e.logger.Warn().Err(err).Str("job_id", st.job.ID).Msg("Failed to save validation report")
		}
	}

	st.job.OutputRef = outputRef
	return nil
}

// dropTemplateSlides removes every slide whose notes carry no slide_id
// from the plan. Deleting the entire deck is refused: generation must
// have produced at least one planned slide.
func dropTemplateSlides(d *deck.Deck, plan *models.ContentPlan) (*deck.Deck, error) {
	planned := make(map[string]bool, len(plan.Slides))
	for _, entry := range plan.Slides {
		planned[entry.SlideID] = true
	}

	kept := make([]deck.Slide, 0, len(plan.Slides))
	for i := range d.Slides {
		if planned[d.Slides[i].SlideID()] {
			kept = append(kept, d.Slides[i])
		}
	}

	if len(kept) == 0 {
		return nil, fmt.Errorf("deletion would remove all %d slides", len(d.Slides))
	}

	out := *d
	out.Slides = kept
	return &out, nil
}

// reorderByPlan arranges slides so physical index matches plan order,
// re-associating positions through the slide_ids stored in notes.
func reorderByPlan(d *deck.Deck, plan *models.ContentPlan) (*deck.Deck, error) {
	index := d.SlideIDIndex()

	ordered := make([]deck.Slide, 0, len(plan.Slides))
	for _, slideID := range plan.Order() {
		position, ok := index[slideID]
		if !ok {
			return nil, fmt.Errorf("planned slide %s is missing from the deck", slideID)
		}
		ordered = append(ordered, d.Slides[position])
	}

	out := *d
	out.Slides = ordered
	return &out, nil
}
