package app

import (
	"context"

	"github.com/ternarybob/arbor"

	"github.com/AlanHootman/ppt-assistant-sub000/internal/interfaces"
	"github.com/AlanHootman/ppt-assistant-sub000/internal/models"
)

// statusReporter bridges pipeline progress onto the status channel.
type statusReporter struct {
	status interfaces.StatusChannel
	logger arbor.ILogger
}

func (r *statusReporter) ReportProgress(ctx context.Context, jobID string, progress int, step, description string) {
	patch := models.StatusPatch{
		Progress:        models.IntPtr(progress),
		CurrentStep:     models.StrPtr(step),
		StepDescription: models.StrPtr(description),
	}
	if err := r.status.Put(ctx, jobID, patch); err != nil {
		r.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to report progress")
	}
}

func (r *statusReporter) ReportPreviews(ctx context.Context, jobID string, refs []string) {
	if len(refs) == 0 {
		return
	}
	patch := models.StatusPatch{PreviewRefs: refs}
	if err := r.status.Put(ctx, jobID, patch); err != nil {
		r.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to report previews")
	}
}

var _ interfaces.ProgressReporter = (*statusReporter)(nil)
