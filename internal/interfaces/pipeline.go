package interfaces

import (
	"context"

	"github.com/AlanHootman/ppt-assistant-sub000/internal/models"
)

// ArtifactCache is the content-addressed stage artifact store. Keys are
// stable fingerprints of a stage's canonical inputs; values are immutable
// JSON artifacts. A hit short-circuits the stage.
type ArtifactCache interface {
	// Get decodes the cached artifact for {stage}/{key} into out.
	// Returns false when absent.
	Get(stage, key string, out interface{}) (bool, error)

	// Put stores the artifact under {stage}/{key}.
	Put(stage, key string, artifact interface{}) error

	// Prune removes entries older than maxAge, returning the count removed.
	Prune(maxAge int64) (int, error)
}

// SlideRenderer renders every slide of a saved deck to images in one
// batch, returning position → image path.
type SlideRenderer interface {
	RenderDeck(ctx context.Context, deckPath string, outDir string) (map[int]string, error)
}

// ProgressReporter is how pipeline stages surface progress without
// knowing about the status channel's shape.
type ProgressReporter interface {
	ReportProgress(ctx context.Context, jobID string, progress int, step, description string)
	ReportPreviews(ctx context.Context, jobID string, refs []string)
}

// CancelCheck reports whether the job has been flagged for cancellation.
// Workers check it at stage boundaries and validation-loop tops.
type CancelCheck func() bool

// SlideAnalyzer diagnoses one rendered slide against its planned content.
type SlideAnalyzer interface {
	AnalyzeSlide(ctx context.Context, imagePath string, elements []models.EditableRegion, section *models.Section) (*models.SlideAnalysis, error)
}
