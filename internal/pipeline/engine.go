package pipeline

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/AlanHootman/ppt-assistant-sub000/internal/common"
	"github.com/AlanHootman/ppt-assistant-sub000/internal/deck"
	"github.com/AlanHootman/ppt-assistant-sub000/internal/interfaces"
	"github.com/AlanHootman/ppt-assistant-sub000/internal/models"
	"github.com/ternarybob/arbor"
)

// Stage names, also used as checkpoint entries and cache directories.
const (
	StageParse    = "parse"
	StageAnalyze  = "analyze"
	StagePlan     = "plan"
	StageGenerate = "generate"
	StageFinalize = "finalize"
)

// Engine executes the ordered pipeline stages for one job. It owns the
// in-memory pipeline state for the duration of a run; persistent state
// goes through the job store and the progress reporter.
type Engine struct {
	pool       interfaces.ModelPool
	cache      interfaces.ArtifactCache
	renderer   interfaces.SlideRenderer
	jobs       interfaces.JobStorage
	reporter   interfaces.ProgressReporter
	storageCfg *common.StorageConfig
	validCfg   *common.ValidationConfig
	cacheOn    bool
	logger     arbor.ILogger
}

// NewEngine wires a stage engine from its collaborators.
func NewEngine(
	pool interfaces.ModelPool,
	cache interfaces.ArtifactCache,
	renderer interfaces.SlideRenderer,
	jobs interfaces.JobStorage,
	reporter interfaces.ProgressReporter,
	config *common.Config,
	logger arbor.ILogger,
) *Engine {
	return &Engine{
		pool:       pool,
		cache:      cache,
		renderer:   renderer,
		jobs:       jobs,
		reporter:   reporter,
		storageCfg: &config.Storage,
		validCfg:   &config.Validation,
		cacheOn:    config.Pipeline.CacheEnabled,
		logger:     logger,
	}
}

// pipelineState is the in-memory state threaded through one run.
type pipelineState struct {
	job       *models.Job
	outline   *models.Outline
	features  *models.TemplateFeatures
	plan      *models.ContentPlan
	working   *deck.Deck
	workDir   string
	report    *models.ValidationReport
	cancelled interfaces.CancelCheck
}

type stageFunc func(ctx context.Context, st *pipelineState) error

type stageDef struct {
	name        string
	endProgress int
	run         stageFunc
}

// RunGenerate executes the full parse → finalize pipeline for a generate
// job, returning the output artifact path. Cancellation is honoured at
// stage boundaries only; in-flight model calls run to completion.
func (e *Engine) RunGenerate(ctx context.Context, job *models.Job, cancelled interfaces.CancelCheck) (string, error) {
	st := &pipelineState{
		job:       job,
		workDir:   filepath.Join(e.storageCfg.WorkDir, job.ID),
		cancelled: cancelled,
	}

	// Finalize tops out at 99: the full 100 belongs to the worker's
	// completion publish, so progress reaches it only alongside the
	// completed status.
	stages := []stageDef{
		{StageParse, 25, e.runParse},
		{StageAnalyze, 40, e.runAnalyze},
		{StagePlan, 55, e.runPlan},
		{StageGenerate, 75, e.runGenerate},
		{StageFinalize, 99, e.runFinalize},
	}

	for _, stage := range stages {
		if cancelled != nil && cancelled() {
			return "", &Error{Kind: models.ErrCancelled, Stage: stage.name, Message: "job cancelled"}
		}

		e.reporter.ReportProgress(ctx, job.ID, stageProgressStart(stage.name), stage.name, stageDescription(stage.name))
		e.logger.Info().Str("job_id", job.ID).Str("stage", stage.name).Msg("Stage started")

		if err := stage.run(ctx, st); err != nil {
			e.logger.Warn().Err(err).Str("job_id", job.ID).Str("stage", stage.name).Msg("Stage failed")
			return "", err
		}

		if err := e.checkpoint(ctx, job, stage.name, stage.endProgress); err != nil {
			return "", err
		}
		e.reporter.ReportProgress(ctx, job.ID, stage.endProgress, stage.name, stage.name+" complete")
	}

	return st.job.OutputRef, nil
}

// RunAnalyzeTemplate executes just the template analysis stage for an
// analyze-template job and saves the feature set as the output artifact.
func (e *Engine) RunAnalyzeTemplate(ctx context.Context, job *models.Job, cancelled interfaces.CancelCheck) (string, error) {
	if cancelled != nil && cancelled() {
		return "", &Error{Kind: models.ErrCancelled, Stage: StageAnalyze, Message: "job cancelled"}
	}

	st := &pipelineState{job: job, workDir: filepath.Join(e.storageCfg.WorkDir, job.ID)}

	e.reporter.ReportProgress(ctx, job.ID, 10, StageAnalyze, stageDescription(StageAnalyze))
	if err := e.runAnalyze(ctx, st); err != nil {
		return "", err
	}

	outputRef := filepath.Join(e.storageCfg.OutputDir, job.ID, "template-features.json")
	if err := writeJSONArtifact(outputRef, st.features); err != nil {
		return "", NewError(models.ErrStageFailed, StageAnalyze, "failed to save template features", err)
	}

	if err := e.checkpoint(ctx, job, StageAnalyze, 95); err != nil {
		return "", err
	}
	st.job.OutputRef = outputRef
	return outputRef, nil
}

// checkpoint records the completed stage on the job record and bumps its
// progress and heartbeat in one write.
func (e *Engine) checkpoint(ctx context.Context, job *models.Job, stage string, progress int) error {
	job.Stage = stage
	job.Checkpoints = append(job.Checkpoints, stage)
	if progress > job.Progress {
		job.Progress = progress
	}
	job.Heartbeat()

	if err := e.jobs.UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("failed to checkpoint stage %s: %w", stage, err)
	}
	return nil
}

// cachedStage consults the artifact cache before running a stage body.
// Hits short-circuit; successful misses write back.
func cachedStage[T any](e *Engine, stage, key string, run func() (*T, error)) (*T, error) {
	if e.cacheOn && key != "" {
		var cached T
		if hit, err := e.cache.Get(stage, key, &cached); err == nil && hit {
			e.logger.Info().Str("stage", stage).Str("key", key).Msg("Stage cache hit")
			return &cached, nil
		}
	}

	result, err := run()
	if err != nil {
		return nil, err
	}

	if e.cacheOn && key != "" {
		if err := e.cache.Put(stage, key, result); err != nil {
			e.logger.Warn().Err(err).Str("stage", stage).Msg("Failed to write stage cache")
		}
	}
	return result, nil
}

func stageProgressStart(stage string) int {
	switch stage {
	case StageParse:
		return 5
	case StageAnalyze:
		return 25
	case StagePlan:
		return 40
	case StageGenerate:
		return 55
	default:
		return 75
	}
}

func stageDescription(stage string) string {
	switch stage {
	case StageParse:
		return "Parsing markdown into an outline"
	case StageAnalyze:
		return "Analyzing template layouts"
	case StagePlan:
		return "Planning slide content"
	case StageGenerate:
		return "Generating slides"
	case StageFinalize:
		return "Finalizing presentation"
	default:
		return ""
	}
}
