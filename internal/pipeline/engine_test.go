package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/AlanHootman/ppt-assistant-sub000/internal/common"
	"github.com/AlanHootman/ppt-assistant-sub000/internal/deck"
	"github.com/AlanHootman/ppt-assistant-sub000/internal/interfaces"
	"github.com/AlanHootman/ppt-assistant-sub000/internal/models"
)

// fakeClient answers every text call with a canned response.
type fakeClient struct {
	response string
	err      error
	calls    int
}

func (c *fakeClient) GenerateText(ctx context.Context, messages []interfaces.Message) (string, error) {
	c.calls++
	return c.response, c.err
}

func (c *fakeClient) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("not supported")
}

func (c *fakeClient) AnalyzeImage(ctx context.Context, imagePath string, prompt string) (string, error) {
	c.calls++
	return c.response, c.err
}

func (c *fakeClient) AnalyzeImages(ctx context.Context, imagePaths []string, prompt string) (string, error) {
	return "", errors.New("not supported")
}

func (c *fakeClient) Close() error { return nil }

type fakePool struct {
	client interfaces.ModelClient
	err    error
}

func (p *fakePool) Client(ctx context.Context, kind models.ModelKind) (interfaces.ModelClient, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.client, nil
}

func (p *fakePool) Invalidate(kind models.ModelKind) {}
func (p *fakePool) Close() error                     { return nil }

// fakeCache is an in-memory ArtifactCache that counts accesses.
type fakeCache struct {
	store map[string][]byte
	gets  int
	puts  int
}

func newFakeCache() *fakeCache {
	return &fakeCache{store: make(map[string][]byte)}
}

func (c *fakeCache) Get(stage, key string, out interface{}) (bool, error) {
	c.gets++
	data, ok := c.store[stage+"/"+key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(data, out)
}

func (c *fakeCache) Put(stage, key string, artifact interface{}) error {
	c.puts++
	data, err := json.Marshal(artifact)
	if err != nil {
		return err
	}
	c.store[stage+"/"+key] = data
	return nil
}

func (c *fakeCache) Prune(maxAge int64) (int, error) { return 0, nil }

type nopReporter struct{}

func (nopReporter) ReportProgress(ctx context.Context, jobID string, progress int, step, description string) {
}

func (nopReporter) ReportPreviews(ctx context.Context, jobID string, refs []string) {}

func testEngine(t *testing.T, pool interfaces.ModelPool, cache interfaces.ArtifactCache, cacheOn bool) *Engine {
	t.Helper()
	config := common.NewDefaultConfig()
	config.Pipeline.CacheEnabled = cacheOn
	config.Storage.TemplateDir = t.TempDir()
	config.Storage.OutputDir = t.TempDir()
	config.Storage.WorkDir = t.TempDir()
	return NewEngine(pool, cache, nil, nil, nopReporter{}, config, arbor.NewLogger())
}

func TestCachedStageHitSkipsStageBody(t *testing.T) {
	cache := newFakeCache()
	require.NoError(t, cache.Put("parse", "k1", &models.Outline{Title: "cached"}))
	cache.puts = 0

	e := testEngine(t, nil, cache, true)

	ran := false
	outline, err := cachedStage(e, "parse", "k1", func() (*models.Outline, error) {
		ran = true
		return &models.Outline{Title: "fresh"}, nil
	})
	require.NoError(t, err)
	assert.False(t, ran, "cache hit must not run the stage body")
	assert.Equal(t, "cached", outline.Title)
	assert.Equal(t, 0, cache.puts)
}

func TestCachedStageMissRunsAndWritesBack(t *testing.T) {
	cache := newFakeCache()
	e := testEngine(t, nil, cache, true)

	outline, err := cachedStage(e, "parse", "k1", func() (*models.Outline, error) {
		return &models.Outline{Title: "fresh"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "fresh", outline.Title)
	assert.Equal(t, 1, cache.puts)

	var cached models.Outline
	hit, err := cache.Get("parse", "k1", &cached)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "fresh", cached.Title)
}

func TestCachedStageDisabledBypassesCache(t *testing.T) {
	cache := newFakeCache()
	e := testEngine(t, nil, cache, false)

	_, err := cachedStage(e, "parse", "k1", func() (*models.Outline, error) {
		return &models.Outline{Title: "fresh"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0, cache.gets)
	assert.Equal(t, 0, cache.puts)
}

func TestCachedStageErrorDoesNotWriteBack(t *testing.T) {
	cache := newFakeCache()
	e := testEngine(t, nil, cache, true)

	_, err := cachedStage(e, "parse", "k1", func() (*models.Outline, error) {
		return nil, errors.New("boom")
	})
	assert.Error(t, err)
	assert.Equal(t, 0, cache.puts)
}

func TestRunGenerateHonoursCancellationAtStageBoundary(t *testing.T) {
	e := testEngine(t, nil, newFakeCache(), false)

	job := models.NewJob(models.JobKindGenerate, models.JobInput{TemplateRef: "basic", Markdown: "# T"})
	_, err := e.RunGenerate(context.Background(), job, func() bool { return true })
	require.Error(t, err)

	var perr *Error
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, models.ErrCancelled, perr.Kind)
}

// recordingReporter captures every progress value it is handed.
type recordingReporter struct {
	mu       sync.Mutex
	progress []int
}

func (r *recordingReporter) ReportProgress(ctx context.Context, jobID string, progress int, step, description string) {
	r.mu.Lock()
	r.progress = append(r.progress, progress)
	r.mu.Unlock()
}

func (r *recordingReporter) ReportPreviews(ctx context.Context, jobID string, refs []string) {}

// memJobs holds job records in a map; the engine only reads and
// checkpoints through it.
type memJobs struct {
	mu   sync.Mutex
	jobs map[string]*models.Job
}

func newMemJobs() *memJobs {
	return &memJobs{jobs: make(map[string]*models.Job)}
}

func (s *memJobs) CreateJob(ctx context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return nil
}

func (s *memJobs) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("job not found: %s", jobID)
	}
	return job, nil
}

func (s *memJobs) UpdateJob(ctx context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return nil
}

func (s *memJobs) UpdateStatus(ctx context.Context, jobID string, to models.JobStatus, mutate func(*models.Job)) (*models.Job, error) {
	return nil, errors.New("not supported")
}

func (s *memJobs) ListJobs(ctx context.Context, opts *interfaces.JobListOptions) ([]*models.Job, error) {
	return nil, nil
}

func (s *memJobs) CountJobs(ctx context.Context, opts *interfaces.JobListOptions) (int, error) {
	return 0, nil
}

func (s *memJobs) StaleProcessingJobs(ctx context.Context, cutoff time.Time) ([]*models.Job, error) {
	return nil, nil
}

func TestRunGenerateReservesFullProgressForCompletion(t *testing.T) {
	config := common.NewDefaultConfig()
	config.Pipeline.CacheEnabled = false
	config.Storage.TemplateDir = t.TempDir()
	config.Storage.OutputDir = t.TempDir()
	config.Storage.WorkDir = t.TempDir()

	template := &deck.Deck{Theme: "plain", Slides: []deck.Slide{
		{Layout: "cover", Elements: []deck.Element{
			{ID: "title-1", Role: "title", W: 600, H: 80, FontSize: 40},
			{ID: "subtitle-1", Role: "paragraph_single", W: 600, H: 60, FontSize: 20},
		}},
		{Layout: "bullets", Elements: []deck.Element{
			{ID: "title-2", Role: "title", W: 600, H: 80, FontSize: 36},
			{ID: "list-1", Role: "bullet_short", W: 600, H: 300, FontSize: 18},
		}},
	}}
	require.NoError(t, deck.Save(template, filepath.Join(config.Storage.TemplateDir, "basic.json")))

	client := &fakeClient{
		response: `[{"semantic_type":"concept","relation_type":"standalone","visualization_hint":"bullets"}]`,
	}
	reporter := &recordingReporter{}
	jobs := newMemJobs()
	engine := NewEngine(&fakePool{client: client}, newFakeCache(), nil, jobs, reporter, config, arbor.NewLogger())

	job := models.NewJob(models.JobKindGenerate, models.JobInput{
		TemplateRef: "basic",
		Markdown:    "# Deck\n\nA short intro.\n\n## Topic\n\n- first\n- second\n",
	})
	require.NoError(t, jobs.CreateJob(context.Background(), job))

	outputRef, err := engine.RunGenerate(context.Background(), job, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, outputRef)

	// The pipeline never reports 100 itself; the worker's completion
	// publish pairs the full progress with the completed status.
	require.NotEmpty(t, reporter.progress)
	for _, p := range reporter.progress {
		assert.Less(t, p, 100)
	}
	assert.Equal(t, 99, job.Progress)
	assert.Equal(t, StageFinalize, job.Stage)
}

func TestAsJobError(t *testing.T) {
	jerr := AsJobError(ModelError(StagePlan, errors.New("dial tcp")))
	assert.Equal(t, models.ErrModelUnavailable, jerr.Kind)
	assert.True(t, jerr.Retryable)

	jerr = AsJobError(errors.New("plain failure"))
	assert.Equal(t, models.ErrStageFailed, jerr.Kind)
	assert.False(t, jerr.Retryable)

	jerr = AsJobError(PreconditionError(StageAnalyze, "template not found"))
	assert.Equal(t, models.ErrPreconditionMissing, jerr.Kind)
}
