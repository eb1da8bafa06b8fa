package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/AlanHootman/ppt-assistant-sub000/internal/interfaces"
	"github.com/AlanHootman/ppt-assistant-sub000/internal/models"
	"github.com/AlanHootman/ppt-assistant-sub000/internal/services/status"
)

// fakeJobStore is an in-memory JobStorage with the same compare-and-set
// transition rules as the Badger-backed store.
type fakeJobStore struct {
	mu   sync.Mutex
	jobs map[string]*models.Job
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{jobs: make(map[string]*models.Job)}
}

func (s *fakeJobStore) CreateJob(ctx context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job already exists: %s", job.ID)
	}
	copied := *job
	s.jobs[job.ID] = &copied
	return nil
}

func (s *fakeJobStore) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("job not found: %s", jobID)
	}
	copied := *job
	return &copied, nil
}

func (s *fakeJobStore) UpdateJob(ctx context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; !ok {
		return fmt.Errorf("job not found: %s", job.ID)
	}
	copied := *job
	s.jobs[job.ID] = &copied
	return nil
}

func (s *fakeJobStore) UpdateStatus(ctx context.Context, jobID string, to models.JobStatus, mutate func(*models.Job)) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("job not found: %s", jobID)
	}
	if !job.CanTransition(to) {
		return nil, fmt.Errorf("illegal transition %s -> %s for job %s", job.Status, to, jobID)
	}
	if mutate != nil {
		mutate(job)
	}
	job.Status = to
	copied := *job
	return &copied, nil
}

func (s *fakeJobStore) ListJobs(ctx context.Context, opts *interfaces.JobListOptions) ([]*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Job
	for _, job := range s.jobs {
		copied := *job
		out = append(out, &copied)
	}
	return out, nil
}

func (s *fakeJobStore) CountJobs(ctx context.Context, opts *interfaces.JobListOptions) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs), nil
}

func (s *fakeJobStore) StaleProcessingJobs(ctx context.Context, cutoff time.Time) ([]*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Job
	for _, job := range s.jobs {
		if job.Status != models.JobStatusProcessing {
			continue
		}
		if job.LastHeartbeat == nil || job.LastHeartbeat.Before(cutoff) {
			copied := *job
			out = append(out, &copied)
		}
	}
	return out, nil
}

// fakeQueue records enqueues and optionally fails them.
type fakeQueue struct {
	mu       sync.Mutex
	enqueued []interfaces.QueueMessage
	queues   []string
	err      error
}

func (q *fakeQueue) Enqueue(ctx context.Context, queue string, msg interfaces.QueueMessage) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.enqueued = append(q.enqueued, msg)
	q.queues = append(q.queues, queue)
	return nil
}

func (q *fakeQueue) Receive(ctx context.Context, queue string) (*interfaces.QueueMessage, func() error, error) {
	return nil, nil, ErrNoMessage
}

func (q *fakeQueue) Extend(ctx context.Context, queue, messageID string, d time.Duration) error {
	return nil
}

func (q *fakeQueue) Close() error { return nil }

// fakeEvents delivers synchronously to in-process handlers.
type fakeEvents struct {
	mu        sync.Mutex
	handlers  map[interfaces.EventType][]interfaces.EventHandler
	published []interfaces.Event
}

func newFakeEvents() *fakeEvents {
	return &fakeEvents{handlers: make(map[interfaces.EventType][]interfaces.EventHandler)}
}

func (e *fakeEvents) Subscribe(eventType interfaces.EventType, handler interfaces.EventHandler) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[eventType] = append(e.handlers[eventType], handler)
	return nil
}

func (e *fakeEvents) Publish(ctx context.Context, event interfaces.Event) error {
	return e.PublishSync(ctx, event)
}

func (e *fakeEvents) PublishSync(ctx context.Context, event interfaces.Event) error {
	e.mu.Lock()
	e.published = append(e.published, event)
	handlers := append([]interfaces.EventHandler(nil), e.handlers[event.Type]...)
	e.mu.Unlock()
	for _, h := range handlers {
		if err := h(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

func (e *fakeEvents) Close() error { return nil }

func (e *fakeEvents) cancellations() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []string
	for _, ev := range e.published {
		if ev.Type == interfaces.EventJobCancelled {
			if id, ok := ev.Payload.(string); ok {
				out = append(out, id)
			}
		}
	}
	return out
}

func testScheduler(t *testing.T) (*Scheduler, *fakeQueue, *fakeJobStore, *status.MemoryChannel, *fakeEvents) {
	t.Helper()
	queue := &fakeQueue{}
	jobs := newFakeJobStore()
	ch := status.NewMemoryChannel()
	events := newFakeEvents()
	s := NewScheduler(queue, jobs, ch, events, arbor.NewLogger())
	return s, queue, jobs, ch, events
}

func TestSubmitCreatesRecordSeedsStatusAndEnqueues(t *testing.T) {
	s, queue, jobs, ch, _ := testScheduler(t)
	ctx := context.Background()

	job := models.NewJob(models.JobKindGenerate, models.JobInput{TemplateRef: "basic", Markdown: "# T"})
	require.NoError(t, s.Submit(ctx, job))

	stored, err := jobs.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, stored.Status)

	snapshot, err := ch.Get(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, snapshot)
	assert.Equal(t, models.JobStatusPending, snapshot.Status)
	assert.Equal(t, 0, snapshot.Progress)
	assert.Equal(t, "queued", snapshot.CurrentStep)

	require.Len(t, queue.enqueued, 1)
	assert.Equal(t, job.ID, queue.enqueued[0].JobID)
	assert.Equal(t, "deckgen:generate", queue.queues[0])
}

func TestSubmitRoutesAnalyzeJobsToTheirQueue(t *testing.T) {
	s, queue, _, _, _ := testScheduler(t)

	job := models.NewJob(models.JobKindAnalyzeTemplate, models.JobInput{TemplateRef: "basic"})
	require.NoError(t, s.Submit(context.Background(), job))

	require.Len(t, queue.queues, 1)
	assert.Equal(t, "deckgen:analyze", queue.queues[0])
}

func TestSubmitEnqueueFailureMarksJobFailed(t *testing.T) {
	s, queue, jobs, _, _ := testScheduler(t)
	queue.err = errors.New("disk full")
	ctx := context.Background()

	job := models.NewJob(models.JobKindGenerate, models.JobInput{TemplateRef: "basic", Markdown: "# T"})
	require.Error(t, s.Submit(ctx, job))

	stored, err := jobs.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, stored.Status)
	require.NotNil(t, stored.Error)
	assert.True(t, stored.Error.Retryable)
}

func TestCancelPendingJob(t *testing.T) {
	s, _, jobs, ch, events := testScheduler(t)
	ctx := context.Background()

	job := models.NewJob(models.JobKindGenerate, models.JobInput{TemplateRef: "basic", Markdown: "# T"})
	require.NoError(t, jobs.CreateJob(ctx, job))

	require.NoError(t, s.Cancel(ctx, job.ID))

	stored, err := jobs.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, stored.Status)

	assert.Equal(t, []string{job.ID}, events.cancellations())

	snapshot, err := ch.Get(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, snapshot)
	assert.Equal(t, models.JobStatusCancelled, snapshot.Status)
}

func TestCancelProcessingJobOnlyFlags(t *testing.T) {
	s, _, jobs, _, events := testScheduler(t)
	ctx := context.Background()

	job := models.NewJob(models.JobKindGenerate, models.JobInput{TemplateRef: "basic", Markdown: "# T"})
	require.NoError(t, jobs.CreateJob(ctx, job))
	_, err := jobs.UpdateStatus(ctx, job.ID, models.JobStatusProcessing, func(j *models.Job) { j.MarkStarted() })
	require.NoError(t, err)

	require.NoError(t, s.Cancel(ctx, job.ID))

	stored, err := jobs.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusProcessing, stored.Status, "the worker records the transition, not the scheduler")
	assert.Equal(t, []string{job.ID}, events.cancellations())
}

func TestCancelTerminalJobRefuses(t *testing.T) {
	s, _, jobs, _, events := testScheduler(t)
	ctx := context.Background()

	job := models.NewJob(models.JobKindGenerate, models.JobInput{TemplateRef: "basic", Markdown: "# T"})
	job.MarkStarted()
	job.MarkCompleted("/out/presentation.json")
	require.NoError(t, jobs.CreateJob(ctx, job))

	err := s.Cancel(ctx, job.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already completed")
	assert.Empty(t, events.cancellations())
}

func TestCancelUnknownJob(t *testing.T) {
	s, _, _, _, _ := testScheduler(t)
	assert.Error(t, s.Cancel(context.Background(), "missing"))
}

func TestSweepStaleFailsQuietJobs(t *testing.T) {
	s, _, jobs, ch, _ := testScheduler(t)
	ctx := context.Background()

	stale := models.NewJob(models.JobKindGenerate, models.JobInput{TemplateRef: "basic", Markdown: "# T"})
	require.NoError(t, jobs.CreateJob(ctx, stale))
	_, err := jobs.UpdateStatus(ctx, stale.ID, models.JobStatusProcessing, func(j *models.Job) {
		j.MarkStarted()
		old := time.Now().Add(-10 * time.Minute)
		j.LastHeartbeat = &old
	})
	require.NoError(t, err)

	fresh := models.NewJob(models.JobKindGenerate, models.JobInput{TemplateRef: "basic", Markdown: "# T"})
	require.NoError(t, jobs.CreateJob(ctx, fresh))
	_, err = jobs.UpdateStatus(ctx, fresh.ID, models.JobStatusProcessing, func(j *models.Job) { j.MarkStarted() })
	require.NoError(t, err)

	swept := s.SweepStale(ctx, 2*time.Minute)
	assert.Equal(t, 1, swept)

	failed, err := jobs.GetJob(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, failed.Status)
	require.NotNil(t, failed.Error)
	assert.Equal(t, models.ErrTimeout, failed.Error.Kind)
	assert.True(t, failed.Error.Retryable)

	untouched, err := jobs.GetJob(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusProcessing, untouched.Status)

	snapshot, err := ch.Get(ctx, stale.ID)
	require.NoError(t, err)
	require.NotNil(t, snapshot)
	assert.Equal(t, models.JobStatusFailed, snapshot.Status)
}
