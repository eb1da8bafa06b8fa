package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/AlanHootman/ppt-assistant-sub000/internal/common"
	"github.com/AlanHootman/ppt-assistant-sub000/internal/interfaces"
	"github.com/AlanHootman/ppt-assistant-sub000/internal/models"
	"github.com/AlanHootman/ppt-assistant-sub000/internal/pipeline"
)

// JobRunner executes one job of a given kind to completion, returning the
// output artifact reference. The pipeline engine satisfies this.
type JobRunner interface {
	RunGenerate(ctx context.Context, job *models.Job, cancelled interfaces.CancelCheck) (string, error)
	RunAnalyzeTemplate(ctx context.Context, job *models.Job, cancelled interfaces.CancelCheck) (string, error)
}

// Pool runs the per-queue worker goroutines. Each worker polls its queue,
// acknowledges the claimed message up front and then drives the job through
// the pipeline; crash recovery is the stale-heartbeat sweep, not redelivery.
// Generate starts are paced by a shared rate limiter.
type Pool struct {
	queue  interfaces.QueueManager
	jobs   interfaces.JobStorage
	logs   interfaces.JobLogStorage
	status interfaces.StatusChannel
	runner JobRunner
	logger arbor.ILogger

	generateWorkers int
	analyzeWorkers  int
	pollInterval    time.Duration
	softTimeout     time.Duration
	hardTimeout     time.Duration
	heartbeatEvery  time.Duration
	genLimiter      *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	cancelFlags map[string]bool
	cleanup     func()
}

// SetCleanupHook installs a routine invoked after every executed job,
// whatever its outcome. Used to release model clients and other transient
// resources between tasks.
func (p *Pool) SetCleanupHook(fn func()) {
	p.cleanup = fn
}

// NewPool creates the worker pool and registers its cancellation listener
// on the event bus.
func NewPool(
	queue interfaces.QueueManager,
	jobs interfaces.JobStorage,
	logs interfaces.JobLogStorage,
	status interfaces.StatusChannel,
	events interfaces.EventService,
	runner JobRunner,
	config *common.Config,
	logger arbor.ILogger,
) (*Pool, error) {
	ctx, cancel := context.WithCancel(context.Background())

	p := &Pool{
		queue:           queue,
		jobs:            jobs,
		logs:            logs,
		status:          status,
		runner:          runner,
		logger:          logger,
		generateWorkers: config.Scheduler.GenerateWorkers,
		analyzeWorkers:  config.Scheduler.AnalyzeWorkers,
		pollInterval:    common.ParseDuration(config.Queue.PollInterval, 500*time.Millisecond),
		softTimeout:     common.ParseDuration(config.Scheduler.SoftTimeout, 25*time.Minute),
		hardTimeout:     common.ParseDuration(config.Scheduler.HardTimeout, 30*time.Minute),
		heartbeatEvery:  common.ParseDuration(config.Scheduler.HeartbeatInterval, 15*time.Second),
		genLimiter: rate.NewLimiter(
			rate.Every(common.ParseDuration(config.Scheduler.GenerateRateLimit, 500*time.Millisecond)), 1),
		ctx:         ctx,
		cancel:      cancel,
		cancelFlags: make(map[string]bool),
	}
	if p.generateWorkers < 1 {
		p.generateWorkers = 1
	}
	if p.analyzeWorkers < 1 {
		p.analyzeWorkers = 1
	}

	if err := events.Subscribe(interfaces.EventJobCancelled, p.onCancelEvent); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to subscribe to cancellation events: %w", err)
	}
	return p, nil
}

// Start launches the worker goroutines for both queues.
func (p *Pool) Start() {
	p.logger.Info().
		Int("generate_workers", p.generateWorkers).
		Int("analyze_workers", p.analyzeWorkers).
		Msg("Starting worker pool")

	for i := 0; i < p.generateWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i, models.JobKindGenerate, p.generateWorkers)
	}
	for i := 0; i < p.analyzeWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i, models.JobKindAnalyzeTemplate, p.analyzeWorkers)
	}
}

// Stop cancels all workers and waits for in-flight jobs to unwind.
func (p *Pool) Stop() {
	p.logger.Info().Msg("Stopping worker pool")
	p.cancel()
	p.wg.Wait()
}

// onCancelEvent flags a running job for cooperative cancellation. The
// pipeline observes the flag at stage boundaries.
func (p *Pool) onCancelEvent(ctx context.Context, event interfaces.Event) error {
	jobID, ok := event.Payload.(string)
	if !ok || jobID == "" {
		return fmt.Errorf("cancellation event carried no job id")
	}
	p.mu.Lock()
	p.cancelFlags[jobID] = true
	p.mu.Unlock()
	p.logger.Info().Str("job_id", jobID).Msg("Cancellation flag set")
	return nil
}

func (p *Pool) isCancelled(jobID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancelFlags[jobID]
}

func (p *Pool) clearCancelFlag(jobID string) {
	p.mu.Lock()
	delete(p.cancelFlags, jobID)
	p.mu.Unlock()
}

// worker polls one queue on a ticker. Starts are staggered across the poll
// interval to spread database contention.
func (p *Pool) worker(workerID int, kind models.JobKind, total int) {
	defer p.wg.Done()

	stagger := (p.pollInterval / time.Duration(total)) * time.Duration(workerID)
	if stagger > 0 {
		select {
		case <-time.After(stagger):
		case <-p.ctx.Done():
			return
		}
	}

	queueName := kind.QueueName()
	p.logger.Debug().
		Int("worker_id", workerID).
		Str("queue", queueName).
		Msg("Worker started")

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			p.logger.Debug().Int("worker_id", workerID).Str("queue", queueName).Msg("Worker stopped")
			return
		case <-ticker.C:
			if err := p.processNext(workerID, kind, queueName); err != nil && !errors.Is(err, ErrNoMessage) {
				p.logger.Warn().Err(err).
					Int("worker_id", workerID).
					Str("queue", queueName).
					Msg("Error processing message")
			}
		}
	}
}

// processNext claims at most one message and runs it to completion before
// the worker polls again.
func (p *Pool) processNext(workerID int, kind models.JobKind, queueName string) error {
	if kind == models.JobKindGenerate {
		if err := p.genLimiter.Wait(p.ctx); err != nil {
			return nil
		}
	}

	msg, ack, err := p.queue.Receive(p.ctx, queueName)
	if err != nil {
		return err
	}

	// Early ack: the record's heartbeat, not queue redelivery, covers
	// worker crashes from here on.
	if err := ack(); err != nil {
		p.logger.Warn().Err(err).Str("message_id", msg.ID).Msg("Failed to acknowledge message")
	}

	p.execute(workerID, kind, msg.JobID)
	return nil
}

// execute drives one job: claim the record, heartbeat while running, invoke
// the pipeline under the hard time budget and record the terminal state
// before broadcasting it.
func (p *Pool) execute(workerID int, kind models.JobKind, jobID string) {
	defer p.clearCancelFlag(jobID)
	defer func() {
		if p.cleanup != nil {
			p.cleanup()
		}
	}()

	job, err := p.jobs.GetJob(p.ctx, jobID)
	if err != nil {
		p.logger.Warn().Err(err).Str("job_id", jobID).Msg("Queued job has no record, dropping")
		return
	}
	if job.Status != models.JobStatusPending {
		p.logger.Info().
			Str("job_id", jobID).
			Str("status", string(job.Status)).
			Msg("Skipping job no longer pending")
		return
	}

	job, err = p.jobs.UpdateStatus(p.ctx, jobID, models.JobStatusProcessing, func(j *models.Job) {
		j.MarkStarted()
	})
	if err != nil {
		p.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to claim job")
		return
	}

	p.publishStatus(jobID, models.StatusPatch{
		Status:          models.StatusPtr(models.JobStatusProcessing),
		Progress:        models.IntPtr(0),
		CurrentStep:     models.StrPtr("starting"),
		StepDescription: models.StrPtr("Job picked up by worker"),
	})
	p.appendLog(jobID, "info", fmt.Sprintf("processing started on worker %d", workerID))

	stopHeartbeat := p.startHeartbeat(jobID)
	softTimer := time.AfterFunc(p.softTimeout, func() {
		p.logger.Warn().
			Str("job_id", jobID).
			Dur("soft_timeout", p.softTimeout).
			Msg("Job exceeded soft time budget")
		p.appendLog(jobID, "warn", "job exceeded soft time budget")
	})

	runCtx, cancelRun := context.WithTimeout(p.ctx, p.hardTimeout)
	cancelled := func() bool { return p.isCancelled(jobID) }

	started := time.Now()
	var outputRef string
	var runErr error
	switch kind {
	case models.JobKindGenerate:
		outputRef, runErr = p.runner.RunGenerate(runCtx, job, cancelled)
	case models.JobKindAnalyzeTemplate:
		outputRef, runErr = p.runner.RunAnalyzeTemplate(runCtx, job, cancelled)
	default:
		runErr = fmt.Errorf("no runner for job kind: %s", kind)
	}
	duration := time.Since(started)

	softTimer.Stop()
	stopHeartbeat()
	hardExpired := runCtx.Err() != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded)
	cancelRun()

	p.finish(jobID, outputRef, runErr, hardExpired, duration)
}

// finish records the terminal transition on the job record first, then
// broadcasts the matching status delta.
func (p *Pool) finish(jobID, outputRef string, runErr error, hardExpired bool, duration time.Duration) {
	if runErr == nil {
		if _, err := p.jobs.UpdateStatus(p.ctx, jobID, models.JobStatusCompleted, func(j *models.Job) {
			j.MarkCompleted(outputRef)
		}); err != nil {
			p.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to record completion")
			return
		}
		p.publishStatus(jobID, models.StatusPatch{
			Status:          models.StatusPtr(models.JobStatusCompleted),
			Progress:        models.IntPtr(100),
			CurrentStep:     models.StrPtr("done"),
			StepDescription: models.StrPtr("Presentation ready"),
			FileURL:         models.StrPtr(outputRef),
		})
		p.appendLog(jobID, "info", fmt.Sprintf("job completed in %s", duration.Round(time.Millisecond)))
		p.logger.Info().Str("job_id", jobID).Dur("duration", duration).Msg("Job completed")
		return
	}

	jobErr := pipeline.AsJobError(runErr)
	if hardExpired {
		jobErr = &models.JobError{
			Kind:      models.ErrTimeout,
			Message:   "job exceeded the hard time budget",
			Retryable: true,
		}
	}

	if jobErr.Kind == models.ErrCancelled {
		if _, err := p.jobs.UpdateStatus(p.ctx, jobID, models.JobStatusCancelled, func(j *models.Job) {
			j.MarkCancelled()
		}); err != nil {
			p.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to record cancellation")
			return
		}
		p.publishStatus(jobID, models.StatusPatch{
			Status: models.StatusPtr(models.JobStatusCancelled),
			Error:  jobErr,
		})
		p.appendLog(jobID, "info", "job cancelled")
		p.logger.Info().Str("job_id", jobID).Msg("Job cancelled")
		return
	}

	if _, err := p.jobs.UpdateStatus(p.ctx, jobID, models.JobStatusFailed, func(j *models.Job) {
		j.MarkFailed(jobErr)
	}); err != nil {
		p.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to record failure")
		return
	}
	p.publishStatus(jobID, models.StatusPatch{
		Status: models.StatusPtr(models.JobStatusFailed),
		Error:  jobErr,
	})
	p.appendLog(jobID, "error", fmt.Sprintf("job failed: %s", jobErr.Message))
	p.logger.Warn().
		Str("job_id", jobID).
		Str("error_kind", string(jobErr.Kind)).
		Dur("duration", duration).
		Msg("Job failed")
}

// startHeartbeat stamps the job record alive on a fixed cadence until the
// returned stop function is called.
func (p *Pool) startHeartbeat(jobID string) func() {
	done := make(chan struct{})
	var once sync.Once

	go func() {
		ticker := time.NewTicker(p.heartbeatEvery)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-p.ctx.Done():
				return
			case <-ticker.C:
				job, err := p.jobs.GetJob(p.ctx, jobID)
				if err != nil {
					continue
				}
				job.Heartbeat()
				if err := p.jobs.UpdateJob(p.ctx, job); err != nil {
					p.logger.Debug().Err(err).Str("job_id", jobID).Msg("Heartbeat write failed")
				}
			}
		}
	}()

	return func() { once.Do(func() { close(done) }) }
}

func (p *Pool) publishStatus(jobID string, patch models.StatusPatch) {
	if err := p.status.Put(p.ctx, jobID, patch); err != nil {
		p.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to publish status update")
	}
}

func (p *Pool) appendLog(jobID, level, message string) {
	entry := interfaces.JobLogEntry{
		JobID:     jobID,
		Timestamp: time.Now(),
		Level:     level,
		Message:   message,
	}
	if err := p.logs.AppendLog(p.ctx, jobID, entry); err != nil {
		p.logger.Debug().Err(err).Str("job_id", jobID).Msg("Failed to append job log")
	}
}
