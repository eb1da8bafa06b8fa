package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/AlanHootman/ppt-assistant-sub000/internal/interfaces"
	"github.com/AlanHootman/ppt-assistant-sub000/internal/models"
)

// Scheduler is the submission and cancellation front of the job system. It
// persists the record, seeds the status snapshot and routes the message to
// the kind's queue; workers do the rest.
type Scheduler struct {
	queue  interfaces.QueueManager
	jobs   interfaces.JobStorage
	status interfaces.StatusChannel
	events interfaces.EventService
	logger arbor.ILogger
}

// NewScheduler wires a scheduler over its collaborators.
func NewScheduler(
	queue interfaces.QueueManager,
	jobs interfaces.JobStorage,
	status interfaces.StatusChannel,
	events interfaces.EventService,
	logger arbor.ILogger,
) *Scheduler {
	return &Scheduler{
		queue:  queue,
		jobs:   jobs,
		status: status,
		events: events,
		logger: logger,
	}
}

// Submit persists the pending record, writes its first status snapshot and
// enqueues it. The client gets its job id back before any work starts.
func (s *Scheduler) Submit(ctx context.Context, job *models.Job) error {
	if err := s.jobs.CreateJob(ctx, job); err != nil {
		return fmt.Errorf("failed to create job record: %w", err)
	}

	if err := s.status.Put(ctx, job.ID, models.StatusPatch{
		Status:          models.StatusPtr(models.JobStatusPending),
		Progress:        models.IntPtr(0),
		CurrentStep:     models.StrPtr("queued"),
		StepDescription: models.StrPtr("Waiting for a worker"),
	}); err != nil {
		s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to seed status snapshot")
	}

	msg := interfaces.QueueMessage{JobID: job.ID, Kind: string(job.Kind)}
	if err := s.queue.Enqueue(ctx, job.Kind.QueueName(), msg); err != nil {
		if _, ferr := s.jobs.UpdateStatus(ctx, job.ID, models.JobStatusFailed, func(j *models.Job) {
			j.MarkFailed(&models.JobError{
				Kind:      models.ErrStageFailed,
				Message:   "failed to enqueue job",
				Retryable: true,
			})
		}); ferr != nil {
			s.logger.Warn().Err(ferr).Str("job_id", job.ID).Msg("Failed to record enqueue failure")
		}
		return fmt.Errorf("failed to enqueue job: %w", err)
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Str("kind", string(job.Kind)).
		Msg("Job submitted")
	return nil
}

// Cancel stops a job. Pending jobs transition immediately; processing jobs
// get a cooperative cancellation flag and the owning worker records the
// transition when the pipeline yields. Terminal jobs refuse.
func (s *Scheduler) Cancel(ctx context.Context, jobID string) error {
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.IsTerminal() {
		return fmt.Errorf("job %s is already %s", jobID, job.Status)
	}

	// Flag first so a worker that claims the message mid-cancel still
	// observes it.
	if err := s.events.PublishSync(ctx, interfaces.Event{
		Type:    interfaces.EventJobCancelled,
		Payload: jobID,
	}); err != nil {
		s.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to publish cancellation event")
	}

	if job.Status == models.JobStatusPending {
		if _, err := s.jobs.UpdateStatus(ctx, jobID, models.JobStatusCancelled, func(j *models.Job) {
			j.MarkCancelled()
		}); err != nil {
			// A worker moved it to processing between our read and write;
			// the flag set above covers that path.
			s.logger.Info().Err(err).Str("job_id", jobID).Msg("Pending cancel lost race, deferring to worker")
			return nil
		}
		if err := s.status.Put(ctx, jobID, models.StatusPatch{
			Status: models.StatusPtr(models.JobStatusCancelled),
			Error:  &models.JobError{Kind: models.ErrCancelled, Message: "job cancelled"},
		}); err != nil {
			s.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to publish cancellation status")
		}
		s.logger.Info().Str("job_id", jobID).Msg("Pending job cancelled")
		return nil
	}

	s.logger.Info().Str("job_id", jobID).Msg("Cancellation requested for running job")
	return nil
}

// SweepStale fails processing jobs whose heartbeat went quiet: the worker
// crashed or was killed without recording a terminal state.
func (s *Scheduler) SweepStale(ctx context.Context, staleAfter time.Duration) int {
	cutoff := time.Now().Add(-staleAfter)
	stale, err := s.jobs.StaleProcessingJobs(ctx, cutoff)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Stale job sweep failed")
		return 0
	}

	swept := 0
	for _, job := range stale {
		jobErr := &models.JobError{
			Kind:      models.ErrTimeout,
			Message:   "worker heartbeat lost",
			Retryable: true,
		}
		if _, err := s.jobs.UpdateStatus(ctx, job.ID, models.JobStatusFailed, func(j *models.Job) {
			j.MarkFailed(jobErr)
		}); err != nil {
			s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to fail stale job")
			continue
		}
		if err := s.status.Put(ctx, job.ID, models.StatusPatch{
			Status: models.StatusPtr(models.JobStatusFailed),
			Error:  jobErr,
		}); err != nil {
			s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to publish stale job status")
		}
		s.logger.Warn().
			Str("job_id", job.ID).
			Msg("Stale processing job failed by sweep")
		swept++
	}
	return swept
}
