package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobKind identifies what a job does and which queue it routes to.
type JobKind string

const (
	JobKindGenerate        JobKind = "generate"
	JobKindAnalyzeTemplate JobKind = "analyze-template"
)

// JobStatus is the lifecycle state of a job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// ErrorKind is the client-visible error taxonomy recorded on failed jobs.
type ErrorKind string

const (
	ErrInputInvalid        ErrorKind = "InputInvalid"
	ErrPreconditionMissing ErrorKind = "PreconditionMissing"
	ErrStageFailed         ErrorKind = "StageFailed"
	ErrModelUnavailable    ErrorKind = "ModelUnavailable"
	ErrTimeout             ErrorKind = "Timeout"
	ErrCancelled           ErrorKind = "Cancelled"
)

// JobError is the structured error surfaced to clients on failed jobs.
type JobError struct {
	Kind      ErrorKind `json:"kind"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
}

// JobInput is the kind-specific submission payload. For generate jobs the
// markdown and template ref are required; analyze-template jobs only carry
// the template ref.
type JobInput struct {
	TemplateRef       string `json:"template_ref" validate:"required"`
	Markdown          string `json:"markdown,omitempty"`
	ValidationEnabled bool   `json:"validation_enabled,omitempty"`
}

// Job is the persistent record of one pipeline invocation. The Job Store
// holds exactly one record per ID; live progress lives in the status channel.
type Job struct {
	ID        string    `json:"id" badgerhold:"key"`
	Kind      JobKind   `json:"kind"`
	Input     JobInput  `json:"input"`
	Stage     string    `json:"stage,omitempty"`
	Status    JobStatus `json:"status"`
	Progress  int       `json:"progress"`
	OutputRef string    `json:"output_ref,omitempty"`
	Error     *JobError `json:"error,omitempty"`

	Checkpoints []string `json:"checkpoints,omitempty"`
	Attempts    int      `json:"attempts"`

	CreatedAt     time.Time  `json:"created_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	LastHeartbeat *time.Time `json:"last_heartbeat,omitempty"`
}

// NewJob creates a pending job with a fresh ID.
func NewJob(kind JobKind, input JobInput) *Job {
	return &Job{
		ID:        uuid.New().String(),
		Kind:      kind,
		Input:     input,
		Status:    JobStatusPending,
		CreatedAt: time.Now(),
	}
}

// CanTransition reports whether a status transition conforms to the state
// graph: pending → processing → {completed, failed, cancelled}; cancelled
// may also interrupt pending. Terminal states never transition.
func (j *Job) CanTransition(to JobStatus) bool {
	switch j.Status {
	case JobStatusPending:
		return to == JobStatusProcessing || to == JobStatusCancelled || to == JobStatusFailed
	case JobStatusProcessing:
		return to == JobStatusCompleted || to == JobStatusFailed || to == JobStatusCancelled
	default:
		return false
	}
}

// IsTerminal returns true once the job has reached a final state.
func (j *Job) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed || j.Status == JobStatusCancelled
}

// MarkStarted moves the job into processing and begins a new attempt.
// Progress resets only here, never mid-attempt.
func (j *Job) MarkStarted() {
	j.Status = JobStatusProcessing
	j.Attempts++
	j.Progress = 0
	now := time.Now()
	j.StartedAt = &now
	j.LastHeartbeat = &now
}

// MarkCompleted records the output artifact and finishes the job.
func (j *Job) MarkCompleted(outputRef string) {
	j.Status = JobStatusCompleted
	j.OutputRef = outputRef
	j.Progress = 100
	now := time.Now()
	j.CompletedAt = &now
}

// MarkFailed finishes the job with a structured error.
func (j *Job) MarkFailed(jobErr *JobError) {
	j.Status = JobStatusFailed
	j.Error = jobErr
	now := time.Now()
	j.CompletedAt = &now
}

// MarkCancelled finishes the job as operator-cancelled.
func (j *Job) MarkCancelled() {
	j.Status = JobStatusCancelled
	j.Error = &JobError{Kind: ErrCancelled, Message: "job cancelled"}
	now := time.Now()
	j.CompletedAt = &now
}

// Heartbeat stamps the job as alive. Workers call this while processing so
// the stale-job sweep can tell a crash from a long stage.
func (j *Job) Heartbeat() {
	now := time.Now()
	j.LastHeartbeat = &now
}

// QueueName maps a job kind to its scheduler queue.
func (k JobKind) QueueName() string {
	switch k {
	case JobKindGenerate:
		return "deckgen:generate"
	case JobKindAnalyzeTemplate:
		return "deckgen:analyze"
	default:
		return "deckgen:default"
	}
}

// Validate checks kind-specific input requirements before a record is
// created. Failures surface as InputInvalid and never create a job.
func (j *Job) Validate() error {
	switch j.Kind {
	case JobKindGenerate:
		if j.Input.Markdown == "" {
			return fmt.Errorf("markdown is required for generate jobs")
		}
		if j.Input.TemplateRef == "" {
			return fmt.Errorf("template_ref is required")
		}
	case JobKindAnalyzeTemplate:
		if j.Input.TemplateRef == "" {
			return fmt.Errorf("template_ref is required")
		}
	default:
		return fmt.Errorf("unknown job kind: %s", j.Kind)
	}
	return nil
}
