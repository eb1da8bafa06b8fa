package interfaces

import (
	"context"
	"time"

	"github.com/AlanHootman/ppt-assistant-sub000/internal/models"
)

// JobListOptions filters and pages job listings.
type JobListOptions struct {
	Status   string
	Kind     string
	Limit    int
	Offset   int
	OrderBy  string
	OrderDir string
}

// JobStorage is the persistent job record store. Status transitions go
// through UpdateStatus, which enforces the state graph with compare-and-set
// semantics: an illegal transition fails and leaves the record untouched.
type JobStorage interface {
	// CreateJob persists a new record; fails if the id already exists.
	CreateJob(ctx context.Context, job *models.Job) error

	// GetJob returns the record or an error when absent.
	GetJob(ctx context.Context, jobID string) (*models.Job, error)

	// UpdateJob persists a full record. Callers that mutate status must use
	// UpdateStatus instead.
	UpdateJob(ctx context.Context, job *models.Job) error

	// UpdateStatus transitions the job, checking the transition against the
	// current stored status. Terminal states are never overwritten.
	UpdateStatus(ctx context.Context, jobID string, to models.JobStatus, mutate func(*models.Job)) (*models.Job, error)

	// ListJobs returns matching records, newest first by default.
	ListJobs(ctx context.Context, opts *JobListOptions) ([]*models.Job, error)

	// CountJobs returns the number of matching records.
	CountJobs(ctx context.Context, opts *JobListOptions) (int, error)

	// StaleProcessingJobs returns processing jobs whose heartbeat is older
	// than the cutoff. The maintenance sweep fails these.
	StaleProcessingJobs(ctx context.Context, cutoff time.Time) ([]*models.Job, error)
}

// JobLogEntry is one append-only log line attached to a job.
type JobLogEntry struct {
	JobID     string    `json:"job_id"`
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
}

// JobLogStorage stores per-job log entries.
type JobLogStorage interface {
	AppendLog(ctx context.Context, jobID string, entry JobLogEntry) error
	GetLogs(ctx context.Context, jobID string, limit int) ([]JobLogEntry, error)
	DeleteLogs(ctx context.Context, jobID string) error
}

// ModelConfigStorage is the companion config table holding active model
// bindings, one per kind.
type ModelConfigStorage interface {
	GetConfig(ctx context.Context, kind models.ModelKind) (*models.ModelConfig, error)
	PutConfig(ctx context.Context, cfg *models.ModelConfig) error
	ListConfigs(ctx context.Context) ([]*models.ModelConfig, error)
}

// StorageManager bundles the storage interfaces over one database.
type StorageManager interface {
	JobStorage() JobStorage
	JobLogStorage() JobLogStorage
	ModelConfigStorage() ModelConfigStorage
	Close() error
}
