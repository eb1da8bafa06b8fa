package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/AlanHootman/ppt-assistant-sub000/internal/interfaces"
	"github.com/AlanHootman/ppt-assistant-sub000/internal/models"
)

// JobScheduler is the submission surface the handler needs.
type JobScheduler interface {
	Submit(ctx context.Context, job *models.Job) error
	Cancel(ctx context.Context, jobID string) error
}

// submitJobRequest is the POST /api/jobs payload. Validation failures are
// rejected before any record is created.
type submitJobRequest struct {
	Kind              string `json:"kind" validate:"required,oneof=generate analyze-template"`
	TemplateRef       string `json:"template_ref" validate:"required"`
	Markdown          string `json:"markdown" validate:"required_if=Kind generate"`
	ValidationEnabled bool   `json:"validation_enabled"`
}

// jobResponse is the merged client view: the stored record plus, for live
// jobs, the fresher progress from the status snapshot.
type jobResponse struct {
	*models.Job
	CurrentStep     string   `json:"current_step,omitempty"`
	StepDescription string   `json:"step_description,omitempty"`
	PreviewRefs     []string `json:"preview_refs,omitempty"`
}

type JobHandler struct {
	scheduler JobScheduler
	jobs      interfaces.JobStorage
	logs      interfaces.JobLogStorage
	status    interfaces.StatusChannel
	validate  *validator.Validate
	logger    arbor.ILogger
}

func NewJobHandler(
	scheduler JobScheduler,
	jobs interfaces.JobStorage,
	logs interfaces.JobLogStorage,
	status interfaces.StatusChannel,
	logger arbor.ILogger,
) *JobHandler {
	return &JobHandler{
		scheduler: scheduler,
		jobs:      jobs,
		logs:      logs,
		status:    status,
		validate:  validator.New(),
		logger:    logger,
	}
}

// SubmitJobHandler handles POST /api/jobs. Invalid submissions are refused
// with a structured error and never create a record.
func (h *JobHandler) SubmitJobHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req submitJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteJSON(w, http.StatusBadRequest, map[string]interface{}{
			"status": "error",
			"error":  map[string]string{"kind": string(models.ErrInputInvalid), "message": "request body is not valid JSON"},
		})
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		WriteJSON(w, http.StatusBadRequest, map[string]interface{}{
			"status": "error",
			"error":  map[string]string{"kind": string(models.ErrInputInvalid), "message": err.Error()},
		})
		return
	}

	job := models.NewJob(models.JobKind(req.Kind), models.JobInput{
		TemplateRef:       req.TemplateRef,
		Markdown:          req.Markdown,
		ValidationEnabled: req.ValidationEnabled,
	})
	if err := job.Validate(); err != nil {
		WriteJSON(w, http.StatusBadRequest, map[string]interface{}{
			"status": "error",
			"error":  map[string]string{"kind": string(models.ErrInputInvalid), "message": err.Error()},
		})
		return
	}

	if err := h.scheduler.Submit(r.Context(), job); err != nil {
		h.logger.Warn().Err(err).Msg("Job submission failed")
		WriteError(w, http.StatusInternalServerError, "failed to submit job")
		return
	}

	WriteJSON(w, http.StatusCreated, map[string]string{
		"job_id":     job.ID,
		"status":     string(job.Status),
		"created_at": job.CreatedAt.Format(time.RFC3339),
	})
}

// ListJobsHandler handles GET /api/jobs with status, kind and paging filters.
func (h *JobHandler) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	opts := &interfaces.JobListOptions{
		Status: r.URL.Query().Get("status"),
		Kind:   r.URL.Query().Get("kind"),
		Limit:  QueryInt(r, "limit", 50),
		Offset: QueryInt(r, "offset", 0),
	}

	jobs, err := h.jobs.ListJobs(r.Context(), opts)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to list jobs")
		WriteError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	total, err := h.jobs.CountJobs(r.Context(), opts)
	if err != nil {
		total = len(jobs)
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobs,
		"count": len(jobs),
		"total": total,
	})
}

// GetJobHandler handles GET /api/jobs/{id}, merging the stored record with
// the live snapshot. The record stays authoritative for terminal states.
func (h *JobHandler) GetJobHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	job, err := h.jobs.GetJob(r.Context(), jobID)
	if err != nil {
		WriteError(w, http.StatusNotFound, "job not found")
		return
	}

	resp := jobResponse{Job: job}
	if snapshot, err := h.status.Get(r.Context(), jobID); err == nil && snapshot != nil {
		resp.CurrentStep = snapshot.CurrentStep
		resp.StepDescription = snapshot.StepDescription
		resp.PreviewRefs = snapshot.PreviewRefs
		if !job.IsTerminal() {
			resp.Progress = snapshot.Progress
			if snapshot.Status != "" {
				resp.Status = snapshot.Status
			}
		}
	}

	WriteJSON(w, http.StatusOK, resp)
}

// CancelJobHandler handles DELETE /api/jobs/{id}. Terminal jobs refuse with
// a conflict.
func (h *JobHandler) CancelJobHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	if _, err := h.jobs.GetJob(r.Context(), jobID); err != nil {
		WriteError(w, http.StatusNotFound, "job not found")
		return
	}

	if err := h.scheduler.Cancel(r.Context(), jobID); err != nil {
		if strings.Contains(err.Error(), "already") {
			WriteError(w, http.StatusConflict, err.Error())
			return
		}
		h.logger.Warn().Err(err).Str("job_id", jobID).Msg("Cancellation failed")
		WriteError(w, http.StatusInternalServerError, "failed to cancel job")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"job_id": jobID,
		"status": string(models.JobStatusCancelled),
	})
}

// GetJobLogsHandler handles GET /api/jobs/{id}/logs.
func (h *JobHandler) GetJobLogsHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	if _, err := h.jobs.GetJob(r.Context(), jobID); err != nil {
		WriteError(w, http.StatusNotFound, "job not found")
		return
	}

	entries, err := h.logs.GetLogs(r.Context(), jobID, QueryInt(r, "limit", 200))
	if err != nil {
		h.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to read job logs")
		WriteError(w, http.StatusInternalServerError, "failed to read job logs")
		return
	}
	if entries == nil {
		entries = []interfaces.JobLogEntry{}
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"job_id": jobID,
		"logs":   entries,
		"count":  len(entries),
	})
}

// GetArtifactHandler handles GET /api/artifacts/{id}, serving the output
// file of a completed job.
func (h *JobHandler) GetArtifactHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	job, err := h.jobs.GetJob(r.Context(), jobID)
	if err != nil {
		WriteError(w, http.StatusNotFound, "job not found")
		return
	}
	if job.Status != models.JobStatusCompleted {
		WriteError(w, http.StatusBadRequest, "job has not completed")
		return
	}
	if job.OutputRef == "" {
		WriteError(w, http.StatusNotFound, "job has no output artifact")
		return
	}
	if _, err := os.Stat(job.OutputRef); err != nil {
		h.logger.Warn().Err(err).Str("job_id", jobID).Msg("Artifact file missing")
		WriteError(w, http.StatusNotFound, "artifact file not found")
		return
	}

	http.ServeFile(w, r, job.OutputRef)
}
