package models

import "time"

// StatusSnapshot is the live mirror of a job held in the status channel
// under status:{job_id} with a 24h TTL. The Job Store owns terminal truth;
// the snapshot owns live progress.
type StatusSnapshot struct {
	JobID           string    `json:"job_id"`
	Status          JobStatus `json:"status"`
	Progress        int       `json:"progress"`
	CurrentStep     string    `json:"current_step,omitempty"`
	StepDescription string    `json:"step_description,omitempty"`
	PreviewRefs     []string  `json:"preview_refs,omitempty"`
	FileURL         string    `json:"file_url,omitempty"`
	Error           *JobError `json:"error,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// StatusPatch is a partial snapshot update. Nil fields are left untouched
// when merged; the merged snapshot is written before the patch is broadcast.
type StatusPatch struct {
	Status          *JobStatus `json:"status,omitempty"`
	Progress        *int       `json:"progress,omitempty"`
	CurrentStep     *string    `json:"current_step,omitempty"`
	StepDescription *string    `json:"step_description,omitempty"`
	PreviewRefs     []string   `json:"preview_refs,omitempty"`
	FileURL         *string    `json:"file_url,omitempty"`
	Error           *JobError  `json:"error,omitempty"`
}

// Apply merges the patch into the snapshot.
func (s *StatusSnapshot) Apply(p StatusPatch) {
	if p.Status != nil {
		s.Status = *p.Status
	}
	if p.Progress != nil {
		s.Progress = *p.Progress
	}
	if p.CurrentStep != nil {
		s.CurrentStep = *p.CurrentStep
	}
	if p.StepDescription != nil {
		s.StepDescription = *p.StepDescription
	}
	if len(p.PreviewRefs) > 0 {
		s.PreviewRefs = p.PreviewRefs
	}
	if p.FileURL != nil {
		s.FileURL = *p.FileURL
	}
	if p.Error != nil {
		s.Error = p.Error
	}
	s.UpdatedAt = time.Now()
}

// Helpers for building patches without local temporaries at call sites.

func StatusPtr(s JobStatus) *JobStatus { return &s }
func IntPtr(i int) *int                { return &i }
func StrPtr(s string) *string          { return &s }
