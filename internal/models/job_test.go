package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobTransitions(t *testing.T) {
	job := NewJob(JobKindGenerate, JobInput{TemplateRef: "basic", Markdown: "# Title"})
	require.Equal(t, JobStatusPending, job.Status)

	assert.True(t, job.CanTransition(JobStatusProcessing))
	assert.True(t, job.CanTransition(JobStatusCancelled))
	assert.False(t, job.CanTransition(JobStatusCompleted))

	job.MarkStarted()
	assert.Equal(t, JobStatusProcessing, job.Status)
	assert.Equal(t, 1, job.Attempts)
	require.NotNil(t, job.StartedAt)
	require.NotNil(t, job.LastHeartbeat)

	assert.True(t, job.CanTransition(JobStatusCompleted))
	assert.True(t, job.CanTransition(JobStatusFailed))
	assert.True(t, job.CanTransition(JobStatusCancelled))
	assert.False(t, job.CanTransition(JobStatusPending))

	job.MarkCompleted("/out/presentation.json")
	assert.True(t, job.IsTerminal())
	assert.Equal(t, 100, job.Progress)
	require.NotNil(t, job.CompletedAt)

	// Terminal states never transition.
	for _, to := range []JobStatus{JobStatusPending, JobStatusProcessing, JobStatusFailed, JobStatusCancelled} {
		assert.False(t, job.CanTransition(to), "completed -> %s must be refused", to)
	}
}

func TestJobMarkFailedRecordsError(t *testing.T) {
	job := NewJob(JobKindGenerate, JobInput{TemplateRef: "basic", Markdown: "# T"})
	job.MarkStarted()
	job.MarkFailed(&JobError{Kind: ErrStageFailed, Message: "plan failed"})

	assert.Equal(t, JobStatusFailed, job.Status)
	require.NotNil(t, job.Error)
	assert.Equal(t, ErrStageFailed, job.Error.Kind)
	assert.True(t, job.IsTerminal())
}

func TestJobValidate(t *testing.T) {
	tests := []struct {
		name    string
		kind    JobKind
		input   JobInput
		wantErr bool
	}{
		{"generate ok", JobKindGenerate, JobInput{TemplateRef: "basic", Markdown: "# T"}, false},
		{"generate missing markdown", JobKindGenerate, JobInput{TemplateRef: "basic"}, true},
		{"generate missing template", JobKindGenerate, JobInput{Markdown: "# T"}, true},
		{"analyze ok", JobKindAnalyzeTemplate, JobInput{TemplateRef: "basic"}, false},
		{"analyze missing template", JobKindAnalyzeTemplate, JobInput{}, true},
		{"unknown kind", JobKind("bogus"), JobInput{TemplateRef: "basic"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := NewJob(tt.kind, tt.input)
			err := job.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestQueueNameByKind(t *testing.T) {
	assert.Equal(t, "deckgen:generate", JobKindGenerate.QueueName())
	assert.Equal(t, "deckgen:analyze", JobKindAnalyzeTemplate.QueueName())
	assert.Equal(t, "deckgen:default", JobKind("other").QueueName())
}

func TestStatusSnapshotApply(t *testing.T) {
	snapshot := &StatusSnapshot{JobID: "j1", Status: JobStatusPending}

	snapshot.Apply(StatusPatch{
		Status:   StatusPtr(JobStatusProcessing),
		Progress: IntPtr(25),
	})
	assert.Equal(t, JobStatusProcessing, snapshot.Status)
	assert.Equal(t, 25, snapshot.Progress)

	// Nil fields leave existing values untouched.
	snapshot.Apply(StatusPatch{CurrentStep: StrPtr("plan")})
	assert.Equal(t, 25, snapshot.Progress)
	assert.Equal(t, "plan", snapshot.CurrentStep)
	assert.False(t, snapshot.UpdatedAt.IsZero())
}
