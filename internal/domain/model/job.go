package model

import (
	"encoding/json"
	"time"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

type JobType string

const (
	JobTypeImageGeneration JobType = "image_generation"
	JobTypeVideoGeneration JobType = "video_generation"
	JobTypeImageEdit       JobType = "image_edit"
	JobTypeVideoCompose    JobType = "video_compose"
)

// KnownJobType reports whether t is one of the closed set of work kinds.
func KnownJobType(t JobType) bool {
	switch t {
	case JobTypeImageGeneration, JobTypeVideoGeneration, JobTypeImageEdit, JobTypeVideoCompose:
		return true
	}
	return false
}

// Job is one trackable unit of asynchronous work. InputData and ResultData
// are opaque to the queue; only the typed handler for a JobType parses them.
type Job struct {
	ID              string
	UserID          string
	ProjectID       string
	Type            JobType
	Status          JobStatus
	Progress        int
	CurrentStep     int
	TotalSteps      int
	ProgressMessage string
	InputData       json.RawMessage
	ResultData      json.RawMessage
	ErrorMessage    string
	ParentJobID     string
	IsImported      bool
	CreatedAt       time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time
	UpdatedAt       time.Time
}

// Terminal reports whether the job has reached a final status.
func (j *Job) Terminal() bool {
	switch j.Status {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// Active reports whether the job still counts against the per-user cap.
func (j *Job) Active() bool {
	return j.Status == JobStatusPending || j.Status == JobStatusProcessing
}

// CanCancel reports whether a cancel request is valid from the current status.
func (j *Job) CanCancel() bool { return j.Active() }

// CanRetry reports whether the job may seed a retry row.
func (j *Job) CanRetry() bool {
	return j.Status == JobStatusFailed || j.Status == JobStatusCancelled
}

// ClampProgress bounds progress to [0,100].
func ClampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
