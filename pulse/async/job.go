// Package async runs pipeline units of work in lanes, one job per lane.
// Submitting to a busy lane supersedes the job already there.
package async

import (
	"time"

	"github.com/google/uuid"

	"github.com/cytofkit/cytofkit/errors"
)

// JobStatus represents the current state of a job
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// IsValidStatus returns true if the status string is a valid JobStatus
func IsValidStatus(s string) bool {
	switch JobStatus(s) {
	case JobStatusQueued, JobStatusRunning,
		JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether the status is final
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// Progress represents job progress information
type Progress struct {
	Current int `json:"current,omitempty"`
	Total   int `json:"total,omitempty"`
}

// Percentage calculates progress as a percentage (0-100)
func (p Progress) Percentage() float64 {
	if p.Total == 0 {
		return 0
	}
	return float64(p.Current) / float64(p.Total) * 100
}

// Job is one unit of pipeline work.
//
// A job is owned by the runner goroutine executing it; callers read its
// fields only after receiving its Outcome.
type Job struct {
	ID          string      `json:"id"`
	Lane        string      `json:"lane"`         // "cluster", "embed", ...; one running job per lane
	HandlerName string      `json:"handler_name"` // routes to a registered JobHandler
	Payload     interface{} `json:"payload,omitempty"`
	Status      JobStatus   `json:"status"`
	Progress    Progress    `json:"progress,omitempty"`
	Error       string      `json:"error,omitempty"`
	ErrorKind   errors.Kind `json:"error_kind,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	StartedAt   *time.Time  `json:"started_at,omitempty"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// NewJob creates a queued job for the named handler. The lane defaults to
// the handler name.
func NewJob(lane, handlerName string, payload interface{}) (*Job, error) {
	if handlerName == "" {
		return nil, errors.InputErrorf("handlerName cannot be empty")
	}
	if lane == "" {
		lane = handlerName
	}
	now := time.Now()
	return &Job{
		ID:          uuid.NewString(),
		Lane:        lane,
		HandlerName: handlerName,
		Payload:     payload,
		Status:      JobStatusQueued,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Start marks the job as running
func (j *Job) Start() {
	now := time.Now()
	j.Status = JobStatusRunning
	j.StartedAt = &now
	j.UpdatedAt = now
}

// Complete marks the job as completed
func (j *Job) Complete() {
	now := time.Now()
	j.Status = JobStatusCompleted
	j.CompletedAt = &now
	j.UpdatedAt = now
}

// Fail marks the job as failed and records the error classification
func (j *Job) Fail(err error) {
	now := time.Now()
	j.Status = JobStatusFailed
	j.Error = err.Error()
	j.ErrorKind = errors.KindOf(err)
	j.CompletedAt = &now
	j.UpdatedAt = now
}

// Cancel marks the job as cancelled with a reason
func (j *Job) Cancel(reason string) {
	now := time.Now()
	j.Status = JobStatusCancelled
	j.Error = reason
	j.ErrorKind = errors.KindCancelled
	j.CompletedAt = &now
	j.UpdatedAt = now
}

// UpdateProgress updates the job's progress
func (j *Job) UpdateProgress(current int) {
	j.Progress.Current = current
	j.UpdatedAt = time.Now()
}

// Duration is the wall time between start and completion, zero if the job
// never started.
func (j *Job) Duration() time.Duration {
	if j.StartedAt == nil || j.CompletedAt == nil {
		return 0
	}
	return j.CompletedAt.Sub(*j.StartedAt)
}
