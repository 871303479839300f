// Package jobs tracks the background tasks running in this process.
package jobs

import (
	"context"
	"time"
)

// JobID uniquely identifies a job.
type JobID string

// JobStatus represents the current state of a job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// JobResult contains the final outcome of a job.
type JobResult struct {
	Error string `json:"error,omitempty"`
}

// Job is a detached task bound to a key. At most one non-terminal job
// exists per (type, key).
type Job struct {
	ID        JobID      `json:"id"`
	Type      string     `json:"type"`
	Key       string     `json:"key"`
	Status    JobStatus  `json:"status"`
	Result    *JobResult `json:"result,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`

	// CancelRequested is set once the job context is cancelled. The job
	// stays non-terminal until its task finishes.
	CancelRequested bool `json:"cancelRequested,omitempty"`

	cancel context.CancelFunc
}

// IsTerminal returns true if the job is in a terminal state.
func (j *Job) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed || j.Status == JobStatusCancelled
}
