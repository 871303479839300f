package jobs

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"
)

const (
	// JobTTL is how long finished jobs are retained.
	JobTTL = 1 * time.Hour

	// RollbackJobType is the type for rollback execution tasks.
	RollbackJobType = "rollback"

	cleanupInterval = 10 * time.Minute
)

var (
	// ErrJobNotFound is returned when a job is not found.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobAlreadyRunning is returned when a job of the same type and key is already running.
	ErrJobAlreadyRunning = errors.New("job already running")

	// ErrJobCancelled is returned when starting a job whose cancellation was requested.
	ErrJobCancelled = errors.New("job cancelled")
)

// Manager manages detached jobs in memory.
type Manager struct {
	mu   sync.RWMutex
	jobs map[JobID]*Job

	stopOnce sync.Once
	stop     chan struct{}
}

// NewManager creates a new job manager.
func NewManager() *Manager {
	m := &Manager{
		jobs: make(map[JobID]*Job),
		stop: make(chan struct{}),
	}
	go m.cleanupLoop()
	return m
}

// CreateJob registers a pending job for key and derives its context from parent.
// An empty id is generated. Returns ErrJobAlreadyRunning if a job of the same
// type is still running for key.
func (m *Manager) CreateJob(parent context.Context, jobType, key string, id JobID) (*Job, context.Context, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, job := range m.jobs {
		if job.Type == jobType && job.Key == key && !job.IsTerminal() {
			return nil, nil, ErrJobAlreadyRunning
		}
	}

	if id == "" {
		id = generateJobID(jobType)
	}
	now := time.Now().UTC()
	ctx, cancel := context.WithCancel(parent)

	job := &Job{
		ID:        id,
		Type:      jobType,
		Key:       key,
		Status:    JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
		cancel:    cancel,
	}

	m.jobs[id] = job
	jobCopy := *job
	return &jobCopy, ctx, nil
}

// GetJob retrieves a job by ID.
func (m *Manager) GetJob(id JobID) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	// Return a copy to avoid race conditions
	jobCopy := *job
	return &jobCopy, nil
}

// GetRunningJob returns the non-terminal job of the given type for key, if any.
func (m *Manager) GetRunningJob(jobType, key string) *Job {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, job := range m.jobs {
		if job.Type == jobType && job.Key == key && !job.IsTerminal() {
			jobCopy := *job
			return &jobCopy
		}
	}
	return nil
}

// RunningCount returns the number of non-terminal jobs of the given type.
func (m *Manager) RunningCount(jobType string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, job := range m.jobs {
		if job.Type == jobType && !job.IsTerminal() {
			n++
		}
	}
	return n
}

// StartJob transitions a pending job to running status.
func (m *Manager) StartJob(id JobID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	if job.CancelRequested {
		return fmt.Errorf("%w: %s", ErrJobCancelled, id)
	}
	if job.Status != JobStatusPending {
		return fmt.Errorf("job %s is %s", id, job.Status)
	}

	job.Status = JobStatusRunning
	job.UpdatedAt = time.Now().UTC()
	return nil
}

// CompleteJob marks a job as completed and releases its context.
func (m *Manager) CompleteJob(id JobID) error {
	return m.finish(id, JobStatusCompleted, nil)
}

// FailJob marks a job as failed with an error message and releases its context.
func (m *Manager) FailJob(id JobID, errMsg string) error {
	return m.finish(id, JobStatusFailed, &JobResult{Error: errMsg})
}

// CancelJob cancels the context of a non-terminal job. The job keeps holding
// its key until the task reports back through CompleteJob or FailJob, and it
// then finishes as cancelled. It returns false if the job is unknown, already
// finished or already cancelled.
func (m *Manager) CancelJob(id JobID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok || job.IsTerminal() || job.CancelRequested {
		return false
	}

	job.CancelRequested = true
	job.UpdatedAt = time.Now().UTC()
	job.cancel()
	return true
}

func (m *Manager) finish(id JobID, status JobStatus, result *JobResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return ErrJobNotFound
	}

	// The first outcome wins
	if job.IsTerminal() {
		return nil
	}
	if job.CancelRequested {
		status = JobStatusCancelled
	}
	job.Status = status
	job.Result = result
	job.UpdatedAt = time.Now().UTC()
	job.cancel()
	return nil
}

// Close stops the cleanup loop and cancels every job still running.
func (m *Manager) Close() {
	m.stopOnce.Do(func() {
		close(m.stop)

		m.mu.Lock()
		defer m.mu.Unlock()
		for _, job := range m.jobs {
			if !job.IsTerminal() {
				job.cancel()
			}
		}
	})
}

// cleanupLoop periodically removes old finished jobs.
func (m *Manager) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.cleanup(time.Now().UTC())
		}
	}
}

func (m *Manager) cleanup(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := now.Add(-JobTTL)
	for id, job := range m.jobs {
		if job.IsTerminal() && job.UpdatedAt.Before(cutoff) {
			delete(m.jobs, id)
		}
	}
}

func generateJobID(prefix string) JobID {
	bytes := make([]byte, 6)
	if _, err := rand.Read(bytes); err != nil {
		// Fall back to timestamp-based ID
		return JobID(prefix + "-" + time.Now().UTC().Format("20060102150405"))
	}
	return JobID(prefix + "-" + hex.EncodeToString(bytes))
}
