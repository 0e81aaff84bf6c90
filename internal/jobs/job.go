// Package jobs provides background job processing for long-running
// operations, chiefly repository indexing.
package jobs

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the current state of a job.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// JobType identifies the kind of work a job performs.
type JobType string

const (
	JobTypeIndexRepository JobType = "index_repository"
	JobTypeImportSCIP      JobType = "import_scip"
	JobTypeSnapshotExport  JobType = "snapshot_export"
)

// Job represents a background task with its state and metadata.
type Job struct {
	ID           string     `json:"id"`
	Type         JobType    `json:"type"`
	RepositoryID string     `json:"repositoryId,omitempty"`
	Status       JobStatus  `json:"status"`
	Progress     int        `json:"progress"` // 0-100
	CreatedAt    time.Time  `json:"createdAt"`
	StartedAt    *time.Time `json:"startedAt,omitempty"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
	Error        string     `json:"error,omitempty"`
	FailedFiles  []string   `json:"failedFiles,omitempty"`
	Stats        JobStats   `json:"stats"`
}

// JobStats summarizes what an indexing job processed.
type JobStats struct {
	FilesSeen    int `json:"filesSeen"`
	FilesIndexed int `json:"filesIndexed"`
	FilesSkipped int `json:"filesSkipped"`
	Units        int `json:"units"`
	Edges        int `json:"edges"`
	Cycles       int `json:"cycles"`
}

// NewJob creates a queued job.
func NewJob(jobType JobType, repositoryID string) *Job {
	return &Job{
		ID:           uuid.New().String(),
		Type:         jobType,
		RepositoryID: repositoryID,
		Status:       JobQueued,
		CreatedAt:    time.Now().UTC(),
	}
}

// IsTerminal returns true if the job is in a terminal state.
func (j *Job) IsTerminal() bool {
	return j.Status == JobCompleted || j.Status == JobFailed || j.Status == JobCancelled
}

// CanCancel returns true if the job can be cancelled.
func (j *Job) CanCancel() bool {
	return j.Status == JobQueued || j.Status == JobRunning
}

// MarkStarted transitions the job to running state.
func (j *Job) MarkStarted() {
	now := time.Now().UTC()
	j.Status = JobRunning
	j.StartedAt = &now
}

// MarkCompleted transitions the job to completed state.
func (j *Job) MarkCompleted() {
	now := time.Now().UTC()
	j.Status = JobCompleted
	j.Progress = 100
	j.CompletedAt = &now
}

// MarkFailed transitions the job to failed state with error.
func (j *Job) MarkFailed(err error) {
	now := time.Now().UTC()
	j.Status = JobFailed
	j.CompletedAt = &now
	if err != nil {
		j.Error = err.Error()
	}
}

// MarkCancelled transitions the job to cancelled state.
func (j *Job) MarkCancelled() {
	now := time.Now().UTC()
	j.Status = JobCancelled
	j.CompletedAt = &now
}

// SetProgress updates the job's progress (0-100).
func (j *Job) SetProgress(progress int) {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	j.Progress = progress
}

// Duration returns how long the job took (or has been running).
func (j *Job) Duration() time.Duration {
	if j.StartedAt == nil {
		return 0
	}
	endTime := time.Now().UTC()
	if j.CompletedAt != nil {
		endTime = *j.CompletedAt
	}
	return endTime.Sub(*j.StartedAt)
}

// Clone returns a deep copy safe to hand to callers.
func (j *Job) Clone() *Job {
	out := *j
	if j.StartedAt != nil {
		t := *j.StartedAt
		out.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		out.CompletedAt = &t
	}
	out.FailedFiles = append([]string(nil), j.FailedFiles...)
	return &out
}
