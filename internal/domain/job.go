package domain

import (
	"time"
)

// JobID is a unique identifier for a resolve job.
type JobID string

// String returns the string representation of the JobID.
func (id JobID) String() string {
	return string(id)
}

// JobStatus represents the current state of a resolve job.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusRetrying   JobStatus = "retrying"

	// JobStatusManualPick means auto-detection could not classify the
	// source; the front-end should ask the user for an explicit format.
	JobStatusManualPick JobStatus = "manual_pick"
)

// ResolveJob is one queued request to resolve a URL into a cached
// artifact handle for a specific delivery variant.
type ResolveJob struct {
	ID         JobID
	URL        string
	Variant    VariantKey
	Status     JobStatus
	Attempts   int
	MaxRetries int
	LastError  string

	// Set once the job completes.
	ContentKey ContentKey
	Handle     Handle
	FromCache  bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewResolveJob creates a queued job for a URL and variant.
func NewResolveJob(id JobID, url string, variant VariantKey, maxRetries int) *ResolveJob {
	now := time.Now()
	return &ResolveJob{
		ID:         id,
		URL:        url,
		Variant:    variant,
		Status:     JobStatusQueued,
		MaxRetries: maxRetries,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// CanRetry returns true if the job can be retried.
func (j *ResolveJob) CanRetry() bool {
	return j.Attempts < j.MaxRetries
}

// MarkProcessing updates the job status to processing.
func (j *ResolveJob) MarkProcessing() {
	j.Status = JobStatusProcessing
	j.UpdatedAt = time.Now()
}

// MarkCompleted records the resolved entry and marks the job done.
func (j *ResolveJob) MarkCompleted(key ContentKey, handle Handle, fromCache bool) {
	j.Status = JobStatusCompleted
	j.ContentKey = key
	j.Handle = handle
	j.FromCache = fromCache
	j.UpdatedAt = time.Now()
}

// MarkManualPick marks the job as needing an explicit format choice.
func (j *ResolveJob) MarkManualPick(key ContentKey) {
	j.Status = JobStatusManualPick
	j.ContentKey = key
	j.UpdatedAt = time.Now()
}

// MarkFailed records the error and either schedules a retry or fails the
// job permanently.
func (j *ResolveJob) MarkFailed(err string) {
	j.Attempts++
	j.LastError = err
	j.UpdatedAt = time.Now()

	if j.CanRetry() {
		j.Status = JobStatusRetrying
	} else {
		j.Status = JobStatusFailed
	}
}
