package repository

import (
	"context"

	"github.com/iconidentify/mediarelay/internal/domain"
)

// JobRepository manages the resolve-job queue.
type JobRepository interface {
	// Enqueue adds a job to the queue.
	Enqueue(ctx context.Context, job *domain.ResolveJob) error

	// Dequeue retrieves the next pending job (FIFO).
	Dequeue(ctx context.Context) (*domain.ResolveJob, error)

	// Update modifies job state.
	Update(ctx context.Context, job *domain.ResolveJob) error

	// Get retrieves a job by ID.
	Get(ctx context.Context, id domain.JobID) (*domain.ResolveJob, error)

	// ListPending returns all pending/retrying jobs.
	ListPending(ctx context.Context) ([]*domain.ResolveJob, error)

	// Stats returns queue statistics.
	Stats(ctx context.Context) (*QueueStats, error)
}

// QueueStats contains job queue statistics.
type QueueStats struct {
	Queued     int
	Processing int
	Completed  int
	Failed     int
	Retrying   int
	ManualPick int
}
