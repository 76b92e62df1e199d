package repository

import (
	"context"
	"testing"
	"time"

	"github.com/iconidentify/mediarelay/internal/domain"
)

func newJob(id domain.JobID) *domain.ResolveJob {
	return domain.NewResolveJob(id, "https://example.com/"+string(id), domain.VariantSmartVideo, 3)
}

func TestNewInMemoryJobRepository(t *testing.T) {
	repo := NewInMemoryJobRepository()

	if repo == nil {
		t.Fatal("repo should not be nil")
	}
	if repo.jobs == nil {
		t.Error("jobs map should be initialized")
	}
	if repo.queue == nil {
		t.Error("queue should be initialized")
	}
}

func TestInMemoryJobRepository_Enqueue(t *testing.T) {
	repo := NewInMemoryJobRepository()
	ctx := context.Background()

	err := repo.Enqueue(ctx, newJob("job-1"))
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	// Verify job is stored
	retrieved, err := repo.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if retrieved.ID != "job-1" {
		t.Errorf("ID = %q, want %q", retrieved.ID, "job-1")
	}
}

func TestInMemoryJobRepository_Dequeue(t *testing.T) {
	repo := NewInMemoryJobRepository()
	ctx := context.Background()

	// Empty queue
	_, err := repo.Dequeue(ctx)
	if err != domain.ErrNoJobs {
		t.Errorf("expected ErrNoJobs, got %v", err)
	}

	// Add jobs
	repo.Enqueue(ctx, newJob("job-1"))
	repo.Enqueue(ctx, newJob("job-2"))

	// Dequeue should return first job (FIFO)
	dequeued, err := repo.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if dequeued.ID != "job-1" {
		t.Errorf("expected job-1, got %s", dequeued.ID)
	}

	// Dequeue again should return second job
	dequeued, err = repo.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if dequeued.ID != "job-2" {
		t.Errorf("expected job-2, got %s", dequeued.ID)
	}

	// Queue should be empty now
	_, err = repo.Dequeue(ctx)
	if err != domain.ErrNoJobs {
		t.Errorf("expected ErrNoJobs, got %v", err)
	}
}

func TestInMemoryJobRepository_Dequeue_SkipsNonPending(t *testing.T) {
	repo := NewInMemoryJobRepository()
	ctx := context.Background()

	// Create a completed job
	job1 := newJob("job-1")
	job1.Status = domain.JobStatusCompleted
	repo.Enqueue(ctx, job1)

	// Create a queued job
	repo.Enqueue(ctx, newJob("job-2"))

	// Should dequeue job-2 (skips completed job)
	dequeued, err := repo.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if dequeued.ID != "job-2" {
		t.Errorf("expected job-2, got %s", dequeued.ID)
	}
}

func TestInMemoryJobRepository_Dequeue_RetryingJobs(t *testing.T) {
	repo := NewInMemoryJobRepository()
	ctx := context.Background()

	job := newJob("job-1")
	job.Status = domain.JobStatusRetrying
	repo.Enqueue(ctx, job)

	// Should dequeue retrying job
	dequeued, err := repo.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if dequeued.ID != "job-1" {
		t.Errorf("expected job-1, got %s", dequeued.ID)
	}
}

func TestInMemoryJobRepository_Update(t *testing.T) {
	repo := NewInMemoryJobRepository()
	ctx := context.Background()

	job := newJob("job-1")
	repo.Enqueue(ctx, job)

	// Update the job
	job.Status = domain.JobStatusProcessing
	err := repo.Update(ctx, job)
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	// Verify update
	retrieved, _ := repo.Get(ctx, "job-1")
	if retrieved.Status != domain.JobStatusProcessing {
		t.Errorf("Status = %v, want %v", retrieved.Status, domain.JobStatusProcessing)
	}
}

func TestInMemoryJobRepository_Update_NotFound(t *testing.T) {
	repo := NewInMemoryJobRepository()
	ctx := context.Background()

	err := repo.Update(ctx, newJob("nonexistent"))
	if err != domain.ErrJobNotFound {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}

func TestInMemoryJobRepository_Update_RequeueRetrying(t *testing.T) {
	repo := NewInMemoryJobRepository()
	ctx := context.Background()

	job := newJob("job-1")
	repo.Enqueue(ctx, job)

	// Dequeue the job
	repo.Dequeue(ctx)

	// Mark as retrying
	job.Status = domain.JobStatusRetrying
	repo.Update(ctx, job)

	// Should be able to dequeue again
	dequeued, err := repo.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if dequeued.ID != "job-1" {
		t.Errorf("expected job-1, got %s", dequeued.ID)
	}
}

func TestInMemoryJobRepository_Get_NotFound(t *testing.T) {
	repo := NewInMemoryJobRepository()
	ctx := context.Background()

	_, err := repo.Get(ctx, "nonexistent")
	if err != domain.ErrJobNotFound {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}

func TestInMemoryJobRepository_ListPending(t *testing.T) {
	repo := NewInMemoryJobRepository()
	ctx := context.Background()

	// Empty initially
	pending, err := repo.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending failed: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("expected empty list, got %d items", len(pending))
	}

	// Add jobs with various statuses
	job1 := newJob("job-1")
	job1.Status = domain.JobStatusQueued
	repo.Enqueue(ctx, job1)

	job2 := newJob("job-2")
	job2.Status = domain.JobStatusProcessing
	repo.Enqueue(ctx, job2)

	job3 := newJob("job-3")
	job3.Status = domain.JobStatusRetrying
	repo.Enqueue(ctx, job3)

	job4 := newJob("job-4")
	job4.Status = domain.JobStatusCompleted
	repo.Enqueue(ctx, job4)

	pending, _ = repo.ListPending(ctx)
	if len(pending) != 2 {
		t.Errorf("expected 2 pending jobs, got %d", len(pending))
	}
}

func TestInMemoryJobRepository_Stats(t *testing.T) {
	repo := NewInMemoryJobRepository()
	ctx := context.Background()

	// Empty stats
	stats, err := repo.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Queued != 0 || stats.Processing != 0 || stats.Completed != 0 || stats.Failed != 0 || stats.Retrying != 0 {
		t.Error("expected all zeros for empty repo")
	}

	// Add jobs with various statuses
	statuses := []domain.JobStatus{
		domain.JobStatusQueued,
		domain.JobStatusQueued,
		domain.JobStatusProcessing,
		domain.JobStatusCompleted,
		domain.JobStatusCompleted,
		domain.JobStatusCompleted,
		domain.JobStatusFailed,
		domain.JobStatusRetrying,
		domain.JobStatusManualPick,
	}

	for i, status := range statuses {
		job := newJob(domain.JobID(string(rune('a' + i))))
		job.Status = status
		repo.Enqueue(ctx, job)
	}

	stats, _ = repo.Stats(ctx)
	if stats.Queued != 2 {
		t.Errorf("Queued = %d, want 2", stats.Queued)
	}
	if stats.Processing != 1 {
		t.Errorf("Processing = %d, want 1", stats.Processing)
	}
	if stats.Completed != 3 {
		t.Errorf("Completed = %d, want 3", stats.Completed)
	}
	if stats.Failed != 1 {
		t.Errorf("Failed = %d, want 1", stats.Failed)
	}
	if stats.Retrying != 1 {
		t.Errorf("Retrying = %d, want 1", stats.Retrying)
	}
	if stats.ManualPick != 1 {
		t.Errorf("ManualPick = %d, want 1", stats.ManualPick)
	}
}

func TestInMemoryJobRepository_Clear(t *testing.T) {
	repo := NewInMemoryJobRepository()
	ctx := context.Background()

	// Add some jobs
	repo.Enqueue(ctx, newJob("job-1"))
	repo.Enqueue(ctx, newJob("job-2"))

	// Clear
	repo.Clear()

	// Should be empty
	_, err := repo.Get(ctx, "job-1")
	if err != domain.ErrJobNotFound {
		t.Error("expected job-1 to be cleared")
	}

	stats, _ := repo.Stats(ctx)
	if stats.Queued != 0 {
		t.Errorf("expected 0 queued after clear, got %d", stats.Queued)
	}
}

func TestInMemoryJobRepository_Concurrency(t *testing.T) {
	repo := NewInMemoryJobRepository()
	ctx := context.Background()

	// Run concurrent operations
	done := make(chan bool)

	for i := 0; i < 10; i++ {
		go func(id int) {
			job := newJob(domain.JobID(time.Now().String() + string(rune(id))))
			repo.Enqueue(ctx, job)
			repo.Stats(ctx)
			repo.ListPending(ctx)
			done <- true
		}(i)
	}

	// Wait for all goroutines
	for i := 0; i < 10; i++ {
		<-done
	}
}
