package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"adstudio/internal/domain"
)

// JobRepositoryMemory keeps jobs in process memory. It is intended for
// development and test environments where PostgreSQL is not available; every
// operation holds the mutex, so conditional writes keep the same
// first-writer-wins guarantee as the SQL implementation.
type JobRepositoryMemory struct {
	mu   sync.Mutex
	jobs map[string]*memoryJob
	seq  int64
	now  func() time.Time
}

type memoryJob struct {
	job domain.Job
	seq int64
}

// NewMemoryJobRepository creates an empty in-memory repository.
func NewMemoryJobRepository() *JobRepositoryMemory {
	return &JobRepositoryMemory{jobs: make(map[string]*memoryJob), now: time.Now}
}

func (r *JobRepositoryMemory) Create(ctx context.Context, in domain.NewJob) (*domain.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now().UTC()
	r.seq++
	entry := &memoryJob{
		seq: r.seq,
		job: domain.Job{
			ID:             uuid.NewString(),
			UserID:         in.UserID,
			Status:         domain.JobStatusPending,
			Instructions:   in.Instructions,
			CharacterImage: in.CharacterImage,
			ProductImage:   in.ProductImage,
			CreatedAt:      now,
			UpdatedAt:      now,
		},
	}
	r.jobs[entry.job.ID] = entry
	return cloneJob(&entry.job), nil
}

func (r *JobRepositoryMemory) Get(ctx context.Context, jobID, userID string) (*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.jobs[jobID]
	if !ok || entry.job.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return cloneJob(&entry.job), nil
}

func (r *JobRepositoryMemory) List(ctx context.Context, userID string) ([]domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	owned := make([]*memoryJob, 0)
	for _, entry := range r.jobs {
		if entry.job.UserID == userID {
			owned = append(owned, entry)
		}
	}
	sort.Slice(owned, func(i, j int) bool {
		if !owned[i].job.CreatedAt.Equal(owned[j].job.CreatedAt) {
			return owned[i].job.CreatedAt.After(owned[j].job.CreatedAt)
		}
		return owned[i].seq > owned[j].seq
	})
	jobs := make([]domain.Job, 0, len(owned))
	for _, entry := range owned {
		jobs = append(jobs, *cloneJob(&entry.job))
	}
	return jobs, nil
}

func (r *JobRepositoryMemory) Delete(ctx context.Context, jobID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.jobs[jobID]
	if !ok || entry.job.UserID != userID {
		return domain.ErrNotFound
	}
	delete(r.jobs, jobID)
	return nil
}

func (r *JobRepositoryMemory) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneJob(&entry.job), nil
}

func (r *JobRepositoryMemory) MarkRunning(ctx context.Context, jobID string) (*domain.Job, error) {
	return r.transition(jobID, []domain.JobStatus{domain.JobStatusPending}, func(job *domain.Job, _ time.Time) {
		job.Status = domain.JobStatusRunning
	})
}

func (r *JobRepositoryMemory) Complete(ctx context.Context, jobID, outputImage, executionID string) (*domain.Job, error) {
	return r.transition(jobID, openStatuses, func(job *domain.Job, now time.Time) {
		job.Status = domain.JobStatusCompleted
		job.OutputImage = outputImage
		if executionID != "" {
			job.EngineExecutionID = executionID
		}
		job.CompletedAt = &now
	})
}

func (r *JobRepositoryMemory) Fail(ctx context.Context, jobID, code, message string) (*domain.Job, error) {
	return r.transition(jobID, openStatuses, func(job *domain.Job, now time.Time) {
		job.Status = domain.JobStatusFailed
		job.ErrorCode = code
		job.ErrorMessage = message
		job.CompletedAt = &now
	})
}

func (r *JobRepositoryMemory) RecordDispatch(ctx context.Context, jobID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	entry.job.Attempts++
	entry.job.UpdatedAt = r.now().UTC()
	return nil
}

var openStatuses = []domain.JobStatus{domain.JobStatusPending, domain.JobStatusRunning}

func (r *JobRepositoryMemory) transition(jobID string, from []domain.JobStatus, apply func(*domain.Job, time.Time)) (*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	allowed := false
	for _, status := range from {
		if entry.job.Status == status {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, rejection(entry.job.Status)
	}
	now := r.now().UTC()
	apply(&entry.job, now)
	entry.job.UpdatedAt = now
	return cloneJob(&entry.job), nil
}

func cloneJob(job *domain.Job) *domain.Job {
	out := *job
	if job.CompletedAt != nil {
		completed := *job.CompletedAt
		out.CompletedAt = &completed
	}
	return &out
}

var _ domain.JobRepository = (*JobRepositoryMemory)(nil)
