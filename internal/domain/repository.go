package domain

import "context"

// JobRepository defines persistence for job entities.
//
// Owner-scoped methods return ErrNotFound for both missing and foreign jobs.
// Complete and Fail are conditional: they only apply while the job is pending
// or running and return ErrJobFinalized otherwise, so concurrent finalizers
// settle on exactly one winner.
type JobRepository interface {
	Create(ctx context.Context, job NewJob) (*Job, error)
	Get(ctx context.Context, jobID, userID string) (*Job, error)
	List(ctx context.Context, userID string) ([]Job, error)
	Delete(ctx context.Context, jobID, userID string) error

	GetByID(ctx context.Context, jobID string) (*Job, error)
	MarkRunning(ctx context.Context, jobID string) (*Job, error)
	Complete(ctx context.Context, jobID, outputImage, executionID string) (*Job, error)
	Fail(ctx context.Context, jobID, code, message string) (*Job, error)
	RecordDispatch(ctx context.Context, jobID string) error
}
