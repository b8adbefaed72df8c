package repo

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"adstudio/internal/domain"
	"adstudio/internal/infra"
	"adstudio/internal/sqlinline"
)

// JobRepositoryPG implements domain.JobRepository on PostgreSQL.
type JobRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(sql infra.SQLExecutor) *JobRepositoryPG {
	return &JobRepositoryPG{sql: sql}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.Job, error) {
	var job domain.Job
	var status string
	if err := row.Scan(
		&job.ID,
		&job.UserID,
		&status,
		&job.Instructions,
		&job.CharacterImage,
		&job.ProductImage,
		&job.OutputImage,
		&job.ErrorCode,
		&job.ErrorMessage,
		&job.EngineExecutionID,
		&job.Attempts,
		&job.CreatedAt,
		&job.UpdatedAt,
		&job.CompletedAt,
	); err != nil {
		return nil, err
	}
	job.Status = domain.JobStatus(status)
	return &job, nil
}

// Create inserts a new pending job.
func (r *JobRepositoryPG) Create(ctx context.Context, in domain.NewJob) (*domain.Job, error) {
	row := r.sql.QueryRow(ctx, sqlinline.QInsertJob, in.UserID, in.Instructions, in.CharacterImage, in.ProductImage)
	job, err := scanJob(row)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return job, nil
}

// Get fetches a job owned by userID.
func (r *JobRepositoryPG) Get(ctx context.Context, jobID, userID string) (*domain.Job, error) {
	if !validID(jobID) {
		return nil, domain.ErrNotFound
	}
	return r.one(ctx, "select job", sqlinline.QSelectJobForUser, jobID, userID)
}

// List returns the jobs owned by userID, newest first.
func (r *JobRepositoryPG) List(ctx context.Context, userID string) ([]domain.Job, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QListJobsByUser, userID)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	jobs := []domain.Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// Delete removes a job owned by userID.
func (r *JobRepositoryPG) Delete(ctx context.Context, jobID, userID string) error {
	if !validID(jobID) {
		return domain.ErrNotFound
	}
	tag, err := r.sql.Exec(ctx, sqlinline.QDeleteJobForUser, jobID, userID)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetByID fetches a job regardless of owner.
func (r *JobRepositoryPG) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	if !validID(jobID) {
		return nil, domain.ErrNotFound
	}
	return r.one(ctx, "select job", sqlinline.QSelectJobByID, jobID)
}

// MarkRunning moves a pending job to running.
func (r *JobRepositoryPG) MarkRunning(ctx context.Context, jobID string) (*domain.Job, error) {
	return r.transition(ctx, "mark job running", sqlinline.QMarkJobRunning, jobID)
}

// Complete finalizes a pending or running job as completed.
func (r *JobRepositoryPG) Complete(ctx context.Context, jobID, outputImage, executionID string) (*domain.Job, error) {
	return r.transition(ctx, "complete job", sqlinline.QCompleteJob, jobID, outputImage, executionID)
}

// Fail finalizes a pending or running job as failed.
func (r *JobRepositoryPG) Fail(ctx context.Context, jobID, code, message string) (*domain.Job, error) {
	return r.transition(ctx, "fail job", sqlinline.QFailJob, jobID, code, message)
}

// RecordDispatch increments the dispatch attempt counter.
func (r *JobRepositoryPG) RecordDispatch(ctx context.Context, jobID string) error {
	if !validID(jobID) {
		return domain.ErrNotFound
	}
	tag, err := r.sql.Exec(ctx, sqlinline.QIncrementJobAttempts, jobID)
	if err != nil {
		return fmt.Errorf("record dispatch: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *JobRepositoryPG) one(ctx context.Context, op, query string, args ...any) (*domain.Job, error) {
	job, err := scanJob(r.sql.QueryRow(ctx, query, args...))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return job, nil
}

// transition runs a conditional update. When no row matched, the job is
// looked up again to tell a missing job from one in another state.
func (r *JobRepositoryPG) transition(ctx context.Context, op, query, jobID string, args ...any) (*domain.Job, error) {
	if !validID(jobID) {
		return nil, domain.ErrNotFound
	}
	job, err := scanJob(r.sql.QueryRow(ctx, query, append([]any{jobID}, args...)...))
	if err == nil {
		return job, nil
	}
	if !infra.IsNoRows(err) {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	current, err := r.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return nil, rejection(current.Status)
}

func rejection(status domain.JobStatus) error {
	if status.Terminal() {
		return domain.ErrJobFinalized
	}
	return domain.ErrTransitionRejected
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

var _ domain.JobRepository = (*JobRepositoryPG)(nil)
