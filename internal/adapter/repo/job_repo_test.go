package repo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"adstudio/internal/domain"
	"adstudio/internal/sqlinline"
)

// stubSQL emulates the jobs table for the queries in sqlinline, including the
// status guards of the conditional updates.
type stubSQL struct {
	mu      sync.Mutex
	jobs    map[string]*domain.Job
	clock   time.Time
	queries []string
}

func newStubSQL() *stubSQL {
	return &stubSQL{jobs: map[string]*domain.Job{}, clock: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (s *stubSQL) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

type stubRow struct {
	scan func(dest ...any) error
}

func (r stubRow) Scan(dest ...any) error {
	if r.scan == nil {
		return pgx.ErrNoRows
	}
	return r.scan(dest...)
}

func jobRow(job *domain.Job) stubRow {
	copied := *job
	return stubRow{scan: func(dest ...any) error { return fillJob(dest, &copied) }}
}

func fillJob(dest []any, job *domain.Job) error {
	if len(dest) != 14 {
		return fmt.Errorf("unexpected scan width %d", len(dest))
	}
	*dest[0].(*string) = job.ID
	*dest[1].(*string) = job.UserID
	*dest[2].(*string) = string(job.Status)
	*dest[3].(*string) = job.Instructions
	*dest[4].(*string) = job.CharacterImage
	*dest[5].(*string) = job.ProductImage
	*dest[6].(*string) = job.OutputImage
	*dest[7].(*string) = job.ErrorCode
	*dest[8].(*string) = job.ErrorMessage
	*dest[9].(*string) = job.EngineExecutionID
	*dest[10].(*int) = job.Attempts
	*dest[11].(*time.Time) = job.CreatedAt
	*dest[12].(*time.Time) = job.UpdatedAt
	*dest[13].(**time.Time) = job.CompletedAt
	return nil
}

func (s *stubSQL) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, query)

	switch query {
	case sqlinline.QDeleteJobForUser:
		job, ok := s.jobs[args[0].(string)]
		if !ok || job.UserID != args[1].(string) {
			return pgconn.NewCommandTag("DELETE 0"), nil
		}
		delete(s.jobs, job.ID)
		return pgconn.NewCommandTag("DELETE 1"), nil
	case sqlinline.QIncrementJobAttempts:
		job, ok := s.jobs[args[0].(string)]
		if !ok {
			return pgconn.NewCommandTag("UPDATE 0"), nil
		}
		job.Attempts++
		job.UpdatedAt = s.tick()
		return pgconn.NewCommandTag("UPDATE 1"), nil
	}
	return pgconn.CommandTag{}, fmt.Errorf("unsupported exec: %s", query)
}

func (s *stubSQL) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, query)

	switch query {
	case sqlinline.QInsertJob:
		now := s.tick()
		job := &domain.Job{
			ID:             uuid.NewString(),
			UserID:         args[0].(string),
			Status:         domain.JobStatusPending,
			Instructions:   args[1].(string),
			CharacterImage: args[2].(string),
			ProductImage:   args[3].(string),
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		s.jobs[job.ID] = job
		return jobRow(job)
	case sqlinline.QSelectJobForUser:
		job, ok := s.jobs[args[0].(string)]
		if !ok || job.UserID != args[1].(string) {
			return stubRow{}
		}
		return jobRow(job)
	case sqlinline.QSelectJobByID:
		job, ok := s.jobs[args[0].(string)]
		if !ok {
			return stubRow{}
		}
		return jobRow(job)
	case sqlinline.QMarkJobRunning:
		job, ok := s.jobs[args[0].(string)]
		if !ok || job.Status != domain.JobStatusPending {
			return stubRow{}
		}
		job.Status = domain.JobStatusRunning
		job.UpdatedAt = s.tick()
		return jobRow(job)
	case sqlinline.QCompleteJob:
		job, ok := s.jobs[args[0].(string)]
		if !ok || job.Status.Terminal() {
			return stubRow{}
		}
		now := s.tick()
		job.Status = domain.JobStatusCompleted
		job.OutputImage = args[1].(string)
		if exec := args[2].(string); exec != "" {
			job.EngineExecutionID = exec
		}
		job.CompletedAt = &now
		job.UpdatedAt = now
		return jobRow(job)
	case sqlinline.QFailJob:
		job, ok := s.jobs[args[0].(string)]
		if !ok || job.Status.Terminal() {
			return stubRow{}
		}
		now := s.tick()
		job.Status = domain.JobStatusFailed
		job.ErrorCode = args[1].(string)
		job.ErrorMessage = args[2].(string)
		job.CompletedAt = &now
		job.UpdatedAt = now
		return jobRow(job)
	}
	return stubRow{scan: func(dest ...any) error {
		return fmt.Errorf("unsupported query: %s", query)
	}}
}

func (s *stubSQL) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, query)

	if query != sqlinline.QListJobsByUser {
		return nil, fmt.Errorf("unsupported query: %s", query)
	}
	var owned []domain.Job
	for _, job := range s.jobs {
		if job.UserID == args[0].(string) {
			owned = append(owned, *job)
		}
	}
	sort.Slice(owned, func(i, j int) bool { return owned[i].CreatedAt.After(owned[j].CreatedAt) })
	return &stubRows{jobs: owned, idx: -1}, nil
}

type stubRows struct {
	testRowsBase
	jobs []domain.Job
	idx  int
}

func (r *stubRows) Next() bool {
	r.idx++
	return r.idx < len(r.jobs)
}

func (r *stubRows) Scan(dest ...any) error { return fillJob(dest, &r.jobs[r.idx]) }
func (r *stubRows) Close()                 {}
func (r *stubRows) Err() error             { return nil }

type testRowsBase struct{}

func (testRowsBase) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (testRowsBase) Conn() *pgx.Conn                              { return nil }
func (testRowsBase) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (testRowsBase) RawValues() [][]byte                          { return nil }
func (testRowsBase) Values() ([]any, error) {
	return nil, fmt.Errorf("values not supported in test rows")
}

func newJob(owner string) domain.NewJob {
	return domain.NewJob{
		UserID:         owner,
		Instructions:   "put the mug in her hands",
		CharacterImage: "data:image/png;base64,AAAA",
		ProductImage:   "https://cdn.example.com/mug.png",
	}
}

func TestJobRepositoryPGLifecycle(t *testing.T) {
	ctx := context.Background()
	db := newStubSQL()
	r := NewJobRepository(db)

	job, err := r.Create(ctx, newJob("user-a"))
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if job.Status != domain.JobStatusPending {
		t.Fatalf("status = %s, want pending", job.Status)
	}

	if err := r.RecordDispatch(ctx, job.ID); err != nil {
		t.Fatalf("RecordDispatch error: %v", err)
	}
	running, err := r.MarkRunning(ctx, job.ID)
	if err != nil {
		t.Fatalf("MarkRunning error: %v", err)
	}
	if running.Status != domain.JobStatusRunning || running.Attempts != 1 {
		t.Fatalf("unexpected running job: %+v", running)
	}

	done, err := r.Complete(ctx, job.ID, "https://cdn.example.com/out.png", "exec-9")
	if err != nil {
		t.Fatalf("Complete error: %v", err)
	}
	if done.Status != domain.JobStatusCompleted || done.CompletedAt == nil || done.EngineExecutionID != "exec-9" {
		t.Fatalf("unexpected completed job: %+v", done)
	}

	if _, err := r.Fail(ctx, job.ID, domain.ErrorCodeUnknown, "late failure"); !errors.Is(err, domain.ErrJobFinalized) {
		t.Fatalf("Fail after completion error = %v, want ErrJobFinalized", err)
	}
	if _, err := r.MarkRunning(ctx, job.ID); !errors.Is(err, domain.ErrJobFinalized) {
		t.Fatalf("MarkRunning after completion error = %v, want ErrJobFinalized", err)
	}

	stored, err := r.Get(ctx, job.ID, "user-a")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if stored.ErrorMessage != "" || stored.OutputImage != "https://cdn.example.com/out.png" {
		t.Fatalf("terminal payload corrupted: %+v", stored)
	}
}

func TestJobRepositoryPGMarkRunningRejectsRunning(t *testing.T) {
	ctx := context.Background()
	r := NewJobRepository(newStubSQL())

	job, err := r.Create(ctx, newJob("user-a"))
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if _, err := r.MarkRunning(ctx, job.ID); err != nil {
		t.Fatalf("MarkRunning error: %v", err)
	}
	if _, err := r.MarkRunning(ctx, job.ID); !errors.Is(err, domain.ErrTransitionRejected) {
		t.Fatalf("second MarkRunning error = %v, want ErrTransitionRejected", err)
	}
}

func TestJobRepositoryPGOwnerScoping(t *testing.T) {
	ctx := context.Background()
	r := NewJobRepository(newStubSQL())

	job, err := r.Create(ctx, newJob("user-a"))
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if _, err := r.Get(ctx, job.ID, "user-b"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("foreign Get error = %v, want ErrNotFound", err)
	}
	if err := r.Delete(ctx, job.ID, "user-b"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("foreign Delete error = %v, want ErrNotFound", err)
	}
	list, err := r.List(ctx, "user-b")
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("foreign List returned %d jobs", len(list))
	}
	if err := r.Delete(ctx, job.ID, "user-a"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if _, err := r.GetByID(ctx, job.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("GetByID after delete error = %v, want ErrNotFound", err)
	}
}

func TestJobRepositoryPGListNewestFirst(t *testing.T) {
	ctx := context.Background()
	r := NewJobRepository(newStubSQL())

	var ids []string
	for i := 0; i < 3; i++ {
		job, err := r.Create(ctx, newJob("user-a"))
		if err != nil {
			t.Fatalf("Create error: %v", err)
		}
		ids = append(ids, job.ID)
	}
	list, err := r.List(ctx, "user-a")
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("List returned %d jobs, want 3", len(list))
	}
	for i, job := range list {
		if want := ids[len(ids)-1-i]; job.ID != want {
			t.Fatalf("List[%d] = %s, want %s", i, job.ID, want)
		}
	}
}

func TestJobRepositoryPGMalformedIDIsNotFound(t *testing.T) {
	ctx := context.Background()
	db := newStubSQL()
	r := NewJobRepository(db)

	if _, err := r.Get(ctx, "not-a-uuid", "user-a"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Get error = %v, want ErrNotFound", err)
	}
	if _, err := r.Complete(ctx, "not-a-uuid", "x", ""); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Complete error = %v, want ErrNotFound", err)
	}
	if len(db.queries) != 0 {
		t.Fatalf("malformed ids should not reach the database, got %d queries", len(db.queries))
	}
}
