package repo

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"adstudio/internal/domain"
)

func TestJobRepositoryMemoryConcurrentFinalizersSettleOnce(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryJobRepository()

	job, err := r.Create(ctx, newJob("user-a"))
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}

	const racers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
		lost    int
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				_, err = r.Complete(ctx, job.ID, "https://cdn.example.com/out.png", "")
			} else {
				_, err = r.Fail(ctx, job.ID, domain.ErrorCodeUnknown, "boom")
			}
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				applied++
			case errors.Is(err, domain.ErrJobFinalized):
				lost++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if applied != 1 || lost != racers-1 {
		t.Fatalf("applied=%d lost=%d, want 1 and %d", applied, lost, racers-1)
	}
	final, err := r.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID error: %v", err)
	}
	if !final.Status.Terminal() || final.CompletedAt == nil {
		t.Fatalf("job not finalized: %+v", final)
	}
	if (final.OutputImage == "") == (final.ErrorMessage == "") {
		t.Fatalf("exactly one of output/error must be set: %+v", final)
	}
}

func TestJobRepositoryMemoryCompletedAtNotOverwritten(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryJobRepository()
	clock := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}

	job, err := r.Create(ctx, newJob("user-a"))
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	first, err := r.Complete(ctx, job.ID, "https://cdn.example.com/a.png", "")
	if err != nil {
		t.Fatalf("Complete error: %v", err)
	}
	if _, err := r.Complete(ctx, job.ID, "https://cdn.example.com/b.png", ""); !errors.Is(err, domain.ErrJobFinalized) {
		t.Fatalf("second Complete error = %v, want ErrJobFinalized", err)
	}
	after, err := r.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID error: %v", err)
	}
	if !after.CompletedAt.Equal(*first.CompletedAt) || after.OutputImage != "https://cdn.example.com/a.png" {
		t.Fatalf("finalized job mutated: %+v", after)
	}
}

func TestJobRepositoryMemoryOwnershipAndOrder(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryJobRepository()
	fixed := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return fixed }

	a1, _ := r.Create(ctx, newJob("user-a"))
	a2, _ := r.Create(ctx, newJob("user-a"))
	if _, err := r.Create(ctx, newJob("user-b")); err != nil {
		t.Fatalf("Create error: %v", err)
	}

	list, err := r.List(ctx, "user-a")
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(list) != 2 || list[0].ID != a2.ID || list[1].ID != a1.ID {
		t.Fatalf("List order mismatch: %+v", list)
	}
	if _, err := r.Get(ctx, a1.ID, "user-b"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("foreign Get error = %v, want ErrNotFound", err)
	}
	if err := r.Delete(ctx, a1.ID, "user-b"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("foreign Delete error = %v, want ErrNotFound", err)
	}
	if err := r.Delete(ctx, a1.ID, "user-a"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
}
