package jobqueue_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ignite/outreach-core/internal/domain"
	"github.com/ignite/outreach-core/internal/repository/memory"
	"github.com/ignite/outreach-core/internal/service/jobqueue"
)

// fakeClock is a settable clock shared by the queue under test.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func newQueue(t *testing.T) (*jobqueue.Queue, *memory.JobRepo, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)}
	repo := memory.NewJobRepo()
	return jobqueue.NewQueue(repo, jobqueue.WithClock(clock.Now)), repo, clock
}

func verifyPayload(n int) domain.VerifyEmailPayload {
	return domain.VerifyEmailPayload{LeadID: fmt.Sprintf("lead-%d", n), Email: fmt.Sprintf("p%d@example.com", n)}
}

func TestEnqueueCreatesPendingJob(t *testing.T) {
	q, _, _ := newQueue(t)
	ctx := context.Background()

	ws := "ws-1"
	id, err := q.Enqueue(ctx, verifyPayload(1), &ws)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	j, err := q.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if j.Status != domain.JobPending || j.Type != domain.JobVerifyEmail || j.RetryCount != 0 {
		t.Errorf("unexpected job: %+v", j)
	}
	if j.WorkspaceID == nil || *j.WorkspaceID != ws {
		t.Errorf("workspace = %v", j.WorkspaceID)
	}
}

func TestEnqueueRejectsInvalidPayload(t *testing.T) {
	q, repo, _ := newQueue(t)
	_, err := q.Enqueue(context.Background(), domain.SendEmailPayload{CampaignID: "c"}, nil)
	if !errors.Is(err, domain.ErrMalformedPayload) {
		t.Errorf("err = %v, want ErrMalformedPayload", err)
	}
	if n := len(repo.All()); n != 0 {
		t.Errorf("%d jobs stored for invalid payload", n)
	}
}

func TestClaimIsFIFOAndRespectsLimit(t *testing.T) {
	q, _, clock := newQueue(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		clock.Set(clock.Now().Add(time.Second))
		id, err := q.Enqueue(ctx, verifyPayload(i), nil)
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
	}

	got, err := q.Claim(ctx, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("claimed %d, want 3", len(got))
	}
	for i, j := range got {
		if j.ID != ids[i] {
			t.Errorf("claim[%d] = %s, want %s (oldest first)", i, j.ID, ids[i])
		}
		if j.Status != domain.JobProcessing || j.RetryCount != 1 {
			t.Errorf("claim[%d]: status=%s retry=%d", i, j.Status, j.RetryCount)
		}
	}

	rest, _ := q.Claim(ctx, 10)
	if len(rest) != 2 {
		t.Errorf("second claim = %d jobs, want 2", len(rest))
	}
	none, _ := q.Claim(ctx, 10)
	if len(none) != 0 {
		t.Errorf("processing jobs were claimed again: %d", len(none))
	}
}

func TestConcurrentClaimsAreDisjoint(t *testing.T) {
	q, _, _ := newQueue(t)
	ctx := context.Background()

	const total = 60
	for i := 0; i < total; i++ {
		if _, err := q.Enqueue(ctx, verifyPayload(i), nil); err != nil {
			t.Fatal(err)
		}
	}

	var (
		mu   sync.Mutex
		seen = make(map[string]int)
		wg   sync.WaitGroup
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				jobs, err := q.Claim(ctx, 4)
				if err != nil {
					t.Error(err)
					return
				}
				if len(jobs) == 0 {
					return
				}
				mu.Lock()
				for _, j := range jobs {
					seen[j.ID]++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != total {
		t.Errorf("claimed %d distinct jobs, want %d", len(seen), total)
	}
	for id, n := range seen {
		if n != 1 {
			t.Errorf("job %s claimed %d times", id, n)
		}
	}
}

// Claim counts the attempt before Fail reads retry_count, so a job that
// keeps failing is retried after 10 then 20 minutes and fails on its third
// attempt. The 5 minute step applies only to a job failed without a claim.
func TestFailRetriesWithBackoffThenFails(t *testing.T) {
	q, _, clock := newQueue(t)
	observed := map[int]time.Duration{1: 10 * time.Minute, 2: 20 * time.Minute}
	ctx := context.Background()

	id, err := q.Enqueue(ctx, verifyPayload(1), nil)
	if err != nil {
		t.Fatal(err)
	}

	cause := errors.New("smtp: connection refused")
	for attempt := 1; attempt <= domain.DefaultMaxRetries; attempt++ {
		jobs, err := q.Claim(ctx, 1)
		if err != nil || len(jobs) != 1 {
			t.Fatalf("attempt %d: claim = %d jobs, err %v", attempt, len(jobs), err)
		}

		j, err := q.Fail(ctx, id, cause)
		if err != nil {
			t.Fatalf("attempt %d: Fail: %v", attempt, err)
		}
		if j.Error == nil || *j.Error != cause.Error() {
			t.Errorf("attempt %d: error = %v", attempt, j.Error)
		}
		if attempt == domain.DefaultMaxRetries {
			if j.Status != domain.JobFailed || j.NextRetryAt != nil {
				t.Errorf("final attempt: status=%s next=%v, want failed", j.Status, j.NextRetryAt)
			}
			break
		}

		want := clock.Now().Add(observed[attempt])
		if observed[attempt] != domain.RetryBackoff(attempt) {
			t.Fatalf("attempt %d: backoff table drifted from RetryBackoff", attempt)
		}
		if j.Status != domain.JobScheduled || j.NextRetryAt == nil || !j.NextRetryAt.Equal(want) {
			t.Fatalf("attempt %d: status=%s next=%v, want scheduled at %v", attempt, j.Status, j.NextRetryAt, want)
		}

		// Not due yet.
		if early, _ := q.Claim(ctx, 1); len(early) != 0 {
			t.Fatalf("attempt %d: claimed before next_retry_at", attempt)
		}
		clock.Set(*j.NextRetryAt)
	}

	clock.Set(clock.Now().Add(24 * time.Hour))
	if late, _ := q.Claim(ctx, 1); len(late) != 0 {
		t.Error("failed job was claimed")
	}
}

func TestFailPermanentCauses(t *testing.T) {
	causes := []error{
		jobqueue.Permanent(errors.New("template missing")),
		fmt.Errorf("decode: %w", domain.ErrMalformedPayload),
		fmt.Errorf("dispatch: %w", domain.ErrUnknownJobType),
		fmt.Errorf("campaign c1: %w", domain.ErrNotFound),
	}
	for _, cause := range causes {
		q, _, _ := newQueue(t)
		ctx := context.Background()
		id, _ := q.Enqueue(ctx, verifyPayload(1), nil)
		if _, err := q.Claim(ctx, 1); err != nil {
			t.Fatal(err)
		}
		j, err := q.Fail(ctx, id, cause)
		if err != nil {
			t.Fatalf("%v: %v", cause, err)
		}
		if j.Status != domain.JobFailed {
			t.Errorf("%v: status = %s, want failed", cause, j.Status)
		}
	}
}

func TestPermanentNil(t *testing.T) {
	if jobqueue.Permanent(nil) != nil {
		t.Error("Permanent(nil) should be nil")
	}
	if jobqueue.IsPermanent(errors.New("timeout")) {
		t.Error("plain error reported permanent")
	}
}

func TestCompleteIsIdempotent(t *testing.T) {
	q, _, clock := newQueue(t)
	ctx := context.Background()
	id, _ := q.Enqueue(ctx, verifyPayload(1), nil)
	q.Claim(ctx, 1)

	if err := q.Complete(ctx, id); err != nil {
		t.Fatal(err)
	}
	first, _ := q.Get(ctx, id)

	clock.Set(clock.Now().Add(time.Hour))
	if err := q.Complete(ctx, id); err != nil {
		t.Fatalf("second Complete: %v", err)
	}
	second, _ := q.Get(ctx, id)
	if second.Status != domain.JobCompleted || !second.CompletedAt.Equal(*first.CompletedAt) {
		t.Errorf("second complete changed the row: %+v", second)
	}

	if _, err := q.Fail(ctx, id, errors.New("late failure")); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("Fail on completed job err = %v, want ErrInvalidTransition", err)
	}
}

func TestCompleteUnknownJob(t *testing.T) {
	q, _, _ := newQueue(t)
	if err := q.Complete(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestRecoverStale(t *testing.T) {
	q, _, clock := newQueue(t)
	ctx := context.Background()

	stale, _ := q.Enqueue(ctx, verifyPayload(1), nil)
	q.Claim(ctx, 1)

	clock.Set(clock.Now().Add(20 * time.Minute))
	fresh, _ := q.Enqueue(ctx, verifyPayload(2), nil)
	q.Claim(ctx, 1)

	n, err := q.RecoverStale(ctx, 15*time.Minute, 100)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("recovered %d, want 1", n)
	}

	j, _ := q.Get(ctx, stale)
	if j.Status != domain.JobScheduled || j.Error == nil {
		t.Errorf("stale job: status=%s error=%v, want scheduled", j.Status, j.Error)
	}
	j, _ = q.Get(ctx, fresh)
	if j.Status != domain.JobProcessing {
		t.Errorf("fresh job status = %s, want processing", j.Status)
	}
}

func TestStats(t *testing.T) {
	q, _, _ := newQueue(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		q.Enqueue(ctx, verifyPayload(i), nil)
	}
	q.Claim(ctx, 1)

	stats, err := q.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats[domain.JobPending] != 2 || stats[domain.JobProcessing] != 1 {
		t.Errorf("stats = %v", stats)
	}
}
