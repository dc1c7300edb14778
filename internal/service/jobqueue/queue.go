package jobqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/outreach-core/internal/domain"
	"github.com/ignite/outreach-core/internal/pkg/logger"
)

// staleLeaseError is recorded on jobs reclaimed from a crashed worker.
const staleLeaseError = "stale processing lease"

// Queue is the job queue service. All public methods are safe for
// concurrent use if the underlying repository is.
type Queue struct {
	repo       Repository
	maxRetries int
	now        func() time.Time
}

// Option configures a Queue.
type Option func(*Queue)

// WithMaxRetries overrides the retry limit stamped on new jobs.
func WithMaxRetries(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.maxRetries = n
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// NewQueue creates a queue backed by the given repository.
func NewQueue(repo Repository, opts ...Option) *Queue {
	q := &Queue{repo: repo, maxRetries: domain.DefaultMaxRetries, now: time.Now}
	for _, o := range opts {
		o(q)
	}
	return q
}

// Enqueue inserts a pending job for payload and returns its id.
func (q *Queue) Enqueue(ctx context.Context, p domain.JobPayload, workspaceID *string) (string, error) {
	j, err := domain.NewJob(uuid.New().String(), p, workspaceID, q.now().UTC())
	if err != nil {
		return "", err
	}
	j.MaxRetries = q.maxRetries
	if err := q.repo.Insert(ctx, j); err != nil {
		return "", fmt.Errorf("enqueue %s: %w", j.Type, err)
	}
	return j.ID, nil
}

// Claim takes up to limit runnable jobs for this worker.
func (q *Queue) Claim(ctx context.Context, limit int) ([]domain.Job, error) {
	if limit <= 0 {
		return nil, nil
	}
	jobs, err := q.repo.ClaimBatch(ctx, limit, q.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("claim jobs: %w", err)
	}
	return jobs, nil
}

// Complete marks a job completed. Completing an already completed job is a
// no-op.
func (q *Queue) Complete(ctx context.Context, id string) error {
	now := q.now().UTC()
	_, err := q.repo.Update(ctx, id, func(j *domain.Job) (bool, error) {
		return j.Complete(now)
	})
	if err != nil {
		return fmt.Errorf("complete job %s: %w", id, err)
	}
	return nil
}

// Fail records cause on the job. Retryable causes schedule the job again
// with exponential backoff until max_retries is reached; permanent causes
// (see IsPermanent) fail it immediately. Returns the updated job.
func (q *Queue) Fail(ctx context.Context, id string, cause error) (*domain.Job, error) {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	permanent := IsPermanent(cause)
	now := q.now().UTC()

	j, err := q.repo.Update(ctx, id, func(j *domain.Job) (bool, error) {
		if err := j.Fail(msg, now, permanent); err != nil {
			return false, err
		}
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("fail job %s: %w", id, err)
	}
	return j, nil
}

// RecoverStale fails jobs whose processing lease is older than staleAfter,
// as a retryable error, so a crashed worker's jobs get picked up again.
// Returns how many jobs were recovered.
func (q *Queue) RecoverStale(ctx context.Context, staleAfter time.Duration, limit int) (int, error) {
	cutoff := q.now().UTC().Add(-staleAfter)
	ids, err := q.repo.StaleProcessing(ctx, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("list stale jobs: %w", err)
	}

	recovered := 0
	for _, id := range ids {
		j, err := q.repo.Update(ctx, id, func(j *domain.Job) (bool, error) {
			// The worker may have finished between the scan and the lock.
			if j.Status != domain.JobProcessing || j.StartedAt == nil || !j.StartedAt.Before(cutoff) {
				return false, nil
			}
			return true, j.Fail(staleLeaseError, q.now().UTC(), false)
		})
		if err != nil {
			logger.Warn("stale job recovery failed", "job_id", id, "error", err)
			continue
		}
		if j.Status == domain.JobScheduled || j.Status == domain.JobFailed {
			recovered++
		}
	}
	return recovered, nil
}

// Get returns a single job.
func (q *Queue) Get(ctx context.Context, id string) (*domain.Job, error) {
	return q.repo.Get(ctx, id)
}

// Stats returns job counts by status.
func (q *Queue) Stats(ctx context.Context) (map[domain.JobStatus]int, error) {
	return q.repo.CountByStatus(ctx)
}
