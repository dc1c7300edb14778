// Package memory provides in-process repository implementations. They
// honor the same locking contracts as the postgres ones and back unit tests
// and single-process dry runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ignite/outreach-core/internal/domain"
)

// JobRepo is an in-memory jobqueue.Repository. A single mutex stands in
// for row locks, so ClaimBatch hands out disjoint sets exactly like
// FOR UPDATE SKIP LOCKED.
type JobRepo struct {
	mu   sync.Mutex
	jobs map[string]*domain.Job
}

// NewJobRepo returns an empty repository.
func NewJobRepo() *JobRepo {
	return &JobRepo{jobs: make(map[string]*domain.Job)}
}

func (r *JobRepo) Insert(_ context.Context, j *domain.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if j.ID == "" {
		return fmt.Errorf("job id required")
	}
	if _, dup := r.jobs[j.ID]; dup {
		return fmt.Errorf("job %s already exists", j.ID)
	}
	r.jobs[j.ID] = cloneJob(j)
	return nil
}

func (r *JobRepo) ClaimBatch(_ context.Context, limit int, now time.Time) ([]domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ready []*domain.Job
	for _, j := range r.jobs {
		if j.Claimable(now) {
			ready = append(ready, j)
		}
	}
	sort.Slice(ready, func(a, b int) bool {
		if ready[a].CreatedAt.Equal(ready[b].CreatedAt) {
			return ready[a].ID < ready[b].ID
		}
		return ready[a].CreatedAt.Before(ready[b].CreatedAt)
	})
	if len(ready) > limit {
		ready = ready[:limit]
	}

	out := make([]domain.Job, 0, len(ready))
	for _, j := range ready {
		if err := j.Claim(now); err != nil {
			return nil, err
		}
		out = append(out, *cloneJob(j))
	}
	return out, nil
}

func (r *JobRepo) Update(_ context.Context, id string, fn func(*domain.Job) (bool, error)) (*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", id, domain.ErrNotFound)
	}
	work := cloneJob(cur)
	changed, err := fn(work)
	if err != nil {
		return nil, err
	}
	if changed {
		r.jobs[id] = work
	}
	return cloneJob(r.jobs[id]), nil
}

func (r *JobRepo) Get(_ context.Context, id string) (*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", id, domain.ErrNotFound)
	}
	return cloneJob(j), nil
}

func (r *JobRepo) StaleProcessing(_ context.Context, cutoff time.Time, limit int) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for id, j := range r.jobs {
		if j.Status == domain.JobProcessing && j.StartedAt != nil && j.StartedAt.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (r *JobRepo) CountByStatus(_ context.Context) (map[domain.JobStatus]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[domain.JobStatus]int)
	for _, j := range r.jobs {
		out[j.Status]++
	}
	return out, nil
}

// All returns a snapshot of every job, oldest first.
func (r *JobRepo) All() []domain.Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Job, 0, len(r.jobs))
	for _, j := range r.jobs {
		out = append(out, *cloneJob(j))
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	return out
}

func cloneJob(j *domain.Job) *domain.Job {
	cp := *j
	cp.Payload = append([]byte(nil), j.Payload...)
	if j.StartedAt != nil {
		t := *j.StartedAt
		cp.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		cp.CompletedAt = &t
	}
	if j.NextRetryAt != nil {
		t := *j.NextRetryAt
		cp.NextRetryAt = &t
	}
	if j.Error != nil {
		e := *j.Error
		cp.Error = &e
	}
	return &cp
}
