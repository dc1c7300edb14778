package jobqueue

import (
	"context"
	"time"

	"github.com/ignite/outreach-core/internal/domain"
)

// Repository defines the data access contract for jobs.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Insert stores a new pending job.
	Insert(ctx context.Context, j *domain.Job) error

	// ClaimBatch atomically moves up to limit claimable jobs (pending, or
	// scheduled with next_retry_at <= now) to processing, oldest first, and
	// returns them. Concurrent callers must receive disjoint sets.
	ClaimBatch(ctx context.Context, limit int, now time.Time) ([]domain.Job, error)

	// Update loads the job under a row lock and applies fn. The row is
	// written back only when fn reports a change. Returns domain.ErrNotFound
	// if the job doesn't exist.
	Update(ctx context.Context, id string, fn func(*domain.Job) (bool, error)) (*domain.Job, error)

	// Get returns a single job. Returns domain.ErrNotFound if it doesn't exist.
	Get(ctx context.Context, id string) (*domain.Job, error)

	// StaleProcessing returns ids of jobs still processing that started
	// before cutoff.
	StaleProcessing(ctx context.Context, cutoff time.Time, limit int) ([]string, error)

	// CountByStatus returns the number of jobs in each status.
	CountByStatus(ctx context.Context) (map[domain.JobStatus]int, error)
}
