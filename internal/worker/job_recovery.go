package worker

import (
	"context"
	"log"
	"time"
)

// StaleRecoverer reclaims jobs whose processing lease expired.
type StaleRecoverer interface {
	RecoverStale(ctx context.Context, staleAfter time.Duration, limit int) (int, error)
}

const (
	// DefaultStaleAge is how long a job may stay in processing before its
	// worker is presumed dead.
	DefaultStaleAge = 15 * time.Minute

	recoveryBatch = 500
)

// JobRecovery returns jobs stuck in processing to the retry path. Each
// recovered job counts as one failed attempt, so a job that keeps crashing
// its worker ends up failed instead of looping forever.
type JobRecovery struct {
	queue    StaleRecoverer
	staleAge time.Duration
}

func NewJobRecovery(queue StaleRecoverer, staleAge time.Duration) *JobRecovery {
	if staleAge <= 0 {
		staleAge = DefaultStaleAge
	}
	return &JobRecovery{queue: queue, staleAge: staleAge}
}

// Run performs one recovery pass and returns how many jobs were recovered.
func (r *JobRecovery) Run(ctx context.Context) (int, error) {
	queryCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	n, err := r.queue.RecoverStale(queryCtx, r.staleAge, recoveryBatch)
	if err != nil {
		log.Printf("[JobRecovery] recovery error: %v", err)
		return n, err
	}
	if n > 0 {
		log.Printf("[JobRecovery] recovered %d stale jobs (stale_age=%s)", n, r.staleAge)
	}
	return n, nil
}
