package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ignite/outreach-core/internal/domain"
)

const jobColumns = `id, workspace_id, job_type, payload::text AS payload, status, retry_count,
	max_retries, created_at, started_at, completed_at, error, next_retry_at`

// jobRow scans a jobs row; payload comes back as text and is re-wrapped as
// raw JSON.
type jobRow struct {
	domain.Job
	Payload string `db:"payload"`
}

func (r jobRow) toDomain() domain.Job {
	j := r.Job
	j.Payload = json.RawMessage(r.Payload)
	return j
}

// JobRepo implements jobqueue.Repository against PostgreSQL.
type JobRepo struct{ db *sqlx.DB }

// NewJobRepo creates a Postgres-backed job repository.
func NewJobRepo(db *sqlx.DB) *JobRepo { return &JobRepo{db: db} }

func (r *JobRepo) Insert(ctx context.Context, j *domain.Job) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO jobs (id, workspace_id, job_type, payload, status, retry_count, max_retries, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, j.ID, j.WorkspaceID, j.Type, string(j.Payload), j.Status, j.RetryCount, j.MaxRetries, j.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// ClaimBatch locks the oldest claimable rows with FOR UPDATE SKIP LOCKED and
// flips them to processing in the same statement, so concurrent workers
// never see the same job.
func (r *JobRepo) ClaimBatch(ctx context.Context, limit int, now time.Time) ([]domain.Job, error) {
	var rows []jobRow
	err := r.db.SelectContext(ctx, &rows, `
		WITH claimed AS (
			SELECT id FROM jobs
			WHERE status = 'pending'
			   OR (status = 'scheduled' AND next_retry_at <= $2)
			ORDER BY created_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE jobs
		SET status = 'processing',
		    started_at = $2,
		    retry_count = jobs.retry_count + 1,
		    next_retry_at = NULL
		FROM claimed
		WHERE jobs.id = claimed.id
		RETURNING jobs.id, jobs.workspace_id, jobs.job_type, jobs.payload::text AS payload,
		          jobs.status, jobs.retry_count, jobs.max_retries, jobs.created_at,
		          jobs.started_at, jobs.completed_at, jobs.error, jobs.next_retry_at
	`, limit, now)
	if err != nil {
		return nil, fmt.Errorf("claim jobs: %w", err)
	}

	jobs := make([]domain.Job, 0, len(rows))
	for _, row := range rows {
		jobs = append(jobs, row.toDomain())
	}
	// RETURNING order is unspecified.
	sort.SliceStable(jobs, func(a, b int) bool { return jobs[a].CreatedAt.Before(jobs[b].CreatedAt) })
	return jobs, nil
}

// Update applies fn to the job while holding its row lock.
func (r *JobRepo) Update(ctx context.Context, id string, fn func(*domain.Job) (bool, error)) (*domain.Job, error) {
	var out domain.Job
	err := inTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var row jobRow
		err := tx.GetContext(ctx, &row, `SELECT `+jobColumns+` FROM jobs WHERE id = $1 FOR UPDATE`, id)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("job %s: %w", id, domain.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("lock job: %w", err)
		}

		j := row.toDomain()
		changed, err := fn(&j)
		if err != nil {
			return err
		}
		out = j
		if !changed {
			return nil
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE jobs
			SET status = $2, retry_count = $3, started_at = $4, completed_at = $5,
			    error = $6, next_retry_at = $7
			WHERE id = $1
		`, j.ID, j.Status, j.RetryCount, j.StartedAt, j.CompletedAt, j.Error, j.NextRetryAt)
		if err != nil {
			return fmt.Errorf("update job: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *JobRepo) Get(ctx context.Context, id string) (*domain.Job, error) {
	var row jobRow
	err := r.db.GetContext(ctx, &row, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	j := row.toDomain()
	return &j, nil
}

func (r *JobRepo) StaleProcessing(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	var ids []string
	err := r.db.SelectContext(ctx, &ids, `
		SELECT id FROM jobs
		WHERE status = 'processing' AND started_at < $1
		ORDER BY started_at ASC
		LIMIT $2
	`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("stale jobs: %w", err)
	}
	return ids, nil
}

func (r *JobRepo) CountByStatus(ctx context.Context) (map[domain.JobStatus]int, error) {
	var rows []struct {
		Status domain.JobStatus `db:"status"`
		N      int              `db:"n"`
	}
	if err := r.db.SelectContext(ctx, &rows, `SELECT status, COUNT(*) AS n FROM jobs GROUP BY status`); err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}
	out := make(map[domain.JobStatus]int, len(rows))
	for _, row := range rows {
		out[row.Status] = row.N
	}
	return out, nil
}
