package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// JobType is the tag of the job payload union.
type JobType string

const (
	JobSendEmail       JobType = "SendEmail"
	JobVerifyEmail     JobType = "VerifyEmail"
	JobWarmupEmail     JobType = "WarmupEmail"
	JobProcessCampaign JobType = "ProcessCampaign"
	JobUpdateAnalytics JobType = "UpdateAnalytics"
)

// Valid reports whether t is one of the known job types.
func (t JobType) Valid() bool {
	switch t {
	case JobSendEmail, JobVerifyEmail, JobWarmupEmail, JobProcessCampaign, JobUpdateAnalytics:
		return true
	}
	return false
}

// JobStatus enumerates the lifecycle states of a job.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobScheduled  JobStatus = "scheduled"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// IsTerminal returns true for completed and failed jobs. Terminal jobs never
// transition again.
func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed
}

const (
	// DefaultMaxRetries is applied when a job is enqueued without an explicit limit.
	DefaultMaxRetries = 3

	// BaseRetryBackoff is the delay before the first retry; each further
	// retry doubles it.
	BaseRetryBackoff = 5 * time.Minute

	maxBackoffShift = 16
)

// Job is a durable unit of deferred work. Rows are never deleted.
type Job struct {
	ID          string          `json:"id" db:"id"`
	WorkspaceID *string         `json:"workspace_id,omitempty" db:"workspace_id"`
	Type        JobType         `json:"job_type" db:"job_type"`
	Payload     json.RawMessage `json:"payload" db:"-"`
	Status      JobStatus       `json:"status" db:"status"`
	RetryCount  int             `json:"retry_count" db:"retry_count"`
	MaxRetries  int             `json:"max_retries" db:"max_retries"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty" db:"started_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty" db:"completed_at"`
	Error       *string         `json:"error,omitempty" db:"error"`
	NextRetryAt *time.Time      `json:"next_retry_at,omitempty" db:"next_retry_at"`
}

// NewJob builds a pending job for the given payload.
func NewJob(id string, p JobPayload, workspaceID *string, now time.Time) (*Job, error) {
	raw, err := EncodePayload(p)
	if err != nil {
		return nil, err
	}
	return &Job{
		ID:          id,
		WorkspaceID: workspaceID,
		Type:        p.JobType(),
		Payload:     raw,
		Status:      JobPending,
		MaxRetries:  DefaultMaxRetries,
		CreatedAt:   now,
	}, nil
}

// RetryBackoff returns 5min × 2^retryCount.
func RetryBackoff(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	if retryCount > maxBackoffShift {
		retryCount = maxBackoffShift
	}
	return BaseRetryBackoff << uint(retryCount)
}

// Claimable reports whether the job may be picked up at now: pending jobs
// always, scheduled jobs once their retry time has passed.
func (j *Job) Claimable(now time.Time) bool {
	switch j.Status {
	case JobPending:
		return true
	case JobScheduled:
		return j.NextRetryAt != nil && !j.NextRetryAt.After(now)
	}
	return false
}

// Claim moves a claimable job to processing and counts the attempt.
func (j *Job) Claim(now time.Time) error {
	if !j.Claimable(now) {
		return fmt.Errorf("claim job %s in status %s: %w", j.ID, j.Status, ErrInvalidTransition)
	}
	j.Status = JobProcessing
	j.StartedAt = &now
	j.RetryCount++
	j.NextRetryAt = nil
	return nil
}

// Complete marks a processing job completed. A second call on a completed
// job is a no-op and reports changed=false.
func (j *Job) Complete(now time.Time) (changed bool, err error) {
	switch j.Status {
	case JobCompleted:
		return false, nil
	case JobProcessing:
		j.Status = JobCompleted
		j.CompletedAt = &now
		j.NextRetryAt = nil
		return true, nil
	}
	return false, fmt.Errorf("complete job %s in status %s: %w", j.ID, j.Status, ErrInvalidTransition)
}

// Fail records msg and either schedules a retry at now + RetryBackoff(retry_count)
// or, when retries are used up or the failure is permanent, marks the job failed.
func (j *Job) Fail(msg string, now time.Time, permanent bool) error {
	if j.Status != JobProcessing {
		return fmt.Errorf("fail job %s in status %s: %w", j.ID, j.Status, ErrInvalidTransition)
	}
	j.Error = &msg
	if !permanent && j.RetryCount < j.MaxRetries {
		next := now.Add(RetryBackoff(j.RetryCount))
		j.Status = JobScheduled
		j.NextRetryAt = &next
		return nil
	}
	j.Status = JobFailed
	j.NextRetryAt = nil
	return nil
}
