package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ignite/outreach-core/internal/domain"
)

const inboxColumns = `id, workspace_id, email, provider, warmup_status, daily_limit, sent_today,
	health_score, spam_rate, reply_rate, bounce_rate, provider_daily_limit, created_at`

// InboxRepo reads and updates sending inboxes (the email_accounts table).
type InboxRepo struct{ db *sqlx.DB }

// NewInboxRepo creates a Postgres-backed inbox repository.
func NewInboxRepo(db *sqlx.DB) *InboxRepo { return &InboxRepo{db: db} }

func (r *InboxRepo) Get(ctx context.Context, id string) (*domain.Inbox, error) {
	var in domain.Inbox
	err := r.db.GetContext(ctx, &in, `SELECT `+inboxColumns+` FROM email_accounts WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("inbox %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get inbox: %w", err)
	}
	return &in, nil
}

// Eligible returns the workspace's inboxes that can take campaign sends now,
// healthiest and least used first.
func (r *InboxRepo) Eligible(ctx context.Context, workspaceID string, minHealth float64) ([]domain.Inbox, error) {
	var out []domain.Inbox
	err := r.db.SelectContext(ctx, &out, `
		SELECT `+inboxColumns+`
		FROM email_accounts
		WHERE workspace_id = $1
		  AND warmup_status IN ('warming', 'active')
		  AND sent_today < daily_limit
		  AND health_score >= $2
		ORDER BY health_score DESC, sent_today ASC
	`, workspaceID, minHealth)
	if err != nil {
		return nil, fmt.Errorf("eligible inboxes: %w", err)
	}
	return out, nil
}

// ListByStatus returns every inbox in one of the given warmup statuses.
func (r *InboxRepo) ListByStatus(ctx context.Context, statuses ...domain.WarmupStatus) ([]domain.Inbox, error) {
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}
	var out []domain.Inbox
	err := r.db.SelectContext(ctx, &out, `
		SELECT `+inboxColumns+` FROM email_accounts
		WHERE warmup_status = ANY($1)
		ORDER BY created_at ASC
	`, pq.Array(names))
	if err != nil {
		return nil, fmt.Errorf("list inboxes: %w", err)
	}
	return out, nil
}

// ListByWorkspace returns every inbox of a workspace.
func (r *InboxRepo) ListByWorkspace(ctx context.Context, workspaceID string) ([]domain.Inbox, error) {
	var out []domain.Inbox
	err := r.db.SelectContext(ctx, &out, `SELECT `+inboxColumns+` FROM email_accounts WHERE workspace_id = $1 ORDER BY created_at ASC`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("workspace inboxes: %w", err)
	}
	return out, nil
}

func (r *InboxRepo) SetDailyLimit(ctx context.Context, id string, limit int) error {
	_, err := r.db.ExecContext(ctx, `UPDATE email_accounts SET daily_limit = $2 WHERE id = $1`, id, limit)
	if err != nil {
		return fmt.Errorf("set daily limit: %w", err)
	}
	return nil
}

// Graduate moves a warming inbox to active at the given limit.
func (r *InboxRepo) Graduate(ctx context.Context, id string, limit int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE email_accounts SET warmup_status = 'active', daily_limit = $2
		WHERE id = $1 AND warmup_status = 'warming'
	`, id, limit)
	if err != nil {
		return fmt.Errorf("graduate inbox: %w", err)
	}
	return nil
}

func (r *InboxRepo) SetWarmupStatus(ctx context.Context, id string, status domain.WarmupStatus) error {
	_, err := r.db.ExecContext(ctx, `UPDATE email_accounts SET warmup_status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("set warmup status: %w", err)
	}
	return nil
}

// RecoverHealth nudges every sending inbox below full health up by step,
// capped at the maximum. Returns the number of inboxes touched.
func (r *InboxRepo) RecoverHealth(ctx context.Context, step float64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE email_accounts
		SET health_score = LEAST($2, health_score + $1)
		WHERE warmup_status IN ('warming', 'active') AND health_score < $2
	`, step, float64(domain.MaxHealthScore))
	if err != nil {
		return 0, fmt.Errorf("recover health: %w", err)
	}
	return res.RowsAffected()
}

// ResetDailyCounters zeroes sent_today on every inbox not yet reset for day.
// Running it twice for the same day touches nothing the second time.
func (r *InboxRepo) ResetDailyCounters(ctx context.Context, day time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE email_accounts
		SET sent_today = 0, counters_reset_on = $1::date
		WHERE counters_reset_on IS DISTINCT FROM $1::date
	`, day.Format("2006-01-02"))
	if err != nil {
		return 0, fmt.Errorf("reset daily counters: %w", err)
	}
	return res.RowsAffected()
}

func (r *InboxRepo) IncrementSentToday(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE email_accounts SET sent_today = sent_today + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("increment sent_today: %w", err)
	}
	return nil
}

// SetProviderLimit stores the detected mailbox provider and its daily cap.
func (r *InboxRepo) SetProviderLimit(ctx context.Context, id, provider string, limit int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE email_accounts SET detected_provider = $2, provider_daily_limit = $3 WHERE id = $1
	`, id, provider, limit)
	if err != nil {
		return fmt.Errorf("set provider limit: %w", err)
	}
	return nil
}

// Credentials loads the stored SMTP credential material for an inbox.
func (r *InboxRepo) Credentials(ctx context.Context, id string) (*domain.InboxCredentials, error) {
	var c domain.InboxCredentials
	err := r.db.GetContext(ctx, &c, `
		SELECT id, email, smtp_host, smtp_port, smtp_username, smtp_password,
		       smtp_password_encrypted, encryption_key_id
		FROM email_accounts WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("inbox %s credentials: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("inbox credentials: %w", err)
	}
	return &c, nil
}
