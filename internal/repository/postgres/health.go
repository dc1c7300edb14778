package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ignite/outreach-core/internal/domain"
)

// HealthRepo backs the auto-pause monitor: workspace settings, inbox
// health snapshots, campaign health metrics and the pause itself.
type HealthRepo struct{ db *sqlx.DB }

// NewHealthRepo creates a Postgres-backed health repository.
func NewHealthRepo(db *sqlx.DB) *HealthRepo { return &HealthRepo{db: db} }

// WorkspacesWithActiveCampaigns lists workspaces that have at least one
// active campaign.
func (r *HealthRepo) WorkspacesWithActiveCampaigns(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.db.SelectContext(ctx, &ids, `
		SELECT DISTINCT workspace_id FROM campaigns WHERE status = 'active' ORDER BY workspace_id
	`)
	if err != nil {
		return nil, fmt.Errorf("active workspaces: %w", err)
	}
	return ids, nil
}

// Settings returns the stored settings row, or nil when the workspace has none.
func (r *HealthRepo) Settings(ctx context.Context, workspaceID string) (*domain.WorkspaceSettings, error) {
	var s domain.WorkspaceSettings
	err := r.db.GetContext(ctx, &s, `
		SELECT workspace_id, auto_pause_enabled, spam_rate_threshold,
		       reply_drop_threshold, bounce_rate_threshold
		FROM workspace_settings WHERE workspace_id = $1
	`, workspaceID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("workspace settings: %w", err)
	}
	return &s, nil
}

// InsertSnapshots stores inbox health snapshots for a workspace and stamps
// last_health_check on its inboxes.
func (r *HealthRepo) InsertSnapshots(ctx context.Context, workspaceID string, snaps []domain.InboxHealthSnapshot, at time.Time) error {
	return inTx(ctx, r.db, func(tx *sqlx.Tx) error {
		for _, s := range snaps {
			_, err := tx.NamedExecContext(ctx, `
				INSERT INTO inbox_health_metrics
					(email_account_id, workspace_id, spam_rate, reply_rate, bounce_rate,
					 health_status, health_score, emails_sent, measured_at)
				VALUES
					(:email_account_id, :workspace_id, :spam_rate, :reply_rate, :bounce_rate,
					 :health_status, :health_score, :emails_sent, :measured_at)
			`, s)
			if err != nil {
				return fmt.Errorf("insert health snapshot: %w", err)
			}
		}
		if _, err := tx.ExecContext(ctx, `UPDATE email_accounts SET last_health_check = $2 WHERE workspace_id = $1`, workspaceID, at); err != nil {
			return fmt.Errorf("stamp health check: %w", err)
		}
		return nil
	})
}

// CampaignHealth computes the metric set for every active campaign of the
// workspace that is not already auto-paused. Spam and bounce rates are the
// average of the workspace's inbox snapshots since metricsSince; the current
// reply rate covers leads sent since replySince and the previous one the
// campaign's whole history. current_sent is 0 when nothing went out in the
// reply window, which disables the reply-drop check for that campaign.
func (r *HealthRepo) CampaignHealth(ctx context.Context, workspaceID string, metricsSince, replySince time.Time) ([]domain.CampaignHealth, error) {
	var out []domain.CampaignHealth
	err := r.db.SelectContext(ctx, &out, `
		WITH inbox AS (
			SELECT COALESCE(AVG(spam_rate), 0) AS spam, COALESCE(AVG(bounce_rate), 0) AS bounce
			FROM inbox_health_metrics
			WHERE workspace_id = $1 AND measured_at >= $2
		)
		SELECT c.id AS campaign_id,
		       c.name AS campaign_name,
		       inbox.spam AS current_spam_rate,
		       inbox.bounce AS current_bounce_rate,
		       COALESCE(rr.current_reply_rate, 0) AS current_reply_rate,
		       COALESCE(rr.previous_reply_rate, 0) AS previous_reply_rate,
		       COALESCE(rr.current_sent, 0) AS current_sent
		FROM campaigns c
		CROSS JOIN inbox
		LEFT JOIN LATERAL (
			SELECT COUNT(*) FILTER (WHERE cl.sent_at >= $3 AND cl.replied_at IS NOT NULL)::float8
			           / NULLIF(COUNT(*) FILTER (WHERE cl.sent_at >= $3), 0) AS current_reply_rate,
			       COUNT(cl.replied_at)::float8 / NULLIF(COUNT(*), 0) AS previous_reply_rate,
			       COUNT(*) FILTER (WHERE cl.sent_at >= $3) AS current_sent
			FROM campaign_leads cl
			WHERE cl.campaign_id = c.id AND cl.sent_at IS NOT NULL
		) rr ON TRUE
		WHERE c.workspace_id = $1 AND c.status = 'active' AND NOT c.auto_paused
		ORDER BY c.created_at ASC
	`, workspaceID, metricsSince, replySince)
	if err != nil {
		return nil, fmt.Errorf("campaign health: %w", err)
	}
	return out, nil
}

// PauseCampaign auto-pauses an active campaign and records the event in one
// transaction. Reports false if the campaign was no longer active.
func (r *HealthRepo) PauseCampaign(ctx context.Context, ev domain.AutoPauseEvent) (bool, error) {
	paused := false
	err := inTx(ctx, r.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE campaigns
			SET status = 'paused', auto_paused = TRUE, auto_pause_reason = $3, paused_at = $4
			WHERE id = $1 AND workspace_id = $2 AND status = 'active' AND NOT auto_paused
		`, ev.CampaignID, ev.WorkspaceID, ev.PauseReasonDetail, ev.CreatedAt)
		if err != nil {
			return fmt.Errorf("pause campaign: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}

		_, err = tx.NamedExecContext(ctx, `
			INSERT INTO auto_pause_events
				(id, workspace_id, campaign_id, pause_reason, pause_reason_detail, created_at, is_resolved)
			VALUES
				(:id, :workspace_id, :campaign_id, :pause_reason, :pause_reason_detail, :created_at, FALSE)
		`, ev)
		if err != nil {
			return fmt.Errorf("insert auto-pause event: %w", err)
		}
		paused = true
		return nil
	})
	return paused, err
}
