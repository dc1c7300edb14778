package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ignite/outreach-core/internal/domain"
	"github.com/ignite/outreach-core/internal/service/campaign"
)

const campaignColumns = `id, workspace_id, name, status, subject_template, body_template,
	auto_paused, auto_pause_reason, total_leads, sent, opened, clicked, replied,
	meetings_booked, created_at, started_at, paused_at`

// CampaignRepo implements campaign.Repository and the campaign side of the
// background worker against PostgreSQL.
type CampaignRepo struct{ db *sqlx.DB }

// NewCampaignRepo creates a Postgres-backed campaign repository.
func NewCampaignRepo(db *sqlx.DB) *CampaignRepo { return &CampaignRepo{db: db} }

func (r *CampaignRepo) Get(ctx context.Context, workspaceID, id string) (*domain.Campaign, error) {
	var c domain.Campaign
	err := r.db.GetContext(ctx, &c, `SELECT `+campaignColumns+` FROM campaigns WHERE id = $1 AND workspace_id = $2`, id, workspaceID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, campaign.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return &c, nil
}

// GetByID loads a campaign without a workspace scope, for job handlers
// whose payload already carries a trusted id.
func (r *CampaignRepo) GetByID(ctx context.Context, id string) (*domain.Campaign, error) {
	var c domain.Campaign
	err := r.db.GetContext(ctx, &c, `SELECT `+campaignColumns+` FROM campaigns WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, campaign.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return &c, nil
}

func (r *CampaignRepo) List(ctx context.Context, workspaceID string, f campaign.ListFilter) ([]domain.Campaign, int, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	where := `WHERE workspace_id = $1`
	args := []interface{}{workspaceID}
	if f.Status != "" {
		where += ` AND status = $2`
		args = append(args, f.Status)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM campaigns `+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count campaigns: %w", err)
	}

	q := fmt.Sprintf(`SELECT %s FROM campaigns %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		campaignColumns, where, len(args)+1, len(args)+2)
	var out []domain.Campaign
	if err := r.db.SelectContext(ctx, &out, q, append(args, limit, f.Offset)...); err != nil {
		return nil, 0, fmt.Errorf("list campaigns: %w", err)
	}
	return out, total, nil
}

func (r *CampaignRepo) Create(ctx context.Context, c *domain.Campaign) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO campaigns (id, workspace_id, name, status, subject_template, body_template, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, c.ID, c.WorkspaceID, c.Name, c.Status, c.SubjectTemplate, c.BodyTemplate, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("create campaign: %w", err)
	}
	return nil
}

// SetStatus moves a campaign between statuses with a compare-and-set on the
// current status. Activation stamps started_at once; pausing stamps paused_at.
func (r *CampaignRepo) SetStatus(ctx context.Context, workspaceID, id string, from, to domain.CampaignStatus, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns
		SET status = $4,
		    started_at = CASE WHEN $4 = 'active' THEN COALESCE(started_at, $5) ELSE started_at END,
		    paused_at = CASE WHEN $4 = 'paused' THEN $5 ELSE paused_at END
		WHERE id = $1 AND workspace_id = $2 AND status = $3
	`, id, workspaceID, from, to, at)
	if err != nil {
		return fmt.Errorf("set campaign status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return r.missingOrMoved(ctx, workspaceID, id)
	}
	return nil
}

// Resume reactivates a paused campaign and resolves its open auto-pause
// events in one transaction.
func (r *CampaignRepo) Resume(ctx context.Context, workspaceID, id string, at time.Time) (int, error) {
	var resolved int64
	err := inTx(ctx, r.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE campaigns
			SET status = 'active', auto_paused = FALSE, auto_pause_reason = NULL, paused_at = NULL
			WHERE id = $1 AND workspace_id = $2 AND status = 'paused'
		`, id, workspaceID)
		if err != nil {
			return fmt.Errorf("resume campaign: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return campaign.ErrInvalidTransition
		}

		res, err = tx.ExecContext(ctx, `
			UPDATE auto_pause_events
			SET is_resolved = TRUE, resolved_at = $2, resolution_action = $3
			WHERE campaign_id = $1 AND NOT is_resolved
		`, id, at, domain.ResolutionResumed)
		if err != nil {
			return fmt.Errorf("resolve auto-pause events: %w", err)
		}
		resolved, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int(resolved), nil
}

// AddLeads attaches leads from the same workspace as pending and refreshes
// total_leads.
func (r *CampaignRepo) AddLeads(ctx context.Context, workspaceID, campaignID string, leadIDs []string) (int, error) {
	var added int64
	err := inTx(ctx, r.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO campaign_leads (id, campaign_id, lead_id, status, created_at)
			SELECT gen_random_uuid(), $1, l.id, 'pending', NOW()
			FROM leads l
			WHERE l.id = ANY($3) AND l.workspace_id = $2
			ON CONFLICT (campaign_id, lead_id) DO NOTHING
		`, campaignID, workspaceID, pq.Array(leadIDs))
		if err != nil {
			return fmt.Errorf("insert campaign leads: %w", err)
		}
		added, _ = res.RowsAffected()

		_, err = tx.ExecContext(ctx, `
			UPDATE campaigns
			SET total_leads = (SELECT COUNT(*) FROM campaign_leads WHERE campaign_id = $1)
			WHERE id = $1
		`, campaignID)
		if err != nil {
			return fmt.Errorf("update total_leads: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int(added), nil
}

// ActiveCampaignIDs lists every active campaign, oldest first.
func (r *CampaignRepo) ActiveCampaignIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, `SELECT id FROM campaigns WHERE status = 'active' ORDER BY created_at ASC`); err != nil {
		return nil, fmt.Errorf("active campaigns: %w", err)
	}
	return ids, nil
}

// CampaignIDsByWorkspace lists every campaign in a workspace.
func (r *CampaignRepo) CampaignIDsByWorkspace(ctx context.Context, workspaceID string) ([]string, error) {
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, `SELECT id FROM campaigns WHERE workspace_id = $1 ORDER BY created_at ASC`, workspaceID); err != nil {
		return nil, fmt.Errorf("workspace campaigns: %w", err)
	}
	return ids, nil
}

// PendingLeads returns up to limit of the oldest pending leads of a campaign
// whose address is not suppressed in the workspace.
func (r *CampaignRepo) PendingLeads(ctx context.Context, campaignID, workspaceID string, limit int) ([]domain.PendingLead, error) {
	var out []domain.PendingLead
	err := r.db.SelectContext(ctx, &out, `
		SELECT cl.id AS campaign_lead_id, l.id AS lead_id, l.email
		FROM campaign_leads cl
		JOIN leads l ON l.id = cl.lead_id
		WHERE cl.campaign_id = $1
		  AND cl.status = 'pending'
		  AND NOT EXISTS (
		      SELECT 1 FROM suppression_list s
		      WHERE s.workspace_id = $2 AND s.email = LOWER(TRIM(l.email))
		  )
		ORDER BY cl.created_at ASC
		LIMIT $3
	`, campaignID, workspaceID, limit)
	if err != nil {
		return nil, fmt.Errorf("pending leads: %w", err)
	}
	return out, nil
}

// MarkScheduled advances a campaign lead from pending to scheduled. Reports
// false if another scheduler got there first.
func (r *CampaignRepo) MarkScheduled(ctx context.Context, campaignLeadID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE campaign_leads SET status = 'scheduled' WHERE id = $1 AND status = 'pending'`, campaignLeadID)
	if err != nil {
		return false, fmt.Errorf("mark scheduled: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// RevertScheduled puts a scheduled lead back to pending after its send job
// could not be enqueued.
func (r *CampaignRepo) RevertScheduled(ctx context.Context, campaignLeadID string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE campaign_leads SET status = 'pending' WHERE id = $1 AND status = 'scheduled'`, campaignLeadID)
	if err != nil {
		return fmt.Errorf("revert scheduled: %w", err)
	}
	return nil
}

// GetCampaignLead loads one campaign lead.
func (r *CampaignRepo) GetCampaignLead(ctx context.Context, id string) (*domain.CampaignLead, error) {
	var cl domain.CampaignLead
	err := r.db.GetContext(ctx, &cl, `
		SELECT id, campaign_id, lead_id, status, sent_at, opened_at, clicked_at, replied_at,
		       bounced_at, bounce_type, unsubscribed_at, created_at
		FROM campaign_leads WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("campaign lead %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign lead: %w", err)
	}
	return &cl, nil
}

// RecordSend marks the campaign lead sent and bumps the campaign and inbox
// counters in one transaction. Reports false without touching counters if
// the lead was already sent or unsubscribed.
func (r *CampaignRepo) RecordSend(ctx context.Context, campaignLeadID, campaignID, inboxID string, at time.Time) (bool, error) {
	recorded := false
	err := inTx(ctx, r.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE campaign_leads SET status = 'sent', sent_at = $2
			WHERE id = $1 AND status IN ('pending', 'scheduled')
		`, campaignLeadID, at)
		if err != nil {
			return fmt.Errorf("mark sent: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `UPDATE campaigns SET sent = sent + 1 WHERE id = $1`, campaignID); err != nil {
			return fmt.Errorf("bump campaign sent: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE email_accounts SET sent_today = sent_today + 1 WHERE id = $1`, inboxID); err != nil {
			return fmt.Errorf("bump inbox sent_today: %w", err)
		}
		recorded = true
		return nil
	})
	return recorded, err
}

// FreezeLead stops an unsent campaign lead at unsubscribed.
func (r *CampaignRepo) FreezeLead(ctx context.Context, campaignLeadID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE campaign_leads SET status = 'unsubscribed', unsubscribed_at = $2
		WHERE id = $1 AND status IN ('pending', 'scheduled')
	`, campaignLeadID, at)
	if err != nil {
		return fmt.Errorf("freeze campaign lead: %w", err)
	}
	return nil
}

// RecomputeCounters rebuilds the campaign's aggregate counters from its
// campaign leads and returns them.
func (r *CampaignRepo) RecomputeCounters(ctx context.Context, campaignID string) (*domain.CampaignCounters, error) {
	var c domain.CampaignCounters
	err := r.db.GetContext(ctx, &c, `
		UPDATE campaigns c
		SET total_leads = x.total_leads, sent = x.sent, opened = x.opened,
		    clicked = x.clicked, replied = x.replied
		FROM (
			SELECT COUNT(*) AS total_leads,
			       COUNT(sent_at) AS sent,
			       COUNT(opened_at) AS opened,
			       COUNT(clicked_at) AS clicked,
			       COUNT(replied_at) AS replied
			FROM campaign_leads WHERE campaign_id = $1
		) x
		WHERE c.id = $1
		RETURNING c.total_leads, c.sent, c.opened, c.clicked, c.replied
	`, campaignID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, campaign.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("recompute counters: %w", err)
	}
	return &c, nil
}

func (r *CampaignRepo) missingOrMoved(ctx context.Context, workspaceID, id string) error {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM campaigns WHERE id = $1 AND workspace_id = $2)`, id, workspaceID); err != nil {
		return fmt.Errorf("check campaign: %w", err)
	}
	if !exists {
		return campaign.ErrNotFound
	}
	return campaign.ErrInvalidTransition
}
