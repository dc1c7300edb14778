package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignite/outreach-core/internal/domain"
	"github.com/ignite/outreach-core/internal/service/suppression"
)

// SuppressionRepo implements suppression.Repository against PostgreSQL.
type SuppressionRepo struct{ db *sqlx.DB }

// NewSuppressionRepo creates a Postgres-backed suppression repository.
func NewSuppressionRepo(db *sqlx.DB) *SuppressionRepo { return &SuppressionRepo{db: db} }

func (r *SuppressionRepo) IsSuppressed(ctx context.Context, workspaceID, email string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM suppression_list WHERE workspace_id = $1 AND email = $2)`,
		workspaceID, email,
	)
	if err != nil {
		return false, fmt.Errorf("check suppression: %w", err)
	}
	return exists, nil
}

// Suppress inserts the entry, keeping an existing one, and freezes the
// address's unsent campaign leads in the workspace.
func (r *SuppressionRepo) Suppress(ctx context.Context, s *domain.Suppression) (int, error) {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	var frozen int64
	err := inTx(ctx, r.db, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO suppression_list (id, workspace_id, email, reason, created_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (workspace_id, email) DO NOTHING
		`, s.ID, s.WorkspaceID, s.Email, s.Reason, s.CreatedAt)
		if err != nil {
			return fmt.Errorf("suppress: %w", err)
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE campaign_leads cl
			SET status = 'unsubscribed', unsubscribed_at = $3
			FROM leads l, campaigns c
			WHERE cl.lead_id = l.id AND cl.campaign_id = c.id
			  AND c.workspace_id = $1
			  AND LOWER(TRIM(l.email)) = $2
			  AND cl.status IN ('pending', 'scheduled')
		`, s.WorkspaceID, s.Email, s.CreatedAt)
		if err != nil {
			return fmt.Errorf("freeze campaign leads: %w", err)
		}
		frozen, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int(frozen), nil
}

func (r *SuppressionRepo) Remove(ctx context.Context, workspaceID, email string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM suppression_list WHERE workspace_id = $1 AND email = $2`,
		workspaceID, email,
	)
	if err != nil {
		return fmt.Errorf("remove suppression: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return suppression.ErrNotFound
	}
	return nil
}

func (r *SuppressionRepo) Count(ctx context.Context, workspaceID string) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM suppression_list WHERE workspace_id = $1`, workspaceID); err != nil {
		return 0, fmt.Errorf("count suppressions: %w", err)
	}
	return n, nil
}
