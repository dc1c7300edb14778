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

// LeadRepo reads leads and stores verification verdicts.
type LeadRepo struct{ db *sqlx.DB }

// NewLeadRepo creates a Postgres-backed lead repository.
func NewLeadRepo(db *sqlx.DB) *LeadRepo { return &LeadRepo{db: db} }

func (r *LeadRepo) Get(ctx context.Context, id string) (*domain.Lead, error) {
	var l domain.Lead
	err := r.db.GetContext(ctx, &l, `
		SELECT id, workspace_id, email, first_name, last_name, company, title,
		       verification_status, confidence_score, verified_at, created_at
		FROM leads WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("lead %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get lead: %w", err)
	}
	return &l, nil
}

// UpdateVerification stores the verifier's verdict on the lead.
func (r *LeadRepo) UpdateVerification(ctx context.Context, id string, v domain.Verification, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE leads SET verification_status = $2, confidence_score = $3, verified_at = $4
		WHERE id = $1
	`, id, v.Status, v.Confidence, at)
	if err != nil {
		return fmt.Errorf("update verification: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("lead %s: %w", id, domain.ErrNotFound)
	}
	return nil
}
