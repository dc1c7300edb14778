package suppression

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/outreach-core/internal/domain"
	"github.com/ignite/outreach-core/internal/pkg/logger"
)

// Service implements suppression business logic. It is safe for concurrent use.
type Service struct {
	repo Repository
}

// NewService creates a suppression service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// IsSuppressed checks whether an email address should be blocked from sending.
func (s *Service) IsSuppressed(ctx context.Context, workspaceID, email string) (bool, error) {
	email = domain.NormalizeEmail(email)
	if email == "" {
		return false, ErrEmailRequired
	}
	return s.repo.IsSuppressed(ctx, workspaceID, email)
}

// Suppress adds an address to the workspace's list and stops any campaign
// lead for it that has not been sent yet. Idempotent. Returns the number of
// campaign leads frozen.
func (s *Service) Suppress(ctx context.Context, workspaceID, email string, reason domain.SuppressionReason) (int, error) {
	email = domain.NormalizeEmail(email)
	if email == "" {
		return 0, ErrEmailRequired
	}
	if reason == "" {
		reason = domain.ReasonManual
	}

	frozen, err := s.repo.Suppress(ctx, &domain.Suppression{
		ID:          uuid.New().String(),
		WorkspaceID: workspaceID,
		Email:       email,
		Reason:      reason,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return 0, err
	}
	if frozen > 0 {
		logger.Info("suppressed address with pending sends", "workspace_id", workspaceID, "email", email, "reason", string(reason), "leads_frozen", frozen)
	}
	return frozen, nil
}

// Remove deletes a suppression entry.
func (s *Service) Remove(ctx context.Context, workspaceID, email string) error {
	email = domain.NormalizeEmail(email)
	if email == "" {
		return ErrEmailRequired
	}
	return s.repo.Remove(ctx, workspaceID, email)
}

// Count returns the number of suppressed addresses in a workspace.
func (s *Service) Count(ctx context.Context, workspaceID string) (int, error) {
	return s.repo.Count(ctx, workspaceID)
}
