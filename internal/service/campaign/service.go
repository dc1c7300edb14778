package campaign

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/outreach-core/internal/domain"
)

// Service implements campaign business logic. All public methods are safe
// for concurrent use if the underlying repository is concurrency-safe.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a campaign service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Get returns a single campaign.
func (s *Service) Get(ctx context.Context, workspaceID, id string) (*domain.Campaign, error) {
	return s.repo.Get(ctx, workspaceID, id)
}

// List returns campaigns matching the filter.
func (s *Service) List(ctx context.Context, workspaceID string, f ListFilter) ([]domain.Campaign, int, error) {
	return s.repo.List(ctx, workspaceID, f)
}

// Create validates and persists a new campaign in draft status.
func (s *Service) Create(ctx context.Context, workspaceID string, input CreateInput) (*domain.Campaign, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, ErrNameRequired
	}

	c := &domain.Campaign{
		ID:          uuid.New().String(),
		WorkspaceID: workspaceID,
		Name:        name,
		Status:      domain.CampaignDraft,
		CreatedAt:   s.now().UTC(),
	}
	if input.SubjectTemplate != "" {
		c.SubjectTemplate = &input.SubjectTemplate
	}
	if input.BodyTemplate != "" {
		c.BodyTemplate = &input.BodyTemplate
	}

	if err := s.repo.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("create campaign: %w", err)
	}
	return c, nil
}

// Activate starts a draft campaign. The scheduler picks it up on its next pass.
func (s *Service) Activate(ctx context.Context, workspaceID, id string) error {
	return s.transition(ctx, workspaceID, id, domain.CampaignActive)
}

// Pause stops scheduling for an active campaign. Jobs already enqueued still run.
func (s *Service) Pause(ctx context.Context, workspaceID, id string) error {
	return s.transition(ctx, workspaceID, id, domain.CampaignPaused)
}

// Complete closes a campaign for good.
func (s *Service) Complete(ctx context.Context, workspaceID, id string) error {
	return s.transition(ctx, workspaceID, id, domain.CampaignCompleted)
}

// Resume reactivates a paused campaign, manual or auto-paused. Open
// auto-pause events for it are resolved with action "resumed".
func (s *Service) Resume(ctx context.Context, workspaceID, id string) error {
	c, err := s.repo.Get(ctx, workspaceID, id)
	if err != nil {
		return err
	}
	if c.Status != domain.CampaignPaused {
		return fmt.Errorf("resume campaign in status %s: %w", c.Status, ErrInvalidTransition)
	}

	resolved, err := s.repo.Resume(ctx, workspaceID, id, s.now().UTC())
	if err != nil {
		return fmt.Errorf("resume campaign: %w", err)
	}
	if c.AutoPaused {
		log.Printf("[campaign.Service] Campaign %s resumed after auto-pause (%d events resolved)", id, resolved)
	}
	return nil
}

// AddLeads attaches leads to a campaign as pending. Duplicate ids in the
// input and leads already in the campaign are ignored. Returns the number
// newly attached.
func (s *Service) AddLeads(ctx context.Context, workspaceID, campaignID string, leadIDs []string) (int, error) {
	ids := dedupe(leadIDs)
	if len(ids) == 0 {
		return 0, ErrNoLeads
	}

	c, err := s.repo.Get(ctx, workspaceID, campaignID)
	if err != nil {
		return 0, err
	}
	if c.IsTerminal() {
		return 0, fmt.Errorf("add leads to %s campaign: %w", c.Status, ErrInvalidTransition)
	}

	n, err := s.repo.AddLeads(ctx, workspaceID, campaignID, ids)
	if err != nil {
		return 0, fmt.Errorf("add leads: %w", err)
	}
	return n, nil
}

func (s *Service) transition(ctx context.Context, workspaceID, id string, to domain.CampaignStatus) error {
	c, err := s.repo.Get(ctx, workspaceID, id)
	if err != nil {
		return err
	}
	if !domain.CanTransition(c.Status, to) {
		return fmt.Errorf("%s -> %s: %w", c.Status, to, ErrInvalidTransition)
	}
	if err := s.repo.SetStatus(ctx, workspaceID, id, c.Status, to, s.now().UTC()); err != nil {
		return fmt.Errorf("transition to %s: %w", to, err)
	}
	return nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// CreateInput holds the fields for creating a new campaign.
type CreateInput struct {
	Name            string `json:"name"`
	SubjectTemplate string `json:"subject_template"`
	BodyTemplate    string `json:"body_template"`
}
