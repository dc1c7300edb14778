package campaign

import (
	"context"
	"time"

	"github.com/ignite/outreach-core/internal/domain"
)

// Repository defines the data access contract for campaigns.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Get returns a single campaign. Returns ErrNotFound if it doesn't exist
	// in the workspace.
	Get(ctx context.Context, workspaceID, id string) (*domain.Campaign, error)

	// List returns campaigns matching the given filter, ordered by created_at DESC.
	List(ctx context.Context, workspaceID string, filter ListFilter) ([]domain.Campaign, int, error)

	// Create inserts a new campaign.
	Create(ctx context.Context, c *domain.Campaign) error

	// SetStatus moves the campaign from one status to another in a single
	// guarded write. Returns ErrInvalidTransition if the stored status is
	// not from, ErrNotFound if the campaign doesn't exist.
	SetStatus(ctx context.Context, workspaceID, id string, from, to domain.CampaignStatus, at time.Time) error

	// Resume reactivates a paused campaign, clears the auto-pause flags and
	// resolves its open auto-pause events, all in one transaction. Returns
	// the number of events resolved.
	Resume(ctx context.Context, workspaceID, id string, at time.Time) (int, error)

	// AddLeads attaches leads to the campaign as pending (leads already
	// attached are ignored) and recomputes total_leads. Returns how many
	// were newly attached.
	AddLeads(ctx context.Context, workspaceID, campaignID string, leadIDs []string) (int, error)
}

// ListFilter controls pagination and filtering for campaign lists.
type ListFilter struct {
	Status string
	Limit  int
	Offset int
}
