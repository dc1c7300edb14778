package suppression

import (
	"context"

	"github.com/ignite/outreach-core/internal/domain"
)

// Repository defines the data access contract for the suppression list.
// Emails passed in are already normalized.
type Repository interface {
	// IsSuppressed returns true if the email is on the workspace's list.
	IsSuppressed(ctx context.Context, workspaceID, email string) (bool, error)

	// Suppress adds an entry and, in the same transaction, freezes every
	// pending or scheduled campaign lead for that address in the workspace
	// at unsubscribed. Re-suppressing keeps the original entry. Returns the
	// number of campaign leads frozen.
	Suppress(ctx context.Context, s *domain.Suppression) (int, error)

	// Remove deletes an entry. Returns ErrNotFound if it doesn't exist.
	Remove(ctx context.Context, workspaceID, email string) error

	// Count returns the number of suppressed addresses in a workspace.
	Count(ctx context.Context, workspaceID string) (int, error)
}
