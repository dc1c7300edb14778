package domain

import (
	"strings"
	"time"
)

// SuppressionReason enumerates why an email was suppressed.
type SuppressionReason string

const (
	ReasonHardBounce  SuppressionReason = "hard_bounce"
	ReasonComplaint   SuppressionReason = "spam_complaint"
	ReasonUnsubscribe SuppressionReason = "unsubscribe"
	ReasonManual      SuppressionReason = "manual"
	ReasonInvalid     SuppressionReason = "invalid_address"
)

// Suppression is one entry in a workspace's do-not-contact list.
type Suppression struct {
	ID          string            `json:"id" db:"id"`
	WorkspaceID string            `json:"workspace_id" db:"workspace_id"`
	Email       string            `json:"email" db:"email"`
	Reason      SuppressionReason `json:"reason" db:"reason"`
	CreatedAt   time.Time         `json:"created_at" db:"created_at"`
}

// NormalizeEmail is the canonical form used for suppression lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
