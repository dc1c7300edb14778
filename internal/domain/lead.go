package domain

import "time"

// VerificationStatus is the deliverability verdict for a lead's address.
type VerificationStatus string

const (
	VerificationUnknown VerificationStatus = "unknown"
	VerificationValid   VerificationStatus = "valid"
	VerificationRisky   VerificationStatus = "risky"
	VerificationInvalid VerificationStatus = "invalid"
)

// Lead is a prospect that campaigns can be sent to.
type Lead struct {
	ID                 string             `json:"id" db:"id"`
	WorkspaceID        string             `json:"workspace_id" db:"workspace_id"`
	Email              string             `json:"email" db:"email"`
	FirstName          *string            `json:"first_name,omitempty" db:"first_name"`
	LastName           *string            `json:"last_name,omitempty" db:"last_name"`
	Company            *string            `json:"company,omitempty" db:"company"`
	Title              *string            `json:"title,omitempty" db:"title"`
	VerificationStatus VerificationStatus `json:"verification_status" db:"verification_status"`
	ConfidenceScore    float64            `json:"confidence_score" db:"confidence_score"`
	VerifiedAt         *time.Time         `json:"verified_at,omitempty" db:"verified_at"`
	CreatedAt          time.Time          `json:"created_at" db:"created_at"`
}

// Verification is the outcome of checking one address.
type Verification struct {
	Status     VerificationStatus `json:"status"`
	Confidence float64            `json:"confidence"`
}
