package domain

import (
	"fmt"
	"time"
)

// WorkspaceSettings holds the per-workspace circuit breaker configuration.
type WorkspaceSettings struct {
	WorkspaceID         string  `json:"workspace_id" db:"workspace_id"`
	AutoPauseEnabled    bool    `json:"auto_pause_enabled" db:"auto_pause_enabled"`
	SpamRateThreshold   float64 `json:"spam_rate_threshold" db:"spam_rate_threshold"`
	ReplyDropThreshold  float64 `json:"reply_drop_threshold" db:"reply_drop_threshold"`
	BounceRateThreshold float64 `json:"bounce_rate_threshold" db:"bounce_rate_threshold"`
}

// DefaultWorkspaceSettings is used for workspaces without a settings row.
func DefaultWorkspaceSettings(workspaceID string) WorkspaceSettings {
	return WorkspaceSettings{
		WorkspaceID:         workspaceID,
		AutoPauseEnabled:    true,
		SpamRateThreshold:   0.03,
		ReplyDropThreshold:  0.40,
		BounceRateThreshold: 0.08,
	}
}

// EffectiveSettings returns stored, or the defaults when stored is nil.
func EffectiveSettings(workspaceID string, stored *WorkspaceSettings) WorkspaceSettings {
	if stored == nil {
		return DefaultWorkspaceSettings(workspaceID)
	}
	return *stored
}

// PauseReason is why the circuit breaker tripped.
type PauseReason string

const (
	PauseSpamRate   PauseReason = "spam_rate"
	PauseReplyDrop  PauseReason = "reply_drop"
	PauseBounceRate PauseReason = "bounce_rate"
)

// CampaignHealth is the metric set evaluated for one active campaign.
// CurrentSent counts the leads sent inside the reply window; with none the
// current reply rate is undefined rather than zero.
type CampaignHealth struct {
	CampaignID        string  `db:"campaign_id"`
	CampaignName      string  `db:"campaign_name"`
	CurrentSpamRate   float64 `db:"current_spam_rate"`
	CurrentReplyRate  float64 `db:"current_reply_rate"`
	CurrentBounceRate float64 `db:"current_bounce_rate"`
	PreviousReplyRate float64 `db:"previous_reply_rate"`
	CurrentSent       int     `db:"current_sent"`
}

// PauseVerdict is the result of a threshold check.
type PauseVerdict struct {
	ShouldPause bool
	Reason      PauseReason
	Detail      string
}

// CheckThresholds evaluates spam rate, then reply-rate drop, then bounce rate
// and returns the first violation only. The reply-rate check needs both a
// baseline and sends in the current window.
func CheckThresholds(m CampaignHealth, s WorkspaceSettings) PauseVerdict {
	if m.CurrentSpamRate > s.SpamRateThreshold {
		return PauseVerdict{
			ShouldPause: true,
			Reason:      PauseSpamRate,
			Detail: fmt.Sprintf("Spam rate spiked to %.1f%% (threshold: %.1f%%)",
				m.CurrentSpamRate*100, s.SpamRateThreshold*100),
		}
	}

	if m.CurrentSent > 0 && m.PreviousReplyRate > 0 {
		drop := (m.PreviousReplyRate - m.CurrentReplyRate) / m.PreviousReplyRate
		if drop > s.ReplyDropThreshold {
			return PauseVerdict{
				ShouldPause: true,
				Reason:      PauseReplyDrop,
				Detail: fmt.Sprintf("Reply rate dropped %.0f%% in 48 hours (from %.1f%% to %.1f%%)",
					drop*100, m.PreviousReplyRate*100, m.CurrentReplyRate*100),
			}
		}
	}

	if m.CurrentBounceRate > s.BounceRateThreshold {
		return PauseVerdict{
			ShouldPause: true,
			Reason:      PauseBounceRate,
			Detail: fmt.Sprintf("Bounce rate reached %.1f%% (threshold: %.1f%%)",
				m.CurrentBounceRate*100, s.BounceRateThreshold*100),
		}
	}

	return PauseVerdict{}
}

// ResolutionResumed marks an event closed by a manual resume.
const ResolutionResumed = "resumed"

// AutoPauseEvent is the audit record of a circuit breaker trip.
type AutoPauseEvent struct {
	ID                string      `json:"id" db:"id"`
	WorkspaceID       string      `json:"workspace_id" db:"workspace_id"`
	CampaignID        string      `json:"campaign_id" db:"campaign_id"`
	PauseReason       PauseReason `json:"pause_reason" db:"pause_reason"`
	PauseReasonDetail string      `json:"pause_reason_detail" db:"pause_reason_detail"`
	CreatedAt         time.Time   `json:"created_at" db:"created_at"`
	IsResolved        bool        `json:"is_resolved" db:"is_resolved"`
	ResolvedAt        *time.Time  `json:"resolved_at,omitempty" db:"resolved_at"`
	ResolutionAction  *string     `json:"resolution_action,omitempty" db:"resolution_action"`
}
