package domain

import (
	"time"
)

// CampaignStatus enumerates the lifecycle states of a campaign.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignActive    CampaignStatus = "active"
	CampaignPaused    CampaignStatus = "paused"
	CampaignCompleted CampaignStatus = "completed"
)

// Campaign is a send wave from one workspace to a set of leads.
// AutoPaused implies Status == CampaignPaused.
type Campaign struct {
	ID              string         `json:"id" db:"id"`
	WorkspaceID     string         `json:"workspace_id" db:"workspace_id"`
	Name            string         `json:"name" db:"name"`
	Status          CampaignStatus `json:"status" db:"status"`
	SubjectTemplate *string        `json:"subject_template,omitempty" db:"subject_template"`
	BodyTemplate    *string        `json:"body_template,omitempty" db:"body_template"`

	AutoPaused      bool    `json:"auto_paused" db:"auto_paused"`
	AutoPauseReason *string `json:"auto_pause_reason,omitempty" db:"auto_pause_reason"`

	TotalLeads     int `json:"total_leads" db:"total_leads"`
	Sent           int `json:"sent" db:"sent"`
	Opened         int `json:"opened" db:"opened"`
	Clicked        int `json:"clicked" db:"clicked"`
	Replied        int `json:"replied" db:"replied"`
	MeetingsBooked int `json:"meetings_booked" db:"meetings_booked"`

	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	StartedAt *time.Time `json:"started_at,omitempty" db:"started_at"`
	PausedAt  *time.Time `json:"paused_at,omitempty" db:"paused_at"`
}

// IsTerminal returns true if the campaign is in a final state.
func (c *Campaign) IsTerminal() bool {
	return c.Status == CampaignCompleted
}

// validCampaignTransitions lists the allowed lifecycle moves.
var validCampaignTransitions = map[CampaignStatus][]CampaignStatus{
	CampaignDraft:  {CampaignActive},
	CampaignActive: {CampaignPaused, CampaignCompleted},
	CampaignPaused: {CampaignActive, CampaignCompleted},
}

// CanTransition reports whether a campaign may move from one status to another.
func CanTransition(from, to CampaignStatus) bool {
	for _, s := range validCampaignTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// CampaignLeadStatus tracks one lead's progress through one campaign.
type CampaignLeadStatus string

const (
	LeadPending      CampaignLeadStatus = "pending"
	LeadScheduled    CampaignLeadStatus = "scheduled"
	LeadSent         CampaignLeadStatus = "sent"
	LeadUnsubscribed CampaignLeadStatus = "unsubscribed"
)

var leadStatusRank = map[CampaignLeadStatus]int{
	LeadPending:   0,
	LeadScheduled: 1,
	LeadSent:      2,
}

// CanAdvanceTo reports whether a campaign lead may move to next. Progress is
// monotonic pending → scheduled → sent; any non-final lead may be frozen at
// unsubscribed, and unsubscribed never moves again.
func (s CampaignLeadStatus) CanAdvanceTo(next CampaignLeadStatus) bool {
	if s == LeadUnsubscribed {
		return false
	}
	if next == LeadUnsubscribed {
		return s != LeadSent
	}
	cur, ok1 := leadStatusRank[s]
	nxt, ok2 := leadStatusRank[next]
	return ok1 && ok2 && nxt > cur
}

// CampaignLead is the join between a campaign and a lead.
type CampaignLead struct {
	ID             string             `json:"id" db:"id"`
	CampaignID     string             `json:"campaign_id" db:"campaign_id"`
	LeadID         string             `json:"lead_id" db:"lead_id"`
	Status         CampaignLeadStatus `json:"status" db:"status"`
	SentAt         *time.Time         `json:"sent_at,omitempty" db:"sent_at"`
	OpenedAt       *time.Time         `json:"opened_at,omitempty" db:"opened_at"`
	ClickedAt      *time.Time         `json:"clicked_at,omitempty" db:"clicked_at"`
	RepliedAt      *time.Time         `json:"replied_at,omitempty" db:"replied_at"`
	BouncedAt      *time.Time         `json:"bounced_at,omitempty" db:"bounced_at"`
	BounceType     *string            `json:"bounce_type,omitempty" db:"bounce_type"`
	UnsubscribedAt *time.Time         `json:"unsubscribed_at,omitempty" db:"unsubscribed_at"`
	CreatedAt      time.Time          `json:"created_at" db:"created_at"`
}

// PendingLead is the scheduler's view of a campaign lead waiting for an inbox.
type PendingLead struct {
	CampaignLeadID string `db:"campaign_lead_id"`
	LeadID         string `db:"lead_id"`
	Email          string `db:"email"`
}

// CampaignCounters are the aggregate counters recomputed by analytics jobs.
type CampaignCounters struct {
	TotalLeads int `db:"total_leads"`
	Sent       int `db:"sent"`
	Opened     int `db:"opened"`
	Clicked    int `db:"clicked"`
	Replied    int `db:"replied"`
}
