package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// JobPayload is the typed body of a job. Each job type has exactly one
// payload variant.
type JobPayload interface {
	JobType() JobType
	Validate() error
}

// SendEmailPayload delivers one campaign email to one lead from one inbox.
type SendEmailPayload struct {
	CampaignLeadID string `json:"campaign_lead_id"`
	CampaignID     string `json:"campaign_id"`
	LeadID         string `json:"lead_id"`
	InboxID        string `json:"inbox_id"`
	Email          string `json:"email"`
}

func (SendEmailPayload) JobType() JobType { return JobSendEmail }

func (p SendEmailPayload) Validate() error {
	return requireFields(map[string]string{
		"campaign_lead_id": p.CampaignLeadID,
		"campaign_id":      p.CampaignID,
		"lead_id":          p.LeadID,
		"inbox_id":         p.InboxID,
		"email":            p.Email,
	})
}

type VerifyEmailPayload struct {
	LeadID string `json:"lead_id"`
	Email  string `json:"email"`
}

func (VerifyEmailPayload) JobType() JobType { return JobVerifyEmail }

func (p VerifyEmailPayload) Validate() error {
	return requireFields(map[string]string{"lead_id": p.LeadID, "email": p.Email})
}

type WarmupEmailPayload struct {
	EmailAccountID string `json:"email_account_id"`
	TargetEmail    string `json:"target_email"`
}

func (WarmupEmailPayload) JobType() JobType { return JobWarmupEmail }

func (p WarmupEmailPayload) Validate() error {
	return requireFields(map[string]string{"email_account_id": p.EmailAccountID, "target_email": p.TargetEmail})
}

type ProcessCampaignPayload struct {
	CampaignID string `json:"campaign_id"`
}

func (ProcessCampaignPayload) JobType() JobType { return JobProcessCampaign }

func (p ProcessCampaignPayload) Validate() error {
	return requireFields(map[string]string{"campaign_id": p.CampaignID})
}

// UpdateAnalyticsPayload refreshes counters for one campaign, or for every
// campaign in a workspace when only WorkspaceID is set.
type UpdateAnalyticsPayload struct {
	CampaignID  string `json:"campaign_id,omitempty"`
	WorkspaceID string `json:"workspace_id,omitempty"`
}

func (UpdateAnalyticsPayload) JobType() JobType { return JobUpdateAnalytics }

func (p UpdateAnalyticsPayload) Validate() error {
	if p.CampaignID == "" && p.WorkspaceID == "" {
		return fmt.Errorf("%w: campaign_id or workspace_id is required", ErrMalformedPayload)
	}
	return nil
}

func requireFields(fields map[string]string) error {
	var missing []string
	for name, v := range fields {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return fmt.Errorf("%w: missing %s", ErrMalformedPayload, strings.Join(missing, ", "))
}

// EncodePayload validates and serializes a payload.
func EncodePayload(p JobPayload) (json.RawMessage, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", p.JobType(), err)
	}
	return raw, nil
}

// DecodePayload turns a stored payload back into its typed variant. Unknown
// types wrap ErrUnknownJobType; undecodable or incomplete bodies wrap
// ErrMalformedPayload. Neither can succeed on retry.
func DecodePayload(t JobType, raw json.RawMessage) (JobPayload, error) {
	var p JobPayload
	switch t {
	case JobSendEmail:
		p = &SendEmailPayload{}
	case JobVerifyEmail:
		p = &VerifyEmailPayload{}
	case JobWarmupEmail:
		p = &WarmupEmailPayload{}
	case JobProcessCampaign:
		p = &ProcessCampaignPayload{}
	case JobUpdateAnalytics:
		p = &UpdateAnalyticsPayload{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownJobType, t)
	}

	if err := json.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedPayload, t, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return deref(p), nil
}

// deref hands out value variants so type switches match on the plain types.
func deref(p JobPayload) JobPayload {
	switch v := p.(type) {
	case *SendEmailPayload:
		return *v
	case *VerifyEmailPayload:
		return *v
	case *WarmupEmailPayload:
		return *v
	case *ProcessCampaignPayload:
		return *v
	case *UpdateAnalyticsPayload:
		return *v
	}
	return p
}
