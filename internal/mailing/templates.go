package mailing

import (
	"fmt"
	"strings"

	"github.com/ignite/outreach-core/internal/domain"
)

// Built-in templates used when a campaign carries none of its own.
const (
	DefaultSubjectTemplate = `Quick question about {{ company | default: "your company" }}`

	DefaultBodyTemplate = `<p>Hi {{ first_name | default: "there" }},</p>
<p>I noticed {{ company | default: "your company" }} and wanted to reach out.</p>
<p>Would you be open to a brief 15-minute call this week?</p>
<p>Best regards</p>
<p style="font-size:12px;color:#888"><a href="{{ unsubscribe_url }}">Unsubscribe</a></p>`

	WarmupSubjectTemplate = `Checking in, {{ first_name | default: "there" }}`

	WarmupBodyTemplate = `<p>Hi {{ first_name | default: "there" }},</p>
<p>Hope your week is going well. Just following up on our last conversation.</p>
<p>Talk soon,<br>{{ sender_name }}</p>`
)

// LeadVars builds the liquid variables for a lead. Both snake_case and
// camelCase names are set so older templates keep rendering.
func LeadVars(lead *domain.Lead) map[string]interface{} {
	first := deref(lead.FirstName)
	last := deref(lead.LastName)
	company := deref(lead.Company)
	title := deref(lead.Title)

	return map[string]interface{}{
		"email":      lead.Email,
		"first_name": first,
		"firstName":  first,
		"last_name":  last,
		"lastName":   last,
		"full_name":  strings.TrimSpace(first + " " + last),
		"company":    company,
		"title":      title,
	}
}

// Composer renders campaign and warmup messages.
type Composer struct {
	renderer *Renderer
	appURL   string
}

func NewComposer(r *Renderer, appURL string) *Composer {
	return &Composer{renderer: r, appURL: strings.TrimRight(appURL, "/")}
}

// ComposeCampaignEmail renders the campaign's templates for lead, sending from
// inbox. A List-Unsubscribe header is always attached.
func (c *Composer) ComposeCampaignEmail(camp *domain.Campaign, lead *domain.Lead, inbox *domain.Inbox) (*Message, error) {
	unsub := UnsubscribeURL(c.appURL, lead.ID, lead.Email, lead.WorkspaceID)

	vars := LeadVars(lead)
	vars["unsubscribe_url"] = unsub
	vars["sender_email"] = inbox.Email
	vars["sender_name"] = senderName(inbox.Email)
	vars["campaign_name"] = camp.Name

	subjectTpl, subjectKey := DefaultSubjectTemplate, "builtin:subject"
	if camp.SubjectTemplate != nil && *camp.SubjectTemplate != "" {
		subjectTpl, subjectKey = *camp.SubjectTemplate, ""
	}
	bodyTpl, bodyKey := DefaultBodyTemplate, "builtin:body"
	if camp.BodyTemplate != nil && *camp.BodyTemplate != "" {
		bodyTpl, bodyKey = *camp.BodyTemplate, ""
	}

	subject, err := c.renderer.Render(subjectKey, subjectTpl, vars)
	if err != nil {
		return nil, fmt.Errorf("campaign %s subject: %w", camp.ID, err)
	}
	body, err := c.renderer.Render(bodyKey, bodyTpl, vars)
	if err != nil {
		return nil, fmt.Errorf("campaign %s body: %w", camp.ID, err)
	}

	return &Message{
		FromEmail: inbox.Email,
		FromName:  senderName(inbox.Email),
		To:        lead.Email,
		ToName:    strings.TrimSpace(deref(lead.FirstName) + " " + deref(lead.LastName)),
		Subject:   strings.TrimSpace(subject),
		HTML:      body,
		Text:      HTMLToText(body),
		Headers: map[string]string{
			"List-Unsubscribe":      "<" + unsub + ">",
			"List-Unsubscribe-Post": "List-Unsubscribe=One-Click",
		},
		Tags: map[string]string{
			"campaign_id": camp.ID,
			"lead_id":     lead.ID,
		},
	}, nil
}

// ComposeWarmupEmail renders the built-in warmup message from inbox to target.
func (c *Composer) ComposeWarmupEmail(inbox *domain.Inbox, target string) (*Message, error) {
	vars := map[string]interface{}{
		"first_name":  senderName(target),
		"sender_name": senderName(inbox.Email),
	}
	subject, err := c.renderer.Render("builtin:warmup_subject", WarmupSubjectTemplate, vars)
	if err != nil {
		return nil, fmt.Errorf("warmup subject: %w", err)
	}
	body, err := c.renderer.Render("builtin:warmup_body", WarmupBodyTemplate, vars)
	if err != nil {
		return nil, fmt.Errorf("warmup body: %w", err)
	}
	return &Message{
		FromEmail: inbox.Email,
		FromName:  senderName(inbox.Email),
		To:        target,
		Subject:   subject,
		HTML:      body,
		Text:      HTMLToText(body),
		Tags:      map[string]string{"warmup": "true", "inbox_id": inbox.ID},
	}, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
