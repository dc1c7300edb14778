// Package mailing renders and delivers outbound email: liquid templates,
// per-inbox SMTP through gomail, SES for ses-provider inboxes, credential
// decryption and unsubscribe links.
package mailing

import (
	"context"
	"fmt"
	"strings"

	"github.com/ignite/outreach-core/internal/domain"
)

// Message is one outbound email.
type Message struct {
	FromEmail string
	FromName  string
	To        string
	ToName    string
	Subject   string
	HTML      string
	Text      string
	Headers   map[string]string
	Tags      map[string]string
}

// Sender delivers a message. creds are the sending inbox's resolved SMTP
// credentials; transports that authenticate otherwise ignore them.
type Sender interface {
	Send(ctx context.Context, msg *Message, creds *domain.SMTPCredentials) (messageID string, err error)
}

// Router picks the transport for an inbox's provider.
type Router struct {
	senders map[domain.InboxProvider]Sender
}

// NewRouter builds a router. A nil ses sender leaves ses inboxes unroutable.
func NewRouter(smtp, ses Sender) *Router {
	r := &Router{senders: map[domain.InboxProvider]Sender{domain.ProviderSMTP: smtp}}
	if ses != nil {
		r.senders[domain.ProviderSES] = ses
	}
	return r
}

// For returns the sender for provider. Inboxes with no provider use SMTP.
func (r *Router) For(provider domain.InboxProvider) (Sender, error) {
	if provider == "" {
		provider = domain.ProviderSMTP
	}
	s, ok := r.senders[provider]
	if !ok || s == nil {
		return nil, fmt.Errorf("no sender configured for provider %q", provider)
	}
	return s, nil
}

// senderName is the display name used for an inbox: the address's local part.
func senderName(email string) string {
	if at := strings.Index(email, "@"); at > 0 {
		return email[:at]
	}
	return "Team"
}
