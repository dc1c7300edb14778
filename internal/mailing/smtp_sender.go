package mailing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
	"gopkg.in/gomail.v2"

	"github.com/ignite/outreach-core/internal/domain"
	"github.com/ignite/outreach-core/internal/pkg/logger"
)

// DialFunc delivers a built message over SMTP.
type DialFunc func(creds *domain.SMTPCredentials, m *gomail.Message) error

func dialAndSend(creds *domain.SMTPCredentials, m *gomail.Message) error {
	d := gomail.NewDialer(creds.Host, creds.Port, creds.Username, creds.Password)
	return d.DialAndSend(m)
}

// SMTPSender sends through each inbox's own SMTP server, paced by a global
// sends-per-second limiter.
type SMTPSender struct {
	limiter *rate.Limiter
	timeout time.Duration
	dial    DialFunc
}

// NewSMTPSender creates a sender. perSecond <= 0 disables pacing.
func NewSMTPSender(perSecond float64, timeout time.Duration) *SMTPSender {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &SMTPSender{
		limiter: rate.NewLimiter(limit, 1),
		timeout: timeout,
		dial:    dialAndSend,
	}
}

// WithDialer replaces the network transport. Used by tests.
func (s *SMTPSender) WithDialer(d DialFunc) *SMTPSender {
	s.dial = d
	return s
}

func (s *SMTPSender) Send(ctx context.Context, msg *Message, creds *domain.SMTPCredentials) (string, error) {
	if creds == nil || creds.Host == "" {
		return "", fmt.Errorf("smtp send from %s: %w", msg.FromEmail, ErrNoCredentials)
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("smtp rate limit: %w", err)
	}

	m, messageID := buildMessage(msg)

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	// gomail has no context support; the send finishes in the background if
	// ctx ends first.
	done := make(chan error, 1)
	go func() { done <- s.dial(creds, m) }()

	select {
	case err := <-done:
		if err != nil {
			return "", fmt.Errorf("smtp send via %s: %w", creds.Host, err)
		}
	case <-ctx.Done():
		return "", fmt.Errorf("smtp send via %s: %w", creds.Host, ctx.Err())
	}

	logger.Debug("smtp message sent", "to", msg.To, "message_id", messageID, "host", creds.Host)
	return messageID, nil
}

// buildMessage renders msg as a multipart/alternative MIME message.
func buildMessage(msg *Message) (*gomail.Message, string) {
	messageID := fmt.Sprintf("<%s@%s>", uuid.New().String(), mailDomain(msg.FromEmail))

	m := gomail.NewMessage()
	m.SetAddressHeader("From", msg.FromEmail, msg.FromName)
	if msg.ToName != "" {
		m.SetAddressHeader("To", msg.To, msg.ToName)
	} else {
		m.SetHeader("To", msg.To)
	}
	m.SetHeader("Subject", msg.Subject)
	m.SetHeader("Message-ID", messageID)
	for k, v := range msg.Headers {
		m.SetHeader(k, v)
	}

	text := msg.Text
	if text == "" {
		text = HTMLToText(msg.HTML)
	}
	m.SetBody("text/plain", text)
	if msg.HTML != "" {
		m.AddAlternative("text/html", msg.HTML)
	}
	return m, messageID
}

func mailDomain(email string) string {
	if at := strings.LastIndex(email, "@"); at >= 0 && at < len(email)-1 {
		return email[at+1:]
	}
	return "localhost"
}
