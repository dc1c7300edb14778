package domain

import (
	"strings"
	"time"
)

// WarmupStatus enumerates where an inbox is in its reputation ramp.
type WarmupStatus string

const (
	WarmupPending WarmupStatus = "pending"
	WarmupWarming WarmupStatus = "warming"
	WarmupActive  WarmupStatus = "active"
	WarmupPaused  WarmupStatus = "paused"
)

// InboxProvider selects the transport used to send from an inbox.
type InboxProvider string

const (
	ProviderSMTP InboxProvider = "smtp"
	ProviderSES  InboxProvider = "ses"
)

// Inbox is a sending mailbox (an "email account").
type Inbox struct {
	ID           string        `json:"id" db:"id"`
	WorkspaceID  string        `json:"workspace_id" db:"workspace_id"`
	Email        string        `json:"email" db:"email"`
	Provider     InboxProvider `json:"provider" db:"provider"`
	WarmupStatus WarmupStatus  `json:"warmup_status" db:"warmup_status"`
	DailyLimit   int           `json:"daily_limit" db:"daily_limit"`
	SentToday    int           `json:"sent_today" db:"sent_today"`
	HealthScore  float64       `json:"health_score" db:"health_score"`
	SpamRate     float64       `json:"spam_rate" db:"spam_rate"`
	ReplyRate    float64       `json:"reply_rate" db:"reply_rate"`
	BounceRate   float64       `json:"bounce_rate" db:"bounce_rate"`

	// ProviderDailyLimit caps the warmup ramp for the detected mailbox provider.
	// Zero means not yet detected.
	ProviderDailyLimit int       `json:"provider_daily_limit" db:"provider_daily_limit"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"`
}

// RemainingCapacity is how many more sends the inbox may make today.
func (i *Inbox) RemainingCapacity() int {
	if r := i.DailyLimit - i.SentToday; r > 0 {
		return r
	}
	return 0
}

// Eligible reports whether the inbox may take new campaign sends.
func (i *Inbox) Eligible(minHealth float64) bool {
	if i.WarmupStatus != WarmupWarming && i.WarmupStatus != WarmupActive {
		return false
	}
	return i.HealthScore >= minHealth && i.SentToday < i.DailyLimit
}

// DaysActive is the number of whole days since the inbox was created.
func (i *Inbox) DaysActive(now time.Time) int {
	d := int(now.Sub(i.CreatedAt).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}

// SMTPCredentials are the resolved credentials for sending from an inbox.
type SMTPCredentials struct {
	Host     string
	Port     int
	Username string
	Password string
}

// InboxCredentials is the stored credential material for an inbox. The
// password is either encrypted (preferred) or legacy plaintext.
type InboxCredentials struct {
	InboxID           string  `db:"id"`
	Email             string  `db:"email"`
	SMTPHost          string  `db:"smtp_host"`
	SMTPPort          int     `db:"smtp_port"`
	SMTPUsername      string  `db:"smtp_username"`
	SMTPPassword      *string `db:"smtp_password"`
	PasswordEncrypted []byte  `db:"smtp_password_encrypted"`
	EncryptionKeyID   *string `db:"encryption_key_id"`
}

// DetectProvider guesses the mailbox provider from the address domain and
// returns its recommended daily sending limit.
func DetectProvider(email string) (string, int) {
	domain := strings.ToLower(email)
	if at := strings.LastIndex(domain, "@"); at >= 0 {
		domain = domain[at+1:]
	}

	switch {
	case strings.Contains(domain, "gmail") || strings.Contains(domain, "google"):
		return "google", 500
	case strings.Contains(domain, "outlook") || strings.Contains(domain, "hotmail") ||
		strings.Contains(domain, "live") || strings.Contains(domain, "microsoft"):
		return "outlook", 300
	case strings.Contains(domain, "zoho"):
		return "zoho", 200
	case strings.Contains(domain, "yahoo"):
		return "yahoo", 200
	case strings.Contains(domain, "icloud") || strings.Contains(domain, "me.com") || strings.Contains(domain, "mac.com"):
		return "apple", 200
	}
	return "other", 100
}
