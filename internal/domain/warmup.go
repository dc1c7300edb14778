package domain

import "time"

// WarmupRampStep maps a range of inbox ages to a target daily volume.
type WarmupRampStep struct {
	MaxDay int // inclusive
	Volume int
}

// WarmupRamp is the daily volume schedule keyed by days since inbox creation.
// Ages past the last step get GraduatedDailyLimit.
var WarmupRamp = []WarmupRampStep{
	{MaxDay: 2, Volume: 5},
	{MaxDay: 5, Volume: 10},
	{MaxDay: 9, Volume: 15},
	{MaxDay: 14, Volume: 20},
	{MaxDay: 21, Volume: 30},
	{MaxDay: 28, Volume: 40},
}

const (
	// GraduatedDailyLimit is the volume for inboxes past the ramp.
	GraduatedDailyLimit = 50

	// GraduationDays and GraduationHealth gate promotion from warming to active.
	GraduationDays   = 30
	GraduationHealth = 90.0

	// HealthWarningThreshold logs a warning; HealthCriticalThreshold pauses
	// the inbox.
	HealthWarningThreshold  = 75.0
	HealthCriticalThreshold = 50.0

	// MaxHealthScore caps the composite health metric.
	MaxHealthScore = 100.0
)

// TargetVolume returns the ramp volume for an inbox that is daysActive days old.
func TargetVolume(daysActive int) int {
	for _, step := range WarmupRamp {
		if daysActive <= step.MaxDay {
			return step.Volume
		}
	}
	return GraduatedDailyLimit
}

// ReadyToGraduate reports whether a warming inbox has earned active status.
func ReadyToGraduate(daysActive int, health float64) bool {
	return daysActive >= GraduationDays && health >= GraduationHealth
}

// InDailyResetWindow reports whether now falls in [00:00, 00:00+window) UTC.
func InDailyResetWindow(now time.Time, window time.Duration) bool {
	u := now.UTC()
	midnight := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	return u.Sub(midnight) < window
}

// ResetDay is the calendar day (UTC) a daily counter reset belongs to.
func ResetDay(now time.Time) time.Time {
	u := now.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// HealthStatus classifies an inbox health snapshot.
type HealthStatus string

const (
	HealthHealthy HealthStatus = "healthy"
	HealthWarning HealthStatus = "warning"
	HealthDanger  HealthStatus = "danger"
)

// ClassifyHealth buckets an inbox by its spam and bounce rates.
func ClassifyHealth(spamRate, bounceRate float64) HealthStatus {
	switch {
	case spamRate > 0.03 || bounceRate > 0.08:
		return HealthDanger
	case spamRate > 0.02 || bounceRate > 0.05:
		return HealthWarning
	}
	return HealthHealthy
}

// HealthScore derives a 0-100 score: bounces cost 200 points per unit rate,
// spam 500, replies earn 50.
func HealthScore(bounceRate, spamRate, replyRate float64) float64 {
	score := MaxHealthScore - bounceRate*200 - spamRate*500 + replyRate*50
	if score < 0 {
		return 0
	}
	if score > MaxHealthScore {
		return MaxHealthScore
	}
	return score
}

// InboxHealthSnapshot is one row of inbox_health_metrics.
type InboxHealthSnapshot struct {
	InboxID      string       `json:"email_account_id" db:"email_account_id"`
	WorkspaceID  string       `json:"workspace_id" db:"workspace_id"`
	SpamRate     float64      `json:"spam_rate" db:"spam_rate"`
	ReplyRate    float64      `json:"reply_rate" db:"reply_rate"`
	BounceRate   float64      `json:"bounce_rate" db:"bounce_rate"`
	HealthStatus HealthStatus `json:"health_status" db:"health_status"`
	HealthScore  float64      `json:"health_score" db:"health_score"`
	EmailsSent   int          `json:"emails_sent" db:"emails_sent"`
	MeasuredAt   time.Time    `json:"measured_at" db:"measured_at"`
}

// SnapshotInbox builds the health snapshot for an inbox at now.
func SnapshotInbox(in Inbox, now time.Time) InboxHealthSnapshot {
	return InboxHealthSnapshot{
		InboxID:      in.ID,
		WorkspaceID:  in.WorkspaceID,
		SpamRate:     in.SpamRate,
		ReplyRate:    in.ReplyRate,
		BounceRate:   in.BounceRate,
		HealthStatus: ClassifyHealth(in.SpamRate, in.BounceRate),
		HealthScore:  HealthScore(in.BounceRate, in.SpamRate, in.ReplyRate),
		EmailsSent:   in.SentToday,
		MeasuredAt:   now,
	}
}
