package domain

import (
	"math"
	"testing"
	"time"
)

func TestTargetVolume(t *testing.T) {
	tests := []struct {
		day  int
		want int
	}{
		{0, 5}, {2, 5},
		{3, 10}, {5, 10},
		{6, 15}, {9, 15},
		{10, 20}, {14, 20},
		{15, 30}, {21, 30},
		{22, 40}, {25, 40}, {28, 40},
		{29, 50}, {30, 50}, {365, 50},
	}
	for _, tt := range tests {
		if got := TargetVolume(tt.day); got != tt.want {
			t.Errorf("TargetVolume(%d) = %d, want %d", tt.day, got, tt.want)
		}
	}
}

func TestWarmupRampIsMonotonic(t *testing.T) {
	prev := 0
	for day := 0; day <= 40; day++ {
		v := TargetVolume(day)
		if v < prev {
			t.Fatalf("volume decreased on day %d: %d < %d", day, v, prev)
		}
		prev = v
	}
}

func TestReadyToGraduate(t *testing.T) {
	if !ReadyToGraduate(30, 95) {
		t.Error("30 days at 95 health should graduate")
	}
	if ReadyToGraduate(29, 99) {
		t.Error("29 days must not graduate")
	}
	if ReadyToGraduate(45, 89.9) {
		t.Error("health below 90 must not graduate")
	}
}

func TestInboxDaysActive(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	in := Inbox{CreatedAt: now.Add(-25 * 24 * time.Hour)}
	if d := in.DaysActive(now); d != 25 {
		t.Errorf("DaysActive = %d, want 25", d)
	}
	if TargetVolume(in.DaysActive(now)) != 40 {
		t.Error("a 25 day old inbox should ramp to 40")
	}

	future := Inbox{CreatedAt: now.Add(time.Hour)}
	if future.DaysActive(now) != 0 {
		t.Error("clock skew should clamp to day 0")
	}
}

func TestInDailyResetWindow(t *testing.T) {
	window := 5 * time.Minute
	cases := []struct {
		at   time.Time
		want bool
	}{
		{time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), true},
		{time.Date(2026, 1, 2, 0, 4, 59, 0, time.UTC), true},
		{time.Date(2026, 1, 2, 0, 5, 0, 0, time.UTC), false},
		{time.Date(2026, 1, 1, 23, 59, 0, 0, time.UTC), false},
		// 19:02 in UTC-5 is 00:02 UTC
		{time.Date(2026, 1, 1, 19, 2, 0, 0, time.FixedZone("EST", -5*3600)), true},
	}
	for _, c := range cases {
		if got := InDailyResetWindow(c.at, window); got != c.want {
			t.Errorf("InDailyResetWindow(%v) = %v, want %v", c.at, got, c.want)
		}
	}
}

func TestClassifyHealth(t *testing.T) {
	cases := []struct {
		spam, bounce float64
		want         HealthStatus
	}{
		{0, 0, HealthHealthy},
		{0.02, 0.05, HealthHealthy},
		{0.021, 0, HealthWarning},
		{0, 0.06, HealthWarning},
		{0.031, 0, HealthDanger},
		{0.01, 0.09, HealthDanger},
	}
	for _, c := range cases {
		if got := ClassifyHealth(c.spam, c.bounce); got != c.want {
			t.Errorf("ClassifyHealth(%v, %v) = %s, want %s", c.spam, c.bounce, got, c.want)
		}
	}
}

func TestHealthScore(t *testing.T) {
	if got := HealthScore(0, 0, 0); got != 100 {
		t.Errorf("perfect inbox = %v, want 100", got)
	}
	if got := HealthScore(0.05, 0, 0); math.Abs(got-90) > 1e-9 {
		t.Errorf("5%% bounce = %v, want 90", got)
	}
	if got := HealthScore(0, 0, 0.5); got != 100 {
		t.Errorf("score must cap at 100, got %v", got)
	}
	if got := HealthScore(1, 1, 0); got != 0 {
		t.Errorf("score must floor at 0, got %v", got)
	}
}

func TestDetectProvider(t *testing.T) {
	cases := map[string]struct {
		provider string
		limit    int
	}{
		"sales@gmail.com":     {"google", 500},
		"ceo@googlemail.com":  {"google", 500},
		"a@outlook.com":       {"outlook", 300},
		"a@hotmail.co.uk":     {"outlook", 300},
		"a@zoho.eu":           {"zoho", 200},
		"a@yahoo.com":         {"yahoo", 200},
		"a@icloud.com":        {"apple", 200},
		"founder@startup.io":  {"other", 100},
		"MixedCase@GMAIL.COM": {"google", 500},
	}
	for email, want := range cases {
		p, l := DetectProvider(email)
		if p != want.provider || l != want.limit {
			t.Errorf("DetectProvider(%q) = (%s, %d), want (%s, %d)", email, p, l, want.provider, want.limit)
		}
	}
}

func TestInboxEligibility(t *testing.T) {
	base := Inbox{WarmupStatus: WarmupActive, DailyLimit: 10, SentToday: 3, HealthScore: 80}
	if !base.Eligible(50) {
		t.Error("healthy active inbox with capacity should be eligible")
	}
	if base.RemainingCapacity() != 7 {
		t.Errorf("remaining = %d, want 7", base.RemainingCapacity())
	}

	full := base
	full.SentToday = 10
	if full.Eligible(50) || full.RemainingCapacity() != 0 {
		t.Error("inbox at its daily limit must not be eligible")
	}

	sick := base
	sick.HealthScore = 49.9
	if sick.Eligible(50) {
		t.Error("inbox below min health must not be eligible")
	}

	paused := base
	paused.WarmupStatus = WarmupPaused
	if paused.Eligible(50) {
		t.Error("paused inbox must not be eligible")
	}
}
