package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/outreach-core/internal/domain"
)

func newMonitor(h *harness) *AutoPauseMonitor {
	m := NewAutoPauseMonitor(fakeHealth{h.store}, fakeInboxes{h.store}, 0, 0)
	m.now = func() time.Time { return h.now }
	return m
}

func TestAutoPauseSpamRateWithDefaultSettings(t *testing.T) {
	h := newHarness()
	h.store.addCampaign("c1", "ws1", domain.CampaignActive)
	h.store.health["ws1"] = []domain.CampaignHealth{
		{CampaignID: "c1", CampaignName: "Founders", CurrentSpamRate: 0.05},
	}

	events, err := newMonitor(h).RunHealthCheckJob(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev := events[0]
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, "ws1", ev.WorkspaceID)
	assert.Equal(t, domain.PauseSpamRate, ev.PauseReason)
	assert.Equal(t, "Spam rate spiked to 5.0% (threshold: 3.0%)", ev.PauseReasonDetail)
	assert.Equal(t, testNow, ev.CreatedAt)
	assert.False(t, ev.IsResolved)

	c := h.store.campaign("c1")
	assert.Equal(t, domain.CampaignPaused, c.Status)
	assert.True(t, c.AutoPaused)
	require.NotNil(t, c.AutoPauseReason)
	assert.Equal(t, ev.PauseReasonDetail, *c.AutoPauseReason)
	assert.Len(t, h.store.events, 1)
}

func TestAutoPauseReportsFirstViolationOnly(t *testing.T) {
	h := newHarness()
	h.store.addCampaign("c1", "ws1", domain.CampaignActive)
	h.store.addCampaign("c2", "ws1", domain.CampaignActive)
	h.store.addCampaign("c3", "ws1", domain.CampaignActive)
	h.store.health["ws1"] = []domain.CampaignHealth{
		// reply drop 75% and bounce 10%: reply drop wins
		{CampaignID: "c1", PreviousReplyRate: 0.08, CurrentReplyRate: 0.02, CurrentBounceRate: 0.10, CurrentSent: 50},
		{CampaignID: "c2", CurrentBounceRate: 0.09},
		{CampaignID: "c3", CurrentSpamRate: 0.01, CurrentBounceRate: 0.02},
	}

	events, err := newMonitor(h).CheckWorkspace(context.Background(), "ws1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, domain.PauseReplyDrop, events[0].PauseReason)
	assert.Equal(t, "Reply rate dropped 75% in 48 hours (from 8.0% to 2.0%)", events[0].PauseReasonDetail)
	assert.Equal(t, domain.PauseBounceRate, events[1].PauseReason)
	assert.Equal(t, domain.CampaignActive, h.store.campaign("c3").Status)
}

func TestAutoPauseIgnoresIdleReplyWindow(t *testing.T) {
	h := newHarness()
	h.store.addCampaign("c1", "ws1", domain.CampaignActive)
	h.store.addCampaign("c2", "ws1", domain.CampaignActive)
	h.store.health["ws1"] = []domain.CampaignHealth{
		// finished sending two days ago: lifetime replies but nothing recent
		{CampaignID: "c1", PreviousReplyRate: 0.10},
		// fresh batch with no replies yet
		{CampaignID: "c2", PreviousReplyRate: 0.10, CurrentSent: 30},
	}

	events, err := newMonitor(h).CheckWorkspace(context.Background(), "ws1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "c2", events[0].CampaignID)
	assert.Equal(t, domain.PauseReplyDrop, events[0].PauseReason)
	assert.Equal(t, domain.CampaignActive, h.store.campaign("c1").Status)
	assert.False(t, h.store.campaign("c1").AutoPaused)
}

func TestAutoPauseDisabledWorkspace(t *testing.T) {
	h := newHarness()
	h.store.addCampaign("c1", "ws1", domain.CampaignActive)
	s := domain.DefaultWorkspaceSettings("ws1")
	s.AutoPauseEnabled = false
	h.store.settings["ws1"] = &s
	h.store.health["ws1"] = []domain.CampaignHealth{{CampaignID: "c1", CurrentSpamRate: 0.5}}

	events, err := newMonitor(h).CheckWorkspace(context.Background(), "ws1")
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Equal(t, domain.CampaignActive, h.store.campaign("c1").Status)
}

func TestAutoPauseCustomThresholds(t *testing.T) {
	h := newHarness()
	h.store.addCampaign("c1", "ws1", domain.CampaignActive)
	h.store.settings["ws1"] = &domain.WorkspaceSettings{
		WorkspaceID: "ws1", AutoPauseEnabled: true,
		SpamRateThreshold: 0.10, ReplyDropThreshold: 0.90, BounceRateThreshold: 0.20,
	}
	h.store.health["ws1"] = []domain.CampaignHealth{{CampaignID: "c1", CurrentSpamRate: 0.05, CurrentBounceRate: 0.15}}

	events, err := newMonitor(h).CheckWorkspace(context.Background(), "ws1")
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestAutoPauseIsIdempotent(t *testing.T) {
	h := newHarness()
	h.store.addCampaign("c1", "ws1", domain.CampaignActive)
	h.store.health["ws1"] = []domain.CampaignHealth{{CampaignID: "c1", CurrentSpamRate: 0.05}}
	m := newMonitor(h)

	_, err := m.RunHealthCheckJob(context.Background())
	require.NoError(t, err)
	events, err := m.RunHealthCheckJob(context.Background())
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Len(t, h.store.events, 1)
}

func TestRunHealthCheckJobSnapshotsInboxes(t *testing.T) {
	h := newHarness()
	h.store.addCampaign("c1", "ws1", domain.CampaignActive)
	h.store.addCampaign("c2", "ws2", domain.CampaignPaused)
	h.store.addInbox(domain.Inbox{ID: "i1", WorkspaceID: "ws1", WarmupStatus: domain.WarmupActive, SpamRate: 0.025, SentToday: 12})
	h.store.addInbox(domain.Inbox{ID: "i2", WorkspaceID: "ws2", WarmupStatus: domain.WarmupActive})

	_, err := newMonitor(h).RunHealthCheckJob(context.Background())
	require.NoError(t, err)
	require.Len(t, h.store.snapshots, 1)
	snap := h.store.snapshots[0]
	assert.Equal(t, "i1", snap.InboxID)
	assert.Equal(t, domain.HealthWarning, snap.HealthStatus)
	assert.Equal(t, 12, snap.EmailsSent)
	assert.Equal(t, testNow, snap.MeasuredAt)
}
