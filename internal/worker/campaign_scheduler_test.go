package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/outreach-core/internal/domain"
)

func pending(ids ...string) []domain.PendingLead {
	out := make([]domain.PendingLead, len(ids))
	for i, id := range ids {
		out[i] = domain.PendingLead{CampaignLeadID: "cl-" + id, LeadID: id, Email: id + "@x.io"}
	}
	return out
}

func assignedTo(as []Assignment) map[string]string {
	m := make(map[string]string, len(as))
	for _, a := range as {
		m[a.Lead.LeadID] = a.Inbox.ID
	}
	return m
}

func TestAssignLeadsRoundRobinCapacitySkip(t *testing.T) {
	leads := pending("lead0", "lead1", "lead2")
	inboxes := []domain.Inbox{
		{ID: "A", DailyLimit: 10, SentToday: 9},
		{ID: "B", DailyLimit: 10, SentToday: 0},
	}

	got := assignedTo(AssignLeads(leads, inboxes, StrategyRoundRobin))
	assert.Equal(t, map[string]string{"lead0": "A", "lead1": "B"}, got, "lead2 stays pending")
}

func TestAssignLeadsGreedyUsesRemainingCapacity(t *testing.T) {
	leads := pending("lead0", "lead1", "lead2")
	inboxes := []domain.Inbox{
		{ID: "A", DailyLimit: 10, SentToday: 9},
		{ID: "B", DailyLimit: 10, SentToday: 0},
	}

	got := assignedTo(AssignLeads(leads, inboxes, StrategyGreedy))
	assert.Equal(t, map[string]string{"lead0": "A", "lead1": "B", "lead2": "B"}, got)
}

func TestAssignLeadsNeverExceedsCapacity(t *testing.T) {
	leads := pending("a", "b", "c", "d", "e", "f", "g")
	inboxes := []domain.Inbox{
		{ID: "A", DailyLimit: 5, SentToday: 3},
		{ID: "B", DailyLimit: 2, SentToday: 0},
		{ID: "C", DailyLimit: 1, SentToday: 1},
	}

	for _, s := range []Strategy{StrategyGreedy, StrategyRoundRobin} {
		perInbox := map[string]int{}
		for _, a := range AssignLeads(leads, inboxes, s) {
			perInbox[a.Inbox.ID]++
		}
		assert.LessOrEqual(t, perInbox["A"], 2, s)
		assert.LessOrEqual(t, perInbox["B"], 2, s)
		assert.Zero(t, perInbox["C"], s)
	}
	assert.Len(t, AssignLeads(leads, inboxes, StrategyGreedy), 4)
	assert.Nil(t, AssignLeads(leads, nil, StrategyGreedy))
}

func TestParseStrategy(t *testing.T) {
	assert.Equal(t, StrategyRoundRobin, ParseStrategy("round_robin"))
	assert.Equal(t, StrategyGreedy, ParseStrategy("greedy"))
	assert.Equal(t, StrategyGreedy, ParseStrategy(""))
}

func seedSchedulable(h *harness) {
	s := h.store
	s.addCampaign("c1", "ws1", domain.CampaignActive)
	s.addLead("c1", "l1", "one@acme.io", 3*time.Minute)
	s.addLead("c1", "l2", "two@acme.io", 2*time.Minute)
	s.addLead("c1", "l3", "Blocked@Acme.io", time.Minute)
	s.suppressed["ws1|blocked@acme.io"] = true
	s.addInbox(domain.Inbox{ID: "i1", WorkspaceID: "ws1", Email: "sam@out.io", WarmupStatus: domain.WarmupActive, DailyLimit: 50, HealthScore: 95})
	s.addInbox(domain.Inbox{ID: "i2", WorkspaceID: "ws1", Email: "kim@out.io", WarmupStatus: domain.WarmupWarming, DailyLimit: 10, HealthScore: 80})
	s.addInbox(domain.Inbox{ID: "sick", WorkspaceID: "ws1", Email: "bad@out.io", WarmupStatus: domain.WarmupActive, DailyLimit: 50, HealthScore: 30})
}

func TestScheduleCampaignEnqueuesSendJobs(t *testing.T) {
	h := newHarness()
	seedSchedulable(h)

	n, err := h.scheduler.ScheduleCampaign(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Equal(t, domain.LeadScheduled, h.store.lead("cl-l1").Status)
	assert.Equal(t, domain.LeadScheduled, h.store.lead("cl-l2").Status)
	assert.Equal(t, domain.LeadPending, h.store.lead("cl-l3").Status, "suppressed lead is never scheduled")

	jobs := h.jobsOf(domain.JobSendEmail)
	require.Len(t, jobs, 2)
	inboxes := map[string]string{}
	for _, j := range jobs {
		var p domain.SendEmailPayload
		require.NoError(t, json.Unmarshal(j.Payload, &p))
		assert.Equal(t, "c1", p.CampaignID)
		assert.NotEqual(t, "sick", p.InboxID)
		require.NotNil(t, j.WorkspaceID)
		assert.Equal(t, "ws1", *j.WorkspaceID)
		inboxes[p.LeadID] = p.InboxID
	}
	assert.Equal(t, map[string]string{"l1": "i1", "l2": "i2"}, inboxes, "oldest lead goes to the healthiest inbox")

	// A second pass finds nothing new to schedule.
	n, err = h.scheduler.ScheduleCampaign(context.Background(), "c1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestScheduleCampaignNoEligibleInbox(t *testing.T) {
	h := newHarness()
	h.store.addCampaign("c1", "ws1", domain.CampaignActive)
	h.store.addLead("c1", "l1", "one@acme.io", time.Minute)
	h.store.addInbox(domain.Inbox{ID: "full", WorkspaceID: "ws1", WarmupStatus: domain.WarmupActive, DailyLimit: 5, SentToday: 5, HealthScore: 99})

	_, err := h.scheduler.ScheduleCampaign(context.Background(), "c1")
	assert.ErrorIs(t, err, ErrNoEligibleInbox)
	assert.Empty(t, h.repo.All())
	assert.Equal(t, domain.LeadPending, h.store.lead("cl-l1").Status)
}

func TestScheduleCampaignRevertsLeadWhenEnqueueFails(t *testing.T) {
	h := newHarness()
	seedSchedulable(h)
	s := NewCampaignScheduler(fakeCampaigns{h.store}, fakeInboxes{h.store}, failingQueue{}, SchedulerConfig{})

	n, err := s.ScheduleCampaign(context.Background(), "c1")
	require.Error(t, err)
	assert.Zero(t, n)
	assert.Equal(t, domain.LeadPending, h.store.lead("cl-l1").Status)
}

func TestScheduleCampaignIgnoresInactive(t *testing.T) {
	h := newHarness()
	seedSchedulable(h)
	h.store.campaigns["c1"].Status = domain.CampaignPaused

	n, err := h.scheduler.ScheduleCampaign(context.Background(), "c1")
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = h.scheduler.ScheduleCampaign(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestProcessActiveCampaignsContinuesPastFailures(t *testing.T) {
	h := newHarness()
	seedSchedulable(h)
	// c0 sorts first and its workspace has no inbox at all.
	h.store.addCampaign("c0", "ws-empty", domain.CampaignActive)
	h.store.addLead("c0", "x1", "x1@acme.io", time.Minute)

	n, err := h.scheduler.ProcessActiveCampaigns(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, domain.LeadPending, h.store.lead("cl-x1").Status)
}
