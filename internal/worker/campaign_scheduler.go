package worker

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/ignite/outreach-core/internal/domain"
	"github.com/ignite/outreach-core/internal/pkg/logger"
)

// =============================================================================
// CAMPAIGN SCHEDULER
// =============================================================================
// Pairs the pending leads of each active campaign with inbox capacity and
// enqueues one SendEmail job per assignment. A lead is marked scheduled with
// a guarded pending → scheduled write first, then its job is enqueued; if the
// enqueue fails the lead is reverted to pending for the next pass.

// ErrNoEligibleInbox is returned when a campaign's workspace has no inbox
// able to send right now.
var ErrNoEligibleInbox = errors.New("no eligible inbox")

// Strategy selects how leads are spread over inboxes.
type Strategy string

const (
	// StrategyGreedy starts each lead at inbox i mod n and takes the first
	// inbox that still has capacity in this pass.
	StrategyGreedy Strategy = "greedy"
	// StrategyRoundRobin sends lead i to inbox i mod n only, skipping the
	// lead when that inbox's capacity for this pass is used up.
	StrategyRoundRobin Strategy = "round_robin"
)

// ParseStrategy maps a config value to a Strategy, defaulting to greedy.
func ParseStrategy(s string) Strategy {
	if Strategy(s) == StrategyRoundRobin {
		return StrategyRoundRobin
	}
	return StrategyGreedy
}

// Assignment pairs a pending lead with the inbox that will send to it.
type Assignment struct {
	Lead  domain.PendingLead
	Inbox domain.Inbox
}

// AssignLeads distributes leads over inboxes. Each inbox's capacity is its
// remaining capacity at the start of the pass, decremented per assignment.
// Unassigned leads stay pending.
func AssignLeads(leads []domain.PendingLead, inboxes []domain.Inbox, strategy Strategy) []Assignment {
	n := len(inboxes)
	if n == 0 {
		return nil
	}
	capacity := make([]int, n)
	for i := range inboxes {
		capacity[i] = inboxes[i].RemainingCapacity()
	}

	var out []Assignment
	for i, lead := range leads {
		start := i % n
		switch strategy {
		case StrategyRoundRobin:
			if capacity[start] > 0 {
				capacity[start]--
				out = append(out, Assignment{Lead: lead, Inbox: inboxes[start]})
			}
		default:
			for k := 0; k < n; k++ {
				idx := (start + k) % n
				if capacity[idx] > 0 {
					capacity[idx]--
					out = append(out, Assignment{Lead: lead, Inbox: inboxes[idx]})
					break
				}
			}
		}
	}
	return out
}

// SchedulerCampaigns is the campaign storage the scheduler needs.
type SchedulerCampaigns interface {
	GetByID(ctx context.Context, id string) (*domain.Campaign, error)
	ActiveCampaignIDs(ctx context.Context) ([]string, error)
	PendingLeads(ctx context.Context, campaignID, workspaceID string, limit int) ([]domain.PendingLead, error)
	MarkScheduled(ctx context.Context, campaignLeadID string) (bool, error)
	RevertScheduled(ctx context.Context, campaignLeadID string) error
}

// SchedulerInboxes is the inbox storage the scheduler needs.
type SchedulerInboxes interface {
	Eligible(ctx context.Context, workspaceID string, minHealth float64) ([]domain.Inbox, error)
}

// Enqueuer adds jobs to the queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, p domain.JobPayload, workspaceID *string) (string, error)
}

// SchedulerConfig tunes a scheduling pass.
type SchedulerConfig struct {
	LeadBatchSize  int
	MinHealthScore float64
	Strategy       Strategy
}

// CampaignScheduler turns pending campaign leads into SendEmail jobs.
type CampaignScheduler struct {
	campaigns SchedulerCampaigns
	inboxes   SchedulerInboxes
	queue     Enqueuer
	cfg       SchedulerConfig
}

func NewCampaignScheduler(campaigns SchedulerCampaigns, inboxes SchedulerInboxes, queue Enqueuer, cfg SchedulerConfig) *CampaignScheduler {
	if cfg.LeadBatchSize <= 0 {
		cfg.LeadBatchSize = 100
	}
	if cfg.MinHealthScore <= 0 {
		cfg.MinHealthScore = 50
	}
	if cfg.Strategy == "" {
		cfg.Strategy = StrategyGreedy
	}
	return &CampaignScheduler{campaigns: campaigns, inboxes: inboxes, queue: queue, cfg: cfg}
}

// ProcessActiveCampaigns schedules every active campaign. A failing campaign
// is logged and does not stop the pass. Returns the total number of leads
// scheduled.
func (s *CampaignScheduler) ProcessActiveCampaigns(ctx context.Context) (int, error) {
	ids, err := s.campaigns.ActiveCampaignIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active campaigns: %w", err)
	}

	total := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
		n, err := s.ScheduleCampaign(ctx, id)
		total += n
		if err != nil {
			logger.Warn("campaign scheduling failed", "campaign_id", id, "error", err)
		}
	}
	if total > 0 {
		log.Printf("[CampaignScheduler] scheduled %d leads across %d campaigns", total, len(ids))
	}
	return total, nil
}

// ScheduleCampaign runs one scheduling pass for a campaign and returns how
// many leads were scheduled. Campaigns that are not active are left alone.
func (s *CampaignScheduler) ScheduleCampaign(ctx context.Context, campaignID string) (int, error) {
	camp, err := s.campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return 0, err
	}
	if camp.Status != domain.CampaignActive {
		return 0, nil
	}

	leads, err := s.campaigns.PendingLeads(ctx, camp.ID, camp.WorkspaceID, s.cfg.LeadBatchSize)
	if err != nil {
		return 0, err
	}
	if len(leads) == 0 {
		return 0, nil
	}

	inboxes, err := s.inboxes.Eligible(ctx, camp.WorkspaceID, s.cfg.MinHealthScore)
	if err != nil {
		return 0, err
	}
	if len(inboxes) == 0 {
		return 0, fmt.Errorf("campaign %s: %w", camp.ID, ErrNoEligibleInbox)
	}

	ws := camp.WorkspaceID
	scheduled := 0
	for _, a := range AssignLeads(leads, inboxes, s.cfg.Strategy) {
		ok, err := s.campaigns.MarkScheduled(ctx, a.Lead.CampaignLeadID)
		if err != nil {
			return scheduled, err
		}
		if !ok {
			continue
		}

		_, err = s.queue.Enqueue(ctx, domain.SendEmailPayload{
			CampaignLeadID: a.Lead.CampaignLeadID,
			CampaignID:     camp.ID,
			LeadID:         a.Lead.LeadID,
			InboxID:        a.Inbox.ID,
			Email:          a.Lead.Email,
		}, &ws)
		if err != nil {
			if rerr := s.campaigns.RevertScheduled(ctx, a.Lead.CampaignLeadID); rerr != nil {
				logger.Error("revert scheduled lead failed", "campaign_lead_id", a.Lead.CampaignLeadID, "error", rerr)
			}
			return scheduled, fmt.Errorf("enqueue send: %w", err)
		}
		scheduled++
		leadsScheduled.Inc()
	}

	logger.Debug("campaign scheduled", "campaign_id", camp.ID, "pending", len(leads),
		"inboxes", len(inboxes), "scheduled", scheduled)
	return scheduled, nil
}
