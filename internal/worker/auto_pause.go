package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/outreach-core/internal/domain"
	"github.com/ignite/outreach-core/internal/pkg/logger"
)

// HealthStore is the storage behind the circuit breaker.
type HealthStore interface {
	WorkspacesWithActiveCampaigns(ctx context.Context) ([]string, error)
	Settings(ctx context.Context, workspaceID string) (*domain.WorkspaceSettings, error)
	InsertSnapshots(ctx context.Context, workspaceID string, snaps []domain.InboxHealthSnapshot, at time.Time) error
	CampaignHealth(ctx context.Context, workspaceID string, metricsSince, replySince time.Time) ([]domain.CampaignHealth, error)
	PauseCampaign(ctx context.Context, ev domain.AutoPauseEvent) (bool, error)
}

type WorkspaceInboxes interface {
	ListByWorkspace(ctx context.Context, workspaceID string) ([]domain.Inbox, error)
}

// AutoPauseMonitor pauses campaigns whose spam, reply or bounce metrics
// cross the workspace thresholds.
type AutoPauseMonitor struct {
	store         HealthStore
	inboxes       WorkspaceInboxes
	metricsWindow time.Duration
	replyWindow   time.Duration
	now           func() time.Time
}

func NewAutoPauseMonitor(store HealthStore, inboxes WorkspaceInboxes, metricsWindow, replyWindow time.Duration) *AutoPauseMonitor {
	if metricsWindow <= 0 {
		metricsWindow = 24 * time.Hour
	}
	if replyWindow <= 0 {
		replyWindow = 48 * time.Hour
	}
	return &AutoPauseMonitor{
		store:         store,
		inboxes:       inboxes,
		metricsWindow: metricsWindow,
		replyWindow:   replyWindow,
		now:           time.Now,
	}
}

// RunHealthCheckJob snapshots inbox health and checks campaigns for every
// workspace with active campaigns. A failing workspace is logged and the
// pass continues. Returns the events created.
func (m *AutoPauseMonitor) RunHealthCheckJob(ctx context.Context) ([]domain.AutoPauseEvent, error) {
	workspaces, err := m.store.WorkspacesWithActiveCampaigns(ctx)
	if err != nil {
		return nil, fmt.Errorf("list workspaces: %w", err)
	}

	var events []domain.AutoPauseEvent
	for _, ws := range workspaces {
		if ctx.Err() != nil {
			return events, ctx.Err()
		}
		if err := m.RecordInboxHealth(ctx, ws); err != nil {
			logger.Warn("record inbox health failed", "workspace_id", ws, "error", err)
		}
		evs, err := m.CheckWorkspace(ctx, ws)
		if err != nil {
			logger.Error("auto-pause check failed", "workspace_id", ws, "error", err)
			continue
		}
		events = append(events, evs...)
	}
	return events, nil
}

// RecordInboxHealth stores a classified health snapshot of each inbox in the
// workspace.
func (m *AutoPauseMonitor) RecordInboxHealth(ctx context.Context, workspaceID string) error {
	inboxes, err := m.inboxes.ListByWorkspace(ctx, workspaceID)
	if err != nil {
		return err
	}
	if len(inboxes) == 0 {
		return nil
	}
	now := m.now().UTC()
	snaps := make([]domain.InboxHealthSnapshot, 0, len(inboxes))
	for _, in := range inboxes {
		snaps = append(snaps, domain.SnapshotInbox(in, now))
	}
	return m.store.InsertSnapshots(ctx, workspaceID, snaps, now)
}

// CheckWorkspace evaluates every active campaign of the workspace and pauses
// the first-violation offenders.
func (m *AutoPauseMonitor) CheckWorkspace(ctx context.Context, workspaceID string) ([]domain.AutoPauseEvent, error) {
	stored, err := m.store.Settings(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	settings := domain.EffectiveSettings(workspaceID, stored)
	if !settings.AutoPauseEnabled {
		return nil, nil
	}

	now := m.now().UTC()
	metrics, err := m.store.CampaignHealth(ctx, workspaceID, now.Add(-m.metricsWindow), now.Add(-m.replyWindow))
	if err != nil {
		return nil, err
	}

	var events []domain.AutoPauseEvent
	for _, h := range metrics {
		verdict := domain.CheckThresholds(h, settings)
		if !verdict.ShouldPause {
			continue
		}
		ev := domain.AutoPauseEvent{
			ID:                uuid.New().String(),
			WorkspaceID:       workspaceID,
			CampaignID:        h.CampaignID,
			PauseReason:       verdict.Reason,
			PauseReasonDetail: verdict.Detail,
			CreatedAt:         now,
		}
		paused, err := m.store.PauseCampaign(ctx, ev)
		if err != nil {
			logger.Error("auto-pause failed", "campaign_id", h.CampaignID, "error", err)
			continue
		}
		if !paused {
			continue
		}
		campaignsAutoPaused.WithLabelValues(string(verdict.Reason)).Inc()
		logger.Warn("campaign auto-paused", "workspace_id", workspaceID, "campaign_id", h.CampaignID,
			"campaign", h.CampaignName, "reason", string(verdict.Reason), "detail", verdict.Detail)
		events = append(events, ev)
	}
	return events, nil
}
