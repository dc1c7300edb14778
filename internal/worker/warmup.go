package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ignite/outreach-core/internal/domain"
	"github.com/ignite/outreach-core/internal/pkg/logger"
)

// WarmupInboxes is the inbox storage the warmup service needs.
type WarmupInboxes interface {
	ListByStatus(ctx context.Context, statuses ...domain.WarmupStatus) ([]domain.Inbox, error)
	SetDailyLimit(ctx context.Context, id string, limit int) error
	Graduate(ctx context.Context, id string, limit int) error
	SetWarmupStatus(ctx context.Context, id string, status domain.WarmupStatus) error
	RecoverHealth(ctx context.Context, step float64) (int64, error)
	ResetDailyCounters(ctx context.Context, day time.Time) (int64, error)
	SetProviderLimit(ctx context.Context, id, provider string, limit int) error
}

// WarmupService ramps warming inboxes toward full volume and protects
// unhealthy ones.
type WarmupService struct {
	inboxes      WarmupInboxes
	queue        Enqueuer
	recoveryStep float64
	resetWindow  time.Duration
	now          func() time.Time
}

// NewWarmupService creates the service. A nil queue disables peer warmup
// sends; recoveryStep <= 0 disables health recovery.
func NewWarmupService(inboxes WarmupInboxes, queue Enqueuer, recoveryStep float64, resetWindow time.Duration) *WarmupService {
	if resetWindow <= 0 {
		resetWindow = 5 * time.Minute
	}
	return &WarmupService{
		inboxes:      inboxes,
		queue:        queue,
		recoveryStep: recoveryStep,
		resetWindow:  resetWindow,
		now:          time.Now,
	}
}

// WarmupReport summarizes one warmup duty run.
type WarmupReport struct {
	Ramped       int
	Graduated    int
	Paused       int
	Warned       int
	Recovered    int64
	WarmupQueued int
}

// Run is the periodic warmup duty: provider limits, ramp, protection, health
// recovery and peer warmup sends.
func (w *WarmupService) Run(ctx context.Context) (WarmupReport, error) {
	var rep WarmupReport
	if err := w.SyncProviderLimits(ctx); err != nil {
		return rep, err
	}
	ramped, graduated, err := w.RunCycle(ctx)
	if err != nil {
		return rep, err
	}
	rep.Ramped, rep.Graduated = ramped, graduated

	if rep.Paused, rep.Warned, err = w.Protect(ctx); err != nil {
		return rep, err
	}
	if rep.Recovered, err = w.RecoverHealth(ctx); err != nil {
		return rep, err
	}
	if rep.WarmupQueued, err = w.EnqueuePeerSends(ctx); err != nil {
		return rep, err
	}
	return rep, nil
}

// RunCycle applies the ramp to every warming inbox and graduates the ones
// that have earned it. Per-inbox failures are logged and skipped.
func (w *WarmupService) RunCycle(ctx context.Context) (ramped, graduated int, err error) {
	inboxes, err := w.inboxes.ListByStatus(ctx, domain.WarmupWarming)
	if err != nil {
		return 0, 0, fmt.Errorf("list warming inboxes: %w", err)
	}
	now := w.now()

	for i := range inboxes {
		in := &inboxes[i]
		days := in.DaysActive(now)

		if domain.ReadyToGraduate(days, in.HealthScore) {
			if err := w.inboxes.Graduate(ctx, in.ID, capLimit(domain.GraduatedDailyLimit, in.ProviderDailyLimit)); err != nil {
				logger.Error("graduate inbox failed", "inbox_id", in.ID, "error", err)
				continue
			}
			graduated++
			logger.Info("inbox graduated", "inbox_id", in.ID, "email", in.Email, "days_active", days)
			continue
		}

		target := capLimit(domain.TargetVolume(days), in.ProviderDailyLimit)
		if target == in.DailyLimit {
			continue
		}
		if err := w.inboxes.SetDailyLimit(ctx, in.ID, target); err != nil {
			logger.Error("set warmup limit failed", "inbox_id", in.ID, "error", err)
			continue
		}
		ramped++
	}
	return ramped, graduated, nil
}

// Protect pauses sending inboxes whose health is critical and warns about
// the ones in the warning band.
func (w *WarmupService) Protect(ctx context.Context) (paused, warned int, err error) {
	inboxes, err := w.inboxes.ListByStatus(ctx, domain.WarmupWarming, domain.WarmupActive)
	if err != nil {
		return 0, 0, fmt.Errorf("list sending inboxes: %w", err)
	}
	for _, in := range inboxes {
		switch {
		case in.HealthScore < domain.HealthCriticalThreshold:
			if err := w.inboxes.SetWarmupStatus(ctx, in.ID, domain.WarmupPaused); err != nil {
				logger.Error("pause inbox failed", "inbox_id", in.ID, "error", err)
				continue
			}
			paused++
			inboxesPaused.Inc()
			logger.Warn("inbox paused for critical health", "inbox_id", in.ID, "email", in.Email, "health_score", in.HealthScore)
		case in.HealthScore < domain.HealthWarningThreshold:
			warned++
			logger.Warn("inbox health degraded", "inbox_id", in.ID, "email", in.Email, "health_score", in.HealthScore)
		}
	}
	return paused, warned, nil
}

// RecoverHealth nudges every sending inbox's health back toward the maximum.
func (w *WarmupService) RecoverHealth(ctx context.Context) (int64, error) {
	if w.recoveryStep <= 0 {
		return 0, nil
	}
	return w.inboxes.RecoverHealth(ctx, w.recoveryStep)
}

// ResetDailyCounters zeroes sent_today when now is inside the daily reset
// window. Outside the window, or if the day was already reset, it does
// nothing.
func (w *WarmupService) ResetDailyCounters(ctx context.Context) (int64, error) {
	now := w.now()
	if !domain.InDailyResetWindow(now, w.resetWindow) {
		return 0, nil
	}
	n, err := w.inboxes.ResetDailyCounters(ctx, domain.ResetDay(now))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Printf("[WarmupService] reset daily counters on %d inboxes", n)
	}
	return n, nil
}

// SyncProviderLimits detects the mailbox provider of inboxes that have no
// provider limit yet and stores it.
func (w *WarmupService) SyncProviderLimits(ctx context.Context) error {
	inboxes, err := w.inboxes.ListByStatus(ctx, domain.WarmupPending, domain.WarmupWarming, domain.WarmupActive)
	if err != nil {
		return fmt.Errorf("list inboxes: %w", err)
	}
	for _, in := range inboxes {
		if in.ProviderDailyLimit > 0 {
			continue
		}
		provider, limit := domain.DetectProvider(in.Email)
		if err := w.inboxes.SetProviderLimit(ctx, in.ID, provider, limit); err != nil {
			logger.Error("set provider limit failed", "inbox_id", in.ID, "error", err)
		}
	}
	return nil
}

// EnqueuePeerSends queues one warmup email per warming inbox with capacity
// left, addressed to the next warming or active inbox of the same workspace.
func (w *WarmupService) EnqueuePeerSends(ctx context.Context) (int, error) {
	if w.queue == nil {
		return 0, nil
	}
	inboxes, err := w.inboxes.ListByStatus(ctx, domain.WarmupWarming, domain.WarmupActive)
	if err != nil {
		return 0, fmt.Errorf("list inboxes: %w", err)
	}

	byWorkspace := make(map[string][]domain.Inbox)
	for _, in := range inboxes {
		byWorkspace[in.WorkspaceID] = append(byWorkspace[in.WorkspaceID], in)
	}

	queued := 0
	for ws, peers := range byWorkspace {
		if len(peers) < 2 {
			continue
		}
		for i, in := range peers {
			if in.WarmupStatus != domain.WarmupWarming || in.RemainingCapacity() == 0 {
				continue
			}
			target := peers[(i+1)%len(peers)]
			wsID := ws
			_, err := w.queue.Enqueue(ctx, domain.WarmupEmailPayload{
				EmailAccountID: in.ID,
				TargetEmail:    target.Email,
			}, &wsID)
			if err != nil {
				return queued, fmt.Errorf("enqueue warmup email: %w", err)
			}
			queued++
		}
	}
	return queued, nil
}

// capLimit bounds limit by the provider's daily cap when one is known.
func capLimit(limit, providerCap int) int {
	if providerCap > 0 && limit > providerCap {
		return providerCap
	}
	return limit
}
