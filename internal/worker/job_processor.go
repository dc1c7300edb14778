package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/outreach-core/internal/domain"
	"github.com/ignite/outreach-core/internal/mailing"
	"github.com/ignite/outreach-core/internal/pkg/logger"
	"github.com/ignite/outreach-core/internal/service/jobqueue"
	"github.com/ignite/outreach-core/internal/verify"
)

// HandlerFunc runs one decoded job. A nil error completes the job; errors
// are classified by jobqueue.IsPermanent.
type HandlerFunc func(ctx context.Context, job *domain.Job, payload domain.JobPayload) error

// Queue is the job queue surface the processor drives.
type Queue interface {
	Enqueuer
	Claim(ctx context.Context, limit int) ([]domain.Job, error)
	Complete(ctx context.Context, id string) error
	Fail(ctx context.Context, id string, cause error) (*domain.Job, error)
}

// ProcessorCampaigns is the campaign storage used by job handlers.
type ProcessorCampaigns interface {
	GetByID(ctx context.Context, id string) (*domain.Campaign, error)
	CampaignIDsByWorkspace(ctx context.Context, workspaceID string) ([]string, error)
	GetCampaignLead(ctx context.Context, id string) (*domain.CampaignLead, error)
	RecordSend(ctx context.Context, campaignLeadID, campaignID, inboxID string, at time.Time) (bool, error)
	FreezeLead(ctx context.Context, campaignLeadID string, at time.Time) error
	RevertScheduled(ctx context.Context, campaignLeadID string) error
	RecomputeCounters(ctx context.Context, campaignID string) (*domain.CampaignCounters, error)
}

// ProcessorInboxes is the inbox storage used by job handlers.
type ProcessorInboxes interface {
	Get(ctx context.Context, id string) (*domain.Inbox, error)
	Credentials(ctx context.Context, id string) (*domain.InboxCredentials, error)
	IncrementSentToday(ctx context.Context, id string) error
}

type ProcessorLeads interface {
	Get(ctx context.Context, id string) (*domain.Lead, error)
	UpdateVerification(ctx context.Context, id string, v domain.Verification, at time.Time) error
}

type Suppressions interface {
	IsSuppressed(ctx context.Context, workspaceID, email string) (bool, error)
}

type Verifier interface {
	Verify(ctx context.Context, email string) (verify.Result, error)
}

type SenderRouter interface {
	For(provider domain.InboxProvider) (mailing.Sender, error)
}

type CredentialResolver interface {
	Resolve(c *domain.InboxCredentials) (*domain.SMTPCredentials, error)
}

// ProcessorDeps wires the job handlers to storage and delivery.
type ProcessorDeps struct {
	Campaigns    ProcessorCampaigns
	Inboxes      ProcessorInboxes
	Leads        ProcessorLeads
	Suppressions Suppressions
	Verifier     Verifier
	Composer     *mailing.Composer
	Senders      SenderRouter
	Credentials  CredentialResolver
	Scheduler    *CampaignScheduler
}

// JobProcessor claims jobs and dispatches them to the handler for their type.
type JobProcessor struct {
	queue     Queue
	deps      ProcessorDeps
	handlers  map[domain.JobType]HandlerFunc
	batchSize int
	timeout   time.Duration
	now       func() time.Time
}

// NewJobProcessor creates a processor with the built-in handlers registered.
func NewJobProcessor(queue Queue, deps ProcessorDeps, batchSize int, timeout time.Duration) *JobProcessor {
	if batchSize <= 0 {
		batchSize = 10
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	p := &JobProcessor{
		queue:     queue,
		deps:      deps,
		handlers:  make(map[domain.JobType]HandlerFunc),
		batchSize: batchSize,
		timeout:   timeout,
		now:       time.Now,
	}
	p.Register(domain.JobSendEmail, p.handleSendEmail)
	p.Register(domain.JobVerifyEmail, p.handleVerifyEmail)
	p.Register(domain.JobWarmupEmail, p.handleWarmupEmail)
	p.Register(domain.JobProcessCampaign, p.handleProcessCampaign)
	p.Register(domain.JobUpdateAnalytics, p.handleUpdateAnalytics)
	return p
}

// Register sets the handler for a job type, replacing any existing one.
func (p *JobProcessor) Register(t domain.JobType, h HandlerFunc) {
	p.handlers[t] = h
}

// ProcessBatch claims up to one batch of jobs and runs them in claim order.
// Returns the number of jobs claimed.
func (p *JobProcessor) ProcessBatch(ctx context.Context) (int, error) {
	jobs, err := p.queue.Claim(ctx, p.batchSize)
	if err != nil {
		return 0, err
	}
	for i := range jobs {
		p.process(ctx, &jobs[i])
	}
	return len(jobs), nil
}

func (p *JobProcessor) process(ctx context.Context, job *domain.Job) {
	start := time.Now()
	err := p.run(ctx, job)
	jobDuration.WithLabelValues(string(job.Type)).Observe(time.Since(start).Seconds())

	// Bookkeeping must survive the parent being cancelled mid-job.
	bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err == nil {
		if cerr := p.queue.Complete(bctx, job.ID); cerr != nil {
			logger.Error("complete job failed", "job_id", job.ID, "error", cerr)
			return
		}
		jobsProcessed.WithLabelValues(string(job.Type), "completed").Inc()
		return
	}

	updated, ferr := p.queue.Fail(bctx, job.ID, err)
	if ferr != nil {
		logger.Error("fail job failed", "job_id", job.ID, "cause", err.Error(), "error", ferr)
		return
	}
	outcome := "retry"
	if updated.Status == domain.JobFailed {
		outcome = "failed"
	}
	jobsProcessed.WithLabelValues(string(job.Type), outcome).Inc()
	logger.Warn("job failed", "job_id", job.ID, "job_type", string(job.Type),
		"attempt", job.RetryCount, "outcome", outcome, "error", err.Error())
}

func (p *JobProcessor) run(ctx context.Context, job *domain.Job) (err error) {
	payload, err := domain.DecodePayload(job.Type, job.Payload)
	if err != nil {
		return jobqueue.Permanent(err)
	}
	h, ok := p.handlers[job.Type]
	if !ok {
		return jobqueue.Permanent(fmt.Errorf("%w: no handler for %s", domain.ErrUnknownJobType, job.Type))
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, job, payload)
}

// --- handlers ---------------------------------------------------------------

func (p *JobProcessor) handleSendEmail(ctx context.Context, _ *domain.Job, payload domain.JobPayload) error {
	pl := payload.(domain.SendEmailPayload)
	d := p.deps

	cl, err := d.Campaigns.GetCampaignLead(ctx, pl.CampaignLeadID)
	if err != nil {
		return err
	}
	if cl.Status == domain.LeadSent || cl.Status == domain.LeadUnsubscribed {
		logger.Debug("send skipped, lead already final", "campaign_lead_id", cl.ID, "status", string(cl.Status))
		return nil
	}

	camp, err := d.Campaigns.GetByID(ctx, pl.CampaignID)
	if err != nil {
		return err
	}
	if camp.Status != domain.CampaignActive {
		// Paused after scheduling: hand the lead back so a resume picks it up.
		logger.Info("send deferred, campaign not active", "campaign_id", camp.ID, "status", string(camp.Status))
		return d.Campaigns.RevertScheduled(ctx, cl.ID)
	}

	lead, err := d.Leads.Get(ctx, pl.LeadID)
	if err != nil {
		return err
	}
	inbox, err := d.Inboxes.Get(ctx, pl.InboxID)
	if err != nil {
		return err
	}

	suppressed, err := d.Suppressions.IsSuppressed(ctx, camp.WorkspaceID, lead.Email)
	if err != nil {
		return err
	}
	if suppressed {
		logger.Info("send skipped, address suppressed", "campaign_lead_id", cl.ID, "email", lead.Email)
		return d.Campaigns.FreezeLead(ctx, cl.ID, p.now().UTC())
	}

	msg, err := d.Composer.ComposeCampaignEmail(camp, lead, inbox)
	if err != nil {
		return jobqueue.Permanent(err)
	}
	messageID, err := p.deliver(ctx, inbox, msg)
	if err != nil {
		return err
	}
	emailsSent.WithLabelValues("campaign").Inc()

	recorded, err := d.Campaigns.RecordSend(ctx, cl.ID, camp.ID, inbox.ID, p.now().UTC())
	if err != nil {
		return fmt.Errorf("record send: %w", err)
	}
	if !recorded {
		logger.Warn("send recorded twice", "campaign_lead_id", cl.ID, "message_id", messageID)
	}
	return nil
}

func (p *JobProcessor) handleVerifyEmail(ctx context.Context, _ *domain.Job, payload domain.JobPayload) error {
	pl := payload.(domain.VerifyEmailPayload)

	res, err := p.deps.Verifier.Verify(ctx, pl.Email)
	if err != nil {
		return fmt.Errorf("verify %s: %w", pl.LeadID, err)
	}
	if err := p.deps.Leads.UpdateVerification(ctx, pl.LeadID, res, p.now().UTC()); err != nil {
		return err
	}
	logger.Debug("lead verified", "lead_id", pl.LeadID, "status", string(res.Status), "confidence", res.Confidence)
	return nil
}

func (p *JobProcessor) handleWarmupEmail(ctx context.Context, _ *domain.Job, payload domain.JobPayload) error {
	pl := payload.(domain.WarmupEmailPayload)
	d := p.deps

	inbox, err := d.Inboxes.Get(ctx, pl.EmailAccountID)
	if err != nil {
		return err
	}
	msg, err := d.Composer.ComposeWarmupEmail(inbox, pl.TargetEmail)
	if err != nil {
		return jobqueue.Permanent(err)
	}
	if _, err := p.deliver(ctx, inbox, msg); err != nil {
		return err
	}
	emailsSent.WithLabelValues("warmup").Inc()
	return d.Inboxes.IncrementSentToday(ctx, inbox.ID)
}

func (p *JobProcessor) handleProcessCampaign(ctx context.Context, _ *domain.Job, payload domain.JobPayload) error {
	pl := payload.(domain.ProcessCampaignPayload)

	n, err := p.deps.Scheduler.ScheduleCampaign(ctx, pl.CampaignID)
	if errors.Is(err, ErrNoEligibleInbox) {
		// The periodic scheduler picks the campaign up once capacity frees.
		logger.Info("campaign has no eligible inbox", "campaign_id", pl.CampaignID)
		return nil
	}
	if err != nil {
		return err
	}
	logger.Debug("campaign processed", "campaign_id", pl.CampaignID, "scheduled", n)
	return nil
}

func (p *JobProcessor) handleUpdateAnalytics(ctx context.Context, _ *domain.Job, payload domain.JobPayload) error {
	pl := payload.(domain.UpdateAnalyticsPayload)

	ids := []string{pl.CampaignID}
	if pl.CampaignID == "" {
		var err error
		if ids, err = p.deps.Campaigns.CampaignIDsByWorkspace(ctx, pl.WorkspaceID); err != nil {
			return err
		}
	}
	for _, id := range ids {
		if _, err := p.deps.Campaigns.RecomputeCounters(ctx, id); err != nil {
			return fmt.Errorf("analytics for campaign %s: %w", id, err)
		}
	}
	return nil
}

// deliver resolves the inbox's transport and credentials and sends msg.
func (p *JobProcessor) deliver(ctx context.Context, inbox *domain.Inbox, msg *mailing.Message) (string, error) {
	sender, err := p.deps.Senders.For(inbox.Provider)
	if err != nil {
		return "", jobqueue.Permanent(err)
	}

	var creds *domain.SMTPCredentials
	if inbox.Provider != domain.ProviderSES {
		stored, err := p.deps.Inboxes.Credentials(ctx, inbox.ID)
		if err != nil {
			return "", err
		}
		if creds, err = p.deps.Credentials.Resolve(stored); err != nil {
			return "", jobqueue.Permanent(err)
		}
	}
	return sender.Send(ctx, msg, creds)
}
