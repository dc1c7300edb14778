package worker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ignite/outreach-core/internal/domain"
	"github.com/ignite/outreach-core/internal/mailing"
	"github.com/ignite/outreach-core/internal/repository/memory"
	"github.com/ignite/outreach-core/internal/service/jobqueue"
	"github.com/ignite/outreach-core/internal/verify"
)

var testNow = time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

// fakeStore is an in-memory stand-in for the Postgres repositories. The
// thin wrapper types below give each repository its own method set.
type fakeStore struct {
	mu sync.Mutex

	campaigns     map[string]*domain.Campaign
	leads         map[string]*domain.Lead
	campaignLeads map[string]*domain.CampaignLead
	inboxes       map[string]*domain.Inbox
	creds         map[string]*domain.InboxCredentials
	suppressed    map[string]bool
	settings      map[string]*domain.WorkspaceSettings
	health        map[string][]domain.CampaignHealth
	snapshots     []domain.InboxHealthSnapshot
	events        []domain.AutoPauseEvent
	verified      map[string]domain.Verification
	resetOn       map[string]time.Time
	providers     map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		campaigns:     map[string]*domain.Campaign{},
		leads:         map[string]*domain.Lead{},
		campaignLeads: map[string]*domain.CampaignLead{},
		inboxes:       map[string]*domain.Inbox{},
		creds:         map[string]*domain.InboxCredentials{},
		suppressed:    map[string]bool{},
		settings:      map[string]*domain.WorkspaceSettings{},
		health:        map[string][]domain.CampaignHealth{},
		verified:      map[string]domain.Verification{},
		resetOn:       map[string]time.Time{},
		providers:     map[string]string{},
	}
}

func (s *fakeStore) addCampaign(id, ws string, status domain.CampaignStatus) *domain.Campaign {
	c := &domain.Campaign{ID: id, WorkspaceID: ws, Name: "Campaign " + id, Status: status, CreatedAt: testNow}
	s.campaigns[id] = c
	return c
}

func (s *fakeStore) addLead(campaignID, leadID, email string, age time.Duration) *domain.CampaignLead {
	ws := s.campaigns[campaignID].WorkspaceID
	s.leads[leadID] = &domain.Lead{ID: leadID, WorkspaceID: ws, Email: email, CreatedAt: testNow}
	cl := &domain.CampaignLead{
		ID:         "cl-" + leadID,
		CampaignID: campaignID,
		LeadID:     leadID,
		Status:     domain.LeadPending,
		CreatedAt:  testNow.Add(-age),
	}
	s.campaignLeads[cl.ID] = cl
	return cl
}

func (s *fakeStore) addInbox(in domain.Inbox) *domain.Inbox {
	if in.Provider == "" {
		in.Provider = domain.ProviderSMTP
	}
	s.inboxes[in.ID] = &in
	pw := "pw-" + in.ID
	s.creds[in.ID] = &domain.InboxCredentials{
		InboxID: in.ID, Email: in.Email, SMTPHost: "smtp.test", SMTPPort: 587, SMTPPassword: &pw,
	}
	return &in
}

func (s *fakeStore) lead(id string) domain.CampaignLead {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.campaignLeads[id]
}

func (s *fakeStore) inbox(id string) domain.Inbox {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.inboxes[id]
}

func (s *fakeStore) campaign(id string) domain.Campaign {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.campaigns[id]
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, domain.ErrNotFound)
}

// --- campaigns --------------------------------------------------------------

type fakeCampaigns struct{ *fakeStore }

func (s fakeCampaigns) GetByID(_ context.Context, id string) (*domain.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return nil, notFound("campaign", id)
	}
	cp := *c
	return &cp, nil
}

func (s fakeCampaigns) ActiveCampaignIDs(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, c := range s.campaigns {
		if c.Status == domain.CampaignActive {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s fakeCampaigns) CampaignIDsByWorkspace(_ context.Context, ws string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, c := range s.campaigns {
		if c.WorkspaceID == ws {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s fakeCampaigns) PendingLeads(_ context.Context, campaignID, ws string, limit int) ([]domain.PendingLead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var cls []*domain.CampaignLead
	for _, cl := range s.campaignLeads {
		if cl.CampaignID != campaignID || cl.Status != domain.LeadPending {
			continue
		}
		if s.suppressed[ws+"|"+domain.NormalizeEmail(s.leads[cl.LeadID].Email)] {
			continue
		}
		cls = append(cls, cl)
	}
	sort.Slice(cls, func(i, j int) bool { return cls[i].CreatedAt.Before(cls[j].CreatedAt) })
	if len(cls) > limit {
		cls = cls[:limit]
	}
	out := make([]domain.PendingLead, len(cls))
	for i, cl := range cls {
		out[i] = domain.PendingLead{CampaignLeadID: cl.ID, LeadID: cl.LeadID, Email: s.leads[cl.LeadID].Email}
	}
	return out, nil
}

func (s fakeCampaigns) MarkScheduled(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cl := s.campaignLeads[id]
	if cl == nil || cl.Status != domain.LeadPending {
		return false, nil
	}
	cl.Status = domain.LeadScheduled
	return true, nil
}

func (s fakeCampaigns) RevertScheduled(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cl := s.campaignLeads[id]; cl != nil && cl.Status == domain.LeadScheduled {
		cl.Status = domain.LeadPending
	}
	return nil
}

func (s fakeCampaigns) GetCampaignLead(_ context.Context, id string) (*domain.CampaignLead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cl, ok := s.campaignLeads[id]
	if !ok {
		return nil, notFound("campaign lead", id)
	}
	cp := *cl
	return &cp, nil
}

func (s fakeCampaigns) RecordSend(_ context.Context, clID, campaignID, inboxID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cl := s.campaignLeads[clID]
	if cl == nil || !cl.Status.CanAdvanceTo(domain.LeadSent) {
		return false, nil
	}
	cl.Status = domain.LeadSent
	cl.SentAt = &at
	s.campaigns[campaignID].Sent++
	s.inboxes[inboxID].SentToday++
	return true, nil
}

func (s fakeCampaigns) FreezeLead(_ context.Context, clID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cl := s.campaignLeads[clID]; cl != nil && cl.Status.CanAdvanceTo(domain.LeadUnsubscribed) {
		cl.Status = domain.LeadUnsubscribed
		cl.UnsubscribedAt = &at
	}
	return nil
}

func (s fakeCampaigns) RecomputeCounters(_ context.Context, campaignID string) (*domain.CampaignCounters, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[campaignID]
	if !ok {
		return nil, notFound("campaign", campaignID)
	}
	var out domain.CampaignCounters
	for _, cl := range s.campaignLeads {
		if cl.CampaignID != campaignID {
			continue
		}
		out.TotalLeads++
		if cl.SentAt != nil {
			out.Sent++
		}
		if cl.RepliedAt != nil {
			out.Replied++
		}
	}
	c.TotalLeads, c.Sent, c.Replied = out.TotalLeads, out.Sent, out.Replied
	return &out, nil
}

// --- inboxes ----------------------------------------------------------------

type fakeInboxes struct{ *fakeStore }

func (s fakeInboxes) Get(_ context.Context, id string) (*domain.Inbox, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	in, ok := s.inboxes[id]
	if !ok {
		return nil, notFound("inbox", id)
	}
	cp := *in
	return &cp, nil
}

func (s fakeInboxes) Eligible(_ context.Context, ws string, minHealth float64) ([]domain.Inbox, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Inbox
	for _, in := range s.inboxes {
		if in.WorkspaceID == ws && in.Eligible(minHealth) {
			out = append(out, *in)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].HealthScore != out[j].HealthScore {
			return out[i].HealthScore > out[j].HealthScore
		}
		return out[i].SentToday < out[j].SentToday
	})
	return out, nil
}

func (s fakeInboxes) list(match func(*domain.Inbox) bool) []domain.Inbox {
	var out []domain.Inbox
	for _, in := range s.inboxes {
		if match(in) {
			out = append(out, *in)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s fakeInboxes) ListByStatus(_ context.Context, statuses ...domain.WarmupStatus) ([]domain.Inbox, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list(func(in *domain.Inbox) bool {
		for _, st := range statuses {
			if in.WarmupStatus == st {
				return true
			}
		}
		return false
	}), nil
}

func (s fakeInboxes) ListByWorkspace(_ context.Context, ws string) ([]domain.Inbox, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list(func(in *domain.Inbox) bool { return in.WorkspaceID == ws }), nil
}

func (s fakeInboxes) SetDailyLimit(_ context.Context, id string, limit int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inboxes[id].DailyLimit = limit
	return nil
}

func (s fakeInboxes) Graduate(_ context.Context, id string, limit int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if in := s.inboxes[id]; in.WarmupStatus == domain.WarmupWarming {
		in.WarmupStatus = domain.WarmupActive
		in.DailyLimit = limit
	}
	return nil
}

func (s fakeInboxes) SetWarmupStatus(_ context.Context, id string, status domain.WarmupStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inboxes[id].WarmupStatus = status
	return nil
}

func (s fakeInboxes) RecoverHealth(_ context.Context, step float64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, in := range s.inboxes {
		if (in.WarmupStatus == domain.WarmupWarming || in.WarmupStatus == domain.WarmupActive) && in.HealthScore < domain.MaxHealthScore {
			in.HealthScore += step
			if in.HealthScore > domain.MaxHealthScore {
				in.HealthScore = domain.MaxHealthScore
			}
			n++
		}
	}
	return n, nil
}

func (s fakeInboxes) ResetDailyCounters(_ context.Context, day time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, in := range s.inboxes {
		if last, ok := s.resetOn[id]; ok && last.Equal(day) {
			continue
		}
		in.SentToday = 0
		s.resetOn[id] = day
		n++
	}
	return n, nil
}

func (s fakeInboxes) IncrementSentToday(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inboxes[id].SentToday++
	return nil
}

func (s fakeInboxes) SetProviderLimit(_ context.Context, id, provider string, limit int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inboxes[id].ProviderDailyLimit = limit
	s.providers[id] = provider
	return nil
}

func (s fakeInboxes) Credentials(_ context.Context, id string) (*domain.InboxCredentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.creds[id]
	if !ok {
		return nil, notFound("inbox", id)
	}
	return c, nil
}

// --- leads, suppression -----------------------------------------------------

type fakeLeads struct{ *fakeStore }

func (s fakeLeads) Get(_ context.Context, id string) (*domain.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[id]
	if !ok {
		return nil, notFound("lead", id)
	}
	cp := *l
	return &cp, nil
}

func (s fakeLeads) UpdateVerification(_ context.Context, id string, v domain.Verification, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.leads[id]; !ok {
		return notFound("lead", id)
	}
	s.verified[id] = v
	return nil
}

type fakeSuppressions struct{ *fakeStore }

func (s fakeSuppressions) IsSuppressed(_ context.Context, ws, email string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.suppressed[ws+"|"+domain.NormalizeEmail(email)], nil
}

// --- health -----------------------------------------------------------------

type fakeHealth struct{ *fakeStore }

func (s fakeHealth) WorkspacesWithActiveCampaigns(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[string]bool{}
	var out []string
	for _, c := range s.campaigns {
		if c.Status == domain.CampaignActive && !seen[c.WorkspaceID] {
			seen[c.WorkspaceID] = true
			out = append(out, c.WorkspaceID)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s fakeHealth) Settings(_ context.Context, ws string) (*domain.WorkspaceSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings[ws], nil
}

func (s fakeHealth) InsertSnapshots(_ context.Context, _ string, snaps []domain.InboxHealthSnapshot, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, snaps...)
	return nil
}

func (s fakeHealth) CampaignHealth(_ context.Context, ws string, _, _ time.Time) ([]domain.CampaignHealth, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.CampaignHealth
	for _, h := range s.health[ws] {
		c := s.campaigns[h.CampaignID]
		if c != nil && c.Status == domain.CampaignActive && !c.AutoPaused {
			out = append(out, h)
		}
	}
	return out, nil
}

func (s fakeHealth) PauseCampaign(_ context.Context, ev domain.AutoPauseEvent) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.campaigns[ev.CampaignID]
	if c == nil || c.Status != domain.CampaignActive || c.AutoPaused {
		return false, nil
	}
	c.Status = domain.CampaignPaused
	c.AutoPaused = true
	detail := ev.PauseReasonDetail
	c.AutoPauseReason = &detail
	at := ev.CreatedAt
	c.PausedAt = &at
	s.events = append(s.events, ev)
	return true, nil
}

// --- delivery ---------------------------------------------------------------

type fakeSender struct {
	mu   sync.Mutex
	sent []*mailing.Message
	err  error
}

func (f *fakeSender) Send(_ context.Context, msg *mailing.Message, _ *domain.SMTPCredentials) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, msg)
	return fmt.Sprintf("<msg-%d@test>", len(f.sent)), nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type stubVerifier struct {
	res verify.Result
	err error
}

func (v stubVerifier) Verify(context.Context, string) (verify.Result, error) { return v.res, v.err }

// failingQueue rejects every enqueue.
type failingQueue struct{}

func (failingQueue) Enqueue(context.Context, domain.JobPayload, *string) (string, error) {
	return "", errors.New("queue unavailable")
}

// harness wires real queue + fakes the way cmd/worker wires the Postgres
// repositories.
type harness struct {
	store     *fakeStore
	repo      *memory.JobRepo
	queue     *jobqueue.Queue
	sender    *fakeSender
	scheduler *CampaignScheduler
	processor *JobProcessor
	now       time.Time
}

func newHarness() *harness {
	h := &harness{store: newFakeStore(), repo: memory.NewJobRepo(), sender: &fakeSender{}, now: testNow}
	h.queue = jobqueue.NewQueue(h.repo, jobqueue.WithClock(func() time.Time { return h.now }))
	h.scheduler = NewCampaignScheduler(fakeCampaigns{h.store}, fakeInboxes{h.store}, h.queue, SchedulerConfig{})

	creds, err := mailing.NewCredentialResolver("", "default-key-v1")
	if err != nil {
		panic(err)
	}
	h.processor = NewJobProcessor(h.queue, ProcessorDeps{
		Campaigns:    fakeCampaigns{h.store},
		Inboxes:      fakeInboxes{h.store},
		Leads:        fakeLeads{h.store},
		Suppressions: fakeSuppressions{h.store},
		Verifier:     stubVerifier{res: verify.Result{Status: domain.VerificationValid, Confidence: 0.9}},
		Composer:     mailing.NewComposer(mailing.NewRenderer(), "https://app.test"),
		Senders:      mailing.NewRouter(h.sender, h.sender),
		Credentials:  creds,
		Scheduler:    h.scheduler,
	}, 10, time.Second)
	h.processor.now = func() time.Time { return h.now }
	return h
}

func (h *harness) jobsOf(t domain.JobType) []domain.Job {
	var out []domain.Job
	for _, j := range h.repo.All() {
		if j.Type == t {
			out = append(out, j)
		}
	}
	return out
}
