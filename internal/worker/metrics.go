package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outreach_jobs_processed_total",
			Help: "Jobs processed by type and outcome (completed, retry, failed)",
		},
		[]string{"job_type", "outcome"},
	)

	jobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "outreach_job_duration_seconds",
			Help:    "Handler duration per job type",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"job_type"},
	)

	emailsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outreach_emails_sent_total",
			Help: "Emails handed to a transport, by kind (campaign, warmup)",
		},
		[]string{"kind"},
	)

	leadsScheduled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "outreach_leads_scheduled_total",
			Help: "Campaign leads assigned to an inbox and enqueued for sending",
		},
	)

	campaignsAutoPaused = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outreach_campaigns_auto_paused_total",
			Help: "Campaigns paused by the circuit breaker, by reason",
		},
		[]string{"reason"},
	)

	inboxesPaused = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "outreach_inboxes_paused_total",
			Help: "Inboxes paused for critical health",
		},
	)

	dutyRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outreach_duty_runs_total",
			Help: "Periodic duty executions by duty and outcome (ok, error, skipped)",
		},
		[]string{"duty", "outcome"},
	)
)
