// Package api is the worker's operations HTTP surface: liveness, metrics,
// job inspection, one-shot duty triggers and campaign resume.
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/outreach-core/internal/domain"
	"github.com/ignite/outreach-core/internal/pkg/httputil"
	"github.com/ignite/outreach-core/internal/pkg/logger"
	"github.com/ignite/outreach-core/internal/worker"
)

// JobQueue reports job counts by status and looks up single jobs.
type JobQueue interface {
	Stats(ctx context.Context) (map[domain.JobStatus]int, error)
	Get(ctx context.Context, id string) (*domain.Job, error)
}

// DutyRunner runs a named driver duty once.
type DutyRunner interface {
	RunDuty(ctx context.Context, name string) (bool, error)
}

type CampaignResumer interface {
	Resume(ctx context.Context, workspaceID, id string) error
}

// Handlers serves the ops routes.
type Handlers struct {
	queue     JobQueue
	driver    DutyRunner
	campaigns CampaignResumer
	now       func() time.Time
}

func NewHandlers(queue JobQueue, driver DutyRunner, campaigns CampaignResumer) *Handlers {
	return &Handlers{queue: queue, driver: driver, campaigns: campaigns, now: time.Now}
}

// HealthCheck answers 200 with job counts, or 503 when the job table can't
// be read.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	counts, err := h.queue.Stats(ctx)
	if err != nil {
		logger.Warn("health check failed", "error", err)
		httputil.JSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "unavailable",
			"time":   h.now().UTC(),
		})
		return
	}
	jobs := make(map[string]int, len(counts))
	for status, n := range counts {
		jobs[string(status)] = n
	}
	httputil.OK(w, map[string]any{
		"status": "ok",
		"time":   h.now().UTC(),
		"jobs":   jobs,
	})
}

// GetJob returns one job with its status, retry count and last error.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.queue.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.FromError(w, err)
		return
	}
	httputil.OK(w, job)
}

// RunDuty triggers one run of a driver duty. Leader duties held by another
// instance answer 409 with ran=false.
func (h *Handlers) RunDuty(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "duty")
	start := h.now()

	ran, err := h.driver.RunDuty(r.Context(), name)
	switch {
	case errors.Is(err, worker.ErrUnknownDuty):
		httputil.Error(w, http.StatusNotFound, "unknown_duty", err.Error())
		return
	case err != nil:
		httputil.InternalError(w, err)
		return
	}

	status := http.StatusOK
	if !ran {
		status = http.StatusConflict
	}
	httputil.JSON(w, status, map[string]any{
		"duty":        name,
		"ran":         ran,
		"duration_ms": h.now().Sub(start).Milliseconds(),
	})
}

// ResumeCampaign resumes a paused campaign and resolves its auto-pause events.
func (h *Handlers) ResumeCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ws := strings.TrimSpace(r.URL.Query().Get("workspace_id"))
	if ws == "" {
		httputil.BadRequest(w, "workspace_id is required")
		return
	}
	if err := h.campaigns.Resume(r.Context(), ws, id); err != nil {
		httputil.FromError(w, err)
		return
	}
	logger.Info("campaign resumed", "workspace_id", ws, "campaign_id", id)
	httputil.OK(w, map[string]any{"campaign_id": id, "status": domain.CampaignActive})
}
