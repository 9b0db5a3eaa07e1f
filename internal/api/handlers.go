// Package api is the HTTP surface for submitting and inspecting scrape jobs.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"

	"github.com/maltedev/catalog-scraper/internal/jobs"
	"github.com/maltedev/catalog-scraper/internal/queue"
)

const (
	pendingWarnThreshold     = 1000
	deadLetterErrorThreshold = 100
)

type JobService interface {
	CreateJob(ctx context.Context, req jobs.Request) (*jobs.Job, error)
	GetJob(ctx context.Context, jobID string) (*jobs.Job, error)
	ListJobs(ctx context.Context) ([]*jobs.Job, error)
	GetStats(ctx context.Context) (*jobs.Stats, error)
}

// CatalogStats reports stored URL, product and review counts.
type CatalogStats interface {
	Stats(ctx context.Context) (map[string]int, error)
}

// OutboxBacklog reports undelivered and dead-lettered outbox events.
type OutboxBacklog interface {
	Backlog(ctx context.Context) (pending, deadLetter int64, err error)
}

type Handlers struct {
	jobs    JobService
	catalog CatalogStats
	outbox  OutboxBacklog
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewHandlers allows jobsPerMinute submissions per minute with a burst of
// the same size. Zero or less disables the limit.
func NewHandlers(jobService JobService, catalog CatalogStats, jobsPerMinute int, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if jobsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(jobsPerMinute)), jobsPerMinute)
	}
	return &Handlers{
		jobs:    jobService,
		catalog: catalog,
		limiter: limiter,
		logger:  logger.With("component", "api"),
	}
}

// WithOutbox makes the health check report the outbox backlog.
func (h *Handlers) WithOutbox(o OutboxBacklog) *Handlers {
	h.outbox = o
	return h
}

type CreateJobResponse struct {
	JobID   string      `json:"job_id"`
	Status  jobs.Status `json:"status"`
	Message string      `json:"message"`
}

func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	if !h.limiter.Allow() {
		w.Header().Set("Retry-After", "60")
		h.respondError(w, http.StatusTooManyRequests, "too many job submissions")
		return
	}

	var req jobs.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := h.jobs.CreateJob(r.Context(), req)
	if err != nil {
		if errors.Is(err, queue.ErrQueueClosed) {
			h.respondError(w, http.StatusServiceUnavailable, "server is shutting down")
			return
		}
		h.logger.Error("failed to create job", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to create job")
		return
	}

	h.respondJSON(w, http.StatusCreated, CreateJobResponse{
		JobID:   job.ID,
		Status:  job.Status,
		Message: "Job created successfully",
	})
}

func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if jobID == "" {
		h.respondError(w, http.StatusBadRequest, "job ID is required")
		return
	}

	job, err := h.jobs.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			h.respondError(w, http.StatusNotFound, "job not found")
			return
		}
		h.logger.Error("failed to get job", "id", jobID, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to get job")
		return
	}

	h.respondJSON(w, http.StatusOK, job)
}

func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	list, err := h.jobs.ListJobs(r.Context())
	if err != nil {
		h.logger.Error("failed to list jobs", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	if list == nil {
		list = []*jobs.Job{}
	}

	h.respondJSON(w, http.StatusOK, list)
}

type StatsResponse struct {
	Jobs    *jobs.Stats    `json:"jobs"`
	Catalog map[string]int `json:"catalog,omitempty"`
}

func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	jobStats, err := h.jobs.GetStats(r.Context())
	if err != nil {
		h.logger.Error("failed to get stats", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	resp := StatsResponse{Jobs: jobStats}
	if h.catalog != nil {
		catalog, err := h.catalog.Stats(r.Context())
		if err != nil {
			h.logger.Error("failed to get catalog stats", "error", err)
			h.respondError(w, http.StatusInternalServerError, "failed to get stats")
			return
		}
		resp.Catalog = catalog
	}

	h.respondJSON(w, http.StatusOK, resp)
}

// Health reports ok, or warning/error when the outbox backs up.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	health := map[string]any{"status": "ok"}
	status := http.StatusOK

	if h.outbox != nil {
		pending, deadLetter, err := h.outbox.Backlog(r.Context())
		if err != nil {
			h.logger.Warn("failed to read outbox backlog", "error", err)
			health["status"] = "warning"
			health["message"] = "outbox backlog unavailable"
		} else {
			health["outbox"] = map[string]int64{
				"pending":     pending,
				"dead_letter": deadLetter,
			}
			if pending > pendingWarnThreshold {
				health["status"] = "warning"
				health["message"] = "High number of pending outbox events"
			}
			if deadLetter > deadLetterErrorThreshold {
				health["status"] = "error"
				health["message"] = "High number of dead letter events"
				status = http.StatusServiceUnavailable
			}
		}
	}

	h.respondJSON(w, status, health)
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
