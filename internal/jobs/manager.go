// Package jobs queues scrape jobs and runs them one at a time, each in its
// own browser session.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maltedev/catalog-scraper/internal/queue"
)

var ErrJobNotFound = errors.New("job not found")

type Type string

const (
	TypeCollect Type = "collect"
	TypeDetails Type = "details"
	TypeReviews Type = "reviews"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Request describes the work a job should do. Which fields matter depends
// on Type.
type Request struct {
	Type        Type   `json:"type"`
	CategoryURL string `json:"category_url,omitempty"`
	MaxPages    int    `json:"max_pages,omitempty"`
	Limit       int    `json:"limit,omitempty"`
	Reviews     bool   `json:"reviews,omitempty"`
	ProductURL  string `json:"product_url,omitempty"`
	ProductID   string `json:"product_id,omitempty"`
	Priority    int    `json:"priority,omitempty"`
}

// Validate checks that the fields Type needs are present.
func (r Request) Validate() error {
	switch r.Type {
	case TypeCollect:
		if r.CategoryURL == "" {
			return fmt.Errorf("category_url is required for %s jobs", r.Type)
		}
		if r.MaxPages < 0 {
			return fmt.Errorf("max_pages cannot be negative")
		}
	case TypeDetails:
		if r.Limit < 0 {
			return fmt.Errorf("limit cannot be negative")
		}
	case TypeReviews:
		if r.ProductURL == "" {
			return fmt.Errorf("product_url is required for %s jobs", r.Type)
		}
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown job type %q", r.Type)
	}
	return nil
}

type Job struct {
	ID          string     `json:"id"`
	Request     Request    `json:"request"`
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
	Result      any        `json:"result,omitempty"`
}

// Stats represents job statistics
type Stats struct {
	TotalJobs     int     `json:"total_jobs"`
	PendingJobs   int     `json:"pending_jobs"`
	RunningJobs   int     `json:"running_jobs"`
	CompletedJobs int     `json:"completed_jobs"`
	FailedJobs    int     `json:"failed_jobs"`
	QueueSize     int     `json:"queue_size"`
	SuccessRate   float64 `json:"success_rate"`
}

// Runner executes one job and returns its result.
type Runner interface {
	Run(ctx context.Context, req Request) (any, error)
}

type RunnerFunc func(ctx context.Context, req Request) (any, error)

func (f RunnerFunc) Run(ctx context.Context, req Request) (any, error) {
	return f(ctx, req)
}

// Manager tracks jobs in memory and feeds them to the worker through the
// priority queue.
type Manager struct {
	mu     sync.RWMutex
	jobs   map[string]*Job
	queue  queue.Queue
	runner Runner
	logger *slog.Logger
	now    func() time.Time
}

func NewManager(q queue.Queue, runner Runner, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		jobs:   make(map[string]*Job),
		queue:  q,
		runner: runner,
		logger: logger.With("component", "job_manager"),
		now:    time.Now,
	}
}

// CreateJob validates req, records a pending job and queues it.
func (m *Manager) CreateJob(ctx context.Context, req Request) (*Job, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	job := &Job{
		ID:        uuid.New().String(),
		Request:   req,
		Status:    StatusPending,
		CreatedAt: m.now(),
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	err := m.queue.Push(&queue.Task{
		ID:        uuid.New().String(),
		JobID:     job.ID,
		Priority:  req.Priority,
		CreatedAt: job.CreatedAt,
	})
	if err != nil {
		m.mu.Lock()
		delete(m.jobs, job.ID)
		m.mu.Unlock()
		return nil, fmt.Errorf("failed to queue job: %w", err)
	}

	m.logger.Info("job created", "id", job.ID, "type", req.Type, "priority", req.Priority)
	return m.snapshot(job), nil
}

func (m *Manager) GetJob(ctx context.Context, jobID string) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	return m.snapshotLocked(job), nil
}

// ListJobs returns every job, newest first.
func (m *Manager) ListJobs(ctx context.Context) ([]*Job, error) {
	m.mu.RLock()
	jobs := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, m.snapshotLocked(job))
	}
	m.mu.RUnlock()

	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].ID < jobs[j].ID
		}
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs, nil
}

func (m *Manager) GetStats(ctx context.Context) (*Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &Stats{TotalJobs: len(m.jobs), QueueSize: m.queue.Size()}
	for _, job := range m.jobs {
		switch job.Status {
		case StatusPending:
			stats.PendingJobs++
		case StatusRunning:
			stats.RunningJobs++
		case StatusCompleted:
			stats.CompletedJobs++
		case StatusFailed:
			stats.FailedJobs++
		}
	}

	if finished := stats.CompletedJobs + stats.FailedJobs; finished > 0 {
		stats.SuccessRate = float64(stats.CompletedJobs) / float64(finished) * 100
	}
	return stats, nil
}

func (m *Manager) updateJobStatus(jobID string, status Status, result any, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return
	}

	now := m.now()
	job.Status = status
	switch status {
	case StatusRunning:
		job.StartedAt = &now
	case StatusCompleted, StatusFailed:
		job.CompletedAt = &now
		job.Result = result
		if err != nil {
			job.Error = err.Error()
		}
	}
}

func (m *Manager) snapshot(job *Job) *Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked(job)
}

func (m *Manager) snapshotLocked(job *Job) *Job {
	cp := *job
	return &cp
}
