package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/maltedev/catalog-scraper/internal/browser"
	"github.com/maltedev/catalog-scraper/internal/config"
	"github.com/maltedev/catalog-scraper/internal/fingerprint"
	"github.com/maltedev/catalog-scraper/internal/parser"
	"github.com/maltedev/catalog-scraper/internal/queue"
	"github.com/maltedev/catalog-scraper/internal/ratelimit"
	"github.com/maltedev/catalog-scraper/internal/scraper"
)

// StartWorker pops jobs until ctx is done or the queue is closed. Jobs run
// one at a time.
func (m *Manager) StartWorker(ctx context.Context) {
	m.logger.Info("job worker started")

	for {
		task, err := m.queue.Pop(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrQueueClosed) || ctx.Err() != nil {
				m.logger.Info("job worker stopping")
				return
			}
			m.logger.Error("failed to pop job", "error", err)
			continue
		}
		m.processJob(ctx, task.JobID)
	}
}

func (m *Manager) processJob(ctx context.Context, jobID string) {
	m.mu.RLock()
	job, ok := m.jobs[jobID]
	var req Request
	if ok {
		req = job.Request
	}
	m.mu.RUnlock()
	if !ok {
		m.logger.Warn("queued job disappeared", "id", jobID)
		return
	}

	m.logger.Info("processing job", "id", jobID, "type", req.Type)
	m.updateJobStatus(jobID, StatusRunning, nil, nil)

	result, err := m.run(ctx, req)
	if err != nil {
		m.logger.Error("job failed", "id", jobID, "error", err)
		m.updateJobStatus(jobID, StatusFailed, result, err)
		return
	}

	m.updateJobStatus(jobID, StatusCompleted, result, nil)
	m.logger.Info("job completed", "id", jobID)
}

func (m *Manager) run(ctx context.Context, req Request) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return m.runner.Run(ctx, req)
}

// PageOpener yields a fresh page and the closer that releases its session.
type PageOpener func() (scraper.Page, io.Closer, error)

// LauncherOpener opens every page in a brand new browser session with its
// own fingerprint.
func LauncherOpener(l *browser.Launcher) PageOpener {
	return func() (scraper.Page, io.Closer, error) {
		session, err := l.Launch()
		if err != nil {
			return nil, nil, err
		}
		page, err := session.NewPage()
		if err != nil {
			session.Close()
			return nil, nil, err
		}
		return page, session, nil
	}
}

// BrowserRunner runs catalog workflows, one browser session per job.
type BrowserRunner struct {
	open   PageOpener
	tk     *scraper.Toolkit
	parser parser.Parser
	store  scraper.Store
	sel    *config.Selectors
	cfg    *config.Config
}

func NewBrowserRunner(open PageOpener, tk *scraper.Toolkit, p parser.Parser, store scraper.Store, sel *config.Selectors, cfg *config.Config) *BrowserRunner {
	return &BrowserRunner{open: open, tk: tk, parser: p, store: store, sel: sel, cfg: cfg}
}

func (r *BrowserRunner) Run(ctx context.Context, req Request) (any, error) {
	page, session, err := r.open()
	if err != nil {
		return nil, fmt.Errorf("failed to open browser session: %w", err)
	}
	defer session.Close()

	switch req.Type {
	case TypeCollect:
		collector := scraper.NewCategoryCollector(r.tk, r.parser, r.store, r.sel.Category, r.cfg.Scraper)
		res, err := collector.Collect(ctx, page, req.CategoryURL, req.MaxPages)
		if res == nil {
			return nil, err
		}
		return res, err

	case TypeDetails:
		limiter := ratelimit.NewAdaptiveRateLimiter(r.cfg.Scraper.ItemDelayMin, r.cfg.Scraper.ItemDelayMax)
		extractor := scraper.NewDetailExtractor(r.tk, r.parser, r.store, r.sel.Product, limiter, r.cfg.Scraper)
		if req.Reviews {
			extractor.WithReviews(r.reviewCollector())
		}
		res, err := extractor.Run(ctx, page, req.Limit)
		if res == nil {
			return nil, err
		}
		return res, err

	case TypeReviews:
		count, err := r.reviewCollector().CollectURL(ctx, page, req.ProductURL, req.ProductID)
		return map[string]int{"reviews": count}, err

	default:
		return nil, fmt.Errorf("unknown job type %q", req.Type)
	}
}

func (r *BrowserRunner) reviewCollector() *scraper.ReviewCollector {
	return scraper.NewReviewCollector(r.tk, r.parser, r.store, r.sel.Reviews)
}

// NewDefaultRunner wires the fingerprint generator, browser launcher,
// toolkit and goquery parser from configuration.
func NewDefaultRunner(cfg *config.Config, sel *config.Selectors, store scraper.Store) (*BrowserRunner, error) {
	gen, err := fingerprint.NewGenerator(cfg.Scraper.UserAgents, nil)
	if err != nil {
		return nil, err
	}
	tk, err := scraper.NewToolkit(cfg, sel)
	if err != nil {
		return nil, err
	}
	launcher := browser.NewLauncher(gen, browser.OptionsFromConfig(cfg))
	return NewBrowserRunner(LauncherOpener(launcher), tk, parser.NewCatalogParser(*sel), store, sel, cfg), nil
}
