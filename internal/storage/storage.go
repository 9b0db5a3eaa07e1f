// Package storage is the local JSON file backend of the scraper store.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/maltedev/catalog-scraper/internal/models"
)

type document struct {
	URLs     map[string]*models.ProductURL `json:"urls"`
	Products map[string]*models.Product    `json:"products"`
	Reviews  map[string]*models.Review     `json:"reviews"`
}

// FileStore keeps everything in one JSON document, rewritten atomically on
// every change.
type FileStore struct {
	mu       sync.RWMutex
	doc      document
	filename string
	now      func() time.Time
}

func NewFileStore(filename string) (*FileStore, error) {
	fs := &FileStore{
		doc: document{
			URLs:     make(map[string]*models.ProductURL),
			Products: make(map[string]*models.Product),
			Reviews:  make(map[string]*models.Review),
		},
		filename: filename,
		now:      time.Now,
	}

	if err := fs.Load(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	return fs, nil
}

// SaveURLs adds unseen URLs as pending and returns how many were new.
func (fs *FileStore) SaveURLs(ctx context.Context, categoryURL string, urls []string) (int, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	added := 0
	now := fs.now()
	for _, u := range urls {
		if u == "" {
			continue
		}
		if _, exists := fs.doc.URLs[u]; exists {
			continue
		}
		fs.doc.URLs[u] = &models.ProductURL{
			URL:         u,
			CategoryURL: categoryURL,
			Status:      models.URLStatusPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		added++
	}

	if added == 0 {
		return 0, nil
	}
	return added, fs.save()
}

// PendingURLs returns up to limit pending URLs, oldest first. A limit of
// zero or less means all.
func (fs *FileStore) PendingURLs(ctx context.Context, limit int) ([]models.ProductURL, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	var pending []models.ProductURL
	for _, u := range fs.doc.URLs {
		if u.Status == models.URLStatusPending {
			pending = append(pending, *u)
		}
	}

	sort.Slice(pending, func(i, j int) bool {
		if !pending[i].CreatedAt.Equal(pending[j].CreatedAt) {
			return pending[i].CreatedAt.Before(pending[j].CreatedAt)
		}
		return pending[i].URL < pending[j].URL
	})

	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

func (fs *FileStore) UpdateURLStatus(ctx context.Context, url string, status models.URLStatus, errMsg string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	u, exists := fs.doc.URLs[url]
	if !exists {
		return fmt.Errorf("url not found: %s", url)
	}

	u.Status = status
	u.LastError = errMsg
	u.UpdatedAt = fs.now()

	return fs.save()
}

func (fs *FileStore) ResetProcessing(ctx context.Context) (int, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	n := 0
	now := fs.now()
	for _, u := range fs.doc.URLs {
		if u.Status == models.URLStatusProcessing {
			u.Status = models.URLStatusPending
			u.UpdatedAt = now
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	return n, fs.save()
}

func (fs *FileStore) SaveProduct(ctx context.Context, product *models.Product) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	key := product.ID
	if key == "" {
		key = product.URL
	}
	if key == "" {
		return fmt.Errorf("product has neither id nor url")
	}

	cp := *product
	cp.Images = append([]string(nil), product.Images...)
	fs.doc.Products[key] = &cp

	return fs.save()
}

func (fs *FileStore) SaveReviews(ctx context.Context, reviews []models.Review) error {
	if len(reviews) == 0 {
		return nil
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	for _, r := range reviews {
		r := r
		r.Images = append([]string(nil), r.Images...)
		fs.doc.Reviews[r.ProductID+"/"+r.ReviewID] = &r
	}

	return fs.save()
}

func (fs *FileStore) Product(id string) (*models.Product, bool) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	p, ok := fs.doc.Products[id]
	if !ok {
		return nil, false
	}
	cp := *p
	return &cp, true
}

// Stats counts URLs per status plus products and reviews.
func (fs *FileStore) Stats(ctx context.Context) (map[string]int, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	stats := make(map[string]int)
	for _, u := range fs.doc.URLs {
		stats[string(u.Status)]++
	}
	stats["total"] = len(fs.doc.URLs)
	stats["products"] = len(fs.doc.Products)
	stats["reviews"] = len(fs.doc.Reviews)
	return stats, nil
}

func (fs *FileStore) save() error {
	data, err := json.MarshalIndent(fs.doc, "", "  ")
	if err != nil {
		return err
	}

	if dir := filepath.Dir(fs.filename); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	tmpFile := fs.filename + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0o644); err != nil {
		return err
	}

	return os.Rename(tmpFile, fs.filename)
}

func (fs *FileStore) Load() error {
	data, err := os.ReadFile(fs.filename)
	if err != nil {
		return err
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to decode %s: %w", fs.filename, err)
	}
	if doc.URLs != nil {
		fs.doc.URLs = doc.URLs
	}
	if doc.Products != nil {
		fs.doc.Products = doc.Products
	}
	if doc.Reviews != nil {
		fs.doc.Reviews = doc.Reviews
	}
	return nil
}
