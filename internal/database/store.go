package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/maltedev/catalog-scraper/internal/models"
)

// Store is the PostgreSQL implementation of the scraper store. Product and
// review writes enqueue an outbox event in the same transaction.
type Store struct {
	db     *DB
	outbox *OutboxRepository
	now    func() time.Time
}

func NewStore(db *DB) *Store {
	return &Store{db: db, outbox: NewOutboxRepository(db), now: time.Now}
}

// Outbox exposes the repository the relay drains.
func (s *Store) Outbox() *OutboxRepository {
	return s.outbox
}

// SaveURLs inserts unseen URLs as pending and returns how many were new.
func (s *Store) SaveURLs(ctx context.Context, categoryURL string, urls []string) (int, error) {
	added := 0
	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		now := s.now()
		batch := &pgx.Batch{}
		for _, u := range urls {
			if u == "" {
				continue
			}
			batch.Queue(`
				INSERT INTO product_urls (url, category_url, status, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $4)
				ON CONFLICT (url) DO NOTHING`,
				u, categoryURL, models.URLStatusPending, now)
		}
		if batch.Len() == 0 {
			return nil
		}

		results := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			tag, err := results.Exec()
			if err != nil {
				results.Close()
				return fmt.Errorf("failed to insert url: %w", err)
			}
			added += int(tag.RowsAffected())
		}
		return results.Close()
	})
	if err != nil {
		return 0, err
	}
	return added, nil
}

// PendingURLs returns up to limit pending URLs, oldest first. A limit of zero
// or less returns all of them.
func (s *Store) PendingURLs(ctx context.Context, limit int) ([]models.ProductURL, error) {
	query := `
		SELECT url, category_url, status, last_error, created_at, updated_at
		FROM product_urls
		WHERE status = $1
		ORDER BY created_at ASC, url ASC`
	args := []any{models.URLStatusPending}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending urls: %w", err)
	}
	defer rows.Close()

	var out []models.ProductURL
	for rows.Next() {
		var u models.ProductURL
		var status string
		if err := rows.Scan(&u.URL, &u.CategoryURL, &status, &u.LastError, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan url: %w", err)
		}
		u.Status = models.URLStatus(status)
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}

func (s *Store) UpdateURLStatus(ctx context.Context, url string, status models.URLStatus, errMsg string) error {
	tag, err := s.db.pool.Exec(ctx, `
		UPDATE product_urls
		SET status = $2, last_error = $3, updated_at = $4
		WHERE url = $1`,
		url, status, errMsg, s.now())
	if err != nil {
		return fmt.Errorf("failed to update url status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("url not found: %s", url)
	}
	return nil
}

// ResetProcessing puts URLs an interrupted run left processing back to
// pending.
func (s *Store) ResetProcessing(ctx context.Context) (int, error) {
	tag, err := s.db.pool.Exec(ctx, `
		UPDATE product_urls
		SET status = $1, updated_at = $3
		WHERE status = $2`,
		models.URLStatusPending, models.URLStatusProcessing, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to reset processing urls: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// SaveProduct upserts the product and records a PRODUCT_SCRAPED event.
func (s *Store) SaveProduct(ctx context.Context, product *models.Product) error {
	key := productKey(product)
	if key == "" {
		return fmt.Errorf("product has neither id nor url")
	}

	images, err := json.Marshal(nonNil(product.Images))
	if err != nil {
		return fmt.Errorf("failed to marshal images: %w", err)
	}
	event, err := NewProductScrapedEvent(product)
	if err != nil {
		return err
	}

	return s.db.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO products (id, url, sku, title, images, scraped_at, last_updated)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO UPDATE SET
				url = EXCLUDED.url,
				sku = EXCLUDED.sku,
				title = EXCLUDED.title,
				images = EXCLUDED.images,
				last_updated = EXCLUDED.last_updated`,
			key, product.URL, product.SKU, product.Title, images,
			product.ScrapedAt, product.LastUpdated)
		if err != nil {
			return fmt.Errorf("failed to upsert product: %w", err)
		}
		return s.outbox.InsertWithTx(ctx, tx, event)
	})
}

// SaveReviews upserts reviews and records one REVIEWS_SCRAPED event per
// product.
func (s *Store) SaveReviews(ctx context.Context, reviews []models.Review) error {
	if len(reviews) == 0 {
		return nil
	}

	byProduct := make(map[string][]models.Review)
	var order []string
	for _, r := range reviews {
		if _, ok := byProduct[r.ProductID]; !ok {
			order = append(order, r.ProductID)
		}
		byProduct[r.ProductID] = append(byProduct[r.ProductID], r)
	}

	return s.db.WithTx(ctx, func(tx pgx.Tx) error {
		for _, r := range reviews {
			images, err := json.Marshal(nonNil(r.Images))
			if err != nil {
				return fmt.Errorf("failed to marshal review images: %w", err)
			}
			_, err = tx.Exec(ctx, `
				INSERT INTO reviews (product_id, review_id, images, scraped_at)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (product_id, review_id) DO UPDATE SET
					images = EXCLUDED.images,
					scraped_at = EXCLUDED.scraped_at`,
				r.ProductID, r.ReviewID, images, r.Timestamp)
			if err != nil {
				return fmt.Errorf("failed to upsert review: %w", err)
			}
		}

		for _, productID := range order {
			event, err := NewReviewsScrapedEvent(productID, byProduct[productID])
			if err != nil {
				return err
			}
			if err := s.outbox.InsertWithTx(ctx, tx, event); err != nil {
				return err
			}
		}
		return nil
	})
}

// Stats counts URLs per status plus products and reviews, matching the keys
// of the file store.
func (s *Store) Stats(ctx context.Context) (map[string]int, error) {
	stats := make(map[string]int)

	rows, err := s.db.pool.Query(ctx, `SELECT status, COUNT(*) FROM product_urls GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count urls: %w", err)
	}
	total := 0
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan url count: %w", err)
		}
		stats[status] = n
		total += n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	stats["total"] = total

	var products, reviews int
	if err := s.db.pool.QueryRow(ctx, `SELECT COUNT(*) FROM products`).Scan(&products); err != nil {
		return nil, fmt.Errorf("failed to count products: %w", err)
	}
	if err := s.db.pool.QueryRow(ctx, `SELECT COUNT(*) FROM reviews`).Scan(&reviews); err != nil {
		return nil, fmt.Errorf("failed to count reviews: %w", err)
	}
	stats["products"] = products
	stats["reviews"] = reviews

	return stats, nil
}

func productKey(p *models.Product) string {
	if p.ID != "" {
		return p.ID
	}
	return p.URL
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
