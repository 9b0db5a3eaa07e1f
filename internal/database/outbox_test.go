package database

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/catalog-scraper/internal/models"
)

func TestNextRetryDelay(t *testing.T) {
	tests := []struct {
		retryCount int
		want       time.Duration
	}{
		{retryCount: -1, want: time.Second},
		{retryCount: 0, want: time.Second},
		{retryCount: 1, want: 2 * time.Second},
		{retryCount: 3, want: 8 * time.Second},
		{retryCount: 8, want: 256 * time.Second},
		{retryCount: 9, want: 300 * time.Second},
		{retryCount: 64, want: 300 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, NextRetryDelay(tt.retryCount), "retry %d", tt.retryCount)
	}
}

func TestNextStatus(t *testing.T) {
	for i := 1; i < MaxRetryCount; i++ {
		assert.Equal(t, OutboxStatusFailed, NextStatus(i))
	}
	assert.Equal(t, OutboxStatusDeadLetter, NextStatus(MaxRetryCount))
	assert.Equal(t, OutboxStatusDeadLetter, NextStatus(MaxRetryCount+3))
}

func TestNewProductScrapedEvent(t *testing.T) {
	p := &models.Product{ID: "sw2211", URL: "https://shein.com/p-sw2211.html", SKU: "sw2211", Title: "Dress"}

	event, err := NewProductScrapedEvent(p)
	require.NoError(t, err)
	assert.Equal(t, AggregateProduct, event.AggregateType)
	assert.Equal(t, "sw2211", event.AggregateID)
	assert.Equal(t, EventProductScraped, event.EventType)
	assert.Equal(t, StreamCatalogProducts, event.TargetStream)

	var decoded models.Product
	require.NoError(t, json.Unmarshal(event.Payload, &decoded))
	assert.Equal(t, "Dress", decoded.Title)

	p.ID = ""
	event, err = NewProductScrapedEvent(p)
	require.NoError(t, err)
	assert.Equal(t, p.URL, event.AggregateID, "url is the key when there is no id")
}

func TestNewReviewsScrapedEvent(t *testing.T) {
	reviews := []models.Review{{ReviewID: "1", ProductID: "sw2211"}, {ReviewID: "2", ProductID: "sw2211"}}

	event, err := NewReviewsScrapedEvent("sw2211", reviews)
	require.NoError(t, err)
	assert.Equal(t, EventReviewsScraped, event.EventType)

	var payload struct {
		ProductID string `json:"product_id"`
		Count     int    `json:"count"`
	}
	require.NoError(t, json.Unmarshal(event.Payload, &payload))
	assert.Equal(t, "sw2211", payload.ProductID)
	assert.Equal(t, 2, payload.Count)
}

func TestOutboxRepository_InsertWithTx(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewOutboxRepository(db)

	t.Run("successful insert with transaction", func(t *testing.T) {
		event := &OutboxEvent{
			AggregateType: AggregateProduct,
			AggregateID:   "insert-" + uuid.NewString(),
			EventType:     EventProductScraped,
			Payload:       json.RawMessage(`{"id":"x"}`),
		}

		err := db.WithTx(ctx, func(tx pgx.Tx) error {
			return repo.InsertWithTx(ctx, tx, event)
		})

		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, event.ID)
		assert.Equal(t, OutboxStatusPending, event.Status)
		assert.Equal(t, StreamCatalogProducts, event.TargetStream)
		assert.False(t, event.CreatedAt.IsZero())
	})

	t.Run("rollback on transaction failure", func(t *testing.T) {
		id := "rollback-" + uuid.NewString()
		event := &OutboxEvent{
			AggregateType: AggregateProduct,
			AggregateID:   id,
			EventType:     EventProductScraped,
			Payload:       json.RawMessage(`{}`),
		}

		err := db.WithTx(ctx, func(tx pgx.Tx) error {
			if err := repo.InsertWithTx(ctx, tx, event); err != nil {
				return err
			}
			return pgx.ErrTxClosed
		})
		assert.Error(t, err)

		events, err := repo.GetPending(ctx, 1000)
		require.NoError(t, err)
		for _, e := range events {
			assert.NotEqual(t, id, e.AggregateID)
		}
	})

	t.Run("missing fields are rejected", func(t *testing.T) {
		err := db.WithTx(ctx, func(tx pgx.Tx) error {
			return repo.InsertWithTx(ctx, tx, &OutboxEvent{EventType: EventProductScraped})
		})
		assert.Error(t, err)
	})
}

func TestOutboxRepository_MarkFailedMovesToDeadLetter(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewOutboxRepository(db)

	event := &OutboxEvent{
		AggregateType: AggregateProduct,
		AggregateID:   "dead-" + uuid.NewString(),
		EventType:     EventProductScraped,
		Payload:       json.RawMessage(`{}`),
	}
	require.NoError(t, db.WithTx(ctx, func(tx pgx.Tx) error {
		return repo.InsertWithTx(ctx, tx, event)
	}))

	for i := 0; i < MaxRetryCount; i++ {
		require.NoError(t, repo.MarkFailed(ctx, event.ID, assert.AnError))
	}

	var status string
	var retryCount int
	err := db.QueryRow(ctx, "SELECT status, retry_count FROM outbox_event WHERE id = $1", event.ID).
		Scan(&status, &retryCount)
	require.NoError(t, err)
	assert.Equal(t, OutboxStatusDeadLetter, status)
	assert.Equal(t, MaxRetryCount, retryCount)
}

// setupTestDB connects to TEST_DATABASE_DSN and applies the schema, skipping
// the test when no database is configured.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("Test database not configured")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	db := &DB{pool: pool}
	require.NoError(t, db.Migrate(ctx))
	return db
}
