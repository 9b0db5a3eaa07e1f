package database

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockRedisClient struct {
	mock.Mock
}

func (m *MockRedisClient) XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd {
	mockArgs := m.Called(ctx, args)
	cmd := redis.NewStringCmd(ctx)
	if mockArgs.Get(0) != nil {
		cmd.SetErr(mockArgs.Error(0))
	} else {
		cmd.SetVal("1234567890-0")
	}
	return cmd
}

func (m *MockRedisClient) Close() error {
	args := m.Called()
	return args.Error(0)
}

type MockOutboxRepository struct {
	mock.Mock
}

func (m *MockOutboxRepository) GetPending(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*OutboxEvent), args.Error(1)
}

func (m *MockOutboxRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockOutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, err error) error {
	args := m.Called(ctx, id, err)
	return args.Error(0)
}

func (m *MockOutboxRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]int64), args.Error(1)
}

func streamValue(args *redis.XAddArgs, key string) any {
	values, ok := args.Values.(map[string]any)
	if !ok {
		return nil
	}
	return values[key]
}

func productEvent(id string) *OutboxEvent {
	return &OutboxEvent{
		ID:            uuid.New(),
		AggregateType: AggregateProduct,
		AggregateID:   id,
		EventType:     EventProductScraped,
		Payload:       json.RawMessage(`{"id":"` + id + `","sku":"sw2211` + id + `"}`),
		TargetStream:  StreamCatalogProducts,
		CreatedAt:     time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestRelay_ProcessBatch(t *testing.T) {
	ctx := context.Background()

	t.Run("publishes and marks every event", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		mockOutbox := new(MockOutboxRepository)
		relay := NewRelay(mockOutbox, mockRedis, slog.Default(), RelayConfig{BatchSize: 10})

		events := []*OutboxEvent{productEvent("101"), productEvent("102")}
		mockOutbox.On("GetPending", ctx, 10).Return(events, nil)
		for _, event := range events {
			event := event
			mockRedis.On("XAdd", ctx, mock.MatchedBy(func(args *redis.XAddArgs) bool {
				return args.Stream == StreamCatalogProducts &&
					streamValue(args, "event_type") == EventProductScraped &&
					streamValue(args, "aggregate_id") == event.AggregateID
			})).Return(nil)
			mockOutbox.On("MarkProcessed", ctx, event.ID).Return(nil)
		}

		delivered, err := relay.ProcessBatch(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, delivered)

		mockRedis.AssertExpectations(t)
		mockOutbox.AssertExpectations(t)
	})

	t.Run("redis failure marks the event failed", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		mockOutbox := new(MockOutboxRepository)
		relay := NewRelay(mockOutbox, mockRedis, nil, RelayConfig{BatchSize: 10})

		event := productEvent("101")
		mockOutbox.On("GetPending", ctx, 10).Return([]*OutboxEvent{event}, nil)
		mockRedis.On("XAdd", ctx, mock.Anything).Return(errors.New("redis connection failed"))
		mockOutbox.On("MarkFailed", ctx, event.ID, mock.MatchedBy(func(err error) bool {
			return err.Error() == "failed to publish to redis: redis connection failed"
		})).Return(nil)

		delivered, err := relay.ProcessBatch(ctx)
		assert.NoError(t, err)
		assert.Equal(t, 0, delivered)

		mockOutbox.AssertNotCalled(t, "MarkProcessed", mock.Anything, mock.Anything)
		mockRedis.AssertExpectations(t)
		mockOutbox.AssertExpectations(t)
	})

	t.Run("empty batch never touches redis", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		mockOutbox := new(MockOutboxRepository)
		relay := NewRelay(mockOutbox, mockRedis, nil, RelayConfig{BatchSize: 10})

		mockOutbox.On("GetPending", ctx, 10).Return([]*OutboxEvent{}, nil)

		delivered, err := relay.ProcessBatch(ctx)
		require.NoError(t, err)
		assert.Zero(t, delivered)
		mockRedis.AssertNotCalled(t, "XAdd", mock.Anything, mock.Anything)
	})

	t.Run("one failure does not stop the batch", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		mockOutbox := new(MockOutboxRepository)
		relay := NewRelay(mockOutbox, mockRedis, nil, RelayConfig{BatchSize: 10})

		bad, good := productEvent("101"), productEvent("102")
		mockOutbox.On("GetPending", ctx, 10).Return([]*OutboxEvent{bad, good}, nil)
		mockRedis.On("XAdd", ctx, mock.MatchedBy(func(args *redis.XAddArgs) bool {
			return streamValue(args, "aggregate_id") == "101"
		})).Return(errors.New("boom"))
		mockRedis.On("XAdd", ctx, mock.MatchedBy(func(args *redis.XAddArgs) bool {
			return streamValue(args, "aggregate_id") == "102"
		})).Return(nil)
		mockOutbox.On("MarkFailed", ctx, bad.ID, mock.Anything).Return(nil)
		mockOutbox.On("MarkProcessed", ctx, good.ID).Return(nil)

		delivered, err := relay.ProcessBatch(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, delivered)
		mockOutbox.AssertExpectations(t)
	})

	t.Run("undecodable payload is marked failed without publishing", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		mockOutbox := new(MockOutboxRepository)
		relay := NewRelay(mockOutbox, mockRedis, nil, RelayConfig{BatchSize: 10})

		event := productEvent("101")
		event.Payload = json.RawMessage(`not json`)
		mockOutbox.On("GetPending", ctx, 10).Return([]*OutboxEvent{event}, nil)
		mockOutbox.On("MarkFailed", ctx, event.ID, mock.Anything).Return(nil)

		_, err := relay.ProcessBatch(ctx)
		require.NoError(t, err)
		mockRedis.AssertNotCalled(t, "XAdd", mock.Anything, mock.Anything)
		mockOutbox.AssertExpectations(t)
	})

	t.Run("pending lookup failure is returned", func(t *testing.T) {
		mockOutbox := new(MockOutboxRepository)
		relay := NewRelay(mockOutbox, new(MockRedisClient), nil, RelayConfig{BatchSize: 10})

		mockOutbox.On("GetPending", ctx, 10).Return(nil, errors.New("db down"))

		_, err := relay.ProcessBatch(ctx)
		assert.ErrorContains(t, err, "db down")
	})
}

func TestStreamArgs(t *testing.T) {
	event := productEvent("101")

	args, err := StreamArgs(event)
	require.NoError(t, err)
	assert.Equal(t, StreamCatalogProducts, args.Stream)

	assert.Equal(t, event.ID.String(), streamValue(args, "original_id"))

	var data map[string]any
	require.NoError(t, json.Unmarshal([]byte(streamValue(args, "data").(string)), &data))
	assert.Equal(t, EventProductScraped, data["type"])
	assert.Equal(t, "2024-03-01T12:00:00Z", data["timestamp"])
	assert.Equal(t, "101", data["payload"].(map[string]any)["id"])
	assert.Equal(t, relaySource, data["metadata"].(map[string]any)["source"])
}

func TestRelay_Backlog(t *testing.T) {
	ctx := context.Background()
	mockOutbox := new(MockOutboxRepository)
	relay := NewRelay(mockOutbox, new(MockRedisClient), nil, RelayConfig{})

	mockOutbox.On("CountByStatus", ctx).Return(map[string]int64{
		OutboxStatusPending:    3,
		OutboxStatusFailed:     2,
		OutboxStatusProcessed:  40,
		OutboxStatusDeadLetter: 1,
	}, nil)

	pending, dead, err := relay.Backlog(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), pending)
	assert.Equal(t, int64(1), dead)
}

func TestRelay_StartStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	mockOutbox := new(MockOutboxRepository)
	relay := NewRelay(mockOutbox, new(MockRedisClient), nil, RelayConfig{PollInterval: time.Hour})

	mockOutbox.On("GetPending", mock.Anything, 100).Return([]*OutboxEvent{}, nil).Run(func(mock.Arguments) {
		cancel()
	})

	err := relay.Start(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	mockOutbox.AssertNumberOfCalls(t, "GetPending", 1)
}
