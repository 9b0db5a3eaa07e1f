package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPopOrdersByPriorityThenAge(t *testing.T) {
	q := NewInMemoryQueue()
	ctx := context.Background()

	require.NoError(t, q.Push(&Task{ID: "low-1", Priority: 0}))
	require.NoError(t, q.Push(&Task{ID: "high", Priority: 10}))
	require.NoError(t, q.Push(&Task{ID: "low-2", Priority: 0}))
	require.NoError(t, q.Push(&Task{ID: "mid", Priority: 5}))
	assert.Equal(t, 4, q.Size())

	var got []string
	for i := 0; i < 4; i++ {
		task, err := q.Pop(ctx)
		require.NoError(t, err)
		got = append(got, task.ID)
	}

	assert.Equal(t, []string{"high", "mid", "low-1", "low-2"}, got)
	assert.Equal(t, 0, q.Size())
}

func TestPopBlocksUntilPush(t *testing.T) {
	q := NewInMemoryQueue()

	var wg sync.WaitGroup
	wg.Add(1)
	var got *Task
	go func() {
		defer wg.Done()
		task, err := q.Pop(context.Background())
		if err == nil {
			got = task
		}
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, q.Push(&Task{ID: "late"}))
	wg.Wait()

	require.NotNil(t, got)
	assert.Equal(t, "late", got.ID)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestPopHonoursContext(t *testing.T) {
	q := NewInMemoryQueue()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Pop(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCloseDrainsThenReportsClosed(t *testing.T) {
	q := NewInMemoryQueue()
	require.NoError(t, q.Push(&Task{ID: "a"}))
	require.NoError(t, q.Close())
	require.NoError(t, q.Close())

	assert.ErrorIs(t, q.Push(&Task{ID: "b"}), ErrQueueClosed)

	task, err := q.Pop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a", task.ID)

	_, err = q.Pop(context.Background())
	assert.ErrorIs(t, err, ErrQueueClosed)

	_, err = q.TryPop()
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestTryPopEmpty(t *testing.T) {
	q := NewInMemoryQueue()
	_, err := q.TryPop()
	assert.ErrorIs(t, err, ErrQueueEmpty)
}

func TestConcurrentConsumers(t *testing.T) {
	q := NewInMemoryQueue()
	const n = 50

	var mu sync.Mutex
	seen := map[string]bool{}
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				task, err := q.Pop(context.Background())
				if err != nil {
					return
				}
				mu.Lock()
				seen[task.ID] = true
				mu.Unlock()
			}
		}()
	}

	for i := 0; i < n; i++ {
		require.NoError(t, q.Push(&Task{ID: time.Duration(i).String()}))
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == n
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, q.Close())
	wg.Wait()
}
