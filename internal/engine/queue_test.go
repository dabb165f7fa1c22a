package engine

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/devit-dispatch-prototype/internal/domain"
)

func makeTask(id string, priority domain.TaskPriority) domain.Task {
	return domain.Task{ID: id, Type: "codegen", Priority: priority, SubmittedAt: time.Now()}
}

func TestQueue_PriorityOrderWithFIFOWithinRank(t *testing.T) {
	q := NewPriorityTaskQueue(10, time.Minute)

	pos, err := q.Enqueue(makeTask("n1", domain.PriorityNormal))
	require.NoError(t, err)
	assert.Equal(t, 0, pos)

	pos, err = q.Enqueue(makeTask("l1", domain.PriorityLow))
	require.NoError(t, err)
	assert.Equal(t, 1, pos)

	// High jumps ahead of both, but a second high lands behind the first.
	pos, err = q.Enqueue(makeTask("h1", domain.PriorityHigh))
	require.NoError(t, err)
	assert.Equal(t, 0, pos)

	pos, err = q.Enqueue(makeTask("h2", domain.PriorityHigh))
	require.NoError(t, err)
	assert.Equal(t, 1, pos)

	pos, err = q.Enqueue(makeTask("n2", domain.PriorityNormal))
	require.NoError(t, err)
	assert.Equal(t, 3, pos)

	ready, expired := q.Drain(10)
	require.Empty(t, expired)

	ids := make([]string, 0, len(ready))
	for _, task := range ready {
		ids = append(ids, task.ID)
	}
	assert.Equal(t, []string{"h1", "h2", "n1", "n2", "l1"}, ids)
}

func TestQueue_FullReturnsBackpressureError(t *testing.T) {
	q := NewPriorityTaskQueue(2, time.Minute)

	_, err := q.Enqueue(makeTask("t1", domain.PriorityNormal))
	require.NoError(t, err)
	_, err = q.Enqueue(makeTask("t2", domain.PriorityNormal))
	require.NoError(t, err)

	_, err = q.Enqueue(makeTask("t3", domain.PriorityHigh))
	var full *QueueFullError
	require.ErrorAs(t, err, &full)
	assert.Equal(t, 2, full.Max)

	// A rejected task must not occupy a slot.
	assert.Equal(t, 2, q.Size())
}

func TestQueue_DrainSkipsExpiredWithoutCountingThem(t *testing.T) {
	q := NewPriorityTaskQueue(10, time.Minute)

	base := time.Now()
	q.now = func() time.Time { return base }

	_, err := q.Enqueue(makeTask("old1", domain.PriorityHigh))
	require.NoError(t, err)
	_, err = q.Enqueue(makeTask("old2", domain.PriorityHigh))
	require.NoError(t, err)

	q.now = func() time.Time { return base.Add(30 * time.Second) }
	_, err = q.Enqueue(makeTask("fresh", domain.PriorityNormal))
	require.NoError(t, err)

	// At drain time the old tasks are 70s stale, the fresh one only 40s.
	q.now = func() time.Time { return base.Add(70 * time.Second) }
	q.timeout = 45 * time.Second

	ready, expired := q.Drain(1)
	require.Len(t, expired, 2)
	require.Len(t, ready, 1)
	assert.Equal(t, "fresh", ready[0].ID)
	assert.Equal(t, 0, q.Size())
}

func TestQueue_CancelRemovesOnlyMatchingTask(t *testing.T) {
	q := NewPriorityTaskQueue(10, time.Minute)

	_, err := q.Enqueue(makeTask("keep", domain.PriorityNormal))
	require.NoError(t, err)
	_, err = q.Enqueue(makeTask("drop", domain.PriorityNormal))
	require.NoError(t, err)

	require.NoError(t, q.Cancel("drop"))
	assert.ErrorIs(t, q.Cancel("drop"), ErrNotFound)
	assert.ErrorIs(t, q.Cancel("never-existed"), ErrNotFound)

	status := q.Status()
	require.Len(t, status.Entries, 1)
	assert.Equal(t, "keep", status.Entries[0].TaskID)
	assert.Equal(t, 0, status.Entries[0].Position)
}

func TestQueue_FlushEmptiesQueue(t *testing.T) {
	q := NewPriorityTaskQueue(10, time.Minute)

	for i := 0; i < 5; i++ {
		_, err := q.Enqueue(makeTask(fmt.Sprintf("t%d", i), domain.PriorityLow))
		require.NoError(t, err)
	}

	flushed := q.Flush()
	assert.Len(t, flushed, 5)
	assert.Equal(t, 0, q.Size())
	assert.Empty(t, q.Flush())
}
