package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskQueue_FIFO(t *testing.T) {
	q := newTaskQueue(4)

	for i := uint64(0); i < 3; i++ {
		require.True(t, q.Enqueue(chainTask{Chain: i}))
	}
	assert.Equal(t, 3, q.Len())

	for i := uint64(0); i < 3; i++ {
		task, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, i, task.Chain)
	}

	_, ok := q.TryDequeue()
	assert.False(t, ok, "dequeue from empty queue should return false")
	assert.Equal(t, 0, q.Len())
}

func TestTaskQueue_Close(t *testing.T) {
	q := newTaskQueue(2)
	q.Enqueue(chainTask{Chain: 0})
	q.Enqueue(chainTask{Chain: 1})

	q.Close()
	q.Close() // idempotent

	assert.Equal(t, 0, q.Len(), "close drops pending tasks")
	assert.False(t, q.Enqueue(chainTask{Chain: 2}), "enqueue after close should fail")

	_, ok := q.TryDequeue()
	assert.False(t, ok)
}
