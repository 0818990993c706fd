package containers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingQueueFIFO(t *testing.T) {
	rq := NewRingQueue[int](4)
	assert.True(t, rq.IsEmpty())

	for i := 1; i <= 4; i++ {
		require.NoError(t, rq.Enqueue(i))
	}
	assert.True(t, rq.IsFull())
	assert.Equal(t, 4, rq.Len())
	assert.ErrorIs(t, rq.Enqueue(5), ErrQueueFull)

	head, err := rq.Peek()
	require.NoError(t, err)
	assert.Equal(t, 1, head)
	assert.Equal(t, 4, rq.Len())

	for i := 1; i <= 4; i++ {
		v, err := rq.Dequeue()
		require.NoError(t, err)
		assert.Equal(t, i, v)
	}
	assert.True(t, rq.IsEmpty())
	_, err = rq.Dequeue()
	assert.ErrorIs(t, err, ErrQueueEmpty)
	_, err = rq.Peek()
	assert.ErrorIs(t, err, ErrQueueEmpty)
}

func TestRingQueueWrapsAround(t *testing.T) {
	rq := NewRingQueue[string](2)
	require.NoError(t, rq.Enqueue("a"))
	require.NoError(t, rq.Enqueue("b"))

	// Interleaved enqueue/dequeue cycles the indices past the end.
	for i := 0; i < 5; i++ {
		v, err := rq.Dequeue()
		require.NoError(t, err)
		require.NoError(t, rq.Enqueue(v))
	}
	v, err := rq.Dequeue()
	require.NoError(t, err)
	assert.Equal(t, "b", v)
	v, err = rq.Dequeue()
	require.NoError(t, err)
	assert.Equal(t, "a", v)
}
