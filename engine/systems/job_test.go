package systems

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxyengine/oxygen/engine/core"
)

func TestJobSystemValidatesConfig(t *testing.T) {
	_, err := NewJobSystem(0, 16)
	assert.ErrorIs(t, err, ErrNoWorkers)
	_, err = NewJobSystem(2, -1)
	assert.ErrorIs(t, err, ErrNegativeChannelSize)
}

func TestJobSystemRunsDispatchedTasks(t *testing.T) {
	jobs, err := NewJobSystem(4, 16)
	require.NoError(t, err)

	var ran atomic.Int32
	for i := 0; i < 64; i++ {
		jobs.Dispatch(func() { ran.Add(1) })
	}
	// Shutdown drains the queue before returning.
	require.NoError(t, jobs.Shutdown())
	assert.Equal(t, int32(64), ran.Load())
}

func TestJobSystemShutdownIsIdempotent(t *testing.T) {
	jobs, err := NewJobSystem(1, 0)
	require.NoError(t, err)
	require.NoError(t, jobs.Shutdown())
	require.NoError(t, jobs.Shutdown())
}

func TestJobSystemBacksNurseries(t *testing.T) {
	jobs, err := NewJobSystem(2, 8)
	require.NoError(t, err)
	defer jobs.Shutdown()

	nursery := core.NewNursery(context.Background(), jobs)
	var sum atomic.Int64
	for i := 1; i <= 10; i++ {
		i := i
		nursery.Go(func(context.Context) error {
			sum.Add(int64(i))
			return nil
		})
	}
	require.NoError(t, nursery.Wait())
	assert.Equal(t, int64(55), sum.Load())
}
