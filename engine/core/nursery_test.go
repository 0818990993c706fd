package core

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNurseryWaitsForAllTasks(t *testing.T) {
	n := NewNursery(context.Background(), nil)

	var done atomic.Int32
	for i := 0; i < 8; i++ {
		n.Go(func(ctx context.Context) error {
			done.Add(1)
			return nil
		})
	}
	require.NoError(t, n.Wait())
	assert.Equal(t, int32(8), done.Load())
}

func TestNurseryFirstErrorCancelsSiblings(t *testing.T) {
	n := NewNursery(context.Background(), nil)
	boom := errors.New("boom")

	started := make(chan struct{})
	cancelled := make(chan struct{})
	n.Go(func(ctx context.Context) error {
		close(started)
		select {
		case <-ctx.Done():
			close(cancelled)
			return ctx.Err()
		case <-time.After(5 * time.Second):
			return errors.New("sibling was not cancelled")
		}
	})
	n.Go(func(ctx context.Context) error {
		<-started
		return boom
	})

	err := n.Wait()
	assert.ErrorIs(t, err, boom)
	select {
	case <-cancelled:
	default:
		t.Fatal("sibling did not observe cancellation")
	}
}

func TestNurseryAbsorbsPanicsAsErrors(t *testing.T) {
	n := NewNursery(context.Background(), nil)
	n.Go(func(ctx context.Context) error {
		panic("task blew up")
	})
	err := n.Wait()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "task blew up")
}

func TestNurseryRefusesTasksAfterCancel(t *testing.T) {
	n := NewNursery(context.Background(), nil)
	n.Cancel()

	ran := false
	n.Go(func(ctx context.Context) error {
		ran = true
		return nil
	})
	n.Wait()
	assert.False(t, ran)
}

func TestNurseryInheritsParentCancellation(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	n := NewNursery(parent, nil)
	cancel()

	select {
	case <-n.Context().Done():
	case <-time.After(time.Second):
		t.Fatal("nursery context did not follow the parent")
	}
}

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(ErrDeviceLost))
	assert.True(t, IsFatal(ErrSurfaceExpired))
	assert.True(t, IsFatal(errors.Join(errors.New("wrapped"), ErrDeviceLost)))
	assert.False(t, IsFatal(ErrResourceCreationFailed))
	assert.False(t, IsFatal(errors.New("ordinary")))
}
